package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"grid-box-finder-go/internal/classifier"
	"grid-box-finder-go/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 GBF_RISK_DAILY_MAX_LOSS 覆盖 risk.daily_max_loss
const EnvPrefix = "GBF"

// Default 返回内置默认配置
func Default() models.Config {
	return models.Config{
		DBPath: "data/gridbox.db",
		Exchange: models.ExchangeConfig{
			LiveWSURL:           "wss://fstream.binance.com",
			TestnetWSURL:        "wss://stream.binancefuture.com",
			RetryAttempts:       5,
			RetryInitialDelayMs: 500,
			RetryMaxDelayMs:     5000,
		},
		Scanner: models.ScannerConfig{
			Quote:            "USDT",
			Interval:         "15m",
			LongHours:        72,
			ShortHours:       12,
			MaxSymbols:       200,
			MinQuoteVolume:   1_000_000,
			TopK:             30,
			PingPongInterval: "1m",
			PingPongLimit:    360,
			FastEnabled:      true,
			FastInterval:     "1m",
			FastLimit:        240,
			ThrottleMs:       100,
		},
		Classifier: classifier.DefaultConfig(),
		Sizer: models.SizerConfig{
			Levels:             16,
			Capital:            200,
			Reserve:            0,
			SLSteps:            1,
			DefaultPriceTick:   0.0001,
			DefaultQtyStep:     0.0001,
			DefaultMinNotional: 5,
		},
		Risk: models.RiskConfig{
			MaxOpenNotional:   1000,
			MaxSymbolExposure: 500,
			DailyMaxLoss:      200,
		},
		Retuner: models.RetunerConfig{
			Mode:             "paper",
			Interval:         "1m",
			Limit:            360,
			ADXPeriod:        14,
			GuardWindow:      120,
			ADXLimitHi:       35,
			ADXLimitLo:       28,
			GuardCooldownSec: 60,
			GuardConsecN:     3,
			SpikeFast:        20,
			SpikeSlow:        120,
			SpikeMult:        2,
			BandPeriod:       20,
			BandK:            2,
			MinBandShift:     0.002,
			RetuneSec:        120,
			SleepSec:         10,
			ModeADXLimit:     25,
			ModeCrossMin:     6,
			ModeTouchMin:     8,
		},
		Paper: models.PaperConfig{
			InitialBalance: 1000,
			MakerFeeRate:   0.0002,
		},
		Redis: models.RedisConfig{
			TTLSec: 20,
		},
		LogConfig: models.LogConfig{
			Level:      "info",
			Output:     "console",
			File:       "logs/gridbox.log",
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
	}
}

// LoadConfig 按 默认值 -> 配置文件 -> 环境变量 的顺序合并配置并校验。path 为空时只使用默认值和环境变量。
func LoadConfig(path string) (*models.Config, error) {
	v := viper.New()

	defaults, err := json.Marshal(Default())
	if err != nil {
		return nil, err
	}
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("加载默认配置失败: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &models.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验结构体标签中声明的约束
func Validate(cfg *models.Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}
