package main

import (
	"context"
	"flag"
	"os"
	"time"

	"grid-box-finder-go/internal/config"
	"grid-box-finder-go/internal/exchange"
	"grid-box-finder-go/internal/logger"
	"grid-box-finder-go/internal/models"
	"grid-box-finder-go/internal/reporter"
	"grid-box-finder-go/internal/sizer"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	symbol := flag.String("symbol", "", "futures symbol, e.g. DOGEUSDT")
	lower := flag.Float64("lower", 0, "grid lower bound")
	upper := flag.Float64("upper", 0, "grid upper bound")
	levels := flag.Int("levels", 0, "number of grid levels (defaults to sizer.levels)")
	capital := flag.Float64("capital", -1, "quote capital (defaults to sizer.capital)")
	reserve := flag.Float64("reserve", -1, "fraction of capital kept aside (defaults to sizer.reserve)")
	slSteps := flag.Int("sl_steps", -1, "stop-loss distance outside the band in steps")
	reference := flag.Float64("ref", 0, "reference price; the last price is fetched when 0")
	offline := flag.Bool("offline", false, "use the default filters instead of exchange info")
	csvOut := flag.Bool("csv", false, "write the order table as CSV")
	flag.Parse()

	logger.InitLogger(models.LogConfig{Level: "warn", Output: "console"})
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	if *symbol == "" {
		logger.S().Fatal("必须通过 --symbol 指定交易对")
	}

	req := sizer.Request{
		Symbol:    *symbol,
		Lower:     *lower,
		Upper:     *upper,
		Levels:    cfg.Sizer.Levels,
		Capital:   cfg.Sizer.Capital,
		Reserve:   cfg.Sizer.Reserve,
		SLSteps:   cfg.Sizer.SLSteps,
		Reference: *reference,
	}
	if *levels > 0 {
		req.Levels = *levels
	}
	if *capital >= 0 {
		req.Capital = *capital
	}
	if *reserve >= 0 {
		req.Reserve = *reserve
	}
	if *slSteps >= 0 {
		req.SLSteps = *slSteps
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var plan *sizer.GridPlan
	if *offline {
		plan, err = sizer.Build(req, sizer.FiltersFromConfig(cfg.Sizer))
	} else {
		binance := exchange.NewBinanceExchange(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"), cfg.Exchange, logger.S().Desugar())
		if req.Reference <= 0 {
			if t, err := binance.FetchTicker(ctx, req.Symbol); err == nil {
				req.Reference = t.Last
			} else {
				logger.S().Warnf("获取 %s 最新价失败，使用区间中点作为参考价: %v", req.Symbol, err)
			}
		}
		plan, err = sizer.New(binance, sizer.FiltersFromConfig(cfg.Sizer), logger.S().Desugar()).Plan(ctx, req)
	}
	if err != nil {
		logger.S().Fatalf("计算网格失败: %v", err)
	}

	if *csvOut {
		reporter.WritePlanCSV(os.Stdout, plan)
		return
	}
	reporter.RenderPlan(os.Stdout, plan)
}
