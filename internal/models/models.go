package models

import (
	"fmt"
	"time"
)

// Config 结构体定义了扫描器、网格计算器和守护调参循环的所有配置参数
type Config struct {
	DBPath     string           `json:"db_path" mapstructure:"db_path" validate:"required"` // 数据库文件路径
	Exchange   ExchangeConfig   `json:"exchange" mapstructure:"exchange"`
	Scanner    ScannerConfig    `json:"scanner" mapstructure:"scanner"`
	Classifier ClassifierConfig `json:"classifier" mapstructure:"classifier"`
	Sizer      SizerConfig      `json:"sizer" mapstructure:"sizer"`
	Risk       RiskConfig       `json:"risk" mapstructure:"risk"`
	Retuner    RetunerConfig    `json:"retuner" mapstructure:"retuner"`
	Paper      PaperConfig      `json:"paper" mapstructure:"paper"`
	Redis      RedisConfig      `json:"redis" mapstructure:"redis"`
	Metrics    MetricsConfig    `json:"metrics" mapstructure:"metrics"`
	LogConfig  LogConfig        `json:"log" mapstructure:"log"`
}

// ExchangeConfig 交易所连接配置
type ExchangeConfig struct {
	IsTestnet           bool   `json:"is_testnet" mapstructure:"is_testnet"` // 是否使用测试网
	LiveWSURL           string `json:"live_ws_url" mapstructure:"live_ws_url"`
	TestnetWSURL        string `json:"testnet_ws_url" mapstructure:"testnet_ws_url"`
	RetryAttempts       int    `json:"retry_attempts" mapstructure:"retry_attempts" validate:"gte=1,lte=20"`        // 网络失败时的最大尝试次数
	RetryInitialDelayMs int    `json:"retry_initial_delay_ms" mapstructure:"retry_initial_delay_ms" validate:"gt=0"` // 首次重试前的延迟毫秒数
	RetryMaxDelayMs     int    `json:"retry_max_delay_ms" mapstructure:"retry_max_delay_ms" validate:"gtefield=RetryInitialDelayMs"`
}

// WSBaseURL 根据是否测试网返回 WebSocket 基础地址
func (c ExchangeConfig) WSBaseURL() string {
	if c.IsTestnet {
		return c.TestnetWSURL
	}
	return c.LiveWSURL
}

// ScannerConfig 定义了全市场扫描的参数
type ScannerConfig struct {
	Quote            string  `json:"quote" mapstructure:"quote" validate:"required"`
	Interval         string  `json:"interval" mapstructure:"interval" validate:"required"`     // 长短窗口使用的K线周期
	LongHours        float64 `json:"long_hours" mapstructure:"long_hours" validate:"gt=0"`     // 趋势判断窗口（小时）
	ShortHours       float64 `json:"short_hours" mapstructure:"short_hours" validate:"gt=0"`   // 激活判断窗口（小时）
	MaxSymbols       int     `json:"max_symbols" mapstructure:"max_symbols" validate:"gt=0"`   // 按成交额排序后最多扫描的交易对数量
	MinQuoteVolume   float64 `json:"min_quote_volume" mapstructure:"min_quote_volume"`         // 24h 最小成交额
	TopK             int     `json:"top_k" mapstructure:"top_k" validate:"gt=0"`               // 报告中展示的候选数量
	PingPongInterval string  `json:"pingpong_interval" mapstructure:"pingpong_interval"`       // 乒乓层使用的K线周期
	PingPongLimit    int     `json:"pingpong_limit" mapstructure:"pingpong_limit" validate:"gte=60"`
	FastEnabled      bool    `json:"fast_enabled" mapstructure:"fast_enabled"` // 是否启用 1m 快速 S 诊断
	FastInterval     string  `json:"fast_interval" mapstructure:"fast_interval"`
	FastLimit        int     `json:"fast_limit" mapstructure:"fast_limit"`
	ThrottleMs       int     `json:"throttle_ms" mapstructure:"throttle_ms"` // 每个交易对之间的间隔，避免触发限频
	SizeCandidates   bool    `json:"size_candidates" mapstructure:"size_candidates"` // 是否为通过的候选计算网格订单
}

// RegimeConfig 长窗口（趋势/区间判断）阈值
type RegimeConfig struct {
	QLow       float64 `json:"q_low" mapstructure:"q_low" validate:"gte=0,lt=1"`
	QHigh      float64 `json:"q_high" mapstructure:"q_high" validate:"gtfield=QLow,lte=1"`
	Eps        float64 `json:"eps" mapstructure:"eps" validate:"gte=0"`
	RangeMin   float64 `json:"range_min" mapstructure:"range_min"`     // 最小价格区间比例
	SlopeMax   float64 `json:"slope_max" mapstructure:"slope_max"`     // 最大漂移比例
	ContainMin float64 `json:"contain_min" mapstructure:"contain_min"` // 最小区间包含率
}

// ActivationConfig 短窗口（当前是否活跃）阈值
type ActivationConfig struct {
	QLow       float64 `json:"q_low" mapstructure:"q_low" validate:"gte=0,lt=1"`
	QHigh      float64 `json:"q_high" mapstructure:"q_high" validate:"gtfield=QLow,lte=1"`
	Eps        float64 `json:"eps" mapstructure:"eps" validate:"gte=0"`
	ATRPeriod  int     `json:"atr_period" mapstructure:"atr_period" validate:"gt=0"`
	ContainMin float64 `json:"contain_min" mapstructure:"contain_min"`
	ATRMin     float64 `json:"atr_min" mapstructure:"atr_min"`
	TouchMin   int     `json:"touch_min" mapstructure:"touch_min"`
	AltMin     int     `json:"alt_min" mapstructure:"alt_min"`
}

// SPatternConfig 振荡质量（S 形）阈值
type SPatternConfig struct {
	QLow        float64 `json:"q_low" mapstructure:"q_low" validate:"gte=0,lt=1"`
	QHigh       float64 `json:"q_high" mapstructure:"q_high" validate:"gtfield=QLow,lte=1"`
	Eps         float64 `json:"eps" mapstructure:"eps" validate:"gte=0"`
	CVChunk     int     `json:"cv_chunk" mapstructure:"cv_chunk" validate:"gt=1"`
	AltRatioMin float64 `json:"alt_ratio_min" mapstructure:"alt_ratio_min"`
	BalanceMax  float64 `json:"balance_max" mapstructure:"balance_max"`
	CVMax       float64 `json:"cv_max" mapstructure:"cv_max"`
	DriftMax    float64 `json:"drift_max" mapstructure:"drift_max"`
	ContainMin  float64 `json:"contain_min" mapstructure:"contain_min"`
}

// PingPongConfig 乒乓层（ADX + 均线穿越）阈值
type PingPongConfig struct {
	ATRPeriod      int     `json:"atr_period" mapstructure:"atr_period" validate:"gt=0"`
	ADXPeriod      int     `json:"adx_period" mapstructure:"adx_period" validate:"gt=0"`
	SMAPeriod      int     `json:"sma_period" mapstructure:"sma_period" validate:"gt=0"`
	Window         int     `json:"window" mapstructure:"window" validate:"gt=0"`         // 区间/穿越统计使用的最近K线数量
	ADXWindow      int     `json:"adx_window" mapstructure:"adx_window" validate:"gt=0"` // ADX 使用的最近K线数量
	ATRPctMin      float64 `json:"atr_pct_min" mapstructure:"atr_pct_min"`
	RangePctMin    float64 `json:"range_pct_min" mapstructure:"range_pct_min"`
	ADXMax         float64 `json:"adx_max" mapstructure:"adx_max"`
	MidCrossMin    int     `json:"mid_cross_min" mapstructure:"mid_cross_min"`
	DriftMaxRatio  float64 `json:"drift_max_ratio" mapstructure:"drift_max_ratio"`
	MinQuoteVolume float64 `json:"min_quote_volume" mapstructure:"min_quote_volume"`
	ListedMinDays  float64 `json:"listed_min_days" mapstructure:"listed_min_days"`
}

// FastConfig 1m 快速 S 诊断阈值
type FastConfig struct {
	MinBars               int     `json:"min_bars" mapstructure:"min_bars" validate:"gt=0"`
	SMAPeriod             int     `json:"sma_period" mapstructure:"sma_period" validate:"gt=0"`
	MinCrossesPerHour     float64 `json:"min_crosses_per_hour" mapstructure:"min_crosses_per_hour"`
	CycleMinMinutes       float64 `json:"cycle_min_minutes" mapstructure:"cycle_min_minutes"`
	CycleMaxMinutes       float64 `json:"cycle_max_minutes" mapstructure:"cycle_max_minutes" validate:"gtefield=CycleMinMinutes"`
	MinEdgeTouchesPerHour float64 `json:"min_edge_touches_per_hour" mapstructure:"min_edge_touches_per_hour"`
	EdgeQLow              float64 `json:"edge_q_low" mapstructure:"edge_q_low"`
	EdgeQHigh             float64 `json:"edge_q_high" mapstructure:"edge_q_high" validate:"gtfield=EdgeQLow"`
	WideMinRangePct       float64 `json:"wide_min_range_pct" mapstructure:"wide_min_range_pct"`
}

// GridSuggestConfig 建议网格区间的参数
type GridSuggestConfig struct {
	Count    int     `json:"count" mapstructure:"count" validate:"gte=2"`
	ATRMult  float64 `json:"atr_mult" mapstructure:"atr_mult"`
	WidthMin float64 `json:"width_min" mapstructure:"width_min" validate:"gt=0"`
	WidthMax float64 `json:"width_max" mapstructure:"width_max" validate:"gtefield=WidthMin"`
	MinKATR  float64 `json:"min_k_atr" mapstructure:"min_k_atr"` // 网格宽度至少为 k 倍 ATR
}

// ScoreWeights 综合评分权重
type ScoreWeights struct {
	LongRange    float64 `json:"long_range" mapstructure:"long_range"`
	LongInside   float64 `json:"long_inside" mapstructure:"long_inside"`
	LongTouch    float64 `json:"long_touch" mapstructure:"long_touch"`
	LongAlt      float64 `json:"long_alt" mapstructure:"long_alt"`
	LongSlope    float64 `json:"long_slope" mapstructure:"long_slope"`
	ShortATR     float64 `json:"short_atr" mapstructure:"short_atr"`
	ShortTouch   float64 `json:"short_touch" mapstructure:"short_touch"`
	ShortAlt     float64 `json:"short_alt" mapstructure:"short_alt"`
	ShortInside  float64 `json:"short_inside" mapstructure:"short_inside"`
	ShortSlope   float64 `json:"short_slope" mapstructure:"short_slope"`
	AltRatio     float64 `json:"alt_ratio" mapstructure:"alt_ratio"`
	Imbalance    float64 `json:"imbalance" mapstructure:"imbalance"`
	VolatilityCV float64 `json:"volatility_cv" mapstructure:"volatility_cv"`
}

// ClassifierConfig 三层分类器及诊断层的全部阈值
type ClassifierConfig struct {
	Regime     RegimeConfig      `json:"regime" mapstructure:"regime"`
	Activation ActivationConfig  `json:"activation" mapstructure:"activation"`
	SPattern   SPatternConfig    `json:"s_pattern" mapstructure:"s_pattern"`
	PingPong   PingPongConfig    `json:"pingpong" mapstructure:"pingpong"`
	Fast       FastConfig        `json:"fast" mapstructure:"fast"`
	Grid       GridSuggestConfig `json:"grid" mapstructure:"grid"`
	Weights    ScoreWeights      `json:"weights" mapstructure:"weights"`
}

// SizerConfig 网格下单计算参数
type SizerConfig struct {
	Levels             int     `json:"levels" mapstructure:"levels" validate:"gte=2"`
	Capital            float64 `json:"capital" mapstructure:"capital" validate:"gte=0"`
	Reserve            float64 `json:"reserve" mapstructure:"reserve" validate:"gte=0,lt=1"` // 预留资金比例
	SLSteps            int     `json:"sl_steps" mapstructure:"sl_steps" validate:"gte=0"`    // 止损位于网格外的步数
	DefaultPriceTick   float64 `json:"default_price_tick" mapstructure:"default_price_tick" validate:"gt=0"`
	DefaultQtyStep     float64 `json:"default_qty_step" mapstructure:"default_qty_step" validate:"gt=0"`
	DefaultMinNotional float64 `json:"default_min_notional" mapstructure:"default_min_notional" validate:"gt=0"`
}

// RiskConfig 风控限制
type RiskConfig struct {
	MaxOpenNotional   float64 `json:"max_open_notional" mapstructure:"max_open_notional" validate:"gt=0"`
	MaxSymbolExposure float64 `json:"max_symbol_exposure" mapstructure:"max_symbol_exposure" validate:"gt=0"`
	DailyMaxLoss      float64 `json:"daily_max_loss" mapstructure:"daily_max_loss" validate:"gt=0"`
}

// RetunerConfig 守护调参循环的参数
type RetunerConfig struct {
	Symbol           string  `json:"symbol" mapstructure:"symbol"`
	Mode             string  `json:"mode" mapstructure:"mode" validate:"oneof=paper live"`
	Interval         string  `json:"interval" mapstructure:"interval"`
	Limit            int     `json:"limit" mapstructure:"limit" validate:"gte=20"`
	ADXPeriod        int     `json:"adx_period" mapstructure:"adx_period" validate:"gt=0"`
	GuardWindow      int     `json:"guard_window" mapstructure:"guard_window" validate:"gtefield=SpikeSlow"` // ADX/波动守护使用的最近K线数量
	ADXLimitHi       float64 `json:"adx_limit_hi" mapstructure:"adx_limit_hi"`
	ADXLimitLo       float64 `json:"adx_limit_lo" mapstructure:"adx_limit_lo" validate:"ltfield=ADXLimitHi"`
	GuardCooldownSec int     `json:"guard_cooldown_sec" mapstructure:"guard_cooldown_sec" validate:"gte=0"`
	GuardConsecN     int     `json:"guard_consec_n" mapstructure:"guard_consec_n" validate:"gte=1"`
	SpikeFast        int     `json:"spike_fast" mapstructure:"spike_fast" validate:"gt=1"`
	SpikeSlow        int     `json:"spike_slow" mapstructure:"spike_slow" validate:"gtfield=SpikeFast"`
	SpikeMult        float64 `json:"spike_mult" mapstructure:"spike_mult" validate:"gt=0"`
	BandPeriod       int     `json:"band_period" mapstructure:"band_period" validate:"gt=1"`
	BandK            float64 `json:"band_k" mapstructure:"band_k" validate:"gt=0"`
	MinBandShift     float64 `json:"min_band_shift" mapstructure:"min_band_shift" validate:"gte=0"` // 触发重新布网的最小相对偏移
	RetuneSec        int     `json:"retune_sec" mapstructure:"retune_sec" validate:"gte=0"`
	SleepSec         int     `json:"sleep_sec" mapstructure:"sleep_sec" validate:"gte=0"`
	RunSeconds       int     `json:"run_seconds" mapstructure:"run_seconds" validate:"gte=0"` // 0 = 不限制
	RunCycles        int     `json:"run_cycles" mapstructure:"run_cycles" validate:"gte=0"`   // 0 = 不限制
	ModeADXLimit     float64 `json:"mode_adx_limit" mapstructure:"mode_adx_limit"`
	ModeCrossMin     float64 `json:"mode_cross_min" mapstructure:"mode_cross_min"`
	ModeTouchMin     float64 `json:"mode_touch_min" mapstructure:"mode_touch_min"`
}

// PaperConfig 模拟盘撮合参数
type PaperConfig struct {
	InitialBalance float64 `json:"initial_balance" mapstructure:"initial_balance" validate:"gte=0"`
	MakerFeeRate   float64 `json:"maker_fee_rate" mapstructure:"maker_fee_rate" validate:"gte=0"` // 挂单手续费率
	SlippageRate   float64 `json:"slippage_rate" mapstructure:"slippage_rate" validate:"gte=0"`   // 滑点率
	StreamPrices   bool    `json:"stream_prices" mapstructure:"stream_prices"`                    // 是否通过 WebSocket 推送价格撮合
}

// RedisConfig K线缓存配置，Addr 为空时禁用
type RedisConfig struct {
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
	TTLSec   int    `json:"ttl_sec" mapstructure:"ttl_sec" validate:"gte=0"`
}

// MetricsConfig Prometheus 暴露地址，为空时不启动
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" mapstructure:"output"`           // 输出模式: "console", "file", "both"
	File       string `json:"file" mapstructure:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" mapstructure:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" mapstructure:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" mapstructure:"compress"`       // 是否压缩旧日志文件
}

// Candle 定义了一根K线，序列按时间从旧到新排列
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Ticker 定义了24小时行情摘要
type Ticker struct {
	Symbol      string  `json:"symbol"`
	Last        float64 `json:"last"`
	QuoteVolume float64 `json:"quote_volume"`
	BaseVolume  float64 `json:"base_volume"`
}

// QuoteVolumeOrEstimate 返回计价货币成交额，缺失时用 last*baseVolume 估算
func (t Ticker) QuoteVolumeOrEstimate() float64 {
	if t.QuoteVolume > 0 {
		return t.QuoteVolume
	}
	return t.Last * t.BaseVolume
}

// SymbolInfo 定义了交易对的交易规则
type SymbolInfo struct {
	Symbol            string    `json:"symbol"`
	Status            string    `json:"status"`
	BaseAsset         string    `json:"baseAsset"`
	QuoteAsset        string    `json:"quoteAsset"`
	ContractType      string    `json:"contractType"`
	ListedAt          time.Time `json:"listedAt"`
	PricePrecision    int       `json:"pricePrecision"`
	QuantityPrecision int       `json:"quantityPrecision"`
	Filters           []Filter  `json:"filters"`
}

// Filter 定义了交易规则中的过滤器
type Filter struct {
	FilterType  string `json:"filterType"`
	TickSize    string `json:"tickSize,omitempty"`
	MinPrice    string `json:"minPrice,omitempty"`
	StepSize    string `json:"stepSize,omitempty"`
	MinQty      string `json:"minQty,omitempty"`
	MaxQty      string `json:"maxQty,omitempty"`
	MinNotional string `json:"minNotional,omitempty"`
	Notional    string `json:"notional,omitempty"`
}

// Order 定义了订单信息
type Order struct {
	Symbol        string    `json:"symbol"`
	OrderID       int64     `json:"orderId"`
	ClientOrderID string    `json:"clientOrderId"`
	Side          Side      `json:"side"`
	Type          string    `json:"type"`
	Price         float64   `json:"price"`
	Quantity      float64   `json:"quantity"`
	Status        string    `json:"status"`
	Time          time.Time `json:"time"`
}

// Notional 返回订单名义价值
func (o Order) Notional() float64 {
	return o.Price * o.Quantity
}

// Error 定义了交易所API返回的错误信息
type Error struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("API Error: code=%d, msg=%s", e.Code, e.Msg)
}
