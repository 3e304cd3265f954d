package models

import "time"

// RetunerState 定义了调参循环需要持久化的所有关键数据
type RetunerState struct {
	Symbol         string       `json:"symbol"`            // 交易对, e.g., "BNBUSDT"
	Version        int          `json:"version"`           // 状态模型的版本号，用于未来迁移
	Mode           string       `json:"mode"`              // 当前模式: DYNAMIC_GRID / PAUSE
	Guard          GuardState   `json:"guard"`             // 守护状态（趋势/波动）
	Band           *BandState   `json:"band,omitempty"`    // 最近一次实际挂出的网格区间
	LastTune       time.Time    `json:"last_tune"`         // 最近一次重新布网时间
	Cycles         int          `json:"cycles"`            // 已完成的循环次数
	Fills          int          `json:"fills"`             // 成交笔数，由状态管理器维护
	RealizedPnL    float64      `json:"realized_pnl"`      // 累计已实现盈亏，由状态管理器维护
	Risk           RiskSnapshot `json:"risk"`              // 风控快照
	LastUpdateTime time.Time    `json:"last_update_time"`  // 状态最后更新的时间戳
}

// GuardState 追踪趋势滞回与冷却状态，只在单个交易对的循环内有效
type GuardState struct {
	TrendBlocked    bool      `json:"trend_blocked"`
	LastGuardTime   time.Time `json:"last_guard_time"`
	ConsecutiveHits int       `json:"consecutive_hits"`
	LastBucket      string    `json:"last_bucket,omitempty"` // 最近一次暂停通知时的 ADX 分档
}

// BandState 记录挂单时使用的网格区间
type BandState struct {
	Lower    float64   `json:"lower"`
	Upper    float64   `json:"upper"`
	Levels   int       `json:"levels"`
	Notional float64   `json:"notional"` // 该区间计划的总名义价值
	PlacedAt time.Time `json:"placed_at"`
}

// RiskSnapshot 风控状态的可持久化快照
type RiskSnapshot struct {
	SymbolExposure   map[string]float64 `json:"symbol_exposure"`
	DailyRealizedPnL float64            `json:"daily_realized_pnl"`
	Day              string             `json:"day"` // UTC 日期, 2006-01-02
}

// ScanRecord 一次全市场扫描的持久化结果
type ScanRecord struct {
	RunID      string             `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Scanned    int                `json:"scanned"`
	Skipped    int                `json:"skipped"`
	Candidates []CandidateSummary `json:"candidates"`
}

// CandidateSummary 扫描候选的摘要
type CandidateSummary struct {
	Symbol     string   `json:"symbol"`
	Verdict    string   `json:"verdict"`
	Score      float64  `json:"score"`
	Lower      float64  `json:"lower"`
	Mid        float64  `json:"mid"`
	Upper      float64  `json:"upper"`
	Reasons    []string `json:"reasons,omitempty"`
	PingPongOK bool     `json:"pingpong_ok"`
	FastOK     bool     `json:"fast_ok"`
}

// Fill 一笔成交回报
type Fill struct {
	Symbol      string    `json:"symbol"`
	OrderID     int64     `json:"order_id"`
	Side        Side      `json:"side"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"quantity"`
	Fee         float64   `json:"fee"`
	RealizedPnL float64   `json:"realized_pnl"`
	Time        time.Time `json:"time"`
}

// Notional 返回成交名义价值
func (f Fill) Notional() float64 {
	return f.Price * f.Quantity
}

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)
