package classifier

import (
	"fmt"

	"grid-box-finder-go/internal/indicator"
	"grid-box-finder-go/internal/models"
)

// pingPongMinBars is the shortest candle history the ping-pong tier accepts.
const pingPongMinBars = 60

// PingPongInput is what the ping-pong tier needs for one symbol.
type PingPongInput struct {
	Candles     []models.Candle
	QuoteVolume float64
	// ListingAgeDays is the market age in days, negative when unknown.
	// Unknown ages never block.
	ListingAgeDays float64
}

// PingPongResult reports the ping-pong tier: a base filter on volatility,
// range and liquidity, then trend weakness, mid-line crossings and drift.
type PingPongResult struct {
	Last       float64       `json:"last"`
	ATRAbs     float64       `json:"atr_abs"`
	ATRPct     float64       `json:"atr_pct"`
	RangePct   float64       `json:"range_pct"`
	ADX        float64       `json:"adx"`
	MidCross   int           `json:"mid_cross"`
	DriftRatio float64       `json:"drift_ratio"`
	BaseOK     bool          `json:"base_ok"`
	AgeOK      bool          `json:"age_ok"`
	OK         bool          `json:"ok"`
	Reasons    []Reason      `json:"reasons"`
	Band       SuggestedBand `json:"band"`
}

// EvaluatePingPong runs the ping-pong tier over in.Candles.
func (c *Classifier) EvaluatePingPong(in PingPongInput) (PingPongResult, error) {
	g := c.cfg.PingPong
	if len(in.Candles) < pingPongMinBars {
		return PingPongResult{}, fmt.Errorf("ping-pong needs %d bars, got %d: %w",
			pingPongMinBars, len(in.Candles), indicator.ErrInsufficientData)
	}

	closes := indicator.Closes(in.Candles)
	last := closes[len(closes)-1]
	window := indicator.TailFloats(closes, g.Window)

	r := PingPongResult{Last: last}
	r.ATRAbs = indicator.ATR(in.Candles, g.ATRPeriod)
	if last > 0 {
		r.ATRPct = r.ATRAbs / last
		lo, hi := window[0], window[0]
		for _, v := range window {
			lo = minf(lo, v)
			hi = maxf(hi, v)
		}
		r.RangePct = (hi - lo) / last
	}
	r.ADX = indicator.ADX(indicator.Tail(in.Candles, g.ADXWindow), g.ADXPeriod)
	sma := indicator.SMASeries(closes, g.SMAPeriod)
	r.MidCross = indicator.MidCrossCount(window, indicator.TailFloats(sma, g.Window))
	r.DriftRatio = indicator.DriftRatio(window)
	r.Band = c.SuggestBand(last, r.ATRAbs)

	liqOK := g.MinQuoteVolume <= 0 || in.QuoteVolume >= g.MinQuoteVolume
	r.BaseOK = r.ATRPct >= g.ATRPctMin && r.RangePct >= g.RangePctMin && liqOK
	r.AgeOK = true
	if r.BaseOK && g.ListedMinDays > 0 && in.ListingAgeDays >= 0 {
		r.AgeOK = in.ListingAgeDays >= g.ListedMinDays
	}

	if r.ATRPct < g.ATRPctMin {
		r.Reasons = append(r.Reasons, ReasonLowVol)
	}
	if r.RangePct < g.RangePctMin {
		r.Reasons = append(r.Reasons, ReasonLowRange)
	}
	if !liqOK {
		r.Reasons = append(r.Reasons, ReasonLowLiq)
	}
	if !r.AgeOK {
		r.Reasons = append(r.Reasons, ReasonNew)
	}
	if r.ADX > g.ADXMax {
		r.Reasons = append(r.Reasons, ReasonTrend)
	}
	if r.MidCross < g.MidCrossMin {
		r.Reasons = append(r.Reasons, ReasonMid)
	}
	if r.DriftRatio > g.DriftMaxRatio {
		r.Reasons = append(r.Reasons, ReasonDrift)
	}

	r.OK = r.BaseOK && r.AgeOK && r.ADX <= g.ADXMax && r.MidCross >= g.MidCrossMin && r.DriftRatio <= g.DriftMaxRatio
	return r, nil
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
