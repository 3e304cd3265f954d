// Package classifier decides whether a symbol is in a bounded, oscillating
// state suitable for grid trading.
//
// Three independent gates are evaluated over indicator sets:
//   - regime: the long window stayed inside a wide enough, non-trending band
//   - activation: the short window is currently working that band
//   - S-pattern: recent edge touches alternate cleanly between both edges
//
// The gates decide; the composite score only ranks.
package classifier

import (
	"fmt"
	"math"

	"grid-box-finder-go/internal/indicator"
	"grid-box-finder-go/internal/models"
)

// Verdict is the multi-tier label derived from the gate outcomes.
type Verdict string

const (
	VerdictConfirmed Verdict = "confirmed" // regime, activation and S-pattern all pass
	VerdictNearMiss  Verdict = "near-miss" // regime and S-pattern pass, activation does not
	VerdictWatch     Verdict = "watch"     // regime passes only
	VerdictRejected  Verdict = "rejected"  // regime fails
)

// rank orders verdicts from most to least actionable.
func (v Verdict) rank() int {
	switch v {
	case VerdictConfirmed:
		return 0
	case VerdictNearMiss:
		return 1
	case VerdictWatch:
		return 2
	default:
		return 3
	}
}

// Reason tags which threshold failed. Tags are diagnostic and not exclusive.
type Reason string

const (
	// regime
	ReasonRange   Reason = "RANGE"
	ReasonSlope   Reason = "SLOPE"
	ReasonContain Reason = "CONTAIN"

	// activation
	ReasonContainActive Reason = "CONTAIN_A"
	ReasonLowVol        Reason = "LOWVOL"
	ReasonTouch         Reason = "TOUCH"
	ReasonAlt           Reason = "ALT"

	// S-pattern
	ReasonContainS  Reason = "CONTAIN_S"
	ReasonAltRatio  Reason = "ALT_RATIO"
	ReasonImbalance Reason = "IMBALANCE"
	ReasonNoisy     Reason = "NOISY"
	ReasonDriftS    Reason = "DRIFT_S"

	// ping-pong
	ReasonLowRange Reason = "LOWRANGE"
	ReasonLowLiq   Reason = "LOWLIQ"
	ReasonNew      Reason = "NEW"
	ReasonTrend    Reason = "TREND"
	ReasonMid      Reason = "MID"
	ReasonDrift    Reason = "DRIFT"
)

// Windows holds the indicator sets a symbol is classified on. SPattern is the
// short window measured with the S-pattern quantiles and epsilon.
type Windows struct {
	Long     indicator.Set
	Short    indicator.Set
	SPattern indicator.Set
}

// Result is the outcome of the three gates.
type Result struct {
	RegimeOK     bool     `json:"regime_ok"`
	ActivationOK bool     `json:"activation_ok"`
	SPatternOK   bool     `json:"s_pattern_ok"`
	Score        float64  `json:"score"`
	Reasons      []Reason `json:"reasons"`
	Verdict      Verdict  `json:"verdict"`
}

// Classifier evaluates windows against a fixed Config.
type Classifier struct {
	cfg Config
}

// New creates a classifier with the given thresholds.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Config returns the thresholds in use.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Measure computes the long, short and S-pattern indicator sets. long and
// short are oldest-first candle windows of the same interval.
func (c *Classifier) Measure(long, short []models.Candle, barMinutes float64) (Windows, error) {
	var w Windows
	var err error
	if w.Long, err = indicator.Compute(long, regimeParams(c.cfg, barMinutes)); err != nil {
		return Windows{}, fmt.Errorf("regime window: %w", err)
	}
	if w.Short, err = indicator.Compute(short, activationParams(c.cfg, barMinutes)); err != nil {
		return Windows{}, fmt.Errorf("activation window: %w", err)
	}
	if w.SPattern, err = indicator.Compute(short, sPatternParams(c.cfg, barMinutes)); err != nil {
		return Windows{}, fmt.Errorf("s-pattern window: %w", err)
	}
	return w, nil
}

// Evaluate runs every gate, scores the windows and labels the result.
func (c *Classifier) Evaluate(w Windows) Result {
	var reasons []Reason
	regimeOK, r := c.Regime(w.Long)
	reasons = append(reasons, r...)
	activationOK, r := c.Activation(w.Short)
	reasons = append(reasons, r...)
	sOK, r := c.SPattern(w.SPattern)
	reasons = append(reasons, r...)

	return Result{
		RegimeOK:     regimeOK,
		ActivationOK: activationOK,
		SPatternOK:   sOK,
		Score:        c.Score(w),
		Reasons:      reasons,
		Verdict:      Label(regimeOK, activationOK, sOK),
	}
}

// Regime checks range floor, slope ceiling and containment floor.
func (c *Classifier) Regime(s indicator.Set) (bool, []Reason) {
	g := c.cfg.Regime
	var reasons []Reason
	if s.RangePct < g.RangeMin {
		reasons = append(reasons, ReasonRange)
	}
	if s.SlopePct > g.SlopeMax {
		reasons = append(reasons, ReasonSlope)
	}
	if s.Containment < g.ContainMin {
		reasons = append(reasons, ReasonContain)
	}
	return len(reasons) == 0, reasons
}

// Activation checks containment, live volatility, touch count and alternations.
func (c *Classifier) Activation(s indicator.Set) (bool, []Reason) {
	g := c.cfg.Activation
	var reasons []Reason
	if s.Containment < g.ContainMin {
		reasons = append(reasons, ReasonContainActive)
	}
	if s.ATRPct < g.ATRMin {
		reasons = append(reasons, ReasonLowVol)
	}
	if s.Touch.Touches < g.TouchMin {
		reasons = append(reasons, ReasonTouch)
	}
	if s.Touch.Alternations < g.AltMin {
		reasons = append(reasons, ReasonAlt)
	}
	return len(reasons) == 0, reasons
}

// SPattern checks that touches alternate cleanly and evenly without drift.
func (c *Classifier) SPattern(s indicator.Set) (bool, []Reason) {
	g := c.cfg.SPattern
	var reasons []Reason
	if s.Touch.AltRatio < g.AltRatioMin {
		reasons = append(reasons, ReasonAltRatio)
	}
	if s.Touch.Balance > g.BalanceMax {
		reasons = append(reasons, ReasonImbalance)
	}
	if s.VolatilityCV > g.CVMax {
		reasons = append(reasons, ReasonNoisy)
	}
	if s.SlopePct > g.DriftMax {
		reasons = append(reasons, ReasonDriftS)
	}
	if s.Containment < g.ContainMin {
		reasons = append(reasons, ReasonContainS)
	}
	return len(reasons) == 0, reasons
}

// Score is a weighted linear combination of the raw indicators, with
// percentages expressed in percent units and counts taken as-is.
func (c *Classifier) Score(w Windows) float64 {
	k := c.cfg.Weights
	l, s, sp := w.Long, w.Short, w.SPattern

	score := k.LongRange*l.RangePct*100 +
		k.LongInside*l.Containment*100 +
		k.LongTouch*float64(l.Touch.Touches) +
		k.LongAlt*float64(l.Touch.Alternations) -
		k.LongSlope*l.SlopePct*100 +
		k.ShortATR*s.ATRPct*100 +
		k.ShortTouch*float64(s.Touch.Touches) +
		k.ShortAlt*float64(s.Touch.Alternations) +
		k.ShortInside*s.Containment*100 -
		k.ShortSlope*s.SlopePct*100

	// the CV sentinel would swamp every other term
	cv := math.Min(sp.VolatilityCV, 2)
	score += k.AltRatio*sp.Touch.AltRatio - k.Imbalance*sp.Touch.Balance - k.VolatilityCV*cv
	return score
}

// Label maps gate outcomes onto a verdict.
func Label(regimeOK, activationOK, sPatternOK bool) Verdict {
	switch {
	case !regimeOK:
		return VerdictRejected
	case activationOK && sPatternOK:
		return VerdictConfirmed
	case sPatternOK:
		return VerdictNearMiss
	default:
		return VerdictWatch
	}
}

// ReasonStrings converts tags for storage and display.
func ReasonStrings(reasons []Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
