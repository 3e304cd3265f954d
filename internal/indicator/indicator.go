// Package indicator turns an ordered candle series into the range, volatility
// and oscillation statistics used by the classifier and the retuner.
//
// Every function is pure. Degenerate inputs (zero denominators, empty or short
// windows) resolve to documented sentinel values instead of errors, so callers
// only need to enforce a minimum window length.
package indicator

import (
	"errors"
	"fmt"

	"grid-box-finder-go/internal/models"
)

// ErrInsufficientData is returned when a window is shorter than its minimum viable length.
var ErrInsufficientData = errors.New("insufficient data")

const (
	// ADXSentinel is reported when there is not enough history for ADX.
	// It reads as "strong trend" so grid gates fail closed.
	ADXSentinel = 100.0

	// CVSentinel is reported when there are too few chunks to judge dispersion.
	CVSentinel = 1e9

	// MinBars is the default minimum window length accepted by Compute.
	MinBars = 20

	epsilon = 1e-12
)

// WindowParams configures how a single analysis window is measured.
type WindowParams struct {
	QLow       float64
	QHigh      float64
	Eps        float64 // edge-touch tolerance as a fraction of the band edge
	ATRPeriod  int
	ADXPeriod  int
	SMAPeriod  int
	CVChunk    int
	BarMinutes float64
	MinBars    int
}

// DefaultWindowParams mirrors the activation window of the scanner.
func DefaultWindowParams() WindowParams {
	return WindowParams{
		QLow:       0.15,
		QHigh:      0.85,
		Eps:        0.0025,
		ATRPeriod:  14,
		ADXPeriod:  14,
		SMAPeriod:  20,
		CVChunk:    20,
		BarMinutes: 5,
		MinBars:    MinBars,
	}
}

// Set holds every statistic computed for one window.
type Set struct {
	Bars         int
	Last         float64
	ATR          float64
	ATRPct       float64
	SlopePct     float64
	Band         Band
	RangePct     float64
	Containment  float64
	Touch        TouchStats
	VolatilityCV float64
	ADX          float64
	Cross        CrossStats
	DriftRatio   float64
}

// Compute measures a full Set over candles.
func Compute(candles []models.Candle, p WindowParams) (Set, error) {
	minBars := p.MinBars
	if minBars <= 0 {
		minBars = MinBars
	}
	if len(candles) < minBars {
		return Set{}, fmt.Errorf("window has %d bars, need %d: %w", len(candles), minBars, ErrInsufficientData)
	}

	closes := Closes(candles)
	band := NewBand(closes, p.QLow, p.QHigh)
	atr := ATR(candles, p.ATRPeriod)
	last := closes[len(closes)-1]

	s := Set{
		Bars:         len(candles),
		Last:         last,
		ATR:          atr,
		ATRPct:       ATRPct(candles, p.ATRPeriod),
		SlopePct:     SlopePct(closes),
		Band:         band,
		RangePct:     RangePct(closes),
		Containment:  Containment(closes, band),
		Touch:        Touches(closes, band, p.Eps),
		VolatilityCV: VolatilityCV(closes, p.CVChunk),
		ADX:          ADX(candles, p.ADXPeriod),
		Cross:        CrossRate(closes, p.SMAPeriod, p.BarMinutes),
		DriftRatio:   DriftRatio(closes),
	}
	return s, nil
}

// Closes extracts the close prices of candles.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Tail returns the last n candles, or all of them when n exceeds the length.
func Tail(candles []models.Candle, n int) []models.Candle {
	if n <= 0 || n >= len(candles) {
		return candles
	}
	return candles[len(candles)-n:]
}

// TailFloats is Tail for plain series.
func TailFloats(values []float64, n int) []float64 {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}
