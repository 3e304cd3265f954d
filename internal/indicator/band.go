package indicator

import (
	"math"
	"sort"
)

// Band is a quantile price band.
type Band struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// TouchStats describes how closes interact with the band edges.
type TouchStats struct {
	Top          int     `json:"top"`
	Bottom       int     `json:"bottom"`
	Touches      int     `json:"touches"`
	Alternations int     `json:"alternations"`
	AltRatio     float64 `json:"alt_ratio"` // alternations / max(touches-1, 1)
	Balance      float64 `json:"balance"`   // |top-bottom| / touches, 1 when there are no touches
}

// Quantile returns the q-quantile of an ascending slice using linear
// interpolation between order statistics. NaN for an empty slice.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	q = math.Min(math.Max(q, 0), 1)
	idx := q * float64(len(sorted)-1)
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func sortedCopy(values []float64) []float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	return s
}

// Median of values.
func Median(values []float64) float64 {
	return Quantile(sortedCopy(values), 0.5)
}

// NewBand computes the {qLow, median, qHigh} band of closes.
func NewBand(closes []float64, qLow, qHigh float64) Band {
	s := sortedCopy(closes)
	return Band{
		Low:  Quantile(s, qLow),
		Mid:  Quantile(s, 0.5),
		High: Quantile(s, qHigh),
	}
}

// Containment is the fraction of closes inside [Low, High].
func Containment(closes []float64, b Band) float64 {
	if len(closes) == 0 {
		return 0
	}
	inside := 0
	for _, c := range closes {
		if c >= b.Low && c <= b.High {
			inside++
		}
	}
	return float64(inside) / float64(len(closes))
}

// Touches classifies every close as a top touch, a bottom touch or neutral and
// counts side switches over the non-neutral sequence. A close within eps of
// both edges is neutral.
func Touches(closes []float64, b Band, eps float64) TouchStats {
	epsTop := b.High * (1 - eps)
	epsBot := b.Low * (1 + eps)

	var st TouchStats
	prev := 0
	for _, c := range closes {
		top := c >= epsTop
		bot := c <= epsBot
		side := 0
		switch {
		case top && !bot:
			side = 1
			st.Top++
		case bot && !top:
			side = -1
			st.Bottom++
		}
		if side == 0 {
			continue
		}
		if prev != 0 && side != prev {
			st.Alternations++
		}
		prev = side
	}

	st.Touches = st.Top + st.Bottom
	st.AltRatio = float64(st.Alternations) / float64(maxInt(st.Touches-1, 1))
	if st.Touches > 0 {
		st.Balance = math.Abs(float64(st.Top-st.Bottom)) / float64(st.Touches)
	} else {
		st.Balance = 1
	}
	return st
}

// RangePct is (max-min)/median.
func RangePct(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	lo, hi := minMax(closes)
	return (hi - lo) / math.Max(Median(closes), epsilon)
}

// DriftRatio is the net move over the window relative to its total range.
// Zero for a flat window.
func DriftRatio(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	lo, hi := minMax(closes)
	total := hi - lo
	if total <= 0 {
		return 0
	}
	return math.Abs(closes[len(closes)-1]-closes[0]) / total
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
