package indicator

import (
	"math"

	"grid-box-finder-go/internal/models"
)

// TrueRanges returns max(high-low, |high-prevClose|, |low-prevClose|) for every
// bar after the first.
func TrueRanges(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	prevClose := candles[0].Close
	for _, c := range candles[1:] {
		out = append(out, trueRange(c, prevClose))
		prevClose = c.Close
	}
	return out
}

func trueRange(c models.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ATR is the simple mean of the last period true ranges. It needs period+1
// bars and returns 0 otherwise.
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	trs := TrueRanges(candles)
	return mean(trs[len(trs)-period:])
}

// ATRPct is ATR as a fraction of the latest close.
func ATRPct(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	last := candles[len(candles)-1].Close
	if last <= 0 {
		return 0
	}
	return ATR(candles, period) / last
}

// StdDev is the sample standard deviation (n-1). Zero for fewer than two values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// VolatilitySpike reports whether the std of the last fast closes is at least
// mult times the std of the last slow closes.
func VolatilitySpike(closes []float64, fast, slow int, mult float64) bool {
	if fast <= 1 || slow <= 1 || len(closes) < maxInt(fast, slow) {
		return false
	}
	fastStd := StdDev(closes[len(closes)-fast:])
	slowStd := StdDev(closes[len(closes)-slow:])
	return slowStd > 0 && fastStd/slowStd >= mult
}

// VolatilityCV splits |Δclose| into contiguous chunks, averages each chunk and
// returns stdev(chunk means)/mean(chunk means). Fewer than three chunks, or a
// series that never moves, yields CVSentinel.
func VolatilityCV(closes []float64, chunk int) float64 {
	if chunk <= 0 || len(closes) < 2 {
		return CVSentinel
	}
	deltas := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		deltas = append(deltas, math.Abs(closes[i]-closes[i-1]))
	}
	n := len(deltas) / chunk
	if n < 3 {
		return CVSentinel
	}
	means := make([]float64, n)
	for i := 0; i < n; i++ {
		means[i] = mean(deltas[i*chunk : (i+1)*chunk])
	}
	m := mean(means)
	if m <= epsilon {
		return CVSentinel
	}
	return StdDev(means) / m
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
