package indicator

import (
	"math"
	"sort"
)

// CrossStats summarises crossings of the close series over its moving average.
type CrossStats struct {
	Count          int     `json:"count"`
	CountRate      float64 `json:"count_rate"`      // crossings per hour after warm-up
	MedianInterval float64 `json:"median_interval"` // minutes, +Inf when fewer than two crossings
	PerHour        float64 `json:"per_hour"`        // max(CountRate, 60/MedianInterval)
}

// SMASeries returns the simple moving average at every bar; warm-up bars are NaN.
func SMASeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if period <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out
}

// crossIndexes returns the bar indexes where close-mid changes sign. A zero
// difference counts as a crossing; NaN mids are skipped.
func crossIndexes(closes, mid []float64) []int {
	var idx []int
	var prevDiff float64
	havePrev := false
	for i := 0; i < len(closes) && i < len(mid); i++ {
		if math.IsNaN(mid[i]) {
			continue
		}
		diff := closes[i] - mid[i]
		if havePrev {
			if diff == 0 || (diff > 0 && prevDiff < 0) || (diff < 0 && prevDiff > 0) {
				idx = append(idx, i)
			}
		}
		prevDiff = diff
		havePrev = true
	}
	return idx
}

// MidCrossCount counts crossings of closes over mid.
func MidCrossCount(closes, mid []float64) int {
	return len(crossIndexes(closes, mid))
}

// CrossRate measures how fast closes cycle around their period SMA. barMinutes
// is the candle interval; warm-up bars are excluded from the duration.
func CrossRate(closes []float64, period int, barMinutes float64) CrossStats {
	if barMinutes <= 0 {
		barMinutes = 1
	}
	idx := crossIndexes(closes, SMASeries(closes, period))

	warmup := maxInt(period-1, 0)
	effective := maxInt(len(closes)-warmup, 1)
	hours := math.Max(float64(effective)*barMinutes/60, 1e-6)

	st := CrossStats{
		Count:          len(idx),
		CountRate:      float64(len(idx)) / hours,
		MedianInterval: math.Inf(1),
	}
	st.PerHour = st.CountRate
	if len(idx) < 2 {
		return st
	}

	intervals := make([]int, 0, len(idx)-1)
	for i := 1; i < len(idx); i++ {
		intervals = append(intervals, idx[i]-idx[i-1])
	}
	sort.Ints(intervals)
	st.MedianInterval = float64(intervals[len(intervals)/2]) * barMinutes
	if st.MedianInterval > 0 {
		st.PerHour = math.Max(st.CountRate, 60/st.MedianInterval)
	}
	return st
}

// TouchesPerHour counts closes at or beyond the qLow/qHigh quantiles per hour.
func TouchesPerHour(closes []float64, qLow, qHigh, barMinutes float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	if barMinutes <= 0 {
		barMinutes = 1
	}
	s := sortedCopy(closes)
	lo, hi := Quantile(s, qLow), Quantile(s, qHigh)
	touches := 0
	for _, c := range closes {
		if c <= lo || c >= hi {
			touches++
		}
	}
	hours := math.Max(float64(len(closes))*barMinutes/60, 1e-6)
	return float64(touches) / hours
}
