package indicator

import "math"

var intervalMinutes = map[string]float64{
	"1m":  1,
	"3m":  3,
	"5m":  5,
	"15m": 15,
	"30m": 30,
	"1h":  60,
	"2h":  120,
	"4h":  240,
}

// IntervalMinutes converts a kline interval token into minutes. Unknown
// tokens are treated as 5m.
func IntervalMinutes(interval string) float64 {
	if m, ok := intervalMinutes[interval]; ok {
		return m
	}
	return 5
}

// BarsForHours is the number of bars needed to cover hours of the interval,
// plus two, clamped to [60, 1000].
func BarsForHours(interval string, hours float64) int {
	need := int(math.Ceil(hours*60/IntervalMinutes(interval))) + 2
	if need < 60 {
		return 60
	}
	if need > 1000 {
		return 1000
	}
	return need
}
