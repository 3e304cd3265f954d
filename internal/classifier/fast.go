package classifier

import (
	"fmt"
	"math"

	"grid-box-finder-go/internal/indicator"
)

// FastResult is the fast-S diagnostic on a short-interval series: quick,
// regular mid-line cycles that keep reaching the edges of a wide range.
type FastResult struct {
	CrossesPerHour     float64 `json:"crosses_per_hour"`
	MedianCycleMinutes float64 `json:"median_cycle_minutes"`
	EdgeTouchesPerHour float64 `json:"edge_touches_per_hour"`
	Wide               bool    `json:"wide"`
	OK                 bool    `json:"ok"`
}

// EvaluateFast runs the fast-S tier. closes come from the fast interval
// (barMinutes each); rangePct is the range measured on the ping-pong window.
func (c *Classifier) EvaluateFast(closes []float64, barMinutes, rangePct float64) (FastResult, error) {
	g := c.cfg.Fast
	if len(closes) < g.MinBars {
		return FastResult{}, fmt.Errorf("fast tier needs %d bars, got %d: %w",
			g.MinBars, len(closes), indicator.ErrInsufficientData)
	}

	cross := indicator.CrossRate(closes, g.SMAPeriod, barMinutes)
	r := FastResult{
		CrossesPerHour:     cross.PerHour,
		MedianCycleMinutes: cross.MedianInterval,
		EdgeTouchesPerHour: indicator.TouchesPerHour(closes, g.EdgeQLow, g.EdgeQHigh, barMinutes),
		Wide:               rangePct >= g.WideMinRangePct,
	}
	cycleOK := !math.IsInf(r.MedianCycleMinutes, 1) &&
		r.MedianCycleMinutes >= g.CycleMinMinutes && r.MedianCycleMinutes <= g.CycleMaxMinutes
	r.OK = r.CrossesPerHour >= g.MinCrossesPerHour && cycleOK &&
		r.EdgeTouchesPerHour >= g.MinEdgeTouchesPerHour && r.Wide
	return r, nil
}
