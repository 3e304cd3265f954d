package retuner

import (
	"fmt"
	"math"

	"grid-box-finder-go/internal/indicator"
	"grid-box-finder-go/internal/models"
)

// Band is a price range recomputed from recent closes.
type Band struct {
	Lower float64
	Mid   float64
	Upper float64
}

// DynamicBand returns mean ± k·stddev over the last period closes. A lower
// edge at or below zero is replaced by 90% of the last close.
func DynamicBand(closes []float64, period int, k float64) (Band, error) {
	if len(closes) < 2 || period < 2 {
		return Band{}, fmt.Errorf("dynamic band needs 2 closes, got %d: %w", len(closes), indicator.ErrInsufficientData)
	}
	window := indicator.TailFloats(closes, period)
	var sum float64
	for _, c := range window {
		sum += c
	}
	mid := sum / float64(len(window))
	sd := indicator.StdDev(window)

	b := Band{Lower: mid - k*sd, Mid: mid, Upper: mid + k*sd}
	if b.Lower <= 0 {
		b.Lower = closes[len(closes)-1] * 0.9
	}
	return b, nil
}

// Width is the band width relative to its mid.
func (b Band) Width() float64 {
	if b.Mid <= 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Mid
}

// BandShift is the larger relative move of either edge between the placed
// band and a candidate band.
func BandShift(prev models.BandState, next Band) float64 {
	return math.Max(relMove(prev.Lower, next.Lower), relMove(prev.Upper, next.Upper))
}

func relMove(from, to float64) float64 {
	if from <= 0 {
		return math.Inf(1)
	}
	return math.Abs(to-from) / from
}
