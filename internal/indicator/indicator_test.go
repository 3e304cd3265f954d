package indicator

import (
	"math"
	"testing"
	"time"

	"grid-box-finder-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candlesFromCloses(closes []float64) []models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     c,
			High:     c * 1.001,
			Low:      c * 0.999,
			Close:    c,
		}
	}
	return out
}

func repeat(pattern []float64, times int) []float64 {
	out := make([]float64, 0, len(pattern)*times)
	for i := 0; i < times; i++ {
		out = append(out, pattern...)
	}
	return out
}

func tightOscillation() []float64 {
	return repeat([]float64{100, 102, 98, 101, 99, 103, 97, 100}, 5)
}

func TestQuantile(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, Quantile(s, 0), "q=0 should be the minimum")
	assert.Equal(t, 4.0, Quantile(s, 1), "q=1 should be the maximum")
	assert.InDelta(t, 2.5, Quantile(s, 0.5), 1e-12, "median should interpolate")
	assert.InDelta(t, 1.3, Quantile(s, 0.1), 1e-12, "q=0.1 should interpolate between order statistics")
	assert.Equal(t, 4.0, Quantile(s, 7), "q should be clamped to 1")
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)), "empty input should be NaN")
}

func TestBandOnTightOscillation(t *testing.T) {
	closes := tightOscillation()
	b := NewBand(closes, 0.1, 0.9)

	assert.Equal(t, 97.0, b.Low)
	assert.Equal(t, 103.0, b.High)
	assert.Equal(t, 100.0, b.Mid)
	assert.Greater(t, Containment(closes, b), 0.8, "containment should exceed 0.8")
	assert.Less(t, SlopePct(closes), 0.002, "drift should be near zero")
	assert.InDelta(t, 0.06, RangePct(closes), 1e-12)
}

func TestTouchesAlternatingSeries(t *testing.T) {
	closes := repeat([]float64{100, 110}, 20)
	b := NewBand(closes, 0.15, 0.85)
	st := Touches(closes, b, 0.0025)

	assert.Equal(t, 20, st.Top)
	assert.Equal(t, 20, st.Bottom)
	assert.Equal(t, 40, st.Touches)
	assert.Equal(t, 39, st.Alternations)
	assert.Equal(t, 1.0, st.AltRatio, "strict alternation should give ratio 1")
	assert.Equal(t, 0.0, st.Balance, "equal top and bottom touches should be balanced")
}

func TestTouchesOneSided(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 110, 110, 110}
	b := Band{Low: 90, Mid: 100, High: 110}
	st := Touches(closes, b, 0.0025)

	assert.Equal(t, 3, st.Top)
	assert.Equal(t, 0, st.Bottom)
	assert.Equal(t, 0, st.Alternations)
	assert.Equal(t, 0.0, st.AltRatio)
	assert.Equal(t, 1.0, st.Balance)
}

func TestTouchesFlatSeriesIsNeutral(t *testing.T) {
	closes := repeat([]float64{100}, 30)
	b := NewBand(closes, 0.1, 0.9)
	st := Touches(closes, b, 0.0025)

	assert.Equal(t, 0, st.Touches, "a close touching both edges is neutral")
	assert.Equal(t, 0.0, st.AltRatio)
	assert.Equal(t, 1.0, st.Balance, "no touches should report the one-sided sentinel")
}

func TestATR(t *testing.T) {
	candles := make([]models.Candle, 20)
	for i := range candles {
		candles[i] = models.Candle{Open: 100, High: 101, Low: 99, Close: 100}
	}

	assert.InDelta(t, 2.0, ATR(candles, 14), 1e-12)
	assert.InDelta(t, 0.02, ATRPct(candles, 14), 1e-12)
	assert.Equal(t, 0.0, ATR(candles[:14], 14), "fewer than period+1 bars should return 0")
	assert.Equal(t, 0.0, ATRPct(nil, 14))
}

func TestTrueRangeUsesPreviousClose(t *testing.T) {
	candles := []models.Candle{
		{High: 10, Low: 9, Close: 9.5},
		{High: 12, Low: 11, Close: 11.5},
	}
	trs := TrueRanges(candles)
	require.Len(t, trs, 1)
	assert.InDelta(t, 2.5, trs[0], 1e-12, "gap up should measure from the previous close")
}

func TestADXSentinelOnShortHistory(t *testing.T) {
	short := candlesFromCloses(repeat([]float64{100, 101}, 5))
	assert.Equal(t, ADXSentinel, ADX(short, 14), "too few bars must read as trending")

	// enough bars for DI but not for period DX values
	medium := candlesFromCloses(repeat([]float64{100, 101}, 10))
	assert.Equal(t, ADXSentinel, ADX(medium, 14))
}

func TestADXTrendVersusRange(t *testing.T) {
	rising := make([]models.Candle, 60)
	for i := range rising {
		p := 100 + float64(i)
		rising[i] = models.Candle{Open: p, High: p + 1, Low: p, Close: p + 0.5}
	}
	assert.InDelta(t, 100.0, ADX(rising, 14), 1e-9, "a one-directional series should be fully trending")

	ranging := make([]models.Candle, 60)
	for i := range ranging {
		if i%2 == 0 {
			ranging[i] = models.Candle{Open: 100, High: 101, Low: 99, Close: 100}
		} else {
			ranging[i] = models.Candle{Open: 101, High: 102, Low: 100, Close: 101}
		}
	}
	assert.Less(t, ADX(ranging, 14), 20.0, "a back-and-forth series should not read as trending")
}

func TestVolatilitySpike(t *testing.T) {
	closes := repeat([]float64{100, 100.1}, 50)
	closes = append(closes, repeat([]float64{95, 105}, 10)...)
	require.Len(t, closes, 120)

	assert.True(t, VolatilitySpike(closes, 20, 120, 2.0))
	assert.False(t, VolatilitySpike(closes[:100], 20, 120, 2.0), "too few bars should not flag a spike")
	assert.False(t, VolatilitySpike(repeat([]float64{100, 100.1}, 60), 20, 120, 2.0))
}

func TestVolatilityCV(t *testing.T) {
	assert.InDelta(t, 0.0, VolatilityCV(repeat([]float64{100, 110}, 40), 20), 1e-12, "constant swings have no dispersion")
	assert.Equal(t, CVSentinel, VolatilityCV(repeat([]float64{100, 110}, 20), 20), "fewer than three chunks")
	assert.Equal(t, CVSentinel, VolatilityCV(repeat([]float64{100}, 100), 20), "a frozen series is not judged")
}

func TestCrossRateOnAlternatingSeries(t *testing.T) {
	closes := repeat([]float64{100, 110}, 60)
	st := CrossRate(closes, 20, 1)

	assert.Equal(t, 100, st.Count)
	assert.Equal(t, 1.0, st.MedianInterval)
	assert.InDelta(t, 100/(101.0/60), st.CountRate, 1e-9)
	assert.InDelta(t, 60.0, st.PerHour, 1e-9, "median interval rate should win")
}

func TestCrossRateWithoutCrossings(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	st := CrossRate(closes, 20, 1)

	assert.Equal(t, 0, st.Count)
	assert.True(t, math.IsInf(st.MedianInterval, 1))
	assert.Equal(t, 0.0, st.PerHour)
}

func TestMidCrossCountZeroDiffCounts(t *testing.T) {
	closes := []float64{1, 3, 2, 1, 3}
	mid := []float64{math.NaN(), 2, 2, 2, 2}
	assert.Equal(t, 2, MidCrossCount(closes, mid), "touching the mid line counts as a crossing")
}

func TestTouchesPerHour(t *testing.T) {
	closes := repeat([]float64{100, 105, 110, 105}, 30)
	got := TouchesPerHour(closes, 0.2, 0.8, 1)
	assert.InDelta(t, 30.0, got, 1e-9, "half the bars sit on an edge")
	assert.Equal(t, 0.0, TouchesPerHour(nil, 0.2, 0.8, 1))
}

func TestDriftRatio(t *testing.T) {
	assert.InDelta(t, 5.0/30, DriftRatio([]float64{100, 110, 120, 90, 105}), 1e-12)
	assert.Equal(t, 0.0, DriftRatio([]float64{100, 100, 100}))
	assert.Equal(t, 0.0, DriftRatio([]float64{100}))
}

func TestBarsForHours(t *testing.T) {
	assert.Equal(t, 1000, BarsForHours("5m", 96), "should clamp to 1000")
	assert.Equal(t, 60, BarsForHours("5m", 3), "should clamp to 60")
	assert.Equal(t, 98, BarsForHours("1h", 96))
	assert.Equal(t, 194, BarsForHours("15m", 48))
	assert.Equal(t, BarsForHours("5m", 24), BarsForHours("weird", 24), "unknown interval falls back to 5m")
}

func TestComputeRejectsShortWindow(t *testing.T) {
	_, err := Compute(candlesFromCloses([]float64{1, 2, 3}), DefaultWindowParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestComputeTightOscillation(t *testing.T) {
	p := DefaultWindowParams()
	p.QLow, p.QHigh = 0.1, 0.9
	s, err := Compute(candlesFromCloses(tightOscillation()), p)
	require.NoError(t, err)

	assert.Equal(t, 40, s.Bars)
	assert.Equal(t, 100.0, s.Last)
	assert.Greater(t, s.Containment, 0.8)
	assert.Less(t, s.SlopePct, 0.002)
	assert.Greater(t, s.ATRPct, 0.0)
	assert.Equal(t, 0.0, s.DriftRatio)
	assert.GreaterOrEqual(t, s.Touch.AltRatio, 0.0)
	assert.LessOrEqual(t, s.Touch.AltRatio, 1.0)
}
