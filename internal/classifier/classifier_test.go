package classifier

import (
	"testing"
	"time"

	"grid-box-finder-go/internal/indicator"
	"grid-box-finder-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candlesFromCloses(closes []float64, spread float64) []models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			OpenTime: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:     c,
			High:     c + spread,
			Low:      c - spread,
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

func TestRegimeGatePassesOnTightOscillation(t *testing.T) {
	c := New(DefaultConfig())
	candles := candlesFromCloses(repeat([]float64{100, 102, 98, 101, 99, 103, 97, 100}, 5), 0.5)

	w, err := c.Measure(candles, candles, 5)
	require.NoError(t, err)

	assert.Greater(t, w.Long.Containment, 0.8, "containment at 0.1/0.9 should exceed 0.8")
	assert.Less(t, w.Long.SlopePct, 0.002, "drift should be near zero")

	ok, reasons := c.Regime(w.Long)
	assert.True(t, ok, "regime gate should pass")
	assert.Empty(t, reasons)

	res := c.Evaluate(w)
	assert.True(t, res.RegimeOK)
	assert.NotEqual(t, VerdictRejected, res.Verdict)
	assert.NotContains(t, res.Reasons, ReasonRange)
	assert.NotContains(t, res.Reasons, ReasonSlope)
	assert.NotContains(t, res.Reasons, ReasonContain)
}

func TestRegimeGateRejectsTrend(t *testing.T) {
	c := New(DefaultConfig())
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	candles := candlesFromCloses(closes, 0.5)

	w, err := c.Measure(candles, candles, 5)
	require.NoError(t, err)

	res := c.Evaluate(w)
	assert.False(t, res.RegimeOK)
	assert.Contains(t, res.Reasons, ReasonSlope)
	assert.Equal(t, VerdictRejected, res.Verdict, "a symbol failing the regime gate is rejected regardless of score")
}

func TestMeasureInsufficientData(t *testing.T) {
	c := New(DefaultConfig())
	long := candlesFromCloses(repeat([]float64{100, 101}, 30), 0.5)
	short := candlesFromCloses([]float64{100, 101, 100}, 0.5)

	_, err := c.Measure(long, short, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)
}

func TestActivationReasons(t *testing.T) {
	c := New(DefaultConfig())

	ok, reasons := c.Activation(indicator.Set{})
	assert.False(t, ok)
	assert.ElementsMatch(t, []Reason{ReasonContainActive, ReasonLowVol, ReasonTouch, ReasonAlt}, reasons)

	ok, reasons = c.Activation(indicator.Set{
		Containment: 0.9,
		ATRPct:      0.01,
		Touch:       indicator.TouchStats{Touches: 12, Alternations: 8},
	})
	assert.True(t, ok)
	assert.Empty(t, reasons)
}

func TestSPatternReasons(t *testing.T) {
	c := New(DefaultConfig())

	clean := indicator.Set{
		Containment:  0.8,
		SlopePct:     0.001,
		VolatilityCV: 0.2,
		Touch:        indicator.TouchStats{AltRatio: 0.9, Balance: 0.1},
	}
	ok, reasons := c.SPattern(clean)
	assert.True(t, ok)
	assert.Empty(t, reasons)

	oneSided := clean
	oneSided.Touch = indicator.TouchStats{AltRatio: 0, Balance: 1}
	oneSided.VolatilityCV = indicator.CVSentinel
	ok, reasons = c.SPattern(oneSided)
	assert.False(t, ok)
	assert.ElementsMatch(t, []Reason{ReasonAltRatio, ReasonImbalance, ReasonNoisy}, reasons)
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name                   string
		regime, activation, sp bool
		want                   Verdict
	}{
		{"all pass", true, true, true, VerdictConfirmed},
		{"activation missing", true, false, true, VerdictNearMiss},
		{"regime only", true, false, false, VerdictWatch},
		{"regime and activation without S", true, true, false, VerdictWatch},
		{"regime fails", false, true, true, VerdictRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.regime, tt.activation, tt.sp))
		})
	}
}

func TestScoreRewardsContainmentAndPenalisesDrift(t *testing.T) {
	c := New(DefaultConfig())
	base := Windows{
		Long:     indicator.Set{RangePct: 0.1, Containment: 0.7, SlopePct: 0.002},
		Short:    indicator.Set{ATRPct: 0.01, Containment: 0.8},
		SPattern: indicator.Set{VolatilityCV: 0.3, Touch: indicator.TouchStats{AltRatio: 0.8, Balance: 0.1}},
	}

	tighter := base
	tighter.Long.Containment = 0.9
	assert.Greater(t, c.Score(tighter), c.Score(base))

	drifting := base
	drifting.Long.SlopePct = 0.02
	assert.Less(t, c.Score(drifting), c.Score(base))

	noisy := base
	noisy.SPattern.VolatilityCV = indicator.CVSentinel
	assert.InDelta(t, c.Score(base)-5*(2-0.3), c.Score(noisy), 1e-9, "the CV term is capped")
}

func TestSuggestBand(t *testing.T) {
	c := New(DefaultConfig())

	b := c.SuggestBand(100, 0.5)
	assert.InDelta(t, 98.5, b.Lower, 1e-9)
	assert.InDelta(t, 101.5, b.Upper, 1e-9)
	assert.Equal(t, 12, b.Levels)

	b = c.SuggestBand(100, 0.1)
	assert.InDelta(t, 99.0, b.Lower, 1e-9, "width is floored at 2%")
	assert.InDelta(t, 101.0, b.Upper, 1e-9)

	b = c.SuggestBand(100, 2)
	assert.InDelta(t, 97.0, b.Lower, 1e-9, "width is capped at 6%")

	cfg := DefaultConfig()
	cfg.Grid.MinKATR = 4
	b = New(cfg).SuggestBand(100, 2)
	assert.InDelta(t, 96.0, b.Lower, 1e-9, "the ATR floor widens past the cap")
	assert.InDelta(t, 104.0, b.Upper, 1e-9)

	b = c.SuggestBand(0, 1)
	assert.Equal(t, 0.0, b.Lower)
	assert.Equal(t, 0.0, b.Upper)
}

func pingPongConfig() Config {
	cfg := DefaultConfig()
	// odd window so the first and last close of an alternating series match
	cfg.PingPong.Window = 181
	return cfg
}

func TestPingPongPassesOnCleanAlternation(t *testing.T) {
	c := New(pingPongConfig())
	candles := candlesFromCloses(repeat([]float64{100, 102}, 100), 0.5)

	r, err := c.EvaluatePingPong(PingPongInput{Candles: candles, QuoteVolume: 2_000_000, ListingAgeDays: -1})
	require.NoError(t, err)

	assert.Equal(t, 102.0, r.Last)
	assert.InDelta(t, 2.5, r.ATRAbs, 1e-9)
	assert.InDelta(t, 2.0/102, r.RangePct, 1e-12)
	assert.Less(t, r.ADX, 13.0)
	assert.Equal(t, 180, r.MidCross)
	assert.Equal(t, 0.0, r.DriftRatio)
	assert.True(t, r.BaseOK)
	assert.True(t, r.AgeOK, "unknown listing age does not block")
	assert.True(t, r.OK)
	assert.Empty(t, r.Reasons)
	assert.Equal(t, 12, r.Band.Levels)
}

func TestPingPongReasons(t *testing.T) {
	c := New(pingPongConfig())
	candles := candlesFromCloses(repeat([]float64{100, 102}, 100), 0.5)

	r, err := c.EvaluatePingPong(PingPongInput{Candles: candles, QuoteVolume: 10, ListingAgeDays: 2})
	require.NoError(t, err)
	assert.False(t, r.BaseOK)
	assert.True(t, r.AgeOK, "listing age is only checked once the base filter passes")
	assert.Equal(t, []Reason{ReasonLowLiq}, r.Reasons)
	assert.False(t, r.OK)

	r, err = c.EvaluatePingPong(PingPongInput{Candles: candles, QuoteVolume: 2_000_000, ListingAgeDays: 2})
	require.NoError(t, err)
	assert.False(t, r.AgeOK)
	assert.Equal(t, []Reason{ReasonNew}, r.Reasons)
	assert.False(t, r.OK)

	rising := make([]float64, 200)
	for i := range rising {
		rising[i] = 100 + float64(i)*0.1
	}
	r, err = c.EvaluatePingPong(PingPongInput{Candles: candlesFromCloses(rising, 0.5), QuoteVolume: 2_000_000, ListingAgeDays: -1})
	require.NoError(t, err)
	assert.Contains(t, r.Reasons, ReasonTrend)
	assert.Contains(t, r.Reasons, ReasonMid)
	assert.Contains(t, r.Reasons, ReasonDrift)
	assert.False(t, r.OK)
}

func TestPingPongInsufficientData(t *testing.T) {
	c := New(DefaultConfig())
	_, err := c.EvaluatePingPong(PingPongInput{Candles: candlesFromCloses(repeat([]float64{100}, 59), 0.5)})
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)
}

func TestEvaluateFast(t *testing.T) {
	c := New(DefaultConfig())
	closes := repeat([]float64{100, 100, 100, 100, 100, 110, 110, 110, 110, 110}, 36)

	r, err := c.EvaluateFast(closes, 1, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, r.CrossesPerHour, 1e-9)
	assert.Equal(t, 5.0, r.MedianCycleMinutes)
	assert.InDelta(t, 60.0, r.EdgeTouchesPerHour, 1e-9)
	assert.True(t, r.Wide)
	assert.True(t, r.OK)

	r, err = c.EvaluateFast(closes, 1, 0.01)
	require.NoError(t, err)
	assert.False(t, r.Wide)
	assert.False(t, r.OK, "a narrow range fails the fast tier")

	_, err = c.EvaluateFast(closes[:100], 1, 0.05)
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)
}

func TestRank(t *testing.T) {
	pp := &PingPongResult{OK: true, ATRPct: 0.01, RangePct: 0.02}
	cands := []Candidate{
		{Symbol: "REJ", Result: Result{Verdict: VerdictRejected, Score: 500}},
		{Symbol: "WATCH", Result: Result{Verdict: VerdictWatch, Score: 90}},
		{Symbol: "NEAR", Result: Result{Verdict: VerdictNearMiss, Score: 10}},
		{Symbol: "CONF_B", Result: Result{Verdict: VerdictConfirmed, Score: 50}},
		{Symbol: "CONF_A", Result: Result{Verdict: VerdictConfirmed, Score: 50}},
		{Symbol: "CONF_PP", Result: Result{Verdict: VerdictConfirmed, Score: 1}, PingPong: pp},
		{Symbol: "CONF_HI", Result: Result{Verdict: VerdictConfirmed, Score: 80}},
	}
	Rank(cands)

	got := make([]string, len(cands))
	for i, c := range cands {
		got[i] = c.Symbol
	}
	assert.Equal(t, []string{"CONF_PP", "CONF_HI", "CONF_A", "CONF_B", "NEAR", "WATCH", "REJ"}, got)
}

func TestReasonStrings(t *testing.T) {
	assert.Equal(t, []string{"RANGE", "NOISY"}, ReasonStrings([]Reason{ReasonRange, ReasonNoisy}))
	assert.Empty(t, ReasonStrings(nil))
}
