package sizer

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"grid-box-finder-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func scenarioFilters() ExchangeFilters {
	return ExchangeFilters{PriceTick: 0.1, QtyStep: 0.01, MinNotional: 5}
}

func aligned(v, step float64) bool {
	n := v / step
	return math.Abs(n-math.Round(n)) < 1e-6
}

func TestBuildReferenceScenario(t *testing.T) {
	plan, err := Build(Request{
		Symbol:    "TESTUSDT",
		Lower:     100,
		Upper:     110,
		Levels:    3,
		Capital:   300,
		Reserve:   0,
		Reference: 105,
		SLSteps:   2,
	}, scenarioFilters())
	require.NoError(t, err)

	require.Len(t, plan.Orders, 2, "the level at the reference price is skipped")
	assert.Equal(t, 150.0, plan.PerOrderQuote)

	buy := plan.Orders[0]
	assert.Equal(t, 0, buy.LevelIndex)
	assert.Equal(t, models.Buy, buy.Side)
	assert.Equal(t, 100.0, buy.Price)
	assert.Equal(t, 1.5, buy.Qty)
	assert.Equal(t, 150.0, buy.Notional)
	assert.Equal(t, 105.0, buy.TakeProfit)

	sell := plan.Orders[1]
	assert.Equal(t, 2, sell.LevelIndex)
	assert.Equal(t, models.Sell, sell.Side)
	assert.Equal(t, 110.0, sell.Price)
	assert.Equal(t, 1.36, sell.Qty)
	assert.InDelta(t, 149.6, sell.Notional, 1e-9)
	assert.Equal(t, 105.0, sell.TakeProfit)

	assert.InDelta(t, 299.6, plan.TotalQuote, 1e-9)
	assert.Equal(t, 0.0, plan.ExtraQuoteNeeded)
	assert.Equal(t, 5.0, plan.StepAbs)
	assert.Equal(t, 105.0, plan.Mid)
	assert.Equal(t, 120.0, plan.SLUpper)
	assert.Equal(t, 90.0, plan.SLLower)
}

func TestBuildIsIdempotent(t *testing.T) {
	req := Request{Symbol: "X", Lower: 1.234, Upper: 1.567, Levels: 9, Capital: 250, Reserve: 0.05, Reference: 1.4, SLSteps: 1}
	f := ExchangeFilters{PriceTick: 0.001, QtyStep: 1, MinNotional: 5}

	a, err := Build(req, f)
	require.NoError(t, err)
	b, err := Build(req, f)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildMinNotionalBump(t *testing.T) {
	plan, err := Build(Request{Lower: 100, Upper: 110, Levels: 5, Capital: 10}, scenarioFilters())
	require.NoError(t, err)

	require.Len(t, plan.Orders, 4, "the mid line is skipped when no reference is given")
	assert.Equal(t, 2.5, plan.PerOrderQuote)
	for _, o := range plan.Orders {
		assert.GreaterOrEqual(t, o.Notional, 5.0, "level %d should be bumped to min notional", o.LevelIndex)
		assert.True(t, aligned(o.Qty, 0.01), "qty %v should stay on the step", o.Qty)
	}
	assert.Greater(t, plan.ExtraQuoteNeeded, 0.0)
	assert.GreaterOrEqual(t, plan.TotalQuote, 10.0, "up-rounding can only add to the baseline")
}

func TestBuildProperties(t *testing.T) {
	cases := []struct {
		name    string
		req     Request
		filters ExchangeFilters
	}{
		{"btc like", Request{Lower: 114000, Upper: 116000, Levels: 12, Capital: 2000, Reserve: 0.05, Reference: 115003}, ExchangeFilters{PriceTick: 0.1, QtyStep: 0.001, MinNotional: 100}},
		{"alt coin", Request{Lower: 0.5123, Upper: 0.5789, Levels: 20, Capital: 500, Reserve: 0.1}, ExchangeFilters{PriceTick: 0.0001, QtyStep: 1, MinNotional: 5}},
		{"two levels", Request{Lower: 10, Upper: 12, Levels: 2, Capital: 100, Reference: 11}, ExchangeFilters{PriceTick: 0.01, QtyStep: 0.1, MinNotional: 5}},
		{"unaligned band", Request{Lower: 100.05, Upper: 103.37, Levels: 7, Capital: 700, Reference: 101.9}, ExchangeFilters{PriceTick: 0.1, QtyStep: 0.01, MinNotional: 5}},
		{"tiny capital", Request{Lower: 1, Upper: 2, Levels: 6, Capital: 3, Reference: 1.55}, ExchangeFilters{PriceTick: 0.01, QtyStep: 0.5, MinNotional: 5, MinQty: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Build(tc.req, tc.filters)
			require.NoError(t, err)

			assert.LessOrEqual(t, len(plan.Orders), tc.req.Levels)
			assert.GreaterOrEqual(t, len(plan.Orders), tc.req.Levels-1)

			var sum float64
			var maxPrice float64
			prev := -1.0
			for _, o := range plan.Orders {
				assert.GreaterOrEqual(t, o.Price, tc.req.Lower)
				assert.LessOrEqual(t, o.Price, tc.req.Upper)
				assert.Greater(t, o.Price, prev, "prices should increase with the level index")
				prev = o.Price
				assert.True(t, aligned(o.Price, tc.filters.PriceTick), "price %v should be tick aligned", o.Price)
				assert.True(t, aligned(o.Qty, tc.filters.QtyStep), "qty %v should be step aligned", o.Qty)
				assert.GreaterOrEqual(t, o.Qty, 0.0)
				assert.GreaterOrEqual(t, o.Notional, tc.filters.MinNotional-1e-9)
				sum += o.Notional
				maxPrice = math.Max(maxPrice, o.Price)
			}
			assert.InDelta(t, plan.TotalQuote, sum, 1e-6)

			baseline := tc.req.Capital * (1 - tc.req.Reserve)
			if plan.ExtraQuoteNeeded > 0 {
				assert.GreaterOrEqual(t, plan.TotalQuote+1e-9, baseline-float64(len(plan.Orders))*tc.filters.QtyStep*maxPrice)
			} else {
				// each level can lose at most one qty step to down-rounding
				slack := float64(len(plan.Orders)) * tc.filters.QtyStep * maxPrice
				assert.InDelta(t, baseline, plan.TotalQuote, slack+1e-9)
			}
		})
	}
}

func TestBuildRejectsInvalidParameters(t *testing.T) {
	f := scenarioFilters()
	bad := []Request{
		{Lower: 100, Upper: 110, Levels: 1, Capital: 100},
		{Lower: 110, Upper: 100, Levels: 3, Capital: 100},
		{Lower: 100, Upper: 100, Levels: 3, Capital: 100},
		{Lower: 0, Upper: 100, Levels: 3, Capital: 100},
		{Lower: 100, Upper: 110, Levels: 3, Capital: -1},
		{Lower: 100, Upper: 110, Levels: 3, Capital: 100, Reserve: 1},
		{Lower: math.NaN(), Upper: 110, Levels: 3, Capital: 100},
	}
	for _, req := range bad {
		_, err := Build(req, f)
		assert.ErrorIs(t, err, ErrInvalidParameters, "request %+v should be rejected", req)
	}
}

func TestBuildRejectsStepBelowTick(t *testing.T) {
	// six lines inside half a tick would all collapse onto 100
	_, err := Build(Request{Lower: 100, Upper: 100.05, Levels: 6, Capital: 300, Reference: 100.025}, scenarioFilters())
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestBuildRejectsMinPriceAboveBand(t *testing.T) {
	f := scenarioFilters()
	f.MinPrice = 120
	_, err := Build(Request{Lower: 100, Upper: 110, Levels: 3, Capital: 300}, f)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestBuildSidesFollowQuantizedPrices(t *testing.T) {
	// level 0 rounds up to 100.2 and level 1 rounds down onto it
	plan, err := Build(Request{Lower: 100.03, Upper: 100.63, Levels: 3, Capital: 300, Reference: 100.3}, ExchangeFilters{PriceTick: 0.2, QtyStep: 0.01, MinNotional: 5})
	require.NoError(t, err)
	require.Len(t, plan.Orders, 2)

	prev := 0.0
	for _, o := range plan.Orders {
		assert.Greater(t, o.Price, prev, "level %d", o.LevelIndex)
		prev = o.Price
		assert.GreaterOrEqual(t, o.Price, 100.03)
		assert.LessOrEqual(t, o.Price, 100.63)
		if o.Side == models.Buy {
			assert.Less(t, o.Price, 100.3, "buy at level %d would cross the reference", o.LevelIndex)
		} else {
			assert.Greater(t, o.Price, 100.3, "sell at level %d would cross the reference", o.LevelIndex)
		}
	}
	assert.Equal(t, models.Buy, plan.Orders[0].Side)
	assert.InDelta(t, 100.2, plan.Orders[0].Price, 1e-9)
	assert.Equal(t, 2, plan.Orders[1].LevelIndex)
	assert.InDelta(t, 100.6, plan.Orders[1].Price, 1e-9)
}

func TestRoundStep(t *testing.T) {
	assert.Equal(t, 110.0, RoundStep(110, 0.1, RoundDown))
	assert.Equal(t, 0.3, RoundStep(0.3, 0.1, RoundDown), "values on the grid must not drop a step")
	assert.Equal(t, 1.36, RoundStep(150.0/110, 0.01, RoundDown))
	assert.Equal(t, 0.05, RoundStep(0.04995, 0.01, RoundUp))
	assert.Equal(t, 0.05, RoundStep(0.05, 0.01, RoundUp), "values on the grid must not gain a step")
	assert.Equal(t, 1.24, RoundStep(1.236, 0.01, RoundNearest))
	assert.Equal(t, 7.77, RoundStep(7.77, 0, RoundDown))
}

func TestExtractFilters(t *testing.T) {
	info := &models.SymbolInfo{
		Symbol: "BTCUSDT",
		Filters: []models.Filter{
			{FilterType: "PRICE_FILTER", TickSize: "0.10", MinPrice: "556.80"},
			{FilterType: "LOT_SIZE", StepSize: "0.001", MinQty: "0.001"},
			{FilterType: "MARKET_LOT_SIZE", StepSize: "0.01", MinQty: "0.01"},
			{FilterType: "MIN_NOTIONAL", Notional: "100"},
		},
	}
	f := ExtractFilters(info, DefaultFilters())
	assert.Equal(t, ExchangeFilters{PriceTick: 0.1, QtyStep: 0.001, MinNotional: 100, MinQty: 0.001, MinPrice: 556.8}, f)

	byPrecision := ExtractFilters(&models.SymbolInfo{PricePrecision: 2, QuantityPrecision: 3}, DefaultFilters())
	assert.InDelta(t, 0.01, byPrecision.PriceTick, 1e-15)
	assert.InDelta(t, 0.001, byPrecision.QtyStep, 1e-15)
	assert.Equal(t, 5.0, byPrecision.MinNotional)

	assert.Equal(t, DefaultFilters(), ExtractFilters(&models.SymbolInfo{Filters: []models.Filter{{FilterType: "PRICE_FILTER", TickSize: "0"}}}, DefaultFilters()))
	assert.Equal(t, DefaultFilters(), ExtractFilters(nil, DefaultFilters()))
}

func TestFiltersFromConfig(t *testing.T) {
	f := FiltersFromConfig(models.SizerConfig{DefaultPriceTick: 0.01})
	assert.Equal(t, 0.01, f.PriceTick)
	assert.Equal(t, 0.0001, f.QtyStep)
	assert.Equal(t, 5.0, f.MinNotional)
}

type mockFilterSource struct {
	mu    sync.Mutex
	infos map[string]*models.SymbolInfo
	calls int
}

func (m *mockFilterSource) FetchSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	info, ok := m.infos[symbol]
	if !ok {
		return nil, ErrSymbolNotFound
	}
	return info, nil
}

func TestSizerPlan(t *testing.T) {
	src := &mockFilterSource{infos: map[string]*models.SymbolInfo{
		"TESTUSDT": {
			Symbol: "TESTUSDT",
			Filters: []models.Filter{
				{FilterType: "PRICE_FILTER", TickSize: "0.1"},
				{FilterType: "LOT_SIZE", StepSize: "0.01"},
				{FilterType: "MIN_NOTIONAL", MinNotional: "5"},
			},
		},
	}}
	s := New(src, DefaultFilters(), zap.NewNop())

	req := Request{Symbol: "TESTUSDT", Lower: 100, Upper: 110, Levels: 3, Capital: 300, Reference: 105}
	plan, err := s.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, plan.Orders, 2)
	assert.Equal(t, scenarioFilters(), plan.Filters)

	_, err = s.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "filters should be cached per symbol")

	req.Symbol = "NOPEUSDT"
	_, err = s.Plan(context.Background(), req)
	assert.True(t, errors.Is(err, ErrSymbolNotFound), "unknown symbols should surface ErrSymbolNotFound")

	req.Symbol = "TESTUSDT"
	req.Levels = 1
	_, err = s.Plan(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}
