// Package sizer turns an approved price band into a ladder of limit orders
// that satisfies the market's tick, step and minimum-notional rules with an
// equal quote allocation per level.
package sizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"grid-box-finder-go/internal/exchange"
	"grid-box-finder-go/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrInvalidParameters rejects a malformed band, level count or allocation.
	ErrInvalidParameters = errors.New("invalid grid parameters")
	// ErrSymbolNotFound is returned for markets the exchange does not list.
	ErrSymbolNotFound = exchange.ErrSymbolNotFound
)

// Request describes the band to size.
type Request struct {
	Symbol  string  `json:"symbol"`
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
	Levels  int     `json:"levels"`
	Capital float64 `json:"capital"`
	Reserve float64 `json:"reserve"` // fraction of capital kept out of the grid
	// Reference splits buys from sells. Zero means the band mid.
	Reference float64 `json:"reference"`
	SLSteps   int     `json:"sl_steps"`
}

// GridOrder is one rung of the ladder.
type GridOrder struct {
	LevelIndex int         `json:"level_index"`
	Side       models.Side `json:"side"`
	Price      float64     `json:"price"`
	Qty        float64     `json:"qty"`
	Notional   float64     `json:"notional"`
	TakeProfit float64     `json:"take_profit"`
}

// GridPlan is the sized ladder. Orders are sorted by LevelIndex and prices
// increase with it.
type GridPlan struct {
	Symbol           string          `json:"symbol"`
	Lower            float64         `json:"lower"`
	Upper            float64         `json:"upper"`
	Levels           int             `json:"levels"`
	StepAbs          float64         `json:"step_abs"`
	StepPct          float64         `json:"step_pct"`
	Mid              float64         `json:"mid"`
	Reference        float64         `json:"reference"`
	Capital          float64         `json:"capital"`
	Reserve          float64         `json:"reserve"`
	PerOrderQuote    float64         `json:"per_order_quote"`
	Orders           []GridOrder     `json:"orders"`
	TotalQuote       float64         `json:"total_quote"`
	ExtraQuoteNeeded float64         `json:"extra_quote_needed"`
	SLUpper          float64         `json:"sl_upper"`
	SLLower          float64         `json:"sl_lower"`
	Filters          ExchangeFilters `json:"filters"`
}

// Validate checks the request preconditions.
func (r Request) Validate() error {
	switch {
	case r.Levels < 2:
		return fmt.Errorf("levels must be >= 2, got %d: %w", r.Levels, ErrInvalidParameters)
	case !(r.Lower > 0) || !(r.Upper > r.Lower) || math.IsInf(r.Upper, 0):
		return fmt.Errorf("band must satisfy upper > lower > 0, got [%g, %g]: %w", r.Lower, r.Upper, ErrInvalidParameters)
	case !(r.Capital >= 0) || math.IsInf(r.Capital, 0):
		return fmt.Errorf("capital must be >= 0, got %g: %w", r.Capital, ErrInvalidParameters)
	case !(r.Reserve >= 0 && r.Reserve < 1):
		return fmt.Errorf("reserve must be in [0, 1), got %g: %w", r.Reserve, ErrInvalidParameters)
	case r.SLSteps < 0:
		return fmt.Errorf("sl steps must be >= 0, got %d: %w", r.SLSteps, ErrInvalidParameters)
	}
	return nil
}

// Build sizes req against filters. It is a pure function: identical inputs
// yield identical plans.
func Build(req Request, filters ExchangeFilters) (*GridPlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	stepAbs := (req.Upper - req.Lower) / float64(req.Levels-1)
	if filters.PriceTick > 0 && stepAbs < filters.PriceTick {
		return nil, fmt.Errorf("grid step %g is below the price tick %g: %w", stepAbs, filters.PriceTick, ErrInvalidParameters)
	}
	if filters.MinPrice > req.Upper {
		return nil, fmt.Errorf("min price %g is above the band upper %g: %w", filters.MinPrice, req.Upper, ErrInvalidParameters)
	}
	mid := (req.Upper + req.Lower) / 2
	ref := req.Reference
	if ref <= 0 {
		ref = mid
	}

	prices := make([]float64, req.Levels)
	active := 0
	for i := range prices {
		prices[i] = req.Lower + float64(i)*stepAbs
		if !atReference(prices[i], ref) {
			active++
		}
	}
	budget := req.Capital * (1 - req.Reserve)
	perOrder := budget / float64(maxInt(active, 1))

	plan := &GridPlan{
		Symbol:        req.Symbol,
		Lower:         req.Lower,
		Upper:         req.Upper,
		Levels:        req.Levels,
		StepAbs:       stepAbs,
		StepPct:       stepAbs / mid,
		Mid:           mid,
		Reference:     ref,
		Capital:       req.Capital,
		Reserve:       req.Reserve,
		PerOrderQuote: perOrder,
		Orders:        make([]GridOrder, 0, active),
		SLUpper:       req.Upper + float64(req.SLSteps)*stepAbs,
		SLLower:       math.Max(req.Lower-float64(req.SLSteps)*stepAbs, 0),
		Filters:       filters,
	}

	minQty := RoundStep(filters.MinQty, filters.QtyStep, RoundUp)
	last := 0.0
	for i, raw := range prices {
		if atReference(raw, ref) {
			continue
		}

		p := RoundStep(raw, filters.PriceTick, RoundDown)
		if p < req.Lower {
			// rounding down would leave the band
			p = RoundStep(raw, filters.PriceTick, RoundUp)
		}
		if filters.MinPrice > 0 {
			p = math.Max(p, filters.MinPrice)
		}
		// quantized lines must stay strictly increasing and off the reference
		if p <= last || atReference(p, ref) {
			continue
		}
		last = p
		side := models.Sell
		if p < ref {
			side = models.Buy
		}

		qty := RoundStep(perOrder/math.Max(p, 1e-12), filters.QtyStep, RoundDown)
		if filters.MinQty > 0 {
			qty = math.Max(qty, minQty)
		}
		n := notional(p, qty)

		if n < filters.MinNotional {
			bumped := RoundStep(filters.MinNotional/math.Max(p, 1e-12), filters.QtyStep, RoundUp)
			if bumped > qty {
				plan.ExtraQuoteNeeded += notional(p, bumped) - n
				qty = bumped
				n = notional(p, qty)
			}
		}

		var tpRaw float64
		if side == models.Buy {
			tpRaw = prices[minInt(i+1, req.Levels-1)]
		} else {
			tpRaw = prices[maxInt(i-1, 0)]
		}

		plan.Orders = append(plan.Orders, GridOrder{
			LevelIndex: i,
			Side:       side,
			Price:      p,
			Qty:        qty,
			Notional:   n,
			TakeProfit: RoundStep(tpRaw, filters.PriceTick, RoundDown),
		})
		plan.TotalQuote += n
	}
	return plan, nil
}

// atReference reports whether a grid line sits on the reference price.
func atReference(price, ref float64) bool {
	return math.Abs(price-ref) <= 1e-12*math.Max(math.Abs(ref), 1)
}

// FilterSource resolves the market record for a symbol.
type FilterSource interface {
	FetchSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error)
}

// Sizer builds plans with filters fetched from the exchange. Filters are
// cached per symbol; they are read-only for the life of the process.
type Sizer struct {
	source   FilterSource
	defaults ExchangeFilters
	logger   *zap.Logger

	mu    sync.RWMutex
	cache map[string]ExchangeFilters
}

// New creates a Sizer.
func New(source FilterSource, defaults ExchangeFilters, logger *zap.Logger) *Sizer {
	return &Sizer{
		source:   source,
		defaults: defaults,
		logger:   logger,
		cache:    make(map[string]ExchangeFilters),
	}
}

// Filters returns the quantization limits for symbol.
func (s *Sizer) Filters(ctx context.Context, symbol string) (ExchangeFilters, error) {
	s.mu.RLock()
	f, ok := s.cache[symbol]
	s.mu.RUnlock()
	if ok {
		return f, nil
	}

	info, err := s.source.FetchSymbolInfo(ctx, symbol)
	if err != nil {
		return ExchangeFilters{}, fmt.Errorf("fetch filters for %s: %w", symbol, err)
	}
	if info == nil {
		return ExchangeFilters{}, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	f = ExtractFilters(info, s.defaults)

	s.mu.Lock()
	s.cache[symbol] = f
	s.mu.Unlock()
	s.logger.Debug("market filters loaded",
		zap.String("symbol", symbol),
		zap.Float64("tick", f.PriceTick),
		zap.Float64("step", f.QtyStep),
		zap.Float64("minNotional", f.MinNotional))
	return f, nil
}

// Plan validates req, resolves filters and builds the plan.
func (s *Sizer) Plan(ctx context.Context, req Request) (*GridPlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f, err := s.Filters(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	plan, err := Build(req, f)
	if err != nil {
		return nil, err
	}
	if plan.ExtraQuoteNeeded > 0 {
		s.logger.Info("min notional forced larger orders",
			zap.String("symbol", req.Symbol),
			zap.Float64("extraQuote", plan.ExtraQuoteNeeded))
	}
	return plan, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
