// Package risk tracks open notional per symbol and realized daily P&L, and
// rejects new exposure that would cross the configured limits.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"grid-box-finder-go/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrRiskLimitExceeded rejects a single order or plan. Existing orders stay.
	ErrRiskLimitExceeded = errors.New("risk limit exceeded")
	// ErrDailyLossLimitBreached is terminal for the owning loop.
	ErrDailyLossLimitBreached = errors.New("daily loss limit breached")
)

const dayLayout = "2006-01-02"

// Limits bound exposure and loss.
type Limits struct {
	MaxOpenNotional   float64
	MaxSymbolExposure float64
	DailyMaxLoss      float64
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		MaxOpenNotional:   1000,
		MaxSymbolExposure: 500,
		DailyMaxLoss:      200,
	}
}

// LimitsFromConfig converts the config section.
func LimitsFromConfig(cfg models.RiskConfig) Limits {
	return Limits{
		MaxOpenNotional:   cfg.MaxOpenNotional,
		MaxSymbolExposure: cfg.MaxSymbolExposure,
		DailyMaxLoss:      cfg.DailyMaxLoss,
	}
}

// Gate is safe for concurrent use; fills may arrive from a stream goroutine.
type Gate struct {
	limits Limits
	logger *zap.Logger

	mu       sync.Mutex
	exposure map[string]float64
	dailyPnL float64
	day      string
}

// NewGate creates a gate with no exposure.
func NewGate(limits Limits, logger *zap.Logger) *Gate {
	return &Gate{
		limits:   limits,
		logger:   logger,
		exposure: make(map[string]float64),
	}
}

// CheckOrder reports whether adding notional for symbol stays within limits.
func (g *Gate) CheckOrder(symbol string, notional float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.check(symbol, g.exposure[symbol]+notional, g.openLocked()+notional)
}

// CheckPlan checks a whole plan added on top of the current exposure.
func (g *Gate) CheckPlan(symbol string, total float64) error {
	return g.CheckOrder(symbol, total)
}

// CheckReplacement checks a plan that replaces every open order of symbol.
func (g *Gate) CheckReplacement(symbol string, total float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	others := g.openLocked() - g.exposure[symbol]
	return g.check(symbol, total, others+total)
}

func (g *Gate) check(symbol string, symbolAfter, openAfter float64) error {
	if err := g.breachLocked(); err != nil {
		return err
	}
	if symbolAfter > g.limits.MaxSymbolExposure {
		return fmt.Errorf("%s exposure %.2f > %.2f: %w", symbol, symbolAfter, g.limits.MaxSymbolExposure, ErrRiskLimitExceeded)
	}
	if openAfter > g.limits.MaxOpenNotional {
		return fmt.Errorf("open notional %.2f > %.2f: %w", openAfter, g.limits.MaxOpenNotional, ErrRiskLimitExceeded)
	}
	return nil
}

// RegisterOrder records a placed order.
func (g *Gate) RegisterOrder(symbol string, notional float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exposure[symbol] += notional
}

// RegisterFill removes filled notional and books realized P&L.
func (g *Gate) RegisterFill(symbol string, notional, realizedPnL float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exposure[symbol] = math.Max(0, g.exposure[symbol]-notional)
	g.dailyPnL += realizedPnL
	if err := g.breachLocked(); err != nil {
		g.logger.Error("daily loss limit breached", zap.String("symbol", symbol), zap.Float64("dailyPnL", g.dailyPnL))
	}
}

// SetExposure overwrites the open notional of symbol with the exchange's view.
func (g *Gate) SetExposure(symbol string, notional float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if notional <= 0 {
		delete(g.exposure, symbol)
		return
	}
	g.exposure[symbol] = notional
}

// Release drops all exposure of symbol, after a cancel-all.
func (g *Gate) Release(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.exposure, symbol)
}

// Breach returns ErrDailyLossLimitBreached once realized loss reaches the limit.
func (g *Gate) Breach() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.breachLocked()
}

func (g *Gate) breachLocked() error {
	if g.dailyPnL <= -math.Abs(g.limits.DailyMaxLoss) {
		return fmt.Errorf("realized %.2f, limit %.2f: %w", g.dailyPnL, g.limits.DailyMaxLoss, ErrDailyLossLimitBreached)
	}
	return nil
}

// Exposure returns the open notional of symbol.
func (g *Gate) Exposure(symbol string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exposure[symbol]
}

// OpenNotional returns the aggregate open notional.
func (g *Gate) OpenNotional() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.openLocked()
}

func (g *Gate) openLocked() float64 {
	var total float64
	for _, v := range g.exposure {
		total += v
	}
	return total
}

// DailyPnL returns realized P&L for the current UTC day.
func (g *Gate) DailyPnL() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyPnL
}

// ResetDay clears realized P&L when now falls on a new UTC day.
func (g *Gate) ResetDay(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	day := now.UTC().Format(dayLayout)
	if g.day == day {
		return
	}
	if g.day == "" {
		// first observation adopts the day and keeps anything booked so far
		g.day = day
		return
	}
	g.logger.Info("new trading day, daily pnl reset", zap.String("day", day), zap.Float64("previous", g.dailyPnL))
	g.day = day
	g.dailyPnL = 0
}

// Snapshot returns a copy of the state for persistence.
func (g *Gate) Snapshot() models.RiskSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	exp := make(map[string]float64, len(g.exposure))
	for k, v := range g.exposure {
		exp[k] = v
	}
	return models.RiskSnapshot{SymbolExposure: exp, DailyRealizedPnL: g.dailyPnL, Day: g.day}
}

// Restore loads a persisted snapshot.
func (g *Gate) Restore(s models.RiskSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exposure = make(map[string]float64, len(s.SymbolExposure))
	for k, v := range s.SymbolExposure {
		g.exposure[k] = v
	}
	g.dailyPnL = s.DailyRealizedPnL
	g.day = s.Day
}
