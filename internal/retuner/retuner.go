// Package retuner runs the guarded control loop for one symbol: it polls
// candles, pauses on strong trends or volatility spikes, and otherwise keeps a
// sized grid around a band recomputed from recent closes.
package retuner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grid-box-finder-go/internal/exchange"
	"grid-box-finder-go/internal/indicator"
	"grid-box-finder-go/internal/metrics"
	"grid-box-finder-go/internal/models"
	"grid-box-finder-go/internal/risk"
	"grid-box-finder-go/internal/sizer"

	"go.uber.org/zap"
)

// StateVersion is written into every persisted RetunerState.
const StateVersion = 1

// Action is what one Step did.
type Action string

const (
	ActionSkipped  Action = "skipped"  // fetch or sizing failed, nothing changed
	ActionPaused   Action = "paused"   // guard active, orders cancelled
	ActionIdle     Action = "idle"     // market not suitable for a grid
	ActionHeld     Action = "held"     // existing orders kept
	ActionRejected Action = "rejected" // plan refused by the risk gate
	ActionPlaced   Action = "placed"
	ActionHalted   Action = "halted"
)

// Config drives one loop.
type Config struct {
	Symbol       string
	Interval     string
	Limit        int
	GuardWindow  int
	ADXPeriod    int
	Guard        GuardConfig
	Mode         ModeConfig
	BandPeriod   int
	BandK        float64
	MinBandShift float64
	RetuneEvery  time.Duration
	Sleep        time.Duration
	RunFor       time.Duration // zero runs until cancelled
	MaxCycles    int           // zero runs until cancelled

	Levels  int
	Capital float64
	Reserve float64
	SLSteps int
}

// DefaultConfig returns the stock loop settings for symbol.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:       symbol,
		Interval:     "1m",
		Limit:        360,
		GuardWindow:  120,
		ADXPeriod:    14,
		Guard:        DefaultGuardConfig(),
		Mode:         DefaultModeConfig(),
		BandPeriod:   20,
		BandK:        2,
		MinBandShift: 0.002,
		RetuneEvery:  120 * time.Second,
		Sleep:        10 * time.Second,
		Levels:       16,
		Capital:      200,
		SLSteps:      1,
	}
}

// ConfigFromModels maps the config file sections onto a loop Config.
func ConfigFromModels(rc models.RetunerConfig, sc models.SizerConfig) Config {
	g := NewGuardConfig(rc.ADXLimitHi)
	if rc.ADXLimitLo > 0 {
		g.ADXLo = rc.ADXLimitLo
	}
	g.Cooldown = time.Duration(rc.GuardCooldownSec) * time.Second
	g.ConsecN = rc.GuardConsecN
	g.SpikeFast = rc.SpikeFast
	g.SpikeSlow = rc.SpikeSlow
	g.SpikeMult = rc.SpikeMult

	return Config{
		Symbol:       rc.Symbol,
		Interval:     rc.Interval,
		Limit:        rc.Limit,
		GuardWindow:  rc.GuardWindow,
		ADXPeriod:    rc.ADXPeriod,
		Guard:        g,
		Mode:         ModeConfig{ADXLimit: rc.ModeADXLimit, CrossMin: rc.ModeCrossMin, TouchMin: rc.ModeTouchMin},
		BandPeriod:   rc.BandPeriod,
		BandK:        rc.BandK,
		MinBandShift: rc.MinBandShift,
		RetuneEvery:  time.Duration(rc.RetuneSec) * time.Second,
		Sleep:        time.Duration(rc.SleepSec) * time.Second,
		RunFor:       time.Duration(rc.RunSeconds) * time.Second,
		MaxCycles:    rc.RunCycles,
		Levels:       sc.Levels,
		Capital:      sc.Capital,
		Reserve:      sc.Reserve,
		SLSteps:      sc.SLSteps,
	}
}

// CandleSource is the market data the loop polls.
type CandleSource interface {
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
}

// Planner sizes a band into orders.
type Planner interface {
	Plan(ctx context.Context, req sizer.Request) (*sizer.GridPlan, error)
}

// StatePublisher receives state snapshots and fills for persistence.
type StatePublisher interface {
	Publish(state *models.RetunerState)
	RecordFill(fill models.Fill)
}

// Deps are the collaborators of a Retuner. Publisher may be nil.
type Deps struct {
	Market    CandleSource
	Orders    exchange.OrderExecutor
	Planner   Planner
	Gate      *risk.Gate
	Publisher StatePublisher
	Logger    *zap.Logger
}

// StepResult describes one iteration.
type StepResult struct {
	Action   Action
	Decision Decision
	Mode     Mode
	Band     *Band
	Plan     *sizer.GridPlan
	Placed   int
	Failed   int
}

// Retuner is a single-symbol loop. Step and Run must not be called concurrently.
type Retuner struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	guard  *Guard
	state  models.RetunerState

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a loop, resuming guard, band and risk state from initial when it
// belongs to the same symbol.
func New(cfg Config, deps Deps, initial *models.RetunerState) (*Retuner, error) {
	if cfg.Symbol == "" {
		return nil, errors.New("retuner: symbol is required")
	}
	if err := cfg.Guard.Validate(); err != nil {
		return nil, fmt.Errorf("retuner: %w", err)
	}
	if deps.Market == nil || deps.Orders == nil || deps.Planner == nil || deps.Gate == nil {
		return nil, errors.New("retuner: market, orders, planner and gate are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := &Retuner{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With(zap.String("symbol", cfg.Symbol)),
		state: models.RetunerState{
			Symbol:  cfg.Symbol,
			Version: StateVersion,
			Mode:    string(ModePause),
		},
		now:   time.Now,
		sleep: sleepCtx,
	}
	if initial != nil && initial.Symbol == cfg.Symbol {
		r.state = *initial
		r.state.Version = StateVersion
		if initial.Band != nil {
			band := *initial.Band
			r.state.Band = &band
		}
		deps.Gate.Restore(initial.Risk)
		r.logger.Info("resumed retuner state",
			zap.Int("cycles", initial.Cycles),
			zap.Bool("trendBlocked", initial.Guard.TrendBlocked),
			zap.Bool("hasBand", initial.Band != nil))
	}
	r.guard = NewGuard(cfg.Guard, r.state.Guard)
	return r, nil
}

// State returns a copy of the current loop state.
func (r *Retuner) State() models.RetunerState {
	s := r.state
	if r.state.Band != nil {
		band := *r.state.Band
		s.Band = &band
	}
	return s
}

// OnFill books a fill against the risk gate. It may be called from any goroutine.
func (r *Retuner) OnFill(f models.Fill) {
	r.deps.Gate.RegisterFill(f.Symbol, f.Notional(), f.RealizedPnL)
	if r.deps.Publisher != nil {
		r.deps.Publisher.RecordFill(f)
	}
}

// Run loops until ctx is cancelled, the run duration or cycle budget is spent,
// or the daily loss limit is breached. Only the breach is returned as an error.
func (r *Retuner) Run(ctx context.Context) error {
	start := r.now()
	cycles := 0
	r.logger.Info("retuner started",
		zap.Duration("runFor", r.cfg.RunFor),
		zap.Int("maxCycles", r.cfg.MaxCycles),
		zap.Float64("adxHi", r.cfg.Guard.ADXHi),
		zap.Float64("adxLo", r.cfg.Guard.ADXLo))

	for {
		if ctx.Err() != nil {
			r.logger.Info("retuner cancelled", zap.Int("cycles", cycles))
			return nil
		}
		if r.expired(start) {
			r.logger.Info("run duration reached, stopping", zap.Int("cycles", cycles))
			return nil
		}

		res, err := r.Step(ctx)
		if err != nil {
			return err
		}
		cycles++
		r.logger.Debug("cycle done", zap.Int("cycle", cycles), zap.String("action", string(res.Action)))

		if r.expired(start) {
			r.logger.Info("run duration reached, stopping", zap.Int("cycles", cycles))
			return nil
		}
		if r.cfg.MaxCycles > 0 && cycles >= r.cfg.MaxCycles {
			r.logger.Info("cycle limit reached, stopping", zap.Int("cycles", cycles))
			return nil
		}
		if err := r.sleep(ctx, r.cfg.Sleep); err != nil {
			r.logger.Info("retuner cancelled", zap.Int("cycles", cycles))
			return nil
		}
	}
}

func (r *Retuner) expired(start time.Time) bool {
	return r.cfg.RunFor > 0 && r.now().Sub(start) >= r.cfg.RunFor
}

// Step runs one iteration. Network failures are logged and reported as
// ActionSkipped; the only error returned is the terminal daily loss breach.
func (r *Retuner) Step(ctx context.Context) (StepResult, error) {
	now := r.now()
	sym := r.cfg.Symbol
	gate := r.deps.Gate

	gate.ResetDay(now)
	if err := gate.Breach(); err != nil {
		r.halt(ctx, err)
		return r.finish(StepResult{Action: ActionHalted}, now), err
	}
	r.reconcile(ctx)

	candles, err := r.deps.Market.FetchCandles(ctx, sym, r.cfg.Interval, r.cfg.Limit)
	if err != nil {
		r.logger.Warn("candle fetch failed, skipping cycle", zap.Error(err))
		return r.finish(StepResult{Action: ActionSkipped}, now), nil
	}
	if len(candles) < 2 {
		r.logger.Warn("not enough candles, skipping cycle", zap.Int("bars", len(candles)))
		return r.finish(StepResult{Action: ActionSkipped}, now), nil
	}

	guardBars := indicator.Tail(candles, r.cfg.GuardWindow)
	adx := indicator.ADX(guardBars, r.cfg.ADXPeriod)
	spike := indicator.VolatilitySpike(indicator.Closes(guardBars), r.cfg.Guard.SpikeFast, r.cfg.Guard.SpikeSlow, r.cfg.Guard.SpikeMult)
	d := r.guard.Observe(adx, spike, now)
	metrics.CurrentADX.WithLabelValues(sym).Set(adx)
	metrics.TrendBlocked.WithLabelValues(sym).Set(boolGauge(d.TrendBlocked))

	res := StepResult{Decision: d}
	if d.Pause {
		r.pause(ctx, d)
		r.state.Mode = string(ModePause)
		res.Action = ActionPaused
		res.Mode = ModePause
		return r.finish(res, now), nil
	}

	closes := indicator.Closes(candles)
	res.Mode = PickMode(BuildMetrics(closes, adx, indicator.IntervalMinutes(r.cfg.Interval)), r.cfg.Mode)
	r.state.Mode = string(res.Mode)
	if res.Mode != ModeDynamicGrid {
		res.Action = ActionIdle
		return r.finish(res, now), nil
	}

	if !r.state.LastTune.IsZero() && now.Sub(r.state.LastTune) < r.cfg.RetuneEvery {
		res.Action = ActionHeld
		return r.finish(res, now), nil
	}
	r.state.LastTune = now

	band, err := DynamicBand(closes, r.cfg.BandPeriod, r.cfg.BandK)
	if err != nil {
		r.logger.Warn("band computation failed", zap.Error(err))
		res.Action = ActionSkipped
		return r.finish(res, now), nil
	}
	res.Band = &band
	if r.state.Band != nil {
		if shift := BandShift(*r.state.Band, band); shift <= r.cfg.MinBandShift {
			r.logger.Debug("band moved too little, keeping orders",
				zap.Float64("shift", shift),
				zap.Float64("minShift", r.cfg.MinBandShift))
			res.Action = ActionHeld
			return r.finish(res, now), nil
		}
	}

	plan, err := r.deps.Planner.Plan(ctx, sizer.Request{
		Symbol:    sym,
		Lower:     band.Lower,
		Upper:     band.Upper,
		Levels:    r.cfg.Levels,
		Capital:   r.cfg.Capital,
		Reserve:   r.cfg.Reserve,
		Reference: closes[len(closes)-1],
		SLSteps:   r.cfg.SLSteps,
	})
	if err != nil {
		r.logger.Warn("sizing failed, keeping orders", zap.Error(err))
		metrics.PlansRejected.WithLabelValues(sym, "sizer").Inc()
		res.Action = ActionSkipped
		return r.finish(res, now), nil
	}
	res.Plan = plan

	if err := gate.CheckReplacement(sym, plan.TotalQuote); err != nil {
		if errors.Is(err, risk.ErrDailyLossLimitBreached) {
			r.halt(ctx, err)
			res.Action = ActionHalted
			return r.finish(res, now), err
		}
		r.logger.Warn("plan rejected by risk gate, keeping existing orders",
			zap.Float64("planNotional", plan.TotalQuote),
			zap.Error(err))
		metrics.PlansRejected.WithLabelValues(sym, "risk").Inc()
		res.Action = ActionRejected
		return r.finish(res, now), nil
	}

	if err := r.deps.Orders.CancelAllOrders(ctx, sym); err != nil {
		r.logger.Warn("cancel before retune failed, skipping cycle", zap.Error(err))
		res.Action = ActionSkipped
		return r.finish(res, now), nil
	}
	gate.Release(sym)
	r.state.Band = nil

	res.Placed, res.Failed = r.place(ctx, plan, now)
	res.Action = ActionPlaced
	metrics.PlansPlaced.WithLabelValues(sym).Inc()
	r.logger.Info("grid retuned",
		zap.Float64("lower", plan.Lower),
		zap.Float64("upper", plan.Upper),
		zap.Int("placed", res.Placed),
		zap.Int("failed", res.Failed),
		zap.Float64("notional", plan.TotalQuote))
	return r.finish(res, now), nil
}

// place submits every order of plan and records the placed band.
func (r *Retuner) place(ctx context.Context, plan *sizer.GridPlan, now time.Time) (placed, failed int) {
	sym := r.cfg.Symbol
	var notional float64
	for _, o := range plan.Orders {
		if _, err := r.deps.Orders.PlaceOrder(ctx, sym, o.Side, exchange.OrderTypeLimit, o.Qty, o.Price); err != nil {
			failed++
			metrics.OrderFailures.WithLabelValues(sym).Inc()
			r.logger.Warn("order rejected",
				zap.Int("level", o.LevelIndex),
				zap.String("side", string(o.Side)),
				zap.Float64("price", o.Price),
				zap.Float64("qty", o.Qty),
				zap.Error(err))
			continue
		}
		placed++
		notional += o.Notional
		r.deps.Gate.RegisterOrder(sym, o.Notional)
	}
	if placed > 0 {
		r.state.Band = &models.BandState{
			Lower:    plan.Lower,
			Upper:    plan.Upper,
			Levels:   plan.Levels,
			Notional: notional,
			PlacedAt: now,
		}
	}
	return placed, failed
}

// pause logs the guard decision and clears the book.
func (r *Retuner) pause(ctx context.Context, d Decision) {
	sym := r.cfg.Symbol
	metrics.GuardPauses.WithLabelValues(sym).Inc()
	fields := []zap.Field{
		zap.Float64("adx", d.ADX),
		zap.Bool("spike", d.Spike),
		zap.Bool("trendBlocked", d.TrendBlocked),
		zap.Duration("cooldown", d.CooldownLeft.Truncate(time.Second)),
		zap.String("bucket", d.Bucket),
	}
	if d.Notify {
		r.logger.Warn("guard pause", fields...)
	} else {
		r.logger.Debug("guard pause", fields...)
	}

	open, err := r.deps.Orders.FetchOpenOrders(ctx, sym)
	if err == nil && len(open) == 0 && r.state.Band == nil {
		return
	}
	if err := r.deps.Orders.CancelAllOrders(ctx, sym); err != nil {
		r.logger.Warn("cancel during guard pause failed", zap.Error(err))
		return
	}
	r.deps.Gate.Release(sym)
	r.state.Band = nil
	// the book is empty, so the next quiet iteration rebuilds immediately
	r.state.LastTune = time.Time{}
}

// halt cancels everything after a daily loss breach.
func (r *Retuner) halt(ctx context.Context, cause error) {
	r.logger.Error("daily loss limit breached, cancelling orders and stopping",
		zap.Float64("dailyPnL", r.deps.Gate.DailyPnL()),
		zap.Error(cause))
	if err := r.deps.Orders.CancelAllOrders(ctx, r.cfg.Symbol); err != nil {
		r.logger.Error("cancel after breach failed, check the exchange manually", zap.Error(err))
	} else {
		r.deps.Gate.Release(r.cfg.Symbol)
		r.state.Band = nil
	}
	r.state.Mode = string(ModePause)
}

// reconcile aligns the gate's exposure with the orders still resting on the book.
func (r *Retuner) reconcile(ctx context.Context) {
	open, err := r.deps.Orders.FetchOpenOrders(ctx, r.cfg.Symbol)
	if err != nil {
		r.logger.Debug("open orders unavailable, exposure not reconciled", zap.Error(err))
		return
	}
	var notional float64
	for _, o := range open {
		notional += o.Notional()
	}
	r.deps.Gate.SetExposure(r.cfg.Symbol, notional)
}

func (r *Retuner) finish(res StepResult, now time.Time) StepResult {
	r.state.Cycles++
	r.state.Guard = r.guard.State()
	r.state.Risk = r.deps.Gate.Snapshot()
	r.state.LastUpdateTime = now
	if r.deps.Publisher != nil {
		s := r.State()
		r.deps.Publisher.Publish(&s)
	}
	return res
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
