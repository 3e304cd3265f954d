// Package scanner runs the classifier over a market universe and ranks the
// symbols that look like tradeable grid boxes.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"grid-box-finder-go/internal/classifier"
	"grid-box-finder-go/internal/exchange"
	"grid-box-finder-go/internal/indicator"
	"grid-box-finder-go/internal/metrics"
	"grid-box-finder-go/internal/models"
	"grid-box-finder-go/internal/sizer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// listingProbeLimit is how many hourly bars the listing-age fallback reads.
const listingProbeLimit = 500

var leveragedSuffixes = []string{"UP", "DOWN", "BULL", "BEAR"}

var tradableContracts = map[string]bool{
	"":                true, // spot style records carry no contract type
	"PERPETUAL":       true,
	"CURRENT_QUARTER": true,
	"NEXT_QUARTER":    true,
}

// ListingSource is implemented by market data that can date a symbol's
// first candle.
type ListingSource interface {
	FirstCandleTime(ctx context.Context, symbol string) (time.Time, error)
}

// Planner sizes a suggested band into orders.
type Planner interface {
	Plan(ctx context.Context, req sizer.Request) (*sizer.GridPlan, error)
}

// Report is the outcome of one scan pass.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Scanned    int
	Skipped    int
	// Candidates are ranked, best first.
	Candidates []classifier.Candidate
	Plans      map[string]*sizer.GridPlan
	Errors     map[string]string
}

// Duration is the wall time of the pass.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Top returns at most k candidates.
func (r *Report) Top(k int) []classifier.Candidate {
	if k <= 0 || k >= len(r.Candidates) {
		return r.Candidates
	}
	return r.Candidates[:k]
}

// Picks returns at most k candidates that passed the regime gate. When none
// did, it falls back to the top k so the output is never empty.
func (r *Report) Picks(k int) []classifier.Candidate {
	var picks []classifier.Candidate
	for _, c := range r.Candidates {
		if c.Result.Verdict == classifier.VerdictRejected {
			continue
		}
		picks = append(picks, c)
		if k > 0 && len(picks) == k {
			break
		}
	}
	if len(picks) == 0 {
		return r.Top(k)
	}
	return picks
}

// Record converts the report into its persisted form.
func (r *Report) Record() *models.ScanRecord {
	rec := &models.ScanRecord{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Scanned:    r.Scanned,
		Skipped:    r.Skipped,
		Candidates: make([]models.CandidateSummary, 0, len(r.Candidates)),
	}
	for _, c := range r.Candidates {
		box := c.Windows.Long.Band
		rec.Candidates = append(rec.Candidates, models.CandidateSummary{
			Symbol:     c.Symbol,
			Verdict:    string(c.Result.Verdict),
			Score:      c.Result.Score,
			Lower:      box.Low,
			Mid:        box.Mid,
			Upper:      box.High,
			Reasons:    classifier.ReasonStrings(c.Result.Reasons),
			PingPongOK: c.PingPongOK(),
			FastOK:     c.FastOK(),
		})
	}
	return rec
}

// Scanner classifies every symbol of the universe in turn.
type Scanner struct {
	market  exchange.MarketData
	cls     *classifier.Classifier
	cfg     models.ScannerConfig
	sizing  models.SizerConfig
	planner Planner
	logger  *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Scanner. planner may be nil, in which case candidates are never sized.
func New(market exchange.MarketData, cls *classifier.Classifier, cfg models.ScannerConfig, sizing models.SizerConfig, planner Planner, logger *zap.Logger) *Scanner {
	return &Scanner{
		market:  market,
		cls:     cls,
		cfg:     cfg,
		sizing:  sizing,
		planner: planner,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Universe returns the tickers to scan: trading contracts quoted in the
// configured asset, leveraged tokens excluded, ranked by quote volume and cut
// to MaxSymbols.
func (s *Scanner) Universe(ctx context.Context) ([]models.Ticker, error) {
	symbols, err := s.market.FetchSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("load symbols: %w", err)
	}
	allowed := make(map[string]bool, len(symbols))
	for _, info := range symbols {
		if eligible(info, s.cfg.Quote) {
			allowed[info.Symbol] = true
		}
	}

	tickers, err := s.market.FetchTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tickers: %w", err)
	}
	pool := make([]models.Ticker, 0, len(allowed))
	for _, t := range tickers {
		if !allowed[t.Symbol] || t.Last <= 0 {
			continue
		}
		if t.QuoteVolumeOrEstimate() < s.cfg.MinQuoteVolume {
			continue
		}
		pool = append(pool, t)
	}
	sort.SliceStable(pool, func(i, j int) bool {
		vi, vj := pool[i].QuoteVolumeOrEstimate(), pool[j].QuoteVolumeOrEstimate()
		if vi != vj {
			return vi > vj
		}
		return pool[i].Symbol < pool[j].Symbol
	})
	if s.cfg.MaxSymbols > 0 && len(pool) > s.cfg.MaxSymbols {
		pool = pool[:s.cfg.MaxSymbols]
	}
	return pool, nil
}

func eligible(info models.SymbolInfo, quote string) bool {
	if info.Status != "" && info.Status != "TRADING" {
		return false
	}
	if quote != "" && info.QuoteAsset != quote {
		return false
	}
	if !tradableContracts[info.ContractType] {
		return false
	}
	return !isLeveraged(info.BaseAsset)
}

// isLeveraged matches leveraged-token bases such as BTCUP or ETHBEAR. A short
// base like JUP is a real asset, so the suffix must follow at least two letters.
func isLeveraged(base string) bool {
	for _, suffix := range leveragedSuffixes {
		if strings.HasSuffix(base, suffix) && len(base) >= len(suffix)+2 {
			return true
		}
	}
	return false
}

// Analyze classifies one symbol: long and short windows, the ping-pong tier,
// the fast tier when ping-pong passes, and a suggested band.
func (s *Scanner) Analyze(ctx context.Context, t models.Ticker) (*classifier.Candidate, error) {
	longBars := indicator.BarsForHours(s.cfg.Interval, s.cfg.LongHours)
	shortBars := indicator.BarsForHours(s.cfg.Interval, s.cfg.ShortHours)
	barMinutes := indicator.IntervalMinutes(s.cfg.Interval)

	long, err := s.market.FetchCandles(ctx, t.Symbol, s.cfg.Interval, longBars)
	if err != nil {
		return nil, fmt.Errorf("long window: %w", err)
	}
	// the short window is the tail of the long one, same interval
	short := indicator.Tail(long, shortBars)

	windows, err := s.cls.Measure(long, short, barMinutes)
	if err != nil {
		return nil, err
	}
	cand := &classifier.Candidate{
		Symbol:      t.Symbol,
		Last:        windows.Long.Last,
		QuoteVolume: t.QuoteVolumeOrEstimate(),
		Result:      s.cls.Evaluate(windows),
		Windows:     windows,
		Band:        s.cls.SuggestBand(windows.Long.Last, windows.Short.ATR),
	}

	pp, err := s.pingPong(ctx, t)
	switch {
	case err == nil:
		cand.PingPong = pp
		cand.Band = pp.Band
	case errors.Is(err, indicator.ErrInsufficientData):
		s.logger.Debug("ping-pong tier skipped", zap.String("symbol", t.Symbol), zap.Error(err))
	default:
		return nil, fmt.Errorf("ping-pong tier: %w", err)
	}

	if cand.PingPongOK() && s.cfg.FastEnabled {
		fast, err := s.fast(ctx, t.Symbol, pp.RangePct)
		switch {
		case err == nil:
			cand.Fast = fast
		case errors.Is(err, indicator.ErrInsufficientData):
			s.logger.Debug("fast tier skipped", zap.String("symbol", t.Symbol), zap.Error(err))
		default:
			return nil, fmt.Errorf("fast tier: %w", err)
		}
	}
	return cand, nil
}

func (s *Scanner) pingPong(ctx context.Context, t models.Ticker) (*classifier.PingPongResult, error) {
	interval := s.cfg.PingPongInterval
	if interval == "" {
		interval = s.cfg.Interval
	}
	candles, err := s.market.FetchCandles(ctx, t.Symbol, interval, s.cfg.PingPongLimit)
	if err != nil {
		return nil, err
	}
	in := classifier.PingPongInput{
		Candles:        candles,
		QuoteVolume:    t.QuoteVolumeOrEstimate(),
		ListingAgeDays: -1,
	}
	res, err := s.cls.EvaluatePingPong(in)
	if err != nil {
		return nil, err
	}
	// the listing lookup costs a request, so it only runs for symbols that pass the base filter
	if res.BaseOK && s.cls.Config().PingPong.ListedMinDays > 0 {
		in.ListingAgeDays = s.listingAgeDays(ctx, t.Symbol)
		if res, err = s.cls.EvaluatePingPong(in); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

func (s *Scanner) fast(ctx context.Context, symbol string, rangePct float64) (*classifier.FastResult, error) {
	interval := s.cfg.FastInterval
	if interval == "" {
		interval = "1m"
	}
	candles, err := s.market.FetchCandles(ctx, symbol, interval, s.cfg.FastLimit)
	if err != nil {
		return nil, err
	}
	res, err := s.cls.EvaluateFast(indicator.Closes(candles), indicator.IntervalMinutes(interval), rangePct)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// listingAgeDays dates a market from its listing time, then its first candle,
// then the length of its hourly history as a lower bound. -1 means unknown.
func (s *Scanner) listingAgeDays(ctx context.Context, symbol string) float64 {
	now := s.now()
	info, err := s.market.FetchSymbolInfo(ctx, symbol)
	if err == nil && info != nil && !info.ListedAt.IsZero() {
		return now.Sub(info.ListedAt).Hours() / 24
	}
	if src, ok := s.market.(ListingSource); ok {
		if first, err := src.FirstCandleTime(ctx, symbol); err == nil && !first.IsZero() {
			return now.Sub(first).Hours() / 24
		}
	}
	bars, err := s.market.FetchCandles(ctx, symbol, "1h", listingProbeLimit)
	if err != nil {
		s.logger.Debug("listing age unknown", zap.String("symbol", symbol), zap.Error(err))
		return -1
	}
	return float64(len(bars)) / 24
}

// Scan analyses the universe one symbol at a time. Per-symbol failures are
// logged and counted as skipped; only a failure to load the universe or a
// cancelled context aborts the pass.
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
		Plans:     make(map[string]*sizer.GridPlan),
		Errors:    make(map[string]string),
	}
	log := s.logger.With(zap.String("runId", report.RunID))

	pool, err := s.Universe(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("scan started", zap.Int("symbols", len(pool)), zap.String("interval", s.cfg.Interval))

	throttle := time.Duration(s.cfg.ThrottleMs) * time.Millisecond
	for i, t := range pool {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 && throttle > 0 {
			if err := s.sleep(ctx, throttle); err != nil {
				return nil, err
			}
		}

		cand, err := s.Analyze(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			report.Skipped++
			report.Errors[t.Symbol] = err.Error()
			metrics.SymbolsSkipped.WithLabelValues(skipReason(err)).Inc()
			log.Warn("symbol skipped", zap.String("symbol", t.Symbol), zap.Error(err))
			continue
		}
		report.Scanned++
		metrics.SymbolsScanned.Inc()
		metrics.Candidates.WithLabelValues(string(cand.Result.Verdict)).Inc()
		log.Debug("symbol classified",
			zap.String("symbol", t.Symbol),
			zap.String("verdict", string(cand.Result.Verdict)),
			zap.Float64("score", cand.Result.Score),
			zap.Bool("pingpong", cand.PingPongOK()),
			zap.Bool("fast", cand.FastOK()))
		report.Candidates = append(report.Candidates, *cand)
	}

	classifier.Rank(report.Candidates)
	if s.cfg.SizeCandidates && s.planner != nil {
		s.sizeTop(ctx, report, log)
	}

	report.FinishedAt = s.now()
	metrics.ScanDuration.Observe(report.Duration().Seconds())
	log.Info("scan finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("skipped", report.Skipped),
		zap.Duration("took", report.Duration()))
	return report, nil
}

// sizeTop builds plans for the top candidates that are not rejected.
func (s *Scanner) sizeTop(ctx context.Context, report *Report, log *zap.Logger) {
	for _, c := range report.Top(s.cfg.TopK) {
		if c.Result.Verdict == classifier.VerdictRejected || c.Band.Upper <= c.Band.Lower {
			continue
		}
		levels := s.sizing.Levels
		if c.Band.Levels >= 2 {
			levels = c.Band.Levels
		}
		plan, err := s.planner.Plan(ctx, sizer.Request{
			Symbol:    c.Symbol,
			Lower:     c.Band.Lower,
			Upper:     c.Band.Upper,
			Levels:    levels,
			Capital:   s.sizing.Capital,
			Reserve:   s.sizing.Reserve,
			Reference: c.Last,
			SLSteps:   s.sizing.SLSteps,
		})
		if err != nil {
			log.Warn("sizing failed", zap.String("symbol", c.Symbol), zap.Error(err))
			continue
		}
		report.Plans[c.Symbol] = plan
	}
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, indicator.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, exchange.ErrTransientNetwork), exchange.IsTransient(err):
		return "network"
	case errors.Is(err, exchange.ErrSymbolNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
