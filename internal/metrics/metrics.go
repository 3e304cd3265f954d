// Package metrics holds the Prometheus collectors shared by the scanner and
// the retuner.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "gridbox"

var (
	once sync.Once

	SymbolsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "symbols_scanned_total",
			Help:      "Symbols analysed by the scanner",
		},
	)

	SymbolsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "symbols_skipped_total",
			Help:      "Symbols skipped by the scanner, by reason",
		},
		[]string{"reason"},
	)

	Candidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "candidates_total",
			Help:      "Classified symbols by verdict",
		},
		[]string{"verdict"},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a full scan pass",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)

	GuardPauses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retuner",
			Name:      "guard_pauses_total",
			Help:      "Iterations skipped by the trend/volatility guard",
		},
		[]string{"symbol"},
	)

	CurrentADX = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "retuner",
			Name:      "adx",
			Help:      "Latest ADX seen by the guard",
		},
		[]string{"symbol"},
	)

	TrendBlocked = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "retuner",
			Name:      "trend_blocked",
			Help:      "1 while the ADX hysteresis holds the symbol blocked",
		},
		[]string{"symbol"},
	)

	PlansPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retuner",
			Name:      "plans_placed_total",
			Help:      "Grid plans submitted to the exchange",
		},
		[]string{"symbol"},
	)

	PlansRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retuner",
			Name:      "plans_rejected_total",
			Help:      "Grid plans dropped before submission, by reason",
		},
		[]string{"symbol", "reason"},
	)

	OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "order_failures_total",
			Help:      "Orders the exchange refused",
		},
		[]string{"symbol"},
	)

	Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "retries_total",
			Help:      "Retried exchange calls by operation",
		},
		[]string{"op"},
	)
)

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SymbolsScanned, SymbolsSkipped, Candidates, ScanDuration,
			GuardPauses, CurrentADX, TrendBlocked, PlansPlaced, PlansRejected,
			OrderFailures, Retries,
		)
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
