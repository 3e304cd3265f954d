package exchange

import (
	"context"
	"fmt"
	"time"

	"grid-box-finder-go/internal/metrics"
	"grid-box-finder-go/internal/models"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// RetryPolicy 对可重试错误做有上限的指数退避重试
type RetryPolicy struct {
	MaxAttempts int
	Min         time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      bool

	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy 5 次尝试，500ms 起步，翻倍，最长 5s
func DefaultRetryPolicy(logger *zap.Logger) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Min:         500 * time.Millisecond,
		Max:         5 * time.Second,
		Factor:      2,
		Jitter:      true,
		logger:      logger,
		sleep:       waitCtx,
	}
}

// NewRetryPolicy 根据配置创建重试策略，未配置的字段使用默认值
func NewRetryPolicy(cfg models.ExchangeConfig, logger *zap.Logger) RetryPolicy {
	p := DefaultRetryPolicy(logger)
	if cfg.RetryAttempts > 0 {
		p.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryInitialDelayMs > 0 {
		p.Min = time.Duration(cfg.RetryInitialDelayMs) * time.Millisecond
	}
	if cfg.RetryMaxDelayMs > 0 {
		p.Max = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
	}
	return p
}

// Do 执行 fn，仅在 IsTransient 为真时重试。
// 重试耗尽后返回同时包裹 ErrTransientNetwork 和最后一次错误的错误。
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := p.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = waitCtx
	}
	b := &backoff.Backoff{Min: p.Min, Max: p.Max, Factor: p.Factor, Jitter: p.Jitter}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		d := b.Duration()
		metrics.Retries.WithLabelValues(op).Inc()
		logger.Warn("transient exchange error, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", d),
			zap.Error(err))
		if serr := sleep(ctx, d); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w: %w", op, attempts, ErrTransientNetwork, err)
}

func waitCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
