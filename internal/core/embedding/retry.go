// Package embedding adds rate-limit-aware retry and batching on top of an
// embedding provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/metrics"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
	DefaultMaxJitter   = time.Second
)

// RetryConfig tunes the Retrier. Zero values fall back to the defaults; a
// negative MaxJitter disables jitter.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration

	// Limiter throttles calls before they leave the process. Nil disables it.
	Limiter *rate.Limiter

	// Provider labels metrics.
	Provider string
}

// Retrier retries rate-limited embedding calls with exponential backoff and jitter.
// Any other error is returned on the first attempt.
type Retrier struct {
	next   core.EmbeddingProvider
	cfg    RetryConfig
	logger *zap.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

var _ core.EmbeddingProvider = (*Retrier)(nil)

func NewRetrier(next core.EmbeddingProvider, cfg RetryConfig, logger *zap.Logger) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	switch {
	case cfg.MaxJitter == 0:
		cfg.MaxJitter = DefaultMaxJitter
	case cfg.MaxJitter < 0:
		cfg.MaxJitter = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		next:   next,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
		jitter: uniformJitter,
	}
}

// Embed calls the wrapped provider up to MaxAttempts times.
func (r *Retrier) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if r.cfg.Limiter != nil {
			if err := r.cfg.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vec, err := r.next.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, core.ErrRateLimited) {
			if errors.Is(err, core.ErrEmbeddingService) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
		}

		lastErr = err
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}

		delay := r.Backoff(attempt)
		metrics.EmbeddingRetriesTotal.WithLabelValues(r.cfg.Provider).Inc()
		r.logger.Warn("embedding rate limited, backing off",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Duration("delay", delay),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: gave up after %d attempts: %w", core.ErrEmbeddingService, r.cfg.MaxAttempts, lastErr)
}

// Backoff returns BaseDelay * 2^attempt plus jitter in [0, MaxJitter).
func (r *Retrier) Backoff(attempt int) time.Duration {
	return r.cfg.BaseDelay<<attempt + r.jitter(r.cfg.MaxJitter)
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
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
