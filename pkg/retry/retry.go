// Package retry runs an operation with exponential backoff and jitter.
// It wraps calls to upstream services that fail transiently, such as the
// LLM API and the graph store.
package retry

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	Logger         *zap.Logger
}

func (cfg Config) normalized() Config {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// Do invokes operation until it succeeds, the attempt budget runs out, or
// ctx is cancelled. The last error is returned when all attempts fail.
func Do(ctx context.Context, cfg Config, operation func() error) error {
	cfg = cfg.normalized()

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				cfg.Logger.Info("Recovered after retry", zap.Int("attempt", attempt))
			}
			return nil
		}

		if attempt >= cfg.MaxAttempts {
			return lastErr
		}

		wait := cfg.backoff(attempt)
		cfg.Logger.Warn("Attempt failed, backing off",
			zap.Error(lastErr),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("wait", wait),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// backoff returns the delay before the next attempt: the initial delay
// scaled geometrically, capped at MaxDelay, with symmetric jitter applied.
func (cfg Config) backoff(attempt int) time.Duration {
	d := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * cfg.Multiplier)
		if d >= cfg.MaxDelay {
			d = cfg.MaxDelay
			break
		}
	}
	if cfg.JitterFraction > 0 {
		spread := float64(d) * cfg.JitterFraction
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}
