package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default retry parameters.
const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = time.Second
	defaultRetryMax      = 8 * time.Second
)

// Backoff describes a bounded exponential retry schedule.
type Backoff struct {
	// Attempts is the total number of tries, including the first. Default: 3.
	Attempts int

	// Initial is the wait after the first failure. Doubles each retry up to
	// Max. Default: 1s.
	Initial time.Duration

	// Max caps a single wait. Default: 8s.
	Max time.Duration
}

func (b Backoff) withDefaults() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = defaultRetryAttempts
	}
	if b.Initial <= 0 {
		b.Initial = defaultRetryBackoff
	}
	if b.Max <= 0 {
		b.Max = defaultRetryMax
	}
	return b
}

// MaxAttempts returns the total number of tries the schedule allows.
func (b Backoff) MaxAttempts() int {
	return b.withDefaults().Attempts
}

// Delay returns the wait before try number attempt (1-based). The first try
// has no delay; try n waits Initial*2^(n-2), capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.withDefaults()
	if attempt <= 1 {
		return 0
	}
	d := b.Initial
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return min(d, b.Max)
}

// Retry calls fn until it succeeds, the schedule is exhausted, or ctx is
// done. fn receives the 1-based attempt number. The returned error wraps the
// last failure.
func Retry(ctx context.Context, b Backoff, name string, fn func(ctx context.Context, attempt int) error) error {
	b = b.withDefaults()
	var lastErr error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		if d := b.Delay(attempt); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("resilience: %s: %w", name, ctx.Err())
			case <-t.C:
			}
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			if attempt > 1 {
				slog.Info("retry succeeded", "op", name, "attempt", attempt)
			}
			return nil
		}
		slog.Warn("retry attempt failed",
			"op", name,
			"attempt", attempt,
			"max_attempts", b.Attempts,
			"err", lastErr)
	}
	return fmt.Errorf("resilience: %s: giving up after %d attempts: %w", name, b.Attempts, lastErr)
}
