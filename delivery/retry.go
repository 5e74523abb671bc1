// Package delivery sends replies back out through a transport. Two modes
// exist: dry_run synthesizes receipts offline, provider talks to the
// transport HTTP APIs. Transient failures retry with deterministic,
// seed-stable exponential backoff so repeated invocations of the same
// event reproduce identical delays.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"
)

// ErrTransient marks a delivery failure worth retrying. Anything else is
// terminal on first occurrence.
var ErrTransient = errors.New("delivery: transient failure")

// RetryDelayMS computes the backoff before the given attempt (1-based):
// base*2^(attempt-1) plus a deterministic jitter derived from the seed,
// bounded to [0, jitterMaxMS].
func RetryDelayMS(baseDelayMS, jitterMaxMS int64, attempt int, seed string) int64 {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseDelayMS
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay + deterministicJitter(seed, jitterMaxMS)
}

func deterministicJitter(seed string, jitterMaxMS int64) int64 {
	if jitterMaxMS <= 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return int64(h.Sum64() % uint64(jitterMaxMS+1))
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelayMS int64
	JitterMaxMS int64

	// Sleep is injectable for tests; nil means a context-aware real sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelayMS <= 0 {
		c.BaseDelayMS = 250
	}
	if c.Sleep == nil {
		c.Sleep = sleepWithContext
	}
	return c
}

// Send runs the deliverer with bounded retries. The seed is a stable
// per-event string; attempts is how many delivery calls were made.
func Send(ctx context.Context, d Deliverer, msg OutboundMessage, cfg RetryConfig) (receipts []Receipt, attempts int, err error) {
	cfg = cfg.normalized()
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attempts = attempt
		receipts, lastErr = d.Deliver(ctx, msg)
		if lastErr == nil {
			return receipts, attempts, nil
		}
		if !errors.Is(lastErr, ErrTransient) {
			return nil, attempts, lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		delay := RetryDelayMS(cfg.BaseDelayMS, cfg.JitterMaxMS, attempt, msg.RetrySeed)
		if sleepErr := cfg.Sleep(ctx, time.Duration(delay)*time.Millisecond); sleepErr != nil {
			return nil, attempts, sleepErr
		}
	}
	return nil, attempts, fmt.Errorf("delivery exhausted after %d attempts: %w", attempts, lastErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
