// internal/common/database/connect.go
package database

import (
	"context"
	"fmt"
	"time"

	"mortgage-underwriting/internal/common/logger"
)

// Pinger is any backend that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RetryPolicy bounds WaitFor.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	Attempts:  5,
	BaseDelay: 500 * time.Millisecond,
	MaxDelay:  8 * time.Second,
}

// WaitFor pings p until it answers, doubling the delay between attempts.
func WaitFor(ctx context.Context, name string, p Pinger, policy RetryPolicy, log logger.Logger) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}

	delay := policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = p.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			if attempt > 1 {
				log.Info("backend reachable", map[string]interface{}{"backend": name, "attempt": attempt})
			}
			return nil
		}

		if attempt == policy.Attempts {
			break
		}
		log.Warn("backend not reachable, retrying", map[string]interface{}{
			"backend": name,
			"attempt": attempt,
			"delayMs": delay.Milliseconds(),
			"error":   lastErr.Error(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return fmt.Errorf("%s unreachable after %d attempts: %w", name, policy.Attempts, lastErr)
}
