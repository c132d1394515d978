// Package poller retries an availability check a bounded number of times with
// a fixed delay between attempts.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oshokin/frigate-notifier/internal/logger"
)

// Check reports whether a resource is available yet.
type Check func(ctx context.Context) (bool, error)

// Poller runs a Check until it succeeds or the attempts run out.
type Poller struct {
	// interval is the fixed delay between attempts.
	interval time.Duration
	// attempts is the total number of calls to the check.
	attempts int
}

// errNotReady marks an attempt where the check answered false.
var errNotReady = errors.New("not available yet")

// New creates a poller. Attempts below one are raised to one.
func New(interval time.Duration, attempts int) *Poller {
	return &Poller{
		interval: interval,
		attempts: max(attempts, 1),
	}
}

// Poll calls check up to the configured number of times, sleeping the fixed
// interval between calls, and reports whether it ever returned true.
// A check error counts as "not available" for that attempt.
// Poll returns false early when ctx is cancelled.
func (p *Poller) Poll(ctx context.Context, check Check) bool {
	attempt := 0

	operation := func() error {
		attempt++

		ok, err := check(ctx)
		if err != nil {
			logger.WarnKV(ctx, "Availability check failed", "attempt", attempt, "error", err)

			return err
		}

		if !ok {
			logger.DebugKV(ctx, "Not available yet", "attempt", attempt, "attempts", p.attempts)

			return errNotReady
		}

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.interval), uint64(p.attempts-1)),
		ctx,
	)

	return backoff.Retry(operation, policy) == nil
}
