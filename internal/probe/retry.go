package probe

import (
	"context"
	"time"

	"conncheck/internal/domain"
)

// Retry re-runs an inner prober until it passes or attempts are exhausted.
// Checks are single-shot unless a plan opts in, so Attempts <= 1 degrades
// to exactly one attempt.
type Retry struct {
	Inner    Prober
	Attempts int
	Backoff  time.Duration
}

func (r *Retry) Do(ctx context.Context, spec RequestSpec) domain.APIResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last domain.APIResult
	for i := 0; i < attempts; i++ {
		last = r.Inner.Do(ctx, spec)
		if last.Passed {
			return last
		}
		if i < attempts-1 {
			select {
			case <-time.After(r.Backoff):
			case <-ctx.Done():
				return last
			}
		}
	}
	// annotate the error so a retried series is visible in the report
	if attempts > 1 && last.Error != "" {
		last.Error = last.Error + " (after retries)"
	}
	return last
}
