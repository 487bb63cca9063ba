// Package worker implements the Publishing Worker (C4): it drains the
// Publication Queue, resolves a provider and identity, and applies the
// retry-count and error-classification policy from spec.md §4.4. It does
// not wait out a per-log backoff delay; see BackoffPolicy.
package worker

import (
	"math"
	"time"
)

// BackoffPolicy implements spec.md §4.4's exact retry formula:
// delay = 1.0 * 2^(retry_count-1) seconds, capped at 60s. Unlike the
// teacher's RetryExecutor (internal/application/executor/retry.go in
// smilemakc/mbflow), this has no jitter and no configurable multiplier —
// the spec pins both constants, so they are not parameterized here.
// Nothing in the worker or the queue calls Delay: a log in retry is
// eligible again on its partition's next poll.
type BackoffPolicy struct {
	MaxDelay time.Duration
}

// DefaultBackoffPolicy returns the policy spec.md §4.4 and §8 test scenario
// 1 both assume.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{MaxDelay: 60 * time.Second}
}

// Delay returns the wait before the (retryCount+1)-th attempt, where
// retryCount is the count recorded on the PublishLog *after* the failure
// that is about to be retried (i.e. retryCount=1 for the first retry).
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	seconds := math.Pow(2, float64(retryCount-1))
	d := time.Duration(seconds * float64(time.Second))
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// PollIntervalAfterRetry doubles the worker's poll interval transiently to
// smooth thundering herds after a retry event (spec.md §4.4).
func PollIntervalAfterRetry(base time.Duration) time.Duration {
	return base * 2
}
