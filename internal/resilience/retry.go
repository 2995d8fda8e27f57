package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Backoff schedules for the two provider failure classes the pipeline
// distinguishes. Rate limits back off longer than ordinary transient
// failures because retrying into a limit window just burns the quota again.
var (
	TransientBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	RateLimitBackoff = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
)

// RetryPolicy describes how an operation is retried. The operation runs up
// to len(Delays)+1 times, waiting Delays[i] after failed attempt i.
type RetryPolicy struct {
	// Name identifies the operation in log output.
	Name string

	// Delays holds the wait before each retry. An empty slice means a
	// single attempt with no retries.
	Delays []time.Duration

	// Retryable reports whether an error is worth retrying. A nil func
	// retries every error. Context cancellation is never retried
	// regardless of what Retryable returns.
	Retryable func(error) bool

	// DelayFor picks the wait after failed attempt i (zero-based),
	// overriding Delays when non-nil. The attempt count still comes from
	// len(Delays)+1. Lets one policy mix schedules, e.g. rate limits
	// backing off longer than server errors.
	DelayFor func(attempt int, err error) time.Duration

	// OnRetry is invoked before each backoff sleep, letting callers count
	// retries in their metrics. May be nil.
	OnRetry func(attempt int, err error)
}

// Retry runs op under policy, sleeping between attempts. It returns nil on
// the first success, the error unchanged when it is not retryable, and the
// last error once the delay schedule is exhausted. The sleep is cut short
// when ctx is canceled, in which case the context error is returned.
func Retry(ctx context.Context, policy RetryPolicy, op func(context.Context) error) error {
	_, err := RetryWithResult(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// RetryWithResult is [Retry] for operations that produce a value. This is a
// package-level function because Go does not support method-level type
// parameters.
func RetryWithResult[R any](ctx context.Context, policy RetryPolicy, op func(context.Context) (R, error)) (R, error) {
	var zero R
	attempts := len(policy.Delays) + 1
	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			return zero, err
		}

		delay := policy.Delays[attempt]
		if policy.DelayFor != nil {
			delay = policy.DelayFor(attempt, err)
		}
		slog.Warn("operation failed, retrying",
			"operation", policy.Name,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"delay", delay,
			"error", err)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, nil // unreachable: the loop always returns
}
