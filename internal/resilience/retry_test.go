package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastPolicy returns a policy with millisecond delays so tests stay quick.
func fastPolicy(retries int) RetryPolicy {
	delays := make([]time.Duration, retries)
	for i := range delays {
		delays[i] = time.Millisecond
	}
	return RetryPolicy{Name: "test-op", Delays: delays}
}

func TestRetry_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetry_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetry_ExhaustsDelays(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(2), func(context.Context) error {
		calls++
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want errTest", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (one initial + two retries)", calls)
	}
}

func TestRetry_NoDelaysSingleAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Name: "once"}, func(context.Context) error {
		calls++
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want errTest", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	policy := fastPolicy(3)
	policy.Retryable = func(err error) bool { return false }

	calls := 0
	err := Retry(context.Background(), policy, func(context.Context) error {
		calls++
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want errTest", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (non-retryable must not retry)", calls)
	}
}

func TestRetry_ContextCanceledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	policy := RetryPolicy{Name: "slow", Delays: []time.Duration{time.Hour}}
	start := time.Now()
	err := Retry(ctx, policy, func(context.Context) error {
		return errTest
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("retry slept through cancellation, took %v", elapsed)
	}
}

func TestRetry_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastPolicy(1), func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

func TestRetry_OnRetryHook(t *testing.T) {
	policy := fastPolicy(2)
	var attempts []int
	policy.OnRetry = func(attempt int, err error) {
		if !errors.Is(err, errTest) {
			t.Errorf("hook err = %v, want errTest", err)
		}
		attempts = append(attempts, attempt)
	}

	err := Retry(context.Background(), policy, func(context.Context) error {
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want errTest", err)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("hook attempts = %v, want [1 2]", attempts)
	}
}

func TestRetry_ContextErrorFromOpNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryWithResult(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errTest
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "done" {
		t.Fatalf("result = %q, want done", result)
	}
}

func TestBackoffSchedules(t *testing.T) {
	if len(TransientBackoff) != 3 || TransientBackoff[0] != 2*time.Second {
		t.Fatalf("TransientBackoff = %v, want 2s/4s/8s", TransientBackoff)
	}
	if len(RateLimitBackoff) != 3 || RateLimitBackoff[0] != 5*time.Second {
		t.Fatalf("RateLimitBackoff = %v, want 5s/10s/20s", RateLimitBackoff)
	}
}
