package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/redub/pkg/provider/tts"
)

// TTSFailover renders segments through a primary provider with a one-way
// switch to a fallback. Each render retries the primary under the given
// policy; when a segment still fails, the fallback gets a single attempt at
// it. After maxConsecutive primary failures in a row the primary is
// abandoned and all remaining segments go straight to the fallback without
// further probing.
//
// A TTSFailover carries the failure state of one job. Create a fresh one
// per job; sharing one across jobs would let an earlier job's broken
// primary poison later ones.
type TTSFailover struct {
	primary        tts.Provider
	fallback       tts.Provider
	retry          RetryPolicy
	maxConsecutive int

	mu          sync.Mutex
	consecutive int
	switched    bool
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFailover)(nil)

// NewTTSFailover creates a [TTSFailover]. fallback may be nil, in which
// case failed segments are reported as failed and no switch ever happens.
// maxConsecutive values below one fall back to three.
func NewTTSFailover(primary, fallback tts.Provider, retry RetryPolicy, maxConsecutive int) *TTSFailover {
	if maxConsecutive < 1 {
		maxConsecutive = 3
	}
	return &TTSFailover{
		primary:        primary,
		fallback:       fallback,
		retry:          retry,
		maxConsecutive: maxConsecutive,
	}
}

// Synthesize renders one segment, applying the retry policy to the primary
// and falling back for this segment when the primary's attempts are
// exhausted.
func (f *TTSFailover) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	if f.primaryActive() {
		clip, err := RetryWithResult(ctx, f.retry, func(ctx context.Context) (*tts.Clip, error) {
			return f.primary.Synthesize(ctx, req)
		})
		if err == nil {
			f.recordSuccess()
			return clip, nil
		}
		// Cancellation is not a provider failure.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		f.recordFailure(err)
		if f.fallback == nil {
			return nil, err
		}
		slog.Warn("tts primary failed for segment, trying fallback",
			"output", req.OutPath,
			"error", err)
	}

	clip, err := f.fallback.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("resilience: tts fallback: %w", err)
	}
	return clip, nil
}

// Format returns the active provider's clip format. Both bundled providers
// render MP3, so in practice the format stays stable across the switch.
func (f *TTSFailover) Format() string {
	f.mu.Lock()
	switched := f.switched
	f.mu.Unlock()
	if switched {
		return f.fallback.Format()
	}
	return f.primary.Format()
}

// Switched reports whether the primary has been abandoned for this job.
func (f *TTSFailover) Switched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.switched
}

func (f *TTSFailover) primaryActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.switched
}

func (f *TTSFailover) recordSuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consecutive = 0
}

func (f *TTSFailover) recordFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consecutive++
	if !f.switched && f.fallback != nil && f.consecutive >= f.maxConsecutive {
		f.switched = true
		slog.Warn("tts primary disabled for remaining segments",
			"consecutive_failures", f.consecutive,
			"error", err)
	}
}
