// Package translate implements the machine translation stage.
//
// Segment texts travel to the provider in fixed-size batches so one failed
// request loses at most one batch and token limits stay comfortable. Each
// batch is retried with a schedule picked from the failure class: rate
// limits wait 5 s, 10 s, 20 s, server and network failures 2 s, 4 s, 8 s,
// other client errors are not retried at all. A batch that still fails
// keeps its source-language text and the stage ends degraded; three failed
// batches in a row abort the job, preserving the count of segments
// translated so far as an artifact.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/redub/internal/job"
	"github.com/MrWong99/redub/internal/resilience"
	"github.com/MrWong99/redub/internal/stage"
	"github.com/MrWong99/redub/pkg/provider/translate"
)

const (
	// BatchSize is how many segment texts travel in one provider request.
	BatchSize = 20

	// interBatchDelay spaces successive batches to stay under rate limits
	// even when every request succeeds.
	interBatchDelay = 1500 * time.Millisecond

	// maxConsecutiveFailures aborts the job once this many batches fail
	// back to back. Isolated failures degrade instead.
	maxConsecutiveFailures = 3

	// defaultContext is the content hint generative providers put in
	// their prompt.
	defaultContext = "movie dialogue"

	defaultTimeout = 180 * time.Second
)

// Option configures the stage.
type Option func(*Stage)

// WithTimeout bounds a single batch request. Defaults to 3 minutes.
func WithTimeout(d time.Duration) Option {
	return func(s *Stage) { s.timeout = d }
}

// WithBatchSize overrides the number of segments per request.
func WithBatchSize(n int) Option {
	return func(s *Stage) { s.batchSize = n }
}

// WithInterBatchDelay overrides the pause between successive batches.
func WithInterBatchDelay(d time.Duration) Option {
	return func(s *Stage) { s.interBatchDelay = d }
}

// WithRetryDelays overrides the backoff schedules between attempts within a
// batch: transient applies to server and network failures, rateLimit to
// HTTP 429. Defaults to 2/4/8 s and 5/10/20 s.
func WithRetryDelays(transient, rateLimit []time.Duration) Option {
	return func(s *Stage) {
		s.retryDelays = transient
		s.rateDelays = rateLimit
	}
}

// WithContext sets the content hint passed to generative providers, e.g.
// "documentary narration". Defaults to "movie dialogue".
func WithContext(hint string) Option {
	return func(s *Stage) { s.context = hint }
}

// WithProviderName sets the provider label recorded in metrics. When the
// stage runs behind a fallback chain this is normally the primary's name.
func WithProviderName(name string) Option {
	return func(s *Stage) { s.providerName = name }
}

// Stage is the translation stage.
type Stage struct {
	provider     translate.Provider
	providerName string
	context      string

	batchSize       int
	timeout         time.Duration
	interBatchDelay time.Duration
	retryDelays     []time.Duration
	rateDelays      []time.Duration
}

var _ stage.Runner = (*Stage)(nil)

// New creates the translation stage on top of the given provider, which is
// usually a fallback chain of a rule-based and a generative backend.
func New(provider translate.Provider, opts ...Option) *Stage {
	s := &Stage{
		provider:        provider,
		providerName:    "translate",
		context:         defaultContext,
		batchSize:       BatchSize,
		timeout:         defaultTimeout,
		interBatchDelay: interBatchDelay,
		retryDelays:     resilience.TransientBackoff,
		rateDelays:      resilience.RateLimitBackoff,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name returns the stage name.
func (s *Stage) Name() string { return job.StageTranslate }

// Run translates every segment with text into the target language, keeping
// the source text in OriginalText. Segments without text pass through.
func (s *Stage) Run(ctx context.Context, j *job.Job) error {
	segs := j.Segments()
	idx := make([]int, 0, len(segs))
	for i := range segs {
		if segs[i].NeedsSpeech() {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		slog.Info("translate: no segments with text, skipping")
		return nil
	}

	batch := translate.Batch{
		SourceLang: j.SourceLanguage(),
		TargetLang: j.Options.TargetLanguage,
		Context:    s.context,
	}

	var translated, failedBatches, consecutive int
	total := (len(idx) + s.batchSize - 1) / s.batchSize
	for n := 0; n*s.batchSize < len(idx); n++ {
		if n > 0 && s.interBatchDelay > 0 {
			if err := sleepCtx(ctx, s.interBatchDelay); err != nil {
				return fmt.Errorf("translate: %w", err)
			}
		}

		window := idx[n*s.batchSize : min((n+1)*s.batchSize, len(idx))]
		batch.Lines = make([]string, len(window))
		for i, si := range window {
			batch.Lines[i] = segs[si].Text
		}

		out, err := s.translateBatch(ctx, j, batch)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("translate: %w", err)
			}
			failedBatches++
			consecutive++
			j.Metrics.RecordTranslateBatch(ctx, s.providerName, "error")
			slog.Warn("translate: batch failed",
				"batch", n+1,
				"total_batches", total,
				"consecutive_failures", consecutive,
				"error", err)
			if consecutive >= maxConsecutiveFailures {
				j.SetSegments(segs)
				j.UpdateArtifacts(func(a *job.Artifacts) { a.PartialCount = translated })
				return fmt.Errorf("translate: aborted after %d consecutive batch failures (%d of %d segments translated): %w",
					consecutive, translated, len(idx), err)
			}
			continue
		}
		consecutive = 0
		j.Metrics.RecordTranslateBatch(ctx, s.providerName, "ok")

		for i, si := range window {
			segs[si].OriginalText = segs[si].Text
			segs[si].Text = strings.TrimSpace(out[i])
		}
		translated += len(window)
		slog.Debug("translate: batch done",
			"batch", n+1,
			"total_batches", total,
			"translated", translated)
	}

	j.SetSegments(segs)
	j.Metrics.RecordSegments(ctx, job.StageTranslate, "ok", translated)

	if failedBatches > 0 {
		j.UpdateArtifacts(func(a *job.Artifacts) { a.PartialCount = translated })
		return fmt.Errorf("%w: %d of %d batches kept their source text", stage.ErrDegraded, failedBatches, total)
	}
	return nil
}

// translateBatch runs one batch with per-failure-class backoff and enforces
// the count invariant: the provider must return exactly one line per input.
func (s *Stage) translateBatch(ctx context.Context, j *job.Job, batch translate.Batch) ([]string, error) {
	policy := resilience.RetryPolicy{
		Name:   "translate batch",
		Delays: s.retryDelays,
		DelayFor: func(attempt int, err error) time.Duration {
			if translate.IsRateLimited(err) && attempt < len(s.rateDelays) {
				return s.rateDelays[attempt]
			}
			return s.retryDelays[attempt]
		},
		Retryable: func(err error) bool {
			var se *translate.StatusError
			if !errors.As(err, &se) {
				return true // network-level failure, worth another try
			}
			return translate.IsRateLimited(err) || translate.IsServerErr(err)
		},
		OnRetry: func(int, error) {
			j.Metrics.RecordRetry(ctx, "translate")
		},
	}
	return resilience.RetryWithResult(ctx, policy, func(ctx context.Context) ([]string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		out, err := s.provider.TranslateBatch(attemptCtx, batch)
		if err != nil {
			if attemptCtx.Err() != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("attempt timed out after %s", s.timeout)
			}
			return nil, err
		}
		if len(out) != len(batch.Lines) {
			return nil, fmt.Errorf("provider returned %d lines for %d inputs", len(out), len(batch.Lines))
		}
		return out, nil
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
