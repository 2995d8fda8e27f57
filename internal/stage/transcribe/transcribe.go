// Package transcribe implements the speech recognition stage.
//
// The stage feeds the preprocessed 16 kHz track to an stt.Provider (normally
// a fallback group of the local model and a cloud API), retries transient
// failures with backoff, and converts the provider result into the pipeline's
// segment model: texts trimmed, boundaries rounded, and an initial speaker
// guess toggled at long gaps for the smart mode to refine later. Silent input
// is not an error; a provider failure after all retries is fatal because
// nothing downstream can run without segments.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/redub/internal/job"
	"github.com/MrWong99/redub/internal/resilience"
	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/internal/stage"
	"github.com/MrWong99/redub/pkg/provider/stt"
)

const (
	// minSilenceMs is the voice-activity gap separating utterances.
	minSilenceMs = 500

	// speakerGapSeconds toggles the initial speaker guess between 0 and 1.
	speakerGapSeconds = 2.0

	defaultTimeout = 300 * time.Second
)

// Option configures the stage.
type Option func(*Stage)

// WithTimeout bounds a single transcription attempt. Defaults to 5 minutes.
func WithTimeout(d time.Duration) Option {
	return func(s *Stage) { s.timeout = d }
}

// WithRetryDelays overrides the backoff schedule between attempts. Defaults
// to the transient schedule (2 s, 4 s, 8 s).
func WithRetryDelays(delays []time.Duration) Option {
	return func(s *Stage) { s.retryDelays = delays }
}

// Stage is the transcription stage.
type Stage struct {
	stt         stt.Provider
	timeout     time.Duration
	retryDelays []time.Duration
}

var _ stage.Runner = (*Stage)(nil)

// New creates the transcription stage on top of the given provider.
func New(provider stt.Provider, opts ...Option) *Stage {
	s := &Stage{
		stt:         provider,
		timeout:     defaultTimeout,
		retryDelays: resilience.TransientBackoff,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name returns the stage name.
func (s *Stage) Name() string { return job.StageTranscribe }

// Run transcribes the preprocessed audio and commits the segment list.
func (s *Stage) Run(ctx context.Context, j *job.Job) error {
	audioPath := j.Artifacts().PreprocessedAudio
	if audioPath == "" {
		return fmt.Errorf("transcribe: no preprocessed audio artifact")
	}

	req := stt.Request{
		AudioPath:      audioPath,
		Language:       NormalizeLanguage(j.Options.SourceLanguage),
		WordTimestamps: true,
		MinSilenceMs:   minSilenceMs,
	}

	policy := resilience.RetryPolicy{
		Name:   "transcribe",
		Delays: s.retryDelays,
		OnRetry: func(int, error) {
			j.Metrics.RecordRetry(ctx, "transcribe")
		},
	}
	res, err := resilience.RetryWithResult(ctx, policy, func(ctx context.Context) (*stt.Result, error) {
		return s.transcribeOnce(ctx, req)
	})
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	if j.Options.SourceLanguage == "" && res.Language != "" {
		j.SetDetectedLanguage(res.Language, res.LanguageProbability)
		slog.Info("transcribe: language detected",
			"language", res.Language,
			"probability", res.LanguageProbability)
	}

	segs := convert(res.Segments)
	if len(segs) == 0 {
		slog.Warn("transcribe: no speech recognized, continuing with an empty timeline")
		j.SetSegments(segs)
		return nil
	}

	segs.Normalize()
	if err := segs.Validate(); err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	j.SetSegments(segs)
	j.Metrics.RecordSegments(ctx, job.StageTranscribe, "ok", len(segs))
	return nil
}

// transcribeOnce runs a single attempt under the per-attempt deadline. A
// fired attempt deadline is reported as a plain error so the retry loop
// treats it as transient; the caller's own cancellation still aborts.
func (s *Stage) transcribeOnce(ctx context.Context, req stt.Request) (*stt.Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.stt.Transcribe(attemptCtx, req)
	if err != nil && attemptCtx.Err() != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("attempt timed out after %s", s.timeout)
	}
	return res, err
}

// convert maps provider segments onto the pipeline model, dropping blank
// texts and toggling the initial speaker guess across long gaps.
func convert(in []stt.Segment) segment.List {
	out := make(segment.List, 0, len(in))
	speaker := 0
	lastEnd := 0.0
	for _, rs := range in {
		if rs.Start-lastEnd > speakerGapSeconds {
			speaker = (speaker + 1) % 2
		}
		lastEnd = rs.End

		text := strings.TrimSpace(rs.Text)
		if text == "" {
			continue
		}

		words := make([]segment.Word, len(rs.Words))
		for i, w := range rs.Words {
			words[i] = segment.Word{Word: w.Text, Start: w.Start, End: w.End}
		}

		out = append(out, segment.Segment{
			ID:        len(out),
			Start:     rs.Start,
			End:       rs.End,
			Text:      text,
			Words:     words,
			SpeakerID: speaker,
		})
	}
	return out
}

// NormalizeLanguage reduces a language option to the code transcription
// backends expect: empty or "auto" request detection, anything else is cut
// to its lowercase base code ("pt-BR" becomes "pt").
func NormalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	base, _, _ := strings.Cut(lang, "-")
	return strings.ToLower(base)
}
