// Package synthesize implements the per-segment speech rendering stage.
//
// Each segment with text is rendered through the job's TTS chain with the
// voice picked by the speaker plan and the prosody offsets of its detected
// emotion. Rendered clips land in the job's tts directory as
// segment_0000.<ext>. When a clip misses its slot by more than 0.3 s it is
// re-rendered once with a speaking-rate correction derived from the
// overshoot; the remaining residual grades the segment's sync quality.
// Segments render in parallel under the job's concurrency bound. Failed
// segments are tolerated up to a point: the stage succeeds when at least
// 80% of the renderable segments produced a clip, ends degraded below
// that, and fails outright when nothing rendered at all.
package synthesize

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/redub/internal/job"
	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/internal/stage"
	"github.com/MrWong99/redub/internal/voice"
	"github.com/MrWong99/redub/pkg/provider/tts"
)

const (
	// residualTolerance is the timing error in seconds beyond which one
	// corrective re-render happens.
	residualTolerance = 0.3

	// acceptanceRatio is the share of renderable segments that must
	// produce a clip for the stage to count as succeeded.
	acceptanceRatio = 0.8

	defaultTimeout = 120 * time.Second
)

// Option configures the stage.
type Option func(*Stage)

// WithTimeout bounds a single render call. Defaults to 2 minutes.
func WithTimeout(d time.Duration) Option {
	return func(s *Stage) { s.timeout = d }
}

// Stage is the synthesis stage. The TTS chain, voice assigner and speaker
// plan are per-job state and travel on the job itself.
type Stage struct {
	timeout time.Duration
}

var _ stage.Runner = (*Stage)(nil)

// New creates the synthesis stage.
func New(opts ...Option) *Stage {
	s := &Stage{timeout: defaultTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name returns the stage name.
func (s *Stage) Name() string { return job.StageSynthesize }

// Run renders every segment with text and commits clip paths and sync
// grades back to the job.
func (s *Stage) Run(ctx context.Context, j *job.Job) error {
	if j.TTS == nil {
		return fmt.Errorf("synthesize: no TTS provider configured")
	}

	segs := j.Segments()
	if j.SpeakerPlan != nil {
		j.SpeakerPlan.Apply(segs)
	}
	var cast []segment.Gender
	if j.SpeakerPlan != nil {
		for _, sp := range j.SpeakerPlan.Speakers {
			cast = append(cast, sp.Gender)
		}
	}

	var speakable []int
	for i := range segs {
		if segs[i].NeedsSpeech() {
			speakable = append(speakable, i)
		}
	}
	if len(speakable) == 0 {
		slog.Info("synthesize: no segments with text, skipping")
		return nil
	}

	dir, err := j.TTSDir()
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	ext := j.TTS.Format()

	slog.Info("synthesize: rendering segments",
		"segments", len(speakable),
		"concurrency", j.Options.Concurrency,
		"voice_format", ext)

	sem := semaphore.NewWeighted(int64(j.Options.Concurrency))
	var wg sync.WaitGroup
	for _, i := range speakable {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // canceled, stop launching
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			s.renderSegment(ctx, j, &segs[i], dir, ext, cast)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		j.SetSegments(segs)
		return fmt.Errorf("synthesize: %w", err)
	}

	rendered := 0
	for _, i := range speakable {
		if !segs[i].Failed && segs[i].AudioPath != "" {
			rendered++
		}
	}

	j.SetSegments(segs)
	if j.TTS.Switched() {
		j.UpdateArtifacts(func(a *job.Artifacts) { a.TTSSwitched = true })
	}
	j.Metrics.RecordSegments(ctx, job.StageSynthesize, "ok", rendered)
	if failed := len(speakable) - rendered; failed > 0 {
		j.Metrics.RecordSegments(ctx, job.StageSynthesize, "failed", failed)
	}

	switch {
	case rendered == 0:
		return fmt.Errorf("synthesize: all %d segments failed to render", len(speakable))
	case float64(rendered) < acceptanceRatio*float64(len(speakable)):
		return fmt.Errorf("%w: only %d of %d segments rendered",
			stage.ErrDegraded, rendered, len(speakable))
	}
	return nil
}

// renderSegment renders one segment, re-rendering once when the clip
// misses its slot. Render failures mark the segment instead of failing the
// stage; the assembler substitutes silence for it later.
func (s *Stage) renderSegment(ctx context.Context, j *job.Job, seg *segment.Segment, dir, ext string, cast []segment.Gender) {
	speaker, gender := voice.PlanSegment(
		j.Options.SpeakerMode, seg.ID, seg.SpeakerID, seg.Gender,
		j.Options.DefaultGender, cast)
	voiceID := j.Voices.Assign(ctx, speaker, j.Options.TargetLanguage, voice.SpeakerTraits{
		Gender:   gender,
		AvgPitch: seg.PitchHz,
	})

	emotion, prosody := voice.DetectEmotion(seg.Text)
	seg.Emotion = emotion

	req := tts.Request{
		Text:    seg.Text,
		Voice:   voiceID,
		RatePct: prosody.RatePct,
		PitchHz: prosody.PitchHz,
		OutPath: filepath.Join(dir, fmt.Sprintf("segment_%04d.%s", seg.ID, ext)),
	}

	clip, err := s.render(ctx, j, req)
	if err != nil {
		seg.Failed = true
		seg.AudioPath = ""
		j.Metrics.RecordTTSFailure(ctx, s.providerLabel(j))
		slog.Warn("synthesize: segment failed",
			"segment", seg.ID,
			"voice", voiceID,
			"error", err)
		return
	}

	target := seg.Duration()
	residual := clip.Duration - target
	if target > 0 && math.Abs(residual) > residualTolerance {
		adjust := int(math.Round((clip.Duration/target - 1) * 100))
		req.RatePct = voice.CombineRates(prosody.RatePct, adjust)
		slog.Debug("synthesize: re-rendering for timing",
			"segment", seg.ID,
			"residual", residual,
			"rate_pct", req.RatePct)
		if re, err := s.render(ctx, j, req); err == nil {
			clip = re
			residual = clip.Duration - target
		}
		// A failed re-render keeps the first clip; the assembler's
		// stretch pass absorbs what the rate correction could not.
	}

	seg.Failed = false
	seg.AudioPath = clip.Path
	seg.Sync = segment.ClassifySync(residual)
	j.Metrics.RecordSyncQuality(ctx, string(seg.Sync))
}

// render runs one synthesis call under the per-render deadline. Retries
// and the primary-to-fallback switch happen inside the job's TTS chain.
func (s *Stage) render(ctx context.Context, j *job.Job, req tts.Request) (*tts.Clip, error) {
	renderCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	clip, err := j.TTS.Synthesize(renderCtx, req)
	if err != nil {
		if renderCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("render timed out after %s", s.timeout)
		}
		return nil, err
	}
	j.Metrics.RecordTTSRender(ctx, s.providerLabel(j), time.Since(start))
	return clip, nil
}

func (s *Stage) providerLabel(j *job.Job) string {
	if j.TTS.Switched() {
		return "fallback"
	}
	return "primary"
}
