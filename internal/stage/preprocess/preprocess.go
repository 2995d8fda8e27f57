// Package preprocess implements the first pipeline stage: it pulls the audio
// out of the source media and cleans it up for transcription.
//
// Two artifacts leave this stage. The transcription track is 16 kHz mono PCM
// run through up to three optional filters (high-pass, denoise, loudness
// normalization); each filter that fails is skipped and the chain continues
// from the previous artifact. The background track is an untouched 48 kHz
// stereo extract kept aside as the mix bed, so the final mix layers the dub
// over the original music and effects rather than over the cleaned speech.
package preprocess

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/redub/internal/job"
	"github.com/MrWong99/redub/internal/stage"
	"github.com/MrWong99/redub/pkg/media"
)

const (
	// Transcription models want narrow-band mono; the mix bed keeps the
	// source's full bandwidth.
	speechSampleRate = 16000
	speechChannels   = 1
	bedSampleRate    = 48000
	bedChannels      = 2

	// highpassCutoffHz removes rumble below the speech band.
	highpassCutoffHz = 80
)

// Stage is the preprocess stage.
type Stage struct {
	media media.Primitive
}

var _ stage.Runner = (*Stage)(nil)

// New creates the preprocess stage on top of the given media primitive.
func New(prim media.Primitive) *Stage {
	return &Stage{media: prim}
}

// Name returns the stage name.
func (s *Stage) Name() string { return job.StagePreprocess }

// Run extracts both audio tracks and applies the enabled filter chain.
// Extraction failures are fatal; filter failures skip the filter.
func (s *Stage) Run(ctx context.Context, j *job.Job) error {
	speech := j.ScratchPath("extracted.wav")
	if err := s.media.ExtractAudio(ctx, j.SourcePath, speech, speechSampleRate, speechChannels); err != nil {
		return fmt.Errorf("preprocess: extract speech track: %w", err)
	}

	bed := j.ScratchPath("background.wav")
	if err := s.media.ExtractAudio(ctx, j.SourcePath, bed, bedSampleRate, bedChannels); err != nil {
		return fmt.Errorf("preprocess: extract background track: %w", err)
	}

	if d, err := s.media.ProbeDuration(ctx, speech); err != nil {
		slog.Warn("preprocess: probing source duration failed", "error", err)
	} else {
		j.SetSourceDuration(d)
	}

	current := speech
	skipped := 0

	opts := j.Options
	if opts.ApplyHighpass {
		current, skipped = s.filter(ctx, j, current, "highpass.wav",
			media.Highpass(highpassCutoffHz), "highpass", skipped)
	}
	if opts.ApplyNoiseReduction {
		current, skipped = s.filter(ctx, j, current, "denoised.wav",
			media.Denoise(opts.NoiseReductionStrength), "denoise", skipped)
	}
	if opts.ApplyNormalization {
		current, skipped = s.filter(ctx, j, current, "normalized.wav",
			media.Loudnorm, "normalize", skipped)
	}

	// A canceled context makes every remaining filter fail; that is an
	// abort, not a round of skips.
	if err := ctx.Err(); err != nil {
		return err
	}

	j.UpdateArtifacts(func(a *job.Artifacts) {
		a.PreprocessedAudio = current
		a.BackgroundAudio = bed
	})

	if skipped > 0 {
		return fmt.Errorf("%w: %d preprocessing filters skipped", stage.ErrDegraded, skipped)
	}
	return nil
}

// filter applies one optional filter, returning the new current artifact. On
// failure the prior artifact stays current and the skip is counted.
func (s *Stage) filter(ctx context.Context, j *job.Job, src, dstName, expr, name string, skipped int) (string, int) {
	dst := j.ScratchPath(dstName)
	if err := s.media.ApplyFilter(ctx, src, dst, expr); err != nil {
		slog.Warn("preprocess: filter failed, keeping prior audio",
			"filter", name,
			"error", err)
		return src, skipped + 1
	}
	return dst, skipped
}
