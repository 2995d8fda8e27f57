// Package assemble implements the timeline reassembly stage.
//
// Rendered clips are placed back onto the source timeline: a cursor walks
// the segments in start order, generated silence fills the gaps between
// them, and clips that missed their slot by more than 0.3 s are
// time-stretched to fit. Segments without a clip (blank text stays out of
// the walk entirely; failed renders do not) contribute silence of their
// original duration, so one broken segment never shifts everything after
// it. The pieces are concatenated into one continuous voice track whose
// duration must match the source within ±max(0.5 s, 1%).
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/redub/internal/job"
	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/internal/stage"
	"github.com/MrWong99/redub/pkg/media"
)

const (
	// residualTolerance mirrors the synthesis stage: clips within 0.3 s
	// of their slot are used as rendered.
	residualTolerance = 0.3

	// Assembled voice track format, matching the final mix target.
	sampleRate = 48000
	channels   = 2
)

// Stage is the assembly stage.
type Stage struct {
	prim media.Primitive
}

var _ stage.Runner = (*Stage)(nil)

// New creates the assembly stage on top of the given media primitive.
func New(prim media.Primitive) *Stage {
	return &Stage{prim: prim}
}

// Name returns the stage name.
func (s *Stage) Name() string { return job.StageAssemble }

// Run rebuilds the continuous voice track and records it as the
// AssembledAudio artifact.
func (s *Stage) Run(ctx context.Context, j *job.Job) error {
	total := j.SourceDuration()
	if total <= 0 {
		return fmt.Errorf("assemble: source duration unknown")
	}

	speech := make(segment.List, 0)
	for _, sg := range j.Segments() {
		if sg.NeedsSpeech() {
			speech = append(speech, sg)
		}
	}
	sort.SliceStable(speech, func(a, b int) bool { return speech[a].Start < speech[b].Start })

	// Fit clips to their slots in parallel; the cursor walk below is
	// sequential but no longer waits on per-segment stretches.
	paths := make([]string, len(speech))
	sem := semaphore.NewWeighted(int64(j.Options.Concurrency))
	var wg sync.WaitGroup
	for i := range speech {
		if speech[i].AudioPath == "" {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break // canceled, stop launching
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			paths[i] = s.fitClip(ctx, j, &speech[i])
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("assemble: %w", err)
	}

	var inputs []string
	silence := func(d float64, name string) error {
		path := j.ScratchPath(name)
		if err := s.prim.GenerateSilence(ctx, path, d, sampleRate, channels); err != nil {
			return fmt.Errorf("assemble: generate %.3fs silence: %w", d, err)
		}
		inputs = append(inputs, path)
		return nil
	}

	cursor := 0.0
	for i := range speech {
		sg := &speech[i]
		if gap := segment.Round(sg.Start - cursor); gap > 0 {
			if err := silence(gap, fmt.Sprintf("silence_%04d.wav", sg.ID)); err != nil {
				return err
			}
		}
		if paths[i] == "" {
			// Failed or unreadable render: hold the slot open.
			if err := silence(segment.Round(sg.Duration()), fmt.Sprintf("gap_%04d.wav", sg.ID)); err != nil {
				return err
			}
		} else {
			inputs = append(inputs, paths[i])
		}
		if sg.End > cursor {
			cursor = sg.End
		}
	}
	if trailing := segment.Round(total - cursor); trailing > 0 {
		if err := silence(trailing, "silence_tail.wav"); err != nil {
			return err
		}
	}

	out := j.ScratchPath("assembled.wav")
	if len(inputs) == 0 {
		if err := s.prim.GenerateSilence(ctx, out, total, sampleRate, channels); err != nil {
			return fmt.Errorf("assemble: generate %.3fs silence: %w", total, err)
		}
	} else if err := s.prim.Concat(ctx, inputs, out, sampleRate, channels); err != nil {
		return fmt.Errorf("assemble: concatenate %d pieces: %w", len(inputs), err)
	}

	got, err := s.prim.ProbeDuration(ctx, out)
	if err != nil {
		return fmt.Errorf("assemble: probe assembled track: %w", err)
	}
	tolerance := math.Max(0.5, 0.01*total)
	if diff := math.Abs(got - total); diff > tolerance {
		return fmt.Errorf("assemble: %w: track is %.3fs, source is %.3fs, deviation %.3fs exceeds %.3fs",
			stage.ErrInvariant, got, total, diff, tolerance)
	}

	j.UpdateArtifacts(func(a *job.Artifacts) { a.AssembledAudio = out })
	j.Metrics.RecordSegments(ctx, job.StageAssemble, "ok", len(speech))
	slog.Info("assemble: voice track ready",
		"pieces", len(inputs),
		"duration", got,
		"source_duration", total)
	return nil
}

// fitClip probes one rendered clip and stretches it onto its slot when it
// is more than the tolerance off. It returns the path to use on the
// timeline; an empty return means the caller substitutes silence. Stretch
// failures keep the unstretched clip rather than dropping the voice.
func (s *Stage) fitClip(ctx context.Context, j *job.Job, sg *segment.Segment) string {
	target := sg.Duration()
	current, err := s.prim.ProbeDuration(ctx, sg.AudioPath)
	if err != nil || current <= 0 {
		slog.Warn("assemble: clip unreadable, substituting silence",
			"segment", sg.ID,
			"clip", sg.AudioPath,
			"error", err)
		return ""
	}
	if target <= 0 || math.Abs(current-target) <= residualTolerance {
		return sg.AudioPath
	}

	dst := j.ScratchPath(fmt.Sprintf("stretched_%04d.wav", sg.ID))
	res, err := s.prim.Stretch(ctx, sg.AudioPath, dst, target/current)
	if err != nil {
		slog.Warn("assemble: stretch failed, using unstretched clip",
			"segment", sg.ID,
			"error", err)
		return sg.AudioPath
	}

	j.Metrics.RecordStretchRatio(ctx, string(res.Method), res.AppliedRatio)
	if res.Clamped {
		slog.Info("assemble: stretch ratio clamped",
			"segment", sg.ID,
			"requested", res.RequestedRatio,
			"applied", res.AppliedRatio)
	}
	slog.Debug("assemble: clip fitted",
		"segment", sg.ID,
		"from", current,
		"to", res.ActualDuration,
		"target", target)
	return dst
}
