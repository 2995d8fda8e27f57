// Package mix implements the final pipeline stage: it lays the dubbed voice
// track over the untouched background extract and persists the result.
//
// The voice is brought to −14 LUFS (gain clamped to ±20 dB), the background
// is attenuated to a fraction of its level, and the weighted sum is
// re-normalized to the broadcast targets. Loudness analyses are best-effort:
// a failed measurement falls back to unity gain rather than aborting, and
// quick mode skips them entirely. Only producing the track itself is fatal.
package mix

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/redub/internal/job"
	"github.com/MrWong99/redub/internal/stage"
	"github.com/MrWong99/redub/pkg/media"
)

const (
	// dubTargetLUFS is where the voice track should sit before mixing,
	// louder than the final −16 LUFS program so it dominates the bed.
	dubTargetLUFS = -14.0

	// gainLimitDB bounds the voice correction; anything beyond ±20 dB
	// means the measurement, not the track, is off.
	gainLimitDB = 20.0
)

// Stage is the mix stage.
type Stage struct {
	prim media.Primitive
}

var _ stage.Runner = (*Stage)(nil)

// New creates the mix stage on top of the given media primitive.
func New(prim media.Primitive) *Stage {
	return &Stage{prim: prim}
}

// Name returns the stage name.
func (s *Stage) Name() string { return job.StageMix }

// Run produces the final mixdown and writes it outside the scratch
// directory, muxed back into the source container when the input was video.
func (s *Stage) Run(ctx context.Context, j *job.Job) error {
	arts := j.Artifacts()
	if arts.BackgroundAudio == "" {
		return fmt.Errorf("mix: no background track recorded")
	}
	if arts.AssembledAudio == "" {
		return fmt.Errorf("mix: no assembled voice track recorded")
	}

	voice := arts.AssembledAudio
	voiceGain := 0.0

	if !j.Options.QuickMode {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bg, err := s.prim.AnalyzeLoudness(gctx, arts.BackgroundAudio)
			if err != nil {
				slog.Warn("mix: background loudness analysis failed", "error", err)
				return nil
			}
			slog.Debug("mix: background measured", "lufs", bg.IntegratedLUFS)
			j.Metrics.RecordLoudness(gctx, "background", bg.IntegratedLUFS)
			return nil
		})
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vl, err := s.prim.AnalyzeLoudness(gctx, voice)
			if err != nil {
				slog.Warn("mix: voice loudness analysis failed, mixing at unity", "error", err)
				return nil
			}
			voiceGain = clampGain(dubTargetLUFS - vl.IntegratedLUFS)
			j.Metrics.RecordLoudness(gctx, "voice", vl.IntegratedLUFS)
			return nil
		})
		// Failed measurements were already downgraded to warnings; only
		// cancellation propagates out of the group.
		if err := g.Wait(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if j.Options.ReverbAmount > 0 {
		voice = s.roomTone(ctx, j, voice)
	}

	mixed := j.ScratchPath("mixed." + j.Options.OutputFormat.Ext())
	spec := media.MixSpec{
		Background:     arts.BackgroundAudio,
		Voice:          voice,
		Output:         mixed,
		BackgroundGain: j.Options.BackgroundLevel,
		VoiceGainDB:    voiceGain,
		Codec:          j.Options.OutputFormat,
		Quick:          j.Options.QuickMode,
	}
	if err := s.prim.Mix(ctx, spec); err != nil {
		return fmt.Errorf("mix: produce final track: %w", err)
	}

	if !j.Options.QuickMode {
		if fl, err := s.prim.AnalyzeLoudness(ctx, mixed); err != nil {
			slog.Warn("mix: final loudness measurement failed", "error", err)
		} else {
			j.SetFinalLoudness(fl.IntegratedLUFS)
			j.Metrics.RecordLoudness(ctx, "final", fl.IntegratedLUFS)
		}
	}

	final := outputPath(j)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("mix: create output directory: %w", err)
	}
	if media.IsVideoPath(j.SourcePath) {
		if err := s.prim.Mux(ctx, j.SourcePath, mixed, final); err != nil {
			return fmt.Errorf("mix: mux audio into video: %w", err)
		}
	} else {
		if err := moveFile(mixed, final); err != nil {
			return fmt.Errorf("mix: persist final track: %w", err)
		}
		mixed = final
	}

	j.UpdateArtifacts(func(a *job.Artifacts) {
		a.MixedAudio = mixed
		a.FinalOutput = final
	})
	slog.Info("mix: final output written",
		"path", final,
		"voice_gain_db", voiceGain,
		"background_gain", j.Options.BackgroundLevel,
		"quick", j.Options.QuickMode)
	return nil
}

// roomTone layers subtle ambiance onto the voice track so the dry TTS sits
// in the same acoustic space as the bed. Failure keeps the dry track.
func (s *Stage) roomTone(ctx context.Context, j *job.Job, voice string) string {
	dst := j.ScratchPath("voice_roomtone.wav")
	if err := s.prim.ApplyFilter(ctx, voice, dst, media.RoomTone(j.Options.ReverbAmount)); err != nil {
		slog.Warn("mix: room tone failed, keeping dry voice", "error", err)
		return voice
	}
	return dst
}

// clampGain bounds a dB correction to ±gainLimitDB.
func clampGain(db float64) float64 {
	if db > gainLimitDB {
		return gainLimitDB
	}
	if db < -gainLimitDB {
		return -gainLimitDB
	}
	return db
}

// outputPath resolves where the final result lands. An explicit OutputPath
// wins; otherwise the name derives from the source, the target language and
// the output format, next to the source unless OutputDir says otherwise.
func outputPath(j *job.Job) string {
	if j.Options.OutputPath != "" {
		return j.Options.OutputPath
	}
	dir := j.Options.OutputDir
	if dir == "" {
		dir = filepath.Dir(j.SourcePath)
	}
	srcExt := filepath.Ext(j.SourcePath)
	base := strings.TrimSuffix(filepath.Base(j.SourcePath), srcExt)
	ext := j.Options.OutputFormat.Ext()
	if media.IsVideoPath(j.SourcePath) {
		// Keep the source container; video streams are copied, not
		// re-encoded.
		ext = strings.TrimPrefix(srcExt, ".")
	}
	return filepath.Join(dir, fmt.Sprintf("%s_dubbed_%s.%s", base, j.Options.TargetLanguage, ext))
}

// moveFile renames src to dst, copying across filesystems when rename is
// not possible.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
