// Package diarize implements pitch-based speaker analysis.
//
// For each segment the stage cuts the matching window out of the
// preprocessed track, estimates the fundamental frequency by normalized
// autocorrelation and classifies the speaker's gender from it. Long timelines
// are sampled evenly and the sampled verdicts propagate to their nearest
// neighbors at reduced confidence. A second pass maps genders onto stable
// speaker identities, and the derived speaker plan is written out as a
// reusable configuration file.
//
// The stage only runs in smart speaker mode; the other modes either ignore
// speakers entirely or follow fixed rotation. It is best-effort throughout:
// when analysis cannot produce a single verdict the segments fall back to one
// unknown-gender speaker and the stage reports a degraded result instead of
// failing the job.
package diarize

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/MrWong99/redub/internal/job"
	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/internal/stage"
	"github.com/MrWong99/redub/pkg/audio"
	"github.com/MrWong99/redub/pkg/media"
)

// Analysis windows are cut at the transcription format.
const (
	windowSampleRate = 16000
	windowChannels   = 1
)

// Pitch classification boundaries in Hz. The band between the male and
// female ceilings is scored against both and the better fit wins at reduced
// confidence.
const (
	maleCeilingHz   = 140.0
	femaleFloorHz   = 185.0
	overlapBandHz   = 45.0
	overlapDiscount = 0.7
)

// Config holds the analysis tunables.
type Config struct {
	// SampleThreshold is the segment count above which the timeline is
	// sampled instead of analyzed in full. Zero selects 50.
	SampleThreshold int

	// PropagationConfidence scales the confidence copied from a sampled
	// segment onto its unsampled neighbors. Zero selects 0.8. The value is
	// a modeling assumption, not a measured one, which is why it is a
	// tunable rather than a constant.
	PropagationConfidence float64

	// MinSegmentSeconds is the shortest segment worth analyzing. Zero
	// selects 0.3.
	MinSegmentSeconds float64
}

func (c Config) withDefaults() Config {
	if c.SampleThreshold <= 0 {
		c.SampleThreshold = 50
	}
	if c.PropagationConfidence <= 0 {
		c.PropagationConfidence = 0.8
	}
	if c.MinSegmentSeconds <= 0 {
		c.MinSegmentSeconds = 0.3
	}
	return c
}

// PitchFunc measures the fundamental frequency of the audio file at path.
// The boolean reports whether a clear pitch was found.
type PitchFunc func(path string) (float64, bool)

// Option configures the stage.
type Option func(*Stage)

// WithConfig replaces the analysis tunables.
func WithConfig(cfg Config) Option {
	return func(s *Stage) { s.cfg = cfg.withDefaults() }
}

// WithPitchFunc replaces the pitch measurement, mainly for tests.
func WithPitchFunc(fn PitchFunc) Option {
	return func(s *Stage) { s.pitch = fn }
}

// Stage is the diarization stage.
type Stage struct {
	media media.Primitive
	cfg   Config
	pitch PitchFunc
}

var _ stage.Runner = (*Stage)(nil)

// New creates the diarization stage on top of the given media primitive.
func New(prim media.Primitive, opts ...Option) *Stage {
	s := &Stage{
		media: prim,
		cfg:   Config{}.withDefaults(),
		pitch: measurePitch,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name returns the stage name.
func (s *Stage) Name() string { return job.StageDiarize }

// Run analyzes the timeline and commits speaker identities and genders.
func (s *Stage) Run(ctx context.Context, j *job.Job) error {
	segs := j.Segments()
	if len(segs) == 0 {
		return nil
	}
	if j.Options.SpeakerMode != segment.SpeakerSmart {
		slog.Debug("diarize: skipped", "speaker_mode", j.Options.SpeakerMode)
		return nil
	}

	if plan := j.SpeakerPlan; plan != nil && len(plan.Assignments) > 0 {
		plan.Apply(segs)
		j.SetSegments(segs)
		slog.Info("diarize: applied supplied speaker plan",
			"assignments", len(plan.Assignments))
		return nil
	}

	src := j.Artifacts().PreprocessedAudio
	if src == "" {
		return s.fallback(j, segs, fmt.Errorf("no preprocessed audio artifact"))
	}

	indices := sampleIndices(len(segs), s.cfg.SampleThreshold)
	verdicts := make(map[int]verdict, len(indices))
	eligible, classified := 0, 0

	for _, i := range indices {
		seg := segs[i]
		if seg.Duration() < s.cfg.MinSegmentSeconds {
			verdicts[i] = verdict{gender: segment.GenderUnknown}
			continue
		}
		eligible++

		window := j.ScratchPath(fmt.Sprintf("diarize_%04d.wav", seg.ID))
		if err := s.media.ExtractRange(ctx, src, window, seg.Start, seg.Duration(), windowSampleRate, windowChannels); err != nil {
			slog.Debug("diarize: window extraction failed",
				"segment", seg.ID, "error", err)
			verdicts[i] = verdict{gender: segment.GenderUnknown}
			continue
		}

		f0, ok := s.pitch(window)
		_ = os.Remove(window)
		if !ok {
			verdicts[i] = verdict{gender: segment.GenderUnknown}
			continue
		}

		g, conf := Classify(f0)
		verdicts[i] = verdict{gender: g, confidence: conf, pitch: f0}
		classified++
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if eligible > 0 && classified == 0 {
		return s.fallback(j, segs, fmt.Errorf("no segment produced a pitch"))
	}

	propagate(segs, indices, verdicts, s.cfg.PropagationConfidence)
	assignSpeakers(segs)
	j.SetSegments(segs)
	j.Metrics.RecordSegments(ctx, job.StageDiarize, "ok", len(segs))

	plan := derivePlan(segs)
	planPath := j.ScratchPath("speaker_config.json")
	if err := plan.WriteFile(planPath); err != nil {
		slog.Warn("diarize: writing speaker plan failed", "error", err)
	} else {
		j.UpdateArtifacts(func(a *job.Artifacts) { a.SpeakerConfig = planPath })
	}

	slog.Info("diarize: analysis complete",
		"segments", len(segs),
		"sampled", len(indices),
		"classified", classified,
		"plan_mode", plan.Mode)
	return nil
}

// fallback resets every segment to one unknown speaker and reports the
// degraded result.
func (s *Stage) fallback(j *job.Job, segs segment.List, cause error) error {
	for i := range segs {
		segs[i].SpeakerID = 0
		segs[i].Gender = segment.GenderUnknown
		segs[i].GenderConfidence = 0
	}
	j.SetSegments(segs)
	return fmt.Errorf("%w: diarization fell back to a single speaker: %v", stage.ErrDegraded, cause)
}

// verdict is one segment's analysis outcome.
type verdict struct {
	gender     segment.Gender
	confidence float64
	pitch      float64
}

// sampleIndices returns the segment indices to analyze: all of them up to
// the threshold, an even sample across the timeline beyond it.
func sampleIndices(n, threshold int) []int {
	step := 1
	if n > threshold {
		step = n / threshold
	}
	indices := make([]int, 0, n)
	for i := 0; i < n; i += step {
		indices = append(indices, i)
	}
	return indices
}

// propagate fills the unsampled segments from their nearest sampled neighbor
// at scaled confidence. The pitch itself is not copied; it only holds for
// the window it was measured on.
func propagate(segs segment.List, indices []int, verdicts map[int]verdict, scale float64) {
	for i := range segs {
		v, sampled := verdicts[i]
		if !sampled {
			nv := verdicts[nearestIndex(indices, i)]
			v = verdict{gender: nv.gender, confidence: nv.confidence * scale}
		}
		if v.gender == "" {
			v.gender = segment.GenderUnknown
		}
		segs[i].Gender = v.gender
		segs[i].GenderConfidence = v.confidence
		if v.pitch > 0 {
			segs[i].PitchHz = v.pitch
		}
	}
}

// nearestIndex returns the sampled index closest to i, preferring the
// earlier one on ties.
func nearestIndex(indices []int, i int) int {
	best := indices[0]
	bestDist := abs(i - best)
	for _, idx := range indices[1:] {
		if d := abs(i - idx); d < bestDist {
			best, bestDist = idx, d
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// assignSpeakers maps genders onto stable identities: male voices are
// speaker 0, female voices speaker 1, and unknown segments stay with
// whichever speaker was last heard.
func assignSpeakers(segs segment.List) {
	current := 0
	for i := range segs {
		switch segs[i].Gender {
		case segment.GenderMale:
			current = 0
		case segment.GenderFemale:
			current = 1
		}
		segs[i].SpeakerID = current
	}
}

// derivePlan builds the reusable speaker configuration from the analyzed
// timeline. A cast dominated by one gender collapses to single mode.
func derivePlan(segs segment.List) *segment.SpeakerConfig {
	male, female := 0, 0
	for _, s := range segs {
		switch s.Gender {
		case segment.GenderMale:
			male++
		case segment.GenderFemale:
			female++
		}
	}

	total := male + female
	switch {
	case total == 0:
		return &segment.SpeakerConfig{Mode: segment.SpeakerSingle, DefaultGender: segment.GenderFemale}
	case float64(male)/float64(total) > 0.9:
		return &segment.SpeakerConfig{Mode: segment.SpeakerSingle, DefaultGender: segment.GenderMale}
	case float64(female)/float64(total) > 0.9:
		return &segment.SpeakerConfig{Mode: segment.SpeakerSingle, DefaultGender: segment.GenderFemale}
	}

	def := segment.GenderFemale
	if male > female {
		def = segment.GenderMale
	}
	plan := &segment.SpeakerConfig{
		Mode:          segment.SpeakerSmart,
		DefaultGender: def,
		Speakers: []segment.SpeakerInfo{
			{ID: 0, Name: "Speaker 1", Gender: segment.GenderMale},
			{ID: 1, Name: "Speaker 2", Gender: segment.GenderFemale},
		},
	}
	for _, s := range segs {
		plan.Assignments = append(plan.Assignments, segment.SegmentAssignment{
			SegmentID: s.ID,
			SpeakerID: s.SpeakerID,
			Gender:    s.Gender,
		})
	}
	return plan
}

// Classify maps a fundamental frequency onto a gender verdict with a
// confidence in [0, 1].
func Classify(f0 float64) (segment.Gender, float64) {
	switch {
	case f0 <= 0:
		return segment.GenderUnknown, 0
	case f0 < maleCeilingHz:
		return segment.GenderMale, min(1, (maleCeilingHz-f0)/55+0.5)
	case f0 > femaleFloorHz:
		return segment.GenderFemale, min(1, (f0-femaleFloorHz)/70+0.5)
	}

	maleScore := (femaleFloorHz - f0) / overlapBandHz
	femaleScore := (f0 - maleCeilingHz) / overlapBandHz
	if maleScore > femaleScore {
		return segment.GenderMale, overlapDiscount * maleScore
	}
	return segment.GenderFemale, overlapDiscount * femaleScore
}

// measurePitch is the production PitchFunc: decode the window and run the
// autocorrelation estimator.
func measurePitch(path string) (float64, bool) {
	info, samples, err := audio.ReadWAVMono(path)
	if err != nil {
		slog.Debug("diarize: reading analysis window failed", "path", path, "error", err)
		return 0, false
	}
	return audio.EstimateF0(samples, info.SampleRate)
}
