// Package job defines the unit of work flowing through the dubbing pipeline.
//
// A Job is created at submission, owns a scratch directory for the lifetime
// of the run, and collects everything the stages produce: the segment list,
// per-stage status, artifact paths, and the per-job collaborators that must
// not leak across jobs (the voice assigner and the TTS failover state).
// All exported methods are safe for concurrent use; the MCP server reads
// job state while the pipeline is still writing it.
package job

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/redub/internal/observe"
	"github.com/MrWong99/redub/internal/resilience"
	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/internal/voice"
	"github.com/MrWong99/redub/pkg/media"
)

// Stage names in pipeline execution order.
const (
	StagePreprocess = "preprocess"
	StageTranscribe = "transcribe"
	StageDiarize    = "diarize"
	StageTranslate  = "translate"
	StageSynthesize = "synthesize"
	StageAssemble   = "assemble"
	StageMix        = "mix"
)

// StageOrder lists the stage names in the order the orchestrator runs them.
var StageOrder = []string{
	StagePreprocess,
	StageTranscribe,
	StageDiarize,
	StageTranslate,
	StageSynthesize,
	StageAssemble,
	StageMix,
}

// Status is the state of a stage, and of the job as a whole.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"

	// StatusDegraded means the stage finished with losses the policy
	// tolerates. The job continues and the result carries a warning.
	StatusDegraded Status = "degraded"

	StatusFailed Status = "failed"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusDegraded, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusDegraded, StatusFailed:
		return true
	}
	return false
}

// OK reports whether a stage in this state lets the pipeline continue.
func (s Status) OK() bool {
	return s == StatusSucceeded || s == StatusDegraded
}

// Options are the per-job knobs supplied at submission. Zero values select
// the documented defaults where one exists.
type Options struct {
	// TargetLanguage is the language to dub into. Required.
	TargetLanguage string

	// SourceLanguage is the spoken language of the input. Empty means
	// auto-detect during transcription.
	SourceLanguage string

	// OutputFormat selects the final codec. Defaults to AAC.
	OutputFormat media.Codec

	// SpeakerMode selects how segments map to voices. Defaults to single.
	SpeakerMode segment.SpeakerMode

	// DefaultGender fills in whenever no better gender is known.
	// Defaults to female.
	DefaultGender segment.Gender

	// ApplyHighpass, ApplyNoiseReduction and ApplyNormalization toggle the
	// preprocessing sub-steps.
	ApplyHighpass       bool
	ApplyNoiseReduction bool
	ApplyNormalization  bool

	// NoiseReductionStrength in [0,1] scales the denoiser.
	NoiseReductionStrength float64

	// QuickMode selects the single-pass mix variant.
	QuickMode bool

	// BackgroundLevel is the linear gain of the original audio under the
	// dub. Zero selects the default of 0.18.
	BackgroundLevel float64

	// ReverbAmount adds room tone to the voice track before mixing.
	// Zero disables it.
	ReverbAmount float64

	// Concurrency bounds parallel per-segment work. Zero selects 4.
	Concurrency int

	// OutputPath is the explicit final output path. When empty the path is
	// derived from the source name and target language under OutputDir.
	OutputPath string

	// OutputDir is where derived outputs land. Empty means the source
	// file's directory.
	OutputDir string

	// ScratchRoot is the parent for the job's scratch directory. Empty
	// means the system temp directory.
	ScratchRoot string
}

// withDefaults returns a copy of o with zero values replaced by defaults.
func (o Options) withDefaults() Options {
	if o.OutputFormat == "" {
		o.OutputFormat = media.CodecAAC
	}
	if o.SpeakerMode == "" {
		o.SpeakerMode = segment.SpeakerSingle
	}
	if o.DefaultGender != segment.GenderMale && o.DefaultGender != segment.GenderFemale {
		o.DefaultGender = segment.GenderFemale
	}
	if o.BackgroundLevel <= 0 {
		o.BackgroundLevel = 0.18
	}
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	return o
}

// Deps are the per-job collaborators created alongside the job. Voices and
// Metrics get defaults when nil; TTS and SpeakerPlan may stay nil.
type Deps struct {
	// Voices assigns catalog voices to diarized speakers.
	Voices *voice.Assigner

	// TTS renders segments with primary/fallback failover. The failure
	// counter inside is job-scoped state, so it must be fresh per job.
	TTS *resilience.TTSFailover

	// Metrics receives the job's measurements.
	Metrics *observe.Metrics

	// SpeakerPlan is a parsed speaker configuration file, or nil.
	SpeakerPlan *segment.SpeakerConfig
}

// StageStatus is one row of the job's stage table.
type StageStatus struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Artifacts collects the paths and markers the stages produce. All paths
// except FinalOutput live inside the scratch directory.
type Artifacts struct {
	// PreprocessedAudio is the 16 kHz mono track transcription reads.
	PreprocessedAudio string `json:"preprocessed_audio,omitempty"`

	// BackgroundAudio is the untouched 48 kHz stereo extract used as the
	// mix bed.
	BackgroundAudio string `json:"background_audio,omitempty"`

	// TTSDir holds the rendered per-segment clips.
	TTSDir string `json:"tts_dir,omitempty"`

	// SpeakerConfig is the speaker plan the diarizer derived, written as a
	// reusable speaker configuration file.
	SpeakerConfig string `json:"speaker_config,omitempty"`

	// AssembledAudio is the continuous dubbed voice track.
	AssembledAudio string `json:"assembled_audio,omitempty"`

	// MixedAudio is the final mixdown before it is persisted or muxed.
	MixedAudio string `json:"mixed_audio,omitempty"`

	// FinalOutput is the persisted result outside the scratch directory.
	FinalOutput string `json:"final_output,omitempty"`

	// PartialCount is how many segments had been translated when the
	// translate stage aborted or ended degraded. Zero on full success.
	PartialCount int `json:"partial_count,omitempty"`

	// TTSSwitched reports that the primary synthesis provider was
	// abandoned for the fallback during this job.
	TTSSwitched bool `json:"tts_provider_switched,omitempty"`
}

// Job is one dubbing run from source media to final mixed track.
type Job struct {
	// ID is the unique job identifier.
	ID string

	// SourcePath is the input media file.
	SourcePath string

	// CreatedAt is the submission time in UTC.
	CreatedAt time.Time

	// Options are the submission options with defaults applied.
	Options Options

	// ScratchDir is the job-owned working directory, created eagerly at
	// submission and removed by Cleanup.
	ScratchDir string

	// Voices, TTS, Metrics and SpeakerPlan are the per-job collaborators.
	// They are set at creation and read-only afterwards.
	Voices      *voice.Assigner
	TTS         *resilience.TTSFailover
	Metrics     *observe.Metrics
	SpeakerPlan *segment.SpeakerConfig

	mu             sync.Mutex
	state          Status
	segments       segment.List
	stages         []StageStatus
	stageIndex     map[string]int
	artifacts      Artifacts
	sourceDuration float64
	detectedLang   string
	detectedProb   float64
	finalLUFS      float64
}

// New creates a job for the media file at sourcePath and eagerly creates its
// scratch directory. The source file must exist; a missing input is the one
// submission error worth catching before any stage runs.
func New(sourcePath string, opts Options, deps Deps) (*Job, error) {
	if sourcePath == "" {
		return nil, fmt.Errorf("job: source path is empty")
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("job: source file: %w", err)
	}
	opts = opts.withDefaults()
	if opts.TargetLanguage == "" {
		return nil, fmt.Errorf("job: target language is empty")
	}

	root := opts.ScratchRoot
	if root == "" {
		root = os.TempDir()
	}
	id := uuid.NewString()
	scratch := filepath.Join(root, "redub-"+id)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("job: create scratch dir: %w", err)
	}

	if deps.Voices == nil {
		deps.Voices = voice.NewAssigner(voice.EdgeCatalog())
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}

	j := &Job{
		ID:          id,
		SourcePath:  sourcePath,
		CreatedAt:   time.Now().UTC(),
		Options:     opts,
		ScratchDir:  scratch,
		Voices:      deps.Voices,
		TTS:         deps.TTS,
		Metrics:     deps.Metrics,
		SpeakerPlan: deps.SpeakerPlan,
		state:       StatusPending,
		stageIndex:  make(map[string]int),
	}
	j.initStages(StageOrder)
	return j, nil
}

// initStages seeds the stage table in execution order, all pending.
func (j *Job) initStages(names []string) {
	j.stages = make([]StageStatus, len(names))
	for i, name := range names {
		j.stages[i] = StageStatus{Name: name, Status: StatusPending}
		j.stageIndex[name] = i
	}
}

// Cleanup removes the scratch directory and everything in it.
func (j *Job) Cleanup() error {
	if j.ScratchDir == "" {
		return nil
	}
	if err := os.RemoveAll(j.ScratchDir); err != nil {
		return fmt.Errorf("job: remove scratch dir: %w", err)
	}
	return nil
}

// ScratchPath returns a path for name inside the job's scratch directory.
func (j *Job) ScratchPath(name string) string {
	return filepath.Join(j.ScratchDir, name)
}

// TTSDir returns the per-job directory for rendered clips, creating it and
// recording it as an artifact on first use.
func (j *Job) TTSDir() (string, error) {
	dir := j.ScratchPath("tts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("job: create tts dir: %w", err)
	}
	j.UpdateArtifacts(func(a *Artifacts) { a.TTSDir = dir })
	return dir, nil
}

// State returns the job's overall state.
func (j *Job) State() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// SetState records the job's overall state.
func (j *Job) SetState(s Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = s
}

// StartStage marks the named stage running. Unknown names are ignored.
func (j *Job) StartStage(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if i, ok := j.stageIndex[name]; ok {
		j.stages[i].Status = StatusRunning
	}
}

// FinishStage records the terminal status, duration and error of a stage.
func (j *Job) FinishStage(name string, status Status, d time.Duration, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	i, ok := j.stageIndex[name]
	if !ok {
		return
	}
	j.stages[i].Status = status
	j.stages[i].DurationMS = d.Milliseconds()
	if err != nil {
		j.stages[i].Error = err.Error()
	}
}

// Stage returns the status row for name.
func (j *Job) Stage(name string) (StageStatus, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if i, ok := j.stageIndex[name]; ok {
		return j.stages[i], true
	}
	return StageStatus{}, false
}

// Stages returns a copy of the stage table in execution order.
func (j *Job) Stages() []StageStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]StageStatus, len(j.stages))
	copy(out, j.stages)
	return out
}

// Segments returns a copy of the current segment list. Stages take the
// copy, transform it, and commit the result with SetSegments.
func (j *Job) Segments() segment.List {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(segment.List, len(j.segments))
	copy(out, j.segments)
	return out
}

// SetSegments commits a transformed segment list.
func (j *Job) SetSegments(segs segment.List) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.segments = segs
}

// Artifacts returns a copy of the artifact record.
func (j *Job) Artifacts() Artifacts {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.artifacts
}

// UpdateArtifacts applies fn to the artifact record under the job lock.
func (j *Job) UpdateArtifacts(fn func(*Artifacts)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.artifacts)
}

// SourceDuration returns the probed duration of the source audio in seconds,
// or 0 before preprocessing ran.
func (j *Job) SourceDuration() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sourceDuration
}

// SetSourceDuration records the probed source duration.
func (j *Job) SetSourceDuration(seconds float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sourceDuration = seconds
}

// DetectedLanguage returns the auto-detected source language and its
// probability. Empty when the language was supplied or not yet detected.
func (j *Job) DetectedLanguage() (string, float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.detectedLang, j.detectedProb
}

// SetDetectedLanguage records the transcriber's language detection.
func (j *Job) SetDetectedLanguage(lang string, probability float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.detectedLang = lang
	j.detectedProb = probability
}

// SourceLanguage returns the language transcription should assume: the
// submitted one, else the detected one, else empty.
func (j *Job) SourceLanguage() string {
	if j.Options.SourceLanguage != "" {
		return j.Options.SourceLanguage
	}
	lang, _ := j.DetectedLanguage()
	return lang
}

// FinalLoudness returns the measured integrated loudness of the final mix
// in LUFS, or 0 before mixing ran.
func (j *Job) FinalLoudness() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finalLUFS
}

// SetFinalLoudness records the final mix loudness.
func (j *Job) SetFinalLoudness(lufs float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finalLUFS = lufs
}
