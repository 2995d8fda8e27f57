// Package prefs defines the interface for remembering voice choices across
// jobs.
//
// The pipeline works without it: a nil store simply disables preference
// lookups and the assigner falls back to its first-unused selection. With a
// store attached, every assignment and every piece of viewer feedback is
// recorded, and future jobs in the same language lean towards the voices
// that scored well. The scoring model is deliberately simple: an explicit
// rating moves the score by (rating−3)×0.5, a completed watch adds its
// watched fraction, and switching back to the original audio halves that
// credit. A voice needs at least [MinInteractions] data points before it is
// ever returned as a preference.
package prefs

import (
	"context"
	"time"

	"github.com/MrWong99/redub/internal/segment"
)

// MinInteractions is how many recorded outcomes a voice needs before
// PreferredVoice may return it. Below that the signal is noise.
const MinInteractions = 3

// FeatureDim is the dimension of voice feature vectors: mean pitch (Hz),
// pitch range (Hz), speaking rate (syllables/s) and RMS energy, in that
// order. Vectors are compared raw, so producers must use these units.
const FeatureDim = 4

// Assignment records one voice given to a speaker during a job.
type Assignment struct {
	JobID     string
	Language  string
	Gender    segment.Gender
	SpeakerID string
	VoiceID   string

	// Features optionally carries the voice's measured feature vector
	// (see FeatureDim). Empty skips the feature upsert.
	Features []float32
}

// Outcome is viewer feedback about a finished dub, tied to the voice that
// carried it.
type Outcome struct {
	JobID    string
	Language string
	VoiceID  string

	// Rating is the explicit 1..5 rating, 0 when the viewer gave none.
	Rating int

	// Completion is the watched fraction in [0,1].
	Completion float64

	// SwitchedBack reports that the viewer fell back to the original
	// audio track, a strong signal against the dub.
	SwitchedBack bool
}

// Delta converts the outcome into a score adjustment.
func (o Outcome) Delta() float64 {
	var d float64
	if o.Rating > 0 {
		d = (float64(o.Rating) - 3) * 0.5
	}
	w := o.Completion
	if o.SwitchedBack {
		w *= 0.5
	}
	return d + w
}

// JobSummary archives the headline numbers of a finished job.
type JobSummary struct {
	JobID          string
	SourcePath     string
	TargetLanguage string
	Status         string
	SyncGood       int
	SyncFair       int
	SyncPoor       int
	OverallLUFS    float64
	CreatedAt      time.Time
}

// Store persists voice preferences and job history across runs. All methods
// are safe for concurrent use.
type Store interface {
	// RecordAssignment notes which voice a speaker received, creating the
	// preference row if it is new and upserting the feature vector when
	// the assignment carries one.
	RecordAssignment(ctx context.Context, a Assignment) error

	// RecordOutcome folds viewer feedback into the voice's score.
	RecordOutcome(ctx context.Context, o Outcome) error

	// PreferredVoice returns the best-scoring voice for a language and
	// gender, or "" when no voice has enough recorded interactions.
	PreferredVoice(ctx context.Context, language string, gender segment.Gender) (string, error)

	// NearestVoices returns up to limit voice IDs for the language whose
	// feature vectors are closest to features, nearest first.
	NearestVoices(ctx context.Context, language string, features []float32, limit int) ([]string, error)

	// SaveJobSummary archives a finished job's record.
	SaveJobSummary(ctx context.Context, s JobSummary) error

	// Close releases the store's resources.
	Close() error
}
