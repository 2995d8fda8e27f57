// Package segment defines the timed speech segment model shared by every
// pipeline stage.
//
// A segment is a contiguous span of speech with start/end timestamps in
// seconds and the text spoken in that span. Stages consume a [List] and emit
// a transformed List; the struct is never mutated across stage boundaries
// except through the documented fields each stage owns (speaker fields in
// diarization, Text/OriginalText in translation, AudioPath and sync fields in
// synthesis).
//
// The package also provides the portable JSON document exchanged between
// stages ([Document]) and the speaker configuration file used in smart
// speaker mode ([SpeakerConfig]).
package segment

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// OverlapTolerance is the largest overlap, in seconds, between two adjacent
// segments that is repaired by truncation. Anything larger is an invariant
// violation and fails validation.
const OverlapTolerance = 0.050

// TimePrecision is the number of decimals kept on segment boundaries.
const TimePrecision = 3

// Gender classifies a diarized speaker's voice.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// IsValid reports whether g is a recognised gender label.
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderUnknown:
		return true
	}
	return false
}

// Emotion labels the dominant emotion detected in a segment's text. It drives
// the prosody adjustment applied during synthesis.
type Emotion string

const (
	EmotionNeutral   Emotion = "neutral"
	EmotionHappy     Emotion = "happy"
	EmotionSad       Emotion = "sad"
	EmotionAngry     Emotion = "angry"
	EmotionFearful   Emotion = "fearful"
	EmotionSurprised Emotion = "surprised"
	EmotionDisgusted Emotion = "disgusted"
	EmotionCalm      Emotion = "calm"
)

// IsValid reports whether e is a recognised emotion label.
func (e Emotion) IsValid() bool {
	switch e {
	case EmotionNeutral, EmotionHappy, EmotionSad, EmotionAngry,
		EmotionFearful, EmotionSurprised, EmotionDisgusted, EmotionCalm:
		return true
	}
	return false
}

// SyncQuality grades how closely a rendered clip matches its segment's
// source duration after synthesis and stretching.
type SyncQuality string

const (
	// SyncGood means the residual timing error is at most 0.5 s.
	SyncGood SyncQuality = "good"

	// SyncFair means the residual timing error is at most 1.0 s.
	SyncFair SyncQuality = "fair"

	// SyncPoor means the residual timing error exceeds 1.0 s.
	SyncPoor SyncQuality = "poor"
)

// ClassifySync grades an absolute timing residual in seconds.
func ClassifySync(residual float64) SyncQuality {
	switch {
	case math.Abs(residual) <= 0.5:
		return SyncGood
	case math.Abs(residual) <= 1.0:
		return SyncFair
	default:
		return SyncPoor
	}
}

// Word is a single word with its own timestamps inside a segment.
// Start and End are absolute positions in seconds on the source timeline.
type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

// Segment is one timed span of speech on the source timeline.
type Segment struct {
	// ID is a 0-based, monotonically increasing index within the job.
	ID int `json:"id"`

	// Start and End are seconds on the source timeline, rounded to
	// [TimePrecision] decimals. Start < End always holds after Normalize.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Text is the segment's transcript. After translation it holds the
	// target-language text; an empty Text excludes the segment from
	// synthesis and assembly fills its span with silence.
	Text string `json:"text"`

	// OriginalText preserves the source-language transcript once Text has
	// been replaced by the translation.
	OriginalText string `json:"original_text,omitempty"`

	// Words is the optional word-level timing detail within the segment.
	Words []Word `json:"words,omitempty"`

	// SpeakerID is the stable per-job identifier of the diarized speaker.
	SpeakerID int `json:"speaker_id"`

	// Gender and GenderConfidence are the diarizer's verdict for SpeakerID.
	Gender           Gender  `json:"gender,omitempty"`
	GenderConfidence float64 `json:"gender_confidence,omitempty"`

	// PitchHz is the fundamental frequency measured on the segment's source
	// audio, 0 when pitch analysis was skipped or failed. Voice assignment
	// averages it per speaker.
	PitchHz float64 `json:"pitch_hz,omitempty"`

	// Emotion drives the synthesis prosody adjustment.
	Emotion Emotion `json:"emotion,omitempty"`

	// AudioPath points at the rendered TTS clip once synthesis succeeds.
	AudioPath string `json:"audio_path,omitempty"`

	// Failed marks a segment whose synthesis exhausted all retries.
	// Assembly substitutes silence of the segment's duration.
	Failed bool `json:"failed,omitempty"`

	// Sync grades the final timing residual of the rendered clip.
	Sync SyncQuality `json:"sync,omitempty"`
}

// Duration returns End - Start in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// NeedsSpeech reports whether the segment should be synthesized: it has
// non-blank text after translation.
func (s Segment) NeedsSpeech() bool {
	return strings.TrimSpace(s.Text) != ""
}

// List is an ordered collection of segments forming a sparse timeline.
// Gaps between segments represent silence or music to preserve.
type List []Segment

// ErrUnsorted is reported by Validate when segments are not ordered by Start.
var ErrUnsorted = errors.New("segment: list not sorted by start")

// ErrOverlap is reported by Validate when two adjacent segments overlap by
// more than [OverlapTolerance].
var ErrOverlap = errors.New("segment: overlap exceeds tolerance")

// Validate checks the timeline invariants: every segment has
// 0 <= Start < End, the list is sorted by Start ascending, and adjacent
// segments overlap by at most [OverlapTolerance] seconds. The returned error
// joins one entry per violation.
func (l List) Validate() error {
	var errs []error
	for i, s := range l {
		if s.Start < 0 {
			errs = append(errs, fmt.Errorf("segment %d: negative start %.3f", s.ID, s.Start))
		}
		if s.Start >= s.End {
			errs = append(errs, fmt.Errorf("segment %d: start %.3f >= end %.3f", s.ID, s.Start, s.End))
		}
		if i == 0 {
			continue
		}
		prev := l[i-1]
		if s.Start < prev.Start {
			errs = append(errs, fmt.Errorf("%w: segment %d starts before segment %d", ErrUnsorted, s.ID, prev.ID))
			continue
		}
		if overlap := prev.End - s.Start; overlap > OverlapTolerance {
			errs = append(errs, fmt.Errorf("%w: segments %d and %d overlap by %.3f s", ErrOverlap, prev.ID, s.ID, overlap))
		}
	}
	return errors.Join(errs...)
}

// Normalize sorts the list by Start, rounds all boundaries to
// [TimePrecision] decimals, and repairs overlaps within [OverlapTolerance]
// by truncating the earlier segment's End to the later segment's Start.
// Overlaps beyond the tolerance are left intact for Validate to report.
func (l List) Normalize() {
	sort.SliceStable(l, func(i, j int) bool { return l[i].Start < l[j].Start })
	for i := range l {
		l[i].Start = Round(l[i].Start)
		l[i].End = Round(l[i].End)
		for j := range l[i].Words {
			l[i].Words[j].Start = Round(l[i].Words[j].Start)
			l[i].Words[j].End = Round(l[i].Words[j].End)
		}
	}
	for i := 1; i < len(l); i++ {
		overlap := l[i-1].End - l[i].Start
		if overlap > 0 && overlap <= OverlapTolerance {
			l[i-1].End = l[i].Start
		}
	}
}

// TotalDuration returns the End of the last segment, or 0 for an empty list.
// The list must be sorted.
func (l List) TotalDuration() float64 {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].End
}

// FullText joins all segment texts with single spaces, skipping blanks.
func (l List) FullText() string {
	parts := make([]string, 0, len(l))
	for _, s := range l {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// SpeechCount returns how many segments have non-blank text.
func (l List) SpeechCount() int {
	n := 0
	for _, s := range l {
		if s.NeedsSpeech() {
			n++
		}
	}
	return n
}

// Round rounds t to [TimePrecision] decimals.
func Round(t float64) float64 {
	const scale = 1000 // 10^TimePrecision
	return math.Round(t*scale) / scale
}
