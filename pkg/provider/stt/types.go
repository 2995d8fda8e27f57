package stt

import "strings"

// Word is a single recognized word with its timing in seconds from the
// start of the audio.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one contiguous utterance of recognized speech.
type Segment struct {
	// Start and End are offsets in seconds from the start of the audio.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Text is the recognized text, whitespace-trimmed.
	Text string `json:"text"`

	// Words holds per-word timing when the provider supports it; empty
	// otherwise.
	Words []Word `json:"words,omitempty"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Result is the outcome of transcribing one audio file.
type Result struct {
	// Language is the detected (or confirmed) ISO 639-1 language code.
	Language string `json:"language"`

	// LanguageProbability is the backend's confidence in the detected
	// language, in [0, 1]. Zero when the backend does not report one.
	LanguageProbability float64 `json:"language_probability"`

	// Segments is ordered by start time.
	Segments []Segment `json:"segments"`
}

// FullText returns every segment's text joined by single spaces.
func (r *Result) FullText() string {
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}

// WordCount returns the total number of timed words across all segments.
func (r *Result) WordCount() int {
	n := 0
	for _, s := range r.Segments {
		n += len(s.Words)
	}
	return n
}
