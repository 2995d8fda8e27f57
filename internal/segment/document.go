package segment

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document is the portable segment JSON exchanged between stages and written
// next to the final output for downstream tooling.
type Document struct {
	// Language is the source language code of the transcript, or the target
	// language once the document holds translated segments.
	Language string `json:"language"`

	// LanguageProbability is the detection confidence when the language was
	// auto-detected, 0 when it was supplied.
	LanguageProbability float64 `json:"language_probability,omitempty"`

	// FullText is the concatenation of all segment texts.
	FullText string `json:"full_text"`

	// TotalSegments is len(Segments).
	TotalSegments int `json:"total_segments"`

	// TotalDuration is the source audio duration in seconds, which may exceed
	// the end of the last segment when the source ends in silence.
	TotalDuration float64 `json:"total_duration"`

	Segments List `json:"segments"`
}

// NewDocument builds a Document from a segment list. totalDuration should be
// the source audio duration; when 0, the end of the last segment is used.
func NewDocument(language string, segs List, totalDuration float64) *Document {
	if totalDuration <= 0 {
		totalDuration = segs.TotalDuration()
	}
	return &Document{
		Language:      language,
		FullText:      segs.FullText(),
		TotalSegments: len(segs),
		TotalDuration: Round(totalDuration),
		Segments:      segs,
	}
}

// WriteFile marshals the document as indented JSON to path.
func (d *Document) WriteFile(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("segment: marshal document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("segment: write document %q: %w", path, err)
	}
	return nil
}

// ReadDocument loads a Document from the JSON file at path.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("segment: read document %q: %w", path, err)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("segment: parse document %q: %w", path, err)
	}
	return &d, nil
}
