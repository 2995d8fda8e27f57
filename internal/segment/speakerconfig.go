package segment

import (
	"encoding/json"
	"fmt"
	"os"
)

// SpeakerMode selects how speakers are assigned to voices during synthesis.
type SpeakerMode string

const (
	// SpeakerSingle voices every segment with one voice.
	SpeakerSingle SpeakerMode = "single"

	// SpeakerAlternating alternates a male and a female voice segment by
	// segment, ignoring diarization.
	SpeakerAlternating SpeakerMode = "alternating"

	// SpeakerMulti rotates segments through a configured speaker cast.
	SpeakerMulti SpeakerMode = "multi"

	// SpeakerSmart uses diarized gender plus an optional speaker
	// configuration file to drive per-speaker voice selection.
	SpeakerSmart SpeakerMode = "smart"
)

// IsValid reports whether m is a recognised speaker mode.
func (m SpeakerMode) IsValid() bool {
	switch m {
	case SpeakerSingle, SpeakerAlternating, SpeakerMulti, SpeakerSmart:
		return true
	}
	return false
}

// SpeakerInfo names one speaker in a speaker configuration file.
type SpeakerInfo struct {
	ID     int    `json:"id"`
	Name   string `json:"name,omitempty"`
	Gender Gender `json:"gender"`
}

// SegmentAssignment pins one segment to a speaker, overriding diarization.
type SegmentAssignment struct {
	SegmentID int    `json:"segment_id"`
	SpeakerID int    `json:"speaker_id"`
	Gender    Gender `json:"gender,omitempty"`
}

// SpeakerConfig is the speaker configuration file consumed in smart mode.
// It feeds diarization results (possibly hand-corrected) into synthesis.
type SpeakerConfig struct {
	Mode          SpeakerMode `json:"mode"`
	DefaultGender Gender      `json:"defaultGender,omitempty"`

	Speakers []SpeakerInfo `json:"speakers,omitempty"`

	// Assignments override the diarized speaker of individual segments.
	Assignments []SegmentAssignment `json:"segment_assignments,omitempty"`
}

// Validate checks mode and gender labels.
func (c *SpeakerConfig) Validate() error {
	if c.Mode != "" && !c.Mode.IsValid() {
		return fmt.Errorf("segment: invalid speaker mode %q", c.Mode)
	}
	if c.DefaultGender != "" && !c.DefaultGender.IsValid() {
		return fmt.Errorf("segment: invalid default gender %q", c.DefaultGender)
	}
	for _, s := range c.Speakers {
		if s.Gender != "" && !s.Gender.IsValid() {
			return fmt.Errorf("segment: speaker %d: invalid gender %q", s.ID, s.Gender)
		}
	}
	return nil
}

// Apply overwrites speaker fields on segs according to the configuration.
// Assignments are matched by segment ID; speakers provide the gender when an
// assignment does not carry one.
func (c *SpeakerConfig) Apply(segs List) {
	genderBySpeaker := make(map[int]Gender, len(c.Speakers))
	for _, s := range c.Speakers {
		genderBySpeaker[s.ID] = s.Gender
	}
	byID := make(map[int]*Segment, len(segs))
	for i := range segs {
		byID[segs[i].ID] = &segs[i]
	}
	for _, a := range c.Assignments {
		seg, ok := byID[a.SegmentID]
		if !ok {
			continue
		}
		seg.SpeakerID = a.SpeakerID
		switch {
		case a.Gender != "":
			seg.Gender = a.Gender
		case genderBySpeaker[a.SpeakerID] != "":
			seg.Gender = genderBySpeaker[a.SpeakerID]
		}
	}
}

// ReadSpeakerConfig loads and validates a speaker configuration file.
func ReadSpeakerConfig(path string) (*SpeakerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("segment: read speaker config %q: %w", path, err)
	}
	var c SpeakerConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("segment: parse speaker config %q: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// WriteFile marshals the configuration as indented JSON to path.
func (c *SpeakerConfig) WriteFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("segment: marshal speaker config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("segment: write speaker config %q: %w", path, err)
	}
	return nil
}
