package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/redub/internal/segment"
)

// pitchGenderThreshold splits speakers with unreported gender: a mean F0
// above it classifies as female, below as male.
const pitchGenderThreshold = 180.0

// defaultAvgPitch is assumed when diarization produced no pitch estimate.
const defaultAvgPitch = 200.0

// SpeakerTraits carries what diarization learned about a speaker.
type SpeakerTraits struct {
	// Gender as detected, or GenderUnknown when detection was inconclusive.
	Gender segment.Gender

	// AvgPitch is the speaker's mean fundamental frequency in Hz. Zero
	// means no estimate was produced.
	AvgPitch float64

	// Style is the preferred delivery style; empty selects StyleGeneral.
	Style string
}

// Preferrer supplies voice choices remembered from earlier jobs. A nil
// Preferrer disables the lookup. An empty returned ID means no preference
// is stored.
type Preferrer interface {
	PreferredVoice(ctx context.Context, language string, gender segment.Gender) (string, error)
}

// AssignerOption configures an [Assigner].
type AssignerOption func(*Assigner)

// WithPreferrer installs a preference source consulted before the
// first-unused selection.
func WithPreferrer(p Preferrer) AssignerOption {
	return func(a *Assigner) {
		a.prefs = p
	}
}

// Assigner maps speakers to catalog voices. Assignments are sticky: the
// first call for a speaker and language picks a voice, every later call
// returns the same ID. Voices already given out for a language are avoided
// while unused ones remain, so a two-speaker dialogue never collapses onto
// one voice. Safe for concurrent use.
type Assigner struct {
	catalog Catalog
	prefs   Preferrer

	mu       sync.Mutex
	assigned map[string]string          // speakerID_language -> voice ID
	used     map[string]map[string]bool // resolved language -> voice IDs given out
}

// NewAssigner returns an Assigner drawing from catalog.
func NewAssigner(catalog Catalog, opts ...AssignerOption) *Assigner {
	a := &Assigner{
		catalog:  catalog,
		assigned: make(map[string]string),
		used:     make(map[string]map[string]bool),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assign returns the voice ID for a speaker in the given target language.
func (a *Assigner) Assign(ctx context.Context, speakerID, language string, traits SpeakerTraits) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := speakerID + "_" + language
	if id, ok := a.assigned[key]; ok {
		return id
	}

	gender := traits.Gender
	if gender != segment.GenderMale && gender != segment.GenderFemale {
		gender = classifyByPitch(traits.AvgPitch)
	}

	voices := a.catalog.Voices(language, gender)
	if len(voices) == 0 {
		a.assigned[key] = FallbackVoiceID
		return FallbackVoiceID
	}

	style := traits.Style
	if style == "" {
		style = StyleGeneral
	}

	lang := a.catalog.Resolve(language)
	id := a.preferred(ctx, language, gender, voices)
	if id == "" {
		id = selectVoice(voices, a.used[lang], style)
	}

	a.assigned[key] = id
	if a.used[lang] == nil {
		a.used[lang] = make(map[string]bool)
	}
	a.used[lang][id] = true

	slog.Debug("voice assigned",
		"speaker", speakerID,
		"language", language,
		"gender", gender,
		"voice", id)
	return id
}

// Assignments returns a copy of the current speaker-to-voice mapping,
// keyed by speaker ID and language.
func (a *Assigner) Assignments() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.assigned))
	for k, v := range a.assigned {
		out[k] = v
	}
	return out
}

// preferred consults the preference source and validates that the stored
// voice is still one of the candidates. Lookup errors only skip the
// preference; assignment proceeds with the regular selection.
func (a *Assigner) preferred(ctx context.Context, language string, gender segment.Gender, voices []Voice) string {
	if a.prefs == nil {
		return ""
	}
	id, err := a.prefs.PreferredVoice(ctx, language, gender)
	if err != nil {
		slog.Debug("voice preference lookup failed", "language", language, "error", err)
		return ""
	}
	for _, v := range voices {
		if v.ID == id {
			return id
		}
	}
	return ""
}

// classifyByPitch falls back to the F0 heuristic when gender detection was
// inconclusive.
func classifyByPitch(avgPitch float64) segment.Gender {
	if avgPitch == 0 {
		avgPitch = defaultAvgPitch
	}
	if avgPitch > pitchGenderThreshold {
		return segment.GenderFemale
	}
	return segment.GenderMale
}

// selectVoice picks the first unused voice matching the requested style
// (any style counts when general is requested). With every candidate used
// it prefers a style match, then settles for the head of the list.
func selectVoice(voices []Voice, used map[string]bool, style string) string {
	for _, v := range voices {
		if used[v.ID] {
			continue
		}
		if style == StyleGeneral || v.Style == style {
			return v.ID
		}
	}
	for _, v := range voices {
		if v.Style == style {
			return v.ID
		}
	}
	return voices[0].ID
}

// ---- speaker planning ----

// PlanSegment decides which speaker identity voices the segment at index
// and with which gender. diarizedSpeaker and diarizedGender come from the
// diarization stage and only matter in smart mode. cast lists the
// configured genders for multi mode. defaultGender fills in whenever a
// mode has no better answer; unknown defaults to female.
func PlanSegment(mode segment.SpeakerMode, index, diarizedSpeaker int, diarizedGender, defaultGender segment.Gender, cast []segment.Gender) (string, segment.Gender) {
	if defaultGender != segment.GenderMale && defaultGender != segment.GenderFemale {
		defaultGender = segment.GenderFemale
	}
	switch mode {
	case segment.SpeakerAlternating:
		if index%2 == 0 {
			return "speaker_0", segment.GenderMale
		}
		return "speaker_1", segment.GenderFemale
	case segment.SpeakerMulti:
		if len(cast) == 0 {
			return "speaker_0", defaultGender
		}
		i := index % len(cast)
		g := cast[i]
		if g != segment.GenderMale && g != segment.GenderFemale {
			g = defaultGender
		}
		return fmt.Sprintf("speaker_%d", i), g
	case segment.SpeakerSmart:
		g := diarizedGender
		if g != segment.GenderMale && g != segment.GenderFemale {
			g = defaultGender
		}
		return fmt.Sprintf("speaker_%d", diarizedSpeaker), g
	default:
		return "speaker_0", defaultGender
	}
}
