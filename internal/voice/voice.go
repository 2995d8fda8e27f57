// Package voice assigns synthesis voices to diarized speakers and derives
// per-segment prosody from text.
//
// A [Catalog] maps language codes to curated neural voices split by gender,
// including regional variants ("es-MX", "pt-BR", ...). The [Assigner] keeps
// assignments stable for the lifetime of a job: a speaker gets one voice on
// first sight and the same voice on every later segment, and distinct
// speakers receive distinct voices while any remain unused for the target
// language.
//
// Emotion detection is keyword based: [DetectEmotion] scans the segment
// text for cues and returns rate and pitch offsets the synthesis provider
// applies as prosody.
package voice

import (
	"sort"
	"strings"

	"github.com/MrWong99/redub/internal/segment"
)

// FallbackVoiceID is returned when no catalog entry covers the requested
// language at all.
const FallbackVoiceID = "en-US-JennyNeural"

// Delivery styles carried by catalog voices.
const (
	StyleGeneral    = "general"
	StyleExpressive = "expressive"
)

// Age brackets carried by catalog voices.
const (
	ageYoungAdult = "young_adult"
	ageAdult      = "adult"
	ageMature     = "mature"
)

// Voice is a single catalog entry.
type Voice struct {
	// ID is the identifier the synthesis provider expects, e.g.
	// "es-MX-JorgeNeural". For providers with opaque IDs, Name carries the
	// human label instead.
	ID string

	// Name is a human-readable label, set only when ID is opaque.
	Name string

	// Style is the delivery style, one of the Style constants.
	Style string

	// Age is a rough age bracket such as "adult".
	Age string
}

// GenderVoices holds one language's voices split by gender.
type GenderVoices struct {
	Male   []Voice
	Female []Voice
}

// Catalog maps language codes to available voices. Keys are lowercase base
// codes ("es") and regional variants ("es-mx").
type Catalog map[string]GenderVoices

// Resolve maps a requested language to the catalog key that serves it: the
// exact code first, then the base language, then English.
func (c Catalog) Resolve(language string) string {
	lang := strings.ToLower(language)
	if _, ok := c[lang]; ok {
		return lang
	}
	if base, _, found := strings.Cut(lang, "-"); found {
		if _, ok := c[base]; ok {
			return base
		}
	}
	return "en"
}

// Known reports whether the catalog covers language, either as an exact
// regional code or through its base language. Unlike [Catalog.Resolve] it
// does not fall back to English, so callers can reject language codes the
// catalog has never heard of.
func (c Catalog) Known(language string) bool {
	lang := strings.ToLower(language)
	if lang == "" {
		return false
	}
	if _, ok := c[lang]; ok {
		return true
	}
	base, _, found := strings.Cut(lang, "-")
	if !found {
		return false
	}
	_, ok := c[base]
	return ok
}

// Voices returns the candidate voices for a language and gender. When the
// requested gender has no voices the opposite side is returned, so a
// sparsely covered language still yields a usable voice. Unknown gender is
// treated as female.
func (c Catalog) Voices(language string, gender segment.Gender) []Voice {
	entry := c[c.Resolve(language)]
	voices, opposite := entry.Female, entry.Male
	if gender == segment.GenderMale {
		voices, opposite = entry.Male, entry.Female
	}
	if len(voices) == 0 {
		return opposite
	}
	return voices
}

// Contains reports whether id is one of the catalog's voices for language,
// either gender.
func (c Catalog) Contains(language, id string) bool {
	entry := c[c.Resolve(language)]
	for _, v := range entry.Male {
		if v.ID == id {
			return true
		}
	}
	for _, v := range entry.Female {
		if v.ID == id {
			return true
		}
	}
	return false
}

// Languages returns all catalog language codes in sorted order.
func (c Catalog) Languages() []string {
	langs := make([]string, 0, len(c))
	for lang := range c {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
