package translate

import (
	"fmt"
	"strings"
)

// languageNames maps language codes to the English names used in prompts.
// Models follow "translate into Brazilian Portuguese" far more reliably
// than a bare "pt-BR".
var languageNames = map[string]string{
	"ar":    "Arabic",
	"cs":    "Czech",
	"da":    "Danish",
	"de":    "German",
	"el":    "Greek",
	"en":    "English",
	"es":    "Spanish",
	"es-MX": "Latin American Spanish",
	"fi":    "Finnish",
	"fr":    "French",
	"hi":    "Hindi",
	"hu":    "Hungarian",
	"id":    "Indonesian",
	"it":    "Italian",
	"ja":    "Japanese",
	"ko":    "Korean",
	"nl":    "Dutch",
	"no":    "Norwegian",
	"pl":    "Polish",
	"pt":    "Portuguese",
	"pt-BR": "Brazilian Portuguese",
	"ro":    "Romanian",
	"ru":    "Russian",
	"sv":    "Swedish",
	"th":    "Thai",
	"tr":    "Turkish",
	"uk":    "Ukrainian",
	"vi":    "Vietnamese",
	"zh":    "Chinese",
}

// LanguageName returns the English name for a language code. Unknown
// regional codes fall back to their base language; unknown codes are
// returned unchanged.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	if base, _, ok := strings.Cut(code, "-"); ok {
		if name, okBase := languageNames[base]; okBase {
			return name
		}
	}
	return code
}

// SystemPrompt returns the instruction prompt a generative provider sends
// alongside the numbered enumeration of a batch.
func SystemPrompt(b Batch) string {
	material := b.Context
	if material == "" {
		material = "spoken dialogue"
	}
	return fmt.Sprintf(`You are a professional translator preparing %s for dubbing.
Translate each numbered line from %s into %s.

Rules:
- Keep every translation natural and speakable, close in length to the original so the dubbed audio fits its time slot.
- Preserve the tone and register of each line.
- Keep proper names and numbers unchanged.
- Reply in the same numbered format, one line per entry: [1] translation
- Output nothing except the numbered translations.`,
		material, LanguageName(b.SourceLang), LanguageName(b.TargetLang))
}
