package voice

import (
	"strings"

	"github.com/MrWong99/redub/internal/segment"
)

// Prosody holds the offsets applied to a voice during synthesis.
type Prosody struct {
	// RatePct is the speaking rate offset in percent, e.g. +15.
	RatePct int
	// PitchHz is the pitch offset in hertz, e.g. -5.
	PitchHz int
}

// emotionRule ties an emotion's keyword cues to its prosody offsets.
type emotionRule struct {
	emotion  segment.Emotion
	prosody  Prosody
	keywords []string
}

// Rules are checked in order; the first keyword hit wins. Exclamatory joy
// lands on happy, hushed cues on calm, and interrogative cues on surprised
// with the raised pitch of a question. Disgusted has no textual cue and is
// only ever set from the outside.
var emotionRules = []emotionRule{
	{segment.EmotionAngry, Prosody{RatePct: 15, PitchHz: 10}, []string{"angry", "furious", "rage", "hate", "damn", "hell"}},
	{segment.EmotionSad, Prosody{RatePct: -10, PitchHz: -5}, []string{"sad", "sorry", "grief", "cry", "tears", "miss", "lost"}},
	{segment.EmotionHappy, Prosody{RatePct: 20, PitchHz: 15}, []string{"wow", "amazing", "incredible", "excited", "great", "yes!"}},
	{segment.EmotionFearful, Prosody{RatePct: 5, PitchHz: 5}, []string{"scared", "afraid", "fear", "help", "run", "danger"}},
	{segment.EmotionCalm, Prosody{RatePct: -15, PitchHz: -10}, []string{"shh", "quiet", "whisper", "secret", "psst"}},
	{segment.EmotionSurprised, Prosody{PitchHz: 8}, []string{"?", "what", "why", "how", "who", "where", "when"}},
}

// DetectEmotion scans text for emotional cues and returns the matched
// emotion along with its prosody offsets. Matching is a case-insensitive
// substring check, so "HELP!" still triggers the fearful rule. Text
// without any cue is neutral with zero offsets.
func DetectEmotion(text string) (segment.Emotion, Prosody) {
	lower := strings.ToLower(text)
	for _, rule := range emotionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.emotion, rule.prosody
			}
		}
	}
	return segment.EmotionNeutral, Prosody{}
}

// Combined speaking rate bounds accepted by the synthesis providers.
const (
	minRatePct = -50
	maxRatePct = 100
)

// CombineRates adds a timing correction to an emotion's base rate and
// clamps the sum to the range providers render cleanly.
func CombineRates(base, adjust int) int {
	total := base + adjust
	if total < minRatePct {
		return minRatePct
	}
	if total > maxRatePct {
		return maxRatePct
	}
	return total
}
