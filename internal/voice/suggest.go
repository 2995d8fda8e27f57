package voice

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the minimum Jaro-Winkler similarity a candidate
// needs to show up in suggestions.
const suggestThreshold = 0.70

type scoredID struct {
	id    string
	score float64
}

// Suggest returns the catalog voice IDs most similar to name, best match
// first, for "did you mean" hints when a configured voice does not exist.
// Voices with a human label match on the label too, so "bela" finds the
// Bella voice ID. At most limit entries are returned; an empty slice means
// nothing came close enough.
func (c Catalog) Suggest(name string, limit int) []string {
	input := strings.ToLower(strings.TrimSpace(name))
	if input == "" {
		return nil
	}

	var candidates []scoredID
	seen := make(map[string]bool)
	add := func(v Voice) {
		if seen[v.ID] {
			return
		}
		seen[v.ID] = true
		score := matchr.JaroWinkler(input, strings.ToLower(v.ID), false)
		if v.Name != "" {
			if s := matchr.JaroWinkler(input, strings.ToLower(v.Name), false); s > score {
				score = s
			}
		}
		if score >= suggestThreshold {
			candidates = append(candidates, scoredID{id: v.ID, score: score})
		}
	}
	for _, entry := range c {
		for _, v := range entry.Male {
			add(v)
		}
		for _, v := range entry.Female {
			add(v)
		}
	}
	return topIDs(candidates, limit)
}

// SuggestLanguage returns the catalog language codes most similar to code,
// best match first.
func (c Catalog) SuggestLanguage(code string, limit int) []string {
	input := strings.ToLower(strings.TrimSpace(code))
	if input == "" {
		return nil
	}

	var candidates []scoredID
	for _, lang := range c.Languages() {
		if s := matchr.JaroWinkler(input, lang, false); s >= suggestThreshold {
			candidates = append(candidates, scoredID{id: lang, score: s})
		}
	}
	return topIDs(candidates, limit)
}

// topIDs orders candidates by descending score with an alphabetical tie
// break, then truncates to limit.
func topIDs(candidates []scoredID, limit int) []string {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	ids := make([]string, len(candidates))
	for i, s := range candidates {
		ids[i] = s.id
	}
	return ids
}
