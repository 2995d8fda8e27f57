package translate

import (
	"fmt"
	"regexp"
	"strings"
)

// Generative providers translate a whole batch in one prompt. The batch is
// rendered as a numbered enumeration, one entry per line:
//
//	[1] first text
//	[2] second text
//
// and the model is instructed to answer in the same shape. ParseNumbered
// undoes the transformation, tolerating the ways models bend the format.

var (
	// entryMarker locates the "[N]" markers in a response.
	entryMarker = regexp.MustCompile(`\[\d+\]`)

	// linePrefix matches leading numbering on a single line during
	// fallback parsing: the "[3] ", "3. ", "3) " and "3: " forms.
	linePrefix = regexp.MustCompile(`^\s*(?:\[\d+\]|\d+[.):])\s*`)
)

// FormatNumbered renders lines as a 1-based numbered enumeration, one
// entry per line.
func FormatNumbered(lines []string) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, line)
	}
	return b.String()
}

// ParseNumbered extracts want entries from a numbered enumeration
// response.
//
// The primary parse splits the response at "[N]" markers, so entries may
// span several lines and any preamble before the first marker is ignored.
// When that does not yield exactly want entries, the fallback splits the
// response into non-empty lines and strips leading numbering from each.
// If both parses miss the count, an error reporting the counts is
// returned.
func ParseNumbered(s string, want int) ([]string, error) {
	entries := splitMarkers(s)
	if len(entries) == want {
		return entries, nil
	}

	lines := splitLines(s)
	if len(lines) == want {
		return lines, nil
	}

	return nil, fmt.Errorf("translate: response has %d numbered entries and %d lines, want %d", len(entries), len(lines), want)
}

// splitMarkers returns the trimmed text between consecutive "[N]" markers,
// in order of appearance.
func splitMarkers(s string) []string {
	locs := entryMarker.FindAllStringIndex(s, -1)
	entries := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		entries = append(entries, strings.TrimSpace(s[loc[1]:end]))
	}
	return entries
}

// splitLines returns the non-empty lines of s with leading numbering
// removed.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(linePrefix.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
