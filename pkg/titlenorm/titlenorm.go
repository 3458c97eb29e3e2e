// Package titlenorm provides album and artist title normalization for cover art search.
package titlenorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	discRegex       = regexp.MustCompile(`(?i)\s*[-–]?\s*[\(\[]\s*(disc|disk|cd|volume|vol\.?)\s*[0-9IVX]+\s*[\)\]]\s*$`)
	bareDiscRegex   = regexp.MustCompile(`(?i)\s+[-–]\s*(disc|disk|cd|volume|vol\.?)\s*[0-9IVX]+\s*$`)
	editionRegex    = regexp.MustCompile(`(?i)\s*[\(\[]\s*(bonus\s+(cd|disc|track(s)?)|ep)\s*[\)\]]\s*$`)
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// StripDisc removes disc, volume and medium qualifiers from an album title,
// e.g. "The Wall (Disc 1)" becomes "The Wall". The rest of the title is
// preserved as-is.
func StripDisc(album string) string {
	album = discRegex.ReplaceAllString(album, "")
	album = bareDiscRegex.ReplaceAllString(album, "")
	album = editionRegex.ReplaceAllString(album, "")
	return strings.TrimSpace(album)
}

// Key folds a string into a canonical lowercase form suitable for cache keys
// and duplicate detection: accents are stripped, punctuation collapses to
// spaces, runs of whitespace collapse to one space.
func Key(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	text = strings.ToLower(text)
	text = strings.TrimSpace(text)

	return text
}
