// Package query parses free-text cover searches into structured fields.
package query

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	spaceRegex = regexp.MustCompile(`\s+`)

	// separators split "Artist - Album" style input, tried in order.
	separators = []string{" - ", " – ", " — ", ": "}
)

// Parsed is a free-text search broken into structured fields. Album and
// Title are mutually exclusive.
type Parsed struct {
	Artist string
	Album  string
	Title  string
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse splits free text into artist and album. Input with no recognized
// separator is treated as an album-only search. asTrack routes the second
// half to the title field instead.
func (p *Parser) Parse(text string, asTrack bool) Parsed {
	text = p.normalize(text)
	if text == "" {
		return Parsed{}
	}

	for _, sep := range separators {
		idx := strings.Index(text, sep)
		if idx <= 0 || idx+len(sep) >= len(text) {
			continue
		}
		artist := strings.TrimSpace(text[:idx])
		rest := strings.TrimSpace(text[idx+len(sep):])
		if artist == "" || rest == "" {
			continue
		}
		if asTrack {
			return Parsed{Artist: artist, Title: rest}
		}
		return Parsed{Artist: artist, Album: rest}
	}

	if asTrack {
		return Parsed{Title: text}
	}
	return Parsed{Album: text}
}

func (p *Parser) normalize(text string) string {
	text = strings.TrimSpace(text)
	text = norm.NFKC.String(text)
	// Collapses newlines too, so multi-line input folds into one query.
	return spaceRegex.ReplaceAllString(text, " ")
}
