// Package normalize folds titles for matching and cleans up synopsis markup.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// Matches anything that is not a letter, digit or space after folding.
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespace  = regexp.MustCompile(`\s+`)

	// Season, part and media-type qualifiers that differ between sources for the same show.
	qualifiers = []*regexp.Regexp{
		regexp.MustCompile(`\b(season|part|cour)\s*\d+\b`),
		regexp.MustCompile(`\b\d+(st|nd|rd|th)\s+(season|part|cour)\b`),
		regexp.MustCompile(`\bs\d+\b`),
		regexp.MustCompile(`\b(tv|ova|ona|movie|film|specials?)\b`),
	}
)

// FoldTitle decomposes accented characters and drops the combining marks.
// "Kaubōi Bibappu" -> "Kauboi Bibappu".
func FoldTitle(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Title lowercases, folds accents, strips punctuation and collapses whitespace.
// Qualifiers are kept.
func Title(s string) string {
	s = strings.ToLower(FoldTitle(s))
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// MatchTitle is Title with season, part and media-type qualifiers removed.
// "Attack on Titan Season 2" and "Attack on Titan (TV)" both become "attack on titan".
// A title made only of qualifiers is returned without stripping.
func MatchTitle(s string) string {
	base := Title(s)
	stripped := base
	for _, re := range qualifiers {
		stripped = re.ReplaceAllString(stripped, " ")
	}
	stripped = strings.TrimSpace(whitespace.ReplaceAllString(stripped, " "))
	if stripped == "" {
		return base
	}
	return stripped
}
