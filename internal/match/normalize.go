package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// NormalizeURL reduces a url to a comparison key: trimmed, lowercased,
// scheme and leading "www." removed, trailing slashes dropped.
func NormalizeURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimRight(s, "/")
	return s
}

// NormalizeName case-folds a name and collapses internal whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(folder.String(name)), " ")
}

// NormalizeForSimilarity lowercases s, turns every rune that is not a letter
// or digit into a space and collapses runs of spaces.
func NormalizeForSimilarity(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
