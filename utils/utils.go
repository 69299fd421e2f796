package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics returns s without combining marks ("Störung" becomes "Storung")
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// FoldText lower-cases s, removes diacritics and collapses whitespace, for
// case and accent insensitive keyword matching
func FoldText(s string) string {
	s = strings.ToLower(s)
	s = RemoveDiacritics(s)
	return strings.Join(strings.Fields(s), " ")
}
