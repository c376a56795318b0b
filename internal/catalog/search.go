package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases a string and strips diacritics so "Azúcar" matches
// "azucar".
func Fold(s string) string {
	folded, _, err := transform.String(foldTransform, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(folded)
}

// matchFold reports whether needle is a folded substring of haystack. An
// empty needle matches everything.
func matchFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(Fold(haystack), Fold(needle))
}
