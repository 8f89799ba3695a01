package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CanonicalLabel returns the form under which a label is stored and compared
// for uniqueness: surrounding whitespace removed, Unicode NFC.
// Composed and decomposed spellings of the same name therefore collide.
func CanonicalLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// FoldLabel normalizes a label for search (lowercase, no diacritics, spaces for dashes and underscores).
// It is never used for uniqueness.
func FoldLabel(label string) string {
	label = RemoveDiacritics(label)
	label = strings.ToLower(label)
	label = strings.NewReplacer("-", " ", "_", " ").Replace(label)
	return label
}

// MatchesQuery reports whether label contains query after folding both.
// An empty query matches everything.
func MatchesQuery(label, query string) bool {
	q := FoldLabel(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(FoldLabel(label), q)
}
