// Package labels canonicalizes free-text flair labels for equality comparison.
package labels

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize decomposes compatibility forms, strips symbols and emoji, lowercases
// and collapses every run of non-alphanumeric runes to a single space.
// The result is only meant for comparison, never for display.
func Normalize(label string) string {
	if label == "" {
		return ""
	}

	decomposed := norm.NFKD.String(label)

	var b strings.Builder
	b.Grow(len(decomposed))
	pendingSpace := false
	for _, r := range decomposed {
		switch {
		case unicode.IsSymbol(r), unicode.Is(unicode.Mn, r):
			continue
		case unicode.IsLetter(r), unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingSpace = true
		}
	}
	return b.String()
}

// Equivalent reports whether two raw labels name the same category.
func Equivalent(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// NormalizeAll normalizes a list of aliases, dropping empty and repeated results.
func NormalizeAll(aliases []string) []string {
	out := make([]string, 0, len(aliases))
	seen := make(map[string]struct{}, len(aliases))
	for _, alias := range aliases {
		n := Normalize(alias)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
