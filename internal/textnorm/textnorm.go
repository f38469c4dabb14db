// Package textnorm holds the locale cleanup rules shared by extraction and
// duplicate grouping.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics folds accented letters to their base form ("Québec" -> "Quebec").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CollapseSpace trims s and replaces every whitespace run with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Honorific prefixes, longest first so "Right Hon. " wins over "Hon. ".
var honorifics = []string{"Right Hon. ", "Hon. "}

// StripHonorific removes one leading honorific prefix if present.
func StripHonorific(name string) string {
	for _, prefix := range honorifics {
		if strings.HasPrefix(name, prefix) {
			return name[len(prefix):]
		}
	}
	return name
}

// NameKey normalizes a person's name for equality grouping: diacritics
// folded, lowercased, punctuation dropped, whitespace collapsed.
func NameKey(name string) string {
	name = strings.ToLower(StripDiacritics(StripHonorific(strings.TrimSpace(name))))

	var b strings.Builder
	prevSpace := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-':
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
