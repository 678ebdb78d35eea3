package walkthrough

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// fold normalizes compatibility forms (full-width letters, ligatures) and
// case so "ＹＥＳ" and "yes" compare equal.
func fold(s string) string {
	// A Caser keeps state, so each call gets its own.
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}

// MatchOption resolves free text to one of labels: an exact label first,
// then a unique folded match, then a 1-based option number.
func MatchOption(labels []string, text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, l := range labels {
		if l == text {
			return l, true
		}
	}

	want := fold(text)
	var found string
	matches := 0
	for _, l := range labels {
		if fold(l) == want {
			found = l
			matches++
		}
	}
	if matches == 1 {
		return found, true
	}

	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(labels) {
		return labels[n-1], true
	}
	return "", false
}
