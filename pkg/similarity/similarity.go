// Package similarity provides the string primitives used to compare a
// recognised utterance against an expected answer: normalisation, tone-mark
// stripping, script detection, and rune-aware edit distance.
//
// Every function in this package is pure and safe for concurrent use.
package similarity

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize composes s to NFC, trims surrounding whitespace, and case-folds
// the result. Composition runs first so that a decomposed "a" + U+0300 and a
// precomposed "à" compare equal and count as a single edit-distance unit.
func Normalize(s string) string {
	return strings.TrimSpace(Fold(s))
}

// Fold composes s to NFC and case-folds it without trimming.
func Fold(s string) string {
	// cases.Caser is stateful, so a fresh one is built per call.
	return cases.Fold().String(norm.NFC.String(s))
}

// Levenshtein returns the edit distance between a and b counted in Unicode
// scalar values, with unit cost for insertion, deletion and substitution.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	return matchr.Levenshtein(a, b)
}

// Similarity returns 1 - Levenshtein(a, b) / max(len(a), len(b)), where
// lengths are measured in runes. Two empty strings have similarity 1.
func Similarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(Levenshtein(a, b))/float64(maxLen)
}
