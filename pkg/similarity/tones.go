package similarity

import "strings"

// UmlautPlaceholder is the letter every member of the ü family collapses to
// when tone marks are stripped. It follows the common pinyin input convention.
const UmlautPlaceholder = 'v'

var toneMarks = map[rune]rune{
	'ā': 'a', 'á': 'a', 'ǎ': 'a', 'à': 'a',
	'ē': 'e', 'é': 'e', 'ě': 'e', 'è': 'e',
	'ī': 'i', 'í': 'i', 'ǐ': 'i', 'ì': 'i',
	'ō': 'o', 'ó': 'o', 'ǒ': 'o', 'ò': 'o',
	'ū': 'u', 'ú': 'u', 'ǔ': 'u', 'ù': 'u',
	'ǖ': UmlautPlaceholder, 'ǘ': UmlautPlaceholder, 'ǚ': UmlautPlaceholder,
	'ǜ': UmlautPlaceholder, 'ü': UmlautPlaceholder,
}

// StripToneMarks lower-cases s and replaces every tone-marked vowel with its
// base vowel. Runes outside the table pass through unchanged.
func StripToneMarks(s string) string {
	return strings.Map(func(r rune) rune {
		if base, ok := toneMarks[r]; ok {
			return base
		}
		return r
	}, Fold(s))
}

// scriptRanges are the CJK Unified Ideograph blocks treated as the target
// logographic script.
var scriptRanges = [...]struct{ lo, hi rune }{
	{0x4E00, 0x9FFF},   // CJK Unified Ideographs
	{0x3400, 0x4DBF},   // Extension A
	{0x20000, 0x2A6DF}, // Extension B
}

// IsTargetScript reports whether any rune of s is a CJK ideograph.
func IsTargetScript(s string) bool {
	for _, r := range s {
		for _, rg := range scriptRanges {
			if r >= rg.lo && r <= rg.hi {
				return true
			}
		}
	}
	return false
}
