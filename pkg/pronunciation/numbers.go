package pronunciation

import (
	"maps"

	"github.com/MrWong99/learnchars/pkg/similarity"
)

var frenchNumberWords = map[string]int{
	"zéro": 0, "un": 1, "deux": 2, "trois": 3, "quatre": 4, "cinq": 5,
	"six": 6, "sept": 7, "huit": 8, "neuf": 9, "dix": 10,
	"onze": 11, "douze": 12, "treize": 13, "quatorze": 14, "quinze": 15,
	"seize": 16, "dix-sept": 17, "dix-huit": 18, "dix-neuf": 19, "vingt": 20,
}

var englishNumberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

// DefaultNumberWords returns the built-in lexicon of number words 0 through
// 20 in French and English. The returned map is a fresh copy.
func DefaultNumberWords() map[string]int {
	out := make(map[string]int, len(frenchNumberWords)+len(englishNumberWords))
	maps.Copy(out, englishNumberWords)
	// "six" is spelled the same in both languages and maps to the same value.
	maps.Copy(out, frenchNumberWords)
	return out
}

func normalizeLexicon(words map[string]int) map[string]int {
	out := make(map[string]int, len(words))
	for w, n := range words {
		out[similarity.Normalize(w)] = n
	}
	return out
}
