package similarity

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims whitespace", "  Ni Hao \t", "ni hao"},
		{"folds case", "DIÀN", "diàn"},
		{"composes combining marks", "dia\u0300n", "di\u00e0n"},
		{"leaves ideographs", " 你好 ", "你好"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevenshtein_Identity(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "a", "diàn", "你好", "十四", "shí sì", "𠀀𠀁"} {
		if d := Levenshtein(s, s); d != 0 {
			t.Errorf("Levenshtein(%q, %q) = %d, want 0", s, s, d)
		}
	}
}

func TestLevenshtein_Symmetric(t *testing.T) {
	t.Parallel()
	pairs := [][2]string{
		{"kitten", "sitting"},
		{"diàn", "dian"},
		{"你好", "你"},
		{"", "abc"},
		{"shí sì", "shi si"},
	}
	for _, p := range pairs {
		ab := Levenshtein(p[0], p[1])
		ba := Levenshtein(p[1], p[0])
		if ab != ba {
			t.Errorf("Levenshtein(%q,%q)=%d but reversed=%d", p[0], p[1], ab, ba)
		}
	}
}

func TestLevenshtein_CountsRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"diàn", "dian", 1},
		{"你好", "你", 1},
		{"你好", "您好", 1},
		{"", "abc", 3},
		{"𠀀", "𠀁", 1},
	}
	for _, tt := range tests {
		if got := Levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "abc", 1.0},
		{"abc", "", 0.0},
		{"你好", "你", 0.5},
		{"kitten", "sitting", 1 - 3.0/7.0},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestStripToneMarks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"diàn", "dian"},
		{"shí sì", "shi si"},
		{"Mǎ", "ma"},
		{"lǜ", "lv"},
		{"nǚ", "nv"},
		{"lü", "lv"},
		{"ēéěè", "eeee"},
		{"īíǐì", "iiii"},
		{"ōóǒò", "oooo"},
		{"ūúǔù", "uuuu"},
		{"你好", "你好"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripToneMarks(tt.in); got != tt.want {
			t.Errorf("StripToneMarks(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsTargetScript(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"你", true},
		{"十四", true},
		{"abc 好", true},
		{"㐀", true},
		{"\U00020000", true},
		{"\U0002A6DF", true},
		{"diàn", false},
		{"14", false},
		{"", false},
		{"こんにちは", false},
	}
	for _, tt := range tests {
		if got := IsTargetScript(tt.in); got != tt.want {
			t.Errorf("IsTargetScript(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
