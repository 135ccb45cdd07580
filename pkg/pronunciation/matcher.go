package pronunciation

import (
	"slices"
	"strconv"

	"github.com/MrWong99/learnchars/pkg/similarity"
)

// Accuracy scores assigned by the non-fuzzy stages. They are product policy
// rather than derived quantities and may be retuned independently.
const (
	AccuracyExact         = 1.0
	AccuracyHomophoneTone = 0.85
	AccuracyHomophone     = 0.60
	AccuracyRomanExact    = 0.95
	AccuracyRomanApprox   = 0.70
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithTable replaces the default tolerance table.
func WithTable(t Table) Option {
	return func(m *Matcher) { m.table = t }
}

// WithNumberWords replaces the number-word lexicon used by the numeral stage.
// Keys are normalised on construction.
func WithNumberWords(words map[string]int) Option {
	return func(m *Matcher) { m.numberWords = normalizeLexicon(words) }
}

// Matcher evaluates recognised utterances. It holds only immutable
// configuration and is safe for concurrent use.
type Matcher struct {
	table       Table
	numberWords map[string]int
}

// NewMatcher returns a Matcher using [DefaultTable] and [DefaultNumberWords]
// unless overridden by opts.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		table:       DefaultTable(),
		numberWords: normalizeLexicon(DefaultNumberWords()),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Table returns the tolerance table in use.
func (m *Matcher) Table() Table { return m.table }

// Evaluate grades recognized against expected. Alternatives are accepted
// equivalents such as translations, romanisations or numerals. The first
// stage to produce a verdict wins.
func (m *Matcher) Evaluate(expected, recognized string, alternatives []string, tier Tier) Verdict {
	if !tier.IsValid() {
		tier = Intermediate
	}

	exp := similarity.Normalize(expected)
	rec := similarity.Normalize(recognized)

	if rec == "" {
		return Verdict{IsCorrect: false, Accuracy: 0, Feedback: FeedbackNoSpeech, Stage: StageEmpty}
	}

	if exp == rec {
		return Verdict{IsCorrect: true, Accuracy: AccuracyExact, Feedback: FeedbackPerfect, Stage: StageExact}
	}

	alts := make([]string, 0, len(alternatives))
	for _, a := range alternatives {
		alts = append(alts, similarity.Normalize(a))
	}

	if slices.Contains(alts, rec) {
		return Verdict{IsCorrect: true, Accuracy: AccuracyExact, Feedback: FeedbackCorrect, Stage: StageAlternative}
	}

	if n, err := strconv.Atoi(rec); err == nil && m.matchesNumber(n, alts) {
		return Verdict{IsCorrect: true, Accuracy: AccuracyExact, Feedback: FeedbackCorrect, Stage: StageNumeral}
	}

	recStripped := similarity.StripToneMarks(rec)

	if similarity.IsTargetScript(exp) && similarity.IsTargetScript(rec) {
		for _, a := range alts {
			s := similarity.StripToneMarks(a)
			if s == "" || s != recStripped {
				continue
			}
			if slices.Contains(alts, rec) {
				return Verdict{IsCorrect: true, Accuracy: AccuracyHomophoneTone, Feedback: FeedbackHomophoneRightTone, Stage: StageHomophone}
			}
			return Verdict{IsCorrect: true, Accuracy: AccuracyHomophone, Feedback: FeedbackTonesOff, Stage: StageHomophone}
		}
	}

	for _, a := range alts {
		s := similarity.StripToneMarks(a)
		if s == "" || s != recStripped {
			continue
		}
		if a == rec {
			return Verdict{IsCorrect: true, Accuracy: AccuracyRomanExact, Feedback: FeedbackPerfectTones, Stage: StageRomanized}
		}
		if tier.Lenient() {
			return Verdict{IsCorrect: true, Accuracy: AccuracyRomanApprox, Feedback: FeedbackToneApproximate, Stage: StageRomanized}
		}
		return Verdict{IsCorrect: false, Accuracy: AccuracyRomanApprox, Feedback: FeedbackToneRejected, Stage: StageRomanized}
	}

	th := m.table.Thresholds(tier)
	sim := similarity.Similarity(exp, rec)
	switch {
	case sim >= th.Acceptance:
		return Verdict{IsCorrect: true, Accuracy: sim, Feedback: FeedbackVeryGood, Stage: StageFuzzy}
	case sim >= th.Near:
		return Verdict{IsCorrect: false, Accuracy: sim, Feedback: FeedbackClose, Stage: StageFuzzy}
	default:
		return Verdict{IsCorrect: false, Accuracy: sim, Feedback: FeedbackTryAgain, Stage: StageFuzzy}
	}
}

// matchesNumber reports whether any alternative is the integer n, written
// either with digits or as a lexicon number word.
func (m *Matcher) matchesNumber(n int, alts []string) bool {
	for _, a := range alts {
		if v, err := strconv.Atoi(a); err == nil && v == n {
			return true
		}
		if v, ok := m.numberWords[a]; ok && v == n {
			return true
		}
	}
	return false
}
