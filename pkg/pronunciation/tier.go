// Package pronunciation grades a recognised utterance against an expected
// answer.
//
// The central type is [Matcher]. Its [Matcher.Evaluate] method runs a fixed,
// ordered sequence of stages (exact match, accepted alternatives, numeral
// equivalence, homophone detection, tone-insensitive romanisation, and a
// fuzzy edit-distance fallback) and returns the first [Verdict] a stage
// produces. How tolerant the fuzzy stage is depends on the learner's [Tier],
// looked up in an immutable [Table].
//
// Evaluate never fails: every combination of inputs yields a verdict.
package pronunciation

import (
	"errors"
	"fmt"
	"time"
)

// Tier is a difficulty level. It governs fuzzy-match strictness and whether
// tone-inexact romanisation is accepted.
type Tier int

const (
	Beginner Tier = iota
	Intermediate
	Advanced
	Expert

	numTiers = int(Expert) + 1
)

// Tiers lists every tier from most to least lenient.
var Tiers = [...]Tier{Beginner, Intermediate, Advanced, Expert}

// String returns the lower-case tier name used in configuration and metrics.
func (t Tier) String() string {
	switch t {
	case Beginner:
		return "beginner"
	case Intermediate:
		return "intermediate"
	case Advanced:
		return "advanced"
	case Expert:
		return "expert"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// IsValid reports whether t is one of the four known tiers.
func (t Tier) IsValid() bool {
	return t >= Beginner && t <= Expert
}

// Lenient reports whether the tier accepts romanised answers whose tone marks
// are wrong or missing.
func (t Tier) Lenient() bool {
	return t == Beginner || t == Intermediate
}

// TimeLimit is the suggested answer window per card for the tier. The
// assessment core does not enforce it; callers that want an upper bound on
// capture length apply it themselves.
func (t Tier) TimeLimit() time.Duration {
	switch t {
	case Beginner:
		return 30 * time.Second
	case Intermediate:
		return 20 * time.Second
	case Advanced:
		return 10 * time.Second
	case Expert:
		return 5 * time.Second
	default:
		return 0
	}
}

// ErrUnknownTier is returned by [ParseTier] for unrecognised names.
var ErrUnknownTier = errors.New("pronunciation: unknown tier")

// ParseTier converts a tier name as produced by [Tier.String] back to a Tier.
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w %q; valid values: beginner, intermediate, advanced, expert", ErrUnknownTier, s)
}

// Thresholds is the pair of similarity cut-offs used by the fuzzy stage.
// A similarity of at least Acceptance is correct; at least Near is reported as
// a near miss.
type Thresholds struct {
	Acceptance float64
	Near       float64
}

// Validate checks 0 <= Near <= Acceptance <= 1.
func (th Thresholds) Validate() error {
	if th.Near < 0 || th.Acceptance > 1 {
		return fmt.Errorf("thresholds (%.2f, %.2f) must lie within [0, 1]", th.Acceptance, th.Near)
	}
	if th.Near > th.Acceptance {
		return fmt.Errorf("near threshold %.2f exceeds acceptance threshold %.2f", th.Near, th.Acceptance)
	}
	return nil
}

// Table maps every tier to its [Thresholds]. A Table is a value type and is
// never modified after construction, so it may be shared freely.
type Table struct {
	entries [numTiers]Thresholds
}

// DefaultTable returns the built-in tolerance table.
func DefaultTable() Table {
	return Table{entries: [numTiers]Thresholds{
		Beginner:     {Acceptance: 0.50, Near: 0.40},
		Intermediate: {Acceptance: 0.65, Near: 0.50},
		Advanced:     {Acceptance: 0.80, Near: 0.65},
		Expert:       {Acceptance: 0.95, Near: 0.85},
	}}
}

// NewTable returns the default table with overrides applied. All resulting
// entries are validated; failures are joined into one error.
func NewTable(overrides map[Tier]Thresholds) (Table, error) {
	tbl := DefaultTable()
	var errs []error
	for tier, th := range overrides {
		if !tier.IsValid() {
			errs = append(errs, fmt.Errorf("%w: %d", ErrUnknownTier, int(tier)))
			continue
		}
		tbl.entries[tier] = th
	}
	for _, tier := range Tiers {
		if err := tbl.entries[tier].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("pronunciation: tier %s: %w", tier, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Table{}, err
	}
	return tbl, nil
}

// Thresholds returns the cut-offs for tier. Unknown tiers get the
// Intermediate entry.
func (t Table) Thresholds(tier Tier) Thresholds {
	if !tier.IsValid() {
		tier = Intermediate
	}
	return t.entries[tier]
}
