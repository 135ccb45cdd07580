package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MatchingChanged is set when tier thresholds, number words or the
	// keyword boost differ.
	MatchingChanged bool

	// ChangedTiers lists the tier names whose overrides were added, removed
	// or modified, sorted.
	ChangedTiers []string

	// RestartRequired is set when providers, recording policy or sinks
	// changed.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	for name, o := range old.Matching.Tiers {
		if n, ok := new.Matching.Tiers[name]; !ok || n != o {
			d.ChangedTiers = append(d.ChangedTiers, name)
		}
	}
	for name := range new.Matching.Tiers {
		if _, ok := old.Matching.Tiers[name]; !ok {
			d.ChangedTiers = append(d.ChangedTiers, name)
		}
	}
	slices.Sort(d.ChangedTiers)

	d.MatchingChanged = len(d.ChangedTiers) > 0 ||
		old.Matching.KeywordBoost != new.Matching.KeywordBoost ||
		!maps.Equal(old.Matching.NumberWords, new.Matching.NumberWords)

	d.RestartRequired = !providersEqual(old.Providers, new.Providers) ||
		!recordingEqual(old.Recording, new.Recording) ||
		!attemptLogEqual(old.AttemptLog, new.AttemptLog) ||
		old.Server.ListenAddr != new.Server.ListenAddr

	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.STT, b.STT) && entryEqual(a.Audio, b.Audio) &&
		slices.EqualFunc(a.STTFallbacks, b.STTFallbacks, entryEqual)
}

// entryEqual ignores Options; nested provider options are compared by the
// fields that select and authenticate the provider.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

func recordingEqual(a, b RecordingConfig) bool {
	am, bm := a.MinimumDuration, b.MinimumDuration
	if (am == nil) != (bm == nil) || (am != nil && *am != *bm) {
		return false
	}
	a.MinimumDuration, b.MinimumDuration = nil, nil
	return a == b
}

func attemptLogEqual(a, b AttemptLogConfig) bool {
	return a.PostgresDSN == b.PostgresDSN && a.NATSURL == b.NATSURL &&
		a.NATSSubject == b.NATSSubject && a.KafkaTopic == b.KafkaTopic &&
		slices.Equal(a.KafkaBrokers, b.KafkaBrokers)
}
