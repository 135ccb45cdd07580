// Package config provides the configuration schema, loader, and provider registry
// for the learnchars pronunciation assessment service.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/learnchars/pkg/pronunciation"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level returns the slog level for l. Empty and unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Recording  RecordingConfig  `yaml:"recording"`
	Matching   MatchingConfig   `yaml:"matching"`
	AttemptLog AttemptLogConfig `yaml:"attempt_log"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the HTTP listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the speech-recognition and capture backends.
type ProvidersConfig struct {
	// STT is the primary recognition provider.
	STT ProviderEntry `yaml:"stt"`

	// STTFallbacks are tried in order when the primary cannot open a stream.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// Audio is the microphone capture backend. Defaults to ffmpeg.
	Audio ProviderEntry `yaml:"audio"`
}

// ProviderEntry names a provider implementation and its credentials.
type ProviderEntry struct {
	// Name is the registry key (e.g., "deepgram", "whisper").
	Name string `yaml:"name"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific settings not covered above.
	Options map[string]any `yaml:"options"`
}

// OptString returns Options[key] when it is a string, or "".
func (e ProviderEntry) OptString(key string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return ""
}

// OptFloat returns Options[key] as a float64. YAML integers are accepted.
func (e ProviderEntry) OptFloat(key string) (float64, bool) {
	switch v := e.Options[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// OptDuration parses Options[key] as a Go duration string such as "15s".
func (e ProviderEntry) OptDuration(key string) (time.Duration, error) {
	s := e.OptString(key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: option %s: %w", key, err)
	}
	return d, nil
}

// RecordingConfig holds the capture policy.
type RecordingConfig struct {
	// MinimumDuration is the shortest capture a stop request may end.
	// Defaults to 1s. Set an explicit "0s" to disable.
	MinimumDuration *time.Duration `yaml:"minimum_duration"`

	// DrainTimeout bounds the wait for final results after audio ends.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// Language is the BCP-47 recognition language, e.g. "zh-CN".
	Language string `yaml:"language"`

	// InputFormat and InputDevice select the capture device.
	InputFormat string `yaml:"input_format"`
	InputDevice string `yaml:"input_device"`
}

// MatchingConfig overrides grading policy.
type MatchingConfig struct {
	// KeywordBoost is the recognition hint weight given to the expected
	// answer and its alternatives. Defaults to 2.
	KeywordBoost float64 `yaml:"keyword_boost"`

	// Tiers overrides fuzzy thresholds keyed by tier name.
	Tiers map[string]ThresholdsConfig `yaml:"tiers"`

	// NumberWords replaces the built-in number-word lexicon when non-empty.
	NumberWords map[string]int `yaml:"number_words"`
}

// ThresholdsConfig is the YAML form of [pronunciation.Thresholds].
type ThresholdsConfig struct {
	Acceptance float64 `yaml:"acceptance"`
	Near       float64 `yaml:"near"`
}

// AttemptLogConfig wires the audit sinks. Each sink is enabled by setting its
// connection field.
type AttemptLogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// Enabled reports whether any sink is configured.
func (c AttemptLogConfig) Enabled() bool {
	return c.PostgresDSN != "" || c.NATSURL != "" || len(c.KafkaBrokers) > 0
}

// TierTable builds the tolerance table from the defaults and Tiers.
func (c MatchingConfig) TierTable() (pronunciation.Table, error) {
	overrides := make(map[pronunciation.Tier]pronunciation.Thresholds, len(c.Tiers))
	for name, th := range c.Tiers {
		tier, err := pronunciation.ParseTier(name)
		if err != nil {
			return pronunciation.Table{}, fmt.Errorf("matching.tiers: %w", err)
		}
		overrides[tier] = pronunciation.Thresholds{Acceptance: th.Acceptance, Near: th.Near}
	}
	return pronunciation.NewTable(overrides)
}

// MatcherOptions returns the pronunciation options described by c.
func (c MatchingConfig) MatcherOptions() ([]pronunciation.Option, error) {
	tbl, err := c.TierTable()
	if err != nil {
		return nil, err
	}
	opts := []pronunciation.Option{pronunciation.WithTable(tbl)}
	if len(c.NumberWords) > 0 {
		opts = append(opts, pronunciation.WithNumberWords(c.NumberWords))
	}
	return opts, nil
}
