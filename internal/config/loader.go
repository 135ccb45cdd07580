package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"deepgram", "whisper", "whisper-native", "openai"},
	"audio": {"ffmpeg"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}
	validateProviderName("audio", cfg.Providers.Audio.Name)

	rec := cfg.Recording
	if rec.MinimumDuration != nil && *rec.MinimumDuration < 0 {
		errs = append(errs, fmt.Errorf("recording.minimum_duration %s must not be negative", *rec.MinimumDuration))
	}
	if rec.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("recording.drain_timeout %s must not be negative", rec.DrainTimeout))
	}
	if rec.SampleRate != 0 && (rec.SampleRate < 8000 || rec.SampleRate > 48000) {
		errs = append(errs, fmt.Errorf("recording.sample_rate %d is out of range [8000, 48000]", rec.SampleRate))
	}
	if rec.Channels < 0 || rec.Channels > 2 {
		errs = append(errs, fmt.Errorf("recording.channels %d is out of range [0, 2]", rec.Channels))
	}

	if cfg.Matching.KeywordBoost < 0 {
		errs = append(errs, fmt.Errorf("matching.keyword_boost %.2f must not be negative", cfg.Matching.KeywordBoost))
	}
	if _, err := cfg.Matching.TierTable(); err != nil {
		errs = append(errs, err)
	}
	for w, n := range cfg.Matching.NumberWords {
		if n < 0 {
			errs = append(errs, fmt.Errorf("matching.number_words[%q] = %d must not be negative", w, n))
		}
	}

	al := cfg.AttemptLog
	if len(al.KafkaBrokers) > 0 && al.KafkaTopic == "" {
		errs = append(errs, errors.New("attempt_log.kafka_topic is required when kafka_brokers is set"))
	}
	if al.KafkaTopic != "" && len(al.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("attempt_log.kafka_brokers is required when kafka_topic is set"))
	}
	if al.NATSSubject != "" && al.NATSURL == "" {
		slog.Warn("attempt_log.nats_subject is set but nats_url is empty; attempts will not be published")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
