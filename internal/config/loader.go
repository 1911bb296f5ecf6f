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

// ValidRecognizerNames lists known recognizer backend names.
// Used by [Validate] to warn about unrecognised names.
var ValidRecognizerNames = []string{"vosk", "whisper-native"}

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

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Recognizer name: warn only, it may be a third-party backend.
	if name := cfg.Recognizer.Name; name != "" && !slices.Contains(ValidRecognizerNames, name) {
		slog.Warn("unknown recognizer name, may be a typo or third-party backend",
			"name", name,
			"known", ValidRecognizerNames,
		)
	}

	// Fallback backends need a name to be looked up in the registry.
	for i, entry := range cfg.RecognizerFallbacks {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("recognizer_fallbacks[%d].name is empty", i))
			continue
		}
		if !slices.Contains(ValidRecognizerNames, entry.Name) {
			slog.Warn("unknown fallback recognizer name",
				"name", entry.Name,
				"known", ValidRecognizerNames,
			)
		}
	}

	// Availability warnings
	if cfg.Recognizer.Name == "" {
		slog.Warn("recognizer.name is empty; spoken mode will not be available")
		if len(cfg.RecognizerFallbacks) > 0 {
			slog.Warn("recognizer_fallbacks configured without a primary recognizer; they are ignored")
		}
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; progress will not survive restarts")
	}
	if len(cfg.Lessons) == 0 {
		slog.Warn("lessons list is empty; no sets will be available to drill")
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [0, 2]", cfg.Audio.Channels))
	}
	if cfg.Audio.MaxLifetimeSeconds < 0 {
		errs = append(errs, fmt.Errorf("audio.max_lifetime_seconds %d is negative", cfg.Audio.MaxLifetimeSeconds))
	}

	// Drill
	if cfg.Drill.SpokenDelayMs < 0 {
		errs = append(errs, fmt.Errorf("drill.spoken_delay_ms %d is negative", cfg.Drill.SpokenDelayMs))
	}
	if cfg.Drill.ChoiceCount != 0 && cfg.Drill.ChoiceCount < 2 {
		errs = append(errs, fmt.Errorf("drill.choice_count %d is too small; a choice needs at least 2 options", cfg.Drill.ChoiceCount))
	}

	// Lessons
	for i, path := range cfg.Lessons {
		if path == "" {
			errs = append(errs, fmt.Errorf("lessons[%d] is empty", i))
		}
	}

	return errors.Join(errs...)
}
