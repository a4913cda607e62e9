package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// KnownSources lists the source names registered by the binary. Used by
// [Validate] to warn about unrecognised names.
var KnownSources = []string{SourceNone, SourceSynthetic, SourceWAV}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
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

	// Input
	switch {
	case cfg.Input.Source == "":
		errs = append(errs, errors.New("input.source is required"))
	case !slices.Contains(KnownSources, cfg.Input.Source):
		slog.Warn("unknown input source; it must be registered before sessions start",
			"source", cfg.Input.Source,
			"known", KnownSources,
		)
	}
	if cfg.Input.Source == SourceWAV && cfg.Input.Path == "" {
		slog.Warn("input.source is wav but input.path is empty; every session start must supply a path")
	}
	if cfg.Input.FrameSize < 2 || cfg.Input.FrameSize%2 != 0 {
		errs = append(errs, fmt.Errorf("input.frame_size %d must be even and at least 2", cfg.Input.FrameSize))
	}
	if !(cfg.Input.TickHz > 0) {
		errs = append(errs, fmt.Errorf("input.tick_hz %g must be positive", cfg.Input.TickHz))
	} else if cfg.Input.TickHz < 20 || cfg.Input.TickHz > 60 {
		slog.Warn("input.tick_hz is outside the recommended 20-60 Hz range", "tick_hz", cfg.Input.TickHz)
	}

	// Tuning; each stage prefixes its own errors.
	for _, err := range []error{
		cfg.Analysis.Bands.Validate(),
		cfg.Detector.Validate(),
		cfg.Scoring.Config.Validate(),
	} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Scoring.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("scoring.sweep_interval %v must not be negative", cfg.Scoring.SweepInterval))
	}

	// Session
	if cfg.Session.Loops < 0 {
		errs = append(errs, fmt.Errorf("session.loops %d must not be negative", cfg.Session.Loops))
	}
	if cfg.Session.Duration < 0 {
		errs = append(errs, fmt.Errorf("session.duration %v must not be negative", cfg.Session.Duration))
	}
	if cfg.Session.NoteLimit < 0 {
		errs = append(errs, fmt.Errorf("session.note_limit %d must not be negative", cfg.Session.NoteLimit))
	}
	if _, err := cfg.Session.Schedule(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
