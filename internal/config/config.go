// Package config provides the configuration schema, loader, watcher and
// audio source registry for the drumcoach trainer.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/drumcoach/internal/analysis"
	"github.com/MrWong99/drumcoach/internal/onset"
	"github.com/MrWong99/drumcoach/internal/scoring"
	"github.com/MrWong99/drumcoach/internal/session"
	"github.com/MrWong99/drumcoach/pkg/audio"
)

// LogLevel controls log verbosity for the drumcoach server.
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

// Level converts l to a [slog.Level]. Unknown or empty levels map to info.
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

// Built-in source names. SourceNone runs sessions without audio; hits then
// only arrive as taps.
const (
	SourceWAV       = "wav"
	SourceSynthetic = "synthetic"
	SourceNone      = "none"
)

// Config is the root configuration structure for drumcoach.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader],
// which start from [Default] so omitted keys keep their stock values.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Input    InputConfig    `yaml:"input"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Detector onset.Config   `yaml:"detector"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Session  SessionConfig  `yaml:"session"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP surface listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// InputConfig selects and tunes the audio source of new sessions.
type InputConfig struct {
	// Source is the registered source name ("wav", "synthetic") or "none".
	Source string `yaml:"source"`

	// Path is the WAV file replayed by the "wav" source.
	Path string `yaml:"path"`

	// FrameSize is the analysis frame length in samples.
	FrameSize int `yaml:"frame_size"`

	// TickHz is the analysis tick rate.
	TickHz float64 `yaml:"tick_hz"`

	// Paced releases frames in real time. Disable for offline replays.
	Paced bool `yaml:"paced"`
}

// AnalysisConfig holds the spectral bands used by the frame analyzer.
type AnalysisConfig struct {
	Bands analysis.Bands `yaml:"bands"`
}

// ScoringConfig extends the scorer tuning with the sweep period.
type ScoringConfig struct {
	scoring.Config `yaml:",inline"`

	// SweepInterval is how often pending notes are checked for misses.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// SessionConfig describes the schedule and end conditions of new sessions.
// Exactly one schedule form is used, in this order of precedence: Notes,
// Pattern, Preset.
type SessionConfig struct {
	// Preset names a built-in schedule (see schedule.PresetNames).
	Preset string `yaml:"preset"`

	// BPM overrides the preset tempo and is required with Pattern.
	BPM int `yaml:"bpm"`

	// Loops repeats grid schedules back to back. 0 means 1.
	Loops int `yaml:"loops"`

	// Pattern is a text step grid keyed by instrument name.
	Pattern map[string]string `yaml:"pattern"`

	// Notes is an explicit list of note times.
	Notes []NoteEntry `yaml:"notes"`

	// Duration ends a session after this much session time. 0 disables.
	Duration time.Duration `yaml:"duration"`

	// NoteLimit ends a session after this many evaluated notes. 0 disables.
	NoteLimit int `yaml:"note_limit"`
}

// NoteEntry is one explicit note. Instrument accepts the same names and
// aliases as pattern rows.
type NoteEntry struct {
	Time       float64 `yaml:"time" json:"time"`
	Instrument string  `yaml:"instrument" json:"instrument"`
}

// Default returns the stock configuration: synthetic input, the rock preset
// and the default tuning of every stage.
func Default() *Config {
	tuning := session.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Input: InputConfig{
			Source:    SourceSynthetic,
			FrameSize: audio.DefaultFrameSize,
			TickHz:    50,
			Paced:     true,
		},
		Analysis: AnalysisConfig{Bands: tuning.Bands},
		Detector: tuning.Detector,
		Scoring: ScoringConfig{
			Config:        tuning.Scoring,
			SweepInterval: tuning.SweepInterval,
		},
		Session: SessionConfig{
			Preset: "rock",
			Loops:  4,
		},
	}
}

// Tuning returns the session tuning described by c.
func (c *Config) Tuning() session.Config {
	return session.Config{
		Bands:         c.Analysis.Bands,
		Detector:      c.Detector,
		Scoring:       c.Scoring.Config,
		SweepInterval: c.Scoring.SweepInterval,
		Duration:      c.Session.Duration,
		NoteLimit:     c.Session.NoteLimit,
	}
}
