package config

import "reflect"

// ConfigDiff describes what changed between two configs.
//
// Tuning sections (input, analysis, detector, scoring, session) take effect
// on the next session; the log level applies immediately. A changed listen
// address needs a restart.
type ConfigDiff struct {
	LogLevelChanged   bool
	NewLogLevel       LogLevel
	ListenAddrChanged bool

	InputChanged    bool
	AnalysisChanged bool
	DetectorChanged bool
	ScoringChanged  bool
	SessionChanged  bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{
		ListenAddrChanged: old.Server.ListenAddr != new.Server.ListenAddr,
		InputChanged:      old.Input != new.Input,
		AnalysisChanged:   old.Analysis != new.Analysis,
		DetectorChanged:   old.Detector != new.Detector,
		ScoringChanged:    old.Scoring != new.Scoring,
		SessionChanged:    !reflect.DeepEqual(old.Session, new.Session),
	}
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	return d
}

// Sections returns the names of the changed sections in schema order.
func (d ConfigDiff) Sections() []string {
	var out []string
	if d.LogLevelChanged || d.ListenAddrChanged {
		out = append(out, "server")
	}
	for _, s := range []struct {
		name    string
		changed bool
	}{
		{"input", d.InputChanged},
		{"analysis", d.AnalysisChanged},
		{"detector", d.DetectorChanged},
		{"scoring", d.ScoringChanged},
		{"session", d.SessionChanged},
	} {
		if s.changed {
			out = append(out, s.name)
		}
	}
	return out
}

// TuningChanged reports whether anything used to build sessions changed.
func (d ConfigDiff) TuningChanged() bool {
	return d.InputChanged || d.AnalysisChanged || d.DetectorChanged || d.ScoringChanged || d.SessionChanged
}
