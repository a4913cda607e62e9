package config

import (
	"errors"
	"fmt"

	"github.com/MrWong99/drumcoach/internal/schedule"
)

// ErrUnknownPreset is returned (wrapped) when a session names a preset that
// does not exist.
var ErrUnknownPreset = errors.New("config: unknown preset")

// Schedule builds the notes s describes. Notes take precedence over Pattern,
// which takes precedence over Preset.
func (s SessionConfig) Schedule() ([]schedule.Note, error) {
	loops := max(s.Loops, 1)

	switch {
	case len(s.Notes) > 0:
		entries := make([]schedule.Entry, 0, len(s.Notes))
		var errs []error
		for i, n := range s.Notes {
			inst, err := schedule.ParseInstrument(n.Instrument)
			if err != nil {
				errs = append(errs, fmt.Errorf("session.notes[%d]: %w", i, err))
				continue
			}
			entries = append(entries, schedule.Entry{Time: n.Time, Instrument: inst})
		}
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
		return schedule.FromList(entries)

	case len(s.Pattern) > 0:
		p, err := schedule.ParsePattern(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("session.pattern: %w", err)
		}
		if s.BPM == 0 {
			return nil, errors.New("session.bpm is required with session.pattern")
		}
		return schedule.GenerateLoops(p, s.BPM, loops)

	case s.Preset != "":
		preset, ok := schedule.LookupPreset(s.Preset)
		if !ok {
			return nil, fmt.Errorf("%w: %q; known presets: %v", ErrUnknownPreset, s.Preset, schedule.PresetNames())
		}
		if s.BPM > 0 && len(preset.Entries) == 0 {
			preset.BPM = s.BPM
		}
		return preset.Notes(loops)
	}
	return nil, errors.New("session: one of notes, pattern or preset is required")
}
