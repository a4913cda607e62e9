package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/drumcoach/pkg/types"
)

// ErrUnknownInstrument is returned (wrapped) when a name resolves to no
// instrument.
var ErrUnknownInstrument = errors.New("schedule: unknown instrument")

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a typo to resolve.
const fuzzyThreshold = 0.85

var aliases = map[string]types.Instrument{
	"kick":      types.Kick,
	"bd":        types.Kick,
	"bass":      types.Kick,
	"bassdrum":  types.Kick,
	"bass drum": types.Kick,
	"snare":     types.Snare,
	"sd":        types.Snare,
	"sn":        types.Snare,
	"hihat":     types.HiHat,
	"hi-hat":    types.HiHat,
	"hi hat":    types.HiHat,
	"hh":        types.HiHat,
	"hat":       types.HiHat,
	"closedhat": types.HiHat,
	"ch":        types.HiHat,
	"openhat":   types.OpenHat,
	"open hat":  types.OpenHat,
	"open-hat":  types.OpenHat,
	"oh":        types.OpenHat,
}

// ParseInstrument resolves an instrument name. Canonical names and common
// aliases match exactly (case-insensitive); otherwise the closest alias by
// Jaro-Winkler similarity wins when it is similar enough, so "hihta" still
// means hi-hat.
func ParseInstrument(name string) (types.Instrument, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if inst, ok := aliases[key]; ok {
		return inst, nil
	}
	if key == "" {
		return types.Unknown, fmt.Errorf("%w: empty name", ErrUnknownInstrument)
	}

	best, bestScore := types.Unknown, 0.0
	for alias, inst := range aliases {
		// Two-letter aliases match too much by accident.
		if len(alias) < 3 {
			continue
		}
		score := matchr.JaroWinkler(key, alias, false)
		if score > bestScore || (score == bestScore && inst < best) {
			best, bestScore = inst, score
		}
	}
	if bestScore < fuzzyThreshold {
		return types.Unknown, fmt.Errorf("%w: %q", ErrUnknownInstrument, name)
	}
	return best, nil
}

// ParsePattern parses the text grid form used in config files. Each value is
// a row of steps: 'x' or 'X' is active, '.' or '-' is inactive, and spaces and
// '|' are ignored so bars can be laid out visually:
//
//	hihat: "x.x.x.x. x.x.x.x."
//	snare: "....x... ....x..."
//	kick:  "x.......|x......."
func ParsePattern(rows map[string]string) (Pattern, error) {
	p := make(Pattern, len(rows))
	var errs []error
	for name, row := range rows {
		inst, err := ParseInstrument(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := p[inst]; dup {
			errs = append(errs, fmt.Errorf("schedule: instrument %v given more than once", inst))
			continue
		}
		steps, err := parseRow(row)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule: %s: %w", name, err))
			continue
		}
		p[inst] = steps
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseRow(row string) ([]bool, error) {
	steps := make([]bool, 0, len(row))
	for i, r := range row {
		switch r {
		case 'x', 'X':
			steps = append(steps, true)
		case '.', '-':
			steps = append(steps, false)
		case ' ', '|', '\t':
		default:
			return nil, fmt.Errorf("invalid step %q at offset %d", r, i)
		}
	}
	return steps, nil
}

// FormatPattern renders p in the grid form accepted by [ParsePattern], one
// entry per instrument with a bar separator every 16 steps.
func FormatPattern(p Pattern) map[string]string {
	out := make(map[string]string, len(p))
	for inst, steps := range p {
		var b strings.Builder
		for i, on := range steps {
			if i > 0 && i%16 == 0 {
				b.WriteByte('|')
			}
			if on {
				b.WriteByte('x')
			} else {
				b.WriteByte('.')
			}
		}
		out[inst.String()] = b.String()
	}
	return out
}
