package project

import (
	"fmt"
	"math"
)

const (
	MinPitch        = 0
	MaxPitch        = 127
	DefaultVelocity = 0.8

	// MaxSecondsHorizon bounds seconds-format note times. Beats-format
	// notes carry no cap; their wall time depends on tempo.
	MaxSecondsHorizon = 3600.0
)

// InvalidNote records a note rejected by ValidateNotes in non-strict
// mode, with its position in the input slice.
type InvalidNote struct {
	Index int
	Note  Note
	Err   error
}

// ValidateNote checks n against the data-model invariants and returns a
// normalized copy with the velocity default applied. The input is never
// mutated. A zero velocity is treated as unset.
func ValidateNote(n Note, unit NoteUnit) (Note, error) {
	if n.Pitch < MinPitch || n.Pitch > MaxPitch {
		return Note{}, fmt.Errorf("pitch %d out of range %d..%d", n.Pitch, MinPitch, MaxPitch)
	}
	if !isFinite(n.Start) || n.Start < 0 {
		return Note{}, fmt.Errorf("start %v must be finite and >= 0", n.Start)
	}
	if !isFinite(n.Duration) || n.Duration <= 0 {
		return Note{}, fmt.Errorf("duration %v must be finite and > 0", n.Duration)
	}
	if unit == UnitSeconds {
		if n.Start > MaxSecondsHorizon {
			return Note{}, fmt.Errorf("start %.3fs beyond %.0fs horizon", n.Start, MaxSecondsHorizon)
		}
		if n.Duration > MaxSecondsHorizon {
			return Note{}, fmt.Errorf("duration %.3fs beyond %.0fs horizon", n.Duration, MaxSecondsHorizon)
		}
	}
	v := n.Velocity
	if v == 0 {
		v = DefaultVelocity
	}
	if !isFinite(v) || v < 0 || v > 1 {
		return Note{}, fmt.Errorf("velocity %v out of range 0..1", n.Velocity)
	}
	out := n
	out.Velocity = v
	return out, nil
}

// ValidateNotes validates a whole collection. In strict mode the first
// invalid note fails the call; otherwise invalid notes are collected
// and the normalized valid remainder is returned.
func ValidateNotes(notes []Note, unit NoteUnit, strict bool) ([]Note, []InvalidNote, error) {
	valid := make([]Note, 0, len(notes))
	var invalid []InvalidNote
	for i, n := range notes {
		nn, err := ValidateNote(n, unit)
		if err != nil {
			if strict {
				return nil, nil, fmt.Errorf("note %d: %w", i, err)
			}
			invalid = append(invalid, InvalidNote{Index: i, Note: n, Err: err})
			continue
		}
		valid = append(valid, nn)
	}
	return valid, invalid, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
