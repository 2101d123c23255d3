package project

// Library defaults used when no tier of a precedence chain is set.
const (
	DefaultTempo = 120.0
	DefaultPPQ   = 480
)

// TempoContext bundles the tempo and PPQ a time conversion should use.
type TempoContext struct {
	Tempo float64
	PPQ   int
}

// DefaultTempoContext returns the library default, 120 BPM at 480 PPQ.
func DefaultTempoContext() TempoContext {
	return TempoContext{Tempo: DefaultTempo, PPQ: DefaultPPQ}
}

// ResolvePPQ resolves the track's pulses-per-quarter-note. Exactly one
// chain is consulted, highest tier wins: MIDI-file PPQ, then the
// track-level override, then the library default. Tiers are never
// summed and the result is always positive.
func (t *Track) ResolvePPQ() int {
	if t.MIDI != nil && t.MIDI.PPQ > 0 {
		return t.MIDI.PPQ
	}
	if t.PPQ > 0 {
		return t.PPQ
	}
	return DefaultPPQ
}

// ResolveTempo resolves the track's BPM: MIDI-file tempo, then the
// track-level override, then the global transport tempo, then the
// library default. Always positive.
func (t *Track) ResolveTempo(globalBPM float64) float64 {
	if t.MIDI != nil && t.MIDI.Tempo > 0 {
		return t.MIDI.Tempo
	}
	if t.Tempo > 0 {
		return t.Tempo
	}
	if globalBPM > 0 {
		return globalBPM
	}
	return DefaultTempo
}

// ResolveOffset resolves the track's MIDI time offset in seconds.
// Producers have emitted this under several names over time; the first
// set tier wins and tiers are never summed.
func (t *Track) ResolveOffset() float64 {
	if t.MIDI != nil && t.MIDI.OffsetSec != 0 {
		return t.MIDI.OffsetSec
	}
	if t.MIDIOffsetSec != 0 {
		return t.MIDIOffsetSec
	}
	if t.PianoRollOffsetSec != 0 {
		return t.PianoRollOffsetSec
	}
	return 0
}

// ResolveTempoContext resolves both tempo and PPQ for the track.
func (t *Track) ResolveTempoContext(globalBPM float64) TempoContext {
	return TempoContext{Tempo: t.ResolveTempo(globalBPM), PPQ: t.ResolvePPQ()}
}
