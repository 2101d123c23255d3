// Package project defines the data model shared by the playback and
// mixdown paths: tracks, clips, notes, effect specs, and the precedence
// rules that resolve tempo, PPQ and per-track time offsets.
package project

import "encoding/json"

// NoteUnit says how a note collection's Start/Duration are measured.
// The two representations are never mixed within one collection.
type NoteUnit int

const (
	UnitBeats NoteUnit = iota
	UnitSeconds
)

func (u NoteUnit) String() string {
	if u == UnitSeconds {
		return "seconds"
	}
	return "beats"
}

// Note is one MIDI note. Start and Duration are in the owning
// collection's unit (beats or seconds).
type Note struct {
	Pitch    int     `json:"pitch"`
	Start    float64 `json:"startTime"`
	Duration float64 `json:"duration"`
	Velocity float64 `json:"velocity,omitempty"`
}

// Note event stream types, for producers that emit raw on/off pairs.
const (
	EventNoteOn  = "noteOn"
	EventNoteOff = "noteOff"
)

// NoteEvent is one entry of a raw note-on/note-off stream. Off events
// carry no duration; pairing happens during MIDI collection.
type NoteEvent struct {
	Type     string  `json:"type"`
	Pitch    int     `json:"pitch"`
	Time     float64 `json:"time"` // beats
	Velocity float64 `json:"velocity,omitempty"`
}

// Region is a clip-relative MIDI fragment: Start is in timeline
// seconds, the notes inside are in beats relative to that start.
type Region struct {
	ID    string  `json:"id,omitempty"`
	Start float64 `json:"start"`
	Notes []Note  `json:"notes"`
}

// StepGrid is a step-sequencer substructure: rows of on/off steps at a
// fixed per-beat resolution.
type StepGrid struct {
	StepsPerBeat int       `json:"stepsPerBeat,omitempty"` // 0 means 4
	Rows         []StepRow `json:"rows"`
}

// StepRow is one pitch lane of a step grid.
type StepRow struct {
	Pitch int    `json:"pitch"`
	Steps []bool `json:"steps"`
}

// MIDIData carries a track's MIDI content. Which substructure is
// populated varies by producer; collection normalizes all of them into
// one absolute-seconds note list.
type MIDIData struct {
	Tempo     float64     `json:"tempo,omitempty"`
	PPQ       int         `json:"ppq,omitempty"`
	OffsetSec float64     `json:"offsetSec,omitempty"`
	Notes     []Note      `json:"notes,omitempty"` // beats
	Events    []NoteEvent `json:"events,omitempty"`
	Regions   []Region    `json:"regions,omitempty"`
	Steps     *StepGrid   `json:"steps,omitempty"`
	SMF       []byte      `json:"smf,omitempty"`
	SMFPath   string      `json:"smfPath,omitempty"`
}

// HasContent reports whether any substructure holds at least one
// collectible note.
func (m *MIDIData) HasContent() bool {
	if m == nil {
		return false
	}
	if len(m.Notes) > 0 || len(m.Events) > 0 {
		return true
	}
	for _, r := range m.Regions {
		if len(r.Notes) > 0 {
			return true
		}
	}
	if m.Steps != nil {
		for _, row := range m.Steps.Rows {
			for _, on := range row.Steps {
				if on {
					return true
				}
			}
		}
	}
	return len(m.SMF) > 0 || m.SMFPath != ""
}

// Clip places a slice of a decoded audio source on the timeline. All
// fields are seconds.
type Clip struct {
	ID       string  `json:"id"`
	Src      string  `json:"src"`
	Start    float64 `json:"start"`
	Offset   float64 `json:"offset"`
	Duration float64 `json:"duration"`
}

// ClampToBuffer returns a copy with Offset and Duration clamped so that
// offset+duration never reads past the decoded source end.
func (c Clip) ClampToBuffer(bufferDur float64) Clip {
	out := c
	if out.Offset < 0 {
		out.Offset = 0
	}
	if out.Offset > bufferDur {
		out.Offset = bufferDur
	}
	if out.Duration < 0 {
		out.Duration = 0
	}
	if out.Offset+out.Duration > bufferDur {
		out.Duration = bufferDur - out.Offset
	}
	return out
}

// End returns the clip's timeline end in seconds.
func (c Clip) End() float64 {
	return c.Start + c.Duration
}

// TrackType distinguishes MIDI lanes from audio lanes.
type TrackType string

const (
	TrackMIDI  TrackType = "midi"
	TrackAudio TrackType = "audio"
)

// Track is one mixer lane. It is immutable input to the mixdown
// pipeline; nothing in this package or the pipeline mutates it.
type Track struct {
	ID      string       `json:"id"`
	Name    string       `json:"name,omitempty"`
	Type    TrackType    `json:"type"`
	Clips   []Clip       `json:"clips,omitempty"`
	MIDI    *MIDIData    `json:"midiData,omitempty"`
	Volume  float64      `json:"volume"`
	Pan     float64      `json:"pan"`
	Muted   bool         `json:"muted,omitempty"`
	Soloed  bool         `json:"soloed,omitempty"`
	Effects []EffectSpec `json:"effects,omitempty"`

	// Track-level overrides, consulted between the MIDI-file values and
	// the transport/global defaults.
	Tempo float64 `json:"tempo,omitempty"`
	PPQ   int     `json:"ppq,omitempty"`

	// Offset aliases still emitted by older producers. ResolveOffset
	// owns the consultation order.
	MIDIOffsetSec      float64 `json:"midiOffsetSec,omitempty"`
	PianoRollOffsetSec float64 `json:"pianoRollOffsetSec,omitempty"`

	// Instrument selects the synthesizer for MIDI tracks ("fm", "chip",
	// or "soundfont:<path>"). Empty means the default FM instrument.
	Instrument string `json:"instrument,omitempty"`
}

// UnmarshalJSON applies field defaults the wire shape omits: volume 1.
func (t *Track) UnmarshalJSON(data []byte) error {
	type plain Track
	p := plain{Volume: 1}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Track(p)
	return nil
}

// EnabledEffects returns the subset of the chain with Enabled set.
func (t *Track) EnabledEffects() []EffectSpec {
	var out []EffectSpec
	for _, e := range t.Effects {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// EffectSpec describes one entry of a track's effect chain. Params are
// opaque here; the effects package interprets them.
type EffectSpec struct {
	Type    string             `json:"type"`
	Enabled bool               `json:"enabled"`
	Params  map[string]float64 `json:"params,omitempty"`
}

// UnmarshalJSON defaults Enabled to true when the field is absent.
func (e *EffectSpec) UnmarshalJSON(data []byte) error {
	type plain EffectSpec
	p := plain{Enabled: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = EffectSpec(p)
	return nil
}

// Project is the top-level snapshot handed to mixdown or live playback.
type Project struct {
	Tracks     []Track `json:"tracks"`
	BPM        float64 `json:"bpm,omitempty"`
	SampleRate int     `json:"sampleRate,omitempty"`
}
