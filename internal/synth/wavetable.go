package synth

import (
	"fmt"
	"math"
)

// WavetableParams configures the table-lookup instrument.
type WavetableParams struct {
	Polyphony  int
	MasterGain float64
	Shape      string // "sine", "triangle", "saw" or "square"
	TableSize  int
	AttackSec  float64
	DecaySec   float64
	SustainLvl float64
	ReleaseSec float64
}

// DefaultWavetableParams returns a soft sine patch.
func DefaultWavetableParams() WavetableParams {
	return WavetableParams{
		Polyphony:  16,
		MasterGain: 0.35,
		Shape:      "sine",
		TableSize:  64,
		AttackSec:  0.005,
		DecaySec:   0.12,
		SustainLvl: 0.75,
		ReleaseSec: 0.2,
	}
}

type wtVoice struct {
	active   bool
	id       int
	freq     float64
	velocity float64

	phase float64 // position in the table

	env   float64
	state envState
}

// Wavetable plays a single-cycle table with linear interpolation
// between adjacent samples.
type Wavetable struct {
	sampleRate float64
	params     WavetableParams
	table      []float64
	voices     []wtVoice
	nextID     int
}

// NewWavetable creates the engine at the given sample rate. Shape names
// one of the built-in single-cycle tables.
func NewWavetable(sampleRate int, params WavetableParams) (*Wavetable, error) {
	if params.Polyphony <= 0 {
		params.Polyphony = 16
	}
	if params.TableSize < 4 {
		params.TableSize = 64
	}
	table, err := buildTable(params.Shape, params.TableSize)
	if err != nil {
		return nil, err
	}
	return &Wavetable{
		sampleRate: float64(sampleRate),
		params:     params,
		table:      table,
		voices:     make([]wtVoice, params.Polyphony),
	}, nil
}

func buildTable(shape string, size int) ([]float64, error) {
	t := make([]float64, size)
	switch shape {
	case "", "sine":
		for i := range t {
			t[i] = math.Sin(2 * math.Pi * float64(i) / float64(size))
		}
	case "triangle":
		for i := range t {
			p := float64(i) / float64(size)
			if p < 0.5 {
				t[i] = 4*p - 1
			} else {
				t[i] = 3 - 4*p
			}
		}
	case "saw":
		for i := range t {
			t[i] = 2*float64(i)/float64(size) - 1
		}
	case "square":
		for i := range t {
			if i < size/2 {
				t[i] = 1
			} else {
				t[i] = -1
			}
		}
	default:
		return nil, fmt.Errorf("unknown wavetable shape %q", shape)
	}
	return t, nil
}

func (e *Wavetable) NoteOn(pitch int, velocity float64) int {
	slot := e.stealVoice()
	id := e.nextID
	e.nextID++
	e.voices[slot] = wtVoice{
		active:   true,
		id:       id,
		freq:     midiToFreq(pitch),
		velocity: clamp(velocity, 0, 1),
		state:    envAttack,
	}
	return id
}

func (e *Wavetable) NoteOff(id int) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.id == id && v.state != envRelease {
			v.state = envRelease
		}
	}
}

func (e *Wavetable) RenderFrame() (float32, float32) {
	size := len(e.table)
	length := float64(size)
	var sum float64
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		e.advanceEnv(v)
		if !v.active {
			continue
		}

		idx := int(v.phase) % size
		frac := v.phase - math.Floor(v.phase)
		next := idx + 1
		if next >= size {
			next = 0
		}
		s := e.table[idx]*(1-frac) + e.table[next]*frac
		sum += s * v.env * (0.2 + 0.8*v.velocity)

		v.phase += v.freq * length / e.sampleRate
		for v.phase >= length {
			v.phase -= length
		}
	}
	out := float32(clamp(sum*e.params.MasterGain, -1, 1))
	return out, out
}

func (e *Wavetable) ActiveVoiceCount() int {
	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}

func (e *Wavetable) advanceEnv(v *wtVoice) {
	switch v.state {
	case envAttack:
		v.env += 1.0 / (e.params.AttackSec * e.sampleRate)
		if v.env >= 1 {
			v.env = 1
			v.state = envDecay
		}
	case envDecay:
		v.env -= (1 - e.params.SustainLvl) / (e.params.DecaySec * e.sampleRate)
		if v.env <= e.params.SustainLvl {
			v.env = e.params.SustainLvl
			v.state = envSustain
		}
	case envSustain:
	case envRelease:
		v.env -= e.params.SustainLvl / (e.params.ReleaseSec * e.sampleRate)
		if v.env <= 0.0001 {
			v.env = 0
			v.state = envOff
			v.active = false
		}
	case envOff:
		v.active = false
	}
}

func (e *Wavetable) stealVoice() int {
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}
	quiet := 0
	minEnv := e.voices[0].env
	for i := 1; i < len(e.voices); i++ {
		if e.voices[i].env < minEnv {
			minEnv = e.voices[i].env
			quiet = i
		}
	}
	return quiet
}
