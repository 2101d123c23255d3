package synth

import "math"

const twoPi = 2 * math.Pi

type envState int

const (
	envOff envState = iota
	envAttack
	envDecay
	envSustain
	envRelease
)

// FMParams configures the default two-operator FM instrument.
type FMParams struct {
	Polyphony  int
	MasterGain float64
	ModRatio   float64 // modulator frequency as a multiple of the carrier
	ModIndex   float64 // modulation depth
	AttackSec  float64
	DecaySec   float64
	SustainLvl float64
	ReleaseSec float64
}

// DefaultFMParams returns a clean electric-piano-ish patch.
func DefaultFMParams() FMParams {
	return FMParams{
		Polyphony:  32,
		MasterGain: 0.35,
		ModRatio:   2.0,
		ModIndex:   1.6,
		AttackSec:  0.004,
		DecaySec:   0.10,
		SustainLvl: 0.65,
		ReleaseSec: 0.12,
	}
}

type fmVoice struct {
	active   bool
	id       int
	freq     float64
	velocity float64

	carPhase float64
	modPhase float64

	env   float64
	state envState
}

// FM is a two-operator (modulator into carrier) FM voice engine. Phase
// always starts at zero so repeated renders of the same note list are
// sample-identical.
type FM struct {
	sampleRate float64
	params     FMParams
	voices     []fmVoice
	nextID     int
}

// NewFM creates the engine at the given sample rate.
func NewFM(sampleRate int, params FMParams) *FM {
	if params.Polyphony <= 0 {
		params.Polyphony = 32
	}
	return &FM{
		sampleRate: float64(sampleRate),
		params:     params,
		voices:     make([]fmVoice, params.Polyphony),
	}
}

func (e *FM) NoteOn(pitch int, velocity float64) int {
	slot := e.stealVoice()
	id := e.nextID
	e.nextID++
	e.voices[slot] = fmVoice{
		active:   true,
		id:       id,
		freq:     midiToFreq(pitch),
		velocity: clamp(velocity, 0, 1),
		state:    envAttack,
	}
	return id
}

func (e *FM) NoteOff(id int) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.id == id && v.state != envRelease {
			v.state = envRelease
		}
	}
}

func (e *FM) RenderFrame() (float32, float32) {
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
		mod := math.Sin(v.modPhase) * e.params.ModIndex * v.env
		sum += math.Sin(v.carPhase+mod) * v.env * (0.2 + 0.8*v.velocity)

		v.carPhase += twoPi * v.freq / e.sampleRate
		v.modPhase += twoPi * v.freq * e.params.ModRatio / e.sampleRate
		if v.carPhase > twoPi {
			v.carPhase -= twoPi
		}
		if v.modPhase > twoPi {
			v.modPhase -= twoPi
		}
	}
	out := float32(clamp(sum*e.params.MasterGain, -1, 1))
	return out, out
}

func (e *FM) ActiveVoiceCount() int {
	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}

func (e *FM) advanceEnv(v *fmVoice) {
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

func (e *FM) stealVoice() int {
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}
	// Steal the quietest voice.
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
