package synth

// ChipWave selects the chip instrument's oscillator.
type ChipWave int

const (
	WavePulse ChipWave = iota
	WaveTriangle
	WaveNoise
)

// ChipParams configures the chiptune instrument.
type ChipParams struct {
	Polyphony  int
	MasterGain float64
	Wave       ChipWave
	Duty       float64 // pulse duty cycle
	AttackSec  float64
	DecaySec   float64
	SustainLvl float64
	ReleaseSec float64
}

// DefaultChipParams returns a 50% pulse patch.
func DefaultChipParams() ChipParams {
	return ChipParams{
		Polyphony:  16,
		MasterGain: 0.25,
		Wave:       WavePulse,
		Duty:       0.5,
		AttackSec:  0.002,
		DecaySec:   0.06,
		SustainLvl: 0.6,
		ReleaseSec: 0.05,
	}
}

type chipVoice struct {
	active   bool
	id       int
	freq     float64
	velocity float64

	phase float64
	lfsr  uint16

	env   float64
	state envState
}

// Chip is a pulse/triangle/noise voice engine. The noise oscillator is
// a 15-bit LFSR seeded to a fixed value per voice, so renders are
// deterministic.
type Chip struct {
	sampleRate float64
	params     ChipParams
	voices     []chipVoice
	nextID     int
}

// NewChip creates the engine at the given sample rate.
func NewChip(sampleRate int, params ChipParams) *Chip {
	if params.Polyphony <= 0 {
		params.Polyphony = 16
	}
	if params.Duty <= 0 || params.Duty >= 1 {
		params.Duty = 0.5
	}
	return &Chip{
		sampleRate: float64(sampleRate),
		params:     params,
		voices:     make([]chipVoice, params.Polyphony),
	}
}

func (e *Chip) NoteOn(pitch int, velocity float64) int {
	slot := e.stealVoice()
	id := e.nextID
	e.nextID++
	e.voices[slot] = chipVoice{
		active:   true,
		id:       id,
		freq:     midiToFreq(pitch),
		velocity: clamp(velocity, 0, 1),
		lfsr:     0x7fff,
		state:    envAttack,
	}
	return id
}

func (e *Chip) NoteOff(id int) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.id == id && v.state != envRelease {
			v.state = envRelease
		}
	}
}

func (e *Chip) RenderFrame() (float32, float32) {
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
		var s float64
		switch e.params.Wave {
		case WaveTriangle:
			if v.phase < 0.5 {
				s = 4*v.phase - 1
			} else {
				s = 3 - 4*v.phase
			}
		case WaveNoise:
			if v.lfsr&1 == 1 {
				s = 1
			} else {
				s = -1
			}
		default:
			if v.phase < e.params.Duty {
				s = 1
			} else {
				s = -1
			}
		}
		sum += s * v.env * (0.2 + 0.8*v.velocity)

		step := v.freq / e.sampleRate
		if e.params.Wave == WaveNoise {
			// Clock the register faster than the pitch so the noise
			// keeps its wideband character at low notes.
			step *= 8
		}
		v.phase += step
		if v.phase >= 1 {
			v.phase -= 1
			if e.params.Wave == WaveNoise {
				fb := (v.lfsr ^ (v.lfsr >> 1)) & 1
				v.lfsr = (v.lfsr >> 1) | (fb << 14)
			}
		}
	}
	out := float32(clamp(sum*e.params.MasterGain, -1, 1))
	return out, out
}

func (e *Chip) ActiveVoiceCount() int {
	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}

func (e *Chip) advanceEnv(v *chipVoice) {
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

func (e *Chip) stealVoice() int {
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
