package effects

import "math"

// LFO waveform selectors for the tremolo "waveform" parameter.
const (
	lfoSaw = iota
	lfoSquare
	lfoTriangle
	lfoRandom
)

// modLFO is a low frequency oscillator shared state for modulation
// effects. Sample returns a value in [-1, 1]; the random waveform is a
// seed-free hash held per cycle, so renders stay deterministic.
type modLFO struct {
	rateHz   float64
	waveform int
	phase    float64 // [0, 1)
	held     float64
}

func (l *modLFO) sample(sampleRate float64) float64 {
	if l.rateHz == 0 || sampleRate == 0 {
		return 0
	}
	var v float64
	switch l.waveform {
	case lfoSaw:
		v = 1 - 2*l.phase
	case lfoSquare:
		if l.phase < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case lfoRandom:
		v = l.held
	default: // triangle
		if l.phase < 0.5 {
			v = 4*l.phase - 1
		} else {
			v = 3 - 4*l.phase
		}
	}

	prev := l.phase
	l.phase += l.rateHz / sampleRate
	for l.phase >= 1 {
		l.phase -= 1
	}
	if l.waveform == lfoRandom && l.phase < prev {
		h := math.Sin(l.phase*12345.6789 + l.held*67890.1234)
		h -= math.Floor(h)
		l.held = h*2 - 1
	}
	return v
}

func (l *modLFO) reset() {
	l.phase = 0
	l.held = 0
}

// Tremolo modulates amplitude with a low frequency oscillator,
// available to track effect chains as type "tremolo". At depth 1 the
// gain sweeps the full 0..1 range.
type Tremolo struct {
	sampleRate float64
	lfo        modLFO
	depth      float32
}

// NewTremolo creates the effect. rateHz is the sweep speed, depth the
// modulation amount in 0..1, waveform one of the LFO selectors.
func NewTremolo(sampleRate int, rateHz, depth float64, waveform int) *Tremolo {
	if waveform < lfoSaw || waveform > lfoRandom {
		waveform = lfoTriangle
	}
	return &Tremolo{
		sampleRate: float64(sampleRate),
		lfo:        modLFO{rateHz: rateHz, waveform: waveform},
		depth:      clamp(float32(depth), 0, 1),
	}
}

func (t *Tremolo) Process(l, r float32) (float32, float32) {
	m := float32(t.lfo.sample(t.sampleRate))
	gain := 1 - t.depth*(0.5+0.5*m)
	return l * gain, r * gain
}

func (t *Tremolo) Reset() {
	t.lfo.reset()
}
