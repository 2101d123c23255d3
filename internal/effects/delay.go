package effects

// Delay is a stereo feedback delay with cross-channel bleed, available
// to track effect chains as type "delay".
type Delay struct {
	bufL, bufR []float32
	pos        int
	feedback   float32
	cross      float32
	wet        float32
}

// NewDelay creates a delay line of timeSec seconds. feedback and cross
// control regeneration and channel bleed, wet the mix.
func NewDelay(sampleRate int, timeSec, feedback, cross, wet float64) *Delay {
	frames := int(timeSec * float64(sampleRate))
	if frames < 1 {
		frames = 1
	}
	return &Delay{
		bufL:     make([]float32, frames),
		bufR:     make([]float32, frames),
		feedback: clamp(float32(feedback), 0, 0.95),
		cross:    clamp(float32(cross), 0, 1),
		wet:      clamp(float32(wet), 0, 1),
	}
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	delL := d.bufL[d.pos]
	delR := d.bufR[d.pos]
	fbL := delL*d.feedback*(1-d.cross) + delR*d.feedback*d.cross
	fbR := delR*d.feedback*(1-d.cross) + delL*d.feedback*d.cross
	d.bufL[d.pos] = l + fbL
	d.bufR[d.pos] = r + fbR
	d.pos++
	if d.pos >= len(d.bufL) {
		d.pos = 0
	}
	return l*(1-d.wet) + delL*d.wet, r*(1-d.wet) + delR*d.wet
}

func (d *Delay) Reset() {
	for i := range d.bufL {
		d.bufL[i] = 0
		d.bufR[i] = 0
	}
	d.pos = 0
}
