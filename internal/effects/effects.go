// Package effects holds the stereo frame processors used on the master
// bus (gain/pan, compensation EQ, safety limiter, soft clip) and the
// per-track inserts built from effect specs (EQ, compressor, delay,
// chorus, reverb, distortion, tremolo).
package effects

// Effector processes one stereo frame at a time and carries its own
// filter state.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

// Len reports how many effects the chain holds.
func (c *Chain) Len() int { return len(c.effects) }

// ProcessBuffer runs the chain over a stereo interleaved buffer in
// place and returns it.
func (c *Chain) ProcessBuffer(buf []float32) []float32 {
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = c.Process(buf[i], buf[i+1])
	}
	return buf
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
