package effects

import "math"

// Compressor is a feed-forward dynamics compressor, available to track
// effect chains as type "compressor".
type Compressor struct {
	threshold float32
	ratio     float32
	attack    float32
	release   float32
	makeup    float32
	envL      float32
	envR      float32
}

// NewCompressor creates the effect. thresholdDB is where reduction
// starts, ratio the slope above it, attackSec/releaseSec the envelope
// times, makeupDB the output gain.
func NewCompressor(sampleRate int, thresholdDB, ratio, attackSec, releaseSec, makeupDB float64) *Compressor {
	sr := float64(sampleRate)
	return &Compressor{
		threshold: float32(math.Pow(10, thresholdDB/20)),
		ratio:     float32(ratio),
		attack:    float32(1.0 - math.Exp(-1.0/(attackSec*sr))),
		release:   float32(1.0 - math.Exp(-1.0/(releaseSec*sr))),
		makeup:    float32(math.Pow(10, makeupDB/20)),
	}
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	absL := float32(math.Abs(float64(l)))
	absR := float32(math.Abs(float64(r)))
	if absL > c.envL {
		c.envL += c.attack * (absL - c.envL)
	} else {
		c.envL += c.release * (absL - c.envL)
	}
	if absR > c.envR {
		c.envR += c.attack * (absR - c.envR)
	} else {
		c.envR += c.release * (absR - c.envR)
	}
	return l * c.computeGain(c.envL) * c.makeup, r * c.computeGain(c.envR) * c.makeup
}

func (c *Compressor) computeGain(env float32) float32 {
	if env <= c.threshold || c.threshold <= 0 {
		return 1.0
	}
	over := env / c.threshold
	return float32(math.Pow(float64(over), float64(1.0/c.ratio-1)))
}

func (c *Compressor) Reset() {
	c.envL = 0
	c.envR = 0
}
