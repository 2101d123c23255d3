package effects

import "math"

// Limiter is the safety stage at the end of the master bus: a high
// threshold, a soft knee and a moderate ratio, tuned to stay inaudible
// on normal material and only catch accidental overs.
type Limiter struct {
	threshold float32 // linear
	knee      float32 // linear width of the soft knee
	ratio     float32
	attack    float32
	release   float32
	envL      float32
	envR      float32
}

// NewLimiter creates a limiter. thresholdDB is the ceiling (e.g. -1),
// kneeDB the soft-knee width, ratio the reduction slope above the knee.
func NewLimiter(sampleRate int, thresholdDB, kneeDB, ratio float64) *Limiter {
	sr := float64(sampleRate)
	thr := math.Pow(10, thresholdDB/20)
	return &Limiter{
		threshold: float32(thr),
		knee:      float32(thr - math.Pow(10, (thresholdDB-kneeDB)/20)),
		ratio:     float32(ratio),
		attack:    float32(1.0 - math.Exp(-1.0/(0.002*sr))),
		release:   float32(1.0 - math.Exp(-1.0/(0.080*sr))),
	}
}

func (lm *Limiter) Process(l, r float32) (float32, float32) {
	absL := float32(math.Abs(float64(l)))
	absR := float32(math.Abs(float64(r)))
	if absL > lm.envL {
		lm.envL += lm.attack * (absL - lm.envL)
	} else {
		lm.envL += lm.release * (absL - lm.envL)
	}
	if absR > lm.envR {
		lm.envR += lm.attack * (absR - lm.envR)
	} else {
		lm.envR += lm.release * (absR - lm.envR)
	}
	return l * lm.gainFor(lm.envL), r * lm.gainFor(lm.envR)
}

func (lm *Limiter) gainFor(env float32) float32 {
	kneeStart := lm.threshold - lm.knee
	if env <= kneeStart || lm.threshold <= 0 {
		return 1
	}
	if env < lm.threshold && lm.knee > 0 {
		// Inside the knee: blend linearly from unity into the ratio.
		t := (env - kneeStart) / lm.knee
		full := lm.compressed(env)
		return 1 + t*(full-1)
	}
	return lm.compressed(env)
}

func (lm *Limiter) compressed(env float32) float32 {
	over := env / lm.threshold
	return float32(math.Pow(float64(over), float64(1/lm.ratio-1)))
}

func (lm *Limiter) Reset() {
	lm.envL = 0
	lm.envR = 0
}
