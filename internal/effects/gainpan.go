package effects

import "math"

// StereoGain applies a linear gain and equal-power pan. It is the
// per-track input stage of the summing chain and, with pan 0, the
// master gain stage.
type StereoGain struct {
	gain float32
	panL float32
	panR float32
}

// NewStereoGain creates the stage. pan runs -1 (hard left) to +1 (hard
// right); the pan law is equal power, so center sits 3 dB below the
// extremes on each channel.
func NewStereoGain(gain, pan float64) *StereoGain {
	angle := float64(clamp(float32(pan), -1, 1)+1) * math.Pi / 4
	return &StereoGain{
		gain: float32(gain),
		panL: float32(math.Cos(angle)),
		panR: float32(math.Sin(angle)),
	}
}

func (g *StereoGain) Process(l, r float32) (float32, float32) {
	return l * g.gain * g.panL, r * g.gain * g.panR
}

func (g *StereoGain) Reset() {}
