package effects

import "math"

// SoftClip is the final non-linear stage of the master bus: a gentle
// tanh curve that tames whatever the limiter let through without hard
// digital clipping. Drive 1 is nearly transparent for |x| < 0.5.
type SoftClip struct {
	drive float32
	norm  float32
}

// NewSoftClip creates the curve. drive scales the input into the tanh;
// the output is normalized so a full-scale input maps back to 1.
func NewSoftClip(drive float64) *SoftClip {
	if drive <= 0 {
		drive = 1
	}
	return &SoftClip{
		drive: float32(drive),
		norm:  float32(1.0 / math.Tanh(drive)),
	}
}

func (s *SoftClip) Process(l, r float32) (float32, float32) {
	return float32(math.Tanh(float64(l*s.drive))) * s.norm,
		float32(math.Tanh(float64(r*s.drive))) * s.norm
}

func (s *SoftClip) Reset() {}
