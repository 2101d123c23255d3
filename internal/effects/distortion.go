package effects

import "math"

// Distortion is tanh waveshaping with pre/post gain and an optional
// lowpass to round off the added harmonics, available to track effect
// chains as type "distortion".
type Distortion struct {
	preGain  float32
	postGain float32
	lpfAlpha float32
	lpfL     float32
	lpfR     float32
}

// NewDistortion creates the effect. preGain drives the waveshaper,
// postGain trims the output, lpfCutoff (Hz, 0 disables) smooths it.
func NewDistortion(sampleRate int, preGain, postGain, lpfCutoff float64) *Distortion {
	d := &Distortion{
		preGain:  float32(preGain),
		postGain: float32(postGain),
	}
	if lpfCutoff > 0 && lpfCutoff < float64(sampleRate)/2 {
		rc := 1.0 / (2.0 * math.Pi * lpfCutoff)
		dt := 1.0 / float64(sampleRate)
		d.lpfAlpha = float32(dt / (rc + dt))
	}
	return d
}

func (d *Distortion) Process(l, r float32) (float32, float32) {
	l = float32(math.Tanh(float64(l*d.preGain))) * d.postGain
	r = float32(math.Tanh(float64(r*d.preGain))) * d.postGain
	if d.lpfAlpha > 0 {
		d.lpfL += d.lpfAlpha * (l - d.lpfL)
		d.lpfR += d.lpfAlpha * (r - d.lpfR)
		l = d.lpfL
		r = d.lpfR
	}
	return l, r
}

func (d *Distortion) Reset() {
	d.lpfL = 0
	d.lpfR = 0
}
