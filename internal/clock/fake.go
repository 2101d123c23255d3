package clock

import "math"

// Fake is a deterministic Clock for tests. Time advances only through
// Advance/Render, which pump the same mixer core the hardware clock
// uses, so sample-accurate scheduling behaves identically.
type Fake struct {
	*Mixer
}

// NewFake creates a fake clock at the given sample rate.
func NewFake(sampleRate int) *Fake {
	return &Fake{Mixer: NewMixer(sampleRate)}
}

// ScheduleAt maps the seconds target onto the sample grid; with a fake
// clock the poll fallback has nothing to poll.
func (f *Fake) ScheduleAt(fn func(), target float64, _ ScheduleOpts) *Scheduled {
	at := int64(math.Round(target * float64(f.SampleRate())))
	return f.ScheduleAtSample(fn, at)
}

// Resume is a no-op; the fake clock has no device to resume.
func (f *Fake) Resume() {}

// Advance renders dt seconds of audio into the void, firing any due
// callbacks along the way.
func (f *Fake) Advance(dt float64) {
	frames := int(math.Round(dt * float64(f.SampleRate())))
	f.Render(frames)
}

// Render pulls the given number of frames through the mixer and returns
// the stereo interleaved output.
func (f *Fake) Render(frames int) []float32 {
	if frames <= 0 {
		return nil
	}
	out := make([]float32, frames*2)
	f.Process(out)
	return out
}
