package clipplay

import (
	"math"
	"sync"
)

// clipVoice plays a window of a decoded stereo buffer into the mixer.
// It finishes once the window is exhausted; the mixer drops it then.
type clipVoice struct {
	mu     sync.Mutex
	buf    []float32
	cursor int // frame position in buf
	end    int // exclusive frame bound
	gl, gr float32
	done   bool
}

// newClipVoice maps second-based offset/duration onto buffer frames.
// Returns nil when the window is empty after clamping.
func newClipVoice(buf []float32, offsetSec, durSec float64, rate float64, gl, gr float32) *clipVoice {
	frames := len(buf) / 2
	start := int(math.Round(offsetSec * rate))
	if start < 0 {
		start = 0
	}
	end := start + int(math.Round(durSec*rate))
	if end > frames {
		end = frames
	}
	if start >= end {
		return nil
	}
	return &clipVoice{buf: buf, cursor: start, end: end, gl: gl, gr: gr}
}

func (v *clipVoice) SetGains(gl, gr float32) {
	v.mu.Lock()
	v.gl, v.gr = gl, gr
	v.mu.Unlock()
}

func (v *clipVoice) Process(dst []float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	frames := len(dst) / 2
	i := 0
	for ; i < frames && v.cursor < v.end; i++ {
		dst[i*2] = v.buf[v.cursor*2] * v.gl
		dst[i*2+1] = v.buf[v.cursor*2+1] * v.gr
		v.cursor++
	}
	for ; i < frames; i++ {
		dst[i*2] = 0
		dst[i*2+1] = 0
	}
	if v.cursor >= v.end {
		v.done = true
	}
}

func (v *clipVoice) Finished() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.done
}
