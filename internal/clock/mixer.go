package clock

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
)

// Source produces stereo interleaved float32 frames. Process must fill
// all of dst; silence is explicit zeros.
type Source interface {
	Process(dst []float32)
}

// FinishingSource is a Source that can signal the mixer to drop it once
// playback has ended.
type FinishingSource interface {
	Source
	Finished() bool
}

type sampleCallback struct {
	at     int64
	fn     func()
	handle *Scheduled
}

// Mixer is the clock's render core: it advances the frame counter, sums
// registered sources, and fires due sample callbacks at their exact
// frame by splitting render blocks. It implements io.Reader in the
// float32 little-endian layout the audio device consumes.
type Mixer struct {
	sampleRate int

	readMu sync.Mutex // serializes Process/Read
	block  []float32
	srcbuf []float32

	mu       sync.Mutex
	sources  []Source
	snapshot []Source
	pending  []*sampleCallback

	frames atomic.Int64

	timelineMu    sync.Mutex
	timelineStart float64
}

// NewMixer creates a mixer rendering at the given sample rate.
func NewMixer(sampleRate int) *Mixer {
	return &Mixer{sampleRate: sampleRate}
}

// SampleRate returns the render rate in frames per second.
func (m *Mixer) SampleRate() int { return m.sampleRate }

// NowSamples returns the number of frames rendered so far.
func (m *Mixer) NowSamples() int64 { return m.frames.Load() }

// Now returns the rendered position in seconds.
func (m *Mixer) Now() float64 {
	return float64(m.frames.Load()) / float64(m.sampleRate)
}

// SetTimelineStart records the clock time corresponding to timeline
// position zero.
func (m *Mixer) SetTimelineStart(start float64) {
	m.timelineMu.Lock()
	m.timelineStart = start
	m.timelineMu.Unlock()
}

// TimelineStart returns the clock time of timeline position zero.
func (m *Mixer) TimelineStart() float64 {
	m.timelineMu.Lock()
	defer m.timelineMu.Unlock()
	return m.timelineStart
}

// AddSource registers a source. It starts sounding at the next segment
// boundary, which is the requested frame when called from a
// ScheduleAtSample callback.
func (m *Mixer) AddSource(s Source) {
	m.mu.Lock()
	m.sources = append(m.sources, s)
	m.mu.Unlock()
}

// RemoveSource unregisters a source by identity.
func (m *Mixer) RemoveSource(s Source) {
	m.mu.Lock()
	m.removeLocked(s)
	m.mu.Unlock()
}

func (m *Mixer) removeLocked(target Source) {
	for i, s := range m.sources {
		if s == target {
			m.sources = append(m.sources[:i], m.sources[i+1:]...)
			return
		}
	}
}

// ScheduleAtSample registers fn to fire when the render cursor reaches
// the given frame. A target already in the past fires on the next
// render block.
func (m *Mixer) ScheduleAtSample(fn func(), at int64) *Scheduled {
	s := newScheduled()
	cb := &sampleCallback{at: at, fn: fn, handle: s}
	m.mu.Lock()
	m.pending = append(m.pending, cb)
	for i := len(m.pending) - 1; i > 0 && m.pending[i-1].at > m.pending[i].at; i-- {
		m.pending[i-1], m.pending[i] = m.pending[i], m.pending[i-1]
	}
	m.mu.Unlock()
	return s
}

// Process renders one block of stereo frames into dst, firing due
// callbacks at their exact frame positions. Callbacks run on the
// calling (audio) goroutine with no mixer lock held, so they may add
// and remove sources freely.
func (m *Mixer) Process(dst []float32) {
	m.readMu.Lock()
	defer m.readMu.Unlock()
	m.process(dst)
}

func (m *Mixer) process(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	total := len(dst) / 2
	done := 0
	for done < total {
		cursor := m.frames.Load()

		m.mu.Lock()
		var due []*sampleCallback
		for len(m.pending) > 0 && m.pending[0].at <= cursor {
			due = append(due, m.pending[0])
			m.pending = m.pending[1:]
		}
		seg := total - done
		if len(m.pending) > 0 {
			if d := m.pending[0].at - cursor; int64(seg) > d {
				seg = int(d)
			}
		}
		m.snapshot = append(m.snapshot[:0], m.sources...)
		m.mu.Unlock()

		if len(due) > 0 {
			for _, cb := range due {
				if cb.handle.claim() {
					cb.fn()
				}
			}
			// Sources may have changed; recompute the segment.
			continue
		}

		segDst := dst[done*2 : (done+seg)*2]
		need := seg * 2
		if cap(m.srcbuf) < need {
			m.srcbuf = make([]float32, need)
		}
		buf := m.srcbuf[:need]
		var finished []Source
		for _, src := range m.snapshot {
			src.Process(buf)
			for i := range segDst {
				segDst[i] += buf[i]
			}
			if fs, ok := src.(FinishingSource); ok && fs.Finished() {
				finished = append(finished, src)
			}
		}
		if len(finished) > 0 {
			m.mu.Lock()
			for _, f := range finished {
				m.removeLocked(f)
			}
			m.mu.Unlock()
		}

		m.frames.Add(int64(seg))
		done += seg
	}
}

// Read implements io.Reader for the audio device: 8 bytes per frame,
// two float32 channels, little endian. It never returns io.EOF; with no
// sources the stream is silence, which keeps the clock advancing.
func (m *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	m.readMu.Lock()
	if cap(m.block) < need {
		m.block = make([]float32, need)
	}
	m.block = m.block[:need]
	m.process(m.block)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(m.block[i]))
	}
	m.readMu.Unlock()
	return frames * 8, nil
}

// Close implements io.Closer for the audio device player.
func (m *Mixer) Close() error { return nil }
