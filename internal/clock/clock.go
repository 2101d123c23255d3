// Package clock provides the shared hardware audio clock and its two
// scheduling primitives. The clock's time base is the number of frames
// the output stream has rendered, so time only has meaning as
// differences, never as an absolute epoch.
//
// ScheduleAtSample is the authoritative, sample-accurate primitive: the
// mixer splits its render blocks at due callback positions and fires
// the callback from the audio pull path, so a source started inside the
// callback is audible from exactly the requested frame. ScheduleAt is
// the poll-based fallback for callers that only have a seconds target
// and can tolerate timer accuracy.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// nearWindow is the horizon under which ScheduleAt skips the coarse
	// sleep and goes straight to the bounded poll loop.
	nearWindow = 0.050

	// coarseEarlyBy is how far before the target the coarse sleep wakes
	// up, leaving the remainder to the poll loop.
	coarseEarlyBy = 0.020

	pollInterval = 5 * time.Millisecond
	maxPollIters = 10

	// DefaultMaxWait caps how long a poll-scheduled callback waits for
	// the clock to reach its target before firing anyway.
	DefaultMaxWait = 10 * time.Second

	// DefaultPrecision is the poll loop's target accuracy in seconds.
	DefaultPrecision = 0.001
)

// ScheduleOpts tunes the poll-based primitive. Zero values pick the
// package defaults.
type ScheduleOpts struct {
	MaxWait   time.Duration
	Precision float64
}

// Scheduled is the cancellation handle returned by both scheduling
// primitives. Cancel is idempotent; after it returns, the callback will
// not start (a callback already mid-flight may still complete).
type Scheduled struct {
	fired  atomic.Bool
	once   sync.Once
	cancel chan struct{}
}

func newScheduled() *Scheduled {
	return &Scheduled{cancel: make(chan struct{})}
}

// Cancel prevents the callback from firing if it has not fired yet.
func (s *Scheduled) Cancel() {
	if s == nil {
		return
	}
	s.fired.Store(true)
	s.once.Do(func() { close(s.cancel) })
}

// claim marks the callback as fired; it returns false when the handle
// was cancelled or already claimed.
func (s *Scheduled) claim() bool {
	return s.fired.CompareAndSwap(false, true)
}

// Clock is the scheduling surface shared by the live components. The
// Hardware implementation is backed by the audio device; Fake is a
// deterministic test double driven by Advance.
type Clock interface {
	Now() float64
	NowSamples() int64
	SampleRate() int
	ScheduleAt(fn func(), target float64, opts ScheduleOpts) *Scheduled
	ScheduleAtSample(fn func(), at int64) *Scheduled
	AddSource(s Source)
	RemoveSource(s Source)
	SetTimelineStart(start float64)
	TimelineStart() float64
	Resume()
}
