// Package notesched schedules note on/off events against the shared
// clock with a rolling look-ahead window. A periodic tick scans the
// note list for notes starting inside the window and commits them to
// sample-accurate clock callbacks; a dedup key keeps overlapping
// windows from scheduling a note twice. Pause, seek and stop cancel
// every in-flight callback and silence anything already sounding.
package notesched

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/openmix/trackmix-go/internal/clock"
	"github.com/openmix/trackmix-go/internal/logging"
	"github.com/openmix/trackmix-go/internal/project"
	"github.com/openmix/trackmix-go/internal/timeconv"
)

// State is the scheduler's transport state.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Preset is a look-ahead/tick-interval pairing. Longer look-ahead
// survives timer jitter; shorter reacts faster to live edits.
type Preset struct {
	Name         string
	LookAhead    float64
	TickInterval time.Duration
}

// DefaultPreset is the scheduler's starting configuration.
const DefaultPreset = "balanced"

var presets = map[string]Preset{
	"reliable":   {Name: "reliable", LookAhead: 0.5, TickInterval: 120 * time.Millisecond},
	"balanced":   {Name: "balanced", LookAhead: 0.2, TickInterval: 50 * time.Millisecond},
	"responsive": {Name: "responsive", LookAhead: 0.1, TickInterval: 25 * time.Millisecond},
	"tight":      {Name: "tight", LookAhead: 0.04, TickInterval: 10 * time.Millisecond},
}

// Presets lists the available preset names.
func Presets() []string {
	return []string{"reliable", "balanced", "responsive", "tight"}
}

// Sink receives the scheduled events. Implementations must tolerate a
// NoteOff for a pitch that is not sounding.
type Sink interface {
	NoteOn(pitch int, velocity float64)
	NoteOff(pitch int)
}

// Stats is a snapshot of scheduling health.
type Stats struct {
	State          State
	Ticks          int
	Scheduled      int
	Late           int
	InFlight       int
	Overloads      int
	TickLatencyEMA time.Duration
}

const emaAlpha = 0.2

type scheduledNote struct {
	pitch    int
	velocity float64
	offSec   float64 // hardware seconds
	on       *clock.Scheduled
	off      *clock.Scheduled
	onFired  bool
}

// Scheduler walks a note list and fires its sink at note boundaries.
// All methods are safe for concurrent use.
type Scheduler struct {
	clk    clock.Clock
	sink   Sink
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	preset     Preset
	tempo      float64
	notes      []project.Note
	unit       project.NoteUnit
	startRef   float64 // hardware time of beat zero
	pauseBeat  float64
	scheduled  map[string]*scheduledNote
	generation int
	stop       chan struct{}

	ticks     int
	committed int
	late      int
	overloads int
	ema       time.Duration
}

// New creates a stopped scheduler at 120 BPM on the balanced preset.
func New(clk clock.Clock, sink Sink, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clk:       clk,
		sink:      sink,
		logger:    logging.Or(logger),
		preset:    presets[DefaultPreset],
		tempo:     project.DefaultTempo,
		unit:      project.UnitBeats,
		scheduled: make(map[string]*scheduledNote),
	}
}

// SetNotes replaces the note list. Notes already committed to the
// clock keep their timing; new entries are picked up on the next tick.
func (s *Scheduler) SetNotes(notes []project.Note, unit project.NoteUnit) {
	s.mu.Lock()
	s.notes = notes
	s.unit = unit
	s.mu.Unlock()
}

// SetTempo sets the beat rate used to map beats onto hardware time.
// Takes effect on the next Start or Seek.
func (s *Scheduler) SetTempo(tempo float64) {
	s.mu.Lock()
	if tempo > 0 {
		s.tempo = tempo
	}
	s.mu.Unlock()
}

// SetPreset switches the look-ahead configuration. While playing, the
// scheduler pauses, reconfigures and resumes at the same beat.
func (s *Scheduler) SetPreset(name string) error {
	p, ok := presets[name]
	if !ok {
		return fmt.Errorf("unknown scheduler preset %q (have %v)", name, Presets())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		s.preset = p
		return nil
	}
	beat := s.positionLocked()
	s.haltLocked(true)
	s.preset = p
	s.startLocked(beat)
	return nil
}

// Start begins playback at the given beat.
func (s *Scheduler) Start(startBeat float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePlaying {
		return fmt.Errorf("scheduler already playing")
	}
	s.clk.Resume()
	s.startLocked(startBeat)
	return nil
}

// Pause stops scheduling, cancels in-flight notes and remembers the
// position for Resume.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		return
	}
	s.pauseBeat = s.positionLocked()
	s.haltLocked(true)
	s.state = StatePaused
}

// Resume continues from the paused position. Resuming a stopped
// scheduler starts at beat zero.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePlaying {
		return fmt.Errorf("scheduler already playing")
	}
	s.clk.Resume()
	s.startLocked(s.pauseBeat)
	return nil
}

// Seek moves the transport. While playing it cancels everything in
// flight and continues from the new beat; otherwise it just moves the
// stored position.
func (s *Scheduler) Seek(beat float64) {
	if beat < 0 {
		beat = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		s.pauseBeat = beat
		return
	}
	s.haltLocked(true)
	s.startLocked(beat)
}

// Stop cancels everything and rewinds to beat zero.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	s.haltLocked(true)
	s.state = StateStopped
	s.pauseBeat = 0
}

// Position reports the transport position in beats.
func (s *Scheduler) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

// Stats returns a snapshot of the scheduling counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:          s.state,
		Ticks:          s.ticks,
		Scheduled:      s.committed,
		Late:           s.late,
		InFlight:       len(s.scheduled),
		Overloads:      s.overloads,
		TickLatencyEMA: s.ema,
	}
}

// Tick runs one scheduling pass immediately. The periodic loop calls
// this; tests call it directly against a fake clock.
func (s *Scheduler) Tick() {
	started := time.Now()
	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	s.tickLocked()
	s.ticks++
	elapsed := time.Since(started)
	if s.ema == 0 {
		s.ema = elapsed
	} else {
		s.ema = time.Duration(float64(s.ema)*(1-emaAlpha) + float64(elapsed)*emaAlpha)
	}
	interval := s.preset.TickInterval
	s.mu.Unlock()
	if elapsed > interval/2 {
		s.mu.Lock()
		s.overloads++
		s.mu.Unlock()
		s.logger.Warn("scheduler tick overloaded",
			"elapsed", elapsed, "interval", interval, "preset", s.preset.Name)
	}
}

func (s *Scheduler) positionLocked() float64 {
	if s.state != StatePlaying {
		return s.pauseBeat
	}
	return timeconv.SecondsToBeats(s.clk.Now()-s.startRef, s.tempo)
}

// startLocked computes the hardware time of beat zero, transitions to
// playing and launches the tick loop.
func (s *Scheduler) startLocked(startBeat float64) {
	s.startRef = s.clk.Now() - timeconv.BeatsToSeconds(startBeat, s.tempo)
	s.state = StatePlaying
	s.generation++
	s.stop = make(chan struct{})
	go s.run(s.stop, s.preset.TickInterval)
	s.tickLocked()
}

// haltLocked tears down the tick loop and cancels all in-flight clock
// callbacks. With silence set, anything already sounding gets an
// immediate note off.
func (s *Scheduler) haltLocked(silence bool) {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.generation++
	for key, rec := range s.scheduled {
		rec.on.Cancel()
		rec.off.Cancel()
		if silence && rec.onFired {
			s.sink.NoteOff(rec.pitch)
		}
		delete(s.scheduled, key)
	}
}

func (s *Scheduler) run(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-stop:
			return
		}
	}
}

// tickLocked scans the window and commits new notes to the clock.
func (s *Scheduler) tickLocked() {
	now := s.clk.Now()
	cur := now - s.startRef
	horizon := cur + s.preset.LookAhead
	rate := float64(s.clk.SampleRate())
	gen := s.generation

	for _, n := range s.notes {
		startSec, durSec := s.noteSeconds(n)
		if startSec < cur-slackWindow || startSec >= horizon {
			continue
		}
		key := noteKey(n.Pitch, n.Start)
		if _, ok := s.scheduled[key]; ok {
			continue
		}
		onSec := s.startRef + startSec
		offSec := onSec + durSec
		if onSec < now {
			s.late++
		}
		rec := &scheduledNote{pitch: n.Pitch, velocity: n.Velocity, offSec: offSec}
		rec.on = s.clk.ScheduleAtSample(func() { s.fireOn(gen, rec) }, int64(math.Round(onSec*rate)))
		rec.off = s.clk.ScheduleAtSample(func() { s.fireOff(gen, rec) }, int64(math.Round(offSec*rate)))
		s.scheduled[key] = rec
		s.committed++
	}

	// Drop records whose off time has passed the clock.
	for key, rec := range s.scheduled {
		if rec.offSec < now {
			delete(s.scheduled, key)
		}
	}
}

// slackWindow is how far behind the transport a note start may be and
// still get scheduled (it fires immediately, counted as late).
const slackWindow = 0.010

func (s *Scheduler) noteSeconds(n project.Note) (start, dur float64) {
	if s.unit == project.UnitSeconds {
		return n.Start, n.Duration
	}
	return timeconv.BeatsToSeconds(n.Start, s.tempo), timeconv.BeatsToSeconds(n.Duration, s.tempo)
}

func (s *Scheduler) fireOn(gen int, rec *scheduledNote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	rec.onFired = true
	s.sink.NoteOn(rec.pitch, rec.velocity)
}

func (s *Scheduler) fireOff(gen int, rec *scheduledNote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.sink.NoteOff(rec.pitch)
}

func noteKey(pitch int, start float64) string {
	return fmt.Sprintf("%d@%.6f", pitch, start)
}
