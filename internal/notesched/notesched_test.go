package notesched

import (
	"sync"
	"testing"

	"github.com/openmix/trackmix-go/internal/clock"
	"github.com/openmix/trackmix-go/internal/logging"
	"github.com/openmix/trackmix-go/internal/project"
)

type sinkEvent struct {
	on    bool
	pitch int
	frame int64
}

type fakeSink struct {
	mu     sync.Mutex
	clk    *clock.Fake
	events []sinkEvent
}

func (f *fakeSink) NoteOn(pitch int, velocity float64) {
	f.mu.Lock()
	f.events = append(f.events, sinkEvent{on: true, pitch: pitch, frame: f.clk.NowSamples()})
	f.mu.Unlock()
}

func (f *fakeSink) NoteOff(pitch int) {
	f.mu.Lock()
	f.events = append(f.events, sinkEvent{on: false, pitch: pitch, frame: f.clk.NowSamples()})
	f.mu.Unlock()
}

func (f *fakeSink) snapshot() []sinkEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sinkEvent(nil), f.events...)
}

func newTestScheduler(rate int) (*Scheduler, *clock.Fake, *fakeSink) {
	clk := clock.NewFake(rate)
	sink := &fakeSink{clk: clk}
	s := New(clk, sink, logging.Discard())
	return s, clk, sink
}

func TestSchedulerCommitsNotesSampleAccurately(t *testing.T) {
	s, clk, sink := newTestScheduler(1000)
	s.SetTempo(120) // 0.5s per beat
	s.SetNotes([]project.Note{
		{Pitch: 60, Start: 0, Duration: 1, Velocity: 0.8},
		{Pitch: 64, Start: 1, Duration: 1, Velocity: 0.8},
	}, project.UnitBeats)

	if err := s.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	clk.Render(400)
	s.Tick() // window now reaches the second note
	clk.Render(700)

	want := []sinkEvent{
		{on: true, pitch: 60, frame: 0},
		{on: false, pitch: 60, frame: 500},
		{on: true, pitch: 64, frame: 500},
		{on: false, pitch: 64, frame: 1000},
	}
	got := sink.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSchedulerTickIsIdempotent(t *testing.T) {
	s, _, _ := newTestScheduler(1000)
	s.SetTempo(120)
	s.SetNotes([]project.Note{{Pitch: 60, Start: 0, Duration: 1, Velocity: 0.8}}, project.UnitBeats)

	if err := s.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	s.Tick()
	s.Tick()
	if got := s.Stats().Scheduled; got != 1 {
		t.Fatalf("scheduled = %d, want 1 after repeated ticks", got)
	}
}

func TestPauseCancelsInFlightAndSilences(t *testing.T) {
	s, clk, sink := newTestScheduler(1000)
	s.SetTempo(120)
	s.SetNotes([]project.Note{{Pitch: 60, Start: 0, Duration: 20, Velocity: 0.8}}, project.UnitBeats)

	if err := s.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clk.Render(100) // note on fires
	s.Pause()

	events := sink.snapshot()
	if len(events) != 2 || events[1].on || events[1].pitch != 60 {
		t.Fatalf("events after pause = %+v, want on then silencing off", events)
	}
	if got := s.Stats().InFlight; got != 0 {
		t.Fatalf("in flight = %d, want 0 after pause", got)
	}

	// The cancelled off must not fire later.
	clk.Render(20000)
	if got := sink.snapshot(); len(got) != 2 {
		t.Fatalf("events after render = %+v, want no more than the pause pair", got)
	}
}

func TestResumeContinuesFromPausedBeat(t *testing.T) {
	s, clk, sink := newTestScheduler(1000)
	s.SetTempo(120)
	s.SetNotes([]project.Note{{Pitch: 64, Start: 1, Duration: 1, Velocity: 0.8}}, project.UnitBeats)

	if err := s.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clk.Render(250)
	s.Pause()
	if got := s.Position(); got < 0.49 || got > 0.51 {
		t.Fatalf("paused position = %v beats, want ~0.5", got)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	defer s.Stop()

	// Beat 1 is 0.25s after the resume point, clock now at frame 250.
	s.Tick()
	clk.Render(600)
	events := sink.snapshot()
	if len(events) < 1 || !events[0].on || events[0].pitch != 64 {
		t.Fatalf("events = %+v, want note 64 on", events)
	}
	if events[0].frame != 500 {
		t.Fatalf("note on at frame %d, want 500", events[0].frame)
	}
}

func TestSeekWhilePlayingReschedules(t *testing.T) {
	s, clk, sink := newTestScheduler(1000)
	s.SetTempo(120)
	s.SetNotes([]project.Note{{Pitch: 60, Start: 0, Duration: 1, Velocity: 0.8}}, project.UnitBeats)

	if err := s.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	clk.Render(100)
	s.Seek(0)
	clk.Render(50)

	// on, silencing off from the seek, then the rescheduled on.
	events := sink.snapshot()
	if len(events) != 3 {
		t.Fatalf("events = %+v, want on/off/on", events)
	}
	if !events[0].on || events[1].on || !events[2].on {
		t.Fatalf("events = %+v, want on/off/on", events)
	}
	if events[2].frame != 100 {
		t.Fatalf("rescheduled on at frame %d, want 100", events[2].frame)
	}
}

func TestSetPresetWhilePlayingKeepsPosition(t *testing.T) {
	s, clk, _ := newTestScheduler(1000)
	s.SetTempo(120)

	if err := s.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	clk.Render(300)
	if err := s.SetPreset("tight"); err != nil {
		t.Fatalf("SetPreset: %v", err)
	}
	if got := s.Stats().State; got != StatePlaying {
		t.Fatalf("state = %v, want playing", got)
	}
	if got := s.Position(); got < 0.59 || got > 0.61 {
		t.Fatalf("position = %v beats, want ~0.6", got)
	}

	if err := s.SetPreset("theremin"); err == nil {
		t.Fatalf("expected error for unknown preset")
	}
}

func TestLateNoteCountedAndStillPlayed(t *testing.T) {
	s, clk, sink := newTestScheduler(1000)

	if err := s.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	clk.Render(8)
	s.SetNotes([]project.Note{{Pitch: 60, Start: 0, Duration: 1, Velocity: 0.8}}, project.UnitSeconds)
	s.Tick()
	clk.Render(10)

	if got := s.Stats().Late; got != 1 {
		t.Fatalf("late = %d, want 1", got)
	}
	events := sink.snapshot()
	if len(events) == 0 || !events[0].on {
		t.Fatalf("events = %+v, want immediate late note on", events)
	}
}

func TestStopRewindsToZero(t *testing.T) {
	s, clk, _ := newTestScheduler(1000)
	if err := s.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clk.Render(400)
	s.Stop()
	if got := s.Stats().State; got != StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}
	if got := s.Position(); got != 0 {
		t.Fatalf("position = %v, want 0", got)
	}
	if err := s.Start(0); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Stop()
}
