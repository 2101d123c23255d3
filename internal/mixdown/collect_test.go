package mixdown

import (
	"bytes"
	"math"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/openmix/trackmix-go/internal/logging"
	"github.com/openmix/trackmix-go/internal/project"
)

func collectForTest(t *testing.T, tr project.Track, globalBPM float64) []project.Note {
	t.Helper()
	return CollectNotes(&tr, globalBPM, logging.Discard())
}

func TestCollectBeatsAppliesTempoAndOffset(t *testing.T) {
	tr := project.Track{
		ID:    "m1",
		Type:  project.TrackMIDI,
		Tempo: 120,
		MIDI: &project.MIDIData{
			Tempo:     60,
			OffsetSec: 0.25,
			Notes: []project.Note{
				{Pitch: 60, Start: 1, Duration: 1, Velocity: 0.5},
			},
		},
	}
	got := collectForTest(t, tr, 240)
	if len(got) != 1 {
		t.Fatalf("got %d notes, want 1", len(got))
	}
	n := got[0]
	if math.Abs(n.Start-1.25) > 1e-9 {
		t.Fatalf("start = %v, want 1.25 (file tempo 60 plus 0.25s offset)", n.Start)
	}
	if math.Abs(n.Duration-1.0) > 1e-9 {
		t.Fatalf("duration = %v, want 1.0", n.Duration)
	}
	if n.Velocity != 0.5 {
		t.Fatalf("velocity = %v, want 0.5", n.Velocity)
	}
}

func TestCollectEventsPairsAndDefaultsVelocity(t *testing.T) {
	tr := project.Track{
		ID:    "m2",
		Tempo: 120,
		MIDI: &project.MIDIData{
			Events: []project.NoteEvent{
				{Type: project.EventNoteOff, Pitch: 60, Time: 1},
				{Type: project.EventNoteOn, Pitch: 60, Time: 0},
			},
		},
	}
	got := collectForTest(t, tr, 0)
	if len(got) != 1 {
		t.Fatalf("got %d notes, want 1", len(got))
	}
	n := got[0]
	if n.Start != 0 || math.Abs(n.Duration-0.5) > 1e-9 {
		t.Fatalf("note = %+v, want start 0 duration 0.5", n)
	}
	if n.Velocity != project.DefaultVelocity {
		t.Fatalf("velocity = %v, want default %v", n.Velocity, project.DefaultVelocity)
	}
}

func TestCollectEventsRetrigger(t *testing.T) {
	tr := project.Track{
		ID:    "m3",
		Tempo: 120,
		MIDI: &project.MIDIData{
			Events: []project.NoteEvent{
				{Type: project.EventNoteOn, Pitch: 60, Time: 0, Velocity: 0.9},
				{Type: project.EventNoteOn, Pitch: 60, Time: 1, Velocity: 0.9},
				{Type: project.EventNoteOff, Pitch: 60, Time: 2},
			},
		},
	}
	got := collectForTest(t, tr, 0)
	if len(got) != 2 {
		t.Fatalf("got %d notes, want 2 (retrigger splits)", len(got))
	}
	if math.Abs(got[0].Duration-0.5) > 1e-9 || math.Abs(got[1].Duration-0.5) > 1e-9 {
		t.Fatalf("durations = %v, %v, want 0.5 each", got[0].Duration, got[1].Duration)
	}
	if math.Abs(got[1].Start-0.5) > 1e-9 {
		t.Fatalf("second start = %v, want 0.5", got[1].Start)
	}
}

func TestCollectRegionsAddRegionStart(t *testing.T) {
	tr := project.Track{
		ID:            "m4",
		Tempo:         120,
		MIDIOffsetSec: 0.5,
		MIDI: &project.MIDIData{
			Regions: []project.Region{
				{ID: "r1", Start: 1.0, Notes: []project.Note{
					{Pitch: 60, Start: 1, Duration: 1, Velocity: 0.7},
				}},
			},
		},
	}
	got := collectForTest(t, tr, 0)
	if len(got) != 1 {
		t.Fatalf("got %d notes, want 1", len(got))
	}
	if math.Abs(got[0].Start-2.0) > 1e-9 {
		t.Fatalf("start = %v, want 2.0 (offset 0.5 + region 1.0 + one beat)", got[0].Start)
	}
}

func TestCollectStepsDefaultGrid(t *testing.T) {
	tr := project.Track{
		ID:    "m5",
		Tempo: 120,
		MIDI: &project.MIDIData{
			Steps: &project.StepGrid{
				Rows: []project.StepRow{
					{Pitch: 36, Steps: []bool{true, false, true}},
				},
			},
		},
	}
	got := collectForTest(t, tr, 0)
	if len(got) != 2 {
		t.Fatalf("got %d notes, want 2", len(got))
	}
	if got[0].Start != 0 || math.Abs(got[0].Duration-0.125) > 1e-9 {
		t.Fatalf("first = %+v, want start 0 duration 0.125", got[0])
	}
	if math.Abs(got[1].Start-0.25) > 1e-9 {
		t.Fatalf("second start = %v, want 0.25 (two sixteenths at 120)", got[1].Start)
	}
	if got[0].Velocity != project.DefaultVelocity {
		t.Fatalf("velocity = %v, want default", got[0].Velocity)
	}
}

func TestCollectDedupAcrossSubstructures(t *testing.T) {
	tr := project.Track{
		ID:    "m6",
		Tempo: 120,
		MIDI: &project.MIDIData{
			Notes: []project.Note{
				{Pitch: 60, Start: 0, Duration: 1},
				{Pitch: 60, Start: 0.001, Duration: 1},
				{Pitch: 60, Start: 0.004, Duration: 1},
			},
			Events: []project.NoteEvent{
				{Type: project.EventNoteOn, Pitch: 60, Time: 0},
				{Type: project.EventNoteOff, Pitch: 60, Time: 1},
			},
		},
	}
	got := collectForTest(t, tr, 0)
	if len(got) != 2 {
		t.Fatalf("got %d notes, want 2 (coincident copies deduped)", len(got))
	}
	if got[0].Start != 0 || math.Abs(got[1].Start-0.002) > 1e-9 {
		t.Fatalf("starts = %v, %v, want 0 and 0.002", got[0].Start, got[1].Start)
	}
}

func TestCollectOffsetPrecedence(t *testing.T) {
	base := project.Track{
		ID:                 "m7",
		Tempo:              120,
		MIDIOffsetSec:      0.5,
		PianoRollOffsetSec: 0.75,
		MIDI: &project.MIDIData{
			OffsetSec: 0.25,
			Notes:     []project.Note{{Pitch: 60, Start: 0, Duration: 1}},
		},
	}
	if got := collectForTest(t, base, 0); got[0].Start != 0.25 {
		t.Fatalf("start = %v, want embedded offset 0.25", got[0].Start)
	}
	base.MIDI.OffsetSec = 0
	if got := collectForTest(t, base, 0); got[0].Start != 0.5 {
		t.Fatalf("start = %v, want track offset 0.5", got[0].Start)
	}
	base.MIDIOffsetSec = 0
	if got := collectForTest(t, base, 0); got[0].Start != 0.75 {
		t.Fatalf("start = %v, want piano roll offset 0.75", got[0].Start)
	}
}

func TestCollectParsesSMFWhenNotesEmpty(t *testing.T) {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(240)
	var track smf.Track
	track.Add(0, smf.MetaTempo(100))
	track.Add(0, midi.NoteOn(0, 60, 100))
	track.Add(240, midi.NoteOff(0, 60))
	track.Close(0)
	if err := sm.Add(track); err != nil {
		t.Fatalf("add track: %v", err)
	}
	var buf bytes.Buffer
	if _, err := sm.WriteTo(&buf); err != nil {
		t.Fatalf("write smf: %v", err)
	}

	tr := project.Track{
		ID:   "m8",
		MIDI: &project.MIDIData{SMF: buf.Bytes()},
	}
	got := collectForTest(t, tr, 120)
	if len(got) != 1 {
		t.Fatalf("got %d notes, want 1", len(got))
	}
	if math.Abs(got[0].Duration-0.6) > 1e-9 {
		t.Fatalf("duration = %v, want 0.6 (one beat at file tempo 100)", got[0].Duration)
	}
	if math.Abs(got[0].Velocity-100.0/127.0) > 1e-9 {
		t.Fatalf("velocity = %v, want 100/127", got[0].Velocity)
	}
}

func TestCollectDropsUnplayableNotes(t *testing.T) {
	tr := project.Track{
		ID:    "m9",
		Tempo: 120,
		MIDI: &project.MIDIData{
			OffsetSec: -5,
			Notes: []project.Note{
				{Pitch: 60, Start: 0, Duration: 1},
				{Pitch: 60, Start: 7300, Duration: 1},
			},
		},
	}
	if got := collectForTest(t, tr, 0); len(got) != 0 {
		t.Fatalf("got %d notes, want 0 (negative start and horizon overflow)", len(got))
	}
}
