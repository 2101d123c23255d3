package project

import (
	"strings"
	"testing"
)

func TestResolvePPQPrecedence(t *testing.T) {
	tr := Track{PPQ: 240, MIDI: &MIDIData{PPQ: 960}}
	if got := tr.ResolvePPQ(); got != 960 {
		t.Fatalf("MIDI-file PPQ should win: got %d", got)
	}
	tr = Track{PPQ: 240}
	if got := tr.ResolvePPQ(); got != 240 {
		t.Fatalf("track PPQ should win over default: got %d", got)
	}
	tr = Track{}
	if got := tr.ResolvePPQ(); got != 480 {
		t.Fatalf("expected default 480, got %d", got)
	}
}

func TestResolveTempoPrecedence(t *testing.T) {
	tr := Track{Tempo: 90, MIDI: &MIDIData{Tempo: 150}}
	if got := tr.ResolveTempo(100); got != 150 {
		t.Fatalf("MIDI-file tempo should win: got %v", got)
	}
	tr = Track{Tempo: 90}
	if got := tr.ResolveTempo(100); got != 90 {
		t.Fatalf("track tempo should win over global: got %v", got)
	}
	tr = Track{}
	if got := tr.ResolveTempo(100); got != 100 {
		t.Fatalf("global tempo should win over default: got %v", got)
	}
	if got := tr.ResolveTempo(0); got != DefaultTempo {
		t.Fatalf("expected default %v, got %v", DefaultTempo, got)
	}
}

func TestResolveOffsetPrecedence(t *testing.T) {
	tr := Track{
		MIDIOffsetSec:      1.5,
		PianoRollOffsetSec: 2.5,
		MIDI:               &MIDIData{OffsetSec: 0.5},
	}
	if got := tr.ResolveOffset(); got != 0.5 {
		t.Fatalf("midiData offset should win: got %v", got)
	}
	tr = Track{MIDIOffsetSec: 1.5, PianoRollOffsetSec: 2.5}
	if got := tr.ResolveOffset(); got != 1.5 {
		t.Fatalf("midiOffsetSec should win over pianoRollOffsetSec: got %v", got)
	}
	tr = Track{PianoRollOffsetSec: 2.5}
	if got := tr.ResolveOffset(); got != 2.5 {
		t.Fatalf("pianoRollOffsetSec tier should apply: got %v", got)
	}
	tr = Track{}
	if got := tr.ResolveOffset(); got != 0 {
		t.Fatalf("expected 0 offset, got %v", got)
	}
}

func TestLoadProjectDefaults(t *testing.T) {
	src := `{
		"bpm": 128,
		"tracks": [
			{"id": "t1", "type": "audio", "clips": [{"id": "c1", "src": "a.wav", "start": 0, "duration": 2}]},
			{"id": "t2", "type": "midi", "volume": 0.5, "effects": [{"type": "reverb"}, {"type": "delay", "enabled": false}]}
		]
	}`
	p, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if p.BPM != 128 || len(p.Tracks) != 2 {
		t.Fatalf("unexpected project: %+v", p)
	}
	if p.Tracks[0].Volume != 1 {
		t.Fatalf("omitted volume should default to 1, got %v", p.Tracks[0].Volume)
	}
	if p.Tracks[1].Volume != 0.5 {
		t.Fatalf("explicit volume should be kept, got %v", p.Tracks[1].Volume)
	}
	fx := p.Tracks[1].Effects
	if !fx[0].Enabled || fx[1].Enabled {
		t.Fatalf("effect enabled defaults wrong: %+v", fx)
	}
	if got := p.Tracks[1].EnabledEffects(); len(got) != 1 || got[0].Type != "reverb" {
		t.Fatalf("expected only reverb enabled, got %+v", got)
	}
}

func TestMIDIDataHasContent(t *testing.T) {
	var m *MIDIData
	if m.HasContent() {
		t.Fatalf("nil MIDIData should have no content")
	}
	if (&MIDIData{}).HasContent() {
		t.Fatalf("empty MIDIData should have no content")
	}
	if !(&MIDIData{Notes: []Note{{Pitch: 60, Duration: 1}}}).HasContent() {
		t.Fatalf("notes should count as content")
	}
	steps := &MIDIData{Steps: &StepGrid{Rows: []StepRow{{Pitch: 36, Steps: make([]bool, 16)}}}}
	if steps.HasContent() {
		t.Fatalf("all-off step grid should have no content")
	}
	steps.Steps.Rows[0].Steps[3] = true
	if !steps.HasContent() {
		t.Fatalf("step grid with an on step should have content")
	}
}
