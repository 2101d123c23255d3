// Package midifile flattens Standard MIDI Files into the project's
// note model: pitches with beat-relative starts and durations, plus
// the file's tempo and resolution.
package midifile

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/openmix/trackmix-go/internal/project"
)

// Parse reads SMF bytes into MIDI data. All tracks are merged; the
// first tempo event wins and later tempo changes are ignored.
func Parse(data []byte) (md *project.MIDIData, err error) {
	// The smf reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			md = nil
			err = fmt.Errorf("parse midi: %v", r)
		}
	}()

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse midi: %w", err)
	}

	md = &project.MIDIData{PPQ: project.DefaultPPQ, SMF: data}
	if tf, ok := s.TimeFormat.(smf.MetricTicks); ok {
		md.PPQ = int(tf)
	}
	ppq := float64(md.PPQ)

	for _, events := range s.Tracks {
		var absTicks int64
		pressed := make(map[uint8]openNote)
		for _, event := range events {
			absTicks += int64(event.Delta)
			var channel, key, velocity uint8
			var bpm float64
			switch {
			case event.Message.GetMetaTempo(&bpm):
				if md.Tempo == 0 && bpm > 0 {
					md.Tempo = bpm
				}
			case event.Message.GetNoteOn(&channel, &key, &velocity):
				if velocity == 0 {
					closeNote(md, pressed, key, absTicks, ppq)
					continue
				}
				// Retrigger closes the still-open note first.
				closeNote(md, pressed, key, absTicks, ppq)
				pressed[key] = openNote{startTick: absTicks, velocity: float64(velocity) / 127}
			case event.Message.GetNoteOff(&channel, &key, &velocity):
				closeNote(md, pressed, key, absTicks, ppq)
			}
		}
		// Close anything still sounding at the end of the track.
		for key := range pressed {
			closeNote(md, pressed, key, absTicks, ppq)
		}
	}

	sort.SliceStable(md.Notes, func(i, j int) bool {
		if md.Notes[i].Start != md.Notes[j].Start {
			return md.Notes[i].Start < md.Notes[j].Start
		}
		return md.Notes[i].Pitch < md.Notes[j].Pitch
	})
	md.Events = noteEvents(md.Notes)
	return md, nil
}

// ParseFile reads an SMF from disk.
func ParseFile(path string) (*project.MIDIData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse midi: %w", err)
	}
	md, err := Parse(data)
	if err != nil {
		return nil, err
	}
	md.SMFPath = path
	return md, nil
}

type openNote struct {
	startTick int64
	velocity  float64
}

func closeNote(md *project.MIDIData, pressed map[uint8]openNote, key uint8, endTick int64, ppq float64) {
	open, ok := pressed[key]
	if !ok {
		return
	}
	delete(pressed, key)
	if endTick <= open.startTick {
		return
	}
	md.Notes = append(md.Notes, project.Note{
		Pitch:    int(key),
		Start:    float64(open.startTick) / ppq,
		Duration: float64(endTick-open.startTick) / ppq,
		Velocity: open.velocity,
	})
}

// noteEvents expands notes into a sorted on/off event stream, offs
// ahead of ons at equal times so retriggers release before restriking.
func noteEvents(notes []project.Note) []project.NoteEvent {
	events := make([]project.NoteEvent, 0, len(notes)*2)
	for _, n := range notes {
		events = append(events,
			project.NoteEvent{Type: project.EventNoteOn, Pitch: n.Pitch, Time: n.Start, Velocity: n.Velocity},
			project.NoteEvent{Type: project.EventNoteOff, Pitch: n.Pitch, Time: n.Start + n.Duration},
		)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Time != events[j].Time {
			return events[i].Time < events[j].Time
		}
		return events[i].Type == project.EventNoteOff && events[j].Type == project.EventNoteOn
	})
	return events
}
