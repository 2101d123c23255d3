package mixdown

import (
	"log/slog"
	"math"
	"sort"

	"github.com/openmix/trackmix-go/internal/midifile"
	"github.com/openmix/trackmix-go/internal/project"
	"github.com/openmix/trackmix-go/internal/timeconv"
)

// Dedup tolerances: notes from different substructures that coincide
// this closely are the same note arriving twice.
const (
	dedupTimeTol = 0.001
	dedupDurTol  = 0.001
	dedupFreqTol = 0.1
)

// CollectNotes normalizes every populated MIDI substructure of the
// track into one absolute-seconds note list: resolved tempo and PPQ,
// the track's single resolved time offset, velocity defaults, then
// tolerance dedup. The input track is never mutated; SMF content is
// parsed into a local copy. The live player schedules from the same
// list the offline pipeline synthesizes.
func CollectNotes(t *project.Track, globalBPM float64, logger *slog.Logger) []project.Note {
	if t.MIDI == nil {
		return nil
	}
	local := *t.MIDI
	if len(local.Notes) == 0 && (len(local.SMF) > 0 || local.SMFPath != "") {
		parsed, err := parseTrackSMF(&local)
		if err != nil {
			logger.Warn("midi file unreadable, skipping file content", "track", t.ID, "err", err)
		} else {
			local.Notes = parsed.Notes
			if local.Tempo == 0 {
				local.Tempo = parsed.Tempo
			}
			if local.PPQ == 0 {
				local.PPQ = parsed.PPQ
			}
		}
	}
	lt := *t
	lt.MIDI = &local
	tc := lt.ResolveTempoContext(globalBPM)
	offset := lt.ResolveOffset()

	var raw []project.Note
	raw = append(raw, notesFromBeats(local.Notes, tc.Tempo, offset)...)
	raw = append(raw, notesFromEvents(local.Events, tc.Tempo, offset)...)
	raw = append(raw, notesFromRegions(local.Regions, tc.Tempo, offset)...)
	if local.Steps != nil {
		raw = append(raw, notesFromSteps(local.Steps, tc.Tempo, offset)...)
	}

	valid := make([]project.Note, 0, len(raw))
	for _, n := range raw {
		nn, err := project.ValidateNote(n, project.UnitSeconds)
		if err != nil {
			logger.Debug("dropping invalid collected note", "track", t.ID, "err", err)
			continue
		}
		valid = append(valid, nn)
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].Pitch < valid[j].Pitch
	})
	return dedupNotes(valid)
}

func parseTrackSMF(md *project.MIDIData) (*project.MIDIData, error) {
	if len(md.SMF) > 0 {
		return midifile.Parse(md.SMF)
	}
	return midifile.ParseFile(md.SMFPath)
}

func notesFromBeats(notes []project.Note, tempo, offset float64) []project.Note {
	out := make([]project.Note, 0, len(notes))
	for _, n := range notes {
		out = append(out, project.Note{
			Pitch:    n.Pitch,
			Start:    offset + timeconv.BeatsToSeconds(n.Start, tempo),
			Duration: timeconv.BeatsToSeconds(n.Duration, tempo),
			Velocity: n.Velocity,
		})
	}
	return out
}

// notesFromEvents pairs a raw on/off stream. A second on for a pitch
// already sounding closes the first note; a dangling on closes at the
// stream's last event time.
func notesFromEvents(events []project.NoteEvent, tempo, offset float64) []project.Note {
	if len(events) == 0 {
		return nil
	}
	sorted := append([]project.NoteEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Time != sorted[j].Time {
			return sorted[i].Time < sorted[j].Time
		}
		return sorted[i].Type == project.EventNoteOff && sorted[j].Type == project.EventNoteOn
	})

	type open struct {
		start float64
		vel   float64
	}
	pressed := make(map[int]open)
	var out []project.Note
	closeAt := func(pitch int, end float64) {
		o, ok := pressed[pitch]
		if !ok {
			return
		}
		delete(pressed, pitch)
		if end <= o.start {
			return
		}
		out = append(out, project.Note{
			Pitch:    pitch,
			Start:    offset + timeconv.BeatsToSeconds(o.start, tempo),
			Duration: timeconv.BeatsToSeconds(end-o.start, tempo),
			Velocity: o.vel,
		})
	}
	for _, ev := range sorted {
		switch ev.Type {
		case project.EventNoteOn:
			closeAt(ev.Pitch, ev.Time)
			pressed[ev.Pitch] = open{start: ev.Time, vel: ev.Velocity}
		case project.EventNoteOff:
			closeAt(ev.Pitch, ev.Time)
		}
	}
	last := sorted[len(sorted)-1].Time
	for pitch := range pressed {
		closeAt(pitch, last)
	}
	return out
}

func notesFromRegions(regions []project.Region, tempo, offset float64) []project.Note {
	var out []project.Note
	for _, r := range regions {
		for _, n := range r.Notes {
			out = append(out, project.Note{
				Pitch:    n.Pitch,
				Start:    offset + r.Start + timeconv.BeatsToSeconds(n.Start, tempo),
				Duration: timeconv.BeatsToSeconds(n.Duration, tempo),
				Velocity: n.Velocity,
			})
		}
	}
	return out
}

func notesFromSteps(grid *project.StepGrid, tempo, offset float64) []project.Note {
	spb := grid.StepsPerBeat
	if spb <= 0 {
		spb = 4
	}
	stepBeats := 1.0 / float64(spb)
	var out []project.Note
	for _, row := range grid.Rows {
		for i, on := range row.Steps {
			if !on {
				continue
			}
			out = append(out, project.Note{
				Pitch:    row.Pitch,
				Start:    offset + timeconv.BeatsToSeconds(float64(i)*stepBeats, tempo),
				Duration: timeconv.BeatsToSeconds(stepBeats, tempo),
			})
		}
	}
	return out
}

// dedupNotes drops notes that coincide with an already-kept note within
// the time/duration/frequency tolerances. Input must be sorted by
// start.
func dedupNotes(notes []project.Note) []project.Note {
	kept := make([]project.Note, 0, len(notes))
	for _, n := range notes {
		dup := false
		for j := len(kept) - 1; j >= 0; j-- {
			k := kept[j]
			if n.Start-k.Start > dedupTimeTol {
				break
			}
			if math.Abs(n.Duration-k.Duration) <= dedupDurTol &&
				math.Abs(pitchFreq(n.Pitch)-pitchFreq(k.Pitch)) <= dedupFreqTol {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, n)
		}
	}
	return kept
}

func pitchFreq(pitch int) float64 {
	return 440.0 * math.Pow(2, float64(pitch-69)/12.0)
}
