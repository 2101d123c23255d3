// Package trackmix is a multitrack audio engine: live playback of
// audio-clip and MIDI tracks against a shared hardware clock, and
// deterministic offline mixdown to 16-bit WAV.
package trackmix

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openmix/trackmix-go/internal/project"
)

// Model types, re-exported so callers assemble projects without
// touching internal packages.
type (
	Project    = project.Project
	Track      = project.Track
	TrackType  = project.TrackType
	Clip       = project.Clip
	Note       = project.Note
	NoteEvent  = project.NoteEvent
	Region     = project.Region
	StepGrid   = project.StepGrid
	StepRow    = project.StepRow
	MIDIData   = project.MIDIData
	EffectSpec = project.EffectSpec
)

const (
	TrackAudio = project.TrackAudio
	TrackMIDI  = project.TrackMIDI
)

// ParseProject decodes a project document, applying the editor's
// serialization defaults (volume 1, effects enabled).
func ParseProject(data []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	return &p, nil
}

// LoadProject reads and decodes a project file.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	return ParseProject(data)
}
