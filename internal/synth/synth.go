// Package synth provides the polyphonic instruments used by live MIDI
// playback and offline rendering. An Instrument renders a
// frame at a time so callers control timing exactly: note-off is issued
// by the caller at the note's precise end frame, and the release tail
// is drained by rendering until ActiveVoiceCount reaches zero.
package synth

import (
	"fmt"
	"math"
	"strings"
)

// Instrument is a voice engine at a fixed sample rate. NoteOn returns a
// voice id for the matching NoteOff. Implementations are not safe for
// concurrent use; callers serialize access (the audio pull path or the
// offline render loop).
type Instrument interface {
	NoteOn(pitch int, velocity float64) int
	NoteOff(id int)
	RenderFrame() (float32, float32)
	ActiveVoiceCount() int
}

// New creates the instrument named by spec: "fm" (the default, also
// chosen for an empty spec), "chip", "wavetable" (optionally
// "wavetable:<shape>"), or "soundfont:<path to .sf2>".
func New(spec string, sampleRate int) (Instrument, error) {
	switch {
	case spec == "" || spec == "fm":
		return NewFM(sampleRate, DefaultFMParams()), nil
	case spec == "chip":
		return NewChip(sampleRate, DefaultChipParams()), nil
	case spec == "wavetable" || strings.HasPrefix(spec, "wavetable:"):
		params := DefaultWavetableParams()
		if shape := strings.TrimPrefix(spec, "wavetable"); shape != "" {
			params.Shape = strings.TrimPrefix(shape, ":")
		}
		return NewWavetable(sampleRate, params)
	case strings.HasPrefix(spec, "soundfont:"):
		path := strings.TrimPrefix(spec, "soundfont:")
		if path == "" {
			return nil, fmt.Errorf("soundfont instrument needs a file path")
		}
		return NewSoundFontFile(path, sampleRate)
	default:
		return nil, fmt.Errorf("unknown instrument %q", spec)
	}
}

func midiToFreq(note int) float64 {
	return 440.0 * math.Pow(2, float64(note-69)/12.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
