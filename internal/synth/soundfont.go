package synth

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sinshu/go-meltysynth/meltysynth"
)

const sfBlockFrames = 64

// SoundFont wraps a meltysynth synthesizer as an Instrument. Rendering
// happens in small internal blocks; RenderFrame hands out one frame at
// a time from the current block.
type SoundFont struct {
	synth      *meltysynth.Synthesizer
	sampleRate int

	held   map[int]int32 // voice id -> key
	nextID int

	left, right []float32
	cursor      int
	lastPeak    float64
}

// NewSoundFont loads an .sf2 from r and builds the synthesizer.
func NewSoundFont(r io.Reader, sampleRate int) (*SoundFont, error) {
	sf, err := meltysynth.NewSoundFont(r)
	if err != nil {
		return nil, fmt.Errorf("load soundfont: %w", err)
	}
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	s, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}
	return &SoundFont{
		synth:      s,
		sampleRate: sampleRate,
		held:       make(map[int]int32),
		left:       make([]float32, sfBlockFrames),
		right:      make([]float32, sfBlockFrames),
		cursor:     sfBlockFrames,
	}, nil
}

// NewSoundFontFile loads an .sf2 from disk.
func NewSoundFontFile(path string, sampleRate int) (*SoundFont, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open soundfont: %w", err)
	}
	defer f.Close()
	return NewSoundFont(f, sampleRate)
}

func (s *SoundFont) NoteOn(pitch int, velocity float64) int {
	id := s.nextID
	s.nextID++
	vel := int32(math.Round(clamp(velocity, 0, 1) * 127))
	if vel < 1 {
		vel = 1
	}
	s.synth.NoteOn(0, int32(pitch), vel)
	s.held[id] = int32(pitch)
	return id
}

func (s *SoundFont) NoteOff(id int) {
	key, ok := s.held[id]
	if !ok {
		return
	}
	delete(s.held, id)
	s.synth.NoteOff(0, key)
}

func (s *SoundFont) RenderFrame() (float32, float32) {
	if s.cursor >= len(s.left) {
		s.synth.Render(s.left, s.right)
		s.cursor = 0
		peak := 0.0
		for i := range s.left {
			if v := math.Abs(float64(s.left[i])); v > peak {
				peak = v
			}
			if v := math.Abs(float64(s.right[i])); v > peak {
				peak = v
			}
		}
		s.lastPeak = peak
	}
	l, r := s.left[s.cursor], s.right[s.cursor]
	s.cursor++
	return l, r
}

// ActiveVoiceCount reports held notes, or 1 while a release tail is
// still audible. The underlying synthesizer does not expose its voice
// pool, so the tail is detected from the rendered signal.
func (s *SoundFont) ActiveVoiceCount() int {
	if len(s.held) > 0 {
		return len(s.held)
	}
	if s.lastPeak > 1e-4 {
		return 1
	}
	return 0
}
