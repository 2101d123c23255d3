package mixdown

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/openmix/trackmix-go/internal/cleanup"
	"github.com/openmix/trackmix-go/internal/decode"
	"github.com/openmix/trackmix-go/internal/logging"
	"github.com/openmix/trackmix-go/internal/project"
)

// testDecoder serves synthetic fixtures: tone.wav is 2.0s of constant
// 0.5, short.wav is 0.5s of constant 0.25, anything else fails.
func testDecoder(tb testing.TB, rate int) *decode.Decoder {
	tb.Helper()
	cfg := decode.DefaultConfig(rate)
	cfg.UseWorker = false
	cfg.Logger = logging.Discard()
	cfg.DecodeFunc = func(src string, targetRate int) ([]float32, error) {
		switch src {
		case "tone.wav":
			buf := make([]float32, 2*targetRate*2)
			for i := range buf {
				buf[i] = 0.5
			}
			return buf, nil
		case "short.wav":
			buf := make([]float32, targetRate)
			for i := range buf {
				buf[i] = 0.25
			}
			return buf, nil
		default:
			return nil, fmt.Errorf("no fixture for %q", src)
		}
	}
	d := decode.New(cfg)
	tb.Cleanup(d.Close)
	return d
}

func renderOpts(tb testing.TB, rate int) Options {
	opts := DefaultOptions()
	opts.SampleRate = rate
	opts.Logger = logging.Discard()
	opts.Decoder = testDecoder(tb, rate)
	return opts
}

func audioTrack(id, src string, dur float64) project.Track {
	return project.Track{
		ID:     id,
		Type:   project.TrackAudio,
		Volume: 1,
		Clips: []project.Clip{
			{ID: id + "-c", Src: src, Start: 0, Offset: 0, Duration: dur},
		},
	}
}

func midiTrack(id string, notes ...project.Note) project.Track {
	return project.Track{
		ID:     id,
		Type:   project.TrackMIDI,
		Volume: 1,
		MIDI:   &project.MIDIData{Notes: notes},
	}
}

func TestRenderFrameCountIsCeilingOfLongestTrack(t *testing.T) {
	proj := &project.Project{
		BPM: 120,
		Tracks: []project.Track{
			audioTrack("a1", "tone.wav", 2.0),
			midiTrack("m1", project.Note{Pitch: 60, Start: 0, Duration: 1, Velocity: 0.8}),
		},
	}
	res, err := Render(context.Background(), proj, renderOpts(t, 44100))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := int(math.Ceil(2.0 * 44100))
	if res.Frames != want {
		t.Fatalf("frames = %d, want %d", res.Frames, want)
	}
	if len(res.Buffer) != want*2 {
		t.Fatalf("buffer length = %d, want %d", len(res.Buffer), want*2)
	}
	if res.Duration != 2.0 {
		t.Fatalf("duration = %v, want 2.0", res.Duration)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	proj := &project.Project{
		BPM: 120,
		Tracks: []project.Track{
			audioTrack("a1", "tone.wav", 2.0),
			audioTrack("a2", "short.wav", 0.5),
			midiTrack("m1", project.Note{Pitch: 64, Start: 0, Duration: 2, Velocity: 0.8}),
		},
	}
	first, err := Render(context.Background(), proj, renderOpts(t, 8000))
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, err := Render(context.Background(), proj, renderOpts(t, 8000))
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if !slices.Equal(first.Buffer, second.Buffer) {
		t.Fatalf("renders of the same project differ")
	}
}

func TestRenderSoloSilencesOthers(t *testing.T) {
	soloed := audioTrack("a1", "tone.wav", 2.0)
	soloed.Soloed = true
	muted := audioTrack("a2", "short.wav", 0.5)
	muted.Muted = true
	full := &project.Project{
		BPM: 120,
		Tracks: []project.Track{
			soloed,
			muted,
			audioTrack("a3", "short.wav", 0.5),
		},
	}
	got, err := Render(context.Background(), full, renderOpts(t, 8000))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	alone := &project.Project{BPM: 120, Tracks: []project.Track{soloed}}
	want, err := Render(context.Background(), alone, renderOpts(t, 8000))
	if err != nil {
		t.Fatalf("reference render: %v", err)
	}
	if !slices.Equal(got.Buffer, want.Buffer) {
		t.Fatalf("soloed mix differs from the soloed track rendered alone")
	}
}

func TestRenderNoAudibleTracks(t *testing.T) {
	a := audioTrack("a1", "tone.wav", 2.0)
	a.Muted = true
	b := midiTrack("m1", project.Note{Pitch: 60, Start: 0, Duration: 1})
	b.Muted = true
	proj := &project.Project{Tracks: []project.Track{a, b}}
	if _, err := Render(context.Background(), proj, renderOpts(t, 8000)); !errors.Is(err, ErrNoAudibleTracks) {
		t.Fatalf("err = %v, want ErrNoAudibleTracks", err)
	}
	empty := &project.Project{Tracks: []project.Track{{ID: "bare", Volume: 1}}}
	if _, err := Render(context.Background(), empty, renderOpts(t, 8000)); !errors.Is(err, ErrNoAudibleTracks) {
		t.Fatalf("contentless err = %v, want ErrNoAudibleTracks", err)
	}
}

func TestRenderZeroDuration(t *testing.T) {
	tr := project.Track{
		ID:     "a1",
		Volume: 1,
		Clips: []project.Clip{
			{ID: "c", Src: "tone.wav", Start: 0, Offset: 5.0, Duration: 1.0},
		},
	}
	proj := &project.Project{Tracks: []project.Track{tr}}
	if _, err := Render(context.Background(), proj, renderOpts(t, 8000)); !errors.Is(err, ErrZeroDuration) {
		t.Fatalf("err = %v, want ErrZeroDuration", err)
	}
}

func TestRenderEffectsFailureDegradesToUnprocessed(t *testing.T) {
	broken := audioTrack("a1", "tone.wav", 2.0)
	broken.Effects = []project.EffectSpec{{Type: "warble", Enabled: true}}
	got, err := Render(context.Background(), &project.Project{Tracks: []project.Track{broken}}, renderOpts(t, 8000))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	clean := audioTrack("a1", "tone.wav", 2.0)
	want, err := Render(context.Background(), &project.Project{Tracks: []project.Track{clean}}, renderOpts(t, 8000))
	if err != nil {
		t.Fatalf("reference render: %v", err)
	}
	if !slices.Equal(got.Buffer, want.Buffer) {
		t.Fatalf("failed effects chain changed the audio instead of degrading")
	}
}

func TestRenderSkipsUndecodableSources(t *testing.T) {
	proj := &project.Project{
		Tracks: []project.Track{
			audioTrack("a1", "tone.wav", 2.0),
			audioTrack("a2", "missing.wav", 1.0),
		},
	}
	res, err := Render(context.Background(), proj, renderOpts(t, 8000))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Duration != 2.0 {
		t.Fatalf("duration = %v, want 2.0 from the decodable track", res.Duration)
	}
}

func TestRenderMIDIOnly(t *testing.T) {
	proj := &project.Project{
		BPM:    120,
		Tracks: []project.Track{midiTrack("m1", project.Note{Pitch: 60, Start: 0, Duration: 1, Velocity: 0.8})},
	}
	res, err := Render(context.Background(), proj, renderOpts(t, 8000))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Duration < 0.5 || res.Duration > 2.5 {
		t.Fatalf("duration = %v, want note body plus a bounded release tail", res.Duration)
	}
	var peak float32
	for i := 0; i < 4000*2 && i < len(res.Buffer); i++ {
		if v := res.Buffer[i]; v > peak {
			peak = v
		} else if -v > peak {
			peak = -v
		}
	}
	if peak < 0.01 {
		t.Fatalf("peak = %v, want audible synthesized output", peak)
	}
}

func TestRenderHonorsTrackPan(t *testing.T) {
	tr := audioTrack("a1", "tone.wav", 1.0)
	tr.Pan = -1
	res, err := Render(context.Background(), &project.Project{Tracks: []project.Track{tr}}, renderOpts(t, 8000))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	mid := res.Frames / 2
	if res.Buffer[2*mid] == 0 {
		t.Fatalf("left channel silent with pan -1")
	}
	if res.Buffer[2*mid+1] != 0 {
		t.Fatalf("right channel = %v with pan -1, want 0", res.Buffer[2*mid+1])
	}
}

func TestRenderRegistersLocalDecoderForCleanup(t *testing.T) {
	proj := &project.Project{
		BPM:    120,
		Tracks: []project.Track{midiTrack("m1", project.Note{Pitch: 60, Start: 0, Duration: 0.1, Velocity: 0.8})},
	}
	opts := DefaultOptions()
	opts.SampleRate = 8000
	opts.Logger = logging.Discard()

	before := cleanup.Default().Len()
	during := -1
	opts.Progress = func(stage string, fraction float64) {
		if stage == "collect" && during < 0 {
			during = cleanup.Default().Len()
		}
	}
	if _, err := Render(context.Background(), proj, opts); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if during != before+1 {
		t.Fatalf("registry held %d handles mid-render, want %d", during, before+1)
	}
	if got := cleanup.Default().Len(); got != before {
		t.Fatalf("registry holds %d handles after render, want %d", got, before)
	}
}

func TestRenderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	proj := &project.Project{Tracks: []project.Track{audioTrack("a1", "tone.wav", 2.0)}}
	if _, err := Render(ctx, proj, renderOpts(t, 8000)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
