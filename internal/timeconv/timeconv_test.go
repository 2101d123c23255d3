package timeconv

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestTicksToSeconds(t *testing.T) {
	// One quarter note at 120 BPM is half a second.
	if got := TicksToSeconds(480, 120, 480); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("expected 0.5s, got %v", got)
	}
	if got := TicksToSeconds(960, 120, 480); math.Abs(got-1.0) > 1e-12 {
		t.Fatalf("expected 1.0s, got %v", got)
	}
	// Double the tempo, half the time.
	if got := TicksToSeconds(480, 240, 480); math.Abs(got-0.25) > 1e-12 {
		t.Fatalf("expected 0.25s, got %v", got)
	}
}

func TestSecondsTicksInverse(t *testing.T) {
	sec := 1.237
	ticks := SecondsToTicks(sec, 97, 960)
	if got := TicksToSeconds(ticks, 97, 960); math.Abs(got-sec) > 1e-12 {
		t.Fatalf("round trip drifted: %v != %v", got, sec)
	}
}

func TestBeatsToTicksRounds(t *testing.T) {
	if got := BeatsToTicks(1.0/3.0, 480); got != 160 {
		t.Fatalf("expected 160 ticks, got %v", got)
	}
	if got := BeatsToTicks(0.5001, 480); got != 240 {
		t.Fatalf("expected 240 ticks, got %v", got)
	}
}

func TestBeatsSeconds(t *testing.T) {
	if got := BeatsToSeconds(2, 120); math.Abs(got-1.0) > 1e-12 {
		t.Fatalf("expected 1s for 2 beats at 120, got %v", got)
	}
	if got := SecondsToBeats(1.0, 120); math.Abs(got-2.0) > 1e-12 {
		t.Fatalf("expected 2 beats for 1s at 120, got %v", got)
	}
}

func TestPixels(t *testing.T) {
	if got := SecondsToPixels(2.5, 100); got != 250 {
		t.Fatalf("expected 250px, got %v", got)
	}
	if got := PixelsToSeconds(250, 100); got != 2.5 {
		t.Fatalf("expected 2.5s, got %v", got)
	}
}

func TestSnapToGrid(t *testing.T) {
	if got := SnapToGrid(1.26, 0.25); math.Abs(got-1.25) > 1e-12 {
		t.Fatalf("expected 1.25, got %v", got)
	}
	if got := SnapToGrid(1.38, 0.25); math.Abs(got-1.5) > 1e-12 {
		t.Fatalf("expected 1.5, got %v", got)
	}
	if got := SnapToGrid(1.26, 0); got != 1.26 {
		t.Fatalf("zero grid must be a no-op, got %v", got)
	}
}

func TestTickBeatRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("ticksToBeats(beatsToTicks(b)) stays within rounding tolerance", prop.ForAll(
		func(beats float64, ppq int) bool {
			got := TicksToBeats(BeatsToTicks(beats, ppq), ppq)
			// Rounding to the nearest tick moves the value at most half
			// a tick, i.e. 0.5/ppq beats.
			tol := 0.5/float64(ppq) + 1e-9
			return math.Abs(got-beats) <= tol
		},
		gen.Float64Range(0, 1e6),
		gen.IntRange(1, 4096),
	))

	properties.Property("seconds/ticks conversions are exact inverses", prop.ForAll(
		func(sec float64, tempo float64, ppq int) bool {
			got := TicksToSeconds(SecondsToTicks(sec, tempo, ppq), tempo, ppq)
			return math.Abs(got-sec) <= 1e-6*math.Max(1, sec)
		},
		gen.Float64Range(0, 1e4),
		gen.Float64Range(20, 400),
		gen.IntRange(1, 4096),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
