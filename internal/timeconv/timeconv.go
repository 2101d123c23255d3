// Package timeconv converts among the engine's time domains: MIDI ticks,
// musical beats, wall seconds and timeline pixels. All functions are
// pure and parameterized by (tempo, ppq); nothing here validates those
// parameters. Callers obtain positive tempo/PPQ values from the
// project-level resolution chain, so zero inputs are a contract
// violation, not a handled case.
package timeconv

import "math"

// TicksToSeconds converts MIDI ticks to seconds at the given tempo and
// resolution: seconds = ticks * (60/tempo) / ppq.
func TicksToSeconds(ticks float64, tempo float64, ppq int) float64 {
	return ticks * (60.0 / tempo) / float64(ppq)
}

// SecondsToTicks is the exact inverse of TicksToSeconds. The result is
// not rounded.
func SecondsToTicks(sec float64, tempo float64, ppq int) float64 {
	return sec * (tempo / 60.0) * float64(ppq)
}

// TicksToBeats converts ticks to beats at the given resolution.
func TicksToBeats(ticks float64, ppq int) float64 {
	return ticks / float64(ppq)
}

// BeatsToTicks converts beats to ticks, rounding to the nearest whole
// tick. This is the only conversion that rounds.
func BeatsToTicks(beats float64, ppq int) float64 {
	return math.Round(beats * float64(ppq))
}

// BeatsToSeconds converts beats to seconds at the given tempo.
func BeatsToSeconds(beats float64, tempo float64) float64 {
	return beats * (60.0 / tempo)
}

// SecondsToBeats converts seconds to beats at the given tempo.
func SecondsToBeats(sec float64, tempo float64) float64 {
	return sec * (tempo / 60.0)
}

// SecondsToPixels converts seconds to timeline pixels at the given
// zoom, expressed as pixels per second.
func SecondsToPixels(sec float64, pixelsPerSecond float64) float64 {
	return sec * pixelsPerSecond
}

// PixelsToSeconds converts timeline pixels back to seconds.
func PixelsToSeconds(px float64, pixelsPerSecond float64) float64 {
	return px / pixelsPerSecond
}

// SnapToGrid rounds t to the nearest multiple of grid. A zero grid
// disables snapping.
func SnapToGrid(t float64, grid float64) float64 {
	if grid == 0 {
		return t
	}
	return math.Round(t/grid) * grid
}
