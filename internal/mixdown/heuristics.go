package mixdown

import "math"

// Bus heuristics are pure functions of the included track count, the
// MIDI-track ratio, and the declared pans. Same project in, same plan
// out.
const (
	inputGainTaper = 0.5
	inputGainFloor = 0.4

	panClusterMin    = 3   // redistribute only when MORE than this many cluster
	panClusterWindow = 0.1 // |pan| at or under this counts as center
	panSpreadWidth   = 0.6

	eqTrackThreshold = 6
	eqMIDIThreshold  = 0.5
	lowShelfCut      = 0.85 // linear, about -1.4 dB
	highShelfLift    = 1.12 // linear, about +1 dB

	headroomBaseDB      = -3.0
	headroomPerDoubleDB = -0.75
	headroomMIDIRelief  = 0.5
	headroomFloorDB     = -9.0
)

// busPlan is the resolved mixdown bus configuration.
type busPlan struct {
	InputGain  float64
	Pans       []float64
	LowShelf   float64
	MidShelf   float64
	HighShelf  float64
	HeadroomDB float64
	MasterGain float64
}

func planBus(trackCount int, midiCount int, pans []float64) busPlan {
	ratio := 0.0
	if trackCount > 0 {
		ratio = float64(midiCount) / float64(trackCount)
	}
	low, mid, high := compensationShelves(trackCount, ratio)
	headroom := headroomDB(trackCount, ratio)
	return busPlan{
		InputGain:  adaptiveInputGain(trackCount),
		Pans:       redistributePans(pans),
		LowShelf:   low,
		MidShelf:   mid,
		HighShelf:  high,
		HeadroomDB: headroom,
		MasterGain: math.Pow(10, headroom/20),
	}
}

// adaptiveInputGain tapers per-track input gain logarithmically with
// the track count so dense projects do not slam the bus, floored so
// quiet sources stay audible.
func adaptiveInputGain(trackCount int) float64 {
	if trackCount <= 1 {
		return 1
	}
	g := 1.0 / (1.0 + inputGainTaper*math.Log2(float64(trackCount)))
	return math.Max(g, inputGainFloor)
}

// redistributePans spreads center-clustered tracks across the stereo
// field. It engages only when more than panClusterMin tracks sit
// within panClusterWindow of center; tracks panned deliberately keep
// their position. Input order decides each clustered track's slot, so
// the result is stable.
func redistributePans(pans []float64) []float64 {
	out := append([]float64(nil), pans...)
	var clustered []int
	for i, p := range pans {
		if math.Abs(p) <= panClusterWindow {
			clustered = append(clustered, i)
		}
	}
	if len(clustered) <= panClusterMin {
		return out
	}
	n := len(clustered)
	for slot, idx := range clustered {
		out[idx] = -panSpreadWidth + 2*panSpreadWidth*float64(slot)/float64(n-1)
	}
	return out
}

// compensationShelves returns linear gains for the master three-band
// EQ. Dense projects get a low shelf cut against mud; MIDI-heavy
// projects get a high shelf lift against dull synthesis.
func compensationShelves(trackCount int, midiRatio float64) (low, mid, high float64) {
	low, mid, high = 1, 1, 1
	if trackCount >= eqTrackThreshold {
		low = lowShelfCut
	}
	if midiRatio >= eqMIDIThreshold {
		high = highShelfLift
	}
	return low, mid, high
}

// headroomDB deepens the headroom target by a fixed step per doubling
// of the track count, eased when the project is mostly synthesized
// MIDI, whose peaks are tamer than recorded audio.
func headroomDB(trackCount int, midiRatio float64) float64 {
	if trackCount < 1 {
		trackCount = 1
	}
	h := headroomBaseDB + headroomPerDoubleDB*math.Log2(float64(trackCount))
	if midiRatio >= eqMIDIThreshold {
		h += headroomMIDIRelief
	}
	return math.Max(h, headroomFloorDB)
}
