package effects

import "math"

// EQ3Band is a three-band shelving EQ. The master bus uses it for the
// compensation shelves; track chains can request it as type "eq".
type EQ3Band struct {
	lowGain  float32
	midGain  float32
	highGain float32
	lpAlpha  float32
	hpAlpha  float32
	lpL, lpR float32
	hpL, hpR float32
}

// NewEQ3Band creates the EQ. Gains are linear (1 = unity); lowFreq and
// highFreq are the band crossover points in Hz.
func NewEQ3Band(sampleRate int, lowGain, midGain, highGain, lowFreq, highFreq float64) *EQ3Band {
	lpRC := 1.0 / (2.0 * math.Pi * lowFreq)
	hpRC := 1.0 / (2.0 * math.Pi * highFreq)
	dt := 1.0 / float64(sampleRate)
	return &EQ3Band{
		lowGain:  float32(lowGain),
		midGain:  float32(midGain),
		highGain: float32(highGain),
		lpAlpha:  float32(dt / (lpRC + dt)),
		hpAlpha:  float32(dt / (hpRC + dt)),
	}
}

func (eq *EQ3Band) Process(l, r float32) (float32, float32) {
	// Low band (LP filter)
	eq.lpL += eq.lpAlpha * (l - eq.lpL)
	eq.lpR += eq.lpAlpha * (r - eq.lpR)
	lowL, lowR := eq.lpL, eq.lpR

	// High band (HP filter)
	eq.hpL += eq.hpAlpha * (l - eq.hpL)
	eq.hpR += eq.hpAlpha * (r - eq.hpR)
	highL := l - eq.hpL
	highR := r - eq.hpR

	// Mid band (everything between)
	midL := l - lowL - highL
	midR := r - lowR - highR

	return lowL*eq.lowGain + midL*eq.midGain + highL*eq.highGain,
		lowR*eq.lowGain + midR*eq.midGain + highR*eq.highGain
}

func (eq *EQ3Band) Reset() {
	eq.lpL, eq.lpR = 0, 0
	eq.hpL, eq.hpR = 0, 0
}
