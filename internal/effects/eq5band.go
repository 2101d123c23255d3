package effects

import "math"

// EQ5Band is a five-band EQ with fixed crossovers at 200 Hz, 800 Hz,
// 2.5 kHz and 8 kHz, available to track effect chains as type "eq5".
type EQ5Band struct {
	gains  [5]float32
	alphas [4]float32
	lpL    [4]float32
	lpR    [4]float32
}

var eq5Crossovers = [4]float64{200, 800, 2500, 8000}

// NewEQ5Band creates the EQ with the given linear band gains, low band
// first.
func NewEQ5Band(sampleRate int, gains [5]float64) *EQ5Band {
	eq := &EQ5Band{}
	dt := 1.0 / float64(sampleRate)
	for i, freq := range eq5Crossovers {
		rc := 1.0 / (2.0 * math.Pi * freq)
		eq.alphas[i] = float32(dt / (rc + dt))
	}
	for i, g := range gains {
		eq.gains[i] = float32(g)
	}
	return eq
}

func (eq *EQ5Band) Process(l, r float32) (float32, float32) {
	// Split into 5 bands with 4 cascaded crossover filters: band 0 sits
	// below the first crossover, band 4 above the last.
	var bandL, bandR [5]float32
	remL, remR := l, r
	for i := 0; i < 4; i++ {
		eq.lpL[i] += eq.alphas[i] * (remL - eq.lpL[i])
		eq.lpR[i] += eq.alphas[i] * (remR - eq.lpR[i])
		bandL[i] = eq.lpL[i]
		bandR[i] = eq.lpR[i]
		remL -= bandL[i]
		remR -= bandR[i]
	}
	bandL[4] = remL
	bandR[4] = remR

	var outL, outR float32
	for i := 0; i < 5; i++ {
		outL += bandL[i] * eq.gains[i]
		outR += bandR[i] * eq.gains[i]
	}
	return outL, outR
}

func (eq *EQ5Band) Reset() {
	for i := range eq.lpL {
		eq.lpL[i] = 0
		eq.lpR[i] = 0
	}
}
