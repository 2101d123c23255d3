package effects

import (
	"math"
	"testing"

	"github.com/openmix/trackmix-go/internal/project"
)

func TestDelayProducesOutput(t *testing.T) {
	d := NewDelay(44100, 0.1, 0.5, 0, 0.5)
	d.Process(1.0, 1.0)
	for i := 0; i < 4409; i++ { // ~100ms at 44100Hz
		d.Process(0, 0)
	}
	l, r := d.Process(0, 0)
	if math.Abs(float64(l)) < 0.01 || math.Abs(float64(r)) < 0.01 {
		t.Errorf("expected delayed output, got l=%f r=%f", l, r)
	}
}

func TestReverbProducesTail(t *testing.T) {
	r := NewReverb(44100, 0.5, 0.7, 0.5)
	r.Process(1.0, 1.0)
	var maxOut float32
	for i := 0; i < 10000; i++ {
		l, _ := r.Process(0, 0)
		if l > maxOut {
			maxOut = l
		}
	}
	if maxOut < 0.001 {
		t.Error("expected reverb tail")
	}
}

func TestDistortionBounded(t *testing.T) {
	d := NewDistortion(44100, 10, 0.5, 0)
	l, r := d.Process(0.5, 0.5)
	if math.Abs(float64(l)) > 1.0 || math.Abs(float64(r)) > 1.0 {
		t.Error("distortion output should be bounded")
	}
	if math.Abs(float64(l)) < 0.01 {
		t.Error("expected non-zero distortion output")
	}
}

func TestEQ3BandUnityGain(t *testing.T) {
	eq := NewEQ3Band(44100, 1.0, 1.0, 1.0, 300, 3000)
	for i := 0; i < 1000; i++ {
		eq.Process(0.5, 0.5)
	}
	l, r := eq.Process(0.5, 0.5)
	if math.Abs(float64(l)-0.5) > 0.1 || math.Abs(float64(r)-0.5) > 0.1 {
		t.Errorf("expected ~0.5 with unity gains, got l=%f r=%f", l, r)
	}
}

func TestCompressorReducesLoud(t *testing.T) {
	c := NewCompressor(44100, -10, 4, 0.001, 0.05, 0)
	var out float32
	for i := 0; i < 1000; i++ {
		out, _ = c.Process(1.0, 1.0)
	}
	if out >= 1.0 {
		t.Errorf("compressor should reduce loud signals, got %f", out)
	}
}

func TestStereoGainPanLaw(t *testing.T) {
	center := NewStereoGain(1, 0)
	l, r := center.Process(1, 1)
	if math.Abs(float64(l-r)) > 1e-6 {
		t.Fatalf("center pan should be symmetric, got %v/%v", l, r)
	}
	if math.Abs(float64(l)-math.Sqrt2/2) > 1e-3 {
		t.Fatalf("center pan should sit 3dB down, got %v", l)
	}
	hardLeft := NewStereoGain(1, -1)
	l, r = hardLeft.Process(1, 1)
	if math.Abs(float64(l)-1) > 1e-6 || math.Abs(float64(r)) > 1e-6 {
		t.Fatalf("hard left should mute the right channel, got %v/%v", l, r)
	}
}

func TestLimiterTransparentBelowThreshold(t *testing.T) {
	lm := NewLimiter(44100, -1, 3, 4)
	var out float32
	for i := 0; i < 2000; i++ {
		out, _ = lm.Process(0.3, 0.3)
	}
	if math.Abs(float64(out)-0.3) > 0.01 {
		t.Fatalf("quiet material should pass untouched, got %v", out)
	}
	for i := 0; i < 2000; i++ {
		out, _ = lm.Process(1.2, 1.2)
	}
	if out >= 1.2 {
		t.Fatalf("overs should be reduced, got %v", out)
	}
}

func TestSoftClipBounded(t *testing.T) {
	sc := NewSoftClip(1)
	l, _ := sc.Process(3, 3)
	if l > 1.001 {
		t.Fatalf("soft clip should bound output near 1, got %v", l)
	}
	l, _ = sc.Process(0.1, 0.1)
	if math.Abs(float64(l)-0.1) > 0.02 {
		t.Fatalf("soft clip should be nearly transparent when quiet, got %v", l)
	}
}

func TestTremoloSweepsGain(t *testing.T) {
	// 5 Hz triangle at 1000 Hz sample rate: one cycle is 200 frames.
	tr := NewTremolo(1000, 5, 1, lfoTriangle)
	min, max := float32(2), float32(-2)
	for i := 0; i < 200; i++ {
		l, r := tr.Process(1, 1)
		if l != r {
			t.Fatalf("tremolo must modulate both channels equally, got %v/%v", l, r)
		}
		if l < min {
			min = l
		}
		if l > max {
			max = l
		}
	}
	if min > 0.05 || max < 0.95 {
		t.Fatalf("full depth should sweep 0..1, got %v..%v", min, max)
	}
}

func TestTremoloZeroDepthTransparent(t *testing.T) {
	tr := NewTremolo(44100, 5, 0, lfoSquare)
	for i := 0; i < 100; i++ {
		l, r := tr.Process(0.5, -0.5)
		if l != 0.5 || r != -0.5 {
			t.Fatalf("zero depth must pass audio untouched, got %v/%v", l, r)
		}
	}
}

func TestTremoloDeterministicRandomWave(t *testing.T) {
	render := func() []float32 {
		tr := NewTremolo(1000, 50, 1, lfoRandom)
		out := make([]float32, 0, 400)
		for i := 0; i < 400; i++ {
			l, _ := tr.Process(1, 1)
			out = append(out, l)
		}
		return out
	}
	a, b := render(), render()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("random wave diverged at frame %d", i)
		}
	}
}

func TestBuildChainSkipsDisabled(t *testing.T) {
	specs := []project.EffectSpec{
		{Type: "reverb", Enabled: true},
		{Type: "delay", Enabled: false},
	}
	chain, err := BuildChain(specs, 44100)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if chain.Len() != 1 {
		t.Fatalf("disabled effects must be skipped, got %d", chain.Len())
	}
}

func TestBuildUnknownType(t *testing.T) {
	if _, err := Build(project.EffectSpec{Type: "flux", Enabled: true}, 44100); err == nil {
		t.Fatalf("unknown effect type should error")
	}
}

func TestApplyRespectsRange(t *testing.T) {
	buf := make([]float32, 100*2)
	for i := range buf {
		buf[i] = 0.5
	}
	specs := []project.EffectSpec{{Type: "gain", Enabled: true, Params: map[string]float64{"gain": 0}}}
	out, err := Apply(buf, 25, 75, specs, 44100)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if out[24*2] != 0.5 || out[75*2] != 0.5 {
		t.Fatalf("samples outside the range must be untouched")
	}
	if out[25*2] != 0 || out[74*2+1] != 0 {
		t.Fatalf("samples inside the range must be processed")
	}
}
