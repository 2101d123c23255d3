package effects

import (
	"fmt"

	"github.com/openmix/trackmix-go/internal/project"
)

func param(p map[string]float64, key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Build constructs the Effector described by one spec. Missing parameters
// fall back to sensible defaults.
func Build(spec project.EffectSpec, sampleRate int) (Effector, error) {
	p := spec.Params
	switch spec.Type {
	case "eq":
		return NewEQ3Band(sampleRate,
			param(p, "lowGain", 1), param(p, "midGain", 1), param(p, "highGain", 1),
			param(p, "lowFreq", 250), param(p, "highFreq", 4000)), nil
	case "eq5":
		return NewEQ5Band(sampleRate, [5]float64{
			param(p, "band0", 1), param(p, "band1", 1), param(p, "band2", 1),
			param(p, "band3", 1), param(p, "band4", 1),
		}), nil
	case "compressor":
		return NewCompressor(sampleRate,
			param(p, "threshold", -20), param(p, "ratio", 4),
			param(p, "attack", 0.005), param(p, "release", 0.1),
			param(p, "makeup", 0)), nil
	case "limiter":
		return NewLimiter(sampleRate,
			param(p, "threshold", -1), param(p, "knee", 3), param(p, "ratio", 4)), nil
	case "delay":
		return NewDelay(sampleRate,
			param(p, "time", 0.3), param(p, "feedback", 0.35),
			param(p, "cross", 0.2), param(p, "mix", 0.25)), nil
	case "chorus":
		return NewChorus(sampleRate,
			param(p, "delay", 0.02), param(p, "depth", 0.004),
			param(p, "rate", 0.8), param(p, "feedback", 0.2),
			param(p, "mix", 0.3)), nil
	case "reverb":
		return NewReverb(sampleRate,
			param(p, "roomSize", 0.5), param(p, "decay", 0.6),
			param(p, "mix", 0.25)), nil
	case "distortion":
		return NewDistortion(sampleRate,
			param(p, "drive", 3), param(p, "level", 0.7),
			param(p, "tone", 5000)), nil
	case "tremolo":
		return NewTremolo(sampleRate,
			param(p, "rate", 5), param(p, "depth", 0.5),
			int(param(p, "waveform", lfoTriangle))), nil
	case "gain":
		return NewStereoGain(param(p, "gain", 1), param(p, "pan", 0)), nil
	default:
		return nil, fmt.Errorf("unknown effect type %q", spec.Type)
	}
}

// BuildChain constructs a chain from the enabled subset of specs.
func BuildChain(specs []project.EffectSpec, sampleRate int) (*Chain, error) {
	chain := NewChain()
	for _, spec := range specs {
		if !spec.Enabled {
			continue
		}
		e, err := Build(spec, sampleRate)
		if err != nil {
			return nil, err
		}
		chain.Add(e)
	}
	return chain, nil
}

// Apply runs the enabled subset of specs over buf[startFrame:endFrame]
// (stereo interleaved, modified in place) and returns the buffer.
func Apply(buf []float32, startFrame, endFrame int, specs []project.EffectSpec, sampleRate int) ([]float32, error) {
	chain, err := BuildChain(specs, sampleRate)
	if err != nil {
		return nil, err
	}
	if chain.Len() == 0 {
		return buf, nil
	}
	total := len(buf) / 2
	if startFrame < 0 {
		startFrame = 0
	}
	if endFrame > total {
		endFrame = total
	}
	if startFrame >= endFrame {
		return buf, nil
	}
	chain.ProcessBuffer(buf[startFrame*2 : endFrame*2])
	return buf, nil
}
