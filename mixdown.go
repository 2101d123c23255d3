package trackmix

import (
	"context"
	"log/slog"

	"github.com/openmix/trackmix-go/internal/mixdown"
)

// Mixdown precondition failures. Anything else that goes wrong inside
// a track degrades or skips locally and the render still completes.
var (
	ErrNoAudibleTracks = mixdown.ErrNoAudibleTracks
	ErrZeroDuration    = mixdown.ErrZeroDuration
)

// MixdownOptions configures an offline render. Zero values defer to
// the project's own settings, then to defaults.
type MixdownOptions struct {
	SampleRate  int
	BPM         float64
	Parallelism int
	DitherSeed  int64
	Logger      *slog.Logger
	Progress    func(stage string, fraction float64)
}

// DefaultMixdownOptions returns the standalone defaults.
func DefaultMixdownOptions() MixdownOptions {
	return MixdownOptions{SampleRate: 44100, Parallelism: 4, DitherSeed: 1}
}

// MixdownResult is a finished offline render.
type MixdownResult struct {
	Buffer     []float32 // stereo interleaved
	SampleRate int
	Frames     int
	Duration   float64
}

// Mixdown renders the project offline through the fixed pipeline:
// audibility, shared decode, MIDI collection and synthesis, per-track
// inserts, heuristic bus, master chain. The result is deterministic
// for identical inputs.
func Mixdown(ctx context.Context, proj *Project, opts MixdownOptions) (*MixdownResult, error) {
	res, err := mixdown.Render(ctx, proj, mixdown.Options{
		SampleRate:  opts.SampleRate,
		BPM:         opts.BPM,
		Parallelism: opts.Parallelism,
		Logger:      opts.Logger,
		Progress:    mixdown.ProgressFunc(opts.Progress),
	})
	if err != nil {
		return nil, err
	}
	return &MixdownResult{
		Buffer:     res.Buffer,
		SampleRate: res.SampleRate,
		Frames:     res.Frames,
		Duration:   res.Duration,
	}, nil
}

// MixdownWAV renders the project and encodes the result as a dithered
// 16-bit stereo WAV file.
func MixdownWAV(ctx context.Context, proj *Project, opts MixdownOptions) ([]byte, error) {
	res, err := Mixdown(ctx, proj, opts)
	if err != nil {
		return nil, err
	}
	return EncodeWAV16LE(res.Buffer, res.SampleRate, 2, opts.DitherSeed), nil
}
