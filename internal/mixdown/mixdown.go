// Package mixdown renders a multitrack project offline into a stereo
// float buffer. The pipeline is fixed: audibility rules pick the
// tracks, distinct clip sources decode once, MIDI content is collected
// and synthesized per track, per-track insert chains run (and degrade
// to the unprocessed buffer on failure), then a deterministic heuristic
// plan drives the summing bus: per-track gain and pan, master gain,
// compensation EQ, limiter, soft clip. Same project and options in,
// bit-identical buffer out.
package mixdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/openmix/trackmix-go/internal/cleanup"
	"github.com/openmix/trackmix-go/internal/decode"
	"github.com/openmix/trackmix-go/internal/effects"
	"github.com/openmix/trackmix-go/internal/project"
)

var (
	// ErrNoAudibleTracks means every track was muted, empty, or shut
	// out by another track's solo. Nothing can be rendered.
	ErrNoAudibleTracks = errors.New("no audible tracks")

	// ErrZeroDuration means the audible tracks hold no material that
	// occupies time: all clips clamp to nothing and no MIDI survives
	// collection.
	ErrZeroDuration = errors.New("render duration is zero")
)

// ProgressFunc reports a pipeline stage and its completion fraction.
type ProgressFunc func(stage string, fraction float64)

// Options configures a render. Zero values fall back to the project's
// own settings, then to defaults.
type Options struct {
	SampleRate  int
	BPM         float64
	Parallelism int
	Decoder     *decode.Decoder
	Logger      *slog.Logger
	Progress    ProgressFunc
}

// DefaultOptions returns the standalone defaults.
func DefaultOptions() Options {
	return Options{
		SampleRate:  44100,
		BPM:         project.DefaultTempo,
		Parallelism: 4,
	}
}

// Result is a finished render.
type Result struct {
	Buffer     []float32 // stereo interleaved
	SampleRate int
	Frames     int
	Duration   float64
}

// Render runs the full mixdown pipeline over the project.
func Render(ctx context.Context, proj *project.Project, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = proj.SampleRate
	}
	if rate <= 0 {
		rate = 44100
	}
	bpm := opts.BPM
	if bpm <= 0 {
		bpm = proj.BPM
	}
	if bpm <= 0 {
		bpm = project.DefaultTempo
	}
	par := opts.Parallelism
	if par <= 0 {
		par = 4
	}
	report := func(stage string, fraction float64) {
		if opts.Progress != nil {
			opts.Progress(stage, fraction)
		}
	}

	included := audibleTracks(proj.Tracks)
	if len(included) == 0 {
		return nil, fmt.Errorf("%w: every track is muted, empty, or excluded by solo", ErrNoAudibleTracks)
	}

	dec := opts.Decoder
	if dec == nil {
		cfg := decode.DefaultConfig(rate)
		cfg.Logger = logger
		local := decode.New(cfg)
		dec = local
		// The registry owns the teardown: Release runs it on the happy
		// path, the staleness sweep reclaims it if this render leaks.
		handle := cleanup.Default().Register("mixdown:decoder", local.Close)
		defer handle.Release()
	}

	buffers, err := decodeSources(ctx, dec, included, par, logger, report)
	if err != nil {
		return nil, err
	}

	notes := make([][]project.Note, len(included))
	for i := range included {
		notes[i] = CollectNotes(&included[i], bpm, logger)
	}
	report("collect", 1)

	synthBufs := make([][]float32, len(included))
	sg, sctx := errgroup.WithContext(ctx)
	sg.SetLimit(par)
	for i := range included {
		if len(notes[i]) == 0 {
			continue
		}
		sg.Go(func() error {
			if err := sctx.Err(); err != nil {
				return err
			}
			buf, err := synthesizeTrack(&included[i], notes[i], rate)
			if err != nil {
				logger.Warn("midi synthesis failed, track renders silent", "track", included[i].ID, "err", err)
				return nil
			}
			synthBufs[i] = buf
			return nil
		})
	}
	if err := sg.Wait(); err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	report("synthesize", 1)

	dur := renderDuration(included, buffers, synthBufs, rate)
	if dur <= 0 {
		return nil, fmt.Errorf("%w: no clip or note occupies the timeline", ErrZeroDuration)
	}
	frames := int(math.Ceil(dur * float64(rate)))

	trackBufs := make([][]float32, len(included))
	tg, tctx := errgroup.WithContext(ctx)
	tg.SetLimit(par)
	for i := range included {
		tg.Go(func() error {
			if err := tctx.Err(); err != nil {
				return err
			}
			buf := assembleTrack(&included[i], buffers, synthBufs[i], frames, rate)
			if buf == nil {
				return nil
			}
			processed, err := effects.Apply(buf, 0, frames, included[i].Effects, rate)
			if err != nil {
				logger.Warn("track effects failed, using unprocessed audio", "track", included[i].ID, "err", err)
				processed = buf
			}
			trackBufs[i] = processed
			return nil
		})
	}
	if err := tg.Wait(); err != nil {
		return nil, fmt.Errorf("process tracks: %w", err)
	}
	report("tracks", 1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pans := make([]float64, len(included))
	midiCount := 0
	for i, t := range included {
		pans[i] = t.Pan
		if len(notes[i]) > 0 {
			midiCount++
		}
	}
	plan := planBus(len(included), midiCount, pans)

	mix := make([]float32, frames*2)
	for i, t := range included {
		tb := trackBufs[i]
		if tb == nil {
			continue
		}
		stage := effects.NewStereoGain(t.Volume*plan.InputGain, plan.Pans[i])
		for f := 0; f < frames; f++ {
			l, r := stage.Process(tb[2*f], tb[2*f+1])
			mix[2*f] += l
			mix[2*f+1] += r
		}
	}

	master := float32(plan.MasterGain)
	for i := range mix {
		mix[i] *= master
	}
	bus := effects.NewChain(
		effects.NewEQ3Band(rate, plan.LowShelf, plan.MidShelf, plan.HighShelf, 250, 4000),
		effects.NewLimiter(rate, -1, 3, 4),
		effects.NewSoftClip(1),
	)
	bus.ProcessBuffer(mix)
	report("master", 1)

	return &Result{
		Buffer:     mix,
		SampleRate: rate,
		Frames:     frames,
		Duration:   dur,
	}, nil
}

// audibleTracks applies the inclusion rules: a track renders when it
// has material, is not muted, and survives the solo rule (any solo
// anywhere silences every non-soloed track).
func audibleTracks(tracks []project.Track) []project.Track {
	soloed := false
	for _, t := range tracks {
		if t.Soloed {
			soloed = true
			break
		}
	}
	out := make([]project.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Muted {
			continue
		}
		if soloed && !t.Soloed {
			continue
		}
		if len(t.Clips) == 0 && !t.MIDI.HasContent() {
			continue
		}
		out = append(out, t)
	}
	return out
}

// decodeSources decodes every distinct clip source once. A source that
// fails stays out of the map and its clips are skipped; cancellation
// aborts the render.
func decodeSources(ctx context.Context, dec *decode.Decoder, tracks []project.Track, par int, logger *slog.Logger, report ProgressFunc) (map[string]*decode.Result, error) {
	seen := make(map[string]bool)
	var srcs []string
	for _, t := range tracks {
		for _, c := range t.Clips {
			if c.Src == "" || seen[c.Src] {
				continue
			}
			seen[c.Src] = true
			srcs = append(srcs, c.Src)
		}
	}
	out := make(map[string]*decode.Result, len(srcs))
	if len(srcs) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(par)
	var mu sync.Mutex
	done := 0
	for _, src := range srcs {
		g.Go(func() error {
			res, err := dec.Decode(gctx, src, nil)
			mu.Lock()
			defer mu.Unlock()
			done++
			report("decode", float64(done)/float64(len(srcs)))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("clip source failed to decode, skipping its clips", "src", src, "err", err)
				return nil
			}
			out[src] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return out, nil
}

// renderDuration is the rightmost edge of any material: clamped clip
// ends and synthesized buffer lengths, release tails included.
func renderDuration(tracks []project.Track, buffers map[string]*decode.Result, synthBufs [][]float32, rate int) float64 {
	dur := 0.0
	for i, t := range tracks {
		for _, c := range t.Clips {
			res, ok := buffers[c.Src]
			if !ok {
				continue
			}
			cl := c.ClampToBuffer(res.Duration)
			if cl.Duration <= 0 {
				continue
			}
			if end := cl.End(); end > dur {
				dur = end
			}
		}
		if sb := synthBufs[i]; len(sb) > 0 {
			if d := float64(len(sb)/2) / float64(rate); d > dur {
				dur = d
			}
		}
	}
	return dur
}

// assembleTrack lays the track's clamped clips and synthesized MIDI
// into one buffer of exactly frames stereo frames. Returns nil when
// nothing landed.
func assembleTrack(t *project.Track, buffers map[string]*decode.Result, synthBuf []float32, frames, rate int) []float32 {
	buf := make([]float32, frames*2)
	empty := true
	for _, c := range t.Clips {
		res, ok := buffers[c.Src]
		if !ok {
			continue
		}
		cl := c.ClampToBuffer(res.Duration)
		if cl.Duration <= 0 {
			continue
		}
		dstFrame := int(math.Round(cl.Start * float64(rate)))
		srcFrame := int(math.Round(cl.Offset * float64(rate)))
		n := int(math.Round(cl.Duration * float64(rate)))
		for f := 0; f < n; f++ {
			df, sf := dstFrame+f, srcFrame+f
			if df >= frames || 2*sf+1 >= len(res.Buffer) {
				break
			}
			if df < 0 || sf < 0 {
				continue
			}
			buf[2*df] += res.Buffer[2*sf]
			buf[2*df+1] += res.Buffer[2*sf+1]
			empty = false
		}
	}
	if len(synthBuf) > 0 {
		n := len(synthBuf) / 2
		if n > frames {
			n = frames
		}
		for f := 0; f < n; f++ {
			buf[2*f] += synthBuf[2*f]
			buf[2*f+1] += synthBuf[2*f+1]
		}
		empty = false
	}
	if empty {
		return nil
	}
	return buf
}
