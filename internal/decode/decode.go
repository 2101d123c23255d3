// Package decode turns audio sources into engine-rate stereo buffers
// plus coarse min/max waveform peaks. Jobs prefer an isolated worker
// goroutine; when the worker crashes, in-flight jobs are resolved on
// the caller's goroutine and the worker is restarted under a supervised
// exponential backoff. Past the retry budget the worker stays off for
// the rest of the process and every job takes the fallback path.
package decode

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/openmix/trackmix-go/internal/logging"
)

// Peak is one min/max bucket of the waveform summary.
type Peak struct {
	Min float32
	Max float32
}

// Result is a completed decode job.
type Result struct {
	Buffer     []float32 // stereo interleaved at the engine rate
	SampleRate int
	Duration   float64
	Peaks      []Peak
	ViaWorker  bool
}

// ProgressFunc receives per-stage progress in 0..1.
type ProgressFunc func(stage string, progress float64)

// DecodeFunc produces a stereo interleaved buffer at the target rate.
// Tests inject one to simulate crashes; nil selects file decoding.
type DecodeFunc func(src string, targetRate int) ([]float32, error)

// Config tunes a Decoder.
type Config struct {
	SampleRate     int
	UseWorker      bool
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	ResetStreak    int
	JobTimeout     time.Duration
	PeaksPerSecond int
	DecodeFunc     DecodeFunc
	Logger         *slog.Logger
}

// DefaultConfig returns the production settings at the given rate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:     sampleRate,
		UseWorker:      true,
		MaxRetries:     3,
		BackoffBase:    500 * time.Millisecond,
		BackoffCap:     8 * time.Second,
		ResetStreak:    5,
		JobTimeout:     30 * time.Second,
		PeaksPerSecond: 100,
	}
}

// Stats is a snapshot of the decoder's health counters.
type Stats struct {
	WorkerJobs     int
	FallbackJobs   int
	Crashes        int
	RestartDelays  []time.Duration
	WorkerAlive    bool
	WorkerDisabled bool
}

// Decoder runs decode jobs. Safe for concurrent use.
type Decoder struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	worker   *worker
	attempts int
	streak   int
	disabled bool
	closed   bool
	stats    Stats
}

// New creates a decoder and, when the config allows it, starts the
// worker.
func New(cfg Config) *Decoder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.PeaksPerSecond <= 0 {
		cfg.PeaksPerSecond = 100
	}
	d := &Decoder{cfg: cfg, logger: logging.Or(cfg.Logger)}
	if cfg.UseWorker {
		d.startWorker()
	}
	return d
}

// Decode resolves src into a buffer and peaks, preferring the worker.
// The job is bounded by the configured hard timeout on top of ctx.
func (d *Decoder) Decode(ctx context.Context, src string, progress ProgressFunc) (*Result, error) {
	if d.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.JobTimeout)
		defer cancel()
	}
	if w := d.currentWorker(); w != nil {
		res, err, resolved := d.decodeViaWorker(ctx, w, src, progress)
		if resolved {
			return res, err
		}
		// The worker went away with this job in flight; resolve it
		// here.
		d.logger.Warn("decode worker gone mid-job, falling back", "src", src)
	}
	return d.decodeFallback(ctx, src, progress)
}

// Stats returns a copy of the health counters.
func (d *Decoder) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.RestartDelays = append([]time.Duration(nil), d.stats.RestartDelays...)
	s.WorkerAlive = d.worker != nil
	s.WorkerDisabled = d.disabled
	return s
}

// Close stops the worker and rejects further restarts. Concurrent
// Decode calls are not interrupted: submitters blocked on the worker
// resolve their jobs on the fallback path.
func (d *Decoder) Close() {
	d.mu.Lock()
	d.closed = true
	w := d.worker
	d.worker = nil
	d.mu.Unlock()
	if w != nil {
		close(w.quit)
	}
}

func (d *Decoder) currentWorker() *worker {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.worker
}

// decodeSource runs the configured decode function or the file decoder.
func (d *Decoder) decodeSource(src string) ([]float32, error) {
	if d.cfg.DecodeFunc != nil {
		return d.cfg.DecodeFunc(src, d.cfg.SampleRate)
	}
	return decodeFile(src, d.cfg.SampleRate)
}

// safeDecode converts a panic into an error. Only the fallback path
// uses it; in the worker a panic is the crash signal.
func (d *Decoder) safeDecode(src string) (buf []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode panic: %v", r)
		}
	}()
	return d.decodeSource(src)
}

// decodeFallback is the main-thread path: same contract as the worker,
// with cooperative yields between the decode and peak phases.
func (d *Decoder) decodeFallback(ctx context.Context, src string, progress ProgressFunc) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", src, err)
	}
	report(progress, "decode", 0)
	buf, err := d.safeDecode(src)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", src, err)
	}
	report(progress, "decode", 1)

	runtime.Gosched()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", src, err)
	}

	report(progress, "peaks", 0)
	res := d.finishResult(buf, false)
	report(progress, "peaks", 1)

	d.mu.Lock()
	d.stats.FallbackJobs++
	d.mu.Unlock()
	return res, nil
}

func (d *Decoder) finishResult(buf []float32, viaWorker bool) *Result {
	return &Result{
		Buffer:     buf,
		SampleRate: d.cfg.SampleRate,
		Duration:   float64(len(buf)/2) / float64(d.cfg.SampleRate),
		Peaks:      buildPeaks(buf, d.cfg.SampleRate, d.cfg.PeaksPerSecond),
		ViaWorker:  viaWorker,
	}
}

func report(progress ProgressFunc, stage string, p float64) {
	if progress != nil {
		progress(stage, p)
	}
}

// buildPeaks reduces a stereo buffer to min/max buckets across both
// channels, perSecond buckets per second of audio.
func buildPeaks(buf []float32, sampleRate, perSecond int) []Peak {
	framesPerBucket := sampleRate / perSecond
	if framesPerBucket < 1 {
		framesPerBucket = 1
	}
	frames := len(buf) / 2
	n := (frames + framesPerBucket - 1) / framesPerBucket
	peaks := make([]Peak, 0, n)
	for b := 0; b < n; b++ {
		start := b * framesPerBucket
		end := start + framesPerBucket
		if end > frames {
			end = frames
		}
		p := Peak{Min: buf[start*2], Max: buf[start*2]}
		for i := start * 2; i < end*2; i++ {
			v := buf[i]
			if v < p.Min {
				p.Min = v
			}
			if v > p.Max {
				p.Max = v
			}
		}
		peaks = append(peaks, p)
	}
	return peaks
}
