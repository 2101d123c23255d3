package clock

import (
	"fmt"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Hardware is the audio-device-backed clock. There is exactly one per
// process: the device context cannot be reopened at a different rate,
// so the first SharedHardware call decides the sample rate for the
// process lifetime.
type Hardware struct {
	*Mixer
	player *ebitaudio.Player
}

var (
	hardwareOnce sync.Once
	hardware     *Hardware
	hardwareErr  error
	hardwareRate int
)

// SharedHardware returns the process-wide hardware clock, creating it
// on first use and resuming it if the device suspended playback. A
// later call with a different sample rate fails.
func SharedHardware(sampleRate int) (*Hardware, error) {
	hardwareOnce.Do(func() {
		hardwareRate = sampleRate
		hardware, hardwareErr = newHardware(sampleRate)
	})
	if hardwareErr != nil {
		return nil, hardwareErr
	}
	if hardwareRate != sampleRate {
		return nil, fmt.Errorf("hardware clock already initialized at %d Hz (requested %d Hz)", hardwareRate, sampleRate)
	}
	hardware.Resume()
	return hardware, nil
}

func newHardware(sampleRate int) (*Hardware, error) {
	mix := NewMixer(sampleRate)
	ctx := ebitaudio.NewContext(sampleRate)
	pl, err := ctx.NewPlayerF32(mix)
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	h := &Hardware{Mixer: mix, player: pl}
	pl.Play()
	return h, nil
}

// Resume restarts the output stream if the device paused it.
func (h *Hardware) Resume() {
	if !h.player.IsPlaying() {
		h.player.Play()
	}
}

// Suspend pauses the output stream; the clock stops advancing until
// Resume.
func (h *Hardware) Suspend() {
	h.player.Pause()
}

// Close tears the output player down. Only top-level disposal may call
// this; the clock is unusable afterwards.
func (h *Hardware) Close() error {
	h.player.Pause()
	return h.player.Close()
}

// ScheduleAt fires fn as close as possible to the target clock time
// without busy-waiting: targets inside nearWindow go straight to a
// bounded poll loop, farther ones sleep coarsely until shortly before
// the target and then refine. MaxWait caps the total wait so a
// suspended clock cannot park the callback forever.
func (h *Hardware) ScheduleAt(fn func(), target float64, opts ScheduleOpts) *Scheduled {
	s := newScheduled()
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	precision := opts.Precision
	if precision <= 0 {
		precision = DefaultPrecision
	}
	go func() {
		deadline := time.Now().Add(maxWait)
		if delta := target - h.Now(); delta > nearWindow {
			coarse := time.Duration((delta - coarseEarlyBy) * float64(time.Second))
			if until := time.Until(deadline); coarse > until {
				coarse = until
			}
			if !sleepOrCancel(coarse, s) {
				return
			}
		}
		for i := 0; i < maxPollIters; i++ {
			delta := target - h.Now()
			if delta <= precision || time.Now().After(deadline) {
				break
			}
			wait := time.Duration(delta * float64(time.Second))
			if wait > pollInterval {
				wait = pollInterval
			}
			if !sleepOrCancel(wait, s) {
				return
			}
		}
		if s.claim() {
			fn()
		}
	}()
	return s
}

// sleepOrCancel waits for d or until the handle is cancelled; it
// reports whether the wait completed.
func sleepOrCancel(d time.Duration, s *Scheduled) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.cancel:
		return false
	}
}
