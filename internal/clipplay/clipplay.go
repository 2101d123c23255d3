// Package clipplay plays a track's audio clips against the shared
// clock. Each clip owns a small graph fragment (buffer voice with gain
// and pan) keyed by clip id; reconciling a new clip list against the
// live set decodes new sources once, updates gain and pan in place and
// reschedules only clips whose timing actually changed, so edits made
// during playback are audible within one pass without replaying stale
// timing.
package clipplay

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/openmix/trackmix-go/internal/cleanup"
	"github.com/openmix/trackmix-go/internal/clock"
	"github.com/openmix/trackmix-go/internal/decode"
	"github.com/openmix/trackmix-go/internal/logging"
	"github.com/openmix/trackmix-go/internal/project"
)

// releaseGrace is how long after Dispose decoded buffers stay
// referenced so the audio goroutine can finish draining voices.
const releaseGrace = 500 * time.Millisecond

type clipState struct {
	clip    project.Clip
	version int
	voice   *clipVoice
	pending *clock.Scheduled
}

// Player owns the playback state for one track's clips. Safe for
// concurrent use.
type Player struct {
	clk    clock.Clock
	dec    *decode.Decoder
	logger *slog.Logger

	mu       sync.Mutex
	clips    map[string]*clipState
	buffers  map[string]*decode.Result
	volume   float64
	pan      float64
	playing  bool
	disposed bool
	grace    time.Duration
	handle   *cleanup.Handle
}

// NewPlayer creates a player for the given track id and registers it
// with the process cleanup registry.
func NewPlayer(trackID string, clk clock.Clock, dec *decode.Decoder, logger *slog.Logger) *Player {
	p := &Player{
		clk:     clk,
		dec:     dec,
		logger:  logging.Or(logger),
		clips:   make(map[string]*clipState),
		buffers: make(map[string]*decode.Result),
		volume:  1,
		grace:   releaseGrace,
	}
	p.handle = cleanup.Default().Register(fmt.Sprintf("clip-player:%s", trackID), p.Dispose)
	return p
}

// UpdateClips reconciles the live set against clips. Sources are
// decoded once per distinct locator; a clip whose decode fails is
// logged and skipped, the rest of the set stays live. Timing edits to
// a playing clip stop its voice and reschedule it against the current
// transport position.
func (p *Player) UpdateClips(ctx context.Context, clips []project.Clip, volume, pan float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.volume = volume
	p.pan = pan

	keep := make(map[string]bool, len(clips))
	for _, c := range clips {
		keep[c.ID] = true
	}
	for id, st := range p.clips {
		if !keep[id] {
			p.stopClipLocked(st)
			delete(p.clips, id)
		}
	}
	p.releaseUnusedBuffersLocked()

	for _, c := range clips {
		st, ok := p.clips[c.ID]
		if !ok {
			res := p.bufferForLocked(ctx, c.Src)
			if res == nil {
				continue
			}
			st = &clipState{clip: c.ClampToBuffer(res.Duration), version: 1}
			p.clips[c.ID] = st
			if p.playing {
				p.scheduleClipLocked(st)
			}
			continue
		}
		if st.clip.Src != c.Src {
			// Source swap is a teardown plus fresh load.
			p.stopClipLocked(st)
			delete(p.clips, c.ID)
			res := p.bufferForLocked(ctx, c.Src)
			if res == nil {
				continue
			}
			st = &clipState{clip: c.ClampToBuffer(res.Duration), version: 1}
			p.clips[c.ID] = st
			if p.playing {
				p.scheduleClipLocked(st)
			}
			continue
		}
		res := p.buffers[c.Src]
		next := c.ClampToBuffer(res.Duration)
		if next.Start != st.clip.Start || next.Offset != st.clip.Offset || next.Duration != st.clip.Duration {
			st.clip = next
			st.version++
			p.stopClipLocked(st)
			if p.playing {
				p.scheduleClipLocked(st)
			}
		}
	}

	// Gain and pan apply in place to every live voice.
	gl, gr := p.voiceGainsLocked()
	for _, st := range p.clips {
		if st.voice != nil {
			st.voice.SetGains(gl, gr)
		}
	}
}

// Play schedules every clip against the clock's timeline start. The
// caller positions the transport with Clock.SetTimelineStart first.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed || p.playing {
		return
	}
	p.playing = true
	for _, st := range p.clips {
		p.scheduleClipLocked(st)
	}
}

// Pause stops all voices and cancels pending starts. Clip state and
// decoded buffers stay loaded.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.playing = false
	for _, st := range p.clips {
		p.stopClipLocked(st)
	}
}

// Seek reschedules every clip against the clock's current timeline
// start. No-op unless playing.
func (p *Player) Seek() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.disposed {
		return
	}
	for _, st := range p.clips {
		p.stopClipLocked(st)
		p.scheduleClipLocked(st)
	}
}

// Playing reports whether the transport is running.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// BufferCount reports how many decoded sources are held. Buffers are
// released a grace period after Dispose.
func (p *Player) BufferCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffers)
}

// Dispose tears the player down: stop voices, cancel pending starts,
// release decoded buffers after a grace delay, clear state and leave
// the cleanup registry. Idempotent.
func (p *Player) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.playing = false
	for _, st := range p.clips {
		p.stopClipLocked(st)
	}
	p.clips = make(map[string]*clipState)
	grace := p.grace
	handle := p.handle
	p.handle = nil
	p.mu.Unlock()

	time.AfterFunc(grace, func() {
		p.mu.Lock()
		p.buffers = make(map[string]*decode.Result)
		p.mu.Unlock()
	})
	if handle != nil {
		handle.Release()
	}
}

// bufferForLocked returns the decoded buffer for src, decoding it on
// first use. Returns nil (and logs) when the decode fails.
func (p *Player) bufferForLocked(ctx context.Context, src string) *decode.Result {
	if res, ok := p.buffers[src]; ok {
		return res
	}
	res, err := p.dec.Decode(ctx, src, nil)
	if err != nil {
		p.logger.Warn("clip source decode failed, skipping clip", "src", src, "err", err)
		return nil
	}
	p.buffers[src] = res
	return res
}

func (p *Player) releaseUnusedBuffersLocked() {
	used := make(map[string]bool, len(p.clips))
	for _, st := range p.clips {
		used[st.clip.Src] = true
	}
	for src := range p.buffers {
		if !used[src] {
			delete(p.buffers, src)
		}
	}
}

// stopClipLocked stops and disconnects the clip's voice and cancels a
// pending scheduled start.
func (p *Player) stopClipLocked(st *clipState) {
	if st.pending != nil {
		st.pending.Cancel()
		st.pending = nil
	}
	if st.voice != nil {
		p.clk.RemoveSource(st.voice)
		st.voice = nil
	}
}

// scheduleClipLocked starts or schedules one clip against the current
// transport position.
func (p *Player) scheduleClipLocked(st *clipState) {
	res := p.buffers[st.clip.Src]
	if res == nil {
		return
	}
	rate := float64(p.clk.SampleRate())
	pos := p.clk.Now() - p.clk.TimelineStart()
	clip := st.clip
	if pos >= clip.End() {
		return
	}
	gl, gr := p.voiceGainsLocked()
	if pos >= clip.Start {
		// Mid-clip: advance the source offset by the elapsed part.
		elapsed := pos - clip.Start
		v := newClipVoice(res.Buffer, clip.Offset+elapsed, clip.Duration-elapsed, rate, gl, gr)
		if v == nil {
			return
		}
		st.voice = v
		p.clk.AddSource(v)
		return
	}
	startFrame := int64(math.Round((p.clk.TimelineStart() + clip.Start) * rate))
	version := st.version
	st.pending = p.clk.ScheduleAtSample(func() { p.startPending(st, version, startFrame) }, startFrame)
}

// startPending fires on the audio path at the clip's start frame. When
// the target frame has already passed, the slack shifts the buffer
// read offset forward instead of glitching a late start.
func (p *Player) startPending(st *clipState, version int, intended int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed || !p.playing || st.version != version {
		return
	}
	res := p.buffers[st.clip.Src]
	if res == nil {
		return
	}
	rate := float64(p.clk.SampleRate())
	slack := float64(p.clk.NowSamples()-intended) / rate
	if slack < 0 {
		slack = 0
	}
	gl, gr := p.voiceGainsLocked()
	v := newClipVoice(res.Buffer, st.clip.Offset+slack, st.clip.Duration-slack, rate, gl, gr)
	if v == nil {
		return
	}
	st.pending = nil
	st.voice = v
	p.clk.AddSource(v)
}

// voiceGainsLocked folds the track volume into an equal power pan.
func (p *Player) voiceGainsLocked() (gl, gr float32) {
	pan := p.pan
	if pan < -1 {
		pan = -1
	}
	if pan > 1 {
		pan = 1
	}
	angle := (pan + 1) * math.Pi / 4
	gl = float32(p.volume * math.Cos(angle))
	gr = float32(p.volume * math.Sin(angle))
	return gl, gr
}
