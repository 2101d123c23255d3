package trackmix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/openmix/trackmix-go/internal/clipplay"
	"github.com/openmix/trackmix-go/internal/clock"
	"github.com/openmix/trackmix-go/internal/decode"
	"github.com/openmix/trackmix-go/internal/mixdown"
	"github.com/openmix/trackmix-go/internal/notesched"
	"github.com/openmix/trackmix-go/internal/project"
	"github.com/openmix/trackmix-go/internal/synth"
	"github.com/openmix/trackmix-go/internal/timeconv"
)

// PlaybackEvent carries transport events from Watch().
type PlaybackEvent struct {
	Kind int // EventStarted, EventPaused, EventSeeked, or EventStopped
	Pos  float64
}

const (
	EventStarted int = iota
	EventPaused
	EventSeeked
	EventStopped
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	logger  *slog.Logger
	clock   clock.Clock
	decoder *decode.Decoder
	preset  string
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{preset: notesched.DefaultPreset}
}

func WithLogger(logger *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.logger = logger
	}
}

// WithClock replaces the shared hardware clock, e.g. with a fake in
// tests. The clock must run at the player's sample rate.
func WithClock(c clock.Clock) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.clock = c
	}
}

// WithDecoder shares a decoder between players. A supplied decoder is
// the caller's to close.
func WithDecoder(d *decode.Decoder) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.decoder = d
	}
}

// WithSchedulerPreset selects the note scheduler timing preset for all
// MIDI tracks.
func WithSchedulerPreset(name string) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.preset = name
	}
}

// Player plays a loaded project live: audio tracks through per-track
// clip players, MIDI tracks through look-ahead schedulers driving
// instruments, all against one shared clock. Transport state (playing,
// paused, position) lives here; per-track mechanics live in the
// engines.
type Player struct {
	mu     sync.Mutex
	clk    clock.Clock
	dec    *decode.Decoder
	ownDec bool
	logger *slog.Logger
	rate   int
	bpm    float64
	preset string
	volume float64

	playing bool
	paused  bool
	posSec  float64
	units   map[string]*trackUnit
	closed  bool

	eventMu sync.Mutex
	eventCh chan PlaybackEvent
}

// trackUnit is one track's live engines. Audio tracks have clips, MIDI
// tracks have a scheduler and an instrument sink; a track with both
// kinds of content has both.
type trackUnit struct {
	track    project.Track
	instSpec string
	sched    *notesched.Scheduler
	sink     *instrumentSink
	clips    *clipplay.Player
}

// instrumentSink drives a synth.Instrument from scheduler note
// callbacks and feeds its frames to the clock mixer. Instruments are
// not concurrency-safe, so every touch goes through the sink mutex.
type instrumentSink struct {
	mu     sync.Mutex
	inst   synth.Instrument
	gl, gr float32
	voices map[int]int
}

func newInstrumentSink(spec string, sampleRate int) (*instrumentSink, error) {
	inst, err := synth.New(spec, sampleRate)
	if err != nil {
		return nil, err
	}
	return &instrumentSink{inst: inst, gl: 1, gr: 1, voices: make(map[int]int)}, nil
}

func (s *instrumentSink) SetGains(gl, gr float32) {
	s.mu.Lock()
	s.gl, s.gr = gl, gr
	s.mu.Unlock()
}

func (s *instrumentSink) NoteOn(pitch int, velocity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.voices[pitch]; ok {
		s.inst.NoteOff(id)
	}
	s.voices[pitch] = s.inst.NoteOn(pitch, velocity)
}

func (s *instrumentSink) NoteOff(pitch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.voices[pitch]
	if !ok {
		return
	}
	delete(s.voices, pitch)
	s.inst.NoteOff(id)
}

func (s *instrumentSink) Process(dst []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i+1 < len(dst); i += 2 {
		l, r := s.inst.RenderFrame()
		dst[i] = l * s.gl
		dst[i+1] = r * s.gr
	}
}

func sinkGains(volume, pan float64) (gl, gr float32) {
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}
	angle := (pan + 1) * math.Pi / 4
	return float32(volume * math.Cos(angle)), float32(volume * math.Sin(angle))
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if !slices.Contains(notesched.Presets(), cfg.preset) {
		return nil, fmt.Errorf("unknown scheduler preset %q", cfg.preset)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.clock
	if clk == nil {
		hw, err := clock.SharedHardware(sampleRate)
		if err != nil {
			return nil, err
		}
		clk = hw
	}
	if clk.SampleRate() != sampleRate {
		return nil, fmt.Errorf("clock runs at %d Hz, player wants %d Hz", clk.SampleRate(), sampleRate)
	}
	dec := cfg.decoder
	ownDec := false
	if dec == nil {
		dcfg := decode.DefaultConfig(sampleRate)
		dcfg.Logger = logger
		dec = decode.New(dcfg)
		ownDec = true
	}
	return &Player{
		clk:    clk,
		dec:    dec,
		ownDec: ownDec,
		logger: logger,
		rate:   sampleRate,
		bpm:    project.DefaultTempo,
		preset: cfg.preset,
		volume: 1,
		units:  make(map[string]*trackUnit),
	}, nil
}

// Load installs or reconciles the project's tracks. Safe during
// playback: clip edits reschedule only the affected clips, MIDI edits
// reach the schedulers on their next tick, removed tracks are torn
// down, and new tracks join at the current transport position.
func (p *Player) Load(ctx context.Context, proj *Project) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("player is closed")
	}
	if proj.BPM > 0 {
		p.bpm = proj.BPM
	}
	keep := make(map[string]bool, len(proj.Tracks))
	for _, t := range proj.Tracks {
		keep[t.ID] = true
		unit := p.units[t.ID]
		if unit == nil {
			unit = &trackUnit{}
			p.units[t.ID] = unit
		}
		unit.track = t
		p.loadUnitLocked(ctx, unit)
	}
	for id, unit := range p.units {
		if !keep[id] {
			p.teardownUnitLocked(unit)
			delete(p.units, id)
		}
	}
	return nil
}

func (p *Player) loadUnitLocked(ctx context.Context, unit *trackUnit) {
	t := &unit.track
	vol := t.Volume * p.volume

	if unit.clips == nil && len(t.Clips) > 0 {
		unit.clips = clipplay.NewPlayer(t.ID, p.clk, p.dec, p.logger)
	}
	if unit.clips != nil {
		unit.clips.UpdateClips(ctx, t.Clips, vol, t.Pan)
		if p.playing && !unit.clips.Playing() {
			unit.clips.Play()
		}
	}

	notes := mixdown.CollectNotes(t, p.bpm, p.logger)
	if unit.sink != nil && unit.instSpec != t.Instrument {
		p.teardownMIDILocked(unit)
	}
	if unit.sink == nil && len(notes) > 0 {
		sink, err := newInstrumentSink(t.Instrument, p.rate)
		if err != nil {
			p.logger.Warn("instrument unavailable, midi track stays silent", "track", t.ID, "err", err)
		} else {
			unit.sink = sink
			unit.instSpec = t.Instrument
			p.clk.AddSource(sink)
			unit.sched = notesched.New(p.clk, sink, p.logger)
			if err := unit.sched.SetPreset(p.preset); err != nil {
				p.logger.Warn("scheduler preset rejected", "track", t.ID, "err", err)
			}
		}
	}
	if unit.sched != nil {
		unit.sched.SetTempo(p.bpm)
		unit.sched.SetNotes(notes, project.UnitSeconds)
		unit.sink.SetGains(sinkGains(vol, t.Pan))
		if p.playing && unit.sched.Stats().State == notesched.StateStopped {
			beat := timeconv.SecondsToBeats(p.positionLocked(), p.bpm)
			if err := unit.sched.Start(beat); err != nil {
				p.logger.Warn("scheduler failed to join playback", "track", t.ID, "err", err)
			}
		}
	}
}

func (p *Player) teardownMIDILocked(unit *trackUnit) {
	if unit.sched != nil {
		unit.sched.Stop()
		unit.sched = nil
	}
	if unit.sink != nil {
		p.clk.RemoveSource(unit.sink)
		unit.sink = nil
	}
	unit.instSpec = ""
}

func (p *Player) teardownUnitLocked(unit *trackUnit) {
	p.teardownMIDILocked(unit)
	if unit.clips != nil {
		unit.clips.Dispose()
		unit.clips = nil
	}
}

// Play starts playback from the current position (0 after Stop, the
// held position after Pause).
func (p *Player) Play() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("player is closed")
	}
	if p.playing {
		p.mu.Unlock()
		return nil
	}
	p.clk.Resume()
	p.clk.SetTimelineStart(p.clk.Now() - p.posSec)
	beat := timeconv.SecondsToBeats(p.posSec, p.bpm)
	for id, unit := range p.units {
		if unit.clips != nil {
			unit.clips.Play()
		}
		if unit.sched != nil {
			if err := unit.sched.Start(beat); err != nil {
				p.logger.Warn("scheduler failed to start", "track", id, "err", err)
			}
		}
	}
	p.playing, p.paused = true, false
	pos := p.posSec
	p.mu.Unlock()
	p.emit(PlaybackEvent{Kind: EventStarted, Pos: pos})
	return nil
}

// Pause holds the transport. In-flight notes are silenced; clip voices
// stop; position is kept for the next Play.
func (p *Player) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.posSec = p.clk.Now() - p.clk.TimelineStart()
	for _, unit := range p.units {
		if unit.clips != nil {
			unit.clips.Pause()
		}
		if unit.sched != nil {
			unit.sched.Pause()
		}
	}
	p.playing, p.paused = false, true
	pos := p.posSec
	p.mu.Unlock()
	p.emit(PlaybackEvent{Kind: EventPaused, Pos: pos})
}

// Seek moves the transport to sec. While playing, every engine stops
// its in-flight material and reschedules against the new position.
func (p *Player) Seek(sec float64) {
	if sec < 0 {
		sec = 0
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.posSec = sec
	if p.playing {
		p.clk.SetTimelineStart(p.clk.Now() - sec)
		beat := timeconv.SecondsToBeats(sec, p.bpm)
		for _, unit := range p.units {
			if unit.clips != nil {
				unit.clips.Seek()
			}
			if unit.sched != nil {
				unit.sched.Seek(beat)
			}
		}
	}
	p.mu.Unlock()
	p.emit(PlaybackEvent{Kind: EventSeeked, Pos: sec})
}

// Stop halts playback and rewinds to zero.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	for _, unit := range p.units {
		if unit.clips != nil {
			unit.clips.Pause()
		}
		if unit.sched != nil {
			unit.sched.Stop()
		}
	}
	p.posSec = 0
	p.playing, p.paused = false, false
	p.mu.Unlock()
	p.emit(PlaybackEvent{Kind: EventStopped})
}

// Close stops playback, disposes every track engine, and releases the
// decoder if the player created it. The player is unusable afterwards.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for id, unit := range p.units {
		p.teardownUnitLocked(unit)
		delete(p.units, id)
	}
	p.playing, p.paused = false, false
	dec, own := p.dec, p.ownDec
	p.mu.Unlock()
	if own {
		dec.Close()
	}
}

// Position returns the transport position in seconds.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() float64 {
	if p.playing {
		return p.clk.Now() - p.clk.TimelineStart()
	}
	return p.posSec
}

// Playing reports whether the transport is rolling.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// SetMasterVolume scales every track's volume. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	for _, unit := range p.units {
		vol := unit.track.Volume * volume
		if unit.clips != nil {
			unit.clips.UpdateClips(context.Background(), unit.track.Clips, vol, unit.track.Pan)
		}
		if unit.sink != nil {
			unit.sink.SetGains(sinkGains(vol, unit.track.Pan))
		}
	}
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetSchedulerPreset switches every MIDI track's scheduler timing
// preset. Playing schedulers reconfigure in place without losing
// position.
func (p *Player) SetSchedulerPreset(name string) error {
	if !slices.Contains(notesched.Presets(), name) {
		return fmt.Errorf("unknown scheduler preset %q", name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preset = name
	for id, unit := range p.units {
		if unit.sched == nil {
			continue
		}
		if err := unit.sched.SetPreset(name); err != nil {
			p.logger.Warn("scheduler preset rejected", "track", id, "err", err)
		}
	}
	return nil
}

// SchedulerStats returns per-MIDI-track scheduler statistics keyed by
// track id.
func (p *Player) SchedulerStats() map[string]notesched.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]notesched.Stats)
	for id, unit := range p.units {
		if unit.sched != nil {
			out[id] = unit.sched.Stats()
		}
	}
	return out
}

// Watch returns a channel that receives transport events. The channel
// is buffered (cap 8) and sends never block; receive promptly or lose
// events. Only the most recent Watch() channel receives events.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventMu.Lock()
	p.eventCh = ch
	p.eventMu.Unlock()
	return ch
}

func (p *Player) emit(ev PlaybackEvent) {
	p.eventMu.Lock()
	ch := p.eventCh
	p.eventMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}
