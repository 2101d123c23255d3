package mixdown

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/openmix/trackmix-go/internal/project"
	"github.com/openmix/trackmix-go/internal/synth"
)

// maxReleaseTailSec caps how long past the final note off a voice may
// keep ringing before the render is cut.
const maxReleaseTailSec = 2.0

// synthCache retains one rendered buffer per track id. An edit to a
// track's notes or instrument replaces its entry, so the cache is
// bounded by the track count of whatever projects pass through.
var synthCache = struct {
	sync.Mutex
	m      map[string][]float32
	latest map[string]string // track id -> retained key
}{m: make(map[string][]float32), latest: make(map[string]string)}

// synthKey fingerprints everything that shapes the rendered buffer.
// Two renders with the same key are sample-identical, so the cached
// buffer can stand in for either.
func synthKey(trackID, instrument string, rate int, notes []project.Note) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|", instrument, rate)
	var b [8]byte
	for _, n := range notes {
		binary.LittleEndian.PutUint64(b[:], uint64(n.Pitch))
		h.Write(b[:])
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(n.Start))
		h.Write(b[:])
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(n.Duration))
		h.Write(b[:])
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(n.Velocity))
		h.Write(b[:])
	}
	return trackID + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// synthesizeTrack renders the track's collected notes offline through
// its instrument. Note durations are honored exactly; after the last
// off the render drains until every voice has released, capped at
// maxReleaseTailSec. Results are cached by track identity plus content
// fingerprint; cached buffers are shared and must not be written.
func synthesizeTrack(t *project.Track, notes []project.Note, rate int) ([]float32, error) {
	if len(notes) == 0 {
		return nil, nil
	}
	key := synthKey(t.ID, t.Instrument, rate, notes)
	synthCache.Lock()
	if buf, ok := synthCache.m[key]; ok {
		synthCache.Unlock()
		return buf, nil
	}
	synthCache.Unlock()

	inst, err := synth.New(t.Instrument, rate)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", t.ID, err)
	}

	type event struct {
		frame int
		on    bool
		pitch int
		vel   float64
		note  int
	}
	events := make([]event, 0, len(notes)*2)
	lastOff := 0
	for i, n := range notes {
		onFrame := int(math.Round(n.Start * float64(rate)))
		offFrame := int(math.Round((n.Start + n.Duration) * float64(rate)))
		if offFrame <= onFrame {
			offFrame = onFrame + 1
		}
		events = append(events,
			event{frame: onFrame, on: true, pitch: n.Pitch, vel: n.Velocity, note: i},
			event{frame: offFrame, on: false, note: i})
		if offFrame > lastOff {
			lastOff = offFrame
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].frame != events[j].frame {
			return events[i].frame < events[j].frame
		}
		return !events[i].on && events[j].on
	})

	tailLimit := lastOff + int(maxReleaseTailSec*float64(rate))
	out := make([]float32, 0, (lastOff+1)*2)
	voices := make(map[int]int, len(notes))
	next := 0
	for frame := 0; ; frame++ {
		for next < len(events) && events[next].frame == frame {
			ev := events[next]
			next++
			if ev.on {
				voices[ev.note] = inst.NoteOn(ev.pitch, ev.vel)
			} else if id, ok := voices[ev.note]; ok {
				delete(voices, ev.note)
				inst.NoteOff(id)
			}
		}
		if frame >= lastOff && (inst.ActiveVoiceCount() == 0 || frame >= tailLimit) {
			break
		}
		l, r := inst.RenderFrame()
		out = append(out, l, r)
	}

	synthCache.Lock()
	if prev, ok := synthCache.latest[t.ID]; ok && prev != key {
		delete(synthCache.m, prev)
	}
	synthCache.latest[t.ID] = key
	synthCache.m[key] = out
	synthCache.Unlock()
	return out, nil
}
