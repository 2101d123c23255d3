// Package cleanup tracks transient offline resources (render contexts,
// decoded-buffer handles) in a process-wide registry so leaks are
// visible and reclaimable. Every handle is released explicitly after
// use; a periodic sweep reclaims anything that outlives the staleness
// cutoff, and Close releases everything at teardown.
package cleanup

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openmix/trackmix-go/internal/logging"
)

const (
	// DefaultMaxAge is the staleness cutoff past which a sweep treats a
	// still-registered handle as leaked.
	DefaultMaxAge = 5 * time.Minute

	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = time.Minute
)

// Handle is one registered resource. Release is idempotent.
type Handle struct {
	ID        string
	Purpose   string
	CreatedAt time.Time

	reg     *Registry
	release func()
}

// Release runs the handle's release function and removes it from the
// registry. Safe to call more than once.
func (h *Handle) Release() {
	if h == nil || h.reg == nil {
		return
	}
	h.reg.Release(h.ID)
}

// Registry tracks live handles by id.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle

	maxAge time.Duration
	logger *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRegistry creates a registry and starts its background sweep.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		handles: make(map[string]*Handle),
		maxAge:  DefaultMaxAge,
		logger:  logging.Or(logger),
		stop:    make(chan struct{}),
	}
	go r.sweepLoop(DefaultSweepInterval)
	return r
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry(nil)
	})
	return defaultReg
}

// Register adds a resource with its release function and returns the
// tracking handle.
func (r *Registry) Register(purpose string, release func()) *Handle {
	h := &Handle{
		ID:        uuid.NewString(),
		Purpose:   purpose,
		CreatedAt: time.Now(),
		reg:       r,
		release:   release,
	}
	r.mu.Lock()
	r.handles[h.ID] = h
	r.mu.Unlock()
	return h
}

// Release releases the handle with the given id, if still registered.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	h, ok := r.handles[id]
	if ok {
		delete(r.handles, id)
	}
	r.mu.Unlock()
	if ok && h.release != nil {
		h.release()
	}
}

// Sweep releases every handle older than the staleness cutoff relative
// to now and returns how many were reclaimed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var stale []*Handle
	for id, h := range r.handles {
		if now.Sub(h.CreatedAt) > r.maxAge {
			stale = append(stale, h)
			delete(r.handles, id)
		}
	}
	r.mu.Unlock()
	for _, h := range stale {
		r.logger.Warn("reclaiming stale resource",
			"id", h.ID, "purpose", h.Purpose, "age", now.Sub(h.CreatedAt))
		if h.release != nil {
			h.release()
		}
	}
	return len(stale)
}

// Len reports how many handles are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close stops the sweep and releases everything still registered.
// Safe to call more than once.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	remaining := make([]*Handle, 0, len(r.handles))
	for id, h := range r.handles {
		remaining = append(remaining, h)
		delete(r.handles, id)
	}
	r.mu.Unlock()
	for _, h := range remaining {
		if h.release != nil {
			h.release()
		}
	}
}

func (r *Registry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep(time.Now())
		case <-r.stop:
			return
		}
	}
}
