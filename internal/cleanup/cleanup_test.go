package cleanup

import (
	"testing"
	"time"
)

func TestRegisterAndRelease(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	released := 0
	h := r.Register("offline render", func() { released++ })
	if r.Len() != 1 {
		t.Fatalf("expected 1 handle, got %d", r.Len())
	}
	h.Release()
	if released != 1 {
		t.Fatalf("release fn should run once, ran %d times", released)
	}
	if r.Len() != 0 {
		t.Fatalf("handle should be unregistered, len=%d", r.Len())
	}
	// Idempotent.
	h.Release()
	if released != 1 {
		t.Fatalf("second Release must be a no-op, ran %d times", released)
	}
}

func TestSweepReclaimsStale(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	released := 0
	h := r.Register("decode buffer", func() { released++ })
	fresh := r.Register("decode buffer", func() {})

	// Backdate one handle past the cutoff.
	h.CreatedAt = time.Now().Add(-6 * time.Minute)

	n := r.Sweep(time.Now())
	if n != 1 {
		t.Fatalf("expected 1 reclaimed handle, got %d", n)
	}
	if released != 1 {
		t.Fatalf("stale handle's release should have run")
	}
	if r.Len() != 1 {
		t.Fatalf("fresh handle should survive the sweep, len=%d", r.Len())
	}
	fresh.Release()
}

func TestCloseReleasesEverything(t *testing.T) {
	r := NewRegistry(nil)
	released := 0
	r.Register("a", func() { released++ })
	r.Register("b", func() { released++ })
	r.Close()
	if released != 2 {
		t.Fatalf("expected 2 releases at teardown, got %d", released)
	}
	r.Close() // must not panic
}
