// Package dedup tracks in-flight manifest requests so the same URL is not
// fetched twice concurrently within one classification phase.
package dedup

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Phase selects one of the two independent key-sets.
type Phase string

const (
	PhaseLight Phase = "light"
	PhaseFull  Phase = "full"
)

// Deduplicator holds the in-flight keys for each phase.
// It is safe for concurrent use; create one per parser instance.
type Deduplicator struct {
	light *xsync.MapOf[string, struct{}]
	full  *xsync.MapOf[string, struct{}]
}

// New creates an empty Deduplicator.
func New() *Deduplicator {
	return &Deduplicator{
		light: xsync.NewMapOf[string, struct{}](),
		full:  xsync.NewMapOf[string, struct{}](),
	}
}

func (d *Deduplicator) set(phase Phase) *xsync.MapOf[string, struct{}] {
	if phase == PhaseFull {
		return d.full
	}
	return d.light
}

// BeginOrSkip inserts key and returns true, or returns false if the key is
// already in flight.
func (d *Deduplicator) BeginOrSkip(phase Phase, key string) bool {
	_, loaded := d.set(phase).LoadOrStore(key, struct{}{})
	return !loaded
}

// End releases key.
func (d *Deduplicator) End(phase Phase, key string) {
	d.set(phase).Delete(key)
}

// InFlight reports whether key is currently held.
func (d *Deduplicator) InFlight(phase Phase, key string) bool {
	_, ok := d.set(phase).Load(key)
	return ok
}

// Len returns the number of in-flight keys for phase.
func (d *Deduplicator) Len(phase Phase) int {
	return d.set(phase).Size()
}

// Acquire is BeginOrSkip with a release func meant for defer.
// When ok is false, release is a no-op.
func (d *Deduplicator) Acquire(phase Phase, key string) (release func(), ok bool) {
	if !d.BeginOrSkip(phase, key) {
		return func() {}, false
	}
	return func() { d.End(phase, key) }, true
}
