package track

import (
	"fmt"
	"sync/atomic"
)

// Registry is a fixed table of tracks indexed by ID. Timer vector stubs reach
// their track through it; it is filled once at start-up.
type Registry struct {
	slots [MaxTracks]atomic.Pointer[Track]
}

// Default is the registry the platform vector stubs dispatch through.
var Default Registry

// Register installs t under its ID. It panics on a second registration for
// the same slot to catch wiring mistakes at start-up.
func (r *Registry) Register(t *Track) {
	if t == nil {
		panic("track: nil track")
	}
	if !r.slots[t.id].CompareAndSwap(nil, t) {
		panic(fmt.Sprintf("track: slot %s already registered", t.id))
	}
}

// Get returns the track in slot id, or nil.
func (r *Registry) Get(id ID) *Track {
	if id >= MaxTracks {
		return nil
	}
	return r.slots[id].Load()
}

// Dispatch runs one half-transition on the track in slot id. Empty slots are
// ignored. It is called from interrupt context.
func (r *Registry) Dispatch(id ID) {
	if id >= MaxTracks {
		return
	}
	if t := r.slots[id].Load(); t != nil {
		t.InterruptHandler()
	}
}

// Each calls fn for every registered track in ID order.
func (r *Registry) Each(fn func(*Track)) {
	for i := range r.slots {
		if t := r.slots[i].Load(); t != nil {
			fn(t)
		}
	}
}

// Lookup finds a track by name.
func (r *Registry) Lookup(name string) *Track {
	for i := range r.slots {
		if t := r.slots[i].Load(); t != nil && t.name == name {
			return t
		}
	}
	return nil
}

// Reset empties every slot. Used when the station shuts down and by tests.
func (r *Registry) Reset() {
	for i := range r.slots {
		r.slots[i].Store(nil)
	}
}
