// Package server implements the bounded connection registry whose capacity
// counter and slot array are guarded by separate synchronization domains.
package server

import (
	"sync"
	"sync/atomic"
)

// Registry is the bounded set of live connections.
//
// Capacity and membership are guarded separately: the active count is an
// atomic counter checked at accept time, while slot contents are guarded by a
// mutex shared by Insert, Remove and ForEach. Holding one never implies
// exclusion on the other.
type Registry struct {
	capacity int64
	active   atomic.Int64

	mu    sync.Mutex
	slots []*Conn
}

// NewRegistry creates a registry with room for capacity connections.
func NewRegistry(capacity int) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	return &Registry{
		capacity: int64(capacity),
		slots:    make([]*Conn, capacity),
	}
}

// Reserve claims one capacity unit. It returns ErrRegistryFull when every
// unit is taken, in which case nothing was claimed.
func (r *Registry) Reserve() error {
	for {
		current := r.active.Load()
		if current >= r.capacity {
			return ErrRegistryFull
		}
		if r.active.CompareAndSwap(current, current+1) {
			return nil
		}
	}
}

// Release gives back a reservation that never reached Insert.
func (r *Registry) Release() {
	r.active.Add(-1)
}

// Insert stores c in the first empty slot. The caller must hold a
// reservation.
func (r *Registry) Insert(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, occupant := range r.slots {
		if occupant == nil {
			r.slots[i] = c
			c.slot = i
			return nil
		}
	}
	return ErrNoFreeSlot
}

// Remove clears the slot held by c and then releases its capacity unit.
func (r *Registry) Remove(c *Conn) error {
	r.mu.Lock()
	if c.slot < 0 || c.slot >= len(r.slots) || r.slots[c.slot] != c {
		r.mu.Unlock()
		return ErrNotRegistered
	}
	r.slots[c.slot] = nil
	c.slot = -1
	r.mu.Unlock()

	r.active.Add(-1)
	return nil
}

// ForEach calls visit for every live connection while holding the slot
// lock. visit must not call back into the registry.
func (r *Registry) ForEach(visit func(*Conn)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.slots {
		if c != nil {
			visit(c)
		}
	}
}

// Len returns the number of occupied slots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.slots {
		if c != nil {
			n++
		}
	}
	return n
}

// Active returns the number of reserved capacity units.
func (r *Registry) Active() int {
	return int(r.active.Load())
}

// Capacity returns the maximum number of simultaneous connections.
func (r *Registry) Capacity() int {
	return int(r.capacity)
}
