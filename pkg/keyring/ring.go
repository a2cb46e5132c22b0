// Package keyring manages the lifetime of key material handed to embedding
// hosts. A Ring issues opaque handles for parsed or generated keys,
// serializes release against in-flight use, and wipes private material
// exactly once when an entry dies: by explicit release, by Close, or by
// garbage collection of an abandoned handle.
package keyring

import (
	"errors"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// ErrHandleReleased is returned for operations on a handle whose entry is
// gone: released, closed, reclaimed by the garbage collector, or never part
// of this ring.
var ErrHandleReleased = errors.New("key handle released")

// Handle is an opaque reference to one ring entry. Ids are assigned
// monotonically and never reused, so a stale handle can never alias a
// newer key.
type Handle struct {
	id   uint64
	ring *Ring
}

// ID returns the numeric id hosts use to name the handle externally.
func (h *Handle) ID() uint64 { return h.id }

// Stats is a snapshot of ring accounting. The counters are cumulative over
// the life of the ring; Live is the current entry count.
type Stats struct {
	Live      uint64 `json:"live"`
	Acquired  uint64 `json:"acquired"`
	Released  uint64 `json:"released"`
	Finalized uint64 `json:"finalized"`
	Borrows   uint64 `json:"borrows"`
}

// Option configures a Ring.
type Option func(*Ring)

// WithFinalizers controls whether abandoned handles are reclaimed by the
// garbage collector. Enabled by default. Hosts that address entries by
// numeric id alone and release explicitly (the REST service) turn it off,
// since they retain no handle objects for the collector to track.
func WithFinalizers(enabled bool) Option {
	return func(r *Ring) { r.finalizers = enabled }
}

// entry is one live key. Its RWMutex serializes release (write side)
// against borrows (read side).
type entry struct {
	mu       sync.RWMutex
	material *sshkey.KeyMaterial
	released bool
}

// Ring is a guarded table of live key handles. It is the single authority
// deciding when an entry dies, so a release can never invalidate material
// another goroutine is using. All methods are safe for concurrent use.
type Ring struct {
	finalizers bool

	nextID atomic.Uint64

	mu      sync.Mutex
	entries map[uint64]*entry

	acquired  atomic.Uint64
	released  atomic.Uint64
	finalized atomic.Uint64
	borrows   atomic.Uint64
}

// New constructs an empty ring with finalizers enabled.
func New(opts ...Option) *Ring {
	r := &Ring{
		finalizers: true,
		entries:    make(map[uint64]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire registers non-nil material and returns its handle. The ring owns
// the private half from here on: it is wiped when the entry dies. With
// finalizers enabled, dropping every reference to the returned handle lets
// the garbage collector release the entry.
func (r *Ring) Acquire(m *sshkey.KeyMaterial) *Handle {
	id := r.nextID.Add(1)
	e := &entry{material: m}

	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()
	r.acquired.Add(1)

	h := &Handle{id: id, ring: r}
	if r.finalizers {
		runtime.AddCleanup(h, func(id uint64) {
			r.releaseID(id, true)
		}, id)
	}
	return h
}

// Find resolves a numeric id to a handle for a live entry. Handles from
// Find carry no finalizer; entry lifetime stays with the original handle
// and explicit release.
func (r *Ring) Find(id uint64) (*Handle, error) {
	r.mu.Lock()
	_, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrHandleReleased
	}
	return &Handle{id: id, ring: r}, nil
}

// Borrow runs fn with the entry's material. The entry cannot be released
// while fn runs; fn must not retain the material past its return. After
// release, Borrow fails with ErrHandleReleased and fn never observes a
// stale or wiped value.
func (r *Ring) Borrow(h *Handle, fn func(*sshkey.KeyMaterial) error) error {
	defer runtime.KeepAlive(h)

	e := r.lookup(h)
	if e == nil {
		return ErrHandleReleased
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.released {
		return ErrHandleReleased
	}
	r.borrows.Add(1)
	return fn(e.material)
}

// Get returns the entry's material. KeyMaterial is immutable so the
// snapshot stays safe to read, but release wipes the private half: only
// the public side of a snapshot outlives its handle. Hosts that need the
// private half during an operation use Borrow.
func (r *Ring) Get(h *Handle) (*sshkey.KeyMaterial, error) {
	defer runtime.KeepAlive(h)

	e := r.lookup(h)
	if e == nil {
		return nil, ErrHandleReleased
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.released {
		return nil, ErrHandleReleased
	}
	return e.material, nil
}

// Release removes the entry, waiting for in-flight borrows to finish, and
// wipes its private material. Idempotent: releasing an already-dead, nil,
// or foreign handle is a no-op returning nil.
func (r *Ring) Release(h *Handle) error {
	if h == nil || h.ring != r {
		return nil
	}
	r.releaseID(h.id, false)
	return nil
}

// releaseID is the single path an entry dies through. Deleting from the
// table first makes new operations fail atomically while the write lock
// waits out in-flight borrows. finalized marks reclamation by the garbage
// collector rather than an explicit call.
func (r *Ring) releaseID(id uint64, finalized bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return
	}
	e.released = true
	e.material.Destroy()
	e.material = nil

	r.released.Add(1)
	if finalized {
		r.finalized.Add(1)
	}
}

// lookup resolves a handle to its live entry, or nil.
func (r *Ring) lookup(h *Handle) *entry {
	if h == nil || h.ring != r {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[h.id]
}

// Len returns the number of live entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stats returns a snapshot of ring accounting.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	live := uint64(len(r.entries))
	r.mu.Unlock()
	return Stats{
		Live:      live,
		Acquired:  r.acquired.Load(),
		Released:  r.released.Load(),
		Finalized: r.finalized.Load(),
		Borrows:   r.borrows.Load(),
	}
}

// Range calls fn for every live entry in ascending handle id order until
// fn returns false. Entries released mid-iteration are skipped.
func (r *Ring) Range(fn func(id uint64, m *sshkey.KeyMaterial) bool) {
	for _, id := range r.liveIDs() {
		r.mu.Lock()
		e := r.entries[id]
		r.mu.Unlock()
		if e == nil {
			continue
		}

		e.mu.RLock()
		m := e.material
		dead := e.released
		e.mu.RUnlock()
		if dead {
			continue
		}
		if !fn(id, m) {
			return
		}
	}
}

// Close releases every live entry, waiting for in-flight borrows. The
// service shutdown path. The ring itself stays usable afterwards.
func (r *Ring) Close() {
	for _, id := range r.liveIDs() {
		r.releaseID(id, false)
	}
}

func (r *Ring) liveIDs() []uint64 {
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	slices.Sort(ids)
	return ids
}
