package prop

import (
	"sync"

	"github.com/gofilt/gofilt/cmn/atomic"
)

// state is the backend shared by every Map handle that descends from one
// Ref() chain. Map itself is a thin per-owner handle pointing at state;
// Ref() hands out a new handle over the SAME state, so a writer that later
// mutates its own handle clones state first and leaves every other handle
// looking at the unmodified original (§3 "immutable-once-published").
type state struct {
	mu   sync.RWMutex
	b    backend
	refs atomic.Int32
}

// Map is a property set attached to a pid or packet (§3). mu guards this
// handle's st pointer (swapped on copy-on-write); st.mu guards the backend
// a given state actually points at.
type Map struct {
	res *Reservoir
	mu  sync.Mutex
	st  *state
}

func NewMap(res *Reservoir) *Map {
	st := &state{b: newBackend()}
	st.refs.Store(1)
	return &Map{res: res, st: st}
}

// Ref hands out a second independent handle over the same underlying
// property set without copying it - the "shared without copying" path of
// §3. Each handle may later mutate its own view; doing so clones first.
func (m *Map) Ref() *Map {
	m.mu.Lock()
	st := m.st
	m.mu.Unlock()
	st.refs.Inc()
	return &Map{res: m.res, st: st}
}

// Unref drops this handle's share of the underlying state; when the last
// handle over a given state releases it, every entry returns to the
// reservoir.
func (m *Map) Unref() {
	m.mu.Lock()
	st := m.st
	m.mu.Unlock()
	if st.refs.Dec() > 0 {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.b.each(func(e *entry) bool {
		if m.res != nil {
			m.res.Put(e)
		}
		return true
	})
}

// writable locks m for the duration of one mutating call and returns the
// state to mutate plus an unlock func the caller must defer. If the
// handle's current state is still shared by another handle, it is cloned
// into a private state first (copy-on-write) before being returned.
func (m *Map) writable() (st *state, unlock func()) {
	m.mu.Lock()
	st = m.st
	if st.refs.Load() > 1 {
		st.mu.RLock()
		cloned := &state{b: st.b.clone()}
		st.mu.RUnlock()
		cloned.refs.Store(1)
		st.refs.Dec()
		m.st = cloned
		st = cloned
	}
	st.mu.Lock()
	return st, func() { st.mu.Unlock(); m.mu.Unlock() }
}

// readable returns the current state plus an RUnlock func, without ever
// cloning - safe for Get/Enumerate/Count, which never mutate.
func (m *Map) readable() (st *state, runlock func()) {
	m.mu.Lock()
	st = m.st
	m.mu.Unlock()
	st.mu.RLock()
	return st, st.mu.RUnlock
}

// Set implements §4.1 map_set(key4cc, name, value). A FourCC-typed key
// takes priority over name when key4cc != 0 (§4.1 hash rule).
func (m *Map) Set(key4cc uint32, name string, v Value) {
	st, unlock := m.writable()
	defer unlock()
	var e *entry
	if m.res != nil {
		e = m.res.Get()
	} else {
		e = &entry{inUse: true}
	}
	e.hash = hashOf(key4cc, name)
	e.key4cc = key4cc
	e.name = name
	e.val = v
	e.refs = 1
	st.b.put(e)
}

// Get implements §4.1 map_get(key4cc, name) -> (value, found).
func (m *Map) Get(key4cc uint32, name string) (Value, bool) {
	st, runlock := m.readable()
	defer runlock()
	e := st.b.get(key4cc, name)
	if e == nil {
		return Value{}, false
	}
	return e.val, true
}

// Remove implements §4.1 map_remove(key4cc, name).
func (m *Map) Remove(key4cc uint32, name string) bool {
	st, unlock := m.writable()
	defer unlock()
	e := st.b.delete(key4cc, name)
	if e == nil {
		return false
	}
	if m.res != nil {
		m.res.Put(e)
	}
	return true
}

// Enumerate implements §4.1 map_enumerate; fn returning false stops early.
func (m *Map) Enumerate(fn func(key4cc uint32, name string, v Value) bool) {
	st, runlock := m.readable()
	defer runlock()
	st.b.each(func(e *entry) bool { return fn(e.key4cc, e.name, e.val) })
}

func (m *Map) Count() int {
	st, runlock := m.readable()
	defer runlock()
	return st.b.count()
}

// Merge implements §4.1 map_merge(dst, src, filter): every src entry
// passing filter is installed into dst by bumping its refcount rather than
// copying the value, so large Data payloads aren't duplicated on merge. A
// nil filter merges everything.
func Merge(dst, src *Map, filter func(key4cc uint32, name string, v Value) bool) {
	srcSt, srcRUnlock := src.readable()
	defer srcRUnlock()
	dstSt, unlock := dst.writable()
	defer unlock()
	srcSt.b.each(func(e *entry) bool {
		if filter != nil && !filter(e.key4cc, e.name, e.val) {
			return true
		}
		e.refs++
		dstSt.b.put(e)
		return true
	})
}
