package prop

import "sync"

// Reservoir implements §4.1 "Entry reuse": deleted entries return here
// instead of being freed, and Get hands them out again. A recycled
// data-carrying entry keeps its last Data slice truncated to zero length,
// but Map.Set replaces an entry's whole value, so that array is not reused
// for the next payload. One Reservoir is shared by every Map in a session.
type Reservoir struct {
	mu   sync.Mutex
	free []*entry
}

func NewReservoir() *Reservoir { return &Reservoir{} }

// Get returns a recycled entry, or a fresh one if the free list is empty.
func (r *Reservoir) Get() *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.free)
	if n == 0 {
		return &entry{inUse: true}
	}
	e := r.free[n-1]
	r.free[n-1] = nil
	r.free = r.free[:n-1]
	e.inUse = true
	return e
}

// Put recycles e once its refs drop to zero. Its Data slice is kept,
// truncated to zero length.
func (r *Reservoir) Put(e *entry) {
	if e == nil {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	e.inUse = false
	e.name = ""
	e.key4cc = 0
	e.hash = 0
	if e.val.Data != nil {
		e.val = Value{Kind: KindData, Data: e.val.Data[:0]}
	} else {
		e.val = Value{}
	}
	r.mu.Lock()
	r.free = append(r.free, e)
	r.mu.Unlock()
}
