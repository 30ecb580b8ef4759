//go:build !proptable

// Flat-list backend: a small unsorted slice scanned linearly. Grounded on
// the teacher's cmn/objattrs.go custom-metadata map, which favors a small
// slice over a map[string]T for the common case of a handful of entries -
// same tradeoff here, since most pids carry well under a dozen properties
// and a slice scan beats a hash lookup's overhead at that size.
package prop

type flatBackend struct {
	entries []*entry
}

func newDefaultBackend() backend { return &flatBackend{} }

func (b *flatBackend) get(key4cc uint32, name string) *entry {
	for _, e := range b.entries {
		if e.inUse && e.matches(key4cc, name) {
			return e
		}
	}
	return nil
}

func (b *flatBackend) put(e *entry) {
	for i, old := range b.entries {
		if old.inUse && old.matches(e.key4cc, e.name) {
			b.entries[i] = e
			return
		}
	}
	b.entries = append(b.entries, e)
}

func (b *flatBackend) delete(key4cc uint32, name string) *entry {
	for i, e := range b.entries {
		if e.inUse && e.matches(key4cc, name) {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return e
		}
	}
	return nil
}

func (b *flatBackend) each(fn func(*entry) bool) {
	for _, e := range b.entries {
		if e.inUse && !fn(e) {
			return
		}
	}
}

func (b *flatBackend) count() int {
	n := 0
	for _, e := range b.entries {
		if e.inUse {
			n++
		}
	}
	return n
}

func (b *flatBackend) clone() backend {
	out := &flatBackend{entries: make([]*entry, len(b.entries))}
	for i, e := range b.entries {
		e.refs++
		out.entries[i] = e
	}
	return out
}
