package prop

// backend is the storage layout behind a Map. §4.1 requires two interchangeable
// layouts behind one API: a flat list (backend_flat.go, the default - cheap for
// the common case of a handful of properties per packet) and an open-addressed
// N-way bucket table (backend_table.go, built with -tags proptable - faster
// lookup when a filter's pids carry large property sets). Selection happens at
// compile time so neither layout pays for the other's bookkeeping.
type backend interface {
	// get returns the entry matching key4cc/name, or nil.
	get(key4cc uint32, name string) *entry
	// put inserts or overwrites the entry matching key4cc/name.
	put(e *entry)
	// delete removes the entry matching key4cc/name, returning it (or nil).
	delete(key4cc uint32, name string) *entry
	// each calls fn for every live entry; fn returning false stops iteration.
	each(fn func(*entry) bool)
	// count returns the number of live entries.
	count() int
	// clone returns a deep-enough copy suitable for an independent Map (each
	// entry's refs is bumped rather than the value copied, per §3).
	clone() backend
}

func newBackend() backend { return newDefaultBackend() }
