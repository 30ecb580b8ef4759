package caps

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

const triedSetCapacity = 1024

// TriedSet is resolve_link's per-pid blacklist of registers already tried
// and rejected (§4.5 "a per-pid blacklist of registers already tried").
// A long-lived pid can churn through many candidate registers across
// repeated renegotiations, so an exact set would grow unbounded; a cuckoo
// filter gives a bounded-memory, false-positive-tolerant membership test
// instead (a false positive only costs skipping one already-unlikely
// candidate, never a correctness violation).
type TriedSet struct {
	mu sync.Mutex
	cf *cuckoo.Filter
}

func NewTriedSet() *TriedSet {
	return &TriedSet{cf: cuckoo.NewFilter(triedSetCapacity)}
}

func (t *TriedSet) Add(reg string) {
	t.mu.Lock()
	t.cf.InsertUnique([]byte(reg))
	t.mu.Unlock()
}

func (t *TriedSet) Contains(reg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cf.Lookup([]byte(reg))
}

func (t *TriedSet) Reset() {
	t.mu.Lock()
	t.cf.Reset()
	t.mu.Unlock()
}
