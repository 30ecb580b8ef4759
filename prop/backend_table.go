//go:build proptable

// Open-addressed N-way bucket table backend, selected with -tags proptable.
// Grounded on xact/xreg/xreg.go's registry map-of-slices pattern (bucket by
// a coarse key, scan the short per-bucket slice for the exact match) -
// generalized here to bucket by the property hash instead of by xaction
// kind, trading the flat backend's O(n) scan for O(1) average lookup on
// pids that accumulate large property sets.
package prop

const tableBuckets = 16

type tableBackend struct {
	buckets [tableBuckets][]*entry
	n       int
}

func newDefaultBackend() backend { return &tableBackend{} }

func (b *tableBackend) bucketOf(hash uint32) int { return int(hash % tableBuckets) }

func (b *tableBackend) get(key4cc uint32, name string) *entry {
	h := hashOf(key4cc, name)
	for _, e := range b.buckets[b.bucketOf(h)] {
		if e.inUse && e.matches(key4cc, name) {
			return e
		}
	}
	return nil
}

func (b *tableBackend) put(e *entry) {
	idx := b.bucketOf(e.hash)
	bucket := b.buckets[idx]
	for i, old := range bucket {
		if old.inUse && old.matches(e.key4cc, e.name) {
			bucket[i] = e
			return
		}
	}
	b.buckets[idx] = append(bucket, e)
	b.n++
}

func (b *tableBackend) delete(key4cc uint32, name string) *entry {
	h := hashOf(key4cc, name)
	idx := b.bucketOf(h)
	bucket := b.buckets[idx]
	for i, e := range bucket {
		if e.inUse && e.matches(key4cc, name) {
			b.buckets[idx] = append(bucket[:i], bucket[i+1:]...)
			b.n--
			return e
		}
	}
	return nil
}

func (b *tableBackend) each(fn func(*entry) bool) {
	for _, bucket := range b.buckets {
		for _, e := range bucket {
			if e.inUse && !fn(e) {
				return
			}
		}
	}
}

func (b *tableBackend) count() int { return b.n }

func (b *tableBackend) clone() backend {
	out := &tableBackend{n: b.n}
	for i, bucket := range b.buckets {
		out.buckets[i] = make([]*entry, len(bucket))
		for j, e := range bucket {
			e.refs++
			out.buckets[i][j] = e
		}
	}
	return out
}
