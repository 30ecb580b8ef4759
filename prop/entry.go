package prop

// entry is one property-map slot. hash is precomputed via cmn/cos.HashKey
// so lookups never re-hash the name; refs counts how many Map snapshots
// currently share this entry without copying it (§3 "reference counted").
type entry struct {
	hash    uint32
	key4cc  uint32
	name    string
	val     Value
	refs    int32
	inUse   bool
}

func (e *entry) matches(key4cc uint32, name string) bool {
	if key4cc != 0 {
		return e.key4cc == key4cc
	}
	return e.name == name
}
