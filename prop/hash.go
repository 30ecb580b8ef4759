package prop

import "github.com/gofilt/gofilt/cmn/cos"

// hashOf implements §4.1 hash(key4cc, name): a FourCC-typed property hashes
// to its own code (avoiding a string hash entirely on the hot path), a
// named property hashes via xxhash. Delegates to cmn/cos.HashKey so pid,
// filter, and resolver code share the exact same hash for a given key.
func hashOf(key4cc uint32, name string) uint32 { return cos.HashKey(key4cc, name) }
