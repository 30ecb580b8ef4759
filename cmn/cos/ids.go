// Package cos provides low-level types and utilities shared by every
// gofilt package: ID generation, property-key hashing, and small error
// helpers - the same role the teacher's `cmn/cos` plays for aistore.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"fmt"
	"unsafe"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"

	"github.com/gofilt/gofilt/cmn/atomic"
)

// Alphabet for generated IDs; longer than 0x3f entries so GenTie's bit-mask
// indexing below never overflows.
const idABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const (
	LenShortID = 9  // length of a generated UUID (shortid's documented length)
	tooLongID  = 32 // upper bound accepted by IsAlphaNice
)

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

// InitIDGen seeds the ID generator; called once by session.New.
func InitIDGen(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, idABC, seed)
}

// GenUUID produces a filter/session/packet-carousel identifier: short,
// collision-resistant, and guaranteed to start with a letter and not end
// with a separator (so it's safe to embed in argument strings, §4.4).
func GenUUID() (uuid string) {
	var h, t string
	uuid = sid.MustGenerate()
	if !isAlpha(uuid[0]) {
		tie := int(rtie.Add(1))
		h = string(rune('A' + tie%26))
	}
	if c := uuid[len(uuid)-1]; c == '-' || c == '_' {
		tie := int(rtie.Add(1))
		t = string(rune('a' + tie%26))
	}
	return h + uuid + t
}

func IsValidUUID(uuid string) bool {
	return len(uuid) >= LenShortID && IsAlphaNice(uuid)
}

// GenTie is a fast 3-character tie-breaker used to deterministically order
// two resolver candidates that otherwise score equal (§4.5 priorities).
func GenTie() string {
	tie := rtie.Add(1)
	b0 := idABC[tie&0x3f]
	b1 := idABC[-tie&0x3f]
	b2 := idABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}

// CryptoRandS returns a cryptographically random alphanumeric string of
// length n, used where a generated ID must not be derivable from the
// shortid sequence (e.g. session IDs handed to untrusted script hosts).
func CryptoRandS(n int) string {
	const abc = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = abc[int(b[i])%len(abc)]
	}
	return string(b)
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// IsAlphaNice: letters/digits with '-'/'_' allowed except at the ends.
func IsAlphaNice(s string) bool {
	l := len(s)
	if l > tooLongID {
		return false
	}
	for i := range l {
		c := s[i]
		if isAlpha(c) || (c >= '0' && c <= '9') {
			continue
		}
		if c != '-' && c != '_' {
			return false
		}
		if i == 0 || i == l-1 {
			return false
		}
	}
	return true
}

//
// property-key hashing - §4.1 `hash(key4cc, name) -> u32`
//

// MLCG32 is the multiplier of a 32-bit multiplicative LCG, used (as in the
// teacher's cos package) to seed xxhash with a fixed, well-distributed salt
// instead of 0.
const MLCG32 = 1103515245

// HashKey implements §4.1's hash(key4cc, name): a built-in key (non-zero
// fourcc) hashes the fourcc itself (already well distributed, and stable
// across processes without needing to touch the string); a user-extension
// key hashes its name string via xxhash, salted with MLCG32.
func HashKey(fourcc uint32, name string) uint32 {
	if fourcc != 0 {
		return fourcc
	}
	return uint32(xxhash.Checksum64S(UnsafeB(name), MLCG32))
}

// UnsafeB/UnsafeS: zero-copy string<->[]byte conversions for the hot hash
// path. Safe here because xxhash only reads the bytes and never retains
// them past the call.
func UnsafeB(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func UnsafeS(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

func FourCC(s string) uint32 {
	var b [4]byte
	copy(b[:], s)
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func FourCCString(v uint32) string {
	return fmt.Sprintf("%c%c%c%c", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
