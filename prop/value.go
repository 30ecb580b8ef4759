// Package prop implements the filter session's property system (§4.1):
// a typed sum-type Value and a hash-indexed, reference-counted Map.
//
// Grounded on the teacher's cmn/objattrs.go (a typed attribute bag with a
// custom-metadata map and clone-on-write semantics) for the map's general
// shape, and on xact/xreg/xreg.go's `entries` struct (active/roActive/all
// snapshots guarded by a single mutex) for the "publish immutable snapshot,
// old readers keep their reference" pattern reused here for property-map
// versioning (§3: "immutable-once-published and reference counted").
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package prop

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the property value's type tag (§3 Property: "Every value carries
// its type tag").
type Kind int

const (
	KindInvalid Kind = iota
	KindI32
	KindU32
	KindI64
	KindU64
	KindFloat
	KindDouble
	KindBool
	KindFrac32 // 32/32 fraction
	KindFrac64 // 64/64 fraction
	KindVec2I
	KindVec3I
	KindVec4I
	KindVec2F
	KindVec3F
	KindVec4F
	KindString
	KindData // owned byte buffer
	KindPointer
	KindStringList
	KindIntList
	KindFourCC
	KindPixFmt
	KindSampleFmt
	KindColorPrimaries
	KindColorTransfer
	KindColorMatrix
)

type Frac struct{ Num, Den int64 }

type Vec2I struct{ X, Y int64 }
type Vec3I struct{ X, Y, Z int64 }
type Vec4I struct{ X, Y, Z, W int64 }
type Vec2F struct{ X, Y float64 }
type Vec3F struct{ X, Y, Z float64 }
type Vec4F struct{ X, Y, Z, W float64 }

// Value is a tagged union. Only the field matching Kind is meaningful;
// Data/StrList/IntList are the only heap-allocated payloads and are what
// the reservoir (§4.1 "Entry reuse") recycles.
type Value struct {
	Kind Kind

	i   int64
	f   float64
	b   bool
	fr  Frac
	v2i Vec2I
	v3i Vec3I
	v4i Vec4I
	v2f Vec2F
	v3f Vec3F
	v4f Vec4F
	s   string

	Data    []byte
	StrList []string
	IntList []int64
}

func I32(v int32) Value  { return Value{Kind: KindI32, i: int64(v)} }
func U32(v uint32) Value { return Value{Kind: KindU32, i: int64(v)} }
func I64(v int64) Value  { return Value{Kind: KindI64, i: v} }
func U64(v uint64) Value { return Value{Kind: KindU64, i: int64(v)} }
func Float(v float32) Value { return Value{Kind: KindFloat, f: float64(v)} }
func Double(v float64) Value { return Value{Kind: KindDouble, f: v} }
func Bool(v bool) Value  { return Value{Kind: KindBool, b: v} }
func FracVal(num, den int64, wide bool) Value {
	k := KindFrac32
	if wide {
		k = KindFrac64
	}
	return Value{Kind: k, fr: Frac{Num: num, Den: den}}
}
func String(s string) Value     { return Value{Kind: KindString, s: s} }
func DataVal(b []byte) Value    { return Value{Kind: KindData, Data: b} }
func Pointer(p uintptr) Value   { return Value{Kind: KindPointer, i: int64(p)} }
func StringList(l []string) Value { return Value{Kind: KindStringList, StrList: l} }
func IntList(l []int64) Value   { return Value{Kind: KindIntList, IntList: l} }
func FourCC(v uint32) Value     { return Value{Kind: KindFourCC, i: int64(v)} }
func Vec2IVal(x, y int64) Value { return Value{Kind: KindVec2I, v2i: Vec2I{x, y}} }
func Vec3IVal(x, y, z int64) Value { return Value{Kind: KindVec3I, v3i: Vec3I{x, y, z}} }
func Vec4IVal(x, y, z, w int64) Value { return Value{Kind: KindVec4I, v4i: Vec4I{x, y, z, w}} }
func Vec2FVal(x, y float64) Value { return Value{Kind: KindVec2F, v2f: Vec2F{x, y}} }
func Vec3FVal(x, y, z float64) Value { return Value{Kind: KindVec3F, v3f: Vec3F{x, y, z}} }
func Vec4FVal(x, y, z, w float64) Value { return Value{Kind: KindVec4F, v4f: Vec4F{x, y, z, w}} }

func (v Value) AsI64() int64     { return v.i }
func (v Value) AsU32() uint32    { return uint32(v.i) }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsBool() bool     { return v.b }
func (v Value) AsFrac() Frac     { return v.fr }
func (v Value) AsString() string { return v.s }
func (v Value) AsVec2I() Vec2I   { return v.v2i }
func (v Value) AsVec3I() Vec3I   { return v.v3i }
func (v Value) AsVec4I() Vec4I   { return v.v4i }
func (v Value) AsVec2F() Vec2F   { return v.v2f }
func (v Value) AsVec3F() Vec3F   { return v.v3f }
func (v Value) AsVec4F() Vec4F   { return v.v4f }

func (k Kind) IsList() bool {
	return k == KindStringList || k == KindIntList
}

func (k Kind) IsNumeric() bool {
	switch k {
	case KindI32, KindU32, KindI64, KindU64, KindFloat, KindDouble:
		return true
	}
	return false
}

// Equal implements §4.1 equal(a,b): wildcard "*" on strings matches any;
// "|"-separated alternates match if any element matches; list-typed values
// compare element-wise.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindString:
		return equalString(a.s, b.s)
	case KindStringList:
		if len(a.StrList) != len(b.StrList) {
			return false
		}
		for i := range a.StrList {
			if !equalString(a.StrList[i], b.StrList[i]) {
				return false
			}
		}
		return true
	case KindIntList:
		if len(a.IntList) != len(b.IntList) {
			return false
		}
		for i := range a.IntList {
			if a.IntList[i] != b.IntList[i] {
				return false
			}
		}
		return true
	case KindData:
		return string(a.Data) == string(b.Data)
	case KindFrac32, KindFrac64:
		return a.fr == b.fr
	case KindVec2I:
		return a.v2i == b.v2i
	case KindVec3I:
		return a.v3i == b.v3i
	case KindVec4I:
		return a.v4i == b.v4i
	case KindVec2F:
		return a.v2f == b.v2f
	case KindVec3F:
		return a.v3f == b.v3f
	case KindVec4F:
		return a.v4f == b.v4f
	case KindFloat, KindDouble:
		return a.f == b.f
	case KindBool:
		return a.b == b.b
	default:
		return a.i == b.i
	}
}

// equalString handles the "*" wildcard and "|" alternates for string-typed
// comparisons (§4.1).
func equalString(want, have string) bool {
	if want == "*" || have == "*" {
		return true
	}
	if strings.Contains(want, "|") {
		for _, alt := range strings.Split(want, "|") {
			if alt == have {
				return true
			}
		}
		return false
	}
	if strings.Contains(have, "|") {
		for _, alt := range strings.Split(have, "|") {
			if alt == want {
				return true
			}
		}
		return false
	}
	return want == have
}

// Dump implements §4.1 dump(value, fmt_flags) -> text. listSep is the
// separator between list elements ("," when empty); JSON rendering
// lives in dump_json.go (wired to json-iterator per SPEC_FULL.md §B).
func Dump(v Value, listSep string) string {
	if listSep == "" {
		listSep = ","
	}
	switch v.Kind {
	case KindI32, KindU32, KindI64, KindU64, KindPointer, KindFourCC:
		return strconv.FormatInt(v.i, 10)
	case KindFloat, KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindFrac32, KindFrac64:
		return fmt.Sprintf("%d/%d", v.fr.Num, v.fr.Den)
	case KindVec2I:
		return fmt.Sprintf("%dx%d", v.v2i.X, v.v2i.Y)
	case KindVec3I:
		return fmt.Sprintf("%dx%dx%d", v.v3i.X, v.v3i.Y, v.v3i.Z)
	case KindVec4I:
		return fmt.Sprintf("%dx%dx%dx%d", v.v4i.X, v.v4i.Y, v.v4i.Z, v.v4i.W)
	case KindVec2F:
		return fmt.Sprintf("%gx%g", v.v2f.X, v.v2f.Y)
	case KindVec3F:
		return fmt.Sprintf("%gx%gx%g", v.v3f.X, v.v3f.Y, v.v3f.Z)
	case KindVec4F:
		return fmt.Sprintf("%gx%gx%gx%g", v.v4f.X, v.v4f.Y, v.v4f.Z, v.v4f.W)
	case KindString:
		return v.s
	case KindData:
		return fmt.Sprintf("0x%x", v.Data)
	case KindStringList:
		return strings.Join(v.StrList, listSep)
	case KindIntList:
		parts := make([]string, len(v.IntList))
		for i, n := range v.IntList {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return strings.Join(parts, listSep)
	default:
		return ""
	}
}
