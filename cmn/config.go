// Package cmn carries gofilt's session-wide configuration: scheduler
// sizing, pid buffering defaults, argument-string separators (§4.4, §6),
// and timeouts (§5). Grounded on the teacher's `cmn` read-mostly snapshot
// convention (cmn/rom.go's `Rom` global, swapped atomically so hot paths
// never take a lock to read config).
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	ratomic "sync/atomic"
	"time"

	"github.com/gofilt/gofilt/cmn/atomic"
)

// Separators controls the argument-string grammar (§4.4, §6). Defaults
// match spec.md §6 exactly: args ':', name/value '=', fragment '#', list
// ',', negate '!'. Session-configurable so a URL scheme embedding one of
// these doesn't collide.
type Separators struct {
	Arg    byte // between filter arguments, default ':'
	Value  byte // name=value, default '='
	Frag   byte // '#' introduces a per-pid property assignment
	List   byte // ',' separates list elements
	Negate byte // '!' prefixes a negated boolean
}

func DefaultSeparators() Separators {
	return Separators{Arg: ':', Value: '=', Frag: '#', List: ',', Negate: '!'}
}

// PidBuffers are the three tunables of §4.3's blocking model.
type PidBuffers struct {
	Buffer  time.Duration // playout target
	RBuffer time.Duration // rebuffer trigger
	MBuffer time.Duration // hard max
}

func DefaultPidBuffers() PidBuffers {
	return PidBuffers{
		Buffer:  200 * time.Millisecond,
		RBuffer: 100 * time.Millisecond,
		MBuffer: 2 * time.Second,
	}
}

// Config is the full set of session knobs. A *Config is swapped atomically
// (see Rom below) rather than mutated in place, so concurrent readers never
// take a lock - same contract as the teacher's GCO.Get().
type Config struct {
	Threads          int           // worker thread count; 0 = single-threaded mode (§5)
	MaxSleep         time.Duration // scheduler's timed-task sleep cap (§4.6)
	SessionTimeout   time.Duration // no-progress session abort (§5), default 10s
	MaxChainLength   int           // resolver's max adapter-chain length (§4.5)
	Separators       Separators
	PidBuffers       PidBuffers
	FilterQueueBound int  // §4.6: bound on opportunistic same-filter task execution, default 10
	ImplicitLinking  bool // §4.5 implicit mode, default true
	DisableGraphCache bool // §4.5 precomputed graph cache toggle
}

func DefaultConfig() *Config {
	return &Config{
		Threads:          0,
		MaxSleep:         50 * time.Millisecond,
		SessionTimeout:   10 * time.Second,
		MaxChainLength:   6,
		Separators:       DefaultSeparators(),
		PidBuffers:       DefaultPidBuffers(),
		FilterQueueBound: 10,
		ImplicitLinking:  true,
	}
}

// Rom ("read-mostly") holds the process-wide config snapshot that hot
// scheduler/resolver paths read without locking. Package init sets it to
// DefaultConfig(); Set replaces it.
var Rom romSnapshot

type romSnapshot struct {
	cur atomic.Uint64 // generation counter, bumped on every Set
	c   ratomic.Pointer[Config]
}

func (r *romSnapshot) Set(c *Config) {
	r.c.Store(c)
	r.cur.Add(1)
}

// Get returns the current snapshot. Readers on the hot path (resolver BFS,
// scheduler tick) call this once per operation rather than holding it
// across the operation, so a concurrent Set is always observed promptly.
func (r *romSnapshot) Get() *Config {
	return r.c.Load()
}

func init() { Rom.Set(DefaultConfig()) }
