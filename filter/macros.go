package filter

import (
	"sync"

	"github.com/gofilt/gofilt/cmn/atomic"
)

// MacroResolver supplies the external-system values behind $GSHARE/$GJS/
// $GLANG/$GUA (§4.4, SPEC_FULL.md §C.5): a session config concern, not a
// filter one, so it's injected rather than hardcoded - grounded on the
// same idea as cmn.Config being a single injected snapshot rather than
// scattered globals.
type MacroResolver interface {
	GShare() string // shared-data directory
	GJS() string    // script search path
	GLang() string  // language/locale
	GUA() string    // user-agent string
}

// gincCounters holds the counters behind $GINC(seed[,step]), one per seed
// string whatever the filter register: incrementing across every instance
// that shares the seed (§4.4).
var gincCounters = struct {
	m map[string]*atomic.Int64
}{m: make(map[string]*atomic.Int64)}

var gincMu sync.Mutex

// GInc implements $GINC(seed[,step]): returns the next value for seed,
// advancing by step (default 1).
func GInc(seed string, step int64) int64 {
	if step == 0 {
		step = 1
	}
	gincMu.Lock()
	c, ok := gincCounters.m[seed]
	if !ok {
		c = &atomic.Int64{}
		gincCounters.m[seed] = c
	}
	gincMu.Unlock()
	return c.Add(step)
}

// ResetGInc clears every $GINC counter - used by tests and by a fresh
// session that must not observe a prior session's sequence.
func ResetGInc() {
	gincMu.Lock()
	gincCounters.m = make(map[string]*atomic.Int64)
	gincMu.Unlock()
}
