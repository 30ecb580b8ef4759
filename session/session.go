// Package session implements §6/§7's session-level surface over filter,
// sched, and caps: a registry of Registers, explicit filter loading,
// direct and resolver-driven pid connection, the per-session no-progress
// watchdog (§5), and the finalize sweep that retires filters once every
// input and output has reached EOS.
//
// Grounded on the teacher's xact/xreg registry (xact/xreg/xreg.go) for
// the register-set-plus-rebuild convention caps.Registry already
// follows, and on xact/qui.go's quiescence-callback idea for the
// all-outputs-EOS/all-inputs-EOS finalize sweep.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package session

import (
	"context"
	"sync"
	"time"

	"github.com/gofilt/gofilt/caps"
	"github.com/gofilt/gofilt/cmn"
	"github.com/gofilt/gofilt/cmn/atomic"
	"github.com/gofilt/gofilt/cmn/cos"
	"github.com/gofilt/gofilt/cmn/mono"
	"github.com/gofilt/gofilt/cmn/nlog"
	"github.com/gofilt/gofilt/filter"
	"github.com/gofilt/gofilt/gferr"
	"github.com/gofilt/gofilt/pid"
	"github.com/gofilt/gofilt/prop"
	"github.com/gofilt/gofilt/sched"
)

// sweepInterval is how often the finalize sweep and watchdog tick.
const sweepInterval = 20 * time.Millisecond

// Session is one filter graph's runtime: registers, the live filter
// arena, the scheduler, and the capability-resolution bookkeeping needed
// to wire new filters together as they're added.
type Session struct {
	cfg *cmn.Config

	registry  *caps.Registry
	sched     *sched.Sched
	res       *prop.Reservoir
	live      *caps.LiveGraph
	resolver  filter.MacroResolver

	mu         sync.Mutex
	registers  map[string]*filter.Register
	filters    map[int]*filter.Filter
	nextIndex  int
	everAdded  bool
	blacklists map[int]*caps.TriedSet // keyed by destination filter index

	errMu          sync.Mutex
	lastConnectErr error
	lastProcessErr error

	wd struct {
		lastActivity  int64
		lastChangedAt int64
	}

	terminated atomic.Bool
	doneCh     chan struct{}
	sweepStop  chan struct{}
	sweepDone  chan struct{}

	releaseMu      sync.Mutex
	pendingRelease []heldRelease
}

// heldRelease tracks one swap_pidinst handshake in flight (§4.3/§4.5): a
// new pid-instance spliced in ahead of a renegotiation, held off until the
// adapter chain feeding it produces its first packet.
type heldRelease struct {
	inst     *pid.PidInstance
	adapter  *pid.OutputPid
	baseline int64
}

// New builds a Session from cfg (cmn.Rom.Get() if nil) and an optional
// macro resolver (a zero Resolver if nil).
func New(cfg *cmn.Config, resolver filter.MacroResolver) *Session {
	if cfg == nil {
		cfg = cmn.Rom.Get()
	}
	if resolver == nil {
		resolver = Resolver{}
	}
	cos.InitIDGen(uint64(time.Now().UnixNano()))
	return &Session{
		cfg:        cfg,
		registry:   caps.NewRegistry(),
		sched:      sched.New(cfg),
		res:        prop.NewReservoir(),
		live:       caps.NewLiveGraph(),
		resolver:   resolver,
		registers:  make(map[string]*filter.Register),
		filters:    make(map[int]*filter.Filter),
		blacklists: make(map[int]*caps.TriedSet),
		doneCh:     make(chan struct{}),
	}
}

// RegisterFilterKind implements add_register: reg becomes available to
// AddFilter and to the resolver as a chain intermediate.
func (s *Session) RegisterFilterKind(reg *filter.Register) {
	s.mu.Lock()
	s.registers[reg.Name] = reg
	s.mu.Unlock()
	s.registry.AddRegister(regEntry{reg})
}

// UnregisterFilterKind implements remove_register.
func (s *Session) UnregisterFilterKind(name string) {
	s.mu.Lock()
	delete(s.registers, name)
	s.mu.Unlock()
	s.registry.RemoveRegister(name)
}

// Start launches the scheduler's worker pool plus the session's own
// finalize/watchdog sweep loop.
func (s *Session) Start(ctx context.Context) {
	s.sched.Start(ctx)
	s.sweepStop = make(chan struct{})
	s.sweepDone = make(chan struct{})
	go s.sweepLoop(ctx)
}

// Stop winds the sweep loop and the scheduler down, in that order.
func (s *Session) Stop() error {
	if s.sweepStop != nil {
		select {
		case <-s.sweepStop:
		default:
			close(s.sweepStop)
		}
		<-s.sweepDone
	}
	return s.sched.Stop()
}

// Done returns a channel closed once every filter has finalized (§8 S1:
// "the session terminates").
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Registry exposes the capability registry/graph, mainly for tests.
func (s *Session) Registry() *caps.Registry { return s.registry }

// Reservoir returns the session-wide property-entry reservoir (§4.1):
// every filter's Initialize callback should build its output pids'
// property maps from this one instance rather than allocating its own.
func (s *Session) Reservoir() *prop.Reservoir { return s.res }

// Filter looks up a live filter by index.
func (s *Session) Filter(index int) (*filter.Filter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.filters[index]
	return f, ok
}

// AddFilter implements §6's filter_new entry point: instantiate regName
// with srcArgs/dstArgs, register it with the scheduler, kick off its
// first Process, and resolve every destination dstArgs named plus (in
// implicit mode) any other matching filter.
func (s *Session) AddFilter(regName, srcArgs, dstArgs string) (*filter.Filter, error) {
	s.mu.Lock()
	reg, ok := s.registers[regName]
	if !ok {
		s.mu.Unlock()
		return nil, gferr.New(gferr.FilterNotFound, "no such register %q", regName)
	}
	idx := s.nextIndex
	s.nextIndex++
	s.mu.Unlock()

	f, err := filter.New(idx, reg, s.sched, srcArgs, dstArgs, s.resolver, s.cfg.Separators)
	if err != nil {
		s.setConnectErr(err)
		return nil, err
	}
	if dstArgs != "" {
		f.SetDestCandidates(splitDest(dstArgs, s.cfg.Separators))
	}

	s.mu.Lock()
	s.filters[idx] = f
	s.everAdded = true
	s.mu.Unlock()
	s.sched.Add(f)
	s.sched.Reschedule(f.Index())

	s.connectNewFilter(f)
	return f, nil
}

// addAutoFilter instantiates a resolver-chosen chain intermediate with no
// arguments of its own (§4.5 "a filter inserted to adapt capabilities").
func (s *Session) addAutoFilter(regName string) (*filter.Filter, error) {
	s.mu.Lock()
	reg, ok := s.registers[regName]
	if !ok {
		s.mu.Unlock()
		return nil, gferr.New(gferr.FilterNotFound, "resolver: no such register %q", regName)
	}
	idx := s.nextIndex
	s.nextIndex++
	s.mu.Unlock()

	f, err := filter.New(idx, reg, s.sched, "", "", s.resolver, s.cfg.Separators)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.filters[idx] = f
	s.everAdded = true
	s.mu.Unlock()
	s.sched.Add(f)
	s.sched.Reschedule(f.Index())
	return f, nil
}

// RemoveFilter implements §4.4's teardown path outside the normal
// finalize sweep - e.g. an explicit user-driven removal.
func (s *Session) RemoveFilter(index int) {
	s.mu.Lock()
	delete(s.filters, index)
	delete(s.blacklists, index)
	s.mu.Unlock()
	s.sched.Remove(index)
}

// Abort implements §4.6 fs_abort for one filter. NONE and FAST both stop
// the target filter itself immediately and EOS its outputs (§8 invariant
// "after fs_abort(NONE) returns, no further process call is made", and S6:
// an explicit abort(FAST) on a source must keep its next process from
// running and show its outputs EOS within one tick); only FULL leaves the
// filter to drain to its own natural EOS.
func (s *Session) Abort(index int, policy sched.FlushPolicy) {
	s.sched.Abort(index, policy)
	if policy == sched.FlushFull {
		return
	}
	if f, ok := s.Filter(index); ok {
		f.Disable()
		for _, out := range f.Outputs() {
			out.SetEOS()
		}
	}
}

// AbortAll forwards policy to every live filter - used by the session
// timeout watchdog and available for an explicit whole-graph abort.
func (s *Session) AbortAll(policy sched.FlushPolicy) {
	s.mu.Lock()
	idxs := make([]int, 0, len(s.filters))
	for idx := range s.filters {
		idxs = append(idxs, idx)
	}
	s.mu.Unlock()
	for _, idx := range idxs {
		s.sched.Abort(idx, policy)
	}
}

// LastConnectError returns and clears the most recent link-resolution
// failure (§7: "read-and-clear").
func (s *Session) LastConnectError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := s.lastConnectErr
	s.lastConnectErr = nil
	return err
}

// LastProcessError returns and clears the most recent session-level
// process failure (watchdog timeout, forced disable propagation).
func (s *Session) LastProcessError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := s.lastProcessErr
	s.lastProcessErr = nil
	return err
}

func (s *Session) setConnectErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	s.lastConnectErr = err
	s.errMu.Unlock()
	nlog.Warningf("session: connect error: %v", err)
}

func (s *Session) setProcessErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	s.lastProcessErr = err
	s.errMu.Unlock()
	nlog.Errorf("session: %v", err)
}

func (s *Session) sweepLoop(ctx context.Context) {
	defer close(s.sweepDone)
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.sweepStop:
			return
		case <-t.C:
		}
		s.finalizeSweep()
		s.negotiateSweep()
		s.releaseSweep()
		s.checkDone()
		s.checkWatchdog()
	}
}

// finalizeSweep implements the §4.3/§4.4 lifecycle rule: a filter whose
// every input and output has reached EOS (or that was forcibly disabled
// by the health check) finalizes and is retired from the scheduler.
func (s *Session) finalizeSweep() {
	s.mu.Lock()
	candidates := make([]*filter.Filter, 0, len(s.filters))
	for _, f := range s.filters {
		candidates = append(candidates, f)
	}
	s.mu.Unlock()

	for _, f := range candidates {
		if !f.IsDisabled() && !f.ShouldFinalize() {
			continue
		}
		f.Finalize()
		s.sched.Remove(f.Index())
		s.mu.Lock()
		delete(s.filters, f.Index())
		delete(s.blacklists, f.Index())
		s.mu.Unlock()
	}
}

// addPendingRelease records a swap_pidinst handshake in flight, for
// releaseSweep to complete once the adapter has produced a packet.
func (s *Session) addPendingRelease(inst *pid.PidInstance, adapter *pid.OutputPid) {
	s.releaseMu.Lock()
	s.pendingRelease = append(s.pendingRelease, heldRelease{inst: inst, adapter: adapter, baseline: adapter.SentCount()})
	s.releaseMu.Unlock()
}

// releaseSweep implements the consumer side of the §4.3 swap_pidinst
// handshake: once the adapter chain spliced in by negotiateSweep has sent
// its first packet (SentCount advanced past the recorded baseline), the
// frozen destination instance resumes.
func (s *Session) releaseSweep() {
	s.releaseMu.Lock()
	pending := s.pendingRelease
	s.pendingRelease = nil
	s.releaseMu.Unlock()

	var still []heldRelease
	for _, hr := range pending {
		if hr.adapter.SentCount() > hr.baseline {
			hr.inst.Release()
			continue
		}
		still = append(still, hr)
	}
	if still != nil {
		s.releaseMu.Lock()
		s.pendingRelease = append(still, s.pendingRelease...)
		s.releaseMu.Unlock()
	}
}

func (s *Session) checkDone() {
	s.mu.Lock()
	empty := s.everAdded && len(s.filters) == 0
	s.mu.Unlock()
	if empty && s.terminated.CAS(false, true) {
		close(s.doneCh)
	}
}

// checkWatchdog implements §5's per-session timeout: if sched reports no
// Process attempts across an entire SessionTimeout window while filters
// are still live, the session aborts every filter with FlushFast.
func (s *Session) checkWatchdog() {
	s.mu.Lock()
	n := len(s.filters)
	s.mu.Unlock()

	cur := s.sched.Activity()
	now := mono.NanoTime()
	if n == 0 || cur != s.wd.lastActivity || s.wd.lastChangedAt == 0 {
		s.wd.lastActivity = cur
		s.wd.lastChangedAt = now
		return
	}
	timeout := s.cfg.SessionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if mono.Since(s.wd.lastChangedAt) > timeout {
		s.setProcessErr(gferr.New(gferr.ServiceError, "session timed out: no task progress for %s", timeout))
		s.AbortAll(sched.FlushFast)
		s.wd.lastChangedAt = now // avoid re-tripping every subsequent tick
	}
}

// splitDest splits a dst_args string into candidate filter IDs/register
// names on sep.Arg, the same separator ParseArgString tokenizes on.
func splitDest(dstArgs string, sep cmn.Separators) []string {
	var out []string
	start := 0
	for i := 0; i < len(dstArgs); i++ {
		if dstArgs[i] == sep.Arg {
			if tok := dstArgs[start:i]; tok != "" {
				out = append(out, tok)
			}
			start = i + 1
		}
	}
	if tok := dstArgs[start:]; tok != "" {
		out = append(out, tok)
	}
	return out
}
