package session

import (
	"github.com/gofilt/gofilt/caps"
	"github.com/gofilt/gofilt/filter"
	"github.com/gofilt/gofilt/pid"
	"github.com/gofilt/gofilt/prop"
)

// connectNewFilter implements §6's linking rule for a filter that just
// joined the session: it tries to connect its own outputs outward, and
// it gives every already-live filter a chance to connect one of its
// outputs to this new arrival - link resolution never depends on the
// order filters were added in.
func (s *Session) connectNewFilter(f *filter.Filter) {
	s.connectOutputs(f)
	s.connectAsDestination(f)
}

func (s *Session) otherFilters(exclude *filter.Filter) []*filter.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*filter.Filter, 0, len(s.filters))
	for _, other := range s.filters {
		if other != exclude {
			out = append(out, other)
		}
	}
	return out
}

// connectOutputs tries to connect every output pid f currently has to a
// destination: an explicit dst_args candidate, or (implicit mode) any
// other live filter with a compatible input.
func (s *Session) connectOutputs(f *filter.Filter) {
	for _, out := range f.Outputs() {
		s.connectOutput(f, out)
	}
}

// connectAsDestination runs when dst is newly added: scan every other
// live filter's outputs for ones that should now connect to dst. This is
// what lets "instantiate A, then instantiate C naming A as its source"
// (§8 S2) succeed regardless of which filter existed first.
func (s *Session) connectAsDestination(dst *filter.Filter) {
	for _, f := range s.otherFilters(dst) {
		candidates := f.DestCandidates()
		explicit := len(candidates) > 0
		if explicit && !destMatches(candidates, dst) {
			continue
		}
		if !explicit && !s.cfg.ImplicitLinking {
			continue
		}
		for _, out := range f.Outputs() {
			s.tryConnectTo(f, out, dst)
		}
	}
}

func (s *Session) connectOutput(f *filter.Filter, out *pid.OutputPid) {
	candidates := f.DestCandidates()
	explicit := len(candidates) > 0
	if !explicit && !s.cfg.ImplicitLinking {
		return
	}
	for _, dst := range s.otherFilters(f) {
		if explicit && !destMatches(candidates, dst) {
			continue
		}
		s.tryConnectTo(f, out, dst)
	}
}

func destMatches(candidates []string, dst *filter.Filter) bool {
	for _, c := range candidates {
		if c == dst.ID() || c == dst.Register().Name {
			return true
		}
	}
	return false
}

func alreadyConnected(out *pid.OutputPid, dst *filter.Filter) bool {
	for _, inst := range out.Instances() {
		if h, ok := inst.Consumer().(*filter.Filter); ok && h == dst {
			return true
		}
	}
	return false
}

// tryConnectTo attempts a direct bundle match first, falling back to
// resolve_link's adapter-chain search (§4.5) when the two registers
// don't directly match.
func (s *Session) tryConnectTo(f *filter.Filter, out *pid.OutputPid, dst *filter.Filter) bool {
	if alreadyConnected(out, dst) {
		return false
	}
	if s.linkDirect(f, out, dst) {
		return true
	}
	return s.resolveAndConnect(f, out, dst)
}

// linkDirect wires out straight into dst with no intermediate adapter,
// when their register capability bundles already match (§4.5).
func (s *Session) linkDirect(src *filter.Filter, out *pid.OutputPid, dst *filter.Filter) bool {
	if !bundlesMatch(src.Register().Caps, dst.Register().Caps, false) {
		return false
	}
	s.wire(src, out, dst)
	return true
}

func bundlesMatch(srcBundles, dstBundles []caps.Bundle, relax bool) bool {
	for _, sb := range srcBundles {
		for _, db := range dstBundles {
			if sb.Matches(db, relax) {
				return true
			}
		}
	}
	return false
}

// wire performs the actual pid_new/set_property-adjacent bookkeeping of
// a resolved connection: a new PidInstance, the live-graph edge (for
// cycle avoidance on future resolutions), and a configure_pid task
// posted through the scheduler so it runs under the destination's own
// serialization rather than inline here.
func (s *Session) wire(src *filter.Filter, out *pid.OutputPid, dst *filter.Filter) {
	inst := out.Connect(dst, s.cfg.PidBuffers, false)
	dst.AddInput(inst)
	s.live.Connect(src.Register().Name, dst.Register().Name)
	s.sched.PostConfigurePid(dst.Index(), inst, false)
}

// resolveAndConnect implements §4.5 resolve_link end to end: find a
// register-name chain from src's register to dst's, instantiate each
// intermediate as an auto-added filter, and wire the whole chain in
// order. Every failure is recorded as the session's last connect error; a
// ResolveLink failure also adds src's register to dst's blacklist.
func (s *Session) resolveAndConnect(srcF *filter.Filter, out *pid.OutputPid, dstF *filter.Filter) bool {
	if srcF.IsDisabled() || dstF.IsDisabled() {
		// an fs_abort observed before/during resolution wins over completing
		// the chain (§9 Open Question: swap_pidinst vs. simultaneous abort).
		return false
	}
	srcReg := srcF.Register().Name
	dstReg := dstF.Register().Name

	opts := caps.ResolveOpts{
		MaxChainLen: s.cfg.MaxChainLength,
		Blacklist:   s.blacklistFor(dstF.Index()),
		Live:        s.live,
	}
	chain, err := s.registry.Graph().ResolveLink(srcReg, dstReg, opts)
	if err != nil {
		s.blacklistFor(dstF.Index()).Add(srcReg)
		s.setConnectErr(err)
		return false
	}
	if len(chain) == 0 {
		// srcReg == dstReg: already covered by linkDirect in the caller,
		// but handle it here too in case that bundle match is relaxed-only.
		return s.linkDirect(srcF, out, dstF)
	}

	cur, curOut := srcF, out
	for _, regName := range chain[:len(chain)-1] {
		if dstF.IsDisabled() {
			return false
		}
		adapter, aerr := s.addAutoFilter(regName)
		if aerr != nil {
			s.setConnectErr(aerr)
			return false
		}
		s.wire(cur, curOut, adapter)
		outs := adapter.Outputs()
		if len(outs) == 0 {
			// adapter hasn't produced its output pid yet (Initialize may
			// declare it lazily, on first configure_pid); the adapter's
			// own connectOutputs pass will pick up dstF once it does.
			adapter.SetDestCandidates([]string{dstF.ID()})
			return true
		}
		cur, curOut = adapter, outs[0]
	}
	s.wire(cur, curOut, dstF)
	return true
}

// negotiateSweep implements the resolver side of §4.3/§4.5 capability
// re-negotiation (S4): a downstream filter's negotiate_property call that
// couldn't be satisfied in place leaves a pending request on the
// PidInstance; this scans every live filter's inputs for one and splices
// an adapter chain in, via the swap_pidinst handshake, to supply it.
func (s *Session) negotiateSweep() {
	for _, dstF := range s.liveFilters() {
		for _, in := range dstF.Inputs() {
			key4cc, name, desired, ok := in.TakePendingNegotiation()
			if !ok {
				continue
			}
			s.spliceAdapter(dstF, in, key4cc, name, desired)
		}
	}
}

func (s *Session) liveFilters() []*filter.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*filter.Filter, 0, len(s.filters))
	for _, f := range s.filters {
		out = append(out, f)
	}
	return out
}

// spliceAdapter implements §4.3's swap_pidinst handshake: resolve a chain
// from in's producing register to dst's, instantiate it, freeze in so no
// further packets reach dst through the stale path, wire a fresh instance
// onto the chain's tail, and hand the mismatched property value along so
// the new instance's GetProperty still reports what the sink asked for
// until the adapter's own output properties converge.
func (s *Session) spliceAdapter(dstF *filter.Filter, in *pid.PidInstance, key4cc uint32, name string, desired prop.Value) {
	owner, ok := in.Pid().Owner().(*filter.Filter)
	if !ok {
		return
	}
	srcF := owner
	srcReg := srcF.Register().Name
	dstReg := dstF.Register().Name

	opts := caps.ResolveOpts{
		MaxChainLen: s.cfg.MaxChainLength,
		Blacklist:   s.blacklistFor(dstF.Index()),
		Live:        s.live,
	}
	chain, err := s.registry.Graph().NegotiateAdapter(srcReg, dstReg, opts)
	if err != nil || len(chain) == 0 {
		s.setConnectErr(err)
		return
	}

	in.HoldOff()

	cur, curOut := srcF, in.Pid()
	for _, regName := range chain[:len(chain)-1] {
		adapter, aerr := s.addAutoFilter(regName)
		if aerr != nil {
			s.setConnectErr(aerr)
			return
		}
		s.wire(cur, curOut, adapter)
		outs := adapter.Outputs()
		if len(outs) == 0 {
			adapter.SetDestCandidates([]string{dstF.ID()})
			return
		}
		cur, curOut = adapter, outs[0]
	}

	newInst := curOut.Connect(dstF, s.cfg.PidBuffers, false)
	newInst.NegotiateProperty(key4cc, name, desired)
	newInst.HoldOff()
	dstF.AddInput(newInst)
	dstF.RemoveInput(in)
	in.Pid().Disconnect(in)
	s.live.Connect(cur.Register().Name, dstF.Register().Name)
	s.sched.PostConfigurePid(dstF.Index(), newInst, false)
	s.addPendingRelease(newInst, curOut)
}

func (s *Session) blacklistFor(filterIndex int) *caps.TriedSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	bl, ok := s.blacklists[filterIndex]
	if !ok {
		bl = caps.NewTriedSet()
		s.blacklists[filterIndex] = bl
	}
	return bl
}
