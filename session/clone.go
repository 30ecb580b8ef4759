package session

import (
	"github.com/gofilt/gofilt/filter"
	"github.com/gofilt/gofilt/gferr"
	"github.com/gofilt/gofilt/pid"
)

// CloneGroup is SPEC_FULL.md's supplemented "filter clone groups" feature:
// N identical instances of a clonable register. ConnectOutput gives every
// clone its own PidInstance off one upstream output pid, so each clone
// receives every packet; NextClone hands the clones out in round-robin
// order.
type CloneGroup struct {
	reg     *filter.Register
	clones  []*filter.Filter
	next    int
}

// CloneFilter instantiates n copies of regName (which must be flagged
// RegClonable) sharing srcArgs, and returns the group. The group is not
// itself connected to anything - call ConnectClones to fan one output
// pid's instances across it.
func (s *Session) CloneFilter(regName, srcArgs string, n int) (*CloneGroup, error) {
	if n <= 0 {
		n = 1
	}
	s.mu.Lock()
	reg, ok := s.registers[regName]
	s.mu.Unlock()
	if !ok {
		return nil, gferr.New(gferr.FilterNotFound, "no such register %q", regName)
	}
	if !reg.IsClonable() {
		return nil, gferr.New(gferr.NotSupported, "register %q is not clonable", regName)
	}

	g := &CloneGroup{reg: reg}
	for i := 0; i < n; i++ {
		f, err := s.AddFilter(regName, srcArgs, "")
		if err != nil {
			return nil, err
		}
		g.clones = append(g.clones, f)
	}
	return g, nil
}

// Len returns the number of clone instances in the group.
func (g *CloneGroup) Len() int { return len(g.clones) }

// Filters returns every clone instance, in round-robin order.
func (g *CloneGroup) Filters() []*filter.Filter {
	return append([]*filter.Filter(nil), g.clones...)
}

// ConnectOutput wires out into every clone of the group: each clone gets
// its own PidInstance off the same OutputPid, through a direct match or
// its own resolved adapter chain. Returns true if any clone was connected.
func (s *Session) ConnectOutput(src *filter.Filter, out *pid.OutputPid, g *CloneGroup) bool {
	ok := false
	for _, c := range g.clones {
		if s.tryConnectTo(src, out, c) {
			ok = true
		}
	}
	return ok
}

// NextClone returns the next clone in round-robin order, for a producer
// that wants to address one specific instance of the group directly
// (e.g. to honor a per-packet affinity hint) rather than broadcasting.
func (g *CloneGroup) NextClone() *filter.Filter {
	if len(g.clones) == 0 {
		return nil
	}
	f := g.clones[g.next%len(g.clones)]
	g.next++
	return f
}
