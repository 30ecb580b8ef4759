package caps

import (
	"container/heap"

	"github.com/gofilt/gofilt/gferr"
)

// scriptPenalty is added to an edge's cost when its destination register
// is flagged SCRIPT or META (§4.5 "a score penalty for registers marked
// SCRIPT or meta"), so a plain codec/format adapter always outranks a
// scripted one of equal chain length.
const scriptPenalty = 4

const defaultMaxChainLen = 8

// ErrNoChain is returned when resolve_link finds no path, even after the
// relax retry.
var ErrNoChain = gferr.New(gferr.NotSupported, "no capability-adaptation chain found")

// ResolveOpts parameterizes one resolve_link call.
type ResolveOpts struct {
	MaxChainLen int        // 0 uses defaultMaxChainLen
	Blacklist   *TriedSet  // registers this pid already tried and rejected
	Live        *LiveGraph // nil disables cycle avoidance
}

func (o ResolveOpts) maxLen() int {
	if o.MaxChainLen > 0 {
		return o.MaxChainLen
	}
	return defaultMaxChainLen
}

type frontierItem struct {
	reg      string
	cost     int
	priority int
	path     []string
	index    int
}

// frontierHeap is a min-heap ordered by cost, then by descending
// register priority, then by name for a fully deterministic tiebreak
// (SPEC_FULL.md §C.2: "the register whose name sorts first"). Grounded
// on transport/collect.go's container/heap-based stream collector.
type frontierHeap []*frontierItem

func (h frontierHeap) Len() int { return len(h) }
func (h frontierHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].reg < h[j].reg
}
func (h frontierHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *frontierHeap) Push(x any) {
	item := x.(*frontierItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ResolveLink implements §4.5 resolve_link(src_pid, dst_filter): a
// priority-ordered search over the precomputed edge graph from srcReg to
// dstReg, honoring the max chain length, per-pid blacklist, and
// SCRIPT/META score penalty. On failure it retries once with the
// destination's forced_caps (STATIC input caps) ignored.
func (g *Graph) ResolveLink(srcReg, dstReg string, opts ResolveOpts) ([]string, error) {
	if chain, ok := g.search(srcReg, dstReg, opts, false); ok {
		return chain, nil
	}
	if chain, ok := g.search(srcReg, dstReg, opts, true); ok {
		return chain, nil
	}
	return nil, ErrNoChain
}

// NegotiateAdapter reuses ResolveLink for §4.3's swap_pidinst handshake:
// when negotiate_property fires on a live pid, the caller resolves a
// chain from the pid's current producer register toward whichever
// downstream register will accept the concretely desired property value,
// then splices it in via pid.PidInstance.HoldOff/Release.
func (g *Graph) NegotiateAdapter(srcReg, dstReg string, opts ResolveOpts) ([]string, error) {
	return g.ResolveLink(srcReg, dstReg, opts)
}

func (g *Graph) search(srcReg, dstReg string, opts ResolveOpts, relax bool) ([]string, bool) {
	if srcReg == dstReg {
		return nil, true
	}
	maxLen := opts.maxLen()
	visited := make(map[string]int)
	h := &frontierHeap{}
	heap.Init(h)
	heap.Push(h, &frontierItem{reg: srcReg})

	for h.Len() > 0 {
		item := heap.Pop(h).(*frontierItem)
		if item.reg == dstReg {
			return item.path, true
		}
		if best, ok := visited[item.reg]; ok && best <= item.cost {
			continue
		}
		visited[item.reg] = item.cost
		if item.reg != srcReg && g.isExplicitOnly(item.reg) {
			// an ExplicitOnly register may only ever be the resolve_link
			// target itself (checked above), never a chain intermediate.
			continue
		}
		if len(item.path) >= maxLen {
			continue
		}
		desc, ok := g.desc(item.reg, relax)
		if !ok {
			continue
		}
		for _, e := range desc.Edges {
			if opts.Blacklist != nil && opts.Blacklist.Contains(e.DstReg) {
				continue
			}
			if opts.Live != nil && !e.AllowCyclic && opts.Live.WouldCycle(item.reg, e.DstReg) {
				continue
			}
			cost := item.cost + e.Weight
			if e.Script || e.Meta {
				cost += scriptPenalty
			}
			path := make([]string, len(item.path)+1)
			copy(path, item.path)
			path[len(item.path)] = e.DstReg
			heap.Push(h, &frontierItem{reg: e.DstReg, cost: cost, priority: e.Priority, path: path})
		}
	}
	return nil, false
}

// ImplicitScore ranks a candidate (unconnected output, unconnected input)
// pair for implicit-linking mode (§4.5 "scored by subsession/source
// identifiers so sub-sessions don't cross-connect"). A non-zero, mismatched
// subsession id excludes the pair outright; otherwise a matching source id
// is the best possible score. Lower is better.
func ImplicitScore(srcSubsession, dstSubsession uint32, srcSourceID, dstSourceID string) (score int, ok bool) {
	if srcSubsession != 0 && dstSubsession != 0 && srcSubsession != dstSubsession {
		return 0, false
	}
	if srcSourceID != "" && srcSourceID == dstSourceID {
		return 0, true
	}
	return 1, true
}
