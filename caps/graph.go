package caps

import "sync"

// Graph is the precomputed per-register edge set (§4.5 "graph
// precomputation"). It holds two variants built from the same register
// snapshot: descs (strict bundle matching) and relaxedDescs (dst
// forced_caps ignored), so the resolver's one-shot relax retry doesn't
// need to re-walk every register pair at query time.
type Graph struct {
	mu           sync.RWMutex
	descs        map[string]*RegDesc
	relaxedDescs map[string]*RegDesc
	explicitOnly map[string]bool
}

func newGraph() *Graph {
	return &Graph{descs: map[string]*RegDesc{}, relaxedDescs: map[string]*RegDesc{}}
}

func (g *Graph) build(entries []Entry) {
	strict := buildDescs(entries, false)
	relaxed := buildDescs(entries, true)
	eo := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ExplicitOnly() {
			eo[e.Name()] = true
		}
	}
	g.mu.Lock()
	g.descs = strict
	g.relaxedDescs = relaxed
	g.explicitOnly = eo
	g.mu.Unlock()
}

// isExplicitOnly reports whether reg may only ever be a resolve_link
// target, never an auto-selected chain intermediate (§4.5).
func (g *Graph) isExplicitOnly(reg string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.explicitOnly[reg]
}

func buildDescs(entries []Entry, relax bool) map[string]*RegDesc {
	descs := make(map[string]*RegDesc, len(entries))
	for _, src := range entries {
		desc := &RegDesc{Name: src.Name()}
		for si, sb := range src.Bundles() {
			isOutput := false
			for _, c := range sb {
				isOutput = isOutput || c.IsOutput()
			}
			if !isOutput {
				// only src's OUTPUT bundles originate edges
				continue
			}
			for _, dst := range entries {
				if dst.Name() == src.Name() {
					continue
				}
				for di, db := range dst.Bundles() {
					if !sb.Matches(db, relax) {
						continue
					}
					desc.Edges = append(desc.Edges, Edge{
						DstReg:      dst.Name(),
						SrcBundle:   si,
						DstBundle:   di,
						Weight:      1,
						Priority:    dst.Priority(),
						Script:      dst.IsScript(),
						Meta:        dst.IsMeta(),
						AllowCyclic: dst.AllowCyclic(),
					})
				}
			}
		}
		descs[src.Name()] = desc
	}
	return descs
}

func (g *Graph) desc(reg string, relax bool) (*RegDesc, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m := g.descs
	if relax {
		m = g.relaxedDescs
	}
	d, ok := m[reg]
	return d, ok
}
