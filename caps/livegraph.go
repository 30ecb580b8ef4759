package caps

import "sync"

// LiveGraph tracks the currently-instantiated src->dst register links of
// one live pipeline, so the resolver can veto a candidate edge that would
// close a cycle (§4.5 "cycle avoidance"). It is deliberately independent
// of Graph (the precomputed, register-class-level edge set): LiveGraph
// reflects actual instances, which come and go as filters are created and
// torn down.
type LiveGraph struct {
	mu    sync.Mutex
	edges map[string]map[string]bool
}

func NewLiveGraph() *LiveGraph {
	return &LiveGraph{edges: make(map[string]map[string]bool)}
}

func (lg *LiveGraph) Connect(src, dst string) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	m, ok := lg.edges[src]
	if !ok {
		m = make(map[string]bool)
		lg.edges[src] = m
	}
	m[dst] = true
}

func (lg *LiveGraph) Disconnect(src, dst string) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if m, ok := lg.edges[src]; ok {
		delete(m, dst)
	}
}

// WouldCycle reports whether adding src->dst would close a cycle, i.e.
// dst can already reach src through existing live links.
func (lg *LiveGraph) WouldCycle(src, dst string) bool {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if src == dst {
		return true
	}
	seen := map[string]bool{dst: true}
	queue := []string{dst}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == src {
			return true
		}
		for next := range lg.edges[cur] {
			if seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return false
}
