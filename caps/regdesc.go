package caps

// Edge is one precomputed adaptation step (§4.5 "an edge (source_reg,
// src_bundle, dst_bundle, weight, priority, status)").
type Edge struct {
	DstReg      string
	SrcBundle   int
	DstBundle   int
	Weight      int
	Priority    int
	Script      bool // dst register is RegScript: resolver penalizes it
	Meta        bool // dst register is RegMeta: resolver penalizes it
	AllowCyclic bool // dst register tolerates closing a live cycle
}

// RegDesc is one register's precomputed outgoing edges (§4.5 "for each
// register R, a RegDesc is built").
type RegDesc struct {
	Name  string
	Edges []Edge
}
