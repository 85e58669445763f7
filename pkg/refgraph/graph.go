package refgraph

import (
	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// Stats summarizes a build.
type Stats struct {
	Units        int `json:"units" toon:"units"`
	Declarations int `json:"declarations" toon:"declarations"`
	Pinned       int `json:"pinned" toon:"pinned"`
	CallSites    int `json:"call_sites" toon:"call_sites"`
	Resolved     int `json:"resolved" toon:"resolved"`
	Unresolved   int `json:"unresolved" toon:"unresolved"`
	Ambiguous    int `json:"ambiguous" toon:"ambiguous"`
	Faults       int `json:"faults" toon:"faults"`
}

// Graph maps every declaration to the call sites that resolve to it.
// It is immutable once Build returns and safe for concurrent reads.
type Graph struct {
	rc           *ResolutionContext
	edges        []Edge
	callers      [][]int
	possible     *roaring.Bitmap
	used         *roaring.Bitmap
	conservative bool
	stats        Stats
}

func newGraph(rc *ResolutionContext, conservative bool) *Graph {
	return &Graph{
		rc:           rc,
		callers:      make([][]int, len(rc.Symbols())),
		possible:     roaring.New(),
		conservative: conservative,
	}
}

// addEdge records a resolved call. The target must belong to g's context.
func (g *Graph) addEdge(e Edge) {
	id, _ := g.rc.ID(e.Target)
	g.callers[id] = append(g.callers[id], len(g.edges))
	g.edges = append(g.edges, e)
}

// seal computes the used set once all edges are in.
func (g *Graph) seal() {
	used := roaring.New()
	for id, sym := range g.rc.Symbols() {
		if len(g.callers[id]) > 0 || g.rc.PinReason(sym) != "" {
			used.Add(uint32(id))
		}
	}
	if g.conservative {
		used.Or(g.possible)
	}
	g.used = used
}

// Context returns the resolution context the graph was built with.
func (g *Graph) Context() *ResolutionContext {
	return g.rc
}

// Units returns the analyzed units, ordered by path.
func (g *Graph) Units() []*TranslationUnit {
	return g.rc.Units()
}

// Symbols returns every declaration in ID order.
func (g *Graph) Symbols() []*Symbol {
	return g.rc.Symbols()
}

// Edges returns every resolved edge in unit, then offset order.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// Stats returns build counters.
func (g *Graph) Stats() Stats {
	return g.stats
}

// owns reports whether sym is a handle of this graph.
func (g *Graph) owns(sym *Symbol) bool {
	_, ok := g.rc.ID(sym)
	return ok
}

// PinReason returns why sym is never reported unused, or "".
func (g *Graph) PinReason(sym *Symbol) string {
	if !g.owns(sym) {
		return ""
	}
	return g.rc.PinReason(sym)
}

// Callers returns the call sites that resolved to sym.
func (g *Graph) Callers(sym *Symbol) []CallSite {
	id, ok := g.rc.ID(sym)
	if !ok {
		return nil
	}
	idx := g.callers[id]
	out := make([]CallSite, len(idx))
	for i, e := range idx {
		out[i] = g.edges[e].Call
	}
	return out
}

// IsUsed reports whether sym has a caller, is pinned, or is a candidate of
// an ambiguous call in conservative mode.
func (g *Graph) IsUsed(sym *Symbol) bool {
	id, ok := g.rc.ID(sym)
	return ok && g.used.Contains(id)
}

func (g *Graph) allSet() *roaring.Bitmap {
	all := roaring.New()
	all.AddRange(0, uint64(len(g.rc.Symbols())))
	return all
}

func (g *Graph) symbolsOf(b *roaring.Bitmap) []*Symbol {
	out := make([]*Symbol, 0, b.GetCardinality())
	it := b.Iterator()
	for it.HasNext() {
		out = append(out, g.rc.Symbol(it.Next()))
	}
	return out
}

// Unused returns declarations with no resolved call site, in path/offset
// order. Pinned declarations are never returned.
func (g *Graph) Unused() []*Symbol {
	return g.symbolsOf(roaring.AndNot(g.allSet(), g.used))
}

// UnusedTransitive also returns declarations reachable only from other unused
// declarations, including mutually recursive groups nothing else calls. Roots
// are pinned declarations, callees of call sites outside any declaration and,
// in conservative mode, ambiguous candidates.
func (g *Graph) UnusedTransitive() []*Symbol {
	n := int64(len(g.rc.Symbols()))
	dg := simple.NewDirectedGraph()
	for id := int64(0); id <= n; id++ {
		dg.AddNode(simple.Node(id))
	}
	root := dg.Node(n)

	link := func(from, to int64) {
		if from != to {
			dg.SetEdge(dg.NewEdge(dg.Node(from), dg.Node(to)))
		}
	}
	for id, sym := range g.rc.Symbols() {
		if g.rc.PinReason(sym) != "" {
			link(n, int64(id))
		}
	}
	if g.conservative {
		it := g.possible.Iterator()
		for it.HasNext() {
			link(n, int64(it.Next()))
		}
	}
	for _, e := range g.edges {
		target, _ := g.rc.ID(e.Target)
		caller, ok := g.rc.ID(e.Call.Caller)
		if !ok {
			link(n, int64(target))
			continue
		}
		link(int64(caller), int64(target))
	}

	reachable := roaring.New()
	bf := traverse.BreadthFirst{
		Visit: func(v graph.Node) {
			if v.ID() < n {
				reachable.Add(uint32(v.ID()))
			}
		},
	}
	bf.Walk(dg, root, nil)

	return g.symbolsOf(roaring.AndNot(g.allSet(), reachable))
}
