package clusters

import "github.com/anatomap/server/internal/termgraph"

type validator struct {
	graph  *termgraph.Graph
	oracle FeatureOracle
}

// mapped reports whether a term can carry a marker: it has a feature on
// the map and a position in the hierarchy.
func (v validator) mapped(term string) bool {
	return v.oracle.HasAnatomicalIdentifier(term) && v.graph.Depth(term) >= 0
}

// markerTerm returns the term a marker for term is placed on. Mapped terms
// stand for themselves. Otherwise the ancestors are searched level by level:
// among mapped parents the deepest wins (first seen on ties), and when no
// parent is mapped the search continues from the first parent. Reaching the
// root gives up.
func (v validator) markerTerm(term string) (string, bool) {
	if v.mapped(term) {
		return term, true
	}
	root := v.graph.Root()
	visited := map[string]bool{term: true}
	current := term
	for {
		parents := v.graph.Parents(current)
		if len(parents) == 0 {
			return "", false
		}
		best, bestDepth := "", -1
		for _, p := range parents {
			if p == root || !v.mapped(p) {
				continue
			}
			if d := v.graph.Depth(p); d > bestDepth {
				best, bestDepth = p, d
			}
		}
		if best != "" {
			return best, true
		}
		next := parents[0]
		if next == root || visited[next] {
			return "", false
		}
		visited[next] = true
		current = next
	}
}

// MarkerTerm resolves the marker term for a single term.
func MarkerTerm(term string, graph *termgraph.Graph, oracle FeatureOracle) (string, bool) {
	return validator{graph: graph, oracle: oracle}.markerTerm(term)
}
