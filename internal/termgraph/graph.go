// Package termgraph holds the anatomical term hierarchy of a map.
//
// Edges point from a child term to its parent. Depths are breadth-first
// distances from the root and are computed once when the graph is built;
// the Graph is read-only afterwards and safe for concurrent readers.
package termgraph

import (
	"errors"
	"fmt"

	"github.com/anatomap/server/internal/data/jsondoc"
)

// DefaultRoot is the whole-body term used when a map does not name its own root.
const DefaultRoot = "UBERON:0013702"

// ErrNoRoot is returned when a loaded hierarchy does not contain its root term.
var ErrNoRoot = errors.New("hierarchy does not contain root term")

// Edge is a child to parent relation.
type Edge struct {
	Child  string
	Parent string
}

// Document is the node-link description of a hierarchy.
type Document struct {
	Nodes []NodeDoc `json:"nodes"`
	Links []LinkDoc `json:"links"`
}

// NodeDoc describes one term.
type NodeDoc struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// LinkDoc links a child (source) to a parent (target).
type LinkDoc struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is an immutable term hierarchy.
type Graph struct {
	root     string
	order    []string
	parents  map[string][]string
	children map[string][]string
	labels   map[string]string
	depth    map[string]int
	maxDepth int
}

// Load builds a graph from edges. Terms that cannot be reached from root
// are kept but have no depth.
func Load(root string, edges []Edge) *Graph {
	if root == "" {
		root = DefaultRoot
	}
	g := &Graph{
		root:     root,
		parents:  make(map[string][]string),
		children: make(map[string][]string),
		labels:   make(map[string]string),
		depth:    make(map[string]int),
	}
	seen := make(map[Edge]struct{}, len(edges))
	for _, e := range edges {
		if e.Child == "" || e.Parent == "" || e.Child == e.Parent {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		g.addNode(e.Child)
		g.addNode(e.Parent)
		g.parents[e.Child] = append(g.parents[e.Child], e.Parent)
		g.children[e.Parent] = append(g.children[e.Parent], e.Child)
	}
	g.computeDepths()
	return g
}

// LoadDocument builds a graph from a node-link document.
func LoadDocument(root string, doc *Document) *Graph {
	edges := make([]Edge, 0, len(doc.Links))
	for _, l := range doc.Links {
		edges = append(edges, Edge{Child: l.Source, Parent: l.Target})
	}
	g := Load(root, edges)
	for _, n := range doc.Nodes {
		if n.ID == "" {
			continue
		}
		g.addNode(n.ID)
		if n.Label != "" {
			g.labels[n.ID] = n.Label
		}
	}
	// Nodes listed without links may include the root.
	g.computeDepths()
	return g
}

// LoadFile reads a node-link JSON (or .json.zst) hierarchy.
func LoadFile(root, path string) (*Graph, error) {
	var doc Document
	if err := jsondoc.ReadFile(path, &doc); err != nil {
		return nil, fmt.Errorf("failed to load hierarchy: %w", err)
	}
	g := LoadDocument(root, &doc)
	if !g.HasTerm(g.root) {
		return nil, fmt.Errorf("%w: %s", ErrNoRoot, g.root)
	}
	return g, nil
}

func (g *Graph) addNode(term string) {
	if _, ok := g.parents[term]; ok {
		return
	}
	g.parents[term] = nil
	g.order = append(g.order, term)
}

func (g *Graph) computeDepths() {
	g.depth = make(map[string]int, len(g.order))
	g.maxDepth = 0
	if _, ok := g.parents[g.root]; !ok {
		return
	}
	g.depth[g.root] = 0
	queue := []string{g.root}
	for len(queue) > 0 {
		term := queue[0]
		queue = queue[1:]
		d := g.depth[term]
		if d > g.maxDepth {
			g.maxDepth = d
		}
		for _, child := range g.children[term] {
			if _, done := g.depth[child]; done {
				continue
			}
			g.depth[child] = d + 1
			queue = append(queue, child)
		}
	}
}

// Root returns the root term.
func (g *Graph) Root() string { return g.root }

// Len returns the number of terms.
func (g *Graph) Len() int { return len(g.order) }

// MaxDepth returns the largest depth of any reachable term.
func (g *Graph) MaxDepth() int { return g.maxDepth }

// HasTerm reports whether term is a node of the graph.
func (g *Graph) HasTerm(term string) bool {
	_, ok := g.parents[term]
	return ok
}

// Depth returns the distance from the root, or -1 when term is absent or
// unreachable.
func (g *Graph) Depth(term string) int {
	if d, ok := g.depth[term]; ok {
		return d
	}
	return -1
}

// Parents returns the direct parents of term in load order.
func (g *Graph) Parents(term string) []string {
	return append([]string(nil), g.parents[term]...)
}

// Children returns the direct children of term in load order.
func (g *Graph) Children(term string) []string {
	return append([]string(nil), g.children[term]...)
}

// Label returns the display label of term, if the hierarchy carried one.
func (g *Graph) Label(term string) (string, bool) {
	l, ok := g.labels[term]
	return l, ok
}

// shortestParent returns the first parent one level closer to the root.
func (g *Graph) shortestParent(term string) (string, bool) {
	d := g.Depth(term)
	if d <= 0 {
		return "", false
	}
	for _, p := range g.parents[term] {
		if g.Depth(p) == d-1 {
			return p, true
		}
	}
	return "", false
}

// ConnectedSubgraph returns the subgraph induced by the root, every usable
// term and the shortest ancestor chain from each term to the root. Terms
// without a depth are skipped.
func (g *Graph) ConnectedSubgraph(terms []string) *Subgraph {
	s := newSubgraph(g.root)
	if g.Depth(g.root) == 0 {
		s.addNode(g.root)
	}
	for _, term := range terms {
		if g.Depth(term) < 0 {
			continue
		}
		current := term
		for !s.Has(current) {
			s.addNode(current)
			next, ok := g.shortestParent(current)
			if !ok {
				break
			}
			current = next
		}
	}
	for _, term := range s.nodes {
		for _, p := range g.parents[term] {
			if s.Has(p) {
				s.addEdge(term, p)
			}
		}
	}
	return s
}
