package termgraph

// Subgraph is a per-dataset copy of part of a Graph. Attributes set on it
// never touch the shared Graph.
type Subgraph struct {
	root     string
	nodes    []string
	index    map[string]struct{}
	parents  map[string][]string
	children map[string][]string
	attrs    map[string]map[string]interface{}
}

func newSubgraph(root string) *Subgraph {
	return &Subgraph{
		root:     root,
		index:    make(map[string]struct{}),
		parents:  make(map[string][]string),
		children: make(map[string][]string),
		attrs:    make(map[string]map[string]interface{}),
	}
}

func (s *Subgraph) addNode(term string) {
	if _, ok := s.index[term]; ok {
		return
	}
	s.index[term] = struct{}{}
	s.nodes = append(s.nodes, term)
}

func (s *Subgraph) addEdge(child, parent string) {
	s.parents[child] = append(s.parents[child], parent)
	s.children[parent] = append(s.children[parent], child)
}

// Root returns the root term of the parent graph.
func (s *Subgraph) Root() string { return s.root }

// Nodes returns the terms of the subgraph, root first.
func (s *Subgraph) Nodes() []string {
	return append([]string(nil), s.nodes...)
}

// Len returns the number of nodes.
func (s *Subgraph) Len() int { return len(s.nodes) }

// Has reports whether term is in the subgraph.
func (s *Subgraph) Has(term string) bool {
	_, ok := s.index[term]
	return ok
}

// Parents returns the parents of term that are in the subgraph.
func (s *Subgraph) Parents(term string) []string {
	return append([]string(nil), s.parents[term]...)
}

// Children returns the children of term that are in the subgraph.
func (s *Subgraph) Children(term string) []string {
	return append([]string(nil), s.children[term]...)
}

// Degree counts the subgraph edges touching term.
func (s *Subgraph) Degree(term string) int {
	return len(s.parents[term]) + len(s.children[term])
}

// SetAttr stores a value on a node. It is a no-op for terms outside the subgraph.
func (s *Subgraph) SetAttr(term, key string, value interface{}) {
	if !s.Has(term) {
		return
	}
	bag, ok := s.attrs[term]
	if !ok {
		bag = make(map[string]interface{})
		s.attrs[term] = bag
	}
	bag[key] = value
}

// Attr returns a value stored on a node.
func (s *Subgraph) Attr(term, key string) (interface{}, bool) {
	v, ok := s.attrs[term][key]
	return v, ok
}
