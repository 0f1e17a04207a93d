package clusters

import (
	"sort"

	"go.uber.org/zap"

	"github.com/anatomap/server/internal/termgraph"
)

// termsAttr is the subgraph attribute holding the original terms a node represents.
const termsAttr = "terms"

// Cluster is the zoom band of one term of one dataset. Terminal clusters
// sit on the leaves of the dataset subgraph and always end at the maximum
// marker zoom; an ancestor whose band is stretched to that zoom by a child
// is not terminal.
type Cluster struct {
	Term      string `json:"term"`
	DatasetID string `json:"dataset_id"`
	MinZoom   int    `json:"min_zoom"`
	MaxZoom   int    `json:"max_zoom"`
	Terminal  bool   `json:"terminal"`
}

// Substitution records an unmapped term replaced by a mapped ancestor.
type Substitution struct {
	Term       string `json:"term"`
	MarkerTerm string `json:"marker_term"`
}

// Options configures Build.
type Options struct {
	Zoom   ZoomRange
	Logger *zap.Logger
}

// ClusterSet holds the clusters computed for one dataset. It is read-only
// once built.
type ClusterSet struct {
	dataset       Dataset
	zoom          ZoomRange
	subgraph      *termgraph.Subgraph
	clusters      []Cluster
	byTerm        map[string]int
	descendants   map[string][]string
	markerTerms   map[string][]string
	substitutions []Substitution
	dropped       []string
}

// Build validates the dataset terms against the map and computes a zoom
// band for every node of the subgraph connecting them to the root.
func Build(ds Dataset, graph *termgraph.Graph, oracle FeatureOracle, opts Options) *ClusterSet {
	if opts.Zoom == (ZoomRange{}) {
		opts.Zoom = DefaultZoomRange
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("dataset", ds.ID))

	cs := &ClusterSet{
		dataset:     ds,
		zoom:        opts.Zoom,
		byTerm:      make(map[string]int),
		descendants: make(map[string][]string),
		markerTerms: make(map[string][]string),
	}

	v := validator{graph: graph, oracle: oracle}
	represented := make(map[string]map[string]struct{})
	var markerOrder []string
	for _, term := range ds.CleanTerms() {
		marker, ok := v.markerTerm(term)
		if !ok {
			cs.dropped = append(cs.dropped, term)
			logger.Warn("no mapped ancestor for term, skipping", zap.String("term", term))
			continue
		}
		if marker != term {
			cs.substitutions = append(cs.substitutions, Substitution{Term: term, MarkerTerm: marker})
			logger.Info("substituted unmapped term", zap.String("term", term), zap.String("marker_term", marker))
		}
		set, ok := represented[marker]
		if !ok {
			set = make(map[string]struct{})
			represented[marker] = set
			markerOrder = append(markerOrder, marker)
		}
		set[term] = struct{}{}
	}

	cs.subgraph = graph.ConnectedSubgraph(markerOrder)
	for marker, terms := range represented {
		cs.subgraph.SetAttr(marker, termsAttr, terms)
		cs.markerTerms[marker] = sortedKeys(terms)
	}
	if len(markerOrder) == 0 {
		return cs
	}

	cs.assignZooms(graph)
	return cs
}

func (cs *ClusterSet) assignZooms(graph *termgraph.Graph) {
	sg := cs.subgraph
	root := sg.Root()
	nodes := sg.Nodes()

	minZoom := make(map[string]int, len(nodes))
	maxZoom := make(map[string]int, len(nodes))
	desc := make(map[string]map[string]struct{}, len(nodes))
	for _, term := range nodes {
		minZoom[term], maxZoom[term] = cs.zoom.Band(graph.Depth(term), graph.MaxDepth())
		set := make(map[string]struct{})
		if v, ok := sg.Attr(term, termsAttr); ok {
			for t := range v.(map[string]struct{}) {
				set[t] = struct{}{}
			}
		}
		desc[term] = set
	}

	// Terminals are the childless non-root nodes; this covers every
	// degree-one leaf and also leaves reached through several parents.
	var queue []string
	terminal := make(map[string]bool)
	for _, term := range nodes {
		if term != root && len(sg.Children(term)) == 0 {
			maxZoom[term] = cs.zoom.MaxMarkerZoom
			terminal[term] = true
			queue = append(queue, term)
		}
	}

	// Walk upwards until no ancestor changes. A parent's maxZoom only
	// depends on its children's fixed minZoom, while its descendant set can
	// keep growing, so a parent is revisited whenever its set grows.
	visited := make(map[string]bool, len(nodes))
	for len(queue) > 0 {
		term := queue[0]
		queue = queue[1:]
		visited[term] = true
		for _, parent := range sg.Parents(term) {
			if maxZoom[parent] < minZoom[term] {
				maxZoom[parent] = minZoom[term]
			}
			grew := false
			for t := range desc[term] {
				if _, ok := desc[parent][t]; !ok {
					desc[parent][t] = struct{}{}
					grew = true
				}
			}
			if grew || !visited[parent] {
				queue = append(queue, parent)
			}
		}
	}
	if sg.Has(root) {
		minZoom[root] = 0
	}

	for _, term := range nodes {
		cs.byTerm[term] = len(cs.clusters)
		cs.clusters = append(cs.clusters, Cluster{
			Term:      term,
			DatasetID: cs.dataset.ID,
			MinZoom:   minZoom[term],
			MaxZoom:   maxZoom[term],
			Terminal:  terminal[term],
		})
		if len(desc[term]) > 0 {
			cs.descendants[term] = sortedKeys(desc[term])
		}
	}
}

// DatasetID returns the dataset identifier.
func (cs *ClusterSet) DatasetID() string { return cs.dataset.ID }

// Kind returns the dataset kind.
func (cs *ClusterSet) Kind() Kind { return cs.dataset.EffectiveKind() }

// Dataset returns the descriptor the set was built from.
func (cs *ClusterSet) Dataset() Dataset { return cs.dataset }

// Subgraph returns the connected subgraph the clusters were computed on.
func (cs *ClusterSet) Subgraph() *termgraph.Subgraph { return cs.subgraph }

// Clusters returns one cluster per subgraph node, root first.
func (cs *ClusterSet) Clusters() []Cluster {
	return append([]Cluster(nil), cs.clusters...)
}

// Cluster returns the cluster for term.
func (cs *ClusterSet) Cluster(term string) (Cluster, bool) {
	i, ok := cs.byTerm[term]
	if !ok {
		return Cluster{}, false
	}
	return cs.clusters[i], true
}

// Descendants returns the original dataset terms rendered by term.
func (cs *ClusterSet) Descendants(term string) []string {
	return append([]string(nil), cs.descendants[term]...)
}

// DescendantMap returns a copy of the full descendant map.
func (cs *ClusterSet) DescendantMap() map[string][]string {
	out := make(map[string][]string, len(cs.descendants))
	for k, v := range cs.descendants {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// MarkerTerms maps each retained marker term to the original terms it stands for.
func (cs *ClusterSet) MarkerTerms() map[string][]string {
	out := make(map[string][]string, len(cs.markerTerms))
	for k, v := range cs.markerTerms {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Substitutions lists the terms replaced by an ancestor.
func (cs *ClusterSet) Substitutions() []Substitution {
	return append([]Substitution(nil), cs.substitutions...)
}

// Dropped lists the terms that had no mapped ancestor.
func (cs *ClusterSet) Dropped() []string {
	return append([]string(nil), cs.dropped...)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
