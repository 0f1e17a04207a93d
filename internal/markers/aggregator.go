// Package markers merges the cluster sets of all loaded datasets into the
// per-term, per-zoom marker state consumed by the map.
//
// An Aggregator is not safe for concurrent mutation; callers serialise
// add/remove/clear themselves.
package markers

import (
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anatomap/server/internal/clusters"
	"github.com/anatomap/server/internal/termgraph"
)

// ErrUnknownDataset is returned when removing a dataset that is not loaded.
var ErrUnknownDataset = errors.New("dataset not loaded")

// FeatureSource is the map feature collaborator.
type FeatureSource interface {
	clusters.FeatureOracle
	Label(term string) (string, bool)
}

// Config contains aggregator configuration.
type Config struct {
	Graph    *termgraph.Graph
	Features FeatureSource
	Zoom     clusters.ZoomRange
	Logger   *zap.Logger
}

// MarkerTerm is an original dataset term shown under a marker.
type MarkerTerm struct {
	Term  string        `json:"term"`
	Label string        `json:"label"`
	Kind  clusters.Kind `json:"kind"`
}

// MarkerPoint is the derived marker state of one term across all zooms.
type MarkerPoint struct {
	Term       string   `json:"term"`
	Label      string   `json:"label"`
	FeatureIDs []string `json:"feature_ids"`
	ZoomCounts []int    `json:"zoom_counts"`
	Multiscale []bool   `json:"multiscale"`
	MinZoom    int      `json:"min_zoom"`
	MaxZoom    int      `json:"max_zoom"`
}

// DatasetSummary describes a loaded dataset.
type DatasetSummary struct {
	ID            string                  `json:"id"`
	Kind          clusters.Kind           `json:"kind"`
	MarkerTerms   []string                `json:"marker_terms"`
	Substitutions []clusters.Substitution `json:"substitutions,omitempty"`
	Dropped       []string                `json:"dropped,omitempty"`
}

// zoomCells holds, per zoom level, the datasets present at one term.
type zoomCells struct {
	datasets   []map[string]struct{}
	multiscale []bool
}

// Aggregator owns the aggregate marker state of one map.
type Aggregator struct {
	cfg    Config
	logger *zap.Logger

	sets  map[string]*clusters.ClusterSet
	order []string

	cells           map[string]*zoomCells
	datasetFeatures map[string]map[string]struct{}

	// derived on every mutation
	index  map[string][][]string
	points []MarkerPoint

	zoom int
}

// New creates an empty aggregator. A zero zoom range selects
// clusters.DefaultZoomRange; any other range must pass ZoomRange.Validate.
func New(cfg Config) *Aggregator {
	if cfg.Zoom == (clusters.ZoomRange{}) {
		cfg.Zoom = clusters.DefaultZoomRange
	}
	if err := cfg.Zoom.Validate(); err != nil {
		panic("markers: " + err.Error())
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{cfg: cfg, logger: logger}
	a.reset()
	return a
}

func (a *Aggregator) reset() {
	a.sets = make(map[string]*clusters.ClusterSet)
	a.order = nil
	a.cells = make(map[string]*zoomCells)
	a.datasetFeatures = make(map[string]map[string]struct{})
	a.index = make(map[string][][]string)
	a.points = nil
}

// MaxZoom is the highest zoom level tracked.
func (a *Aggregator) MaxZoom() int { return a.cfg.Zoom.MaxMarkerZoom }

// ZoomRange returns the marker zoom range in use.
func (a *Aggregator) ZoomRange() clusters.ZoomRange { return a.cfg.Zoom }

// AddDatasetMarkers builds a cluster set for every dataset with terms and
// merges it in. A dataset whose id is already loaded replaces the old one.
// Cluster sets are built concurrently; the shared graph is only read.
func (a *Aggregator) AddDatasetMarkers(datasets []clusters.Dataset) []*clusters.ClusterSet {
	built := make([]*clusters.ClusterSet, len(datasets))
	var g errgroup.Group
	for i, ds := range datasets {
		if ds.ID == "" || len(ds.CleanTerms()) == 0 {
			continue
		}
		g.Go(func() error {
			built[i] = clusters.Build(ds, a.cfg.Graph, a.cfg.Features, clusters.Options{
				Zoom:   a.cfg.Zoom,
				Logger: a.logger,
			})
			return nil
		})
	}
	_ = g.Wait()

	added := make([]*clusters.ClusterSet, 0, len(built))
	for _, cs := range built {
		if cs == nil {
			continue
		}
		if _, ok := a.sets[cs.DatasetID()]; ok {
			a.remove(cs.DatasetID())
		}
		a.merge(cs)
		added = append(added, cs)
	}
	a.rebuild()
	return added
}

func (a *Aggregator) merge(cs *clusters.ClusterSet) {
	id := cs.DatasetID()
	multiscale := cs.Kind() == clusters.KindMultiscale
	a.sets[id] = cs
	a.order = append(a.order, id)

	for _, c := range cs.Clusters() {
		cells := a.cellsFor(c.Term)
		for z := c.MinZoom; z < c.MaxZoom; z++ {
			cells.add(z, id, multiscale)
		}
		if !c.Terminal {
			continue
		}
		cells.add(a.cfg.Zoom.MaxMarkerZoom, id, multiscale)
		ids := a.cfg.Features.ModelFeatureIDs(c.Term)
		if len(ids) == 0 {
			continue
		}
		set, ok := a.datasetFeatures[id]
		if !ok {
			set = make(map[string]struct{})
			a.datasetFeatures[id] = set
		}
		for _, fid := range ids {
			set[fid] = struct{}{}
		}
	}
}

func (a *Aggregator) cellsFor(term string) *zoomCells {
	cells, ok := a.cells[term]
	if !ok {
		n := a.cfg.Zoom.MaxMarkerZoom + 1
		cells = &zoomCells{
			datasets:   make([]map[string]struct{}, n),
			multiscale: make([]bool, n),
		}
		a.cells[term] = cells
	}
	return cells
}

func (c *zoomCells) add(zoom int, id string, multiscale bool) {
	if zoom < 0 || zoom >= len(c.datasets) {
		return
	}
	if c.datasets[zoom] == nil {
		c.datasets[zoom] = make(map[string]struct{})
	}
	c.datasets[zoom][id] = struct{}{}
	c.multiscale[zoom] = c.multiscale[zoom] || multiscale
}

func (c *zoomCells) empty() bool {
	for _, s := range c.datasets {
		if len(s) > 0 {
			return false
		}
	}
	return true
}

// RemoveDatasetMarker removes a dataset's contribution.
func (a *Aggregator) RemoveDatasetMarker(id string) error {
	if _, ok := a.sets[id]; !ok {
		return ErrUnknownDataset
	}
	a.remove(id)
	a.rebuild()
	return nil
}

func (a *Aggregator) remove(id string) {
	cs := a.sets[id]
	delete(a.sets, id)
	delete(a.datasetFeatures, id)
	for i, other := range a.order {
		if other == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}

	for _, c := range cs.Clusters() {
		cells, ok := a.cells[c.Term]
		if !ok {
			continue
		}
		for z, set := range cells.datasets {
			if _, present := set[id]; !present {
				continue
			}
			delete(set, id)
			cells.multiscale[z] = a.anyMultiscale(set)
			if len(set) == 0 {
				cells.datasets[z] = nil
			}
		}
		if cells.empty() {
			delete(a.cells, c.Term)
		}
	}
}

func (a *Aggregator) anyMultiscale(ids map[string]struct{}) bool {
	for id := range ids {
		if cs, ok := a.sets[id]; ok && cs.Kind() == clusters.KindMultiscale {
			return true
		}
	}
	return false
}

// ClearDatasetMarkers drops every dataset.
func (a *Aggregator) ClearDatasetMarkers() {
	a.reset()
}

// rebuild recomputes the sorted per-cell dataset ids and the marker points.
func (a *Aggregator) rebuild() {
	start := time.Now()
	n := a.cfg.Zoom.MaxMarkerZoom + 1
	a.index = make(map[string][][]string, len(a.cells))
	a.points = make([]MarkerPoint, 0, len(a.cells))

	terms := make([]string, 0, len(a.cells))
	for term := range a.cells {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	for _, term := range terms {
		cells := a.cells[term]
		ids := make([][]string, n)
		p := MarkerPoint{
			Term:       term,
			Label:      a.label(term),
			FeatureIDs: a.cfg.Features.ModelFeatureIDs(term),
			ZoomCounts: make([]int, n),
			Multiscale: append([]bool(nil), cells.multiscale...),
			MinZoom:    -1,
		}
		for z, set := range cells.datasets {
			if len(set) == 0 {
				continue
			}
			ids[z] = sortedIDs(set)
			p.ZoomCounts[z] = len(set)
			if p.MinZoom < 0 {
				p.MinZoom = z
			}
			p.MaxZoom = z + 1
		}
		a.index[term] = ids
		a.points = append(a.points, p)
	}
	a.logger.Debug("rebuilt marker points",
		zap.Int("terms", len(a.points)),
		zap.Int("datasets", len(a.sets)),
		zap.Duration("elapsed", time.Since(start)))
}

func (a *Aggregator) label(term string) string {
	if l, ok := a.cfg.Features.Label(term); ok && l != "" {
		return l
	}
	if a.cfg.Graph != nil {
		if l, ok := a.cfg.Graph.Label(term); ok && l != "" {
			return l
		}
	}
	return term
}

// clampZoom maps an integer zoom into the tracked range. Negative zooms
// are invalid.
func (a *Aggregator) clampZoom(zoom int) (int, bool) {
	if zoom < 0 {
		return 0, false
	}
	if zoom > a.cfg.Zoom.MaxMarkerZoom {
		zoom = a.cfg.Zoom.MaxMarkerZoom
	}
	return zoom, true
}

// FloorZoom floors a fractional zoom and clamps it to [0, maxZoom]. NaN
// and negative zooms are invalid.
func FloorZoom(zoom float64, maxZoom int) (int, bool) {
	if math.IsNaN(zoom) || zoom < 0 {
		return 0, false
	}
	if zoom >= float64(maxZoom) {
		return maxZoom, true
	}
	return int(math.Floor(zoom)), true
}

// SetZoom records the map's current zoom level.
func (a *Aggregator) SetZoom(zoom float64) {
	z, ok := FloorZoom(zoom, a.cfg.Zoom.MaxMarkerZoom)
	if !ok {
		z = 0
	}
	a.zoom = z
}

// Zoom returns the current integer zoom level.
func (a *Aggregator) Zoom() int { return a.zoom }

// DatasetIDs returns the datasets present at term and zoom.
func (a *Aggregator) DatasetIDs(term string, zoom int) []string {
	z, ok := a.clampZoom(zoom)
	if !ok {
		return nil
	}
	ids := a.index[term]
	if ids == nil {
		return nil
	}
	return append([]string(nil), ids[z]...)
}

// MarkerTerms lists the original terms represented under term at the
// current zoom.
func (a *Aggregator) MarkerTerms(term string) []MarkerTerm {
	return a.MarkerTermsAt(term, a.zoom)
}

// MarkerTermsAt lists the original terms represented under term at zoom.
// A term contributed by several datasets is multiscale if any of them is.
func (a *Aggregator) MarkerTermsAt(term string, zoom int) []MarkerTerm {
	found := make(map[string]clusters.Kind)
	for _, id := range a.DatasetIDs(term, zoom) {
		cs := a.sets[id]
		for _, t := range cs.Descendants(term) {
			if found[t] != clusters.KindMultiscale {
				found[t] = cs.Kind()
			}
		}
	}
	out := make([]MarkerTerm, 0, len(found))
	for t, kind := range found {
		out = append(out, MarkerTerm{Term: t, Label: a.label(t), Kind: kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out
}

// MarkerPoints returns the derived marker state, ordered by term.
func (a *Aggregator) MarkerPoints() []MarkerPoint {
	return append([]MarkerPoint(nil), a.points...)
}

// ZoomCounts returns the number of datasets at term for every zoom.
func (a *Aggregator) ZoomCounts(term string) []int {
	counts := make([]int, a.cfg.Zoom.MaxMarkerZoom+1)
	for z, ids := range a.index[term] {
		counts[z] = len(ids)
	}
	return counts
}

// Multiscale reports whether a multiscale dataset is present at term and zoom.
func (a *Aggregator) Multiscale(term string, zoom int) bool {
	z, ok := a.clampZoom(zoom)
	if !ok {
		return false
	}
	cells, found := a.cells[term]
	return found && cells.multiscale[z]
}

// DatasetFeatureIDs returns the features registered by a dataset's terminal clusters.
func (a *Aggregator) DatasetFeatureIDs(id string) []string {
	return sortedIDs(a.datasetFeatures[id])
}

// ClusterSet returns the cluster set of a loaded dataset.
func (a *Aggregator) ClusterSet(id string) (*clusters.ClusterSet, bool) {
	cs, ok := a.sets[id]
	return cs, ok
}

// Datasets summarises the loaded datasets in the order they were added.
func (a *Aggregator) Datasets() []DatasetSummary {
	out := make([]DatasetSummary, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, Summarize(a.sets[id]))
	}
	return out
}

// Summarize describes a cluster set.
func Summarize(cs *clusters.ClusterSet) DatasetSummary {
	markerTerms := make([]string, 0)
	for t := range cs.MarkerTerms() {
		markerTerms = append(markerTerms, t)
	}
	sort.Strings(markerTerms)
	return DatasetSummary{
		ID:            cs.DatasetID(),
		Kind:          cs.Kind(),
		MarkerTerms:   markerTerms,
		Substitutions: cs.Substitutions(),
		Dropped:       cs.Dropped(),
	}
}

// Len returns the number of loaded datasets.
func (a *Aggregator) Len() int { return len(a.sets) }

func sortedIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
