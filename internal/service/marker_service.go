// Package service provides business logic for the marker server.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anatomap/server/internal/cache"
	"github.com/anatomap/server/internal/clusters"
	"github.com/anatomap/server/internal/datasetstore"
	"github.com/anatomap/server/internal/features"
	"github.com/anatomap/server/internal/markers"
	"github.com/anatomap/server/internal/metrics"
	"github.com/anatomap/server/internal/render"
	"github.com/anatomap/server/internal/termgraph"
)

// ErrInvalidDataset is returned for a dataset without an id.
var ErrInvalidDataset = errors.New("dataset id is required")

// MarkerServiceConfig contains marker service configuration.
type MarkerServiceConfig struct {
	MapID    string
	Title    string
	Graph    *termgraph.Graph
	Features *features.Index
	Zoom     clusters.ZoomRange
	Cache    *cache.Manager
	Store    *datasetstore.Store // optional
	Renderer *render.BadgeRenderer
	Logger   *zap.Logger
}

// MapMetadata describes a map.
type MapMetadata struct {
	ID            string `json:"id"`
	Title         string `json:"title,omitempty"`
	Root          string `json:"root"`
	Terms         int    `json:"terms"`
	MaxDepth      int    `json:"max_depth"`
	Features      int    `json:"features"`
	MinMarkerZoom int    `json:"min_zoom"`
	MaxMarkerZoom int    `json:"max_zoom"`
	Datasets      int    `json:"datasets"`
	Zoom          int    `json:"zoom"`
}

// ClusterView is the cluster set of one dataset as returned to clients.
type ClusterView struct {
	Dataset     markers.DatasetSummary `json:"dataset"`
	Clusters    []clusters.Cluster     `json:"clusters"`
	Descendants map[string][]string    `json:"descendants"`
}

// MarkerService owns the marker state of one map. All mutations and reads
// are serialised by mu.
type MarkerService struct {
	mapID    string
	title    string
	graph    *termgraph.Graph
	features *features.Index
	cache    *cache.Manager
	store    *datasetstore.Store
	renderer *render.BadgeRenderer
	logger   *zap.Logger

	mu         sync.Mutex
	agg        *markers.Aggregator
	generation uint64
}

// NewMarkerService creates a new marker service.
func NewMarkerService(cfg MarkerServiceConfig) *MarkerService {
	mapID := cfg.MapID
	if mapID == "" {
		mapID = "default"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("map", mapID))
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = render.NewBadgeRenderer(render.Config{})
	}

	return &MarkerService{
		mapID:    mapID,
		title:    cfg.Title,
		graph:    cfg.Graph,
		features: cfg.Features,
		cache:    cfg.Cache,
		store:    cfg.Store,
		renderer: renderer,
		logger:   logger,
		agg: markers.New(markers.Config{
			Graph:    cfg.Graph,
			Features: cfg.Features,
			Zoom:     cfg.Zoom,
			Logger:   logger,
		}),
	}
}

// MapID returns the map identifier.
func (s *MarkerService) MapID() string { return s.mapID }

// AddDatasets persists dataset descriptors and loads them onto the map.
// Datasets without usable terms are ignored; the returned summaries cover
// only what was loaded. Nothing is loaded when persisting fails.
func (s *MarkerService) AddDatasets(datasets []clusters.Dataset) ([]markers.DatasetSummary, error) {
	usable := make([]clusters.Dataset, 0, len(datasets))
	for _, ds := range datasets {
		if ds.ID == "" {
			return nil, ErrInvalidDataset
		}
		if len(ds.CleanTerms()) > 0 {
			usable = append(usable, ds)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil && len(usable) > 0 {
		if err := s.store.Save(s.mapID, usable); err != nil {
			return nil, fmt.Errorf("failed to persist datasets: %w", err)
		}
	}

	start := time.Now()
	added := s.agg.AddDatasetMarkers(usable)
	s.generation++

	summaries := make([]markers.DatasetSummary, 0, len(added))
	for _, cs := range added {
		summary := markers.Summarize(cs)
		summaries = append(summaries, summary)
		metrics.TermsSubstituted.WithLabelValues(s.mapID).Add(float64(len(summary.Substitutions)))
		metrics.TermsDropped.WithLabelValues(s.mapID).Add(float64(len(summary.Dropped)))
	}
	metrics.DatasetsAdded.WithLabelValues(s.mapID).Add(float64(len(added)))
	s.observe("add", start)

	s.logger.Info("datasets added",
		zap.Int("requested", len(datasets)),
		zap.Int("added", len(added)),
		zap.Int("loaded", s.agg.Len()))
	return summaries, nil
}

// RemoveDataset deletes a dataset descriptor and unloads the dataset.
func (s *MarkerService) RemoveDataset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agg.ClusterSet(id); !ok {
		return markers.ErrUnknownDataset
	}
	if s.store != nil {
		if err := s.store.Delete(s.mapID, id); err != nil {
			return fmt.Errorf("failed to delete dataset descriptor: %w", err)
		}
	}

	start := time.Now()
	if err := s.agg.RemoveDatasetMarker(id); err != nil {
		return err
	}
	s.generation++
	metrics.DatasetsRemoved.WithLabelValues(s.mapID).Inc()
	s.observe("remove", start)
	s.logger.Info("dataset removed", zap.String("dataset", id))
	return nil
}

// ClearDatasets deletes every descriptor of the map and unloads all datasets.
func (s *MarkerService) ClearDatasets() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Clear(s.mapID); err != nil {
			return fmt.Errorf("failed to clear dataset descriptors: %w", err)
		}
	}

	start := time.Now()
	n := s.agg.Len()
	s.agg.ClearDatasetMarkers()
	s.generation++
	metrics.DatasetsRemoved.WithLabelValues(s.mapID).Add(float64(n))
	s.observe("clear", start)
	s.logger.Info("datasets cleared", zap.Int("removed", n))
	return nil
}

// Restore replays the descriptors persisted for this map.
func (s *MarkerService) Restore() (int, error) {
	if s.store == nil {
		return 0, nil
	}
	records, err := s.store.List(s.mapID)
	if err != nil {
		return 0, fmt.Errorf("failed to list datasets: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	datasets := make([]clusters.Dataset, 0, len(records))
	for _, r := range records {
		datasets = append(datasets, r.Dataset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	added := s.agg.AddDatasetMarkers(datasets)
	s.generation++
	s.observe("restore", start)
	s.logger.Info("datasets restored", zap.Int("stored", len(records)), zap.Int("loaded", len(added)))
	return len(added), nil
}

func (s *MarkerService) observe(op string, start time.Time) {
	metrics.MutationDurationMs.WithLabelValues(s.mapID, op).Observe(float64(time.Since(start).Microseconds()) / 1000)
	metrics.LoadedDatasets.WithLabelValues(s.mapID).Set(float64(s.agg.Len()))
}

// Datasets summarises the loaded datasets.
func (s *MarkerService) Datasets() []markers.DatasetSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.Datasets()
}

// DatasetIDs returns the datasets shown at term and zoom.
func (s *MarkerService) DatasetIDs(term string, zoom int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.DatasetIDs(term, zoom)
}

// SetZoom records the map's current zoom.
func (s *MarkerService) SetZoom(zoom float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agg.SetZoom(zoom)
	return s.agg.Zoom()
}

// MaxZoom returns the last marker zoom level of the map.
func (s *MarkerService) MaxZoom() int { return s.agg.MaxZoom() }

// Zoom returns the map's current integer zoom.
func (s *MarkerService) Zoom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.Zoom()
}

// MarkerTermsJSON returns the encoded original terms under a marker at zoom.
func (s *MarkerService) MarkerTermsJSON(term string, zoom int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := cache.QueryKey("terms", s.mapID, s.generation, term, zoom)
	if data, ok := s.cache.GetQuery(cacheKey); ok {
		return data, nil
	}

	data, err := json.Marshal(s.agg.MarkerTermsAt(term, zoom))
	if err != nil {
		return nil, err
	}
	s.cache.SetQuery(cacheKey, data)
	return data, nil
}

// MarkersGeoJSON returns the encoded marker collection.
func (s *MarkerService) MarkersGeoJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := cache.CollectionKey(s.mapID, s.generation)
	if data, ok := s.cache.GetCollection(cacheKey); ok {
		return data, nil
	}

	fc, skipped := markerCollection(s.agg.MarkerPoints(), s.features)
	if skipped > 0 {
		s.logger.Debug("markers without a placeable feature", zap.Int("skipped", skipped))
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetCollection(cacheKey, data); err != nil {
		s.logger.Debug("marker collection not cached", zap.Error(err))
	}
	return data, nil
}

// Badge renders the count badge of a marker at zoom.
func (s *MarkerService) Badge(term string, zoom int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := cache.BadgeKey(s.mapID, s.generation, term, zoom)
	if data, ok := s.cache.GetCollection(cacheKey); ok {
		return data, nil
	}

	count := len(s.agg.DatasetIDs(term, zoom))
	data, err := s.renderer.RenderBadge(count, s.agg.Multiscale(term, zoom))
	if err != nil {
		return nil, fmt.Errorf("failed to render badge: %w", err)
	}
	if err := s.cache.SetCollection(cacheKey, data); err != nil {
		s.logger.Debug("badge not cached", zap.Error(err))
	}
	return data, nil
}

// Clusters returns the cluster set of a loaded dataset.
func (s *MarkerService) Clusters(id string) (*ClusterView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.agg.ClusterSet(id)
	if !ok {
		return nil, false
	}
	return &ClusterView{
		Dataset:     markers.Summarize(cs),
		Clusters:    cs.Clusters(),
		Descendants: cs.DescendantMap(),
	}, true
}

// DatasetFeatureIDs returns the features highlighted for a loaded dataset.
func (s *MarkerService) DatasetFeatureIDs(id string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agg.ClusterSet(id); !ok {
		return nil, false
	}
	return s.agg.DatasetFeatureIDs(id), true
}

// Metadata describes the map.
func (s *MarkerService) Metadata() MapMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	zoom := s.agg.ZoomRange()
	return MapMetadata{
		ID:            s.mapID,
		Title:         s.title,
		Root:          s.graph.Root(),
		Terms:         s.graph.Len(),
		MaxDepth:      s.graph.MaxDepth(),
		Features:      s.features.Len(),
		MinMarkerZoom: zoom.MinMarkerZoom,
		MaxMarkerZoom: zoom.MaxMarkerZoom,
		Datasets:      s.agg.Len(),
		Zoom:          s.agg.Zoom(),
	}
}
