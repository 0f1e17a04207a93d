// Package features indexes a map's renderable features by the anatomical
// term they model.
package features

import (
	"fmt"
	"strings"

	"github.com/anatomap/server/internal/data/jsondoc"
)

// Feature is one renderable map feature.
type Feature struct {
	ID       string    `json:"id"`
	Models   string    `json:"models"`
	Label    string    `json:"label,omitempty"`
	Centroid []float64 `json:"centroid,omitempty"`
}

// Document is the on-disk annotation file of a map.
type Document struct {
	Features []Feature         `json:"features"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// Index answers feature presence queries. It is read-only after construction.
type Index struct {
	byTerm    map[string][]string
	labels    map[string]string
	centroids map[string][2]float64
	count     int
}

// NewIndex builds an index. Features without an id or model term are ignored.
func NewIndex(doc *Document) *Index {
	idx := &Index{
		byTerm:    make(map[string][]string),
		labels:    make(map[string]string),
		centroids: make(map[string][2]float64),
	}
	for term, label := range doc.Labels {
		idx.labels[term] = label
	}
	for _, f := range doc.Features {
		term := strings.TrimSpace(f.Models)
		if f.ID == "" || term == "" {
			continue
		}
		idx.byTerm[term] = append(idx.byTerm[term], f.ID)
		idx.count++
		if _, ok := idx.labels[term]; !ok && f.Label != "" {
			idx.labels[term] = f.Label
		}
		if len(f.Centroid) >= 2 {
			idx.centroids[f.ID] = [2]float64{f.Centroid[0], f.Centroid[1]}
		}
	}
	return idx
}

// LoadFile reads an annotation document (JSON or .json.zst).
func LoadFile(path string) (*Index, error) {
	var doc Document
	if err := jsondoc.ReadFile(path, &doc); err != nil {
		return nil, fmt.Errorf("failed to load features: %w", err)
	}
	return NewIndex(&doc), nil
}

// HasAnatomicalIdentifier reports whether at least one feature models term.
func (idx *Index) HasAnatomicalIdentifier(term string) bool {
	return len(idx.byTerm[term]) > 0
}

// ModelFeatureIDs returns the ids of the features modelling term.
func (idx *Index) ModelFeatureIDs(term string) []string {
	return append([]string(nil), idx.byTerm[term]...)
}

// Label returns the annotated label of term.
func (idx *Index) Label(term string) (string, bool) {
	l, ok := idx.labels[term]
	return l, ok
}

// Centroid returns the position of a feature.
func (idx *Index) Centroid(featureID string) ([2]float64, bool) {
	c, ok := idx.centroids[featureID]
	return c, ok
}

// Len returns the number of indexed features.
func (idx *Index) Len() int { return idx.count }

// Terms returns the number of distinct modelled terms.
func (idx *Index) Terms() int { return len(idx.byTerm) }
