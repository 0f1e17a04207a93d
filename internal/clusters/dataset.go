// Package clusters assigns zoom bands to the terms of a single dataset.
package clusters

import (
	"fmt"
	"strings"
)

// Kind classifies a dataset.
type Kind string

const (
	KindDataset    Kind = "dataset"
	KindMultiscale Kind = "multiscale"
)

// Dataset is a dataset descriptor supplied by the host application.
type Dataset struct {
	ID    string   `json:"id"`
	Kind  Kind     `json:"kind,omitempty"`
	Terms []string `json:"terms"`
}

// EffectiveKind returns the dataset kind, defaulting to KindDataset.
func (d Dataset) EffectiveKind() Kind {
	if d.Kind == KindMultiscale {
		return KindMultiscale
	}
	return KindDataset
}

// CleanTerms returns the trimmed, non-blank terms in order.
func (d Dataset) CleanTerms() []string {
	out := make([]string, 0, len(d.Terms))
	for _, t := range d.Terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ZoomRange bounds the zoom levels markers are placed on.
type ZoomRange struct {
	MinMarkerZoom int `yaml:"min_zoom" json:"min_zoom"`
	MaxMarkerZoom int `yaml:"max_zoom" json:"max_zoom"`
}

// DefaultZoomRange is used when no range is configured.
var DefaultZoomRange = ZoomRange{MinMarkerZoom: 2, MaxMarkerZoom: 12}

// Validate reports a range that cannot index per-zoom state.
func (z ZoomRange) Validate() error {
	if z.MinMarkerZoom < 0 || z.MaxMarkerZoom < z.MinMarkerZoom {
		return fmt.Errorf("invalid marker zoom range [%d, %d]", z.MinMarkerZoom, z.MaxMarkerZoom)
	}
	return nil
}

// Band maps a term depth to its default zoom band. Depths at or past the
// bottom of the range give the terminal band [max, max].
func (z ZoomRange) Band(depth, maxDepth int) (minZoom, maxZoom int) {
	zoom := z.MinMarkerZoom
	if maxDepth > 0 {
		zoom += floorDiv((z.MaxMarkerZoom-z.MinMarkerZoom)*depth, maxDepth)
	}
	switch {
	case zoom < 0:
		return 0, 1
	case zoom >= z.MaxMarkerZoom:
		return z.MaxMarkerZoom, z.MaxMarkerZoom
	default:
		return zoom, zoom + 1
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FeatureOracle answers which terms have concrete features on the map.
type FeatureOracle interface {
	HasAnatomicalIdentifier(term string) bool
	ModelFeatureIDs(term string) []string
}
