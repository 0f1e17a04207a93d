package service

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/anatomap/server/internal/features"
	"github.com/anatomap/server/internal/markers"
	"github.com/anatomap/server/pkg/palette"
)

// markerCollection converts marker points into a point collection. Each
// marker sits at the centroid of the first of its model features that has
// one; markers without a placeable feature are left out.
func markerCollection(points []markers.MarkerPoint, idx *features.Index) (*geojson.FeatureCollection, int) {
	fc := geojson.NewFeatureCollection()
	skipped := 0
	for _, p := range points {
		pos, ok := placeMarker(p.FeatureIDs, idx)
		if !ok {
			skipped++
			continue
		}

		f := geojson.NewFeature(pos)
		f.Properties["term"] = p.Term
		f.Properties["label"] = p.Label
		f.Properties["zoom-count"] = p.ZoomCounts
		f.Properties["multiscale"] = p.Multiscale
		f.Properties["min-zoom"] = p.MinZoom
		f.Properties["max-zoom"] = p.MaxZoom
		f.Properties["feature-ids"] = p.FeatureIDs
		f.Properties["color"] = palette.Hex(palette.Default.Fill(anyTrue(p.Multiscale)))
		fc.Append(f)
	}
	return fc, skipped
}

func placeMarker(featureIDs []string, idx *features.Index) (orb.Point, bool) {
	for _, id := range featureIDs {
		if c, ok := idx.Centroid(id); ok {
			return orb.Point{c[0], c[1]}, true
		}
	}
	return orb.Point{}, false
}

func anyTrue(flags []bool) bool {
	for _, f := range flags {
		if f {
			return true
		}
	}
	return false
}
