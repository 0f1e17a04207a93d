// Package api provides HTTP handlers for the marker server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/anatomap/server/internal/clusters"
	"github.com/anatomap/server/internal/markers"
	"github.com/anatomap/server/internal/metrics"
	"github.com/anatomap/server/internal/service"
)

const maxDatasetsBodyBytes = 8 << 20

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *MapRegistry
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&zapLogFormatter{logger: logger}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	// Global maps endpoint (not map-scoped)
	r.Get("/api/maps", mapsHandler(cfg.Registry))
	r.Get("/", defaultMapHandler(cfg.Registry))

	// Map-scoped routes: /m/{map}/...
	r.Route("/m/{map}", func(r chi.Router) {
		r.Use(mapMiddleware(cfg.Registry))

		r.Get("/markers.geojson", markersGeoJSONHandler)
		r.Get("/markers/{term}/badge.png", badgeHandler)

		r.Route("/api", func(r chi.Router) {
			r.Get("/metadata", metadataHandler)
			r.Put("/zoom", setZoomHandler)

			r.Get("/datasets", listDatasetsHandler)
			r.Post("/datasets", addDatasetsHandler)
			r.Delete("/datasets", clearDatasetsHandler)
			r.Delete("/datasets/{id}", removeDatasetHandler)
			r.Get("/datasets/{id}/clusters", datasetClustersHandler)
			r.Get("/datasets/{id}/features", datasetFeaturesHandler)

			r.Get("/terms/{term}/datasets", termDatasetsHandler)
			r.Get("/terms/{term}/markers", termMarkersHandler)
		})
	})

	return r
}

// Context key for map service
type ctxKey string

const mapServiceKey ctxKey = "mapService"

// mapMiddleware resolves the map from URL and injects the marker service into context.
func mapMiddleware(registry *MapRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mapID := chi.URLParam(r, "map")
			svc := registry.Get(mapID)
			if svc == nil {
				http.Error(w, "map not found: "+mapID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), mapServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getMapService(r *http.Request) *service.MarkerService {
	if svc, ok := r.Context().Value(mapServiceKey).(*service.MarkerService); ok {
		return svc
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// termParam returns the unescaped term path segment. Terms are CURIEs such
// as "UBERON:0000948".
func termParam(r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "term")
	term, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	term = strings.TrimSpace(term)
	return term, term != ""
}

// zoomParam parses ?zoom=; without it the map's current zoom is used.
// Fractional zooms are floored and zooms past the last level clamp to it.
func zoomParam(r *http.Request, svc *service.MarkerService) (int, error) {
	zoomStr := r.URL.Query().Get("zoom")
	if zoomStr == "" {
		return svc.Zoom(), nil
	}
	z, err := strconv.ParseFloat(zoomStr, 64)
	if err != nil {
		return 0, errors.New("invalid zoom parameter")
	}
	zoom, ok := markers.FloorZoom(z, svc.MaxZoom())
	if !ok {
		return 0, errors.New("invalid zoom parameter")
	}
	return zoom, nil
}

// mapsHandler returns the list of available maps.
func mapsHandler(registry *MapRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"default": registry.DefaultMapID(),
			"maps":    registry.Maps(),
			"title":   registry.Title(),
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// defaultMapHandler redirects to the default map's metadata.
func defaultMapHandler(registry *MapRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if registry.Default() == nil {
			http.Error(w, "no default map", http.StatusNotFound)
			return
		}
		target := "/m/" + url.PathEscape(registry.DefaultMapID()) + "/api/metadata"
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func metadataHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	writeJSON(w, http.StatusOK, svc.Metadata())
}

type setZoomRequest struct {
	Zoom *float64 `json:"zoom"`
}

func setZoomHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)

	var req setZoomRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Zoom == nil || math.IsNaN(*req.Zoom) || math.IsInf(*req.Zoom, 0) {
		http.Error(w, "zoom is required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"zoom": svc.SetZoom(*req.Zoom),
	})
}

func listDatasetsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": svc.Datasets(),
	})
}

type addDatasetsRequest struct {
	Datasets []clusters.Dataset `json:"datasets"`
}

func addDatasetsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDatasetsBodyBytes+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxDatasetsBodyBytes {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	// Accept either {"datasets": [...]} or a bare array.
	var req addDatasetsRequest
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(body, &req.Datasets)
	} else {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Datasets) == 0 {
		http.Error(w, "datasets are required", http.StatusBadRequest)
		return
	}
	for _, ds := range req.Datasets {
		if ds.Kind != "" && ds.Kind != clusters.KindDataset && ds.Kind != clusters.KindMultiscale {
			http.Error(w, "invalid dataset kind: "+string(ds.Kind), http.StatusBadRequest)
			return
		}
	}

	added, err := svc.AddDatasets(req.Datasets)
	if errors.Is(err, service.ErrInvalidDataset) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"added": added,
	})
}

func clearDatasetsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	if err := svc.ClearDatasets(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func removeDatasetHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	id := chi.URLParam(r, "id")

	err := svc.RemoveDataset(id)
	if errors.Is(err, markers.ErrUnknownDataset) {
		http.Error(w, "dataset not found: "+id, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func datasetClustersHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	id := chi.URLParam(r, "id")

	view, ok := svc.Clusters(id)
	if !ok {
		http.Error(w, "dataset not found: "+id, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func datasetFeaturesHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	id := chi.URLParam(r, "id")

	ids, ok := svc.DatasetFeatureIDs(id)
	if !ok {
		http.Error(w, "dataset not found: "+id, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dataset":  id,
		"features": ids,
	})
}

func termDatasetsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	term, ok := termParam(r)
	if !ok {
		http.Error(w, "invalid term", http.StatusBadRequest)
		return
	}
	zoom, err := zoomParam(r, svc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ids := svc.DatasetIDs(term, zoom)
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"term":     term,
		"zoom":     zoom,
		"datasets": ids,
	})
}

func termMarkersHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	term, ok := termParam(r)
	if !ok {
		http.Error(w, "invalid term", http.StatusBadRequest)
		return
	}
	zoom, err := zoomParam(r, svc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := svc.MarkerTermsJSON(term, zoom)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func markersGeoJSONHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)

	data, err := svc.MarkersGeoJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

func badgeHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	term, ok := termParam(r)
	if !ok {
		http.Error(w, "invalid term", http.StatusBadRequest)
		return
	}
	zoom, err := zoomParam(r, svc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := svc.Badge(term, zoom)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}
