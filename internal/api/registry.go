package api

import (
	"github.com/anatomap/server/internal/service"
)

// MapInfo contains information about a map for the API response.
type MapInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Datasets int    `json:"datasets"`
}

// MapRegistry holds marker services for all configured maps.
type MapRegistry struct {
	services   map[string]*service.MarkerService
	defaultMap string
	mapOrder   []string
	title      string
}

// NewMapRegistry creates a new map registry.
func NewMapRegistry(defaultMap string, order []string, title string) *MapRegistry {
	return &MapRegistry{
		services:   make(map[string]*service.MarkerService),
		defaultMap: defaultMap,
		mapOrder:   order,
		title:      title,
	}
}

// Register adds a marker service for a map.
func (r *MapRegistry) Register(mapID string, svc *service.MarkerService) {
	r.services[mapID] = svc
}

// Get returns the marker service for a map, or nil if not found.
func (r *MapRegistry) Get(mapID string) *service.MarkerService {
	return r.services[mapID]
}

// Default returns the default map's marker service.
func (r *MapRegistry) Default() *service.MarkerService {
	return r.services[r.defaultMap]
}

// DefaultMapID returns the default map ID.
func (r *MapRegistry) DefaultMapID() string {
	return r.defaultMap
}

// MapIDs returns all map IDs in config order.
func (r *MapRegistry) MapIDs() []string {
	return r.mapOrder
}

// Title returns the configured site title.
func (r *MapRegistry) Title() string {
	if r.title != "" {
		return r.title
	}
	return "Anatomical map"
}

// Maps returns map info for all registered maps.
func (r *MapRegistry) Maps() []MapInfo {
	infos := make([]MapInfo, 0, len(r.mapOrder))
	for _, id := range r.mapOrder {
		svc := r.services[id]
		if svc == nil {
			continue
		}
		md := svc.Metadata()
		name := md.Title
		if name == "" {
			name = id
		}
		infos = append(infos, MapInfo{
			ID:       id,
			Name:     name,
			Datasets: md.Datasets,
		})
	}
	return infos
}
