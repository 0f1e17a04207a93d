// Package config handles configuration loading for the marker server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server  ServerConfig `yaml:"server"`
	Maps    MapsConfig   `yaml:"maps"`
	Markers MarkerConfig `yaml:"markers"`
	Cache   CacheConfig  `yaml:"cache"`
	Store   StoreConfig  `yaml:"store"`
	Render  RenderConfig `yaml:"render"`
	Log     LogConfig    `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	Title       string   `yaml:"title"`
}

// MapConfig contains the source files of one anatomical map.
type MapConfig struct {
	HierarchyPath string `yaml:"hierarchy_path"`
	FeaturesPath  string `yaml:"features_path"`
	Root          string `yaml:"root"`
	Title         string `yaml:"title"`
}

// MapsConfig holds the configured maps in file order. The first map is the
// default one.
type MapsConfig struct {
	Maps       map[string]MapConfig
	DefaultMap string
	order      []string
}

// UnmarshalYAML keeps the order of the maps mapping.
func (m *MapsConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("maps: expected a mapping, got %v", node.Tag)
	}
	m.Maps = make(map[string]MapConfig, len(node.Content)/2)
	m.order = nil
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		var mc MapConfig
		if err := node.Content[i+1].Decode(&mc); err != nil {
			return fmt.Errorf("maps.%s: %w", id, err)
		}
		if _, dup := m.Maps[id]; !dup {
			m.order = append(m.order, id)
		}
		m.Maps[id] = mc
	}
	if len(m.order) > 0 {
		m.DefaultMap = m.order[0]
	}
	return nil
}

// MapIDs returns the map identifiers in configuration order.
func (m MapsConfig) MapIDs() []string {
	return append([]string(nil), m.order...)
}

// MarkerConfig contains the marker zoom range.
type MarkerConfig struct {
	MinZoom int `yaml:"min_zoom"`
	MaxZoom int `yaml:"max_zoom"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	GeoJSONSizeMB     int `yaml:"geojson_size_mb"`
	GeoJSONTTLMinutes int `yaml:"geojson_ttl_minutes"`
	QueryCacheSize    int `yaml:"query_cache_size"`
}

// StoreConfig contains dataset persistence settings. An empty path disables
// persistence.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// RenderConfig contains badge rendering settings.
type RenderConfig struct {
	BadgeSize int `yaml:"badge_size"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		cfg := DefaultConfig()
		if err := applyEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "Anatomical map",
		},
		Maps: MapsConfig{
			Maps: map[string]MapConfig{
				"default": {
					HierarchyPath: "./data/hierarchy.json",
					FeaturesPath:  "./data/features.json",
					Root:          "UBERON:0013702",
				},
			},
			DefaultMap: "default",
			order:      []string{"default"},
		},
		Markers: MarkerConfig{
			MinZoom: 2,
			MaxZoom: 12,
		},
		Cache: CacheConfig{
			GeoJSONSizeMB:     64,
			GeoJSONTTLMinutes: 10,
			QueryCacheSize:    1000,
		},
		Store: StoreConfig{
			SQLitePath: "./data/datasets.sqlite",
		},
		Render: RenderConfig{
			BadgeSize: 32,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if len(cfg.Maps.order) == 0 {
		cfg.Maps = defaults.Maps
	}
	for id, mc := range cfg.Maps.Maps {
		if mc.Root == "" {
			mc.Root = defaults.Maps.Maps["default"].Root
		}
		cfg.Maps.Maps[id] = mc
	}
	if cfg.Markers.MinZoom == 0 && cfg.Markers.MaxZoom == 0 {
		cfg.Markers = defaults.Markers
	}
	if cfg.Cache.GeoJSONSizeMB == 0 {
		cfg.Cache.GeoJSONSizeMB = defaults.Cache.GeoJSONSizeMB
	}
	if cfg.Cache.GeoJSONTTLMinutes == 0 {
		cfg.Cache.GeoJSONTTLMinutes = defaults.Cache.GeoJSONTTLMinutes
	}
	if cfg.Cache.QueryCacheSize == 0 {
		cfg.Cache.QueryCacheSize = defaults.Cache.QueryCacheSize
	}
	if cfg.Render.BadgeSize == 0 {
		cfg.Render.BadgeSize = defaults.Render.BadgeSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// applyEnv overrides selected settings from ANATOMAP_* variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("ANATOMAP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ANATOMAP_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("ANATOMAP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("ANATOMAP_SQLITE_PATH"); ok {
		cfg.Store.SQLitePath = v
	}
	return nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Markers.MinZoom < 0 || c.Markers.MaxZoom < c.Markers.MinZoom {
		return fmt.Errorf("invalid marker zoom range [%d, %d]", c.Markers.MinZoom, c.Markers.MaxZoom)
	}
	for _, id := range c.Maps.MapIDs() {
		mc := c.Maps.Maps[id]
		if mc.HierarchyPath == "" || mc.FeaturesPath == "" {
			return fmt.Errorf("map %q: hierarchy_path and features_path are required", id)
		}
	}
	return nil
}
