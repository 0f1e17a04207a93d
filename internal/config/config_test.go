package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_MultiMapFormat(t *testing.T) {
	content := `
server:
  port: 9000
maps:
  male:
    hierarchy_path: "/data/male/hierarchy.json"
    features_path: "/data/male/features.json.zst"
  female:
    hierarchy_path: "/data/female/hierarchy.json"
    features_path: "/data/female/features.json"
    root: "UBERON:0000468"
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}

	// First map in YAML order should be default
	if cfg.Maps.DefaultMap != "male" {
		t.Errorf("expected default map 'male', got %q", cfg.Maps.DefaultMap)
	}
	if diff := cmp.Diff([]string{"male", "female"}, cfg.Maps.MapIDs()); diff != "" {
		t.Errorf("unexpected map order (-want +got):\n%s", diff)
	}

	male := cfg.Maps.Maps["male"]
	if male.FeaturesPath != "/data/male/features.json.zst" {
		t.Errorf("unexpected features_path: %s", male.FeaturesPath)
	}
	if male.Root != "UBERON:0013702" {
		t.Errorf("expected default root, got %q", male.Root)
	}
	if root := cfg.Maps.Maps["female"].Root; root != "UBERON:0000468" {
		t.Errorf("unexpected female root: %s", root)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
maps:
  test:
    hierarchy_path: "/test/hierarchy.json"
    features_path: "/test/features.json"
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Markers != (MarkerConfig{MinZoom: 2, MaxZoom: 12}) {
		t.Errorf("expected default zoom range, got %+v", cfg.Markers)
	}
	if cfg.Cache.QueryCacheSize != 1000 {
		t.Errorf("expected default query cache size 1000, got %d", cfg.Cache.QueryCacheSize)
	}
	if cfg.Render.BadgeSize != 32 {
		t.Errorf("expected default badge size 32, got %d", cfg.Render.BadgeSize)
	}
}

func TestLoad_NoMapsSection(t *testing.T) {
	content := `
server:
  port: 8080
`
	cfg := loadFromString(t, content)

	if cfg.Maps.DefaultMap != "default" {
		t.Errorf("expected default map, got %q", cfg.Maps.DefaultMap)
	}
	if len(cfg.Maps.Maps) != 1 {
		t.Errorf("expected 1 default map, got %d", len(cfg.Maps.Maps))
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ANATOMAP_PORT", "9123")
	t.Setenv("ANATOMAP_LOG_LEVEL", "DEBUG")
	t.Setenv("ANATOMAP_SQLITE_PATH", "")

	cfg := loadFromString(t, "server:\n  port: 8080\n")

	if cfg.Server.Port != 9123 {
		t.Errorf("expected port 9123, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Log.Level)
	}
	if cfg.Store.SQLitePath != "" {
		t.Errorf("expected persistence disabled, got %q", cfg.Store.SQLitePath)
	}
}

func TestLoad_InvalidZoomRange(t *testing.T) {
	path := writeConfig(t, `
markers:
  min_zoom: 8
  max_zoom: 4
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an inverted zoom range")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Maps.DefaultMap != "default" {
		t.Errorf("expected default config, got map %q", cfg.Maps.DefaultMap)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
