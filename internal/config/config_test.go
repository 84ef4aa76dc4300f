package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FullConfig(t *testing.T) {
	content := `
server:
  port: 9000
  log_level: debug
data:
  dir: "/data/narrative"
  query_url: "https://datalake.example/api/query"
  watch: true
cache:
  raster_size_mb: 64
render:
  width: 800
  height: 400
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Server.LogLevel)
	}
	if cfg.Data.Dir != "/data/narrative" {
		t.Errorf("unexpected data dir: %s", cfg.Data.Dir)
	}
	if cfg.Data.QueryURL != "https://datalake.example/api/query" {
		t.Errorf("unexpected query url: %s", cfg.Data.QueryURL)
	}
	if !cfg.Data.Watch {
		t.Error("expected watch enabled")
	}
	if cfg.Cache.RasterSizeMB != 64 {
		t.Errorf("expected raster cache 64MB, got %d", cfg.Cache.RasterSizeMB)
	}
	if cfg.Render.Width != 800 || cfg.Render.Height != 400 {
		t.Errorf("unexpected render geometry: %dx%d", cfg.Render.Width, cfg.Render.Height)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.Server.LogLevel)
	}
	if cfg.Data.Dir != "./data" {
		t.Errorf("expected default data dir, got %q", cfg.Data.Dir)
	}
	if cfg.Cache.RasterSizeMB != 256 {
		t.Errorf("expected default raster cache 256MB, got %d", cfg.Cache.RasterSizeMB)
	}
	if cfg.Cache.QueryEntries != 512 {
		t.Errorf("expected default query cache 512 entries, got %d", cfg.Cache.QueryEntries)
	}
	if cfg.Render.Width != 1200 || cfg.Render.Height != 600 {
		t.Errorf("unexpected default geometry: %dx%d", cfg.Render.Width, cfg.Render.Height)
	}
	if cfg.Render.MinimapHeight != 60 {
		t.Errorf("expected default minimap height 60, got %d", cfg.Render.MinimapHeight)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
	if !cfg.Data.Watch {
		t.Error("expected watch enabled by default")
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"badPort":     "server:\n  port: 70000\n",
		"badLogLevel": "server:\n  log_level: verbose\n",
		"badWidth":    "render:\n  width: 16\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatalf("failed to write temp config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
