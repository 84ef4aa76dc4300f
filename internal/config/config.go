// Package config handles configuration loading for the dashboard server.
package config

import (
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Cache  CacheConfig  `yaml:"cache"`
	Render RenderConfig `yaml:"render"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	LogLevel    string   `yaml:"log_level"`
}

// DataConfig contains data source settings.
type DataConfig struct {
	// Dir holds the narrative's payload files (genes_data.json,
	// tree_data.json, cluster_data.json, metadata.json, app-config.json).
	Dir string `yaml:"dir"`
	// SchemaPath points at an optional dashboard schema override; when
	// empty the built-in 29-field schema is used.
	SchemaPath string `yaml:"schema_path"`
	// QueryURL is the remote tabular query endpoint used in integrated
	// mode. The bearer token comes from the KB_AUTH_TOKEN env var.
	QueryURL string `yaml:"query_url"`
	// Watch enables reloading when payload files change on disk.
	Watch bool `yaml:"watch"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	RasterSizeMB     int `yaml:"raster_size_mb"`
	RasterTTLMinutes int `yaml:"raster_ttl_minutes"`
	QueryEntries     int `yaml:"query_entries"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	Width         int `yaml:"width"`
	Height        int `yaml:"height"`
	MinimapHeight int `yaml:"minimap_height"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges after defaults are applied.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Server.LogLevel, validation.In("debug", "info", "warn", "error")),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Cache,
		validation.Field(&c.Cache.RasterSizeMB, validation.Min(1)),
		validation.Field(&c.Cache.RasterTTLMinutes, validation.Min(1)),
		validation.Field(&c.Cache.QueryEntries, validation.Min(1)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.Render,
		validation.Field(&c.Render.Width, validation.Min(64), validation.Max(8192)),
		validation.Field(&c.Render.Height, validation.Min(64), validation.Max(8192)),
		validation.Field(&c.Render.MinimapHeight, validation.Min(16), validation.Max(512)),
	)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			LogLevel:    "info",
		},
		Data: DataConfig{
			Dir:   "./data",
			Watch: true,
		},
		Cache: CacheConfig{
			RasterSizeMB:     256,
			RasterTTLMinutes: 10,
			QueryEntries:     512,
		},
		Render: RenderConfig{
			Width:         1200,
			Height:        600,
			MinimapHeight: 60,
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
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = defaults.Server.LogLevel
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = defaults.Data.Dir
	}
	if cfg.Cache.RasterSizeMB == 0 {
		cfg.Cache.RasterSizeMB = defaults.Cache.RasterSizeMB
	}
	if cfg.Cache.RasterTTLMinutes == 0 {
		cfg.Cache.RasterTTLMinutes = defaults.Cache.RasterTTLMinutes
	}
	if cfg.Cache.QueryEntries == 0 {
		cfg.Cache.QueryEntries = defaults.Cache.QueryEntries
	}
	if cfg.Render.Width == 0 {
		cfg.Render.Width = defaults.Render.Width
	}
	if cfg.Render.Height == 0 {
		cfg.Render.Height = defaults.Render.Height
	}
	if cfg.Render.MinimapHeight == 0 {
		cfg.Render.MinimapHeight = defaults.Render.MinimapHeight
	}
}
