// Package cache provides caching for rendered rasters and query results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	RasterCacheSizeMB int
	RasterTTL         time.Duration
	QueryCacheSize    int
}

// Manager manages the raster and query caches. Raster keys embed the
// bundle generation, so a superseding load naturally invalidates every
// cached drawing.
type Manager struct {
	rasterCache *bigcache.BigCache
	queryCache  *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	rasterConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.RasterTTL,
		CleanWindow:        cfg.RasterTTL / 2,
		MaxEntriesInWindow: 100000,
		MaxEntrySize:       512 * 1024, // full-width rasters run larger than map tiles
		HardMaxCacheSize:   cfg.RasterCacheSizeMB,
		Verbose:            false,
	}

	rasterCache, err := bigcache.New(context.Background(), rasterConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create raster cache: %w", err)
	}

	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Manager{
		rasterCache: rasterCache,
		queryCache:  queryCache,
	}, nil
}

// GetRaster retrieves a rendered raster from cache.
func (m *Manager) GetRaster(key string) ([]byte, bool) {
	data, err := m.rasterCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetRaster stores a rendered raster in cache.
func (m *Manager) SetRaster(key string, data []byte) error {
	return m.rasterCache.Set(key, data)
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queryCache.Add(key, data)
}

// RasterKey generates a cache key for a rendered raster. The view-state
// parts are hashed so arbitrary filter expressions stay within key
// limits.
func RasterKey(kind string, generation uint64, parts ...string) string {
	base := fmt.Sprintf("%s:g%d", kind, generation)
	if len(parts) == 0 {
		return base
	}
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\x00")))
	return base + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// SearchKey generates a cache key for a search query result.
func SearchKey(generation uint64, query string) string {
	return fmt.Sprintf("search:g%d:%s", generation, strings.ToLower(query))
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"raster_cache_len": m.rasterCache.Len(),
		"raster_cache_cap": m.rasterCache.Capacity(),
		"query_cache_len":  m.queryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.rasterCache.Close()
}
