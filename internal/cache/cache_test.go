package cache

import (
	"testing"
	"time"
)

func TestRasterKey(t *testing.T) {
	t.Run("stableForSameState", func(t *testing.T) {
		k1 := RasterKey("tracks", 3, "position", "all", "0", "100")
		k2 := RasterKey("tracks", 3, "position", "all", "0", "100")
		if k1 != k2 {
			t.Fatalf("expected stable key, got %q vs %q", k1, k2)
		}
	})

	t.Run("generationChangesKey", func(t *testing.T) {
		k1 := RasterKey("tracks", 3, "position")
		k2 := RasterKey("tracks", 4, "position")
		if k1 == k2 {
			t.Fatalf("expected generation to partition keys, both %q", k1)
		}
	})

	t.Run("kindChangesKey", func(t *testing.T) {
		k1 := RasterKey("tracks", 3, "position")
		k2 := RasterKey("minimap", 3, "position")
		if k1 == k2 {
			t.Fatal("expected kind to partition keys")
		}
	})

	t.Run("stateChangesKey", func(t *testing.T) {
		k1 := RasterKey("tracks", 3, "position", "all")
		k2 := RasterKey("tracks", 3, "position", "core")
		if k1 == k2 {
			t.Fatal("expected view state to partition keys")
		}
	})
}

func TestSearchKey(t *testing.T) {
	if SearchKey(1, "kinase") == SearchKey(2, "kinase") {
		t.Fatal("expected generation to partition search keys")
	}
	if SearchKey(1, "kinase") != SearchKey(1, "kinase") {
		t.Fatal("expected stable search key")
	}
}

func TestManagerRoundTrip(t *testing.T) {
	m, err := NewManager(Config{
		RasterCacheSizeMB: 4,
		RasterTTL:         time.Minute,
		QueryCacheSize:    8,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	key := RasterKey("tracks", 1, "position")
	if _, ok := m.GetRaster(key); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := m.SetRaster(key, []byte("png-bytes")); err != nil {
		t.Fatalf("SetRaster: %v", err)
	}
	data, ok := m.GetRaster(key)
	if !ok || string(data) != "png-bytes" {
		t.Fatalf("expected hit with stored bytes, got ok=%v data=%q", ok, data)
	}

	qkey := SearchKey(1, "kinase")
	m.SetQuery(qkey, []byte("[1,2,3]"))
	if got, ok := m.GetQuery(qkey); !ok || string(got) != "[1,2,3]" {
		t.Fatalf("expected query hit, got ok=%v data=%q", ok, got)
	}
}
