package source

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/genome-heatmap/server/internal/dataset"
	"github.com/genome-heatmap/server/internal/schema"
)

// gatedFetcher blocks the first fetch of one resource until released,
// letting a test hold a load in flight while a newer one completes.
type gatedFetcher struct {
	files   map[string][]byte
	slow    string
	gate    chan struct{}
	started chan struct{}
	calls   atomic.Int32
	once    sync.Once
}

func (f *gatedFetcher) Fetch(_ context.Context, name string) ([]byte, error) {
	if name == f.slow && f.calls.Add(1) == 1 {
		f.once.Do(func() { close(f.started) })
		<-f.gate
	}
	data, ok := f.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func TestLoader_AppliesBundle(t *testing.T) {
	s := schema.DefaultLegacy()
	f := mapFetcher{"genes_data.json": legacyRecords(t, s, 2)}

	var applied []uint64
	loader := NewLoader(f, s, RemoteConfig{}, func(b *dataset.Bundle) {
		applied = append(applied, b.Generation)
	})

	b, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b == nil || b.Generation != 1 {
		t.Fatalf("expected generation 1, got %+v", b)
	}
	if cur := loader.Current(); cur != b {
		t.Error("Current should return the applied bundle")
	}
	if len(applied) != 1 || applied[0] != 1 {
		t.Errorf("onApply calls: %v", applied)
	}
}

// A load that is still in flight when a newer one completes must be
// discarded on arrival, not applied over the newer bundle.
func TestLoader_StaleLoadDiscarded(t *testing.T) {
	s := schema.DefaultLegacy()
	f := &gatedFetcher{
		files:   map[string][]byte{"genes_data.json": legacyRecords(t, s, 2)},
		slow:    "genes_data.json",
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}

	var mu sync.Mutex
	var applied []uint64
	loader := NewLoader(f, s, RemoteConfig{}, func(b *dataset.Bundle) {
		mu.Lock()
		applied = append(applied, b.Generation)
		mu.Unlock()
	})

	// Force mode detection before the slow load so the probe fetch does
	// not interleave with the gate.
	loader.Mode(context.Background())

	type result struct {
		bundle *dataset.Bundle
		err    error
	}
	firstDone := make(chan result, 1)
	go func() {
		b, err := loader.Load(context.Background())
		firstDone <- result{b, err}
	}()

	<-f.started // first load is blocked mid-fetch

	second, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if second == nil || second.Generation != 2 {
		t.Fatalf("expected second load applied with generation 2, got %+v", second)
	}

	close(f.gate)
	first := <-firstDone
	if first.err != nil {
		t.Fatalf("stale load must not error: %v", first.err)
	}
	if first.bundle != nil {
		t.Fatalf("stale load must be discarded, got generation %d", first.bundle.Generation)
	}

	if cur := loader.Current(); cur == nil || cur.Generation != 2 {
		t.Fatalf("expected current generation 2, got %+v", cur)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(applied) != 1 || applied[0] != 2 {
		t.Errorf("expected exactly one applied bundle (gen 2), got %v", applied)
	}
}

// Mode is resolved once; a descriptor appearing later does not flip an
// already-detected standalone session.
func TestLoader_ModeImmutable(t *testing.T) {
	s := schema.DefaultLegacy()
	files := mapFetcher{"genes_data.json": legacyRecords(t, s, 2)}
	loader := NewLoader(files, s, RemoteConfig{}, nil)

	if mode := loader.Mode(context.Background()); mode != ModeStandalone {
		t.Fatalf("expected standalone, got %s", mode)
	}

	files["app-config.json"] = []byte(`{"upa": "1/2/3"}`)
	if mode := loader.Mode(context.Background()); mode != ModeStandalone {
		t.Fatalf("mode flipped mid-session to %s", mode)
	}
}
