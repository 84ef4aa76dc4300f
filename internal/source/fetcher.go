// Package source acquires the dataset bundle from one of two upstream
// shapes: local standalone files or a remote tabular query service. The
// mode is detected once at startup by probing for a context descriptor
// and is never re-evaluated mid-session.
package source

import (
	"context"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Fetcher retrieves a named resource. Implementations return an error
// for missing resources; callers decide whether that is fatal.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// DirFetcher reads resources from a data directory. A resource stored
// as <name>.zst is transparently decompressed, matching the compressed
// payloads the preprocessing pipeline may emit.
type DirFetcher struct {
	Dir     string
	decoder *zstd.Decoder
}

// NewDirFetcher creates a fetcher rooted at dir.
func NewDirFetcher(dir string) (*DirFetcher, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &DirFetcher{Dir: dir, decoder: decoder}, nil
}

// Fetch reads name (or name.zst) from the data directory.
func (f *DirFetcher) Fetch(_ context.Context, name string) ([]byte, error) {
	plain := filepath.Join(f.Dir, name)
	if data, err := os.ReadFile(plain); err == nil {
		return data, nil
	}

	compressed, err := os.ReadFile(plain + ".zst")
	if err != nil {
		return nil, err
	}
	return f.decoder.DecodeAll(compressed, nil)
}
