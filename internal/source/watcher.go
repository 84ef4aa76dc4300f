package source

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/genome-heatmap/server/internal/apperr"
	"github.com/genome-heatmap/server/internal/logger"
)

// Watcher reloads the loader when one of the standalone payload files
// changes on disk. Rapid write bursts debounce into a single load; an
// older in-flight load is superseded by the loader's generation check.
type Watcher struct {
	loader   *Loader
	dir      string
	debounce time.Duration
	fs       *fsnotify.Watcher
}

// NewWatcher creates a watcher over the data directory.
func NewWatcher(loader *Loader, dir string, debounce time.Duration) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{loader: loader, dir: dir, debounce: debounce, fs: fs}, nil
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fs.Close()

	watched := map[string]bool{
		w.loader.schema.DataFiles.Genes:   true,
		w.loader.schema.DataFiles.Tree:    true,
		w.loader.schema.DataFiles.Cluster: true,
		metadataName:                      true,
	}

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			name := strings.TrimSuffix(filepath.Base(ev.Name), ".zst")
			if !watched[name] {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			logger.Info("data directory changed, reloading", zap.String("dir", w.dir))
			go func() {
				_, err := w.loader.Load(ctx)
				switch {
				case err == nil:
				case apperr.IsFatal(err):
					// Previous generation keeps serving; the payload on
					// disk is unusable until rewritten.
					logger.Error("reload rejected, keeping previous dataset", zap.Error(err))
				default:
					logger.Warn("reload after file change failed", zap.Error(err))
				}
			}()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn("fsnotify error", zap.Error(err))
		}
	}
}
