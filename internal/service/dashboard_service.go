// Package service provides business logic for the dashboard server.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/genome-heatmap/server/internal/cache"
	"github.com/genome-heatmap/server/internal/dataset"
	"github.com/genome-heatmap/server/internal/logger"
	"github.com/genome-heatmap/server/internal/render"
	"github.com/genome-heatmap/server/internal/scatter"
	"github.com/genome-heatmap/server/internal/schema"
	"github.com/genome-heatmap/server/internal/source"
	"github.com/genome-heatmap/server/internal/tree"
	"github.com/genome-heatmap/server/internal/view"
)

// ErrNotLoaded is returned before the first successful load.
var ErrNotLoaded = errors.New("no dataset loaded")

// ErrUnavailable marks a view whose auxiliary data is absent for the
// current bundle; handlers surface it as an empty state, never a 5xx.
var ErrUnavailable = errors.New("view data unavailable")

// Config contains dashboard service configuration.
type Config struct {
	Schema   *schema.Schema
	Fetcher  source.Fetcher
	Remote   source.RemoteConfig
	Cache    *cache.Manager
	Renderer *render.Renderer
}

// Dashboard owns the current dataset bundle and the interactive view
// state derived from it. Interaction handlers are serialized; the only
// concurrency is between in-flight loads, resolved by the loader's
// generation check.
type Dashboard struct {
	schema   *schema.Schema
	loader   *source.Loader
	cache    *cache.Manager
	renderer *render.Renderer

	mu     sync.Mutex
	bundle *dataset.Bundle
	engine *view.Engine
	dendro *tree.Dendrogram
}

// New creates the dashboard service. Call Load before serving.
func New(cfg Config) *Dashboard {
	d := &Dashboard{
		schema:   cfg.Schema,
		cache:    cfg.Cache,
		renderer: cfg.Renderer,
	}
	d.loader = source.NewLoader(cfg.Fetcher, cfg.Schema, cfg.Remote, d.apply)
	return d
}

// Loader exposes the underlying loader (for the file watcher).
func (d *Dashboard) Loader() *source.Loader { return d.loader }

// apply installs an accepted bundle, replacing all view state wholesale.
func (d *Dashboard) apply(b *dataset.Bundle) {
	engine, err := view.NewEngine(d.schema, b.Genes)
	if err != nil {
		logger.Error("engine construction failed", zap.Error(err))
		return
	}

	var dendro *tree.Dendrogram
	if b.Tree != nil {
		dendro, err = tree.Build(b.Tree)
		if err != nil && !errors.Is(err, tree.ErrEmptyTree) {
			logger.Warn("tree payload rejected, tab disabled", zap.Error(err))
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.bundle = b
	d.engine = engine
	d.dendro = dendro
}

// Load performs a generation-tagged load; the gene-data completion
// gates first paint.
func (d *Dashboard) Load(ctx context.Context) error {
	_, err := d.loader.Load(ctx)
	return err
}

// Mode returns the detected source mode.
func (d *Dashboard) Mode(ctx context.Context) source.Mode {
	return d.loader.Mode(ctx)
}

// Metadata is the dashboard state summary served to the client.
type Metadata struct {
	Title      string                `json:"title"`
	Mode       string                `json:"mode"`
	Generation uint64                `json:"generation"`
	GeneCount  int                   `json:"gene_count"`
	FieldCount int                   `json:"field_count"`
	Organism   *dataset.Metadata     `json:"organism,omitempty"`
	Tabs       map[string]bool       `json:"tabs"`
	Viewport   view.Viewport         `json:"viewport"`
	Zoom       float64               `json:"zoom"`
	SortPreset string                `json:"sort_preset"`
	View       string                `json:"analysis_view"`
	ColorBy    string                `json:"color_by"`
	Selected   int                   `json:"selected"`
	Stats      *dataset.SummaryStats `json:"stats,omitempty"`
}

// Metadata reports the current state: organism info, counts, and which
// tabs are active given the nullable bundle members.
func (d *Dashboard) Metadata(ctx context.Context) (*Metadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bundle == nil {
		return nil, ErrNotLoaded
	}

	md := &Metadata{
		Title:      d.schema.Title,
		Mode:       string(d.loader.Mode(ctx)),
		Generation: d.bundle.Generation,
		GeneCount:  d.engine.GeneCount(),
		FieldCount: d.schema.FieldCount(),
		Organism:   d.bundle.Meta,
		Tabs: map[string]bool{
			"tracks":  true,
			"tree":    d.bundle.Tree != nil,
			"cluster": d.bundle.Cluster != nil,
		},
		Viewport:   d.engine.Viewport(),
		Zoom:       d.engine.Zoom(),
		SortPreset: d.engine.ActivePreset(),
		View:       d.engine.ActiveView(),
		ColorBy:    d.engine.ColorBy(),
		Selected:   d.engine.Selected(),
	}
	if d.bundle.Meta != nil {
		md.Stats = &d.bundle.Meta.Stats
	}
	return md, nil
}

// stateKey captures everything the tracks raster depends on.
func (d *Dashboard) stateKey() []string {
	vp := d.engine.Viewport()
	hidden := make([]string, 0, 4)
	for _, t := range d.schema.Tracks {
		found := false
		for _, et := range d.engine.EnabledTracks() {
			if et.ID == t.ID {
				found = true
				break
			}
		}
		if !found {
			hidden = append(hidden, t.ID)
		}
	}
	return []string{
		d.engine.ActivePreset(),
		d.engine.FilterKey(),
		strconv.Itoa(vp.Start),
		strconv.Itoa(vp.End),
		strings.Join(hidden, ","),
		d.engine.ColorBy(),
		strconv.Itoa(d.engine.Selected()),
	}
}

// TracksPNG renders (or serves from cache) the main heatmap raster.
func (d *Dashboard) TracksPNG() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bundle == nil {
		return nil, ErrNotLoaded
	}

	key := cache.RasterKey("tracks", d.bundle.Generation, d.stateKey()...)
	if data, ok := d.cache.GetRaster(key); ok {
		return data, nil
	}

	data, err := d.renderer.RenderTracks(d.engine, d.schema)
	if err != nil {
		return nil, fmt.Errorf("render tracks: %w", err)
	}
	d.cache.SetRaster(key, data)
	return data, nil
}

// MinimapPNG renders the fixed-scale overview strip, marking genes that
// match the query.
func (d *Dashboard) MinimapPNG(query string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bundle == nil {
		return nil, ErrNotLoaded
	}

	parts := append(d.stateKey(), "q="+query)
	key := cache.RasterKey("minimap", d.bundle.Generation, parts...)
	if data, ok := d.cache.GetRaster(key); ok {
		return data, nil
	}

	matches := make(map[int]bool)
	if query != "" {
		for _, id := range d.engine.Search(query) {
			matches[id] = true
		}
	}

	data, err := d.renderer.RenderMinimap(d.engine, d.schema, matches)
	if err != nil {
		return nil, fmt.Errorf("render minimap: %w", err)
	}
	d.cache.SetRaster(key, data)
	return data, nil
}

// TreePNG renders the dendrogram with the requested stat bars. Returns
// ErrUnavailable when the bundle has no tree payload; an empty tree
// renders the empty-state panel.
func (d *Dashboard) TreePNG(bars []tree.StatBar) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bundle == nil {
		return nil, ErrNotLoaded
	}
	if d.bundle.Tree == nil {
		return nil, ErrUnavailable
	}
	if d.dendro == nil {
		return d.renderer.RenderEmptyPanel("No phylogenetic tree available")
	}

	parts := make([]string, 0, len(bars))
	for _, b := range bars {
		parts = append(parts, string(b))
	}
	key := cache.RasterKey("tree", d.bundle.Generation, parts...)
	if data, ok := d.cache.GetRaster(key); ok {
		return data, nil
	}

	data, err := d.renderer.RenderDendrogram(d.dendro, bars)
	if err != nil {
		return nil, fmt.Errorf("render dendrogram: %w", err)
	}
	d.cache.SetRaster(key, data)
	return data, nil
}

// TreeLayout returns the laid-out dendrogram, or ErrUnavailable.
func (d *Dashboard) TreeLayout() (*tree.Dendrogram, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bundle == nil {
		return nil, ErrNotLoaded
	}
	if d.bundle.Tree == nil || d.dendro == nil {
		return nil, ErrUnavailable
	}
	return d.dendro, nil
}

// Genome returns the metadata record behind a tree leaf, the data
// effect of clicking it.
func (d *Dashboard) Genome(leafIndex int) (*dataset.Leaf, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bundle == nil {
		return nil, ErrNotLoaded
	}
	if d.dendro == nil {
		return nil, ErrUnavailable
	}
	if leafIndex < 0 || leafIndex >= d.dendro.LeafCount() {
		return nil, fmt.Errorf("leaf index %d out of range", leafIndex)
	}
	return d.dendro.Leaves[leafIndex].Leaf, nil
}

func (d *Dashboard) plotLocked(mode scatter.Mode) (*scatter.Plot, error) {
	if d.bundle == nil {
		return nil, ErrNotLoaded
	}
	if d.bundle.Cluster == nil {
		return nil, ErrUnavailable
	}
	return scatter.NewPlot(d.schema, d.bundle.Cluster, mode), nil
}

// colorTrackLocked resolves the effective color-by track: the explicit
// override, then the shared cursor, then the first declared track.
func (d *Dashboard) colorTrackLocked(override string) (schema.TrackDefinition, error) {
	id := override
	if id == "" {
		id = d.engine.ColorBy()
	}
	if id == "" && len(d.schema.Tracks) > 0 {
		return d.schema.Tracks[0], nil
	}
	t, ok := d.schema.Track(id)
	if !ok {
		return schema.TrackDefinition{}, fmt.Errorf("unknown track %q", id)
	}
	return t, nil
}

// ScatterPNG renders the embedding under one mode, colored by a track.
func (d *Dashboard) ScatterPNG(mode scatter.Mode, colorBy string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	plot, err := d.plotLocked(mode)
	if err != nil {
		return nil, err
	}
	track, err := d.colorTrackLocked(colorBy)
	if err != nil {
		return nil, err
	}

	key := cache.RasterKey("scatter", d.bundle.Generation,
		string(mode), track.ID, strconv.Itoa(d.engine.Selected()))
	if data, ok := d.cache.GetRaster(key); ok {
		return data, nil
	}

	data, err := d.renderer.RenderScatter(plot, track, d.engine.Selected())
	if err != nil {
		return nil, fmt.Errorf("render scatter: %w", err)
	}
	d.cache.SetRaster(key, data)
	return data, nil
}

// Nearest resolves the scatter point closest to a screen coordinate.
func (d *Dashboard) Nearest(mode scatter.Mode, x, y, radius float64) (scatter.Hit, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	plot, err := d.plotLocked(mode)
	if err != nil {
		return scatter.Hit{}, false, err
	}
	w, h := d.renderer.Size()
	hit, ok := plot.Nearest(x, y, radius, w, h)
	return hit, ok, nil
}

// Legend derives the legend for a track from its declared domain.
func (d *Dashboard) Legend(trackID string) (scatter.Legend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bundle == nil {
		return scatter.Legend{}, ErrNotLoaded
	}
	track, ok := d.schema.Track(trackID)
	if !ok {
		return scatter.Legend{}, fmt.Errorf("unknown track %q", trackID)
	}
	plot := scatter.NewPlot(d.schema, d.bundle.Cluster, scatter.ModeFeature)
	return plot.BuildLegend(track), nil
}

// Search runs the substring scan, memoized per generation and filter.
func (d *Dashboard) Search(query string) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bundle == nil {
		return nil, ErrNotLoaded
	}

	key := cache.SearchKey(d.bundle.Generation, d.engine.FilterKey()+":"+query)
	if data, ok := d.cache.GetQuery(key); ok {
		var ids []int
		if err := json.Unmarshal(data, &ids); err == nil {
			return ids, nil
		}
	}

	ids := d.engine.Search(query)
	if data, err := json.Marshal(ids); err == nil {
		d.cache.SetQuery(key, data)
	}
	return ids, nil
}

// Hover inverse-maps a raster pixel to its gene record.
func (d *Dashboard) Hover(px, py int) (view.HoverResult, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bundle == nil {
		return view.HoverResult{}, false, ErrNotLoaded
	}
	w, h := d.renderer.Size()
	res, ok := d.engine.Hover(px, py, w, h)
	return res, ok, nil
}

// Mutate runs one serialized view-state mutation.
func (d *Dashboard) Mutate(fn func(*view.Engine) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bundle == nil {
		return ErrNotLoaded
	}
	return fn(d.engine)
}
