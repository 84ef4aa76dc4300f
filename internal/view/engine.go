// Package view owns the mutable interactive state of the track heatmap:
// sort order, active filter, viewport, track visibility, selection and
// color-by cursor. The underlying gene array is never mutated; every
// operation re-derives a visible index permutation over it.
package view

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/genome-heatmap/server/internal/dataset"
	"github.com/genome-heatmap/server/internal/schema"
)

// Zoom bounds for the main raster.
const (
	MinZoom = 1.0
	MaxZoom = 100.0
)

// Viewport is the visible gene-index window [Start, End) into the
// filtered permutation.
type Viewport struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Engine is the track heatmap state machine. All operations execute
// synchronously against the in-memory dataset; callers serialize access.
type Engine struct {
	schema *schema.Schema
	genes  []dataset.GeneRecord

	order   []int // permutation of gene indices under the current sort
	visible []int // order with the active filter applied

	zoom   float64
	offset int

	hidden   map[string]bool
	preset   string
	viewID   string
	rules    []schema.FilterRule
	colorBy  string
	selected int

	idIdx, fidIdx, funcIdx int
}

// NewEngine creates an engine over an immutable gene array in declared
// order, zoomed fully out, with no filter and all tracks visible.
func NewEngine(s *schema.Schema, genes []dataset.GeneRecord) (*Engine, error) {
	idIdx, ok := s.Index("id")
	if !ok {
		return nil, fmt.Errorf("schema has no id field")
	}
	fidIdx, ok := s.Index("fid")
	if !ok {
		return nil, fmt.Errorf("schema has no fid field")
	}
	funcIdx, ok := s.Index("function")
	if !ok {
		return nil, fmt.Errorf("schema has no function field")
	}

	e := &Engine{
		schema:   s,
		genes:    genes,
		zoom:     MinZoom,
		hidden:   make(map[string]bool),
		preset:   "id",
		viewID:   "all",
		selected: -1,
		idIdx:    idIdx,
		fidIdx:   fidIdx,
		funcIdx:  funcIdx,
	}
	e.order = make([]int, len(genes))
	for i := range e.order {
		e.order[i] = i
	}
	e.refilter()
	return e, nil
}

// GeneCount returns the filtered gene count.
func (e *Engine) GeneCount() int { return len(e.visible) }

// Visible returns the filtered permutation of gene indices.
func (e *Engine) Visible() []int { return e.visible }

// Record returns the gene record at filtered position pos.
func (e *Engine) Record(pos int) dataset.GeneRecord {
	return e.genes[e.visible[pos]]
}

// SetSort stably re-orders the permutation by the preset's keys, with
// ties broken by original gene id. Sorting is idempotent; the "id"
// preset restores declared order.
func (e *Engine) SetSort(presetID string) error {
	preset, ok := e.schema.Preset(presetID)
	if !ok {
		return fmt.Errorf("unknown sort preset %q", presetID)
	}

	sort.SliceStable(e.order, func(a, b int) bool {
		ra, rb := e.genes[e.order[a]], e.genes[e.order[b]]
		for _, key := range preset.Keys {
			idx, _ := e.schema.Index(key.Field)
			c := compareField(ra, rb, idx)
			if c == 0 {
				continue
			}
			if key.Descending {
				return c > 0
			}
			return c < 0
		}
		return ra.Float(e.idIdx) < rb.Float(e.idIdx)
	})

	e.preset = presetID
	e.refilter()
	return nil
}

// ActivePreset returns the id of the sort preset in effect.
func (e *Engine) ActivePreset() string { return e.preset }

func compareField(a, b dataset.GeneRecord, idx int) int {
	sa, aok := a[idx].(string)
	sb, bok := b[idx].(string)
	if aok && bok {
		return strings.Compare(strings.ToLower(sa), strings.ToLower(sb))
	}
	fa, fb := a.Float(idx), b.Float(idx)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}

// SetZoom sets the zoom factor, clamped to [1, 100], preserving the
// window start where possible.
func (e *Engine) SetZoom(factor float64) {
	if math.IsNaN(factor) {
		factor = MinZoom
	}
	e.zoom = math.Min(MaxZoom, math.Max(MinZoom, factor))
}

// Zoom returns the current zoom factor.
func (e *Engine) Zoom() float64 { return e.zoom }

// Pan shifts the window start by delta genes. The resulting viewport is
// clamped to the dataset bounds.
func (e *Engine) Pan(delta int) {
	e.offset += delta
}

// Viewport returns the clamped visible window. For any zoom in [1,100]
// and any accumulated pan, Start and End stay within [0, GeneCount].
func (e *Engine) Viewport() Viewport {
	n := len(e.visible)
	if n == 0 {
		return Viewport{}
	}
	width := int(math.Ceil(float64(n) / e.zoom))
	if width < 1 {
		width = 1
	}
	if width > n {
		width = n
	}
	start := e.offset
	if start > n-width {
		start = n - width
	}
	if start < 0 {
		start = 0
	}
	e.offset = start
	return Viewport{Start: start, End: start + width}
}

// SetMinimapWindow re-derives zoom and pan from a dragged minimap
// rectangle given as fractions of the full gene range. The viewport has
// a single owner; the minimap is just a second projection of it.
func (e *Engine) SetMinimapWindow(f0, f1 float64) {
	if f1 < f0 {
		f0, f1 = f1, f0
	}
	span := f1 - f0
	if span <= 0 {
		span = 1.0 / MaxZoom
	}
	e.SetZoom(1 / span)
	e.offset = int(math.Round(f0 * float64(len(e.visible))))
}

// ToggleTrack flips visibility for a declared track.
func (e *Engine) ToggleTrack(id string) error {
	if _, ok := e.schema.Track(id); !ok {
		return fmt.Errorf("unknown track %q", id)
	}
	e.hidden[id] = !e.hidden[id]
	return nil
}

// EnabledTracks returns the visible tracks in declaration order.
func (e *Engine) EnabledTracks() []schema.TrackDefinition {
	out := make([]schema.TrackDefinition, 0, len(e.schema.Tracks))
	for _, t := range e.schema.Tracks {
		if !e.hidden[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

// ApplyView activates a named analysis view's filter rules.
func (e *Engine) ApplyView(viewID string) error {
	v, ok := e.schema.View(viewID)
	if !ok {
		return fmt.Errorf("unknown analysis view %q", viewID)
	}
	e.viewID = v.ID
	e.rules = v.Rules
	e.refilter()
	return nil
}

// ApplyRules activates an ad-hoc declarative filter.
func (e *Engine) ApplyRules(rules []schema.FilterRule) error {
	for _, r := range rules {
		if !e.schema.HasField(r.Field) {
			return fmt.Errorf("filter references unknown field %q", r.Field)
		}
	}
	e.viewID = ""
	e.rules = rules
	e.refilter()
	return nil
}

// ClearFilter removes the active filter.
func (e *Engine) ClearFilter() {
	e.viewID = "all"
	e.rules = nil
	e.refilter()
}

// ActiveView returns the active analysis view id, or "" for an ad-hoc
// filter.
func (e *Engine) ActiveView() string { return e.viewID }

// FilterKey identifies the active filter for cache keying: the view id
// for a named view, otherwise a serialization of the ad-hoc rules.
// Distinct rule sets must never share a key.
func (e *Engine) FilterKey() string {
	if e.viewID != "" {
		return e.viewID
	}
	var b strings.Builder
	b.WriteString("rules:")
	for i, r := range e.rules {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%s %s %v", r.Field, r.Op, r.Value)
	}
	return b.String()
}

func (e *Engine) refilter() {
	if len(e.rules) == 0 {
		e.visible = append(e.visible[:0], e.order...)
		return
	}
	e.visible = e.visible[:0]
	for _, gi := range e.order {
		if e.matches(e.genes[gi]) {
			e.visible = append(e.visible, gi)
		}
	}
}

func (e *Engine) matches(rec dataset.GeneRecord) bool {
	for _, r := range e.rules {
		idx, _ := e.schema.Index(r.Field)
		if !applyRule(rec, idx, r) {
			return false
		}
	}
	return true
}

func applyRule(rec dataset.GeneRecord, idx int, r schema.FilterRule) bool {
	if r.Op == "contains" {
		want, _ := r.Value.(string)
		return strings.Contains(strings.ToLower(rec.Str(idx)), strings.ToLower(want))
	}

	var want float64
	switch v := r.Value.(type) {
	case float64:
		want = v
	case int:
		want = float64(v)
	default:
		return false
	}
	got := rec.Float(idx)
	switch r.Op {
	case "eq":
		return got == want
	case "ne":
		return got != want
	case "lt":
		return got < want
	case "le":
		return got <= want
	case "gt":
		return got > want
	case "ge":
		return got >= want
	}
	return false
}

// Search scans feature id and function text for a case-insensitive
// substring, over the filtered gene set. An empty query matches all.
func (e *Engine) Search(query string) []int {
	q := strings.ToLower(strings.TrimSpace(query))
	ids := make([]int, 0, 32)
	for _, gi := range e.visible {
		rec := e.genes[gi]
		if q == "" ||
			strings.Contains(strings.ToLower(rec.Str(e.fidIdx)), q) ||
			strings.Contains(strings.ToLower(rec.Str(e.funcIdx)), q) {
			ids = append(ids, rec.Int(e.idIdx))
		}
	}
	return ids
}

// HoverResult identifies the cell under the cursor.
type HoverResult struct {
	TrackID string             `json:"track_id"`
	GeneID  int                `json:"gene_id"`
	Record  dataset.GeneRecord `json:"record"`
	Fields  map[string]any     `json:"fields"`
}

// Hover inverse-maps a raster pixel to (track, gene) and returns the
// full record. ok is false outside the plot.
func (e *Engine) Hover(px, py, plotW, plotH int) (HoverResult, bool) {
	tracks := e.EnabledTracks()
	vp := e.Viewport()
	width := vp.End - vp.Start
	if plotW <= 0 || plotH <= 0 || len(tracks) == 0 || width == 0 {
		return HoverResult{}, false
	}
	if px < 0 || px >= plotW || py < 0 || py >= plotH {
		return HoverResult{}, false
	}

	row := py * len(tracks) / plotH
	col := vp.Start + px*width/plotW
	if row >= len(tracks) || col >= vp.End {
		return HoverResult{}, false
	}

	rec := e.genes[e.visible[col]]
	fields := make(map[string]any, e.schema.FieldCount())
	for i, name := range e.schema.FieldNames() {
		fields[name] = rec[i]
	}
	return HoverResult{
		TrackID: tracks[row].ID,
		GeneID:  rec.Int(e.idIdx),
		Record:  rec,
		Fields:  fields,
	}, true
}

// Select records the shared selected-gene cursor (-1 clears).
func (e *Engine) Select(geneID int) { e.selected = geneID }

// Selected returns the shared selected-gene cursor.
func (e *Engine) Selected() int { return e.selected }

// SetColorBy records the shared color-by track cursor consumed by the
// scatter view.
func (e *Engine) SetColorBy(trackID string) error {
	if _, ok := e.schema.Track(trackID); !ok {
		return fmt.Errorf("unknown track %q", trackID)
	}
	e.colorBy = trackID
	return nil
}

// ColorBy returns the shared color-by track id ("" when unset).
func (e *Engine) ColorBy() string { return e.colorBy }
