// Package scatter models the 2D cluster-embedding view: two exclusive
// precomputed coordinate modes, render-time color-by over any schema
// track, and nearest-point hover.
package scatter

import (
	"fmt"
	"image/color"
	"math"

	"github.com/genome-heatmap/server/internal/dataset"
	"github.com/genome-heatmap/server/internal/schema"
	"github.com/genome-heatmap/server/pkg/colormap"
)

// Mode selects which precomputed embedding to plot.
type Mode string

const (
	// ModeFeature is the gene-feature embedding.
	ModeFeature Mode = "feature"
	// ModePresence is the presence/absence embedding.
	ModePresence Mode = "presence"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFeature, ModePresence:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown embedding mode %q", s)
}

// Bounds is the coordinate extent of one embedding.
type Bounds struct {
	MinX, MaxX, MinY, MaxY float64
}

// Plot exposes the cluster points under one embedding mode. Coordinates
// are fixed at load time; color-by changes never recompute them.
type Plot struct {
	schema *schema.Schema
	points []dataset.ClusterPoint
	mode   Mode
	bounds Bounds
}

// NewPlot builds a plot over the cluster payload. A nil payload yields
// an empty plot (the view's empty state), not an error.
func NewPlot(s *schema.Schema, data *dataset.ClusterData, mode Mode) *Plot {
	p := &Plot{schema: s, mode: mode}
	if data != nil {
		p.points = data.Points
	}
	p.bounds = computeBounds(p.points, mode)
	return p
}

// Empty reports whether there is anything to draw.
func (p *Plot) Empty() bool { return len(p.points) == 0 }

// Len returns the point count.
func (p *Plot) Len() int { return len(p.points) }

// Point returns the i-th point.
func (p *Plot) Point(i int) dataset.ClusterPoint { return p.points[i] }

// Bounds returns the coordinate extent for the active mode.
func (p *Plot) Bounds() Bounds { return p.bounds }

// Coord returns the i-th point's coordinates under the active mode.
func (p *Plot) Coord(i int) (float64, float64) {
	pt := p.points[i]
	if p.mode == ModePresence {
		return pt.Presence[0], pt.Presence[1]
	}
	return pt.Feature[0], pt.Feature[1]
}

func computeBounds(points []dataset.ClusterPoint, mode Mode) Bounds {
	b := Bounds{MinX: math.Inf(1), MaxX: math.Inf(-1), MinY: math.Inf(1), MaxY: math.Inf(-1)}
	if len(points) == 0 {
		return Bounds{MaxX: 1, MaxY: 1}
	}
	for i := range points {
		c := points[i].Feature
		if mode == ModePresence {
			c = points[i].Presence
		}
		b.MinX = math.Min(b.MinX, c[0])
		b.MaxX = math.Max(b.MaxX, c[0])
		b.MinY = math.Min(b.MinY, c[1])
		b.MaxY = math.Max(b.MaxY, c[1])
	}
	if b.MaxX == b.MinX {
		b.MaxX = b.MinX + 1
	}
	if b.MaxY == b.MinY {
		b.MaxY = b.MinY + 1
	}
	return b
}

// Color resolves the i-th point's color under a track, computed at
// render time from the denormalized field copy.
func (p *Plot) Color(i int, track schema.TrackDefinition) color.Color {
	v, ok := p.points[i].Fields[track.Field]
	if !ok {
		return color.Gray{Y: 200}
	}
	return colormap.TrackColor(track, v)
}

// LegendEntry is one discrete legend item for a categorical track.
type LegendEntry struct {
	Label string `json:"label"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// Legend describes how a track maps to colors: discrete entries for
// categorical tracks, a gradient over the declared domain for numeric
// ones.
type Legend struct {
	TrackID  string        `json:"track_id"`
	Kind     string        `json:"kind"`
	Entries  []LegendEntry `json:"entries,omitempty"`
	Min      float64       `json:"min,omitempty"`
	Max      float64       `json:"max,omitempty"`
	Colormap string        `json:"colormap,omitempty"`
	NPoints  int           `json:"n_points"`
}

// BuildLegend derives the legend from the track's declared domain.
func (p *Plot) BuildLegend(track schema.TrackDefinition) Legend {
	leg := Legend{TrackID: track.ID, Kind: track.Kind, NPoints: len(p.points)}
	if track.Kind == schema.KindCategorical {
		leg.Entries = make([]LegendEntry, 0, len(track.Categories))
		for _, c := range track.Categories {
			leg.Entries = append(leg.Entries, LegendEntry{
				Label: c.Label,
				Value: c.Value,
				Color: colormap.Hex(colormap.TrackColor(track, float64(c.Value))),
			})
		}
		return leg
	}
	leg.Min = track.Min
	leg.Max = track.Max
	leg.Colormap = track.Colormap
	return leg
}

// Hit is the result of a nearest-point query.
type Hit struct {
	GeneID    int            `json:"gene_id"`
	FeatureID string         `json:"fid"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	Fields    map[string]any `json:"fields"`
}

// Nearest resolves the closest point to a screen coordinate within
// radiusPx, projecting points onto a plotW x plotH canvas. ok is false
// when nothing lies within the radius.
func (p *Plot) Nearest(px, py, radiusPx float64, plotW, plotH int) (Hit, bool) {
	best := -1
	bestDist := radiusPx * radiusPx
	for i := range p.points {
		sx, sy := p.Project(i, plotW, plotH)
		dx, dy := sx-px, sy-py
		d := dx*dx + dy*dy
		if d <= bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 {
		return Hit{}, false
	}
	pt := p.points[best]
	x, y := p.Coord(best)
	return Hit{GeneID: pt.GeneID, FeatureID: pt.FeatureID, X: x, Y: y, Fields: pt.Fields}, true
}

// Project maps the i-th point into screen space, Y-flipped so larger
// embedding Y draws toward the top.
func (p *Plot) Project(i int, plotW, plotH int) (float64, float64) {
	x, y := p.Coord(i)
	sx := (x - p.bounds.MinX) / (p.bounds.MaxX - p.bounds.MinX) * float64(plotW)
	sy := (1 - (y-p.bounds.MinY)/(p.bounds.MaxY-p.bounds.MinY)) * float64(plotH)
	return sx, sy
}
