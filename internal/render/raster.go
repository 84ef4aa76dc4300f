// Package render draws the dashboard rasters using fogleman/gg: the
// multi-track heatmap, the minimap strip, the dendrogram and the
// cluster scatter plot.
package render

import (
	"bytes"
	"image/color"
	"image/png"
	"sync"

	"github.com/fogleman/gg"

	"github.com/genome-heatmap/server/internal/scatter"
	"github.com/genome-heatmap/server/internal/schema"
	"github.com/genome-heatmap/server/internal/tree"
	"github.com/genome-heatmap/server/internal/view"
	"github.com/genome-heatmap/server/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	Width         int
	Height        int
	MinimapHeight int
}

// Renderer renders dashboard rasters. Contexts for the main canvas and
// PNG buffers are pooled.
type Renderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewRenderer creates a renderer for the given canvas geometry.
func NewRenderer(cfg Config) *Renderer {
	if cfg.Width <= 0 {
		cfg.Width = 1200
	}
	if cfg.Height <= 0 {
		cfg.Height = 600
	}
	if cfg.MinimapHeight <= 0 {
		cfg.MinimapHeight = 60
	}
	return &Renderer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.Width, cfg.Height)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// Size returns the main canvas dimensions.
func (r *Renderer) Size() (int, int) { return r.config.Width, r.config.Height }

// RenderTracks renders the enabled tracks against the engine's visible
// gene window: one row per track, one column per gene, colored by each
// track's declared domain. Placeholder tracks draw as hatched gray.
func (r *Renderer) RenderTracks(e *view.Engine, s *schema.Schema) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.White)
	dc.Clear()

	tracks := e.EnabledTracks()
	vp := e.Viewport()
	width := vp.End - vp.Start
	if len(tracks) == 0 || width == 0 {
		return r.encodeContext(dc)
	}

	w := float64(r.config.Width)
	h := float64(r.config.Height)
	cellW := w / float64(width)
	trackH := h / float64(len(tracks))

	for row, t := range tracks {
		py := float64(row) * trackH
		if t.Placeholder {
			r.drawPlaceholderRow(dc, py, w, trackH)
			continue
		}
		fieldIdx, _ := s.Index(t.Field)
		for col := 0; col < width; col++ {
			rec := e.Record(vp.Start + col)
			dc.SetColor(colormap.TrackColor(t, rec[fieldIdx]))
			dc.DrawRectangle(float64(col)*cellW, py, cellW, trackH)
			dc.Fill()
		}
	}

	// Outline the selected gene's column across all tracks.
	if sel := e.Selected(); sel >= 0 {
		if idIdx, ok := s.Index("id"); ok {
			for col := 0; col < width; col++ {
				if e.Record(vp.Start+col).Int(idIdx) == sel {
					dc.SetRGB(0, 0, 0)
					dc.SetLineWidth(1.5)
					dc.DrawRectangle(float64(col)*cellW, 0, cellW, h)
					dc.Stroke()
					break
				}
			}
		}
	}

	return r.encodeContext(dc)
}

func (r *Renderer) drawPlaceholderRow(dc *gg.Context, py, w, trackH float64) {
	dc.SetColor(colormap.MissingGray)
	dc.DrawRectangle(0, py, w, trackH)
	dc.Fill()
	dc.SetColor(color.RGBA{190, 190, 190, 255})
	dc.SetLineWidth(1)
	for x := -trackH; x < w; x += 8 {
		dc.DrawLine(x, py+trackH, x+trackH, py)
		dc.Stroke()
	}
}

// RenderMinimap renders the full gene range at a fixed scale with the
// current viewport rectangle and search-hit markers. It reads the same
// viewport the main raster uses; dragging the rectangle feeds back
// through Engine.SetMinimapWindow.
func (r *Renderer) RenderMinimap(e *view.Engine, s *schema.Schema, matches map[int]bool) ([]byte, error) {
	w := r.config.Width
	h := r.config.MinimapHeight
	dc := gg.NewContext(w, h)

	dc.SetColor(color.White)
	dc.Clear()

	n := e.GeneCount()
	if n == 0 {
		return r.encodePNG(dc)
	}

	// Summarize with the color-by track, falling back to the first
	// enabled track.
	tracks := e.EnabledTracks()
	var summary schema.TrackDefinition
	if t, ok := s.Track(e.ColorBy()); ok {
		summary = t
	} else if len(tracks) > 0 {
		summary = tracks[0]
	} else {
		return r.encodePNG(dc)
	}
	fieldIdx, _ := s.Index(summary.Field)
	idIdx, _ := s.Index("id")

	fw := float64(w)
	fh := float64(h)
	cellW := fw / float64(n)
	stripH := fh * 0.7

	for pos := 0; pos < n; pos++ {
		rec := e.Record(pos)
		dc.SetColor(colormap.TrackColor(summary, rec[fieldIdx]))
		dc.DrawRectangle(float64(pos)*cellW, 0, cellW, stripH)
		dc.Fill()

		if matches[rec.Int(idIdx)] {
			dc.SetRGB(0.9, 0.1, 0.1)
			dc.DrawRectangle(float64(pos)*cellW, stripH, cellW, fh-stripH)
			dc.Fill()
		}
	}

	vp := e.Viewport()
	dc.SetRGBA(0, 0, 0, 0.9)
	dc.SetLineWidth(2)
	dc.DrawRectangle(float64(vp.Start)*cellW, 0, float64(vp.End-vp.Start)*cellW, fh)
	dc.Stroke()

	return r.encodePNG(dc)
}

// RenderDendrogram draws the laid-out tree with optional per-leaf stat
// bars on the right. User genomes are highlighted.
func (r *Renderer) RenderDendrogram(d *tree.Dendrogram, bars []tree.StatBar) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.White)
	dc.Clear()

	if d == nil || d.LeafCount() == 0 {
		return r.encodeContext(dc)
	}

	w := float64(r.config.Width)
	h := float64(r.config.Height)
	pad := 10.0

	treeW := w * 0.6
	barsW := w - treeW - pad
	rowH := (h - 2*pad) / float64(d.LeafCount())

	// Node position: root (largest distance) at the left, leaves at the
	// right edge of the tree area.
	nodeX := func(n *tree.Node) float64 { return pad + (1-n.X)*(treeW-2*pad) }
	nodeY := func(n *tree.Node) float64 { return pad + (n.Y+0.5)*rowH }

	dc.SetRGB(0.2, 0.2, 0.2)
	dc.SetLineWidth(1.2)
	var draw func(n *tree.Node)
	draw = func(n *tree.Node) {
		if n.IsLeaf() {
			return
		}
		x := nodeX(n)
		yl, yr := nodeY(n.Left), nodeY(n.Right)
		// Vertical connector at the merge distance, horizontal branches
		// out to each child.
		dc.DrawLine(x, yl, x, yr)
		dc.DrawLine(x, yl, nodeX(n.Left), yl)
		dc.DrawLine(x, yr, nodeX(n.Right), yr)
		dc.Stroke()
		draw(n.Left)
		draw(n.Right)
	}
	draw(d.Root)

	// Leaf markers and labels.
	for _, leaf := range d.Leaves {
		x, y := nodeX(leaf), nodeY(leaf)
		if leaf.Leaf.IsUserGenome {
			dc.SetRGB(0.85, 0.2, 0.1)
		} else {
			dc.SetRGB(0.2, 0.2, 0.2)
		}
		dc.DrawCircle(x, y, 2.5)
		dc.Fill()
		dc.DrawString(leaf.Leaf.ID, x+5, y+3)
	}

	if len(bars) > 0 {
		r.drawStatBars(dc, d, bars, treeW+pad, pad, barsW, rowH)
	}

	return r.encodeContext(dc)
}

func (r *Renderer) drawStatBars(dc *gg.Context, d *tree.Dendrogram, bars []tree.StatBar, x0, y0, barsW, rowH float64) {
	colW := barsW / float64(len(bars))

	for bi, bar := range bars {
		maxV := 0.0
		for _, leaf := range d.Leaves {
			if v := tree.BarValue(leaf.Leaf, bar); v > maxV {
				maxV = v
			}
		}
		if maxV == 0 {
			maxV = 1
		}
		bx := x0 + float64(bi)*colW
		dc.SetColor(colormap.Categorical.AtIndex(bi))
		for _, leaf := range d.Leaves {
			v := tree.BarValue(leaf.Leaf, bar) / maxV
			y := y0 + leaf.Y*rowH + rowH*0.2
			dc.DrawRectangle(bx, y, v*(colW-4), rowH*0.6)
			dc.Fill()
		}
	}
}

// RenderScatter draws the cluster embedding colored by the given track,
// with the shared selected gene outlined.
func (r *Renderer) RenderScatter(p *scatter.Plot, track schema.TrackDefinition, selected int) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.White)
	dc.Clear()

	if p.Empty() {
		return r.encodeContext(dc)
	}

	w, h := r.config.Width, r.config.Height
	for i := 0; i < p.Len(); i++ {
		x, y := p.Project(i, w, h)
		dc.SetColor(p.Color(i, track))
		dc.DrawCircle(x, y, 2)
		dc.Fill()
	}

	if selected >= 0 {
		for i := 0; i < p.Len(); i++ {
			if p.Point(i).GeneID == selected {
				x, y := p.Project(i, w, h)
				dc.SetRGB(0, 0, 0)
				dc.SetLineWidth(1.5)
				dc.DrawCircle(x, y, 5)
				dc.Stroke()
				break
			}
		}
	}

	return r.encodeContext(dc)
}

// RenderEmptyPanel draws the empty-state panel shown when a view's data
// is absent.
func (r *Renderer) RenderEmptyPanel(message string) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.RGBA{248, 248, 248, 255})
	dc.Clear()
	dc.SetRGB(0.45, 0.45, 0.45)
	dc.DrawStringAnchored(message, float64(r.config.Width)/2, float64(r.config.Height)/2, 0.5, 0.5)

	return r.encodeContext(dc)
}

func (r *Renderer) encodeContext(dc *gg.Context) ([]byte, error) {
	return r.encodePNG(dc)
}

func (r *Renderer) encodePNG(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
