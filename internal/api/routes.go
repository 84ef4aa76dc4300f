// Package api provides HTTP handlers for the genome dashboard server.
package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/genome-heatmap/server/internal/apperr"
	"github.com/genome-heatmap/server/internal/scatter"
	"github.com/genome-heatmap/server/internal/schema"
	"github.com/genome-heatmap/server/internal/service"
	"github.com/genome-heatmap/server/internal/tree"
	"github.com/genome-heatmap/server/internal/view"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Dashboard   *service.Dashboard
	Schema      *schema.Schema
	CORSOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	svc := cfg.Dashboard

	r.Route("/api", func(r chi.Router) {
		r.Get("/metadata", metadataHandler(svc))
		r.Get("/schema", schemaHandler(cfg.Schema))

		r.Get("/tracks.png", tracksHandler(svc))
		r.Get("/minimap.png", minimapHandler(svc))

		r.Get("/tree.png", treePNGHandler(svc))
		r.Get("/tree", treeLayoutHandler(svc))
		r.Get("/tree/leaf/{index}", treeLeafHandler(svc))

		r.Get("/scatter/{mode}.png", scatterPNGHandler(svc))
		r.Get("/scatter/{mode}/nearest", scatterNearestHandler(svc))

		r.Get("/legend/{track}", legendHandler(svc))
		r.Get("/search", searchHandler(svc))
		r.Get("/hover", hoverHandler(svc))

		r.Route("/view", func(r chi.Router) {
			r.Post("/sort", sortHandler(svc))
			r.Post("/zoom", zoomHandler(svc))
			r.Post("/pan", panHandler(svc))
			r.Post("/track", trackToggleHandler(svc))
			r.Post("/filter", filterHandler(svc))
			r.Post("/colorby", colorByHandler(svc))
			r.Post("/select", selectHandler(svc))
			r.Post("/minimap", minimapWindowHandler(svc))
		})

		r.Post("/reload", reloadHandler(svc))
	})

	return r
}

// writeError maps service errors to status codes. Auxiliary-data
// absence is an empty state (204), never a failure.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnavailable):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrNotLoaded):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, apperr.ErrRemoteAuth):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		var cfgErr *apperr.ConfigError
		if errors.As(err, &cfgErr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func metadataHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		md, err := svc.Metadata(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, md)
	}
}

func schemaHandler(s *schema.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"title":          s.Title,
			"organism":       s.Organism,
			"genome_id":      s.GenomeID,
			"n_ref_genomes":  s.NRefGenomes,
			"fields":         s.FieldNames(),
			"tracks":         s.Tracks,
			"sort_presets":   s.SortPresets,
			"analysis_views": s.AnalysisViews,
		})
	}
}

func tracksHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := svc.TracksPNG()
		if err != nil {
			writeError(w, err)
			return
		}
		writePNG(w, data)
	}
}

func minimapHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		data, err := svc.MinimapPNG(query)
		if err != nil {
			writeError(w, err)
			return
		}
		writePNG(w, data)
	}
}

func parseStatBars(raw string) []tree.StatBar {
	if raw == "" {
		return []tree.StatBar{tree.BarGenes, tree.BarClusters, tree.BarCoreFraction}
	}
	var bars []tree.StatBar
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		switch tree.StatBar(p) {
		case tree.BarGenes, tree.BarClusters, tree.BarCoreFraction:
			bars = append(bars, tree.StatBar(p))
		}
	}
	return bars
}

func treePNGHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bars := parseStatBars(r.URL.Query().Get("bars"))
		data, err := svc.TreePNG(bars)
		if err != nil {
			writeError(w, err)
			return
		}
		writePNG(w, data)
	}
}

func treeLayoutHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.TreeLayout()
		if err != nil {
			writeError(w, err)
			return
		}
		leaves := make([]map[string]interface{}, 0, d.LeafCount())
		for _, n := range d.Leaves {
			leaves = append(leaves, map[string]interface{}{
				"id":             n.Leaf.ID,
				"taxonomy":       n.Leaf.Taxonomy,
				"is_user_genome": n.Leaf.IsUserGenome,
				"x":              n.X,
				"y":              n.Y,
			})
		}
		writeJSON(w, map[string]interface{}{
			"n_leaves":     d.LeafCount(),
			"n_internal":   d.InternalCount(),
			"max_distance": d.MaxDistance,
			"leaves":       leaves,
		})
	}
}

func treeLeafHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			http.Error(w, "invalid leaf index", http.StatusBadRequest)
			return
		}
		leaf, err := svc.Genome(idx)
		if err != nil {
			if errors.Is(err, service.ErrUnavailable) || errors.Is(err, service.ErrNotLoaded) {
				writeError(w, err)
				return
			}
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, leaf)
	}
}

func scatterPNGHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSuffix(chi.URLParam(r, "mode"), ".png")
		mode, err := scatter.ParseMode(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		colorBy := strings.TrimSpace(r.URL.Query().Get("color_by"))

		data, err := svc.ScatterPNG(mode, colorBy)
		if err != nil {
			writeError(w, err)
			return
		}
		writePNG(w, data)
	}
}

func scatterNearestHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := scatter.ParseMode(chi.URLParam(r, "mode"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
		y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
		if errX != nil || errY != nil || math.IsNaN(x) || math.IsNaN(y) {
			http.Error(w, "invalid x/y", http.StatusBadRequest)
			return
		}
		radius := 8.0
		if raw := r.URL.Query().Get("radius"); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 && v <= 100 {
				radius = v
			}
		}

		hit, ok, err := svc.Nearest(mode, x, y, radius)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeJSON(w, map[string]interface{}{"found": false})
			return
		}
		writeJSON(w, map[string]interface{}{"found": true, "hit": hit})
	}
}

func legendHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trackID := chi.URLParam(r, "track")
		legend, err := svc.Legend(trackID)
		if err != nil {
			if errors.Is(err, service.ErrNotLoaded) {
				writeError(w, err)
				return
			}
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, legend)
	}
}

func searchHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		ids, err := svc.Search(query)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{
			"query":   query,
			"total":   len(ids),
			"matches": ids,
		})
	}
}

func hoverHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		px, errX := strconv.Atoi(r.URL.Query().Get("x"))
		py, errY := strconv.Atoi(r.URL.Query().Get("y"))
		if errX != nil || errY != nil {
			http.Error(w, "invalid x/y", http.StatusBadRequest)
			return
		}
		res, ok, err := svc.Hover(px, py)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeJSON(w, map[string]interface{}{"found": false})
			return
		}
		writeJSON(w, map[string]interface{}{"found": true, "gene": res})
	}
}

// mutate decodes the request body and runs one serialized view mutation.
func mutate(svc *service.Dashboard, w http.ResponseWriter, r *http.Request, body interface{}, fn func(*view.Engine) error) {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := svc.Mutate(fn); err != nil {
		if errors.Is(err, service.ErrNotLoaded) {
			writeError(w, err)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]interface{}{"ok": true})
}

func sortHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Preset string `json:"preset"`
		}
		mutate(svc, w, r, &req, func(e *view.Engine) error {
			return e.SetSort(req.Preset)
		})
	}
}

func zoomHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Factor float64 `json:"factor"`
		}
		mutate(svc, w, r, &req, func(e *view.Engine) error {
			e.SetZoom(req.Factor)
			return nil
		})
	}
}

func panHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Delta int `json:"delta"`
		}
		mutate(svc, w, r, &req, func(e *view.Engine) error {
			e.Pan(req.Delta)
			return nil
		})
	}
}

func trackToggleHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Track string `json:"track"`
		}
		mutate(svc, w, r, &req, func(e *view.Engine) error {
			return e.ToggleTrack(req.Track)
		})
	}
}

func filterHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			View  string              `json:"view"`
			Rules []schema.FilterRule `json:"rules"`
			Clear bool                `json:"clear"`
		}
		mutate(svc, w, r, &req, func(e *view.Engine) error {
			switch {
			case req.Clear:
				e.ClearFilter()
				return nil
			case req.View != "":
				return e.ApplyView(req.View)
			default:
				return e.ApplyRules(req.Rules)
			}
		})
	}
}

func colorByHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Track string `json:"track"`
		}
		mutate(svc, w, r, &req, func(e *view.Engine) error {
			return e.SetColorBy(req.Track)
		})
	}
}

func selectHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GeneID int `json:"gene_id"`
		}
		mutate(svc, w, r, &req, func(e *view.Engine) error {
			e.Select(req.GeneID)
			return nil
		})
	}
}

func minimapWindowHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		}
		mutate(svc, w, r, &req, func(e *view.Engine) error {
			e.SetMinimapWindow(req.Start, req.End)
			return nil
		})
	}
}

func reloadHandler(svc *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Load(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		md, err := svc.Metadata(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(md)
	}
}
