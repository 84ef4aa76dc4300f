// Package schema holds the validated dashboard configuration: the gene
// tuple field layout, track definitions, sort presets and analysis views.
// Every other component resolves tuple fields by name through this
// package, never by literal position.
package schema

import (
	"encoding/json"

	"github.com/genome-heatmap/server/internal/apperr"
)

// Track kinds.
const (
	KindCategorical = "categorical"
	KindNumeric     = "numeric"
)

// FieldNames29 is the full gene tuple layout, order-significant.
var FieldNames29 = []string{
	"id", "fid", "length", "start", "strand",
	"conservation_frac", "pan_category", "function",
	"n_ko", "n_cog", "n_pfam", "n_go", "localization",
	"rast_cons", "ko_cons", "go_cons", "ec_cons", "avg_cons",
	"bakta_cons", "ec_avg_cons", "specificity",
	"is_hypo", "has_name", "n_ec", "agreement",
	"cluster_size", "n_modules", "ec_map_cons", "prot_len",
}

// FieldNames21 is the legacy layout: the first 21 fields of the full one.
var FieldNames21 = FieldNames29[:21]

// CategoryLevel maps one stored value of a categorical field to a label.
type CategoryLevel struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// TrackDefinition describes one horizontal heatmap band.
type TrackDefinition struct {
	ID          string          `json:"id"`
	Label       string          `json:"label"`
	Field       string          `json:"field"`
	Kind        string          `json:"kind"`
	Categories  []CategoryLevel `json:"categories,omitempty"`
	Min         float64         `json:"min,omitempty"`
	Max         float64         `json:"max,omitempty"`
	Colormap    string          `json:"colormap,omitempty"`
	Placeholder bool            `json:"placeholder,omitempty"`
}

// SortKey is one field of a sort preset.
type SortKey struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// SortPreset is a named declarative ordering over gene tuple fields.
type SortPreset struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	Keys  []SortKey `json:"keys"`
}

// FilterRule is one predicate of an analysis view.
type FilterRule struct {
	Field string  `json:"field"`
	Op    string  `json:"op"` // eq, ne, lt, le, gt, ge, contains
	Value any     `json:"value"`
}

// AnalysisView is a named declarative filter over the gene set.
type AnalysisView struct {
	ID    string       `json:"id"`
	Label string       `json:"label"`
	Rules []FilterRule `json:"rules"`
}

// DataFiles names the standalone payload files.
type DataFiles struct {
	Genes   string `json:"genes"`
	Tree    string `json:"tree"`
	Cluster string `json:"cluster"`
}

// rawConfig mirrors the JSON config descriptor.
type rawConfig struct {
	Title         string         `json:"title"`
	Organism      string         `json:"organism"`
	GenomeID      string         `json:"genome_id"`
	NRefGenomes   int            `json:"n_ref_genomes"`
	DataFiles     DataFiles      `json:"data_files"`
	Fields        map[string]int `json:"fields"`
	Tracks        []TrackDefinition
	SortPresets   []SortPreset   `json:"sort_presets"`
	AnalysisViews []AnalysisView `json:"analysis_views"`
}

// Schema is the validated configuration consulted by every component.
type Schema struct {
	Title       string
	Organism    string
	GenomeID    string
	NRefGenomes int
	DataFiles   DataFiles

	fields map[string]int
	order  []string

	Tracks        []TrackDefinition
	SortPresets   []SortPreset
	AnalysisViews []AnalysisView
}

// Index resolves a field name to its tuple position.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.fields[name]
	return i, ok
}

// FieldCount returns the declared tuple arity.
func (s *Schema) FieldCount() int { return len(s.order) }

// FieldNames returns the field names in tuple order.
func (s *Schema) FieldNames() []string { return s.order }

// HasField reports whether name is part of the active layout.
func (s *Schema) HasField(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Track returns the track with the given id.
func (s *Schema) Track(id string) (TrackDefinition, bool) {
	for _, t := range s.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return TrackDefinition{}, false
}

// Preset returns the sort preset with the given id.
func (s *Schema) Preset(id string) (SortPreset, bool) {
	for _, p := range s.SortPresets {
		if p.ID == id {
			return p, true
		}
	}
	return SortPreset{}, false
}

// View returns the analysis view with the given id.
func (s *Schema) View(id string) (AnalysisView, bool) {
	for _, v := range s.AnalysisViews {
		if v.ID == id {
			return v, true
		}
	}
	return AnalysisView{}, false
}

// UnmarshalJSON keeps track declaration order while using the lowercase
// wire names for the track list.
func (r *rawConfig) UnmarshalJSON(data []byte) error {
	type alias rawConfig
	aux := struct {
		*alias
		Tracks []TrackDefinition `json:"tracks"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Tracks = aux.Tracks
	return nil
}

// Parse decodes and validates a JSON config descriptor.
func Parse(raw []byte) (*Schema, error) {
	var rc rawConfig
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, apperr.NewConfigError("", "malformed config descriptor: %v", err)
	}
	return build(&rc)
}

func build(rc *rawConfig) (*Schema, error) {
	if len(rc.Fields) == 0 {
		return nil, apperr.NewConfigError("fields", "no fields declared")
	}

	order := make([]string, len(rc.Fields))
	seen := make(map[int]string, len(rc.Fields))
	for name, idx := range rc.Fields {
		if idx < 0 || idx >= len(rc.Fields) {
			return nil, apperr.NewConfigError(name, "field index %d out of range [0,%d)", idx, len(rc.Fields))
		}
		if prev, dup := seen[idx]; dup {
			return nil, apperr.NewConfigError(name, "field index %d already used by %q", idx, prev)
		}
		seen[idx] = name
		order[idx] = name
	}

	s := &Schema{
		Title:         rc.Title,
		Organism:      rc.Organism,
		GenomeID:      rc.GenomeID,
		NRefGenomes:   rc.NRefGenomes,
		DataFiles:     rc.DataFiles,
		fields:        rc.Fields,
		order:         order,
		Tracks:        rc.Tracks,
		SortPresets:   rc.SortPresets,
		AnalysisViews: rc.AnalysisViews,
	}

	trackIDs := make(map[string]bool, len(s.Tracks))
	for _, t := range s.Tracks {
		if t.ID == "" {
			return nil, apperr.NewConfigError("tracks", "track with empty id")
		}
		if trackIDs[t.ID] {
			return nil, apperr.NewConfigError(t.ID, "duplicate track id")
		}
		trackIDs[t.ID] = true
		if !s.HasField(t.Field) {
			return nil, apperr.NewConfigError(t.ID, "unknown field %q", t.Field)
		}
		switch t.Kind {
		case KindCategorical:
			if len(t.Categories) == 0 {
				return nil, apperr.NewConfigError(t.ID, "categorical track with no categories")
			}
		case KindNumeric:
			if t.Min > t.Max {
				return nil, apperr.NewConfigError(t.ID, "inverted domain: min %g > max %g", t.Min, t.Max)
			}
		default:
			return nil, apperr.NewConfigError(t.ID, "unknown track kind %q", t.Kind)
		}
	}

	for _, p := range s.SortPresets {
		if len(p.Keys) == 0 {
			return nil, apperr.NewConfigError(p.ID, "sort preset with no keys")
		}
		for _, k := range p.Keys {
			if !s.HasField(k.Field) {
				return nil, apperr.NewConfigError(p.ID, "sort key references unknown field %q", k.Field)
			}
		}
	}

	for _, v := range s.AnalysisViews {
		for _, r := range v.Rules {
			if !s.HasField(r.Field) {
				return nil, apperr.NewConfigError(v.ID, "filter references unknown field %q", r.Field)
			}
			switch r.Op {
			case "eq", "ne", "lt", "le", "gt", "ge", "contains":
			default:
				return nil, apperr.NewConfigError(v.ID, "unknown filter op %q", r.Op)
			}
		}
	}

	return s, nil
}

// fieldsFor builds a name->index map from an ordered name list.
func fieldsFor(names []string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}
