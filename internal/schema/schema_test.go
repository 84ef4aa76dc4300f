package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/genome-heatmap/server/internal/apperr"
)

func minimalConfig() string {
	return `{
  "title": "Test Genome",
  "organism": "E. coli",
  "fields": {"id": 0, "fid": 1, "length": 2, "function": 3, "pan_category": 4},
  "tracks": [
    {"id": "pan", "label": "Pan category", "field": "pan_category", "kind": "categorical",
     "categories": [{"value": 0, "label": "Unknown"}, {"value": 2, "label": "Core"}]},
    {"id": "length", "label": "Length", "field": "length", "kind": "numeric", "min": 0, "max": 10000, "colormap": "viridis"}
  ],
  "sort_presets": [{"id": "id", "label": "ID", "keys": [{"field": "id"}]}],
  "analysis_views": [{"id": "core", "label": "Core", "rules": [{"field": "pan_category", "op": "eq", "value": 2}]}]
}`
}

func TestParse_Valid(t *testing.T) {
	s, err := Parse([]byte(minimalConfig()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.FieldCount() != 5 {
		t.Errorf("expected 5 fields, got %d", s.FieldCount())
	}
	if idx, ok := s.Index("function"); !ok || idx != 3 {
		t.Errorf("expected function at index 3, got %d ok=%v", idx, ok)
	}
	names := s.FieldNames()
	if names[0] != "id" || names[4] != "pan_category" {
		t.Errorf("field order not reconstructed: %v", names)
	}
	if _, ok := s.Track("pan"); !ok {
		t.Error("expected track pan")
	}
	if _, ok := s.Preset("id"); !ok {
		t.Error("expected preset id")
	}
	if _, ok := s.View("core"); !ok {
		t.Error("expected view core")
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"malformed", `{"fields": `},
		{"noFields", `{"fields": {}}`},
		{"indexOutOfRange", `{"fields": {"id": 0, "fid": 5}}`},
		{"duplicateIndex", `{"fields": {"id": 0, "fid": 0}}`},
		{"unknownTrackField", `{"fields": {"id": 0},
			"tracks": [{"id": "t", "field": "nope", "kind": "numeric"}]}`},
		{"duplicateTrackID", `{"fields": {"id": 0},
			"tracks": [
				{"id": "t", "field": "id", "kind": "numeric"},
				{"id": "t", "field": "id", "kind": "numeric"}]}`},
		{"emptyCategorical", `{"fields": {"id": 0},
			"tracks": [{"id": "t", "field": "id", "kind": "categorical"}]}`},
		{"invertedDomain", `{"fields": {"id": 0},
			"tracks": [{"id": "t", "field": "id", "kind": "numeric", "min": 5, "max": 1}]}`},
		{"badKind", `{"fields": {"id": 0},
			"tracks": [{"id": "t", "field": "id", "kind": "rainbow"}]}`},
		{"emptyPreset", `{"fields": {"id": 0},
			"sort_presets": [{"id": "p", "keys": []}]}`},
		{"unknownSortField", `{"fields": {"id": 0},
			"sort_presets": [{"id": "p", "keys": [{"field": "nope"}]}]}`},
		{"unknownFilterField", `{"fields": {"id": 0},
			"analysis_views": [{"id": "v", "rules": [{"field": "nope", "op": "eq", "value": 1}]}]}`},
		{"badFilterOp", `{"fields": {"id": 0},
			"analysis_views": [{"id": "v", "rules": [{"field": "id", "op": "matches", "value": 1}]}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.json))
			if err == nil {
				t.Fatal("expected error")
			}
			var cfgErr *apperr.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %T: %v", err, err)
			}
		})
	}
}

func TestDefault_FullLayout(t *testing.T) {
	s := Default()
	if s.FieldCount() != len(FieldNames29) {
		t.Fatalf("expected %d fields, got %d", len(FieldNames29), s.FieldCount())
	}
	for i, name := range FieldNames29 {
		idx, ok := s.Index(name)
		if !ok || idx != i {
			t.Errorf("field %q: expected index %d, got %d ok=%v", name, i, idx, ok)
		}
	}

	// Every track, preset and view in the built-in schema must survive
	// its own validation rules.
	for _, track := range s.Tracks {
		if !s.HasField(track.Field) {
			t.Errorf("track %q references unknown field %q", track.ID, track.Field)
		}
		switch track.Kind {
		case KindCategorical:
			if len(track.Categories) == 0 {
				t.Errorf("track %q has no categories", track.ID)
			}
		case KindNumeric:
			if track.Min > track.Max {
				t.Errorf("track %q has inverted domain", track.ID)
			}
		default:
			t.Errorf("track %q has kind %q", track.ID, track.Kind)
		}
	}
	for _, p := range s.SortPresets {
		for _, k := range p.Keys {
			if !s.HasField(k.Field) {
				t.Errorf("preset %q references unknown field %q", p.ID, k.Field)
			}
		}
	}
	for _, v := range s.AnalysisViews {
		for _, r := range v.Rules {
			if !s.HasField(r.Field) {
				t.Errorf("view %q references unknown field %q", v.ID, r.Field)
			}
		}
	}
}

func TestDefaultLegacy_DropsLateFields(t *testing.T) {
	s := DefaultLegacy()
	if s.FieldCount() != len(FieldNames21) {
		t.Fatalf("expected %d fields, got %d", len(FieldNames21), s.FieldCount())
	}
	if s.HasField("cluster_size") {
		t.Error("legacy layout should not carry cluster_size")
	}
	if s.HasField("agreement") {
		t.Error("legacy layout should not carry agreement")
	}
	if !s.HasField("specificity") {
		t.Error("legacy layout should keep specificity (field 20)")
	}

	// Tracks referencing dropped fields must be filtered out, the rest
	// must remain intact.
	for _, track := range s.Tracks {
		if !s.HasField(track.Field) {
			t.Errorf("legacy track %q references dropped field %q", track.ID, track.Field)
		}
	}
	if _, ok := s.Track("conservation"); !ok {
		t.Error("legacy layout should keep the conservation track")
	}
	if _, ok := s.Track("cluster_size"); ok {
		t.Error("legacy layout should drop the cluster_size track")
	}
}

func TestParse_TrackOrderPreserved(t *testing.T) {
	raw := `{
  "fields": {"id": 0, "a": 1, "b": 2},
  "tracks": [
    {"id": "b", "field": "b", "kind": "numeric", "min": 0, "max": 1},
    {"id": "a", "field": "a", "kind": "numeric", "min": 0, "max": 1}
  ]}`
	s, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := fmt.Sprintf("%s,%s", s.Tracks[0].ID, s.Tracks[1].ID)
	if got != "b,a" {
		t.Errorf("expected declaration order b,a, got %s", got)
	}
}
