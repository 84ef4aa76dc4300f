package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/genome-heatmap/server/internal/apperr"
	"github.com/genome-heatmap/server/internal/schema"
)

func remoteRow() map[string]any {
	return map[string]any{
		"feature_id":        "b0001",
		"start":             float64(100),
		"end":               float64(400),
		"strand":            "+",
		"conservation_frac": 0.8,
		"pan_category":      float64(2),
		"rast_function":     "thrA; aspartokinase",
		"ko":                "K00001;K00002",
		"cog":               "COG0001",
		"pfam":              "",
		"go":                "GO:0001;GO:0002;GO:0003",
		"ec":                "1.1.1.1",
		"modules":           "",
		"localization":      "Cytoplasm",
		"protein_length":    float64(100),
	}
}

func queryServer(t *testing.T, rows []map[string]any, wantToken string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+wantToken {
			http.Error(w, "bad credential", http.StatusUnauthorized)
			return
		}
		var req rowQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Table != "genome_features" || req.Limit != remoteRowLimit || req.UPA == "" {
			http.Error(w, "unexpected query shape", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(rowQueryResponse{Rows: rows})
	}))
}

func TestLoadRemote_TransformsRows(t *testing.T) {
	srv := queryServer(t, []map[string]any{remoteRow()}, "tok")
	defer srv.Close()

	s := schema.Default()
	cfg := RemoteConfig{QueryURL: srv.URL, Token: "tok", Client: srv.Client()}
	desc := &ContextDescriptor{UPA: "72724/2/1"}

	b, err := loadRemote(context.Background(), cfg, desc, s)
	if err != nil {
		t.Fatalf("loadRemote: %v", err)
	}
	if len(b.Genes) != 1 {
		t.Fatalf("expected 1 gene, got %d", len(b.Genes))
	}
	rec := b.Genes[0]

	field := func(name string) int {
		idx, ok := s.Index(name)
		if !ok {
			t.Fatalf("unknown field %q", name)
		}
		return idx
	}

	if got := rec.Float(field("length")); got != 300 {
		t.Errorf("length: expected |end-start|=300, got %g", got)
	}
	if got := rec.Float(field("strand")); got != 1 {
		t.Errorf("strand: expected +1, got %g", got)
	}
	if got := rec.Int(field("n_ko")); got != 2 {
		t.Errorf("n_ko: expected 2 from 'K00001;K00002', got %d", got)
	}
	if got := rec.Int(field("n_pfam")); got != 0 {
		t.Errorf("n_pfam: expected 0 from empty list, got %d", got)
	}
	if got := rec.Int(field("n_go")); got != 3 {
		t.Errorf("n_go: expected 3, got %d", got)
	}
	// Missing consistency columns fall back to the -1 sentinel, missing
	// specificity to the 0.5 midpoint.
	if got := rec.Float(field("ko_cons")); got != -1 {
		t.Errorf("ko_cons: expected sentinel -1, got %g", got)
	}
	if got := rec.Float(field("specificity")); got != 0.5 {
		t.Errorf("specificity: expected 0.5 default, got %g", got)
	}
	if got := rec.Str(field("fid")); got != "b0001" {
		t.Errorf("fid: got %q", got)
	}

	// Remote mode synthesizes metadata and leaves tree/cluster nil.
	if b.Tree != nil || b.Cluster != nil {
		t.Error("expected nil tree and cluster in remote mode")
	}
	if b.Meta == nil || b.Meta.NFeatures != 1 {
		t.Errorf("expected synthesized metadata, got %+v", b.Meta)
	}
}

func TestLoadRemote_MissingToken(t *testing.T) {
	_, err := loadRemote(context.Background(), RemoteConfig{QueryURL: "http://unused"}, &ContextDescriptor{UPA: "1/2/3"}, schema.Default())
	if !errors.Is(err, apperr.ErrRemoteAuth) {
		t.Fatalf("expected ErrRemoteAuth, got %v", err)
	}
}

func TestLoadRemote_RejectedCredential(t *testing.T) {
	srv := queryServer(t, nil, "good")
	defer srv.Close()

	cfg := RemoteConfig{QueryURL: srv.URL, Token: "bad", Client: srv.Client()}
	_, err := loadRemote(context.Background(), cfg, &ContextDescriptor{UPA: "1/2/3"}, schema.Default())
	if !errors.Is(err, apperr.ErrRemoteAuth) {
		t.Fatalf("expected ErrRemoteAuth on 401, got %v", err)
	}
}

func TestLoadRemote_EmptyResult(t *testing.T) {
	srv := queryServer(t, nil, "tok")
	defer srv.Close()

	cfg := RemoteConfig{QueryURL: srv.URL, Token: "tok", Client: srv.Client()}
	_, err := loadRemote(context.Background(), cfg, &ContextDescriptor{UPA: "1/2/3"}, schema.Default())
	if err == nil {
		t.Fatal("expected error for empty result")
	}
	var loadErr *apperr.DataLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected DataLoadError, got %T", err)
	}
}

func TestCountTerms(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"K00001", 1},
		{"K00001;K00002", 2},
		{"K00001; K00002 ;", 2},
		{";;", 0},
	}
	for _, tc := range cases {
		if got := CountTerms(tc.in); got != tc.want {
			t.Errorf("CountTerms(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseStrand(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{"+", 1},
		{"-", -1},
		{"1", 1},
		{"-1", -1},
		{" + ", 1},
		{"?", 0},
		{float64(5), 1},
		{float64(-2), -1},
		{float64(0), 0},
		{nil, 0},
	}
	for _, tc := range cases {
		if got := parseStrand(tc.in); got != tc.want {
			t.Errorf("parseStrand(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// Every field of the full layout must have a transform; a schema field
// without one is a programming error surfaced at load time.
func TestTransformRows_CoversFullLayout(t *testing.T) {
	for _, name := range schema.FieldNames29 {
		if _, ok := rowTransforms[name]; !ok {
			t.Errorf("field %q has no row transform", name)
		}
	}
}
