package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/genome-heatmap/server/internal/apperr"
	"github.com/genome-heatmap/server/internal/dataset"
	"github.com/genome-heatmap/server/internal/schema"
)

// Remote query contract constants. The row cap is fixed; genomes beyond
// it are truncated (pagination is an open question upstream).
const (
	remoteTable    = "genome_features"
	remoteRowLimit = 50000
)

// RemoteConfig configures the tabular query client.
type RemoteConfig struct {
	QueryURL string
	Token    string
	Client   *http.Client
}

type rowQueryRequest struct {
	UPA   string `json:"upa"`
	Table string `json:"table"`
	Limit int    `json:"limit"`
}

type rowQueryResponse struct {
	Rows []map[string]any `json:"rows"`
}

// loadRemote issues one row query and maps the named-field rows into the
// fixed-arity tuple layout. Tree, cluster and rich metadata retrieval
// are unimplemented in remote mode and stay nil; the tracks view runs
// with the other tabs disabled.
func loadRemote(ctx context.Context, cfg RemoteConfig, desc *ContextDescriptor, s *schema.Schema) (*dataset.Bundle, error) {
	if cfg.Token == "" {
		return nil, apperr.ErrRemoteAuth
	}

	rows, err := queryRows(ctx, cfg, desc)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &apperr.DataLoadError{Source: "remote", Err: fmt.Errorf("query for %s returned no rows", desc.UPA)}
	}

	genes, err := transformRows(s, rows)
	if err != nil {
		return nil, err
	}
	if err := dataset.ValidateRecords(s, genes); err != nil {
		return nil, err
	}

	meta := &dataset.Metadata{
		Organism:    s.Organism,
		GenomeID:    s.GenomeID,
		NRefGenomes: s.NRefGenomes,
		NFeatures:   len(genes),
		Stats:       dataset.ComputeSummaryStats(s, genes),
	}

	return &dataset.Bundle{Genes: genes, Meta: meta}, nil
}

func queryRows(ctx context.Context, cfg RemoteConfig, desc *ContextDescriptor) ([]map[string]any, error) {
	body, err := json.Marshal(rowQueryRequest{UPA: desc.UPA, Table: remoteTable, Limit: remoteRowLimit})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.QueryURL, bytes.NewReader(body))
	if err != nil {
		return nil, &apperr.DataLoadError{Source: "remote", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.Token)

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &apperr.DataLoadError{Source: "remote", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("query service rejected credential (%d): %w", resp.StatusCode, apperr.ErrRemoteAuth)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &apperr.DataLoadError{
			Source: "remote",
			Err:    fmt.Errorf("query service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}

	var out rowQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &apperr.DataLoadError{Source: "remote", Err: fmt.Errorf("decode query response: %w", err)}
	}
	return out.Rows, nil
}

// rowTransform maps one named-field row to one tuple field value.
type rowTransform func(row map[string]any, seq int) any

// rowTransforms is the explicit per-field transform table from the
// remote row shape to the tuple layout. Semicolon-delimited term lists
// become counts and are never retained as strings; missing numerics get
// their defined sentinels.
var rowTransforms = map[string]rowTransform{
	"id":  func(_ map[string]any, seq int) any { return float64(seq) },
	"fid": func(row map[string]any, _ int) any { return rowStr(row, "feature_id", "") },
	"length": func(row map[string]any, _ int) any {
		start := rowNum(row, "start", math.NaN())
		end := rowNum(row, "end", math.NaN())
		if !math.IsNaN(start) && !math.IsNaN(end) {
			return math.Abs(end - start)
		}
		return rowNum(row, "protein_length", 0) * 3
	},
	"start":             numField("start", 0),
	"strand":            func(row map[string]any, _ int) any { return parseStrand(row["strand"]) },
	"conservation_frac": numField("conservation_frac", 0),
	"pan_category":      numField("pan_category", 0),
	"function":          func(row map[string]any, _ int) any { return rowStr(row, "rast_function", "hypothetical protein") },
	"n_ko":              termCountField("ko"),
	"n_cog":             termCountField("cog"),
	"n_pfam":            termCountField("pfam"),
	"n_go":              termCountField("go"),
	"n_ec":              termCountField("ec"),
	"n_modules":         termCountField("modules"),
	"localization":      func(row map[string]any, _ int) any { return rowStr(row, "localization", "Unknown") },
	"rast_cons":         numField("rast_cons", -1),
	"ko_cons":           numField("ko_cons", -1),
	"go_cons":           numField("go_cons", -1),
	"ec_cons":           numField("ec_cons", -1),
	"avg_cons":          numField("avg_cons", -1),
	"bakta_cons":        numField("bakta_cons", -1),
	"ec_avg_cons":       numField("ec_avg_cons", -1),
	"ec_map_cons":       numField("ec_map_cons", -1),
	"specificity":       numField("specificity", 0.5),
	"is_hypo":           numField("is_hypo", 0),
	"has_name":          numField("has_name", 0),
	"agreement":         numField("agreement", -1),
	"cluster_size":      numField("cluster_size", 0),
	"prot_len":          numField("protein_length", 0),
}

// transformRows maps every row through the transform table in schema
// field order, producing tuples with exactly the declared arity.
func transformRows(s *schema.Schema, rows []map[string]any) ([]dataset.GeneRecord, error) {
	names := s.FieldNames()
	genes := make([]dataset.GeneRecord, 0, len(rows))

	for seq, row := range rows {
		rec := make(dataset.GeneRecord, len(names))
		for i, name := range names {
			tf, ok := rowTransforms[name]
			if !ok {
				return nil, &apperr.DataLoadError{
					Source: "remote",
					Err:    fmt.Errorf("no row transform for field %q", name),
				}
			}
			rec[i] = tf(row, seq)
		}
		genes = append(genes, rec)
	}
	return genes, nil
}

func numField(key string, def float64) rowTransform {
	return func(row map[string]any, _ int) any { return rowNum(row, key, def) }
}

func termCountField(key string) rowTransform {
	return func(row map[string]any, _ int) any {
		return float64(CountTerms(rowStr(row, key, "")))
	}
}

// CountTerms counts non-empty semicolon-separated terms.
func CountTerms(terms string) int {
	if terms == "" {
		return 0
	}
	n := 0
	for _, t := range strings.Split(terms, ";") {
		if strings.TrimSpace(t) != "" {
			n++
		}
	}
	return n
}

// parseStrand normalizes the symbolic strand to a signed integer.
func parseStrand(v any) any {
	switch s := v.(type) {
	case string:
		switch strings.TrimSpace(s) {
		case "+", "1":
			return float64(1)
		case "-", "-1":
			return float64(-1)
		}
		return float64(0)
	case float64:
		if s > 0 {
			return float64(1)
		}
		if s < 0 {
			return float64(-1)
		}
		return float64(0)
	}
	return float64(0)
}

func rowNum(row map[string]any, key string, def float64) float64 {
	v, ok := row[key]
	if !ok || v == nil {
		return def
	}
	if f, ok := v.(float64); ok {
		return f
	}
	return def
}

func rowStr(row map[string]any, key, def string) string {
	if s, ok := row[key].(string); ok && s != "" {
		return s
	}
	return def
}
