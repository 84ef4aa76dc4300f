// Package dataset defines the immutable data model for one loaded
// genome: the gene tuple array plus the nullable tree, cluster and
// metadata payloads.
package dataset

import (
	"fmt"
	"math"

	"github.com/genome-heatmap/server/internal/apperr"
	"github.com/genome-heatmap/server/internal/schema"
)

// GeneRecord is one gene as a fixed-arity ordered tuple. Fields are
// resolved by name through the schema, never by literal position.
// Values are float64 for all numeric fields and string for text fields,
// matching the JSON array wire form.
type GeneRecord []any

// Float returns the numeric field at tuple position i.
func (g GeneRecord) Float(i int) float64 {
	switch v := g[i].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case nil:
		return 0
	}
	return 0
}

// Int returns the numeric field at tuple position i truncated to int.
func (g GeneRecord) Int(i int) int { return int(g.Float(i)) }

// Str returns the text field at tuple position i.
func (g GeneRecord) Str(i int) string {
	if s, ok := g[i].(string); ok {
		return s
	}
	return ""
}

// LeafStats are the per-leaf bar values shown next to the dendrogram.
type LeafStats struct {
	NGenes       int     `json:"n_genes"`
	NClusters    int     `json:"n_clusters"`
	CoreFraction float64 `json:"core_fraction"`
}

// Leaf is one genome at the tip of the phylogenetic tree.
type Leaf struct {
	ID           string    `json:"id"`
	Taxonomy     string    `json:"taxonomy"`
	IsUserGenome bool      `json:"is_user_genome"`
	Stats        LeafStats `json:"stats"`
}

// LinkageStep merges two nodes (leaf or internal) at a distance,
// producing node ID.
type LinkageStep struct {
	A        int     `json:"a"`
	B        int     `json:"b"`
	Distance float64 `json:"distance"`
	ID       int     `json:"id"`
}

// TreeData is a precomputed hierarchical clustering over the reference
// genomes: leaves in order, a symmetric distance matrix indexed by leaf
// order, and the linkage sequence.
type TreeData struct {
	Leaves    []Leaf        `json:"leaves"`
	Distances [][]float64   `json:"distances"`
	Linkage   []LinkageStep `json:"linkage"`
}

// ClusterPoint is one gene in the 2D cluster embedding, under both
// embedding modes, with a denormalized copy of the tooltip fields so
// hover needs no join against the gene array.
type ClusterPoint struct {
	GeneID    int            `json:"gene_id"`
	FeatureID string         `json:"fid"`
	Feature   [2]float64     `json:"feature"`
	Presence  [2]float64     `json:"presence"`
	Fields    map[string]any `json:"fields"`
}

// ClusterData is the full embedding payload.
type ClusterData struct {
	Points []ClusterPoint `json:"points"`
}

// SummaryStats counts genes by pangenome category.
type SummaryStats struct {
	TotalGenes     int `json:"total_genes"`
	CoreGenes      int `json:"core_genes"`
	AccessoryGenes int `json:"accessory_genes"`
	UnknownGenes   int `json:"unknown_genes"`
}

// Metadata describes the loaded organism.
type Metadata struct {
	Organism     string       `json:"organism"`
	GenomeID     string       `json:"genome_id"`
	Taxonomy     string       `json:"taxonomy"`
	NCBITaxonomy string       `json:"ncbi_taxonomy"`
	NRefGenomes  int          `json:"n_ref_genomes"`
	NContigs     int          `json:"n_contigs"`
	NFeatures    int          `json:"n_features"`
	Stats        SummaryStats `json:"stats"`
}

// Bundle aggregates everything for one loaded genome. Genes is always
// non-nil and non-empty; Tree, Cluster and Meta are each nullable and
// tolerated as absent by every consumer. A Bundle is read-only after
// construction; a new load replaces it wholesale.
type Bundle struct {
	Genes      []GeneRecord
	Tree       *TreeData
	Cluster    *ClusterData
	Meta       *Metadata
	Generation uint64
}

// consistencyFields are the tuple fields constrained to {-1} ∪ [0,1].
var consistencyFields = []string{
	"rast_cons", "ko_cons", "go_cons", "ec_cons", "avg_cons",
	"bakta_cons", "ec_avg_cons", "ec_map_cons", "agreement",
}

// ValidateRecords checks the tuple invariants against the active schema:
// uniform arity, conservation fraction in [0,1], strand in {-1,0,1},
// consistency scores -1 or in [0,1].
func ValidateRecords(s *schema.Schema, recs []GeneRecord) error {
	want := s.FieldCount()
	consIdx, strandIdx, fracIdx := resolveInvariantFields(s)

	for n, rec := range recs {
		if len(rec) != want {
			return &apperr.DataLoadError{
				Source: "validate",
				Err:    fmt.Errorf("record %d has %d fields, schema declares %d", n, len(rec), want),
			}
		}
		if strandIdx >= 0 {
			strand := rec.Float(strandIdx)
			if strand != -1 && strand != 0 && strand != 1 {
				return recordErr(n, "strand", strand)
			}
		}
		if fracIdx >= 0 {
			frac := rec.Float(fracIdx)
			if frac < 0 || frac > 1 || math.IsNaN(frac) {
				return recordErr(n, "conservation_frac", frac)
			}
		}
		for _, idx := range consIdx {
			v := rec.Float(idx)
			if v != -1 && (v < 0 || v > 1 || math.IsNaN(v)) {
				return recordErr(n, s.FieldNames()[idx], v)
			}
		}
	}
	return nil
}

func resolveInvariantFields(s *schema.Schema) (cons []int, strand, frac int) {
	strand, frac = -1, -1
	if i, ok := s.Index("strand"); ok {
		strand = i
	}
	if i, ok := s.Index("conservation_frac"); ok {
		frac = i
	}
	for _, name := range consistencyFields {
		if i, ok := s.Index(name); ok {
			cons = append(cons, i)
		}
	}
	return cons, strand, frac
}

func recordErr(n int, field string, v float64) error {
	return &apperr.DataLoadError{
		Source: "validate",
		Err:    fmt.Errorf("record %d: %s out of range: %g", n, field, v),
	}
}

// ComputeSummaryStats derives category counts from the gene array; used
// when the metadata payload does not carry precomputed statistics.
func ComputeSummaryStats(s *schema.Schema, recs []GeneRecord) SummaryStats {
	var out SummaryStats
	out.TotalGenes = len(recs)
	idx, ok := s.Index("pan_category")
	if !ok {
		return out
	}
	for _, rec := range recs {
		switch rec.Int(idx) {
		case 2:
			out.CoreGenes++
		case 1:
			out.AccessoryGenes++
		default:
			out.UnknownGenes++
		}
	}
	return out
}
