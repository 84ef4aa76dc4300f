package source

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/genome-heatmap/server/internal/apperr"
	"github.com/genome-heatmap/server/internal/dataset"
	"github.com/genome-heatmap/server/internal/logger"
	"github.com/genome-heatmap/server/internal/schema"
)

// Standalone payload names. The genes payload is mandatory; the rest
// degrade to nil when missing.
const (
	metadataName = "metadata.json"
)

// loadStandalone fetches the four payloads concurrently. The races are
// independent; only the gene payload gates the load.
func loadStandalone(ctx context.Context, f Fetcher, s *schema.Schema) (*dataset.Bundle, error) {
	files := s.DataFiles

	var (
		genes   []dataset.GeneRecord
		tree    *dataset.TreeData
		cluster *dataset.ClusterData
		meta    *dataset.Metadata
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		data, err := f.Fetch(gctx, files.Genes)
		if err != nil {
			return &apperr.DataLoadError{Source: "standalone", Err: fmt.Errorf("fetch %s: %w", files.Genes, err)}
		}
		if err := json.Unmarshal(data, &genes); err != nil {
			return &apperr.DataLoadError{Source: "standalone", Err: fmt.Errorf("parse %s: %w", files.Genes, err)}
		}
		return nil
	})

	// Auxiliary payloads absorb their own failures.
	g.Go(func() error {
		tree = fetchOptional[dataset.TreeData](gctx, f, files.Tree)
		return nil
	})
	g.Go(func() error {
		cluster = fetchOptional[dataset.ClusterData](gctx, f, files.Cluster)
		return nil
	})
	g.Go(func() error {
		meta = fetchOptional[dataset.Metadata](gctx, f, metadataName)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(genes) == 0 {
		return nil, &apperr.DataLoadError{Source: "standalone", Err: fmt.Errorf("%s contains no records", files.Genes)}
	}
	if err := dataset.ValidateRecords(s, genes); err != nil {
		return nil, err
	}

	if meta != nil && meta.Stats.TotalGenes == 0 {
		meta.Stats = dataset.ComputeSummaryStats(s, genes)
	}

	return &dataset.Bundle{Genes: genes, Tree: tree, Cluster: cluster, Meta: meta}, nil
}

// fetchOptional loads and parses an auxiliary payload, returning nil on
// any failure. The failure is logged as auxiliary-data-unavailable and
// never propagates.
func fetchOptional[T any](ctx context.Context, f Fetcher, name string) *T {
	if name == "" {
		return nil
	}
	data, err := f.Fetch(ctx, name)
	if err != nil {
		logger.Info("auxiliary payload missing",
			zap.String("name", name),
			zap.NamedError("cause", apperr.ErrAuxiliaryDataUnavailable))
		return nil
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		logger.Warn("auxiliary payload unreadable", zap.String("name", name), zap.Error(err))
		return nil
	}
	return &out
}
