package retrieval

import (
	"context"
	"iter"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/paulpham157/neptune-fetcher/internal/core/cursor"
	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

// FetchAttributeDefinitionsConcurrently drains the per-project and per-chunk
// definition sequences in parallel, at most opts.Parallelism at a time.
// The result is deduplicated and ordered as FetchAttributeDefinitions
// would yield it.
func FetchAttributeDefinitionsConcurrently(
	ctx context.Context,
	q Querier,
	projects []domain.ProjectIdentifier,
	runs []domain.RunIdentifier,
	filter BaseAttributeFilter,
	opts Options,
) ([]domain.AttributeDefinition, error) {
	opts = opts.withDefaults()

	g, gctx := errgroup.WithContext(ctx)
	seqs, err := definitionSequences(gctx, q, projects, runs, filter, opts)
	if err != nil {
		return nil, err
	}

	results := drainAll(g, seqs, opts.Parallelism)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var defs []domain.AttributeDefinition
	seen := make(map[domain.AttributeDefinition]struct{})
	for _, items := range results {
		for _, d := range items {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			defs = append(defs, d)
		}
	}
	slog.Debug("Fetched attribute definitions", "sequences", len(seqs), "definitions", len(defs))
	return defs, nil
}

// FetchAttributeValuesConcurrently drains the per-chunk value sequences of
// project in parallel. Values keep chunk order.
func FetchAttributeValuesConcurrently(
	ctx context.Context,
	q Querier,
	project domain.ProjectIdentifier,
	runs []domain.RunIdentifier,
	defs []domain.AttributeDefinition,
	opts Options,
) ([]domain.AttributeValue, error) {
	opts = opts.withDefaults()

	g, gctx := errgroup.WithContext(ctx)
	var seqs []iter.Seq2[Page[domain.AttributeValue], error]
	for _, runChunk := range chunk(runs, opts.RunIDChunkSize) {
		seqs = append(seqs, FetchAttributeValues(gctx, q, project, runChunk, defs, opts))
	}

	results := drainAll(g, seqs, opts.Parallelism)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var values []domain.AttributeValue
	for _, items := range results {
		values = append(values, items...)
	}
	return values, nil
}

// drainAll schedules one goroutine per sequence on g. The returned slice is
// filled once g.Wait returns nil.
func drainAll[T any](g *errgroup.Group, seqs []iter.Seq2[Page[T], error], limit int) [][]T {
	g.SetLimit(limit)
	results := make([][]T, len(seqs))
	for i, seq := range seqs {
		g.Go(func() error {
			items, err := cursor.Drain(seq)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	return results
}
