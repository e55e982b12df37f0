package retrieval

import (
	"context"
	"iter"
	"log/slog"

	"github.com/paulpham157/neptune-fetcher/internal/core/cursor"
	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
	"github.com/paulpham157/neptune-fetcher/internal/infra/rpc"
	"github.com/paulpham157/neptune-fetcher/internal/metrics"
)

// Page is one page of results.
type Page[T any] = cursor.Page[T]

// FetchAttributeDefinitions lists attribute definitions of runs in the given
// projects that match filter.
//
// A nil runs slice means all runs; an empty, non-nil slice yields nothing
// without contacting the server. Results are deduplicated by (name, type)
// within one range over the sequence.
func FetchAttributeDefinitions(
	ctx context.Context,
	q Querier,
	projects []domain.ProjectIdentifier,
	runs []domain.RunIdentifier,
	filter BaseAttributeFilter,
	opts Options,
) iter.Seq2[Page[domain.AttributeDefinition], error] {
	seqs, err := definitionSequences(ctx, q, projects, runs, filter, opts)
	if err != nil {
		return cursor.Fail[domain.AttributeDefinition](err)
	}
	return observe("definitions", dedupe(cursor.Concat(seqs...)))
}

// definitionSequences builds one sequence per (filter, project, run chunk),
// in that order.
func definitionSequences(
	ctx context.Context,
	q Querier,
	projects []domain.ProjectIdentifier,
	runs []domain.RunIdentifier,
	filter BaseAttributeFilter,
	opts Options,
) ([]iter.Seq2[Page[domain.AttributeDefinition], error], error) {
	opts = opts.withDefaults()

	var seqs []iter.Seq2[Page[domain.AttributeDefinition], error]
	for _, f := range SplitAttributeFilters(filter) {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if f.MustMatchAny != nil && len(f.MustMatchAny) == 0 {
			continue
		}
		for _, project := range uniqueProjects(projects) {
			for _, ids := range runIDChunks(project, runs, opts.RunIDChunkSize) {
				seqs = append(seqs, definitionsPages(ctx, q, project, ids, f, opts.DefinitionsBatchSize))
			}
		}
	}
	return seqs, nil
}

func definitionsPages(
	ctx context.Context,
	q Querier,
	project domain.ProjectIdentifier,
	runIDs []string,
	f AttributeFilter,
	batchSize int,
) iter.Seq2[Page[domain.AttributeDefinition], error] {
	params := definitionsParams{
		ProjectIdentifiers:  []string{string(project)},
		ExperimentIdsFilter: runIDs,
		AttributeNameFilter: attributeNameFilterDTO{MustMatchAny: nameFilterDTOs(f)},
		NextPage:            nextPage{Limit: batchSize},
	}
	for _, t := range f.TypeIn {
		params.AttributeFilter = append(params.AttributeFilter, attributeTypeFilterDTO{AttributeType: t.Backend()})
	}

	fetch := func(ctx context.Context, p definitionsParams) (definitionsResponse, error) {
		var resp definitionsResponse
		err := q.Query(ctx, rpc.Operation{
			Name:    "query_attribute_definitions",
			Path:    definitionsPath,
			Body:    p,
			Project: string(project),
		}, &resp)
		return resp, err
	}

	process := func(resp definitionsResponse) (Page[domain.AttributeDefinition], error) {
		items := make([]domain.AttributeDefinition, 0, len(resp.Entries))
		for _, e := range resp.Entries {
			t, err := domain.FromBackendType(e.Type)
			if err != nil {
				DefaultTypeWarner.Warn(e.Type)
				continue
			}
			items = append(items, domain.AttributeDefinition{Name: e.Name, Type: t})
		}
		return Page[domain.AttributeDefinition]{Items: items}, nil
	}

	next := func(p definitionsParams, last *definitionsResponse) (definitionsParams, bool) {
		if last == nil {
			p.NextPage.NextPageToken = ""
			return p, true
		}
		token := last.NextPage.token()
		if token == "" || len(last.Entries) < p.NextPage.Limit {
			return p, false
		}
		p.NextPage.NextPageToken = token
		return p, true
	}

	slog.Debug("Querying attribute definitions",
		"project", project,
		"runs", len(runIDs),
		"all_runs", runIDs == nil,
	)
	return cursor.Pages(ctx, fetch, process, next, params)
}

// runIDChunks returns the wire run ids of project split into chunks.
// A nil runs slice gives a single nil chunk, meaning no run filter.
func runIDChunks(project domain.ProjectIdentifier, runs []domain.RunIdentifier, size int) [][]string {
	if runs == nil {
		return [][]string{nil}
	}
	var ids []string
	for _, r := range runs {
		if r.Project == project {
			ids = append(ids, r.String())
		}
	}
	return chunk(ids, size)
}

func uniqueProjects(projects []domain.ProjectIdentifier) []domain.ProjectIdentifier {
	seen := make(map[domain.ProjectIdentifier]struct{}, len(projects))
	out := make([]domain.ProjectIdentifier, 0, len(projects))
	for _, p := range projects {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// dedupe drops items already yielded earlier in the same range.
func dedupe[T comparable](seq iter.Seq2[Page[T], error]) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		seen := make(map[T]struct{})
		for page, err := range seq {
			if err != nil {
				yield(page, err)
				return
			}
			items := make([]T, 0, len(page.Items))
			for _, item := range page.Items {
				if _, ok := seen[item]; ok {
					continue
				}
				seen[item] = struct{}{}
				items = append(items, item)
			}
			if !yield(Page[T]{Items: items}, nil) {
				return
			}
		}
	}
}

// observe counts pages and items of a flow.
func observe[T any](flow string, seq iter.Seq2[Page[T], error]) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		for page, err := range seq {
			if err == nil {
				metrics.PagesTotal.WithLabelValues(flow).Inc()
				metrics.ItemsTotal.WithLabelValues(flow).Add(float64(len(page.Items)))
			}
			if !yield(page, err) || err != nil {
				return
			}
		}
	}
}
