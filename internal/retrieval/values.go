package retrieval

import (
	"context"
	"iter"
	"slices"

	"github.com/paulpham157/neptune-fetcher/internal/core/cursor"
	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
	"github.com/paulpham157/neptune-fetcher/internal/infra/rpc"
	"github.com/paulpham157/neptune-fetcher/internal/metrics"
)

// FetchAttributeValues fetches the values of defs for runs of project.
// Values whose (name, type) was not requested are dropped, as are values
// the server reports as null.
func FetchAttributeValues(
	ctx context.Context,
	q Querier,
	project domain.ProjectIdentifier,
	runs []domain.RunIdentifier,
	defs []domain.AttributeDefinition,
	opts Options,
) iter.Seq2[Page[domain.AttributeValue], error] {
	if len(runs) == 0 || len(defs) == 0 {
		return cursor.Empty[domain.AttributeValue]()
	}
	opts = opts.withDefaults()

	requested := make(map[domain.AttributeDefinition]struct{}, len(defs))
	var names []string
	for _, d := range defs {
		requested[d] = struct{}{}
		if !slices.Contains(names, d.Name) {
			names = append(names, d.Name)
		}
	}
	slices.Sort(names)

	var seqs []iter.Seq2[Page[domain.AttributeValue], error]
	for _, ids := range runIDChunks(project, runs, opts.RunIDChunkSize) {
		seqs = append(seqs, valuesPages(ctx, q, project, ids, names, requested, opts.ValuesBatchSize))
	}
	return observe("values", cursor.Concat(seqs...))
}

func valuesPages(
	ctx context.Context,
	q Querier,
	project domain.ProjectIdentifier,
	runIDs []string,
	names []string,
	requested map[domain.AttributeDefinition]struct{},
	batchSize int,
) iter.Seq2[Page[domain.AttributeValue], error] {
	params := valuesParams{
		ExperimentIdsFilter:  runIDs,
		AttributeNamesFilter: names,
		NextPage:             nextPage{Limit: batchSize},
	}

	fetch := func(ctx context.Context, p valuesParams) (valuesResponse, error) {
		var resp valuesResponse
		err := q.Query(ctx, rpc.Operation{
			Name:    "query_attributes",
			Path:    valuesPath,
			Body:    p,
			Project: string(project),
		}, &resp)
		return resp, err
	}

	process := func(resp valuesResponse) (Page[domain.AttributeValue], error) {
		var items []domain.AttributeValue
		for _, entry := range resp.Entries {
			run := domain.NewRunIdentifier(project, domain.SysID(entry.ExperimentShortID))
			for _, attr := range entry.Attributes {
				t, err := domain.FromBackendType(attr.Type)
				if err != nil {
					DefaultTypeWarner.Warn(attr.Type)
					metrics.SkippedValues.WithLabelValues("unsupported_type").Inc()
					continue
				}
				def := domain.AttributeDefinition{Name: attr.Name, Type: t}
				if _, ok := requested[def]; !ok {
					continue
				}
				value, ok, err := Decode(def, attr.Value)
				if err != nil {
					return Page[domain.AttributeValue]{}, err
				}
				if !ok {
					metrics.SkippedValues.WithLabelValues("null").Inc()
					continue
				}
				items = append(items, domain.AttributeValue{Attribute: def, Value: value, Run: run})
			}
		}
		return Page[domain.AttributeValue]{Items: items}, nil
	}

	next := func(p valuesParams, last *valuesResponse) (valuesParams, bool) {
		if last == nil {
			p.NextPage.NextPageToken = ""
			return p, true
		}
		token := last.NextPage.token()
		if token == "" {
			return p, false
		}
		p.NextPage.NextPageToken = token
		return p, true
	}

	return cursor.Pages(ctx, fetch, process, next, params)
}
