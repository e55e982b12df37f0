package retrieval

import (
	"context"
	"fmt"
	"iter"
	"strconv"

	"github.com/paulpham157/neptune-fetcher/internal/core/cursor"
	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
	"github.com/paulpham157/neptune-fetcher/internal/infra/rpc"
)

// SeriesOptions selects the points of series and metrics queries.
type SeriesOptions struct {
	// StepFrom and StepTo bound the step range; nil is unbounded.
	StepFrom *float64
	StepTo   *float64
	// TailLimit keeps only the last N points of each series; 0 keeps all.
	TailLimit int
	// IncludeInherited includes points inherited from forked ancestors.
	IncludeInherited bool
	// IncludePreview keeps preview metric points. Ignored for series.
	IncludePreview bool
}

// SeriesPoints is a chunk of points of one run attribute. A series spanning
// several pages arrives as several SeriesPoints with the same Key.
type SeriesPoints[V any] struct {
	Key    domain.RunAttributeDefinition
	Values []V
}

type (
	SeriesPage = SeriesPoints[domain.SeriesValue]
	MetricPage = SeriesPoints[domain.FloatPointValue]
)

// FetchSeriesValues fetches the points of string, file and histogram series.
func FetchSeriesValues(
	ctx context.Context,
	q Querier,
	keys []domain.RunAttributeDefinition,
	seriesOpts SeriesOptions,
	opts Options,
) iter.Seq2[Page[SeriesPage], error] {
	convert := func(p point) (domain.SeriesValue, bool) {
		if p.Object == nil {
			return domain.SeriesValue{}, false
		}
		v := domain.SeriesValue{Step: float64(p.Step), TimestampMillis: int64(p.TimestampMillis)}
		switch {
		case p.Object.StringValue != nil:
			v.Value = *p.Object.StringValue
		case p.Object.FileRef != nil:
			v.Value = *p.Object.FileRef
		case p.Object.Histogram != nil:
			v.Value = *p.Object.Histogram
		default:
			return domain.SeriesValue{}, false
		}
		return v, true
	}
	return observe("series", seriesSequence(ctx, q, "query_series", seriesPath, keys, seriesOpts, opts, convert))
}

// FetchMetricPoints fetches the points of float series.
func FetchMetricPoints(
	ctx context.Context,
	q Querier,
	keys []domain.RunAttributeDefinition,
	seriesOpts SeriesOptions,
	opts Options,
) iter.Seq2[Page[MetricPage], error] {
	convert := func(p point) (domain.FloatPointValue, bool) {
		if p.Value == nil {
			return domain.FloatPointValue{}, false
		}
		if p.IsPreview && !seriesOpts.IncludePreview {
			return domain.FloatPointValue{}, false
		}
		return domain.FloatPointValue{
			TimestampMillis:   int64(p.TimestampMillis),
			Step:              float64(p.Step),
			Value:             float64(*p.Value),
			IsPreview:         p.IsPreview,
			PreviewCompletion: float64(p.CompletionRatio),
		}, true
	}
	return observe("metrics", seriesSequence(ctx, q, "query_metrics", metricsPath, keys, seriesOpts, opts, convert))
}

// CollectPoints drains a series sequence into per-key point lists, keeping
// the order points arrived in.
func CollectPoints[V any](seq iter.Seq2[Page[SeriesPoints[V]], error]) (map[domain.RunAttributeDefinition][]V, error) {
	out := make(map[domain.RunAttributeDefinition][]V)
	for page, err := range seq {
		if err != nil {
			return out, err
		}
		for _, s := range page.Items {
			out[s.Key] = append(out[s.Key], s.Values...)
		}
	}
	return out, nil
}

func seriesSequence[V any](
	ctx context.Context,
	q Querier,
	name, path string,
	keys []domain.RunAttributeDefinition,
	seriesOpts SeriesOptions,
	opts Options,
	convert func(point) (V, bool),
) iter.Seq2[Page[SeriesPoints[V]], error] {
	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return cursor.Empty[SeriesPoints[V]]()
	}
	opts = opts.withDefaults()

	var seqs []iter.Seq2[Page[SeriesPoints[V]], error]
	for _, batch := range chunk(keys, opts.SeriesBatchSize) {
		seqs = append(seqs, seriesPages(ctx, q, name, path, batch, seriesOpts, convert))
	}
	return cursor.Concat(seqs...)
}

func seriesPages[V any](
	ctx context.Context,
	q Querier,
	name, path string,
	keys []domain.RunAttributeDefinition,
	seriesOpts SeriesOptions,
	convert func(point) (V, bool),
) iter.Seq2[Page[SeriesPoints[V]], error] {
	width := len(strconv.Itoa(len(keys) - 1))
	byID := make(map[string]domain.RunAttributeDefinition, len(keys))

	lineage := "NONE"
	if seriesOpts.IncludeInherited {
		lineage = "FULL"
	}

	params := seriesParams{
		StepRange: stepRange{From: seriesOpts.StepFrom, To: seriesOpts.StepTo},
		Order:     "ascending",
	}
	if seriesOpts.TailLimit > 0 {
		limit := seriesOpts.TailLimit
		params.Order = "descending"
		params.PerSeriesPointsLimit = &limit
	}
	for i, key := range keys {
		id := fmt.Sprintf("%0*d", width, i)
		byID[id] = key
		params.Requests = append(params.Requests, seriesRequest{
			RequestID: id,
			Series: seriesSpec{
				Holder:         holder{Identifier: key.Run.String(), Type: "experiment"},
				Attribute:      key.Attribute.Name,
				Lineage:        lineage,
				IncludePreview: seriesOpts.IncludePreview,
			},
		})
	}

	fetch := func(ctx context.Context, p seriesParams) (seriesResponse, error) {
		var resp seriesResponse
		err := q.Query(ctx, rpc.Operation{
			Name:     name,
			Path:     path,
			Body:     p,
			Project:  string(keys[0].Run.Project),
			Protobuf: true,
		}, &resp)
		return resp, err
	}

	process := func(resp seriesResponse) (Page[SeriesPoints[V]], error) {
		var items []SeriesPoints[V]
		for _, result := range resp.Series {
			key, ok := byID[result.RequestID]
			if !ok {
				continue
			}
			values := make([]V, 0, len(result.SeriesValues.Values))
			for _, p := range result.SeriesValues.Values {
				if v, ok := convert(p); ok {
					values = append(values, v)
				}
			}
			if len(values) > 0 {
				items = append(items, SeriesPoints[V]{Key: key, Values: values})
			}
		}
		return Page[SeriesPoints[V]]{Items: items}, nil
	}

	next := func(p seriesParams, last *seriesResponse) (seriesParams, bool) {
		if last == nil {
			return p, true
		}
		// A series missing from the response does not exist. One present
		// without searchAfter lies outside the page and is asked for again
		// from the start.
		results := make(map[string]*searchAfter, len(last.Series))
		anySearchAfter := false
		for _, result := range last.Series {
			results[result.RequestID] = result.SearchAfter
			if result.SearchAfter != nil {
				anySearchAfter = true
			}
		}
		if !anySearchAfter {
			return p, false
		}

		var requests []seriesRequest
		for _, req := range p.Requests {
			sa, ok := results[req.RequestID]
			if !ok {
				continue
			}
			switch {
			case sa == nil:
				req.SearchAfter = nil
			case sa.Finished:
				continue
			default:
				req.SearchAfter = &searchAfter{Token: sa.Token}
			}
			requests = append(requests, req)
		}
		if len(requests) == 0 {
			return p, false
		}
		p.Requests = requests
		return p, true
	}

	return cursor.Pages(ctx, fetch, process, next, params)
}

func uniqueKeys(keys []domain.RunAttributeDefinition) []domain.RunAttributeDefinition {
	seen := make(map[domain.RunAttributeDefinition]struct{}, len(keys))
	out := make([]domain.RunAttributeDefinition, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
