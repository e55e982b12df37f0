package retrieval

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/paulpham157/neptune-fetcher/internal/core/cursor"
	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
	"github.com/paulpham157/neptune-fetcher/internal/infra/rpc"
)

const (
	sysIDPath          = "sys/id"
	sysNamePath        = "sys/name"
	sysCustomRunIDPath = "sys/custom_run_id"
)

// RunFilter selects the runs of a project.
type RunFilter struct {
	// ExperimentsOnly keeps only experiment heads and labels them by
	// sys/name. Otherwise every run is listed, labelled by sys/custom_run_id.
	ExperimentsOnly bool
	// NameRegex keeps runs whose label matches. Empty matches all.
	NameRegex string
}

// Validate checks NameRegex compiles.
func (f RunFilter) Validate() error {
	if f.NameRegex == "" {
		return nil
	}
	if _, err := regexp.Compile(f.NameRegex); err != nil {
		return fmt.Errorf("%w: invalid run name regex %q: %v", domain.ErrInvalidConfiguration, f.NameRegex, err)
	}
	return nil
}

func (f RunFilter) labelPath() string {
	if f.ExperimentsOnly {
		return sysNamePath
	}
	return sysCustomRunIDPath
}

// RunInfo is one run found by FetchRuns.
type RunInfo struct {
	Run domain.RunIdentifier
	// Label is the run's sys/name or sys/custom_run_id; empty when unset.
	Label string
}

// FetchRuns lists the runs of project matching filter, in sys id order.
// Pages are requested by offset until one comes back short.
func FetchRuns(
	ctx context.Context,
	q Querier,
	project domain.ProjectIdentifier,
	filter RunFilter,
	opts Options,
) iter.Seq2[Page[RunInfo], error] {
	if err := filter.Validate(); err != nil {
		return cursor.Fail[RunInfo](err)
	}
	opts = opts.withDefaults()
	labelPath := filter.labelPath()

	params := searchParams{
		AttributeFilters: []attributePath{{Path: sysIDPath}, {Path: labelPath}},
		Pagination:       pagination{Limit: opts.RunsBatchSize},
		ExperimentLeader: filter.ExperimentsOnly,
		Sorting:          sorting{Dir: "ascending", SortBy: sortBy{Name: sysIDPath, Type: "string"}},
	}
	if filter.NameRegex != "" {
		params.Query = &nqlQuery{Query: fmt.Sprintf("(`%s`:string MATCHES %s)", labelPath, strconv.Quote(filter.NameRegex))}
	}
	path := searchPath + "?projectIdentifier=" + url.QueryEscape(string(project))

	fetch := func(ctx context.Context, p searchParams) (searchResponse, error) {
		var resp searchResponse
		err := q.Query(ctx, rpc.Operation{
			Name:    "search_runs",
			Path:    path,
			Body:    p,
			Project: string(project),
		}, &resp)
		return resp, err
	}

	process := func(resp searchResponse) (Page[RunInfo], error) {
		items := make([]RunInfo, 0, len(resp.Entries))
		for _, entry := range resp.Entries {
			var sysID, label string
			for _, attr := range entry.Attributes {
				if attr.StringProperties == nil {
					continue
				}
				switch attr.Name {
				case sysIDPath:
					sysID = attr.StringProperties.Value
				case labelPath:
					label = attr.StringProperties.Value
				}
			}
			if sysID == "" {
				return Page[RunInfo]{}, &domain.UnexpectedResponseError{Status: http.StatusOK, Err: errors.New("search entry without sys/id")}
			}
			items = append(items, RunInfo{Run: domain.NewRunIdentifier(project, domain.SysID(sysID)), Label: label})
		}
		return Page[RunInfo]{Items: items}, nil
	}

	next := func(p searchParams, last *searchResponse) (searchParams, bool) {
		if last == nil {
			p.Pagination.Offset = 0
			return p, true
		}
		if len(last.Entries) < p.Pagination.Limit {
			return p, false
		}
		p.Pagination.Offset += len(last.Entries)
		return p, true
	}

	return observe("runs", cursor.Pages(ctx, fetch, process, next, params))
}
