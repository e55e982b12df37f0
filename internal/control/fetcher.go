package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/paulpham157/neptune-fetcher/internal/core/config"
	"github.com/paulpham157/neptune-fetcher/internal/core/cursor"
	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
	redisclient "github.com/paulpham157/neptune-fetcher/internal/infra/redis"
	"github.com/paulpham157/neptune-fetcher/internal/infra/rpc"
	"github.com/paulpham157/neptune-fetcher/internal/infra/storage"
	"github.com/paulpham157/neptune-fetcher/internal/infra/storage/memory"
	"github.com/paulpham157/neptune-fetcher/internal/infra/storage/postgres"
	"github.com/paulpham157/neptune-fetcher/internal/metrics"
	"github.com/paulpham157/neptune-fetcher/internal/retrieval"
	"github.com/paulpham157/neptune-fetcher/internal/table"
)

// Fetcher wires the API client, page cache and table store together and
// exposes the table-producing operations.
type Fetcher struct {
	client        *rpc.Client
	querier       rpc.Querier
	cache         *rpc.CachingQuerier
	opts          retrieval.Options
	store         storage.TableStore
	db            *postgres.DB
	redisClient   *redisclient.Client
	metricsServer *metrics.Server
	log           *slog.Logger
}

// NewFetcher creates a Fetcher with all dependencies initialized.
func NewFetcher(ctx context.Context, cfg *config.AppConfig) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Fetcher{log: slog.Default()}

	// 1. API client
	p := rpc.NewHTTPProvider(rpc.HTTPConfig{
		BaseURL:   cfg.API.URL,
		Token:     cfg.API.Token,
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.API.Timeout,
	})
	f.client = rpc.NewClient(p, rpc.ClientConfig{
		Retry: rpc.RetryConfig{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialDelay:    cfg.Retry.InitialDelay,
			MaxDelay:        cfg.Retry.MaxDelay,
			BackoffMultiple: cfg.Retry.BackoffMultiple,
			Jitter:          rpc.DefaultRetryConfig.Jitter,
		},
		RateLimit: cfg.RateLimit.RPS,
		Burst:     cfg.RateLimit.Burst,
	})
	f.querier = f.client

	// 2. Storage
	var store *memory.MemoryStorage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		f.db = db
		f.store = postgres.NewTableRepo(db)
		f.log.Info("Using PostgreSQL storage")
	} else {
		store = memory.NewMemoryStorage()
		f.store = memory.NewTableRepo(store)
		f.log.Info("Using Memory storage")
	}

	// 3. Page cache
	if cfg.Cache.Enabled {
		var cache rpc.PageCache
		if cfg.Cache.Redis.URL != "" {
			rc, err := redisclient.NewClient(cfg.Cache.Redis)
			if err != nil {
				f.log.Warn("Failed to connect to Redis, using in-process page cache", "error", err)
			} else {
				f.redisClient = rc
				cache = rc
			}
		}
		if cache == nil {
			if store == nil {
				store = memory.NewMemoryStorage()
			}
			cache = memory.NewPageCache(store)
		}
		f.cache = rpc.NewCachingQuerier(f.client, cache, rpc.CacheConfig{
			TTL:    cfg.Cache.TTL,
			Prefix: cfg.Cache.Prefix,
		})
		f.querier = f.cache
	}

	f.opts = retrieval.Options{
		DefinitionsBatchSize: cfg.Fetch.DefinitionsBatchSize,
		ValuesBatchSize:      cfg.Fetch.ValuesBatchSize,
		SeriesBatchSize:      cfg.Fetch.SeriesBatchSize,
		RunsBatchSize:        cfg.Fetch.RunsBatchSize,
		RunIDChunkSize:       cfg.Fetch.RunIDChunkSize,
		Parallelism:          cfg.Fetch.Parallelism,
	}

	if cfg.Metrics.Port > 0 {
		f.metricsServer = metrics.NewServer(cfg.Metrics.Port, f.health)
	}
	return f, nil
}

// Start starts the metrics server and DB collector, if configured.
func (f *Fetcher) Start(ctx context.Context) {
	if f.metricsServer != nil {
		go func() {
			if err := f.metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				f.log.Error("Metrics server failed", "error", err)
			}
		}()
	}
	if f.db != nil {
		f.db.StartMetricsCollector(ctx)
	}
}

// Close releases every dependency.
func (f *Fetcher) Close(ctx context.Context) error {
	var errs []error
	if f.metricsServer != nil {
		errs = append(errs, f.metricsServer.Stop(ctx))
	}
	if f.redisClient != nil {
		if err := f.redisClient.Close(); err != nil {
			f.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if f.db != nil {
		errs = append(errs, f.db.Close())
	}
	errs = append(errs, f.client.Close())
	return errors.Join(errs...)
}

// Store returns the configured table store.
func (f *Fetcher) Store() storage.TableStore {
	return f.store
}

func (f *Fetcher) health(ctx context.Context) (metrics.Status, map[string]any) {
	status := metrics.StatusHealthy
	api := f.client.Health()
	details := map[string]any{
		"api": map[string]any{
			"available":       api.Available,
			"latency":         api.Latency.String(),
			"error_rate":      api.ErrorRate,
			"last_success_at": api.LastSuccessAt,
			"last_failure_at": api.LastFailureAt,
			"operations":      api.Operations,
		},
	}
	if len(api.InaccessibleProjects) > 0 {
		details["inaccessible_projects"] = api.InaccessibleProjects
	}
	if !api.Available {
		status = metrics.StatusDegraded
	}
	if f.db != nil {
		if err := f.db.Health(ctx); err != nil {
			status = metrics.StatusDegraded
			details["database"] = err.Error()
		} else {
			details["database"] = "ok"
		}
	}
	return status, details
}

// ListAttributes returns the sorted, unique names of attributes matching filter.
func (f *Fetcher) ListAttributes(
	ctx context.Context,
	projects []domain.ProjectIdentifier,
	runs []domain.RunIdentifier,
	filter retrieval.BaseAttributeFilter,
) ([]string, error) {
	defs, err := retrieval.FetchAttributeDefinitionsConcurrently(ctx, f.querier, projects, runs, filter, f.opts)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// FetchRunsTable builds the attribute table of runs of project: one row per
// run, labelled by sys id, and one column per matching attribute.
func (f *Fetcher) FetchRunsTable(
	ctx context.Context,
	project domain.ProjectIdentifier,
	runs []domain.RunIdentifier,
	filter retrieval.BaseAttributeFilter,
	opts table.AttributeTableOptions,
) (*table.Table, error) {
	runs, err := f.resolveRuns(ctx, project, runs)
	if err != nil {
		return nil, err
	}

	defs, err := retrieval.FetchAttributeDefinitionsConcurrently(ctx, f.querier, []domain.ProjectIdentifier{project}, runs, filter, f.opts)
	if err != nil {
		return nil, fmt.Errorf("query attribute definitions: %w", err)
	}
	values, err := retrieval.FetchAttributeValuesConcurrently(ctx, f.querier, project, runs, defs, f.opts)
	if err != nil {
		return nil, fmt.Errorf("query attribute values: %w", err)
	}

	if opts.SelectedAggregations == nil {
		opts.SelectedAggregations = selectedAggregations(filter, defs)
	}
	f.log.Debug("Building runs table", "project", project, "runs", len(runs), "definitions", len(defs), "values", len(values))
	return table.AttributeTable(groupByRun(runs, values), opts)
}

// FetchMetrics builds the metrics table of the float series matching filter.
func (f *Fetcher) FetchMetrics(
	ctx context.Context,
	project domain.ProjectIdentifier,
	runs []domain.RunIdentifier,
	filter retrieval.BaseAttributeFilter,
	seriesOpts retrieval.SeriesOptions,
	opts table.MetricsTableOptions,
) (*table.Table, error) {
	runs, err := f.resolveRuns(ctx, project, runs)
	if err != nil {
		return nil, err
	}
	keys, err := f.seriesKeys(ctx, project, runs, filter, domain.TypeFloatSeries)
	if err != nil {
		return nil, err
	}

	seriesOpts.IncludePreview = seriesOpts.IncludePreview || opts.IncludePreviews
	points, err := retrieval.CollectPoints(retrieval.FetchMetricPoints(ctx, f.querier, keys, seriesOpts, f.opts))
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	return table.MetricsTable(points, runLabels(runs), opts)
}

// FetchSeries builds the series table of the string, file and histogram
// series matching filter.
func (f *Fetcher) FetchSeries(
	ctx context.Context,
	project domain.ProjectIdentifier,
	runs []domain.RunIdentifier,
	filter retrieval.BaseAttributeFilter,
	seriesOpts retrieval.SeriesOptions,
	opts table.SeriesTableOptions,
) (*table.Table, error) {
	runs, err := f.resolveRuns(ctx, project, runs)
	if err != nil {
		return nil, err
	}
	keys, err := f.seriesKeys(ctx, project, runs, filter,
		domain.TypeStringSeries, domain.TypeFileSeries, domain.TypeHistogramSeries)
	if err != nil {
		return nil, err
	}

	series, err := retrieval.CollectPoints(retrieval.FetchSeriesValues(ctx, f.querier, keys, seriesOpts, f.opts))
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	return table.SeriesTable(series, runLabels(runs), opts)
}

// ListRuns lists the runs of project matching filter, in sys id order.
func (f *Fetcher) ListRuns(ctx context.Context, project domain.ProjectIdentifier, filter retrieval.RunFilter) ([]retrieval.RunInfo, error) {
	runs, err := cursor.Drain(retrieval.FetchRuns(ctx, f.querier, project, filter, f.opts))
	if err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}
	return runs, nil
}

// resolveRuns returns runs, or every run of project when runs is nil.
// A project without runs resolves to an empty, non-nil slice.
func (f *Fetcher) resolveRuns(ctx context.Context, project domain.ProjectIdentifier, runs []domain.RunIdentifier) ([]domain.RunIdentifier, error) {
	if runs != nil {
		return runs, nil
	}
	infos, err := f.ListRuns(ctx, project, retrieval.RunFilter{})
	if err != nil {
		return nil, err
	}
	resolved := make([]domain.RunIdentifier, 0, len(infos))
	for _, info := range infos {
		resolved = append(resolved, info.Run)
	}
	f.log.Debug("Resolved project runs", "project", project, "runs", len(resolved))
	return resolved, nil
}

// PurgeCache drops the cached pages of this fetcher's cache prefix.
func (f *Fetcher) PurgeCache(ctx context.Context) (int, error) {
	if f.cache == nil {
		return 0, fmt.Errorf("%w: page cache is disabled", domain.ErrInvalidConfiguration)
	}
	n, err := f.cache.Purge(ctx)
	if err != nil {
		return n, err
	}
	f.log.Info("Purged page cache", "pages", n)
	return n, nil
}

// SaveTable stores t under name in the configured store.
func (f *Fetcher) SaveTable(ctx context.Context, name string, t *table.Table) error {
	if name == "" {
		return fmt.Errorf("%w: table name is required", domain.ErrInvalidConfiguration)
	}
	if err := f.store.SaveTable(ctx, name, t); err != nil {
		return err
	}
	f.log.Info("Saved table", "name", name, "rows", t.Len(), "columns", len(t.Columns))
	return nil
}

// ListTables lists the saved tables.
func (f *Fetcher) ListTables(ctx context.Context) ([]storage.TableInfo, error) {
	return f.store.ListTables(ctx)
}

// seriesKeys resolves the (run, definition) pairs to query for series of
// the given types. Each definition is paired with every run of project.
func (f *Fetcher) seriesKeys(
	ctx context.Context,
	project domain.ProjectIdentifier,
	runs []domain.RunIdentifier,
	filter retrieval.BaseAttributeFilter,
	types ...domain.AttributeType,
) ([]domain.RunAttributeDefinition, error) {
	defs, err := retrieval.FetchAttributeDefinitionsConcurrently(ctx, f.querier, []domain.ProjectIdentifier{project}, runs, filter, f.opts)
	if err != nil {
		return nil, fmt.Errorf("query attribute definitions: %w", err)
	}

	var keys []domain.RunAttributeDefinition
	for _, run := range runs {
		if run.Project != project {
			continue
		}
		for _, d := range defs {
			if slices.Contains(types, d.Type) {
				keys = append(keys, domain.RunAttributeDefinition{Run: run, Attribute: d})
			}
		}
	}
	return keys, nil
}

// selectedAggregations maps every series definition to the union of the
// aggregations its type supports across the filter's alternatives.
func selectedAggregations(filter retrieval.BaseAttributeFilter, defs []domain.AttributeDefinition) map[domain.AttributeDefinition][]string {
	var requested []string
	for _, f := range retrieval.SplitAttributeFilters(filter) {
		for _, agg := range f.SelectedAggregations() {
			if !slices.Contains(requested, agg) {
				requested = append(requested, agg)
			}
		}
	}

	selected := make(map[domain.AttributeDefinition][]string)
	for _, d := range defs {
		if !d.Type.IsSeries() {
			continue
		}
		for _, agg := range requested {
			if domain.SupportsAggregation(d.Type, agg) {
				selected[d] = append(selected[d], agg)
			}
		}
	}
	return selected
}

// groupByRun keeps one entry per run, in run order, including runs without values.
func groupByRun(runs []domain.RunIdentifier, values []domain.AttributeValue) []table.EntityValues {
	byRun := make(map[domain.RunIdentifier][]domain.AttributeValue, len(runs))
	for _, v := range values {
		byRun[v.Run] = append(byRun[v.Run], v)
	}

	rows := make([]table.EntityValues, 0, len(runs))
	seen := make(map[domain.RunIdentifier]struct{}, len(runs))
	for _, run := range runs {
		if _, ok := seen[run]; ok {
			continue
		}
		seen[run] = struct{}{}
		rows = append(rows, table.EntityValues{Label: string(run.SysID), Values: byRun[run]})
	}
	return rows
}

func runLabels(runs []domain.RunIdentifier) map[domain.RunIdentifier]string {
	labels := make(map[domain.RunIdentifier]string, len(runs))
	for _, r := range runs {
		labels[r] = string(r.SysID)
	}
	return labels
}
