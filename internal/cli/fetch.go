package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
	"github.com/paulpham157/neptune-fetcher/internal/retrieval"
	"github.com/paulpham157/neptune-fetcher/internal/table"
)

var listAttributesQuery queryFlags

var listAttributesCmd = &cobra.Command{
	Use:   "list-attributes",
	Short: "List the names of attributes matching a filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := listAttributesQuery.filter()
		if err != nil {
			return err
		}

		app, ctx, stop := startFetcher()
		defer stop()

		names, err := app.ListAttributes(ctx, []domain.ProjectIdentifier{listAttributesQuery.projectID()}, listAttributesQuery.runIDs(), filter)
		if err != nil {
			return err
		}
		for _, name := range names {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var (
	listRunsProject string
	listRunsFilter  retrieval.RunFilter
)

var listRunsCmd = &cobra.Command{
	Use:   "list-runs",
	Short: "List the runs of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := listRunsFilter.Validate(); err != nil {
			return err
		}

		app, ctx, stop := startFetcher()
		defer stop()

		runs, err := app.ListRuns(ctx, domain.ProjectIdentifier(listRunsProject), listRunsFilter)
		if err != nil {
			return err
		}
		return writeRunInfos(cmd.OutOrStdout(), runs)
	},
}

var (
	fetchTableQuery  queryFlags
	fetchTableOutput outputFlags
	fetchTableOpts   table.AttributeTableOptions
)

var fetchTableCmd = &cobra.Command{
	Use:   "fetch-table",
	Short: "Fetch attribute values of runs as a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := fetchTableQuery.filter()
		if err != nil {
			return err
		}

		app, ctx, stop := startFetcher()
		defer stop()

		opts := fetchTableOpts
		opts.IndexColumnName = fetchTableOutput.indexColumn
		t, err := app.FetchRunsTable(ctx, fetchTableQuery.projectID(), fetchTableQuery.runIDs(), filter, opts)
		if err != nil {
			return err
		}
		return emit(ctx, cmd, app, &fetchTableOutput, t)
	},
}

var (
	fetchMetricsQuery  queryFlags
	fetchMetricsOutput outputFlags
	fetchMetricsSeries seriesFlags
	fetchMetricsOpts   table.MetricsTableOptions
)

var fetchMetricsCmd = &cobra.Command{
	Use:   "fetch-metrics",
	Short: "Fetch float series points of runs as a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := fetchMetricsQuery.filter()
		if err != nil {
			return err
		}
		seriesOpts, err := fetchMetricsSeries.options(cmd)
		if err != nil {
			return err
		}

		app, ctx, stop := startFetcher()
		defer stop()

		opts := fetchMetricsOpts
		opts.IndexColumnName = fetchMetricsOutput.indexColumn
		opts.TimestampColumn = fetchMetricsSeries.timestampColumn
		t, err := app.FetchMetrics(ctx, fetchMetricsQuery.projectID(), fetchMetricsQuery.runIDs(), filter, seriesOpts, opts)
		if err != nil {
			return err
		}
		return emit(ctx, cmd, app, &fetchMetricsOutput, t)
	},
}

var (
	fetchSeriesQuery  queryFlags
	fetchSeriesOutput outputFlags
	fetchSeriesSeries seriesFlags
)

var fetchSeriesCmd = &cobra.Command{
	Use:   "fetch-series",
	Short: "Fetch string, file and histogram series points of runs as a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := fetchSeriesQuery.filter()
		if err != nil {
			return err
		}
		seriesOpts, err := fetchSeriesSeries.options(cmd)
		if err != nil {
			return err
		}

		app, ctx, stop := startFetcher()
		defer stop()

		opts := table.SeriesTableOptions{
			IndexColumnName: fetchSeriesOutput.indexColumn,
			TimestampColumn: fetchSeriesSeries.timestampColumn,
		}
		t, err := app.FetchSeries(ctx, fetchSeriesQuery.projectID(), fetchSeriesQuery.runIDs(), filter, seriesOpts, opts)
		if err != nil {
			return err
		}
		return emit(ctx, cmd, app, &fetchSeriesOutput, t)
	},
}

func init() {
	listRunsCmd.Flags().StringVar(&listRunsProject, "project", "", "project identifier (workspace/project)")
	listRunsCmd.Flags().BoolVar(&listRunsFilter.ExperimentsOnly, "experiments", false, "list experiment heads only, labelled by name")
	listRunsCmd.Flags().StringVar(&listRunsFilter.NameRegex, "name-regex", "", "keep runs whose label matches")
	_ = listRunsCmd.MarkFlagRequired("project")

	listAttributesQuery.register(listAttributesCmd)

	fetchTableQuery.register(fetchTableCmd)
	fetchTableOutput.register(fetchTableCmd)
	fetchTableCmd.Flags().StringSliceVar(&fetchTableQuery.aggregations, "aggregation", nil, "series aggregation, repeatable (default last)")
	fetchTableCmd.Flags().BoolVar(&fetchTableOpts.TypeSuffixInName, "type-suffix", false, "keep :type in column names")
	fetchTableCmd.Flags().BoolVar(&fetchTableOpts.FlattenAggregations, "flatten-aggregations", false, "drop the aggregation level of series columns")
	fetchTableCmd.Flags().BoolVar(&fetchTableOpts.FlattenFileProperties, "flatten-file-properties", false, "split file values into path, size and mime type")

	fetchMetricsQuery.register(fetchMetricsCmd)
	fetchMetricsOutput.register(fetchMetricsCmd)
	fetchMetricsSeries.register(fetchMetricsCmd)
	fetchMetricsCmd.Flags().BoolVar(&fetchMetricsOpts.IncludePreviews, "include-previews", false, "include preview points")
	fetchMetricsCmd.Flags().BoolVar(&fetchMetricsOpts.TypeSuffixInName, "type-suffix", false, "keep :type in column names")

	fetchSeriesQuery.register(fetchSeriesCmd)
	fetchSeriesOutput.register(fetchSeriesCmd)
	fetchSeriesSeries.register(fetchSeriesCmd)

	rootCmd.AddCommand(listRunsCmd, listAttributesCmd, fetchTableCmd, fetchMetricsCmd, fetchSeriesCmd)
}

// tableSaver is the part of control.Fetcher emit needs.
type tableSaver interface {
	SaveTable(ctx context.Context, name string, t *table.Table) error
}

// emit prints t and saves it when --save is set.
func emit(ctx context.Context, cmd *cobra.Command, app tableSaver, out *outputFlags, t *table.Table) error {
	if out.save != "" {
		if err := app.SaveTable(ctx, out.save, t); err != nil {
			return err
		}
	}
	return out.write(cmd.OutOrStdout(), t)
}
