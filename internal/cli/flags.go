package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
	"github.com/paulpham157/neptune-fetcher/internal/retrieval"
	"github.com/paulpham157/neptune-fetcher/internal/table"
)

// queryFlags selects the project, runs and attributes of a command.
type queryFlags struct {
	project      string
	runs         []string
	nameEq       []string
	regexes      []string
	excludes     []string
	types        []string
	aggregations []string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.project, "project", "", "project identifier (workspace/project)")
	cmd.Flags().StringSliceVar(&f.runs, "run", nil, "run sys id, repeatable (default all runs of the project)")
	cmd.Flags().StringSliceVar(&f.nameEq, "name-eq", nil, "exact attribute name, repeatable")
	cmd.Flags().StringSliceVar(&f.regexes, "regex", nil, "attribute name regex that must match, repeatable")
	cmd.Flags().StringSliceVar(&f.excludes, "exclude-regex", nil, "attribute name regex that must not match, repeatable")
	cmd.Flags().StringSliceVar(&f.types, "type", nil, "attribute type, repeatable (e.g. float, float_series)")
	_ = cmd.MarkFlagRequired("project")
}

func (f *queryFlags) projectID() domain.ProjectIdentifier {
	return domain.ProjectIdentifier(f.project)
}

// runIDs returns nil when no --run was given, meaning all runs of the project.
func (f *queryFlags) runIDs() []domain.RunIdentifier {
	if len(f.runs) == 0 {
		return nil
	}
	runs := make([]domain.RunIdentifier, len(f.runs))
	for i, id := range f.runs {
		runs[i] = domain.NewRunIdentifier(f.projectID(), domain.SysID(id))
	}
	return runs
}

func (f *queryFlags) filter() (retrieval.AttributeFilter, error) {
	filter := retrieval.AttributeFilter{
		Aggregations: f.aggregations,
	}
	if len(f.nameEq) > 0 {
		filter.NameEq = f.nameEq
	}
	if len(f.regexes) > 0 || len(f.excludes) > 0 {
		filter.MustMatchAny = []retrieval.AttributeNameFilter{{
			MustMatchRegexes:    f.regexes,
			MustNotMatchRegexes: f.excludes,
		}}
	}
	for _, s := range f.types {
		t, err := domain.ParseAttributeType(s)
		if err != nil {
			return retrieval.AttributeFilter{}, err
		}
		filter.TypeIn = append(filter.TypeIn, t)
	}
	return filter, filter.Validate()
}

// outputFlags controls how a table is printed and whether it is saved.
type outputFlags struct {
	csv         bool
	save        string
	indexColumn string
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.csv, "csv", false, "print CSV instead of aligned text")
	cmd.Flags().StringVar(&f.save, "save", "", "save the table under this name")
	cmd.Flags().StringVar(&f.indexColumn, "index-column", "", "name of the index column (default experiment)")
}

func (f *outputFlags) write(w io.Writer, t *table.Table) error {
	if f.csv {
		return table.WriteCSV(w, t)
	}
	return table.WriteText(w, t)
}

// seriesFlags selects the points of metrics and series commands.
type seriesFlags struct {
	stepFrom         float64
	stepTo           float64
	tail             int
	includeInherited bool
	timestampColumn  string
}

func (f *seriesFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.stepFrom, "step-from", 0, "first step to include")
	cmd.Flags().Float64Var(&f.stepTo, "step-to", 0, "last step to include")
	cmd.Flags().IntVar(&f.tail, "tail", 0, "keep only the last N points of each series")
	cmd.Flags().BoolVar(&f.includeInherited, "include-inherited", false, "include points inherited from forked runs")
	cmd.Flags().StringVar(&f.timestampColumn, "timestamp-column", "", "add a timestamp sub-column with this name")
}

func (f *seriesFlags) options(cmd *cobra.Command) (retrieval.SeriesOptions, error) {
	if f.tail < 0 {
		return retrieval.SeriesOptions{}, fmt.Errorf("%w: --tail must not be negative", domain.ErrInvalidConfiguration)
	}
	opts := retrieval.SeriesOptions{
		TailLimit:        f.tail,
		IncludeInherited: f.includeInherited,
	}
	if cmd.Flags().Changed("step-from") {
		from := f.stepFrom
		opts.StepFrom = &from
	}
	if cmd.Flags().Changed("step-to") {
		to := f.stepTo
		opts.StepTo = &to
	}
	return opts, nil
}
