package table

import (
	"fmt"
	"time"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

// Metric point sub-columns.
const (
	FieldValue             = "value"
	FieldIsPreview         = "is_preview"
	FieldPreviewCompletion = "preview_completion"
)

// DuplicateEntryError is returned when two points share a label, step and path.
type DuplicateEntryError struct {
	Label string
	Step  float64
	Path  string
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("duplicate entry for %q at step %v of %q", e.Path, e.Step, e.Label)
}

// MetricsTableOptions controls MetricsTable.
type MetricsTableOptions struct {
	IncludePreviews bool
	// TimestampColumn names the timestamp sub-column; empty leaves it out.
	TimestampColumn  string
	TypeSuffixInName bool
	IndexColumnName  string
}

// MetricsTable builds one row per (label, step), sorted by label and then
// step, with one column per metric path. The column layout is nested when
// previews or timestamps are requested.
func MetricsTable(
	points map[domain.RunAttributeDefinition][]domain.FloatPointValue,
	labels map[domain.RunIdentifier]string,
	opts MetricsTableOptions,
) (*Table, error) {
	switch opts.TimestampColumn {
	case FieldValue, FieldIsPreview, FieldPreviewCompletion:
		return nil, fmt.Errorf("%w: timestamp column cannot be named %q", domain.ErrInvalidConfiguration, opts.TimestampColumn)
	}
	nested := opts.IncludePreviews || opts.TimestampColumn != ""

	b := newBuilder()
	for key, values := range points {
		label := labelOf(labels, key.Run)
		path := key.Attribute.Name
		if opts.TypeSuffixInName {
			path = key.Attribute.String()
		}

		for _, p := range values {
			if p.IsPreview && !opts.IncludePreviews {
				continue
			}
			step := p.Step
			id := b.row(label, &step)

			cells := map[string]any{FieldValue: p.Value}
			if opts.IncludePreviews {
				cells[FieldIsPreview] = p.IsPreview
				cells[FieldPreviewCompletion] = p.PreviewCompletion
			}
			if opts.TimestampColumn != "" {
				cells[opts.TimestampColumn] = time.UnixMilli(p.TimestampMillis).UTC()
			}

			for field, v := range cells {
				col := ColumnKey{Attribute: path, Field: field}
				if !nested {
					col.Field = ""
				}
				if !b.set(id, col, v) {
					return nil, &DuplicateEntryError{Label: label, Step: step, Path: path}
				}
			}
		}
	}

	return b.build([]string{indexName(opts.IndexColumnName), "step"}, nested, true), nil
}

func labelOf(labels map[domain.RunIdentifier]string, run domain.RunIdentifier) string {
	if label, ok := labels[run]; ok {
		return label
	}
	return string(run.SysID)
}
