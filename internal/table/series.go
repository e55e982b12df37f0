package table

import (
	"fmt"
	"time"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

// SeriesTableOptions controls SeriesTable.
type SeriesTableOptions struct {
	TimestampColumn string
	IndexColumnName string
}

// SeriesTable is MetricsTable for string, file and histogram series.
func SeriesTable(
	series map[domain.RunAttributeDefinition][]domain.SeriesValue,
	labels map[domain.RunIdentifier]string,
	opts SeriesTableOptions,
) (*Table, error) {
	if opts.TimestampColumn == FieldValue {
		return nil, fmt.Errorf("%w: timestamp column cannot be named %q", domain.ErrInvalidConfiguration, FieldValue)
	}
	nested := opts.TimestampColumn != ""

	b := newBuilder()
	for key, values := range series {
		label := labelOf(labels, key.Run)
		path := key.Attribute.Name

		for _, v := range values {
			step := v.Step
			id := b.row(label, &step)

			valueCol := ColumnKey{Attribute: path}
			if nested {
				valueCol.Field = FieldValue
			}
			if !b.set(id, valueCol, v.Value) {
				return nil, &DuplicateEntryError{Label: label, Step: step, Path: path}
			}
			if nested {
				tsCol := ColumnKey{Attribute: path, Field: opts.TimestampColumn}
				b.set(id, tsCol, time.UnixMilli(v.TimestampMillis).UTC())
			}
		}
	}

	return b.build([]string{indexName(opts.IndexColumnName), "step"}, nested, true), nil
}
