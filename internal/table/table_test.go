package table

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

var (
	run1 = domain.NewRunIdentifier("ws/proj", "RUN-1")
	run2 = domain.NewRunIdentifier("ws/proj", "RUN-2")
)

func def(name string, t domain.AttributeType) domain.AttributeDefinition {
	return domain.AttributeDefinition{Name: name, Type: t}
}

func val(run domain.RunIdentifier, d domain.AttributeDefinition, v any) domain.AttributeValue {
	return domain.AttributeValue{Attribute: d, Value: v, Run: run}
}

func step(s float64) *float64 { return &s }

// =============================================================================
// Attribute tables
// =============================================================================

func sampleEntities() []EntityValues {
	loss := def("loss", domain.TypeFloatSeries)
	return []EntityValues{
		{Label: "exp-b", Values: []domain.AttributeValue{
			val(run1, def("lr", domain.TypeFloat), 0.1),
			val(run1, def("epochs", domain.TypeInt), int64(10)),
			val(run1, loss, domain.FloatSeriesAggregations{Last: 0.2, Min: 0.1, Max: 3}),
		}},
		{Label: "exp-a", Values: []domain.AttributeValue{
			val(run2, def("lr", domain.TypeFloat), 0.01),
		}},
		{Label: "exp-empty"},
	}
}

func TestAttributeTable_RoundTrip(t *testing.T) {
	loss := def("loss", domain.TypeFloatSeries)
	opts := AttributeTableOptions{
		SelectedAggregations: map[domain.AttributeDefinition][]string{loss: {domain.AggLast, domain.AggMin}},
	}

	tbl, err := AttributeTable(sampleEntities(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"experiment"}, tbl.IndexNames)
	assert.True(t, tbl.Nested)
	assert.Equal(t, []RowKey{{Label: "exp-b"}, {Label: "exp-a"}, {Label: "exp-empty"}}, tbl.Rows)
	assert.Equal(t, []ColumnKey{
		{Attribute: "epochs"},
		{Attribute: "loss", Field: "last"},
		{Attribute: "loss", Field: "min"},
		{Attribute: "lr"},
	}, tbl.Columns)

	assert.Equal(t, 0.1, tbl.Get(RowKey{Label: "exp-b"}, ColumnKey{Attribute: "lr"}))
	assert.Equal(t, int64(10), tbl.Get(RowKey{Label: "exp-b"}, ColumnKey{Attribute: "epochs"}))
	assert.Equal(t, 0.2, tbl.Get(RowKey{Label: "exp-b"}, ColumnKey{Attribute: "loss", Field: "last"}))
	assert.Equal(t, 0.1, tbl.Get(RowKey{Label: "exp-b"}, ColumnKey{Attribute: "loss", Field: "min"}))
	assert.Equal(t, 0.01, tbl.Get(RowKey{Label: "exp-a"}, ColumnKey{Attribute: "lr"}))

	assert.True(t, IsNA(tbl.Get(RowKey{Label: "exp-a"}, ColumnKey{Attribute: "epochs"})))
	assert.True(t, IsNA(tbl.Get(RowKey{Label: "exp-empty"}, ColumnKey{Attribute: "lr"})))
	assert.Equal(t, 5, tbl.Len())
}

func TestAttributeTable_Idempotent(t *testing.T) {
	opts := AttributeTableOptions{TypeSuffixInName: true}
	a, err := AttributeTable(sampleEntities(), opts)
	require.NoError(t, err)
	b, err := AttributeTable(sampleEntities(), opts)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(a.Clone()))

	b.Set(0, 0, "changed")
	assert.False(t, a.Equal(b))
}

func TestAttributeTable_TypeConflicts(t *testing.T) {
	entities := []EntityValues{
		{Label: "a", Values: []domain.AttributeValue{val(run1, def("x", domain.TypeInt), int64(1))}},
		{Label: "b", Values: []domain.AttributeValue{val(run2, def("x", domain.TypeFloat), 2.0)}},
	}

	t.Run("without suffix", func(t *testing.T) {
		_, err := AttributeTable(entities, AttributeTableOptions{})

		var conflict *domain.ConflictingAttributeTypesError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, []string{"x"}, conflict.Names)
		assert.ErrorIs(t, err, domain.ErrConflictingAttributeTypes)
	})

	t.Run("with suffix", func(t *testing.T) {
		tbl, err := AttributeTable(entities, AttributeTableOptions{TypeSuffixInName: true})
		require.NoError(t, err)
		assert.Equal(t, []ColumnKey{{Attribute: "x:float"}, {Attribute: "x:int"}}, tbl.Columns)
		assert.Equal(t, int64(1), tbl.Get(RowKey{Label: "a"}, ColumnKey{Attribute: "x:int"}))
		assert.Equal(t, 2.0, tbl.Get(RowKey{Label: "b"}, ColumnKey{Attribute: "x:float"}))
	})
}

func TestAttributeTable_DuplicateColumnInRow(t *testing.T) {
	entities := []EntityValues{{Label: "a", Values: []domain.AttributeValue{
		val(run1, def("x", domain.TypeInt), int64(1)),
		val(run1, def("x", domain.TypeInt), int64(2)),
	}}}
	_, err := AttributeTable(entities, AttributeTableOptions{})
	assert.ErrorIs(t, err, domain.ErrConflictingAttributeTypes)
}

func TestAttributeTable_FlattenAggregations(t *testing.T) {
	loss := def("loss", domain.TypeFloatSeries)
	entities := []EntityValues{{Label: "a", Values: []domain.AttributeValue{
		val(run1, loss, domain.FloatSeriesAggregations{Last: 1, Min: 0.5}),
	}}}

	tests := []struct {
		name    string
		opts    AttributeTableOptions
		wantErr bool
	}{
		{
			name: "last and min rejected",
			opts: AttributeTableOptions{
				FlattenAggregations:  true,
				SelectedAggregations: map[domain.AttributeDefinition][]string{loss: {"last", "min"}},
			},
			wantErr: true,
		},
		{
			name:    "both flatten options rejected",
			opts:    AttributeTableOptions{FlattenAggregations: true, FlattenFileProperties: true},
			wantErr: true,
		},
		{
			name: "last accepted",
			opts: AttributeTableOptions{
				FlattenAggregations:  true,
				SelectedAggregations: map[domain.AttributeDefinition][]string{loss: {"last"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := AttributeTable(entities, tt.opts)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.False(t, tbl.Nested)
			assert.Equal(t, []ColumnKey{{Attribute: "loss"}}, tbl.Columns)
			assert.Equal(t, 1.0, tbl.Cell(0, 0))
		})
	}
}

func TestAttributeTable_SeriesAggregations(t *testing.T) {
	logs := def("logs", domain.TypeStringSeries)
	entities := []EntityValues{{Label: "a", Values: []domain.AttributeValue{
		val(run1, logs, domain.StringSeriesAggregations{Last: "done", LastStep: 9}),
	}}}

	tbl, err := AttributeTable(entities, AttributeTableOptions{
		SelectedAggregations: map[domain.AttributeDefinition][]string{logs: {"last", "last_step", "variance"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []ColumnKey{{Attribute: "logs", Field: "last"}, {Attribute: "logs", Field: "last_step"}}, tbl.Columns)
	assert.Equal(t, 9.0, tbl.Cell(0, 1))

	tbl, err = AttributeTable(entities, AttributeTableOptions{})
	require.NoError(t, err)
	assert.Empty(t, tbl.Columns, "no selection, no columns")
}

func TestAttributeTable_FlattenFileProperties(t *testing.T) {
	f := domain.File{Path: "out/model.pt", SizeBytes: 1024, MimeType: "application/octet-stream"}
	entities := []EntityValues{{Label: "a", Values: []domain.AttributeValue{val(run1, def("model", domain.TypeFile), f)}}}

	tbl, err := AttributeTable(entities, AttributeTableOptions{FlattenFileProperties: true})
	require.NoError(t, err)
	assert.Equal(t, []ColumnKey{
		{Attribute: "model", Field: FieldMimeType},
		{Attribute: "model", Field: FieldPath},
		{Attribute: "model", Field: FieldSizeBytes},
	}, tbl.Columns)
	assert.Equal(t, "out/model.pt", tbl.Get(RowKey{Label: "a"}, ColumnKey{Attribute: "model", Field: FieldPath}))
	assert.Equal(t, int64(1024), tbl.Get(RowKey{Label: "a"}, ColumnKey{Attribute: "model", Field: FieldSizeBytes}))

	tbl, err = AttributeTable(entities, AttributeTableOptions{})
	require.NoError(t, err)
	assert.Equal(t, f, tbl.Cell(0, 0))
}

func TestAttributeTable_Empty(t *testing.T) {
	for _, flatten := range []bool{false, true} {
		tbl, err := AttributeTable(nil, AttributeTableOptions{FlattenAggregations: flatten, IndexColumnName: "run"})
		require.NoError(t, err)
		assert.Empty(t, tbl.Rows)
		assert.Empty(t, tbl.Columns)
		assert.Equal(t, []string{"run"}, tbl.IndexNames)
		assert.Equal(t, !flatten, tbl.Nested)
	}
}

// =============================================================================
// Metrics and series tables
// =============================================================================

func metricKey(run domain.RunIdentifier, name string) domain.RunAttributeDefinition {
	return domain.RunAttributeDefinition{Run: run, Attribute: def(name, domain.TypeFloatSeries)}
}

func TestMetricsTable_SortsSteps(t *testing.T) {
	var points []domain.FloatPointValue
	for _, s := range []float64{3, 1, 5, 2, 4} {
		points = append(points, domain.FloatPointValue{Step: s, Value: s * 10})
	}

	tbl, err := MetricsTable(map[domain.RunAttributeDefinition][]domain.FloatPointValue{
		metricKey(run1, "loss"): points,
	}, nil, MetricsTableOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"experiment", "step"}, tbl.IndexNames)
	assert.False(t, tbl.Nested)
	var steps []float64
	for i, r := range tbl.Rows {
		assert.Equal(t, "RUN-1", r.Label)
		steps = append(steps, *r.Step)
		assert.Equal(t, *r.Step*10, tbl.Cell(i, 0))
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, steps)
}

func TestMetricsTable_RowsSortedByLabel(t *testing.T) {
	tbl, err := MetricsTable(map[domain.RunAttributeDefinition][]domain.FloatPointValue{
		metricKey(run1, "loss"): {{Step: 1, Value: 1}},
		metricKey(run2, "loss"): {{Step: 0, Value: 2}},
		metricKey(run2, "acc"):  {{Step: 0, Value: 0.9}},
	}, map[domain.RunIdentifier]string{run1: "b", run2: "a"}, MetricsTableOptions{})
	require.NoError(t, err)

	assert.Equal(t, []RowKey{{Label: "a", Step: step(0)}, {Label: "b", Step: step(1)}}, tbl.Rows)
	assert.Equal(t, []ColumnKey{{Attribute: "acc"}, {Attribute: "loss"}}, tbl.Columns)
	assert.True(t, IsNA(tbl.Get(RowKey{Label: "b", Step: step(1)}, ColumnKey{Attribute: "acc"})))
}

func TestMetricsTable_NestedFields(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	points := map[domain.RunAttributeDefinition][]domain.FloatPointValue{
		metricKey(run1, "loss"): {
			{Step: 1, Value: 0.5, TimestampMillis: ts.UnixMilli()},
			{Step: 2, Value: 0.4, TimestampMillis: ts.UnixMilli(), IsPreview: true, PreviewCompletion: 0.3},
		},
	}

	tbl, err := MetricsTable(points, nil, MetricsTableOptions{
		IncludePreviews:  true,
		TimestampColumn:  "absolute_time",
		TypeSuffixInName: true,
	})
	require.NoError(t, err)

	assert.True(t, tbl.Nested)
	assert.Equal(t, []ColumnKey{
		{Attribute: "loss:float_series", Field: "absolute_time"},
		{Attribute: "loss:float_series", Field: FieldIsPreview},
		{Attribute: "loss:float_series", Field: FieldPreviewCompletion},
		{Attribute: "loss:float_series", Field: FieldValue},
	}, tbl.Columns)
	row := RowKey{Label: "RUN-1", Step: step(2)}
	assert.Equal(t, true, tbl.Get(row, ColumnKey{Attribute: "loss:float_series", Field: FieldIsPreview}))
	assert.Equal(t, 0.3, tbl.Get(row, ColumnKey{Attribute: "loss:float_series", Field: FieldPreviewCompletion}))
	assert.Equal(t, ts, tbl.Get(row, ColumnKey{Attribute: "loss:float_series", Field: "absolute_time"}))
}

func TestMetricsTable_PreviewsDroppedByDefault(t *testing.T) {
	tbl, err := MetricsTable(map[domain.RunAttributeDefinition][]domain.FloatPointValue{
		metricKey(run1, "loss"): {{Step: 1, Value: 1}, {Step: 2, Value: 2, IsPreview: true}},
	}, nil, MetricsTableOptions{})
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 1)
}

func TestMetricsTable_ReservedPaths(t *testing.T) {
	for _, path := range []string{"value", "step", "experiment", "timestamp", "is_preview", "preview_completion"} {
		t.Run(path, func(t *testing.T) {
			tbl, err := MetricsTable(map[domain.RunAttributeDefinition][]domain.FloatPointValue{
				metricKey(run1, path):    {{Step: 1, Value: 1}},
				metricKey(run1, "other"): {{Step: 1, Value: 2}},
			}, nil, MetricsTableOptions{IncludePreviews: true, TimestampColumn: "timestamp"})
			require.NoError(t, err)

			row := RowKey{Label: "RUN-1", Step: step(1)}
			assert.Equal(t, 1.0, tbl.Get(row, ColumnKey{Attribute: path, Field: FieldValue}))
			assert.Equal(t, 2.0, tbl.Get(row, ColumnKey{Attribute: "other", Field: FieldValue}))
			assert.Len(t, tbl.Columns, 8)
		})
	}
}

func TestMetricsTable_DuplicateEntry(t *testing.T) {
	_, err := MetricsTable(map[domain.RunAttributeDefinition][]domain.FloatPointValue{
		metricKey(run1, "loss"): {{Step: 1, Value: 1}, {Step: 1, Value: 2}},
	}, nil, MetricsTableOptions{})

	var dup *DuplicateEntryError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "loss", dup.Path)
	assert.Equal(t, 1.0, dup.Step)
}

func TestMetricsTable_InvalidTimestampColumn(t *testing.T) {
	_, err := MetricsTable(nil, nil, MetricsTableOptions{TimestampColumn: "value"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestMetricsTable_Empty(t *testing.T) {
	tbl, err := MetricsTable(nil, nil, MetricsTableOptions{IncludePreviews: true})
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)
	assert.True(t, tbl.Nested)

	tbl, err = MetricsTable(nil, nil, MetricsTableOptions{})
	require.NoError(t, err)
	assert.False(t, tbl.Nested)
}

func TestSeriesTable(t *testing.T) {
	key := domain.RunAttributeDefinition{Run: run1, Attribute: def("logs", domain.TypeStringSeries)}
	series := map[domain.RunAttributeDefinition][]domain.SeriesValue{
		key: {{Step: 2, Value: "second", TimestampMillis: 2000}, {Step: 1, Value: "first", TimestampMillis: 1000}},
	}

	tbl, err := SeriesTable(series, map[domain.RunIdentifier]string{run1: "exp"}, SeriesTableOptions{})
	require.NoError(t, err)
	assert.False(t, tbl.Nested)
	assert.Equal(t, "first", tbl.Cell(0, 0))
	assert.Equal(t, "second", tbl.Cell(1, 0))

	tbl, err = SeriesTable(series, nil, SeriesTableOptions{TimestampColumn: "timestamp"})
	require.NoError(t, err)
	assert.True(t, tbl.Nested)
	assert.Equal(t, []ColumnKey{{Attribute: "logs", Field: "timestamp"}, {Attribute: "logs", Field: FieldValue}}, tbl.Columns)
	assert.Equal(t, time.UnixMilli(1000).UTC(), tbl.Cell(0, 0))
}

// =============================================================================
// Files tables
// =============================================================================

func TestFilesTable(t *testing.T) {
	path := "/tmp/a.png"
	files := []DownloadedFile{
		{Run: run2, Attribute: def("image", domain.TypeFile), Path: &path},
		{Run: run1, Attribute: def("experiment", domain.TypeFile), Path: nil},
	}

	tbl, err := FilesTable(files, nil, FilesTableOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"experiment"}, tbl.IndexNames)
	assert.Equal(t, []RowKey{{Label: "RUN-1"}, {Label: "RUN-2"}}, tbl.Rows)
	assert.Equal(t, []ColumnKey{{Attribute: "experiment"}, {Attribute: "image"}}, tbl.Columns)
	assert.Equal(t, path, tbl.Get(RowKey{Label: "RUN-2"}, ColumnKey{Attribute: "image"}))
	assert.True(t, IsNA(tbl.Get(RowKey{Label: "RUN-1"}, ColumnKey{Attribute: "experiment"})))
}

func TestFilesTable_Empty(t *testing.T) {
	tbl, err := FilesTable(nil, nil, FilesTableOptions{IndexColumnName: "run"})
	require.NoError(t, err)
	assert.Equal(t, []string{"run"}, tbl.IndexNames)
	assert.Empty(t, tbl.Columns)
	assert.False(t, tbl.Nested)
}

// =============================================================================
// Output
// =============================================================================

func TestWriteCSV(t *testing.T) {
	tbl, err := MetricsTable(map[domain.RunAttributeDefinition][]domain.FloatPointValue{
		metricKey(run1, "loss"): {{Step: 1, Value: 0.5}},
		metricKey(run1, "acc"):  {{Step: 2, Value: 0.9}},
	}, nil, MetricsTableOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, "experiment,step,acc,loss\nRUN-1,1,NA,0.5\nRUN-1,2,0.9,NA\n", buf.String())
}

func TestWriteText_Nested(t *testing.T) {
	tbl, err := AttributeTable(sampleEntities(), AttributeTableOptions{
		SelectedAggregations: map[domain.AttributeDefinition][]string{def("loss", domain.TypeFloatSeries): {"last"}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, tbl))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Len(t, lines, 2+len(tbl.Rows))
	assert.Contains(t, string(lines[1]), "last")
}
