package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

// Records renders the table as string records: one header record per
// column level, then one record per row.
func (t *Table) Records() [][]string {
	var records [][]string

	header := append([]string{}, t.IndexNames...)
	for _, c := range t.Columns {
		header = append(header, c.Attribute)
	}
	records = append(records, header)

	if t.Nested {
		fields := make([]string, len(t.IndexNames), len(t.IndexNames)+len(t.Columns))
		for _, c := range t.Columns {
			fields = append(fields, c.Field)
		}
		records = append(records, fields)
	}

	for r, row := range t.Rows {
		record := []string{row.Label}
		if len(t.IndexNames) > 1 {
			step := ""
			if row.Step != nil {
				step = FormatValue(*row.Step)
			}
			record = append(record, step)
		}
		for c := range t.Columns {
			record = append(record, FormatValue(t.Cell(r, c)))
		}
		records = append(records, record)
	}
	return records
}

// WriteText writes the table as aligned columns.
func WriteText(w io.Writer, t *Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, record := range t.Records() {
		if _, err := fmt.Fprintln(tw, strings.Join(record, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteCSV writes the table as CSV.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// FormatValue renders a cell value for text output.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case naValue:
		return v.String()
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []string:
		return strings.Join(v, ",")
	case domain.File:
		return v.Path
	case domain.Histogram:
		return fmt.Sprintf("%s%v:%v", v.Type, v.Edges, v.Values)
	default:
		return fmt.Sprint(v)
	}
}
