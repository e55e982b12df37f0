// Package table reshapes fetched attribute values, metric points and series
// into rectangular tables.
//
// A Table has one or two index levels (label, or label and step), a column
// axis of (attribute, field) pairs and a sparse set of cells. Missing cells
// read as NA. All builders are pure: they never touch the network and
// either return a complete table or an error.
package table

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
)

type naValue struct{}

func (naValue) String() string { return "NA" }

// NA marks a missing cell.
var NA any = naValue{}

// IsNA reports whether v is the missing marker.
func IsNA(v any) bool {
	_, ok := v.(naValue)
	return ok
}

// RowKey identifies a row. Step is nil for tables indexed by label only.
type RowKey struct {
	Label string   `json:"label"`
	Step  *float64 `json:"step,omitempty"`
}

func (k RowKey) equal(o RowKey) bool {
	if k.Label != o.Label || (k.Step == nil) != (o.Step == nil) {
		return false
	}
	return k.Step == nil || *k.Step == *o.Step
}

// ColumnKey identifies a column. Field is empty in flat layouts.
type ColumnKey struct {
	Attribute string `json:"attribute"`
	Field     string `json:"field,omitempty"`
}

func (k ColumnKey) String() string {
	if k.Field == "" {
		return k.Attribute
	}
	return k.Attribute + "/" + k.Field
}

func compareColumns(a, b ColumnKey) int {
	return cmp.Or(cmp.Compare(a.Attribute, b.Attribute), cmp.Compare(a.Field, b.Field))
}

type cellKey struct {
	row, col int
}

// Table is a materialized result.
type Table struct {
	IndexNames []string
	Rows       []RowKey
	Columns    []ColumnKey
	// Nested reports a two-level (attribute, field) column layout.
	Nested bool

	cells map[cellKey]any
}

// New creates a table with the given axes and no cells.
func New(indexNames []string, rows []RowKey, columns []ColumnKey, nested bool) *Table {
	return &Table{
		IndexNames: indexNames,
		Rows:       rows,
		Columns:    columns,
		Nested:     nested,
		cells:      make(map[cellKey]any),
	}
}

// Set stores v at (row, col). Setting NA removes the cell.
func (t *Table) Set(row, col int, v any) {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Columns) {
		panic(fmt.Sprintf("table: cell (%d, %d) out of range", row, col))
	}
	if t.cells == nil {
		t.cells = make(map[cellKey]any)
	}
	if IsNA(v) {
		delete(t.cells, cellKey{row, col})
		return
	}
	t.cells[cellKey{row, col}] = v
}

// Cell returns the value at (row, col), or NA.
func (t *Table) Cell(row, col int) any {
	if v, ok := t.cells[cellKey{row, col}]; ok {
		return v
	}
	return NA
}

// Len returns the number of non-missing cells.
func (t *Table) Len() int {
	return len(t.cells)
}

// RowIndex returns the position of key, or -1.
func (t *Table) RowIndex(key RowKey) int {
	return slices.IndexFunc(t.Rows, key.equal)
}

// ColumnIndex returns the position of key, or -1.
func (t *Table) ColumnIndex(key ColumnKey) int {
	return slices.Index(t.Columns, key)
}

// Get returns the cell addressed by row and column keys, or NA.
func (t *Table) Get(row RowKey, col ColumnKey) any {
	r, c := t.RowIndex(row), t.ColumnIndex(col)
	if r < 0 || c < 0 {
		return NA
	}
	return t.Cell(r, c)
}

// Equal reports whether both tables have the same axes and cells.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Nested != o.Nested ||
		!slices.Equal(t.IndexNames, o.IndexNames) ||
		!slices.Equal(t.Columns, o.Columns) ||
		!slices.EqualFunc(t.Rows, o.Rows, RowKey.equal) ||
		len(t.cells) != len(o.cells) {
		return false
	}
	for k, v := range t.cells {
		ov, ok := o.cells[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the table axes and a shallow copy of its cells.
func (t *Table) Clone() *Table {
	c := New(slices.Clone(t.IndexNames), make([]RowKey, len(t.Rows)), slices.Clone(t.Columns), t.Nested)
	for i, r := range t.Rows {
		c.Rows[i] = RowKey{Label: r.Label}
		if r.Step != nil {
			step := *r.Step
			c.Rows[i].Step = &step
		}
	}
	for k, v := range t.cells {
		c.cells[k] = v
	}
	return c
}

// builder accumulates cells keyed by row and column before the axes are final.
type builder struct {
	rows    []RowKey
	rowIdx  map[rowID]int
	columns map[ColumnKey]struct{}
	values  map[rowID]map[ColumnKey]any
}

type rowID struct {
	label   string
	step    float64
	hasStep bool
}

func newBuilder() *builder {
	return &builder{
		rowIdx:  make(map[rowID]int),
		columns: make(map[ColumnKey]struct{}),
		values:  make(map[rowID]map[ColumnKey]any),
	}
}

func (b *builder) row(label string, step *float64) rowID {
	id := rowID{label: label}
	if step != nil {
		id.step, id.hasStep = *step, true
	}
	if _, ok := b.rowIdx[id]; !ok {
		b.rowIdx[id] = len(b.rows)
		key := RowKey{Label: label}
		if step != nil {
			s := *step
			key.Step = &s
		}
		b.rows = append(b.rows, key)
		b.values[id] = make(map[ColumnKey]any)
	}
	return id
}

// set stores a value and reports false if the cell was already set.
func (b *builder) set(id rowID, col ColumnKey, v any) bool {
	cells := b.values[id]
	if _, ok := cells[col]; ok {
		return false
	}
	cells[col] = v
	b.columns[col] = struct{}{}
	return true
}

// renameColumns applies an injective rename to every column.
func (b *builder) renameColumns(rename func(ColumnKey) ColumnKey) {
	columns := make(map[ColumnKey]struct{}, len(b.columns))
	for c := range b.columns {
		columns[rename(c)] = struct{}{}
	}
	b.columns = columns
	for id, cells := range b.values {
		renamed := make(map[ColumnKey]any, len(cells))
		for c, v := range cells {
			renamed[rename(c)] = v
		}
		b.values[id] = renamed
	}
}

func (b *builder) build(indexNames []string, nested bool, sortRows bool) *Table {
	columns := make([]ColumnKey, 0, len(b.columns))
	for c := range b.columns {
		columns = append(columns, c)
	}
	slices.SortFunc(columns, compareColumns)

	rows := slices.Clone(b.rows)
	if sortRows {
		slices.SortStableFunc(rows, func(a, b RowKey) int {
			if c := cmp.Compare(a.Label, b.Label); c != 0 {
				return c
			}
			if a.Step == nil || b.Step == nil {
				return 0
			}
			return cmp.Compare(*a.Step, *b.Step)
		})
	}

	t := New(indexNames, rows, columns, nested)
	colIdx := make(map[ColumnKey]int, len(columns))
	for i, c := range columns {
		colIdx[c] = i
	}
	for r, key := range rows {
		id := rowID{label: key.Label}
		if key.Step != nil {
			id.step, id.hasStep = *key.Step, true
		}
		for col, v := range b.values[id] {
			t.Set(r, colIdx[col], v)
		}
	}
	return t
}

func indexName(name string) string {
	if name == "" {
		return "experiment"
	}
	return name
}
