package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/paulpham157/neptune-fetcher/internal/infra/storage"
	"github.com/paulpham157/neptune-fetcher/internal/table"
)

// cellBatchSize bounds the rows of one multi-row INSERT.
const cellBatchSize = 1000

const insertCellSQL = `
INSERT INTO fetched_cells (table_name, row_idx, col_idx, label, step, attribute, field, value)
VALUES (:table_name, :row_idx, :col_idx, :label, :step, :attribute, :field, :value)`

type tableRow struct {
	Name       string         `db:"name"`
	IndexNames pq.StringArray `db:"index_names"`
	RowKeys    string         `db:"row_keys"`
	ColumnKeys string         `db:"column_keys"`
	Nested     bool           `db:"nested"`
	CreatedAt  time.Time      `db:"created_at"`
}

type cellRow struct {
	TableName string   `db:"table_name"`
	RowIdx    int      `db:"row_idx"`
	ColIdx    int      `db:"col_idx"`
	Label     string   `db:"label"`
	Step      *float64 `db:"step"`
	Attribute string   `db:"attribute"`
	Field     string   `db:"field"`
	Value     string   `db:"value"`
}

// TableRepo implements storage.TableStore using PostgreSQL.
type TableRepo struct {
	db *DB
}

// NewTableRepo creates a new PostgreSQL table repository.
func NewTableRepo(db *DB) *TableRepo {
	return &TableRepo{db: db}
}

// SaveTable replaces the table stored under name in a single transaction.
func (r *TableRepo) SaveTable(ctx context.Context, name string, t *table.Table) error {
	record, err := newTableRow(name, t)
	if err != nil {
		return err
	}
	cells, err := cellRows(name, t)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fetched_tables WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to replace table: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO fetched_tables (name, index_names, row_keys, column_keys, nested)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.Name, record.IndexNames, record.RowKeys, record.ColumnKeys, record.Nested,
	)
	if err != nil {
		return fmt.Errorf("failed to save table: %w", err)
	}

	for start := 0; start < len(cells); start += cellBatchSize {
		batch := cells[start:min(start+cellBatchSize, len(cells))]
		if _, err := tx.NamedExecContext(ctx, insertCellSQL, batch); err != nil {
			return fmt.Errorf("failed to save cells: %w", err)
		}
	}

	return tx.Commit()
}

// newTableRow encodes the axes of t. Empty axes are stored as JSON arrays,
// never null, so jsonb_array_length can count them.
func newTableRow(name string, t *table.Table) (tableRow, error) {
	rows := t.Rows
	if rows == nil {
		rows = []table.RowKey{}
	}
	columns := t.Columns
	if columns == nil {
		columns = []table.ColumnKey{}
	}
	indexNames := t.IndexNames
	if indexNames == nil {
		indexNames = []string{}
	}

	rowKeys, err := json.Marshal(rows)
	if err != nil {
		return tableRow{}, fmt.Errorf("failed to encode rows: %w", err)
	}
	columnKeys, err := json.Marshal(columns)
	if err != nil {
		return tableRow{}, fmt.Errorf("failed to encode columns: %w", err)
	}
	return tableRow{
		Name:       name,
		IndexNames: pq.StringArray(indexNames),
		RowKeys:    string(rowKeys),
		ColumnKeys: string(columnKeys),
		Nested:     t.Nested,
	}, nil
}

func cellRows(name string, t *table.Table) ([]cellRow, error) {
	var cells []cellRow
	for r, row := range t.Rows {
		for c, col := range t.Columns {
			v := t.Cell(r, c)
			if table.IsNA(v) {
				continue
			}
			encoded, err := encodeCell(v)
			if err != nil {
				return nil, fmt.Errorf("cell %s/%s: %w", row.Label, col, err)
			}
			cells = append(cells, cellRow{
				TableName: name,
				RowIdx:    r,
				ColIdx:    c,
				Label:     row.Label,
				Step:      row.Step,
				Attribute: col.Attribute,
				Field:     col.Field,
				Value:     encoded,
			})
		}
	}
	return cells, nil
}

// LoadTable retrieves a table by name.
func (r *TableRepo) LoadTable(ctx context.Context, name string) (*table.Table, error) {
	var row tableRow
	err := r.db.GetContext(ctx, &row,
		`SELECT name, index_names, row_keys, column_keys, nested, created_at
		 FROM fetched_tables WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}

	var rows []table.RowKey
	if err := json.Unmarshal([]byte(row.RowKeys), &rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	var columns []table.ColumnKey
	if err := json.Unmarshal([]byte(row.ColumnKeys), &columns); err != nil {
		return nil, fmt.Errorf("failed to decode columns: %w", err)
	}
	t := table.New([]string(row.IndexNames), rows, columns, row.Nested)

	var cells []cellRow
	err = r.db.SelectContext(ctx, &cells,
		`SELECT table_name, row_idx, col_idx, label, step, attribute, field, value
		 FROM fetched_cells WHERE table_name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get cells: %w", err)
	}
	for _, c := range cells {
		v, err := decodeCell(c.Value)
		if err != nil {
			return nil, err
		}
		t.Set(c.RowIdx, c.ColIdx, v)
	}
	return t, nil
}

// ListTables lists saved tables ordered by name.
func (r *TableRepo) ListTables(ctx context.Context) ([]storage.TableInfo, error) {
	var infos []storage.TableInfo
	err := r.db.SelectContext(ctx, &infos,
		`SELECT name,
		        CASE WHEN jsonb_typeof(row_keys) = 'array' THEN jsonb_array_length(row_keys) ELSE 0 END AS row_count,
		        CASE WHEN jsonb_typeof(column_keys) = 'array' THEN jsonb_array_length(column_keys) ELSE 0 END AS column_count,
		        nested,
		        created_at
		 FROM fetched_tables ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return infos, nil
}

// DeleteTable removes a table and its cells.
func (r *TableRepo) DeleteTable(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM fetched_tables WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	return nil
}
