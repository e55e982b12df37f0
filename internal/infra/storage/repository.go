package storage

import (
	"context"
	"errors"
	"time"

	"github.com/paulpham157/neptune-fetcher/internal/table"
)

var (
	// ErrTableNotFound is returned when a saved table doesn't exist
	ErrTableNotFound = errors.New("table not found")
)

// TableInfo summarizes a saved table.
type TableInfo struct {
	Name      string    `db:"name"`
	Rows      int       `db:"row_count"`
	Columns   int       `db:"column_count"`
	Nested    bool      `db:"nested"`
	CreatedAt time.Time `db:"created_at"`
}

// TableStore persists materialized tables by name
type TableStore interface {
	// SaveTable stores t under name, replacing any previous table of that name
	SaveTable(ctx context.Context, name string, t *table.Table) error

	// LoadTable retrieves a table by name
	LoadTable(ctx context.Context, name string) (*table.Table, error)

	// ListTables lists saved tables ordered by name
	ListTables(ctx context.Context) ([]TableInfo, error)

	// DeleteTable removes a table. Deleting a missing table is not an error
	DeleteTable(ctx context.Context, name string) error
}
