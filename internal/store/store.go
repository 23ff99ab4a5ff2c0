// Package store persists decision-tree row data.
//
// Rows are opaque JSON objects owned by a table. The schema tables are read
// only; they are maintained by the CRUD layer. All writes made by a single
// import go through WithTx so a failure leaves stored rows untouched.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/treedata/internal/schema"
)

// ErrNotFound is returned when a tree, table or row does not exist.
var ErrNotFound = errors.New("not found")

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Row is one stored data row.
type Row struct {
	ID        int64           `json:"id"`
	TreeID    int64           `json:"treeId"`
	TableID   int64           `json:"tableId"`
	RowIndex  int             `json:"rowIndex"`
	Payload   json.RawMessage `json:"rowData"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ValidationLogEntry records one problem found during an import.
type ValidationLogEntry struct {
	ImportID   uuid.UUID
	TreeID     int64
	TableID    *int64
	RowIndex   *int
	ColumnName string
	Value      string
	ErrorType  string
	Message    string
	LoggedAt   time.Time
}

// SchemaSource reads tree metadata.
type SchemaSource interface {
	GetTree(ctx context.Context, treeID int64) (schema.Tree, error)

	// ListTables returns every table of the tree with all of its columns.
	ListTables(ctx context.Context, treeID int64) ([]schema.Table, error)

	GetTable(ctx context.Context, tableID int64) (schema.Table, error)
}

// RowReader reads stored rows outside a transaction.
type RowReader interface {
	// ListActiveColumns returns active columns ordered by order index then id.
	ListActiveColumns(ctx context.Context, tableID int64) ([]schema.Column, error)

	// ListRows returns rows in row index order.
	ListRows(ctx context.Context, tableID int64) ([]Row, error)

	CountRows(ctx context.Context, tableID int64) (int64, error)
}

// RowWriter is the set of row operations available inside a transaction.
type RowWriter interface {
	ListRows(ctx context.Context, tableID int64) ([]Row, error)
	InsertRow(ctx context.Context, treeID, tableID int64, payload []byte) (Row, error)
	UpdateRowPayload(ctx context.Context, rowID int64, payload []byte) error
	DeleteAllRows(ctx context.Context, tableID int64) (int64, error)
}

// Store is everything the import and export pipeline needs.
type Store interface {
	SchemaSource
	RowReader

	// WithTx runs fn in a single transaction. If fn returns an error every
	// write it made is discarded.
	WithTx(ctx context.Context, fn func(RowWriter) error) error

	AppendValidationLog(ctx context.Context, entries []ValidationLogEntry) error

	// PurgeValidationLog deletes entries logged before the cutoff.
	PurgeValidationLog(ctx context.Context, before time.Time) (int64, error)
}
