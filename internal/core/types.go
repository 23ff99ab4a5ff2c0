package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/treedata/internal/exchange"
	"github.com/JonMunkholm/treedata/internal/validation"
)

// ImportOptions controls how imported rows are written.
type ImportOptions struct {
	// Replace deletes a table's stored rows before inserting. Without it a
	// spreadsheet import merges on the table's unique identifier and a JSON
	// import appends.
	Replace bool

	// ContinueOnError writes the valid rows and skips the invalid ones.
	// When false, any row error cancels the whole import before writing.
	ContinueOnError bool
}

// JSONImportOptions are the options of a JSON document import.
type JSONImportOptions = ImportOptions

// ExportOptions selects which tables and columns are exported.
type ExportOptions = exchange.Options

// WriteMode is how an import wrote a table.
type WriteMode string

const (
	ModeReplace WriteMode = "replace"
	ModeMerge   WriteMode = "merge"
	ModeAppend  WriteMode = "append"
)

// TableImportResult holds per-table import counts.
type TableImportResult struct {
	TableID   int64     `json:"tableId"`
	Table     string    `json:"tableName"`
	Mode      WriteMode `json:"mode"`
	Processed int       `json:"processed"`
	Inserted  int       `json:"inserted"`
	Updated   int       `json:"updated"`
	Deleted   int64     `json:"deleted"`
	Skipped   int       `json:"skipped"`
}

// Written is the number of rows inserted or updated.
func (t TableImportResult) Written() int {
	return t.Inserted + t.Updated
}

// ImportResult summarizes one import run.
//
// When the write phase fails the counts describe what had been staged in
// the rolled-back transaction and Committed is false.
type ImportResult struct {
	ImportID  uuid.UUID           `json:"importId"`
	TreeID    int64               `json:"treeId"`
	Source    string              `json:"source"`
	Tables    []TableImportResult `json:"tables"`
	Errors    []validation.Issue  `json:"errors"`
	Warnings  []validation.Issue  `json:"warnings"`
	Committed bool                `json:"committed"`
	Duration  time.Duration       `json:"-"`

	// TotalImported is the number of rows inserted or updated.
	TotalImported int `json:"importedRowsCount"`
}

// TablesProcessed is the number of tables the import wrote to.
func (r *ImportResult) TablesProcessed() int {
	return len(r.Tables)
}

func (r *ImportResult) total() {
	r.TotalImported = 0
	for _, t := range r.Tables {
		r.TotalImported += t.Written()
	}
}

// RowView is a stored row with its decoded payload.
type RowView struct {
	ID        int64             `json:"id"`
	RowIndex  int               `json:"rowIndex"`
	Data      validation.Record `json:"rowData"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
