// Package exchange builds and parses the JSON document used to move a
// tree's row data between systems.
//
// The document carries tree metadata and, per table, the column
// descriptors and the rows as keyed objects. Tables without rows are
// left out.
package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/treedata/internal/schema"
	"github.com/JonMunkholm/treedata/internal/validation"
)

var (
	// ErrCorruptRow marks a stored row whose payload is not a JSON object
	// of scalars. Exports stop on it.
	ErrCorruptRow = errors.New("stored row is corrupt")

	// ErrMalformedDocument is returned by Parse for input that is not an
	// exchange document.
	ErrMalformedDocument = errors.New("malformed exchange document")

	// ErrTreeCodeMismatch is returned when a document belongs to another
	// tree.
	ErrTreeCodeMismatch = errors.New("decision tree code mismatch")
)

// Document is the exchange document.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Tables   []Table  `json:"tables"`
}

// Metadata identifies the tree and schema version a document was built from.
type Metadata struct {
	TreeID        int64     `json:"treeId"`
	TreeCode      string    `json:"treeCode"`
	TreeName      string    `json:"treeName"`
	SchemaVersion int       `json:"schemaVersion"`
	ExportedAt    time.Time `json:"exportedAt"`
}

// Table is one table's columns and rows.
type Table struct {
	TableID   int64               `json:"tableId"`
	TableName string              `json:"tableName"`
	Direction schema.Direction    `json:"direction"`
	Columns   []Column            `json:"columns"`
	Rows      []validation.Record `json:"rows"`
}

// Column describes a column of an exported table.
type Column struct {
	ColumnID   int64           `json:"columnId"`
	ColumnName string          `json:"columnName"`
	DataType   schema.DataType `json:"dataType"`
	IsRequired bool            `json:"isRequired"`
	Format     string          `json:"format,omitempty"`
	OrderIndex int             `json:"orderIndex"`
}

// Options controls which parts of the schema are exported.
type Options struct {
	IncludeInactiveTables  bool
	IncludeInactiveColumns bool
}

// StoredRow is a persisted row payload and its position in the table.
type StoredRow struct {
	Index   int
	Payload json.RawMessage
}

// RowCount returns the number of rows across all tables.
func (d *Document) RowCount() int {
	n := 0
	for _, t := range d.Tables {
		n += len(t.Rows)
	}
	return n
}

// CheckTree verifies that the document was exported from tree.
func (d *Document) CheckTree(tree schema.Tree) error {
	if d.Metadata.TreeCode != tree.Code {
		return fmt.Errorf("%w: document has %q, tree %d has %q",
			ErrTreeCodeMismatch, d.Metadata.TreeCode, tree.ID, tree.Code)
	}
	return nil
}

// Build assembles a document from the tree's tables and their stored rows,
// keyed by table ID. Tables with no rows or no exported columns are
// omitted. A row that does not decode fails the whole build.
func Build(tree schema.Tree, tables []schema.Table, rows map[int64][]StoredRow, opts Options, now time.Time) (*Document, error) {
	doc := &Document{
		Metadata: Metadata{
			TreeID:        tree.ID,
			TreeCode:      tree.Code,
			TreeName:      tree.Name,
			SchemaVersion: tree.SchemaVersion,
			ExportedAt:    now.UTC(),
		},
		Tables: []Table{},
	}

	for _, t := range tables {
		if !t.Active() && !opts.IncludeInactiveTables {
			continue
		}
		stored := rows[t.ID]
		cols := t.SortedColumns(opts.IncludeInactiveColumns)
		if len(stored) == 0 || len(cols) == 0 {
			continue
		}

		out := Table{
			TableID:   t.ID,
			TableName: t.Name,
			Direction: t.Direction,
			Columns:   make([]Column, len(cols)),
			Rows:      make([]validation.Record, 0, len(stored)),
		}
		for i, c := range cols {
			out.Columns[i] = Column{
				ColumnID:   c.ID,
				ColumnName: c.Name,
				DataType:   c.DataType,
				IsRequired: c.IsRequired,
				Format:     c.Format,
				OrderIndex: c.OrderIndex,
			}
		}
		for _, r := range stored {
			rec, err := validation.DecodeRecord(r.Payload)
			if err != nil {
				return nil, fmt.Errorf("%w: table %q row %d: %v", ErrCorruptRow, t.Name, r.Index, err)
			}
			out.Rows = append(out.Rows, rec)
		}
		doc.Tables = append(doc.Tables, out)
	}
	return doc, nil
}

// Encode writes doc as JSON, indented when indent is set.
func Encode(w io.Writer, doc *Document, indent bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return nil
}
