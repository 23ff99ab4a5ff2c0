package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/treedata/internal/exchange"
	"github.com/JonMunkholm/treedata/internal/logging"
	"github.com/JonMunkholm/treedata/internal/schema"
	"github.com/JonMunkholm/treedata/internal/store"
	"github.com/JonMunkholm/treedata/internal/validation"
	"github.com/JonMunkholm/treedata/internal/xlsx"
)

// SpreadsheetContentType is the MIME type of exported workbooks.
const SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportFileName returns "{code}_{yyyyMMdd_HHmmss}.xlsx".
func ExportFileName(code string, now time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", code, now.Format("20060102_150405"))
}

func corruptRow(tableID int64, r store.Row, err error) error {
	return fmt.Errorf("%w: table %d row %d: %v", exchange.ErrCorruptRow, tableID, r.RowIndex, err)
}

// exportTables returns the tree and the tables selected by opts.
func (s *Service) exportTables(ctx context.Context, treeID int64, opts ExportOptions) (schema.Tree, []schema.Table, error) {
	tree, err := s.loadTree(ctx, treeID)
	if err != nil {
		return schema.Tree{}, nil, err
	}
	all, err := s.store.ListTables(ctx, treeID)
	if err != nil {
		return schema.Tree{}, nil, fmt.Errorf("list tables of tree %d: %w", treeID, err)
	}

	tables := make([]schema.Table, 0, len(all))
	for _, t := range all {
		if t.Active() || opts.IncludeInactiveTables {
			tables = append(tables, t)
		}
	}
	return tree, tables, nil
}

// ExportJSON builds the exchange document for a tree.
func (s *Service) ExportJSON(ctx context.Context, treeID int64, opts ExportOptions) (*exchange.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tree, tables, err := s.exportTables(ctx, treeID, opts)
	if err != nil {
		return nil, err
	}

	rows := make(map[int64][]exchange.StoredRow, len(tables))
	for _, t := range tables {
		stored, err := s.store.ListRows(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("list rows of table %d: %w", t.ID, err)
		}
		for _, r := range stored {
			rows[t.ID] = append(rows[t.ID], exchange.StoredRow{Index: r.RowIndex, Payload: r.Payload})
		}
	}

	doc, err := exchange.Build(tree, tables, rows, opts, s.now())
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("json export built",
		"tree_id", treeID,
		"tables", len(doc.Tables),
		"rows", doc.RowCount(),
	)
	return doc, nil
}

// ExportSpreadsheet writes a workbook with one sheet per table that has
// rows and returns the number of rows written. Stored values are converted
// to the column types; values that no longer convert are written as text.
func (s *Service) ExportSpreadsheet(ctx context.Context, treeID int64, w io.Writer, opts ExportOptions) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, tables, err := s.exportTables(ctx, treeID, opts)
	if err != nil {
		return 0, err
	}

	var sheets []xlsx.SheetData
	total := 0
	for _, t := range tables {
		cols := t.SortedColumns(opts.IncludeInactiveColumns)
		if len(cols) == 0 {
			continue
		}
		stored, err := s.store.ListRows(ctx, t.ID)
		if err != nil {
			return 0, fmt.Errorf("list rows of table %d: %w", t.ID, err)
		}
		if len(stored) == 0 {
			continue
		}

		sheet := xlsx.SheetData{Table: t, Columns: cols, Rows: make([]validation.Record, 0, len(stored))}
		for _, r := range stored {
			rec, err := validation.DecodeRecord(r.Payload)
			if err != nil {
				return 0, corruptRow(t.ID, r, err)
			}
			sheet.Rows = append(sheet.Rows, typedRecord(rec, cols))
		}
		sheets = append(sheets, sheet)
		total += len(sheet.Rows)
	}

	if err := xlsx.WriteWorkbook(w, sheets); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}

	logging.FromContext(ctx).Info("excel export written",
		"tree_id", treeID,
		"sheets", len(sheets),
		"rows", total,
	)
	return total, nil
}

// typedRecord converts the exported columns of rec to their column types.
func typedRecord(rec validation.Record, cols []schema.Column) validation.Record {
	out := make(validation.Record, len(cols))
	for _, c := range cols {
		raw, ok := rec[c.Name]
		if !ok {
			continue
		}
		v, is := validation.ConvertAny(raw, c)
		if is != nil {
			v = raw
		}
		out[c.Name] = v
	}
	return out
}
