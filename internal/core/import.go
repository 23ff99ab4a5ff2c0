package core

// import.go reads spreadsheets and exchange documents into table batches
// and hands them to the write phase in merge.go.
//
// An import runs in three steps:
//  1. Read: parse the input and validate every row against its table.
//  2. Plan: pick the write mode per table and check merge keys.
//  3. Write: apply all tables in one transaction.
//
// Structural problems (unknown tree, unreadable file, code mismatch) fail
// the call before anything is written. Row problems are reported in the
// result; with ContinueOnError the valid rows are still written.

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/treedata/internal/exchange"
	"github.com/JonMunkholm/treedata/internal/logging"
	"github.com/JonMunkholm/treedata/internal/schema"
	"github.com/JonMunkholm/treedata/internal/validation"
	"github.com/JonMunkholm/treedata/internal/xlsx"
)

const (
	SourceExcel = "excel"
	SourceJSON  = "json"
)

// pendingRow is an incoming row waiting for the write phase.
type pendingRow struct {
	number int
	record validation.Record
	valid  bool
	key    string
}

// tableBatch is everything an import writes to one table.
type tableBatch struct {
	table   schema.Table
	mode    WriteMode
	keyName string
	rows    []pendingRow
}

func (b *tableBatch) skipped() int {
	n := 0
	for _, r := range b.rows {
		if !r.valid {
			n++
		}
	}
	return n
}

// run holds the state of a single import call.
type run struct {
	res   *ImportResult
	start time.Time

	// tableIDs resolves issue table names for the validation log.
	tableIDs map[string]int64
}

func (r *run) addTables(tables []schema.Table) {
	for _, t := range tables {
		r.tableIDs[t.Name] = t.ID
	}
}

func (s *Service) begin(ctx context.Context, treeID int64, source string) (context.Context, *run) {
	res := &ImportResult{
		ImportID: uuid.New(),
		TreeID:   treeID,
		Source:   source,
		Tables:   []TableImportResult{},
		Errors:   []validation.Issue{},
		Warnings: []validation.Issue{},
	}
	return logging.WithImportID(ctx, res.ImportID.String()), &run{res: res, start: s.now(), tableIDs: make(map[string]int64)}
}

// ImportSpreadsheet imports an .xlsx workbook. Each active table reads the
// worksheet named after it. Without opts.Replace rows are merged on the
// table's unique identifier column.
func (s *Service) ImportSpreadsheet(ctx context.Context, treeID int64, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, run := s.begin(ctx, treeID, SourceExcel)

	if _, err := s.loadTree(ctx, treeID); err != nil {
		return nil, err
	}
	all, err := s.store.ListTables(ctx, treeID)
	if err != nil {
		return nil, fmt.Errorf("list tables of tree %d: %w", treeID, err)
	}
	var tables []schema.Table
	for _, t := range all {
		if t.Active() {
			tables = append(tables, t)
		}
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("tree %d: %w", treeID, ErrNoActiveTables)
	}
	if err := checkTables(tables); err != nil {
		return nil, err
	}
	run.addTables(tables)

	wb, err := xlsx.ReadWorkbook(r, tables)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}

	res := run.res
	res.Warnings = append(res.Warnings, wb.Warnings...)

	mode := ModeMerge
	if opts.Replace {
		mode = ModeReplace
	}

	var batches []*tableBatch
	for _, td := range wb.Tables {
		res.Errors = append(res.Errors, td.Errors...)
		res.Warnings = append(res.Warnings, td.Warnings...)
		if td.SchemaFailed {
			continue
		}

		b := &tableBatch{table: td.Table, mode: mode, rows: make([]pendingRow, 0, len(td.Rows))}
		for _, row := range td.Rows {
			b.rows = append(b.rows, pendingRow{number: row.Number, record: row.Record, valid: row.Valid()})
		}
		batches = append(batches, b)
	}

	return s.finish(ctx, run, batches, opts)
}

// ImportJSON imports an exchange document. The document must come from
// the same tree. Tables are matched by name; unknown tables are skipped
// with a warning. Rows are appended, or replace the table's rows when
// opts.Replace is set.
func (s *Service) ImportJSON(ctx context.Context, treeID int64, r io.Reader, opts JSONImportOptions) (*ImportResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, run := s.begin(ctx, treeID, SourceJSON)

	tree, err := s.loadTree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	doc, err := exchange.Parse(r)
	if err != nil {
		return nil, err
	}
	if err := doc.CheckTree(tree); err != nil {
		return nil, err
	}

	tables, err := s.store.ListTables(ctx, treeID)
	if err != nil {
		return nil, fmt.Errorf("list tables of tree %d: %w", treeID, err)
	}
	run.addTables(tables)

	mode := ModeAppend
	if opts.Replace {
		mode = ModeReplace
	}

	res := run.res
	var batches []*tableBatch
	byTable := make(map[int64]*tableBatch)
	for _, dt := range doc.Tables {
		table, ok := schema.FindTable(tables, dt.TableName)
		if !ok {
			res.Warnings = append(res.Warnings, validation.Issue{
				Table:   dt.TableName,
				Kind:    validation.SchemaMismatch,
				Message: fmt.Sprintf("Table '%s' not found in decision tree (skipped)", dt.TableName),
			})
			continue
		}
		if !table.Active() {
			res.Warnings = append(res.Warnings, validation.Issue{
				Table:   table.Name,
				Kind:    validation.SchemaMismatch,
				Message: fmt.Sprintf("Table '%s' is not active (skipped)", table.Name),
			})
			continue
		}
		if err := table.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
		}

		// Several document tables may resolve to the same schema table;
		// they share one batch so a replace deletes only once.
		b, ok := byTable[table.ID]
		if !ok {
			b = &tableBatch{table: table, mode: mode}
			byTable[table.ID] = b
			batches = append(batches, b)
		}

		for _, rec := range dt.Rows {
			number := len(b.rows) + 1
			vr := validation.ValidateRow(table, rec.Map(), number)
			res.Errors = append(res.Errors, vr.Errors...)
			res.Warnings = append(res.Warnings, vr.Warnings...)
			b.rows = append(b.rows, pendingRow{number: number, record: vr.Record, valid: vr.Valid})
		}
	}

	return s.finish(ctx, run, batches, opts)
}

// finish plans and writes the batches, then records the outcome.
func (s *Service) finish(ctx context.Context, run *run, batches []*tableBatch, opts ImportOptions) (*ImportResult, error) {
	res := run.res
	log := logging.WithFields(ctx, clientAttrs(ctx)...)

	for _, b := range batches {
		warnings, errs := b.plan()
		res.Warnings = append(res.Warnings, warnings...)
		res.Errors = append(res.Errors, errs...)
	}

	if !opts.ContinueOnError && len(res.Errors) > 0 {
		res.Duration = s.now().Sub(run.start)
		log.Warn("import rejected",
			"tree_id", res.TreeID,
			"source", res.Source,
			"errors", len(res.Errors),
		)
		s.recordIssues(ctx, run)
		return res, fmt.Errorf("%d row errors: %w", len(res.Errors), ErrValidationFailed)
	}

	err := s.write(ctx, res, batches)
	res.Duration = s.now().Sub(run.start)
	s.recordIssues(ctx, run)

	if err != nil {
		log.Error("import failed",
			"tree_id", res.TreeID,
			"source", res.Source,
			"staged_rows", res.TotalImported,
			"error", err,
		)
		return res, err
	}

	log.Info("import completed",
		"tree_id", res.TreeID,
		"source", res.Source,
		"tables", res.TablesProcessed(),
		"rows", res.TotalImported,
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
