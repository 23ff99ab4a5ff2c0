// Package xlsx reads and writes tree data as Excel workbooks, one worksheet
// per table.
//
// Worksheets are matched to tables by name. Row 1 holds the headers, which
// match a column by its name or header alias ignoring case. Data starts at
// row 2 and is converted cell by cell with the validation package.
package xlsx

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/treedata/internal/schema"
	"github.com/JonMunkholm/treedata/internal/validation"
)

// Workbook is the result of reading an uploaded file.
type Workbook struct {
	Tables   []TableData
	Warnings []validation.Issue
}

// TableData holds the rows read from one worksheet.
type TableData struct {
	Table schema.Table
	Rows  []ParsedRow

	// Errors holds schema problems and every row problem; Warnings holds
	// ignored headers.
	Errors   []validation.Issue
	Warnings []validation.Issue

	// UniqueIdentifier names the column used to match existing rows, if any.
	UniqueIdentifier string

	// SchemaFailed is set when required headers are missing. No rows are
	// read in that case.
	SchemaFailed bool
}

// ParsedRow is one non-empty worksheet row.
type ParsedRow struct {
	Number int // worksheet row number
	Record validation.Record
	Errors []validation.Issue
}

// Valid reports whether every cell converted cleanly.
func (r ParsedRow) Valid() bool { return len(r.Errors) == 0 }

// ReadWorkbook parses an xlsx stream against the given tables. Only a file
// that cannot be opened as a workbook returns an error; data problems are
// reported on the result.
func ReadWorkbook(r io.Reader, tables []schema.Table) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	sheets := f.GetSheetList()
	wb := &Workbook{}
	for _, table := range tables {
		sheet, ok := findSheet(sheets, table.Name)
		if !ok {
			wb.Warnings = append(wb.Warnings, validation.Issue{
				Table:   table.Name,
				Kind:    validation.SchemaMismatch,
				Message: fmt.Sprintf("Worksheet '%s' not found in Excel file", table.Name),
			})
			continue
		}

		td, err := readSheet(f, sheet, table, date1904)
		if err != nil {
			return nil, fmt.Errorf("read worksheet %q: %w", sheet, err)
		}
		wb.Tables = append(wb.Tables, td)
	}

	if wb.RowCount() == 0 {
		wb.Warnings = append(wb.Warnings, validation.Issue{
			Kind:    validation.SchemaMismatch,
			Message: "No data found in any worksheet",
		})
	}
	return wb, nil
}

// RowCount returns the number of data rows read across all tables.
func (wb *Workbook) RowCount() int {
	n := 0
	for _, t := range wb.Tables {
		n += len(t.Rows)
	}
	return n
}

func findSheet(sheets []string, name string) (string, bool) {
	for _, s := range sheets {
		if s == name {
			return s, true
		}
	}
	for _, s := range sheets {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}
	return "", false
}

// headerMap resolves a lower-cased header to its column.
func headerMap(cols []schema.Column) map[string]schema.Column {
	m := make(map[string]schema.Column, len(cols)*2)
	for _, c := range cols {
		m[strings.ToLower(c.Name)] = c
		if alias := strings.TrimSpace(c.HeaderAlias); alias != "" {
			m[strings.ToLower(alias)] = c
		}
	}
	return m
}

type mappedColumn struct {
	index int
	col   schema.Column
}

func readSheet(f *excelize.File, sheet string, table schema.Table, date1904 bool) (TableData, error) {
	td := TableData{Table: table}
	if uid, ok := table.UniqueIdentifier(); ok {
		td.UniqueIdentifier = uid.Name
	}

	// Text columns keep what Excel displays; typed columns parse the stored
	// value so number formats and locale do not leak into parsing.
	text, err := f.GetRows(sheet)
	if err != nil {
		return td, err
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return td, err
	}
	if len(text) == 0 {
		return td, nil
	}
	header := text[0]

	columns := headerMap(table.ActiveColumns())
	var mapped []mappedColumn
	seen := make(map[int64]bool)
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		col, ok := columns[strings.ToLower(h)]
		if !ok {
			td.Warnings = append(td.Warnings, validation.Issue{
				Table:   table.Name,
				Row:     1,
				Column:  h,
				Kind:    validation.UnknownColumn,
				Message: fmt.Sprintf("Excel column '%s' does not match any database column (will be ignored)", h),
			})
			continue
		}
		mapped = append(mapped, mappedColumn{index: i, col: col})
		seen[col.ID] = true
	}

	for _, col := range table.ActiveColumns() {
		if col.IsRequired && !seen[col.ID] {
			td.SchemaFailed = true
			td.Errors = append(td.Errors, validation.Issue{
				Table:   table.Name,
				Column:  col.Name,
				Kind:    validation.SchemaMismatch,
				Message: fmt.Sprintf("Required column '%s' not found in Excel file", col.Name),
			})
		}
	}
	if td.SchemaFailed {
		return td, nil
	}

	for i := 1; i < len(text); i++ {
		number := i + 1
		row := ParsedRow{Number: number, Record: make(validation.Record, len(mapped))}
		hasData := false
		for _, m := range mapped {
			col := m.col
			cell := cellAt(text[i], m.index)
			if typedColumn(col) && i < len(raw) {
				cell = cellAt(raw[i], m.index)
			}
			if strings.TrimSpace(cell) != "" {
				hasData = true
			}
			v, is := convertCell(cell, col, date1904, func() bool {
				return numericCell(f, sheet, m.index, number)
			})
			if is != nil {
				row.Errors = append(row.Errors, is.At(table.Name, number))
			}
			row.Record[col.Name] = v
		}
		if !hasData {
			continue
		}
		td.Errors = append(td.Errors, row.Errors...)
		td.Rows = append(td.Rows, row)
	}
	return td, nil
}

func cellAt(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

// typedColumn reports whether col is parsed from the stored cell value
// rather than the displayed text.
func typedColumn(col schema.Column) bool {
	switch col.DataType {
	case schema.TypeInt, schema.TypeDecimal, schema.TypeDate:
		return true
	}
	return false
}

// numericCell reports whether the cell holds a number. Numeric cells are
// usually written without a type attribute.
func numericCell(f *excelize.File, sheet string, index, number int) bool {
	axis, err := excelize.CoordinatesToCellName(index+1, number)
	if err != nil {
		return false
	}
	ct, err := f.GetCellType(sheet, axis)
	if err != nil {
		return false
	}
	switch ct {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
		return true
	}
	return false
}

// maxSerialDate is 9999-12-31 in the 1900 date system.
const maxSerialDate = 2958465

// convertCell converts a cell value. Date cells written by Excel hold a
// serial number rather than text, so a numeric cell that fails the date
// layouts is read as a serial date. Text cells never are.
func convertCell(raw string, col schema.Column, date1904 bool, numeric func() bool) (validation.Value, *validation.Issue) {
	v, is := validation.Convert(raw, col)
	if is == nil || col.DataType != schema.TypeDate {
		return v, is
	}
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || serial < 1 || serial > maxSerialDate || !numeric() {
		return v, is
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return v, is
	}
	return validation.Date(t), nil
}
