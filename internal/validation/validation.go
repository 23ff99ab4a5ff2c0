// Package validation converts raw cells into typed values and checks rows
// against a table's columns.
//
// Row validation never fails for bad data: every problem is reported as an
// Issue, either an error that makes the row invalid or a warning that does
// not. Callers decide whether invalid rows are skipped or abort the work.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/treedata/internal/schema"
)

// FirstDataRow is the worksheet row number of the first data row; row 1
// holds the headers.
const FirstDataRow = 2

// Result is the outcome of validating one or more rows.
type Result struct {
	Valid    bool    `json:"isValid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`

	// Record holds the converted row. Unknown keys are carried through
	// untyped. Only set by ValidateRow.
	Record Record `json:"-"`
}

func (r *Result) addError(is Issue) {
	r.Valid = false
	r.Errors = append(r.Errors, is)
}

// ValidateRow checks a single row against the active columns of table.
// Values may be raw strings, JSON-decoded values or Values. Column names
// match case-insensitively; the record uses the schema spelling.
func ValidateRow(table schema.Table, row map[string]any, rowIndex int) Result {
	res := Result{Valid: true, Errors: []Issue{}, Warnings: []Issue{}, Record: make(Record, len(row))}

	byLower := make(map[string]string, len(row))
	for k := range row {
		byLower[strings.ToLower(k)] = k
	}

	known := make(map[string]bool)
	for _, col := range table.ActiveColumns() {
		key, present := col.Name, false
		if _, ok := row[key]; ok {
			present = true
		} else if k, ok := byLower[strings.ToLower(key)]; ok {
			key, present = k, true
		}
		known[key] = true

		if !present {
			if col.IsRequired {
				res.addError(Issue{Table: table.Name, Row: rowIndex, Column: col.Name, Kind: Required,
					Message: "required field is empty"})
			}
			continue
		}

		v, is := ConvertAny(row[key], col)
		if is != nil {
			res.addError(is.At(table.Name, rowIndex))
		}
		res.Record[col.Name] = v
	}

	// Deterministic warning order.
	keys := make([]string, 0, len(row))
	for k := range row {
		if !known[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		res.Warnings = append(res.Warnings, Issue{
			Table:   table.Name,
			Row:     rowIndex,
			Column:  k,
			Kind:    UnknownColumn,
			Message: fmt.Sprintf("unknown column '%s' (not in metadata)", k),
		})
		res.Record[k] = ValueOf(row[k])
	}

	return res
}

// ValidateRows validates rows in order, numbering them from FirstDataRow.
func ValidateRows(table schema.Table, rows []map[string]any) Result {
	res := Result{Valid: true, Errors: []Issue{}, Warnings: []Issue{}}
	for i, row := range rows {
		r := ValidateRow(table, row, i+FirstDataRow)
		if !r.Valid {
			res.Valid = false
			res.Errors = append(res.Errors, r.Errors...)
		}
		res.Warnings = append(res.Warnings, r.Warnings...)
	}
	return res
}
