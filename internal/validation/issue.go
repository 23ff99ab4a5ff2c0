package validation

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a row-data problem.
type ErrorKind string

const (
	Required      ErrorKind = "REQUIRED"
	TypeMismatch  ErrorKind = "TYPE_MISMATCH"
	Format        ErrorKind = "FORMAT"
	Range         ErrorKind = "RANGE"
	Length        ErrorKind = "LENGTH"
	Duplicate     ErrorKind = "DUPLICATE" // reserved
	UnknownColumn ErrorKind = "UNKNOWN_COLUMN"

	// SchemaMismatch marks worksheet and document problems such as a missing
	// required header or an unresolvable table.
	SchemaMismatch ErrorKind = "SCHEMA"

	// MissingKey marks a merge row without a unique identifier value.
	MissingKey ErrorKind = "MISSING_KEY"
)

// Issue is a single error or warning found while reading or validating rows.
type Issue struct {
	Table   string    `json:"tableName,omitempty"`
	Row     int       `json:"rowNumber,omitempty"`
	Column  string    `json:"columnName,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Value   string    `json:"value,omitempty"`
	Message string    `json:"errorMessage"`
}

// Error renders the issue with its location, e.g.
// "Row 3, Column 'AdayId': required field is empty".
func (i Issue) Error() string {
	var loc []string
	if i.Row > 0 {
		loc = append(loc, fmt.Sprintf("Row %d", i.Row))
	}
	if i.Column != "" {
		loc = append(loc, fmt.Sprintf("Column '%s'", i.Column))
	}
	if len(loc) == 0 {
		return i.Message
	}
	return strings.Join(loc, ", ") + ": " + i.Message
}

// At returns a copy of the issue located in the given table and row.
func (i Issue) At(table string, row int) Issue {
	i.Table = table
	i.Row = row
	return i
}

func newIssue(kind ErrorKind, column, value, format string, args ...any) *Issue {
	return &Issue{
		Column:  column,
		Kind:    kind,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	}
}
