package core

import "errors"

var (
	ErrTreeNotFound  = errors.New("decision tree not found")
	ErrTableNotFound = errors.New("table not found in this decision tree")

	// ErrNoActiveTables is returned when a spreadsheet import finds no
	// active table to map worksheets to.
	ErrNoActiveTables = errors.New("no active tables found for this decision tree")

	// ErrInvalidSchema wraps schema.Table.Validate failures found before
	// any row is read.
	ErrInvalidSchema = errors.New("invalid table schema")

	// ErrInvalidRequest marks malformed request parameters or bodies.
	ErrInvalidRequest = errors.New("invalid request")

	ErrNoFile          = errors.New("no file uploaded")
	ErrUnsupportedFile = errors.New("only .xlsx files are supported")
	ErrFileTooLarge    = errors.New("file too large")

	// ErrUnreadableWorkbook is returned when the upload is not a workbook.
	ErrUnreadableWorkbook = errors.New("unreadable workbook")

	// ErrValidationFailed is returned with the result when rows failed
	// validation and the import was told not to continue on error.
	// Nothing is written in that case.
	ErrValidationFailed = errors.New("validation failed, nothing was imported")
)
