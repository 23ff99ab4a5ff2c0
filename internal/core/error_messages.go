package core

// error_messages.go maps technical errors to messages an operator can act on.
//
// # Error Codes Reference
//
// Each message carries a code operators can quote to support. Codes are
// grouped by category:
//
// # Decision Tree Errors (DT001-DT099)
//
//	DT001 - Tree not found: the decision tree does not exist
//	DT002 - Table not found: the table is not part of this decision tree
//	DT003 - No active tables: the tree has nothing to import into
//	DT004 - Tree code mismatch: the document was exported from another tree
//	DT005 - Invalid schema: column names collide or several unique identifiers
//	DT006 - Invalid sheet name: a table name cannot name an Excel worksheet
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Validation failed: rows had errors and nothing was imported
//	VAL002 - Required column: a required header is missing from a worksheet
//	VAL003 - Required field: a required cell is empty
//	VAL004 - Invalid date: a value does not match the column's date format
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Unsupported file: only .xlsx workbooks are accepted
//	FILE003 - No file: the request carried no file
//	FILE004 - Unreadable workbook: the upload is not a valid .xlsx file
//	FILE005 - Malformed document: the JSON is not an exchange document
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - System busy: too many imports in progress
//	IMP002 - Request cancelled
//	IMP003 - Request timeout
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Corrupt row: a stored row payload cannot be read
//	DB002 - Not found: the requested record does not exist
//	DB003 - Duplicate key
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Deadlock
//	DB007 - Timeout
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Invalid request: a parameter or the request body is malformed
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Too many requests
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check application
// logs for the original technical error when users report ERR000.
//
// # Matching
//
// Sentinel errors are matched first with errors.Is, in table order. Errors
// from drivers and the network carry no sentinel, so their text is then
// matched case-insensitively against errorPatterns; the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/treedata/internal/exchange"
	"github.com/JonMunkholm/treedata/internal/store"
	"github.com/JonMunkholm/treedata/internal/xlsx"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorKind struct {
	target error
	msg    UserMessage
}

// errorKinds is checked before errorPatterns. Wrapping errors come before
// the errors they may wrap.
var errorKinds = []errorKind{
	{ErrTreeNotFound, UserMessage{
		Message: "Decision tree not found",
		Action:  "Check the decision tree ID",
		Code:    "DT001",
	}},
	{ErrTableNotFound, UserMessage{
		Message: "Table not found in this decision tree",
		Action:  "Check the table ID and that it belongs to this tree",
		Code:    "DT002",
	}},
	{ErrNoActiveTables, UserMessage{
		Message: "No active tables found for this decision tree",
		Action:  "Activate at least one table before importing",
		Code:    "DT003",
	}},
	{exchange.ErrTreeCodeMismatch, UserMessage{
		Message: "Decision tree code mismatch",
		Action:  "Import the file into the tree it was exported from",
		Code:    "DT004",
	}},
	{ErrInvalidSchema, UserMessage{
		Message: "The table schema is invalid",
		Action:  "Fix duplicate column names or unique identifier flags",
		Code:    "DT005",
	}},
	{xlsx.ErrSheetName, UserMessage{
		Message: "A table name cannot be used as an Excel worksheet name",
		Action:  "Rename the table to at most 31 characters without : \\ / ? * [ ]",
		Code:    "DT006",
	}},

	{ErrValidationFailed, UserMessage{
		Message: "Some rows failed validation, nothing was imported",
		Action:  "Fix the listed errors or import with continue on error",
		Code:    "VAL001",
	}},

	{ErrFileTooLarge, UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the data into smaller files",
		Code:    "FILE001",
	}},
	{ErrUnsupportedFile, UserMessage{
		Message: "Only .xlsx files are supported",
		Action:  "Save the workbook as Excel Workbook (.xlsx)",
		Code:    "FILE002",
	}},
	{ErrNoFile, UserMessage{
		Message: "No file uploaded",
		Action:  "Select a file to upload",
		Code:    "FILE003",
	}},
	{ErrUnreadableWorkbook, UserMessage{
		Message: "The file is not a valid Excel workbook",
		Action:  "Open the file in Excel and save it again as .xlsx",
		Code:    "FILE004",
	}},
	{exchange.ErrMalformedDocument, UserMessage{
		Message: "Invalid JSON format",
		Action:  "Use a document produced by the JSON export",
		Code:    "FILE005",
	}},

	{ErrTooManyImports, UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP001",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "IMP002",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "IMP003",
	}},

	{ErrInvalidRequest, UserMessage{
		Message: "The request is invalid",
		Action:  "Check the request parameters and body",
		Code:    "REQ001",
	}},

	{exchange.ErrCorruptRow, UserMessage{
		Message: "A stored row could not be read",
		Action:  "Contact support with the error code",
		Code:    "DB001",
	}},
	{store.ErrNotFound, UserMessage{
		Message: "Record not found",
		Action:  "Refresh and try again",
		Code:    "DB002",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages. Order matters: specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "required column",
		msg: UserMessage{
			Message: "Required column not found in Excel file",
			Action:  "Check the worksheet headers against the table columns",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required columns have values",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use the date format configured for the column",
			Code:    "VAL004",
		},
	},

	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Review your data for duplicate key values",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB007",
		},
	},

	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	err := fmt.Errorf("load tree 7: %w", ErrTreeNotFound)
//	msg := MapError(err)
//	// msg.Code == "DT001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with the message
// shown to users.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
