// Package schema describes decision trees: named groups of input and output
// tables whose typed columns drive row validation and file exchange.
//
// The schema is owned by the CRUD layer and is read-only here. Enumerated
// fields are closed string types that encode and decode only their literal
// names, so a stored or exchanged value can never drift to another encoding.
package schema

import (
	"fmt"
	"time"
)

// Status marks a tree, table or column as in use.
type Status string

const (
	StatusActive  Status = "Active"
	StatusPassive Status = "Passive"
)

// Direction tells whether a table feeds a decision or receives its result.
type Direction string

const (
	DirectionInput  Direction = "Input"
	DirectionOutput Direction = "Output"
)

// DataType is the declared type of a column.
type DataType string

const (
	TypeString  DataType = "String"
	TypeInt     DataType = "Int"
	TypeDecimal DataType = "Decimal"
	TypeDate    DataType = "Date"
	TypeBoolean DataType = "Boolean"
)

// ParseStatus converts a literal to a Status.
func ParseStatus(s string) (Status, error) {
	switch v := Status(s); v {
	case StatusActive, StatusPassive:
		return v, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// ParseDirection converts a literal to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch v := Direction(s); v {
	case DirectionInput, DirectionOutput:
		return v, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// ParseDataType converts a literal to a DataType.
func ParseDataType(s string) (DataType, error) {
	switch v := DataType(s); v {
	case TypeString, TypeInt, TypeDecimal, TypeDate, TypeBoolean:
		return v, nil
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

func (s Status) MarshalText() ([]byte, error) {
	if _, err := ParseStatus(string(s)); err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (d Direction) MarshalText() ([]byte, error) {
	if _, err := ParseDirection(string(d)); err != nil {
		return nil, err
	}
	return []byte(d), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (t DataType) MarshalText() ([]byte, error) {
	if _, err := ParseDataType(string(t)); err != nil {
		return nil, err
	}
	return []byte(t), nil
}

func (t *DataType) UnmarshalText(b []byte) error {
	v, err := ParseDataType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Tree groups the tables of one decision tree.
type Tree struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	SchemaVersion int    `json:"schemaVersion"`
	Status        Status `json:"status"`
}

// Table is a named set of columns within a tree.
type Table struct {
	ID        int64     `json:"id"`
	TreeID    int64     `json:"treeId"`
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Status    Status    `json:"status"`
	Columns   []Column  `json:"columns"`
}

// Column is a typed field definition with its validation constraints.
type Column struct {
	ID          int64    `json:"id"`
	TableID     int64    `json:"tableId"`
	Name        string   `json:"name"`
	HeaderAlias string   `json:"headerAlias,omitempty"`
	Description string   `json:"description,omitempty"`
	DataType    DataType `json:"dataType"`
	IsRequired  bool     `json:"isRequired"`
	Status      Status   `json:"status"`
	OrderIndex  int      `json:"orderIndex"`

	// Format is a date pattern such as "dd/MM/yyyy".
	Format string `json:"format,omitempty"`

	MaxLength *int `json:"maxLength,omitempty"`
	Precision *int `json:"precision,omitempty"`
	Scale     *int `json:"scale,omitempty"`

	// ValidFrom and ValidTo are informational and never enforced.
	ValidFrom *time.Time `json:"validFrom,omitempty"`
	ValidTo   *time.Time `json:"validTo,omitempty"`

	IsUniqueIdentifier bool `json:"isUniqueIdentifier"`
}

// Active reports whether the column takes part in validation and exchange.
func (c Column) Active() bool {
	return c.Status == StatusActive
}

// HeaderName is the spreadsheet header written for the column.
func (c Column) HeaderName() string {
	if c.HeaderAlias != "" {
		return c.HeaderAlias
	}
	return c.Name
}

// Active reports whether the table is in use.
func (t Table) Active() bool {
	return t.Status == StatusActive
}
