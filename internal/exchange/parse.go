package exchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/treedata/internal/schema"
	"github.com/JonMunkholm/treedata/internal/validation"
)

// Parse reads an exchange document. Besides the canonical shape it accepts
// two older layouts and converts them:
//
//   - tree fields at the top level ("decisionTreeCode", "generatedAtUtc")
//     instead of a metadata object;
//   - compact tables whose "columns" is an object of column name to data
//     type and whose rows are arrays aligned with that column order, or
//     with "columnOrder" when present.
//
// Any other input fails with ErrMalformedDocument.
func Parse(r io.Reader) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw rawDocument
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed("%v", err)
	}
	if dec.More() {
		return nil, malformed("trailing data after document")
	}

	doc := &Document{Metadata: raw.metadata(), Tables: make([]Table, 0, len(raw.Tables))}
	if strings.TrimSpace(doc.Metadata.TreeCode) == "" {
		return nil, malformed("missing tree code")
	}

	for i, rt := range raw.Tables {
		t, err := rt.table()
		if err != nil {
			return nil, malformed("table %d (%s): %v", i, rt.TableName, err)
		}
		doc.Tables = append(doc.Tables, t)
	}
	return doc, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDocument, fmt.Sprintf(format, args...))
}

type rawMetadata struct {
	TreeID           int64      `json:"treeId"`
	TreeCode         string     `json:"treeCode"`
	TreeName         string     `json:"treeName"`
	DecisionTreeID   int64      `json:"decisionTreeId"`
	DecisionTreeCode string     `json:"decisionTreeCode"`
	DecisionTreeName string     `json:"decisionTreeName"`
	SchemaVersion    int        `json:"schemaVersion"`
	ExportedAt       *time.Time `json:"exportedAt"`
	ExportedAtUTC    *time.Time `json:"exportedAtUtc"`
	GeneratedAtUTC   *time.Time `json:"generatedAtUtc"`
}

type rawDocument struct {
	Metadata *rawMetadata `json:"metadata"`
	rawMetadata
	Tables []rawTable `json:"tables"`
}

func (d rawDocument) metadata() Metadata {
	m := d.rawMetadata
	if d.Metadata != nil {
		m = *d.Metadata
	}
	out := Metadata{
		TreeID:        firstNonZero(m.TreeID, m.DecisionTreeID),
		TreeCode:      firstNonEmpty(m.TreeCode, m.DecisionTreeCode),
		TreeName:      firstNonEmpty(m.TreeName, m.DecisionTreeName),
		SchemaVersion: m.SchemaVersion,
	}
	for _, t := range []*time.Time{m.ExportedAt, m.ExportedAtUTC, m.GeneratedAtUTC} {
		if t != nil {
			out.ExportedAt = t.UTC()
			break
		}
	}
	return out
}

type rawTable struct {
	TableID     int64             `json:"tableId"`
	TableName   string            `json:"tableName"`
	Direction   string            `json:"direction"`
	Columns     json.RawMessage   `json:"columns"`
	ColumnOrder []string          `json:"columnOrder"`
	Rows        []json.RawMessage `json:"rows"`
}

func (rt rawTable) table() (Table, error) {
	t := Table{TableID: rt.TableID, TableName: rt.TableName, Rows: make([]validation.Record, 0, len(rt.Rows))}
	if strings.TrimSpace(rt.TableName) == "" {
		return t, errors.New("missing table name")
	}
	if rt.Direction != "" {
		d, err := schema.ParseDirection(rt.Direction)
		if err != nil {
			return t, err
		}
		t.Direction = d
	}

	cols, err := parseColumns(rt.Columns)
	if err != nil {
		return t, err
	}
	t.Columns = cols

	order := rt.ColumnOrder
	if len(order) == 0 {
		order = make([]string, len(cols))
		for i, c := range cols {
			order[i] = c.ColumnName
		}
	}

	for i, raw := range rt.Rows {
		rec, err := parseRow(raw, order)
		if err != nil {
			return t, fmt.Errorf("row %d: %w", i, err)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// parseColumns accepts the descriptor list or the compact name-to-type
// object, keeping the object's key order.
func parseColumns(raw json.RawMessage) ([]Column, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '[' {
		var cols []Column
		if err := json.Unmarshal(raw, &cols); err != nil {
			return nil, fmt.Errorf("columns: %w", err)
		}
		return cols, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, errors.New("columns must be a list or an object")
	}
	var cols []Column
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("columns: %w", err)
		}
		var typ string
		if err := dec.Decode(&typ); err != nil {
			return nil, fmt.Errorf("column %v: %w", key, err)
		}
		dt, err := schema.ParseDataType(typ)
		if err != nil {
			return nil, fmt.Errorf("column %v: %w", key, err)
		}
		cols = append(cols, Column{ColumnName: key.(string), DataType: dt, OrderIndex: len(cols) + 1})
	}
	return cols, nil
}

func parseRow(raw json.RawMessage, order []string) (validation.Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return validation.DecodeRecord(raw)
	}

	var values []validation.Value
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	if len(values) > len(order) {
		return nil, fmt.Errorf("%d values for %d columns", len(values), len(order))
	}
	rec := make(validation.Record, len(values))
	for i, v := range values {
		rec[order[i]] = v
	}
	return rec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
