package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDecimal
	KindDate
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05"
)

// Value is one typed cell. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	d    decimal.Decimal
	t    time.Time
	s    string
}

func Null() Value                     { return Value{} }
func Bool(b bool) Value               { return Value{kind: KindBool, b: b} }
func Int(i int64) Value               { return Value{kind: KindInt, i: i} }
func Decimal(d decimal.Decimal) Value { return Value{kind: KindDecimal, d: d} }
func Date(t time.Time) Value          { return Value{kind: KindDate, t: t.UTC()} }
func String(s string) Value           { return Value{kind: KindString, s: s} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// The typed accessors return the zero value when v holds another kind.
func (v Value) AsBool() bool               { return v.b }
func (v Value) AsInt() int64               { return v.i }
func (v Value) AsDecimal() decimal.Decimal { return v.d }
func (v Value) AsTime() time.Time          { return v.t }

// HasClock reports whether a date value carries a time of day.
func (v Value) HasClock() bool {
	if v.kind != KindDate {
		return false
	}
	h, m, s := v.t.Clock()
	return h != 0 || m != 0 || s != 0 || v.t.Nanosecond() != 0
}

// Text is the canonical textual form. Converting Text back through the
// column's type yields an equal Value.
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindDecimal:
		return v.d.String()
	case KindDate:
		if v.HasClock() {
			return v.t.Format(dateTimeLayout)
		}
		return v.t.Format(dateLayout)
	case KindString:
		return v.s
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return v.Text()
}

// Any returns the native Go value: nil, bool, int64, decimal.Decimal,
// time.Time or string.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindDecimal:
		return v.d
	case KindDate:
		return v.t
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Equal compares kind and content. Decimals compare numerically.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindDecimal:
		return v.d.Equal(o.d)
	case KindDate:
		return v.t.Equal(o.t)
	default:
		return v.s == o.s
	}
}

// MarshalJSON writes numbers as JSON numbers and dates as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool, KindInt:
		return []byte(v.Text()), nil
	case KindDecimal:
		return []byte(v.d.String()), nil
	default:
		return json.Marshal(v.Text())
	}
}

// UnmarshalJSON decodes a scalar without schema knowledge. Dates arrive as
// strings and stay strings until converted against a column.
func (v *Value) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch raw.(type) {
	case map[string]any, []any:
		return errNested
	}
	*v = ValueOf(raw)
	return nil
}

var errNested = errors.New("nested values are not supported")

// ValueOf wraps an untyped Go value without schema knowledge.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Decimal(decimal.NewFromFloat(t))
	case decimal.Decimal:
		return Decimal(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return Decimal(d)
		}
		return String(t.String())
	case time.Time:
		return Date(t)
	case string:
		return String(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return String(fmt.Sprint(t))
		}
		return String(string(b))
	}
}

// Record is one row keyed by column name.
type Record map[string]Value

// Equal reports whether both records hold the same keys and values.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Map returns the record as a plain map for row validation.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// DecodeRecord parses a stored row payload. The payload must be a JSON
// object of scalar values.
func DecodeRecord(b []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	if raw == nil {
		return nil, errors.New("decode row: payload is not an object")
	}

	rec := make(Record, len(raw))
	for k, x := range raw {
		switch x.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("decode row: column %q: %w", k, errNested)
		}
		rec[k] = ValueOf(x)
	}
	return rec, nil
}
