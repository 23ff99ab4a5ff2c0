package validation

// convert.go turns raw cell text, or values already typed by a JSON
// decoder, into the Value a column declares.
//
//   - Empty or whitespace-only input is null; required columns report REQUIRED.
//   - Numbers are locale-invariant: "." decimal point, no thousands separators.
//   - Dates try the column format, a fixed list of common layouts, then
//     general ISO and month-name forms.
//   - Booleans accept English and Turkish tokens in any case.

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/treedata/internal/schema"
)

var (
	truthy = map[string]bool{"true": true, "1": true, "yes": true, "evet": true, "e": true, "t": true, "y": true}
	falsy  = map[string]bool{"false": true, "0": true, "no": true, "hayır": true, "h": true, "f": true, "n": true}
)

// Convert parses raw text for col. The returned Issue is nil on success;
// on failure the Value is null.
func Convert(raw string, col schema.Column) (Value, *Issue) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if col.IsRequired {
			return Null(), newIssue(Required, col.Name, "", "required field is empty")
		}
		return Null(), nil
	}

	switch col.DataType {
	case schema.TypeString:
		return checkLength(String(raw), col)

	case schema.TypeInt:
		i, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return Null(), newIssue(TypeMismatch, col.Name, raw, "'%s' is not a valid integer", raw)
		}
		return Int(i), nil

	case schema.TypeDecimal:
		d, ok := ParseDecimal(trimmed)
		if !ok {
			return Null(), newIssue(TypeMismatch, col.Name, raw, "'%s' is not a valid decimal", raw)
		}
		return checkRange(Decimal(d), col)

	case schema.TypeDate:
		t, ok := ParseDate(trimmed, col.Format)
		if !ok {
			return Null(), newIssue(Format, col.Name, raw,
				"'%s' is not a valid date (expected format: %s)", raw, dateFormatHint(col))
		}
		return Date(t), nil

	case schema.TypeBoolean:
		b, ok := ParseBool(trimmed)
		if !ok {
			return Null(), newIssue(TypeMismatch, col.Name, raw,
				"'%s' is not a valid boolean (expected: true/false, yes/no, evet/hayır)", raw)
		}
		return Bool(b), nil
	}

	return String(raw), nil
}

// ConvertAny converts a value that may already be typed, such as one
// decoded from JSON or produced by an earlier Convert. A Value of the
// column's kind is re-checked against the column constraints and returned
// unchanged, so conversion is idempotent.
func ConvertAny(x any, col schema.Column) (Value, *Issue) {
	switch t := x.(type) {
	case nil:
		return Convert("", col)
	case Value:
		if t.IsNull() {
			return Convert("", col)
		}
		if t.kind == kindFor(col.DataType) {
			switch t.kind {
			case KindString:
				return checkLength(t, col)
			case KindDecimal:
				return checkRange(t, col)
			}
			return t, nil
		}
		if t.kind == KindInt && col.DataType == schema.TypeDecimal {
			return checkRange(Decimal(decimal.NewFromInt(t.i)), col)
		}
		return convertStored(t.Text(), col)
	case string:
		return convertStored(t, col)
	case bool:
		return Convert(strconv.FormatBool(t), col)
	case json.Number:
		return Convert(t.String(), col)
	case float64:
		return Convert(strconv.FormatFloat(t, 'f', -1, 64), col)
	case int:
		return Convert(strconv.Itoa(t), col)
	case int64:
		return Convert(strconv.FormatInt(t, 10), col)
	case decimal.Decimal:
		return ConvertAny(Decimal(t), col)
	case time.Time:
		return ConvertAny(Date(t), col)
	}
	return ConvertAny(ValueOf(x), col)
}

// convertStored converts text that came from JSON or storage. Dates there
// are written in the canonical layout, which wins over the column format.
func convertStored(s string, col schema.Column) (Value, *Issue) {
	if col.DataType == schema.TypeDate {
		if t, ok := parseCanonicalDate(s); ok {
			return Date(t), nil
		}
	}
	return Convert(s, col)
}

// ParseBool matches the accepted boolean tokens, ignoring case and
// surrounding whitespace. Turkish casing is honored so "HAYIR" is false.
func ParseBool(s string) (bool, bool) {
	s = strings.TrimSpace(s)
	for _, lower := range []string{strings.ToLower(s), strings.ToLowerSpecial(unicode.TurkishCase, s)} {
		if truthy[lower] {
			return true, true
		}
		if falsy[lower] {
			return false, true
		}
	}
	return false, false
}

// ParseDecimal parses a locale-invariant decimal. A leading "+" is allowed;
// grouping separators are not.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	if s == "" || strings.ContainsAny(s, ", _") {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// IntegerDigits counts the digits left of the decimal point. Values below
// one have none.
func IntegerDigits(d decimal.Decimal) int {
	abs := d.Abs().Truncate(0)
	if abs.IsZero() {
		return 0
	}
	return len(abs.String())
}

func checkLength(v Value, col schema.Column) (Value, *Issue) {
	if col.MaxLength == nil {
		return v, nil
	}
	if n := utf8.RuneCountInString(v.s); n > *col.MaxLength {
		return Null(), newIssue(Length, col.Name, v.s, "length %d exceeds max %d", n, *col.MaxLength)
	}
	return v, nil
}

func checkRange(v Value, col schema.Column) (Value, *Issue) {
	if col.Precision == nil || col.Scale == nil {
		return v, nil
	}
	if IntegerDigits(v.d) > *col.Precision-*col.Scale {
		return Null(), newIssue(Range, col.Name, v.Text(),
			"value exceeds precision(%d,%d)", *col.Precision, *col.Scale)
	}
	return v, nil
}

func kindFor(t schema.DataType) Kind {
	switch t {
	case schema.TypeInt:
		return KindInt
	case schema.TypeDecimal:
		return KindDecimal
	case schema.TypeDate:
		return KindDate
	case schema.TypeBoolean:
		return KindBool
	default:
		return KindString
	}
}

func dateFormatHint(col schema.Column) string {
	if col.Format != "" {
		return col.Format
	}
	return DefaultDateFormat
}
