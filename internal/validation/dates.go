package validation

import (
	"strings"
	"time"
)

// DefaultDateFormat is used for messages and spreadsheet output when a
// date column has no format of its own.
const DefaultDateFormat = "dd/MM/yyyy"

// fallbackLayouts are tried in order after the column format.
var fallbackLayouts = []string{
	"02/01/2006",          // dd/MM/yyyy
	"02.01.2006",          // dd.MM.yyyy
	"2006-01-02",          // yyyy-MM-dd
	"02/01/2006 15:04:05", // dd/MM/yyyy HH:mm:ss
	"02.01.2006 15:04:05", // dd.MM.yyyy HH:mm:ss
	"2006-01-02 15:04:05", // yyyy-MM-dd HH:mm:ss
	"01/02/2006",          // MM/dd/yyyy
	"01-02-2006",          // MM-dd-yyyy
}

// generalLayouts is the last resort: ISO forms and the invariant
// month-first and month-name spellings.
var generalLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"1/2/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
}

// ParseDate parses s using the column format first, then the fixed
// fallback list, then the general layouts. The first success wins.
func ParseDate(s, format string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if format != "" {
		if t, err := time.Parse(GoLayout(format), s); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range generalLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseCanonicalDate reads the layouts Value.Text writes.
func parseCanonicalDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, dateTimeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type formatToken struct {
	letter byte // 0 for literal text
	n      int
	lit    string
}

// tokenize splits a date pattern such as "dd/MM/yyyy HH:mm" into runs of
// pattern letters and literal text. Quoted text and backslash escapes are
// literal.
func tokenize(format string) []formatToken {
	var out []formatToken
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, formatToken{lit: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(format); {
		c := format[i]
		switch {
		case c == '\'' || c == '"':
			end := strings.IndexByte(format[i+1:], c)
			if end < 0 {
				lit.WriteString(format[i+1:])
				i = len(format)
				continue
			}
			lit.WriteString(format[i+1 : i+1+end])
			i += end + 2
		case c == '\\' && i+1 < len(format):
			lit.WriteByte(format[i+1])
			i += 2
		case strings.IndexByte("yMdHhmsft", c) >= 0:
			flush()
			j := i
			for j < len(format) && format[j] == c {
				j++
			}
			out = append(out, formatToken{letter: c, n: j - i})
			i = j
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return out
}

// GoLayout translates a date pattern ("dd/MM/yyyy") into a time layout.
func GoLayout(format string) string {
	var b strings.Builder
	for _, tok := range tokenize(format) {
		if tok.letter == 0 {
			b.WriteString(tok.lit)
			continue
		}
		b.WriteString(goToken(tok))
	}
	return b.String()
}

func goToken(tok formatToken) string {
	switch tok.letter {
	case 'y':
		if tok.n <= 2 {
			return "06"
		}
		return "2006"
	case 'M':
		switch {
		case tok.n >= 4:
			return "January"
		case tok.n == 3:
			return "Jan"
		case tok.n == 2:
			return "01"
		}
		return "1"
	case 'd':
		switch {
		case tok.n >= 4:
			return "Monday"
		case tok.n == 3:
			return "Mon"
		case tok.n == 2:
			return "02"
		}
		return "2"
	case 'H':
		return "15"
	case 'h':
		if tok.n >= 2 {
			return "03"
		}
		return "3"
	case 'm':
		if tok.n >= 2 {
			return "04"
		}
		return "4"
	case 's':
		if tok.n >= 2 {
			return "05"
		}
		return "5"
	case 'f':
		return strings.Repeat("0", tok.n)
	case 't':
		return "PM"
	}
	return ""
}

// ExcelNumberFormat translates a date pattern into a spreadsheet number
// format, e.g. "dd/MM/yyyy HH:mm" becomes "dd/mm/yyyy hh:mm".
func ExcelNumberFormat(format string) string {
	if format == "" {
		format = DefaultDateFormat
	}
	var b strings.Builder
	for _, tok := range tokenize(format) {
		switch tok.letter {
		case 0:
			for _, r := range tok.lit {
				if strings.ContainsRune(`/-:. ,`, r) {
					b.WriteRune(r)
				} else {
					b.WriteString(`\`)
					b.WriteRune(r)
				}
			}
		case 'M':
			b.WriteString(strings.Repeat("m", tok.n))
		case 'H':
			b.WriteString(strings.Repeat("h", tok.n))
		case 'f':
			b.WriteString(strings.Repeat("0", tok.n))
		case 't':
			b.WriteString("AM/PM")
		default:
			b.WriteString(strings.Repeat(string(tok.letter), tok.n))
		}
	}
	return b.String()
}
