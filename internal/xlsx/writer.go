package xlsx

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/treedata/internal/schema"
	"github.com/JonMunkholm/treedata/internal/validation"
)

const (
	defaultSheet  = "Sheet1"
	decimalFormat = "#,##0.00"
	intFormat     = "#,##0"
	columnWidth   = 18
)

// ErrSheetName is returned for a table name Excel rejects as a worksheet
// name, such as one longer than 31 characters or containing : \ / ? * [ ].
var ErrSheetName = errors.New("table name is not a valid worksheet name")

// SheetData is one table to export.
type SheetData struct {
	Table schema.Table

	// Columns are written in order. Nil means the table's active columns.
	Columns []schema.Column

	Rows []validation.Record
}

// WriteWorkbook writes one worksheet per table that has rows and
// columns. Headers use the column alias when set. When nothing qualifies
// the output is a valid workbook holding only the default sheet.
func WriteWorkbook(w io.Writer, sheets []SheetData) error {
	f := excelize.NewFile()
	defer f.Close()

	st, err := newStyles(f)
	if err != nil {
		return err
	}

	written := 0
	keepDefault := false
	for _, sd := range sheets {
		cols := sd.Columns
		if cols == nil {
			cols = sd.Table.ActiveColumns()
		}
		if len(sd.Rows) == 0 || len(cols) == 0 {
			continue
		}
		if _, err := f.NewSheet(sd.Table.Name); err != nil {
			return sheetNameError(sd.Table.Name, err)
		}
		if sd.Table.Name == defaultSheet {
			keepDefault = true
		}
		if err := writeSheet(f, sd.Table.Name, cols, sd.Rows, st); err != nil {
			return fmt.Errorf("write worksheet %q: %w", sd.Table.Name, err)
		}
		written++
	}

	if written > 0 && !keepDefault {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("remove default sheet: %w", err)
		}
		f.SetActiveSheet(0)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func sheetNameError(name string, err error) error {
	switch {
	case errors.Is(err, excelize.ErrSheetNameLength),
		errors.Is(err, excelize.ErrSheetNameInvalid),
		errors.Is(err, excelize.ErrSheetNameBlank),
		errors.Is(err, excelize.ErrSheetNameSingleQuote):
		return fmt.Errorf("%w: %q: %w", ErrSheetName, name, err)
	}
	return fmt.Errorf("create worksheet %q: %w", name, err)
}

type styles struct {
	header  int
	decimal int
	integer int
	dates   map[string]int
	f       *excelize.File
}

func newStyles(f *excelize.File) (*styles, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	st := &styles{header: header, dates: make(map[string]int), f: f}
	if st.decimal, err = st.numFmt(decimalFormat); err != nil {
		return nil, err
	}
	if st.integer, err = st.numFmt(intFormat); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *styles) numFmt(format string) (int, error) {
	id, err := s.f.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return 0, fmt.Errorf("create number format %q: %w", format, err)
	}
	return id, nil
}

// date returns the style for a column's date format, creating it once.
func (s *styles) date(format string) (int, error) {
	nf := validation.ExcelNumberFormat(format)
	if id, ok := s.dates[nf]; ok {
		return id, nil
	}
	id, err := s.numFmt(nf)
	if err != nil {
		return 0, err
	}
	s.dates[nf] = id
	return id, nil
}

func writeSheet(f *excelize.File, sheet string, cols []schema.Column, rows []validation.Record, st *styles) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}

	// Panes and widths must be set before the first row.
	if err := sw.SetPanes(&excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze panes: %w", err)
	}
	if err := sw.SetColWidth(1, len(cols), columnWidth); err != nil {
		return err
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = excelize.Cell{StyleID: st.header, Value: c.HeaderName()}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for r, rec := range rows {
		values := make([]any, len(cols))
		for i, c := range cols {
			cell, err := cellFor(rec[c.Name], c, st)
			if err != nil {
				return err
			}
			values[i] = cell
		}
		axis, err := excelize.CoordinatesToCellName(1, r+validation.FirstDataRow)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, values); err != nil {
			return fmt.Errorf("row %d: %w", r+validation.FirstDataRow, err)
		}
	}
	return sw.Flush()
}

// cellFor types a value for its column. Values whose kind does not match
// the column are written as text.
func cellFor(v validation.Value, col schema.Column, st *styles) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch {
	case col.DataType == schema.TypeDate && v.Kind() == validation.KindDate:
		id, err := st.date(col.Format)
		if err != nil {
			return nil, err
		}
		return excelize.Cell{StyleID: id, Value: v.AsTime()}, nil
	case col.DataType == schema.TypeDecimal && v.Kind() == validation.KindDecimal:
		return excelize.Cell{StyleID: st.decimal, Value: v.AsDecimal().InexactFloat64()}, nil
	case col.DataType == schema.TypeDecimal && v.Kind() == validation.KindInt:
		return excelize.Cell{StyleID: st.decimal, Value: v.AsInt()}, nil
	case col.DataType == schema.TypeInt && v.Kind() == validation.KindInt:
		return excelize.Cell{StyleID: st.integer, Value: v.AsInt()}, nil
	}
	return v.Text(), nil
}
