package extract

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
)

// ReadXLSX loads one sheet of a workbook. An empty sheet name selects the
// first sheet. Cells are read raw so dates arrive as Excel serials and
// numbers keep their full precision.
func ReadXLSX(r io.Reader, sheet string) (*frame.Frame, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("extract: open workbook: %w", err)
	}
	defer book.Close()

	if sheet == "" {
		sheet = book.GetSheetName(0)
	}
	rows, err := book.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("extract: read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return frame.New(), nil
	}
	f, layout := headerLayout(rows[0])
	for _, record := range rows[1:] {
		if err := f.Append(layout.place(record)...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WriteXLSX renders f into a single-sheet workbook. Decimals become numeric
// cells and dates day-first text.
func WriteXLSX(w io.Writer, sheet string, f *frame.Frame) error {
	book := excelize.NewFile()
	defer book.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := book.SetSheetName(book.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("extract: name sheet: %w", err)
	}
	stream, err := book.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("extract: stream sheet: %w", err)
	}

	cols := f.Columns()
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := stream.SetRow("A1", header); err != nil {
		return err
	}
	for i := 0; i < f.Len(); i++ {
		values := make([]any, len(cols))
		for c, col := range cols {
			values[c] = xlsxCell(f.Value(i, col))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := stream.SetRow(cell, values); err != nil {
			return err
		}
	}
	if err := stream.Flush(); err != nil {
		return fmt.Errorf("extract: flush sheet: %w", err)
	}
	_, err = book.WriteTo(w)
	return err
}

func xlsxCell(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return val.InexactFloat64()
	case pgtype.Date, time.Time:
		return FormatCell(val)
	}
	return v
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
