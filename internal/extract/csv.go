package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	"github.com/RoqueChristian/backup-inteligencia/internal/money"
)

// Encoding names the byte encoding of a text extract.
type Encoding string

const (
	UTF8        Encoding = "utf-8"
	Windows1252 Encoding = "windows-1252"
)

// DefaultComma is the field separator of every text extract.
const DefaultComma = ';'

// DisplayDate is the day-first layout used in text outputs.
const DisplayDate = "02/01/2006"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Valid reports whether a reader exists for the encoding.
func (e Encoding) Valid() bool {
	_, err := decoder(e)
	return err == nil
}

func decoder(enc Encoding) (encoding.Encoding, error) {
	switch Encoding(strings.ToLower(string(enc))) {
	case "", UTF8, "utf8", "utf-8-sig":
		return unicode.UTF8, nil
	case Windows1252, "cp1252", "latin1", "iso-8859-1":
		return charmap.Windows1252, nil
	}
	return nil, fmt.Errorf("extract: unknown encoding %q", enc)
}

// ReadCSV parses a delimited extract. A leading UTF-8 byte-order mark is
// honoured regardless of the configured encoding. Short rows are padded with
// nulls and long rows truncated to the header width. A repeated header name
// keeps the values under its first occurrence.
func ReadCSV(r io.Reader, opts Options) (*frame.Frame, error) {
	enc, err := decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())))
	reader.Comma = opts.Comma
	if reader.Comma == 0 {
		reader.Comma = DefaultComma
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return frame.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("extract: read header: %w", err)
	}
	f, layout := headerLayout(header)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("extract: read row %d: %w", f.Len()+2, err)
		}
		if err := f.Append(layout.place(record)...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// columnLayout maps each header position to its frame column. Positions
// holding a repeated name map to -1 and are dropped.
type columnLayout struct {
	positions []int
	width     int
}

func headerLayout(header []string) (*frame.Frame, columnLayout) {
	names := trimAll(header)
	f := frame.New(names...)
	layout := columnLayout{positions: make([]int, len(names)), width: len(f.Columns())}
	seen := make(map[string]struct{}, len(names))
	next := 0
	for i, name := range names {
		if _, dup := seen[name]; dup {
			layout.positions[i] = -1
			continue
		}
		seen[name] = struct{}{}
		layout.positions[i] = next
		next++
	}
	return f, layout
}

func (l columnLayout) place(record []string) []any {
	row := make([]any, l.width)
	for i, value := range record {
		if i >= len(l.positions) {
			break
		}
		if pos := l.positions[i]; pos >= 0 {
			row[pos] = value
		}
	}
	return row
}

// WriteOptions tune the text writers.
type WriteOptions struct {
	Comma rune
	BOM   bool
}

// WriteCSV serialises f with semicolons, decimal commas and day-first dates.
func WriteCSV(w io.Writer, f *frame.Frame, opts WriteOptions) error {
	if opts.BOM {
		if _, err := w.Write(utf8BOM); err != nil {
			return err
		}
	}
	writer := csv.NewWriter(w)
	writer.Comma = opts.Comma
	if writer.Comma == 0 {
		writer.Comma = DefaultComma
	}
	defer writer.Flush()

	cols := f.Columns()
	if err := writer.Write(cols); err != nil {
		return err
	}
	record := make([]string, len(cols))
	for i := 0; i < f.Len(); i++ {
		for c, col := range cols {
			record[c] = FormatCell(f.Value(i, col))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// FormatCell renders one value for text output.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case decimal.Decimal:
		return money.DecimalComma(val)
	case float64:
		return money.DecimalComma(decimal.NewFromFloat(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case pgtype.Date:
		if !val.Valid {
			return ""
		}
		return val.Time.Format(DisplayDate)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(DisplayDate)
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}
