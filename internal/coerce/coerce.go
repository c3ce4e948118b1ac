// Package coerce converts loosely typed extract cells into typed values.
// Every conversion is permissive: a value that cannot be read becomes the
// zero value and the second return reports whether parsing succeeded.
package coerce

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
)

// DateLayouts are tried in order when a date arrives as text. Day-first
// formats come before ISO ones.
var DateLayouts = []string{
	"02/01/2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// largest serial excelize accepts (9999-12-31)
const maxExcelSerial = 2958465

var nullTokens = map[string]struct{}{
	"":     {},
	"nan":  {},
	"nat":  {},
	"null": {},
	"none": {},
	"<na>": {},
}

// IsNull reports whether v represents a missing cell.
func IsNull(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		_, ok := nullTokens[strings.ToLower(strings.TrimSpace(val))]
		return ok
	case float64:
		return math.IsNaN(val)
	case pgtype.Date:
		return !val.Valid
	case *time.Time:
		return val == nil
	case *string:
		return val == nil
	case *float64:
		return val == nil
	case *int64:
		return val == nil
	case *decimal.Decimal:
		return val == nil
	}
	return false
}

// Decimal reads a monetary or quantity cell. Text may use a decimal comma
// with dot thousands separators and an optional "R$" prefix.
func Decimal(v any) (decimal.Decimal, bool) {
	if IsNull(v) {
		return decimal.Zero, false
	}
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case *decimal.Decimal:
		return *val, true
	case float64:
		if math.IsInf(val, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(val), true
	case *float64:
		return Decimal(*val)
	case float32:
		return decimal.NewFromFloat32(val), true
	case *int64:
		return decimal.NewFromInt(*val), true
	case string:
		return parseDecimalText(val)
	case *string:
		return parseDecimalText(*val)
	case bool, time.Time:
		return decimal.Zero, false
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(n), true
}

func parseDecimalText(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Int reads an integral cell such as a branch or product code. Fractions are
// truncated.
func Int(v any) (int64, bool) {
	d, ok := Decimal(v)
	if !ok {
		return 0, false
	}
	return d.IntPart(), true
}

// Text reads a categorical cell, trimming surrounding whitespace.
func Text(v any) (string, bool) {
	if IsNull(v) {
		return "", false
	}
	switch val := v.(type) {
	case *string:
		return strings.TrimSpace(*val), true
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10), true
		}
	case *float64:
		return Text(*val)
	case *int64:
		return strconv.FormatInt(*val, 10), true
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Date reads a date cell. Text is tried against DateLayouts and a float is
// read as an Excel serial. Numeric text is not a date here; SheetDate handles
// serials read raw from a workbook. Unreadable values return an invalid date.
func Date(v any) pgtype.Date {
	if IsNull(v) {
		return pgtype.Date{}
	}
	switch val := v.(type) {
	case pgtype.Date:
		return truncate(val.Time)
	case time.Time:
		if val.IsZero() {
			return pgtype.Date{}
		}
		return truncate(val)
	case *time.Time:
		return Date(*val)
	case string:
		return parseDateText(val)
	case *string:
		return parseDateText(*val)
	case float64:
		return excelSerial(val)
	}
	return pgtype.Date{}
}

func parseDateText(raw string) pgtype.Date {
	s := strings.TrimSpace(raw)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncate(t)
		}
	}
	return pgtype.Date{}
}

// SheetDate reads a date cell taken raw from a workbook, where a date column
// holds serial day numbers as numeric text.
func SheetDate(v any) pgtype.Date {
	var raw string
	switch val := v.(type) {
	case string:
		raw = val
	case *string:
		if val == nil {
			return pgtype.Date{}
		}
		raw = *val
	default:
		return Date(v)
	}
	if serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return excelSerial(serial)
	}
	return parseDateText(raw)
}

func excelSerial(serial float64) pgtype.Date {
	if serial < 1 || serial > maxExcelSerial {
		return pgtype.Date{}
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return pgtype.Date{}
	}
	return truncate(t)
}

func truncate(t time.Time) pgtype.Date {
	return pgtype.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}
