// Package frame holds the in-memory tabular container shared by the readers,
// the normalizers and the aggregation helpers.
package frame

import (
	"errors"
	"fmt"
)

// ErrWidth is returned when a row does not match the column count.
var ErrWidth = errors.New("frame: row width mismatch")

// Frame is an ordered set of named columns with untyped cells. A nil cell is
// a null value.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New builds an empty frame with the given columns. Duplicate names keep the
// first position.
func New(columns ...string) *Frame {
	f := &Frame{columns: make([]string, 0, len(columns)), index: make(map[string]int, len(columns))}
	for _, col := range columns {
		if _, ok := f.index[col]; ok {
			continue
		}
		f.index[col] = len(f.columns)
		f.columns = append(f.columns, col)
	}
	return f
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// Has reports whether all the named columns exist.
func (f *Frame) Has(names ...string) bool {
	if f == nil {
		return false
	}
	for _, name := range names {
		if _, ok := f.index[name]; !ok {
			return false
		}
	}
	return true
}

// Missing lists the names absent from the frame.
func (f *Frame) Missing(names ...string) []string {
	var missing []string
	for _, name := range names {
		if !f.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rows)
}

// Append adds a row. Values are positional against Columns.
func (f *Frame) Append(values ...any) error {
	if len(values) != len(f.columns) {
		return fmt.Errorf("%w: got %d values for %d columns", ErrWidth, len(values), len(f.columns))
	}
	row := make([]any, len(values))
	copy(row, values)
	f.rows = append(f.rows, row)
	return nil
}

// AppendMap adds a row from a column→value map. Unknown keys are ignored and
// absent columns are null.
func (f *Frame) AppendMap(values map[string]any) {
	row := make([]any, len(f.columns))
	for name, v := range values {
		if i, ok := f.index[name]; ok {
			row[i] = v
		}
	}
	f.rows = append(f.rows, row)
}

// Value returns the cell at row i for the named column. Unknown columns and
// out of range rows read as null.
func (f *Frame) Value(i int, column string) any {
	if f == nil || i < 0 || i >= len(f.rows) {
		return nil
	}
	pos, ok := f.index[column]
	if !ok {
		return nil
	}
	return f.rows[i][pos]
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) []any {
	out := make([]any, len(f.columns))
	copy(out, f.rows[i])
	return out
}

// Map replaces every cell of column with fn applied to it. It reports false
// when the column is absent.
func (f *Frame) Map(column string, fn func(any) any) bool {
	pos, ok := f.index[column]
	if !ok {
		return false
	}
	for _, row := range f.rows {
		row[pos] = fn(row[pos])
	}
	return true
}

// AddColumn appends a column holding v in every row. An existing column is
// left untouched.
func (f *Frame) AddColumn(column string, v any) {
	if _, ok := f.index[column]; ok {
		return
	}
	f.index[column] = len(f.columns)
	f.columns = append(f.columns, column)
	for i := range f.rows {
		f.rows[i] = append(f.rows[i], v)
	}
}

// Rename applies an old→new mapping to the column names. Case-sensitive.
// A rename onto a name that already exists is skipped so that extracts
// carrying both spellings keep the canonical one.
func (f *Frame) Rename(mapping map[string]string) {
	for old, renamed := range mapping {
		pos, ok := f.index[old]
		if !ok || old == renamed {
			continue
		}
		if _, taken := f.index[renamed]; taken {
			continue
		}
		delete(f.index, old)
		f.index[renamed] = pos
		f.columns[pos] = renamed
	}
}

// Filter returns a new frame holding the rows for which keep returns true.
func (f *Frame) Filter(keep func(i int) bool) *Frame {
	out := New(f.columns...)
	for i := range f.rows {
		if keep(i) {
			out.rows = append(out.rows, f.Row(i))
		}
	}
	return out
}
