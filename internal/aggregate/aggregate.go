// Package aggregate groups frame rows by key columns and sums a numeric field.
package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/coerce"
	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
)

// Result column prefixes.
const (
	SumPrefix         = "Sum_of_"
	ConditionalPrefix = "Conditional_sum_of_"
)

var (
	// ErrMissingColumn reports a requested key or field absent from the frame.
	ErrMissingColumn = errors.New("aggregate: missing column")
	// ErrNonNumeric reports a sum over a column holding dates or flags.
	ErrNonNumeric = errors.New("aggregate: column is not numeric")
)

// Group is one key tuple with its sum and row count. A nil key is the null
// group.
type Group struct {
	Keys  []any           `json:"keys"`
	Sum   decimal.Decimal `json:"sum"`
	Count int             `json:"count"`
}

// Result is an aggregation table. Groups keep first-seen order until sorted.
type Result struct {
	KeyColumns []string `json:"key_columns"`
	Field      string   `json:"field"`
	Column     string   `json:"sum_column"`
	Groups     []Group  `json:"groups"`
}

// Empty reports whether the result has no groups.
func (r Result) Empty() bool { return len(r.Groups) == 0 }

// Checked aggregates and reports why a result could not be produced.
func Checked(f *frame.Frame, keys []string, field string) (Result, error) {
	return group(f, keys, field, SumPrefix, nil)
}

// Sum groups f by keys and sums field. Unreadable cells count as zero and null
// keys form their own group. A missing column or a non-numeric field yields
// an empty result.
func Sum(f *frame.Frame, keys []string, field string) Result {
	res, err := Checked(f, keys, field)
	if err != nil {
		return empty(keys, field, SumPrefix)
	}
	return res
}

// SumWhere aggregates only rows whose filter column equals match.
func SumWhere(f *frame.Frame, filterColumn string, match any, keys []string, field string) Result {
	if !f.Has(filterColumn) {
		return empty(keys, field, ConditionalPrefix)
	}
	want := token(match)
	res, err := group(f, keys, field, ConditionalPrefix, func(i int) bool {
		return token(f.Value(i, filterColumn)) == want
	})
	if err != nil {
		return empty(keys, field, ConditionalPrefix)
	}
	return res
}

// Total sums one column over the whole frame; zero when the column is absent.
func Total(f *frame.Frame, field string) decimal.Decimal {
	total := decimal.Zero
	if !f.Has(field) {
		return total
	}
	for i := 0; i < f.Len(); i++ {
		d, _ := coerce.Decimal(f.Value(i, field))
		total = total.Add(d)
	}
	return total
}

func empty(keys []string, field, prefix string) Result {
	return Result{KeyColumns: append([]string(nil), keys...), Field: field, Column: prefix + field, Groups: []Group{}}
}

func group(f *frame.Frame, keys []string, field, prefix string, keep func(int) bool) (Result, error) {
	required := append(append([]string(nil), keys...), field)
	if missing := f.Missing(required...); len(missing) > 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	res := empty(keys, field, prefix)
	index := make(map[string]int)
	for i := 0; i < f.Len(); i++ {
		if keep != nil && !keep(i) {
			continue
		}
		cell := f.Value(i, field)
		switch cell.(type) {
		case bool, time.Time, pgtype.Date:
			return Result{}, fmt.Errorf("%w: %s", ErrNonNumeric, field)
		}
		tuple := make([]any, len(keys))
		parts := make([]string, len(keys))
		for k, key := range keys {
			v := f.Value(i, key)
			if coerce.IsNull(v) {
				v = nil
			}
			tuple[k] = v
			parts[k] = token(v)
		}
		id := strings.Join(parts, "\x1f")
		pos, ok := index[id]
		if !ok {
			pos = len(res.Groups)
			index[id] = pos
			res.Groups = append(res.Groups, Group{Keys: tuple, Sum: decimal.Zero})
		}
		d, _ := coerce.Decimal(cell)
		res.Groups[pos].Sum = res.Groups[pos].Sum.Add(d)
		res.Groups[pos].Count++
	}
	return res, nil
}

func token(v any) string {
	if coerce.IsNull(v) {
		return "\x00"
	}
	switch val := v.(type) {
	case string:
		return "s:" + val
	case decimal.Decimal:
		return "n:" + val.String()
	case pgtype.Date:
		return "d:" + val.Time.Format("2006-01-02")
	case time.Time:
		return "d:" + val.Format("2006-01-02")
	}
	if d, ok := coerce.Decimal(v); ok {
		return "n:" + d.String()
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// Lookup returns the sum for an exact key tuple. Pass nil for the null key.
func (r Result) Lookup(keys ...any) (decimal.Decimal, bool) {
	want := make([]string, len(keys))
	for i, k := range keys {
		want[i] = token(k)
	}
	id := strings.Join(want, "\x1f")
	for _, g := range r.Groups {
		parts := make([]string, len(g.Keys))
		for i, k := range g.Keys {
			parts[i] = token(k)
		}
		if strings.Join(parts, "\x1f") == id {
			return g.Sum, true
		}
	}
	return decimal.Zero, false
}

// Total sums every group.
func (r Result) Total() decimal.Decimal {
	total := decimal.Zero
	for _, g := range r.Groups {
		total = total.Add(g.Sum)
	}
	return total
}

// SortBySumDesc orders groups by descending sum; ties keep key order.
func (r Result) SortBySumDesc() Result {
	out := r.clone()
	sort.SliceStable(out.Groups, func(i, j int) bool {
		return out.Groups[i].Sum.GreaterThan(out.Groups[j].Sum)
	})
	return out
}

// SortByKeys orders groups by their key tuple. Null keys sort first.
func (r Result) SortByKeys() Result {
	out := r.clone()
	sort.SliceStable(out.Groups, func(i, j int) bool {
		a, b := out.Groups[i].Keys, out.Groups[j].Keys
		for k := range a {
			if c := compare(a[k], b[k]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return out
}

// Top keeps the first n groups.
func (r Result) Top(n int) Result {
	out := r.clone()
	if n >= 0 && n < len(out.Groups) {
		out.Groups = out.Groups[:n]
	}
	return out
}

// Where keeps the groups for which keep returns true.
func (r Result) Where(keep func(Group) bool) Result {
	out := r.clone()
	out.Groups = out.Groups[:0]
	for _, g := range r.Groups {
		if keep(g) {
			out.Groups = append(out.Groups, g)
		}
	}
	return out
}

// Frame renders the result as a table of the key columns followed by the
// sum column.
func (r Result) Frame() *frame.Frame {
	cols := append(append([]string(nil), r.KeyColumns...), r.Column)
	f := frame.New(cols...)
	for _, g := range r.Groups {
		row := append(append([]any(nil), g.Keys...), g.Sum)
		_ = f.Append(row...)
	}
	return f
}

func (r Result) clone() Result {
	out := r
	out.Groups = append([]Group(nil), r.Groups...)
	return out
}

func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	_, aText := a.(string)
	_, bText := b.(string)
	if !aText && !bText {
		da, okA := coerce.Decimal(a)
		db, okB := coerce.Decimal(b)
		if okA && okB {
			return da.Cmp(db)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case pgtype.Date:
		return val.Time, val.Valid
	}
	return time.Time{}, false
}
