package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/aggregate"
	"github.com/RoqueChristian/backup-inteligencia/internal/coerce"
	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// Policy sets the sales window and the coverage days allowed per
// classification. Classifications without coverage carry no excess.
type Policy struct {
	WindowDays int
	Coverage   map[string]int
}

// DefaultPolicy covers 90 days of pharmacy stock and 60 days of health and
// beauty stock over a 90 day sales window.
func DefaultPolicy() Policy {
	return Policy{WindowDays: 90, Coverage: map[string]int{"FARMA": 90, "HB": 60}}
}

// Validate checks the window and coverage values.
func (p Policy) Validate() error {
	if p.WindowDays <= 0 {
		return fmt.Errorf("%w: window %d", ErrInvalidPolicy, p.WindowDays)
	}
	for class, days := range p.Coverage {
		if days < 0 {
			return fmt.Errorf("%w: coverage %s=%d", ErrInvalidPolicy, class, days)
		}
	}
	return nil
}

func (p Policy) coverage(classification string) (int, bool) {
	days, ok := p.Coverage[strings.ToUpper(strings.TrimSpace(classification))]
	return days, ok
}

// Value derives stock value, corrected daily sales and excess value.
//
// New products carry no excess. A product with no sales in the window is
// excess in full. Otherwise daily sales are the window sales over the days
// the product was in stock, and excess is the stock beyond the coverage days
// of the classification, valued at last cost and floored at zero. When the
// product was out of stock for the whole window there is no usable rate and
// the excess is zero.
func (p Policy) Value(pos StockPosition) Valuation {
	v := Valuation{
		StockPosition: pos,
		StockValue:    pos.StockQty.Mul(pos.LastCost).Round(2),
		DailySales:    decimal.Zero,
		ExcessValue:   decimal.Zero,
	}
	inStock := int64(p.WindowDays) - pos.ZeroStockDays
	var daily decimal.Decimal
	if inStock > 0 {
		daily = pos.Sales90D.Div(decimal.NewFromInt(inStock))
		v.DailySales = daily.Round(4)
	}

	switch {
	case pos.NewProduct:
		return v
	case pos.Sales90D.IsZero():
		v.ExcessValue = v.StockValue
	case inStock <= 0:
		return v
	default:
		days, ok := p.coverage(pos.Classification)
		if !ok {
			return v
		}
		covered := daily.Mul(decimal.NewFromInt(int64(days)))
		excess := pos.StockQty.Sub(covered).Mul(pos.LastCost)
		v.ExcessValue = decimal.Max(decimal.Zero, excess).Round(2)
	}
	return v
}

// Valuate values every position.
func (p Policy) Valuate(positions []StockPosition) []Valuation {
	out := make([]Valuation, len(positions))
	for i, pos := range positions {
		out[i] = p.Value(pos)
	}
	return out
}

// NormalizePositions maps a raw stock extract onto positions. Rows in an
// excluded classification are dropped.
func NormalizePositions(f *frame.Frame, s *schema.Schema) []StockPosition {
	s.Apply(schema.Excess, f)
	out := make([]StockPosition, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		class := text(f.Value(i, schema.ColClassification), s.Sentinels.Unclassified)
		if s.Excluded(class) {
			continue
		}
		branch, _ := coerce.Int(f.Value(i, schema.ColBranch))
		zero, _ := coerce.Int(f.Value(i, schema.ColZeroStockDays))
		out = append(out, StockPosition{
			Branch:         branch,
			Classification: class,
			ProductCode:    text(f.Value(i, schema.ColProductCode), ""),
			Product:        text(f.Value(i, schema.ColProduct), s.Sentinels.Undefined),
			Category:       text(f.Value(i, schema.ColCategory), s.Sentinels.Undefined),
			Section:        text(f.Value(i, schema.ColSection), s.Sentinels.Undefined),
			Department:     text(f.Value(i, schema.ColDepartment), s.Sentinels.Undefined),
			BuyerCode:      text(f.Value(i, schema.ColBuyerCode), ""),
			Buyer:          text(f.Value(i, schema.ColBuyer), s.Sentinels.Undefined),
			SupplierCode:   text(f.Value(i, schema.ColSupplierCode), ""),
			Supplier:       text(f.Value(i, schema.ColSupplier), s.Sentinels.Undefined),
			Month:          month(f.Value(i, schema.ColMonth)),
			LastCost:       number(f.Value(i, schema.ColLastCost)),
			StockQty:       number(f.Value(i, schema.ColStockQty)),
			Sales90D:       number(f.Value(i, schema.ColSales90D)),
			ZeroStockDays:  zero,
			NewProduct:     flag(f.Value(i, schema.ColNewProduct)),
		})
	}
	return out
}

// ReadPositions loads and normalizes the stock snapshot of src.
func ReadPositions(src extract.Source, opts extract.Options, s *schema.Schema) ([]StockPosition, error) {
	f, err := extract.ReadFrame(src, opts)
	if err != nil {
		return nil, err
	}
	s.Prepare(schema.Excess, f, src.Format == extract.FormatXLSX)
	return NormalizePositions(f, s), nil
}

// ValuationColumns is the column order of the valuation table.
var ValuationColumns = []string{
	schema.ColMonth,
	schema.ColBranch,
	schema.ColClassification,
	schema.ColProductCode,
	schema.ColProduct,
	schema.ColBuyer,
	schema.ColSupplier,
	schema.ColStockQty,
	schema.ColLastCost,
	schema.ColStockValue,
	schema.ColSales90D,
	schema.ColZeroStockDays,
	schema.ColDailySales,
	schema.ColExcessValue,
	schema.ColNewProduct,
}

// ValuationFrame lays valuations out as a table.
func ValuationFrame(rows []Valuation) *frame.Frame {
	f := frame.New(ValuationColumns...)
	for _, v := range rows {
		_ = f.Append(
			v.Month, v.Branch, v.Classification, v.ProductCode, v.Product, v.Buyer, v.Supplier,
			v.StockQty, v.LastCost, v.StockValue, v.Sales90D, v.ZeroStockDays, v.DailySales,
			v.ExcessValue, v.NewProduct,
		)
	}
	return f
}

// ExcessByBranch sums excess value per branch, largest first.
func ExcessByBranch(rows []Valuation) aggregate.Result {
	return aggregate.Sum(ValuationFrame(rows), []string{schema.ColBranch}, schema.ColExcessValue).SortBySumDesc()
}

// ExcessByMonth sums excess value per month in chronological order.
func ExcessByMonth(rows []Valuation) aggregate.Result {
	return aggregate.Sum(ValuationFrame(rows), []string{schema.ColMonth}, schema.ColExcessValue).SortByKeys()
}

func text(v any, sentinel string) string {
	if s, ok := coerce.Text(v); ok {
		return s
	}
	return sentinel
}

func number(v any) decimal.Decimal {
	d, _ := coerce.Decimal(v)
	return d
}

// month normalizes month labels to YYYY-MM; full dates collapse to their
// month and anything else passes through.
func month(v any) string {
	s, ok := coerce.Text(v)
	if !ok {
		return ""
	}
	for _, layout := range []string{"2006-01", "01/2006", "2006/01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01")
		}
	}
	if d := coerce.Date(v); d.Valid && len(s) >= len("2006-01-02") {
		return d.Time.Format("2006-01")
	}
	return s
}

func flag(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	s, ok := coerce.Text(v)
	if !ok {
		return false
	}
	switch strings.ToLower(s) {
	case "sim", "s", "yes", "y", "true", "1":
		return true
	}
	return false
}
