package inventory

import (
	"sort"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/coerce"
	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// PreExpiryColumns is the column order of the pre-expiry workbook.
var PreExpiryColumns = []string{
	schema.ColBranch,
	schema.ColClassification,
	schema.ColSupplier,
	schema.ColProductCode,
	schema.ColDescription,
	schema.ColQuantity,
	schema.ColLastCost,
	schema.ColExpiresAt,
	schema.ColTotal,
}

// NormalizeLots maps a raw pre-expiry extract onto lots, dropping excluded
// classifications and lots without positive quantity.
func NormalizeLots(f *frame.Frame, s *schema.Schema) []Lot {
	s.Apply(schema.PreExpiry, f)
	out := make([]Lot, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		class := text(f.Value(i, schema.ColClassification), s.Sentinels.Unclassified)
		if s.Excluded(class) {
			continue
		}
		qty := number(f.Value(i, schema.ColQuantity))
		if !qty.IsPositive() {
			continue
		}
		branch := number(f.Value(i, schema.ColBranch)).IntPart()
		out = append(out, Lot{
			Branch:         branch,
			Classification: class,
			Supplier:       text(f.Value(i, schema.ColSupplier), s.Sentinels.Undefined),
			ProductCode:    text(f.Value(i, schema.ColProductCode), ""),
			Description:    text(f.Value(i, schema.ColDescription), s.Sentinels.Undefined),
			Quantity:       qty,
			LastCost:       number(f.Value(i, schema.ColLastCost)),
			ExpiresAt:      coerce.Date(f.Value(i, schema.ColExpiresAt)),
		})
	}
	return out
}

// ReadLots loads and normalizes the pre-expiry extract of src.
func ReadLots(src extract.Source, opts extract.Options, s *schema.Schema) ([]Lot, error) {
	f, err := extract.ReadFrame(src, opts)
	if err != nil {
		return nil, err
	}
	s.Prepare(schema.PreExpiry, f, src.Format == extract.FormatXLSX)
	return NormalizeLots(f, s), nil
}

type lotKey struct {
	branch  int64
	product string
	expires string
}

type productKey struct {
	branch  int64
	product string
}

// ConsolidatePreExpiry sums quantity per (branch, product, expiry date) and
// prices each line at the last cost of the first lot seen for that branch
// and product. Lines are ordered by branch, product and expiry date.
func ConsolidatePreExpiry(lots []Lot) []PreExpiryLine {
	descriptive := make(map[productKey]Lot)
	index := make(map[lotKey]int)
	var lines []PreExpiryLine
	for _, lot := range lots {
		pk := productKey{lot.Branch, lot.ProductCode}
		if _, ok := descriptive[pk]; !ok {
			descriptive[pk] = lot
		}
		lk := lotKey{lot.Branch, lot.ProductCode, extract.FormatCell(lot.ExpiresAt)}
		pos, ok := index[lk]
		if !ok {
			pos = len(lines)
			index[lk] = pos
			lines = append(lines, PreExpiryLine{
				Branch:      lot.Branch,
				ProductCode: lot.ProductCode,
				ExpiresAt:   lot.ExpiresAt,
				Quantity:    decimal.Zero,
			})
		}
		lines[pos].Quantity = lines[pos].Quantity.Add(lot.Quantity)
	}

	for i := range lines {
		info := descriptive[productKey{lines[i].Branch, lines[i].ProductCode}]
		lines[i].Classification = info.Classification
		lines[i].Supplier = info.Supplier
		lines[i].Description = info.Description
		lines[i].LastCost = info.LastCost
		lines[i].Total = lines[i].Quantity.Mul(info.LastCost)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		if a.ProductCode != b.ProductCode {
			return a.ProductCode < b.ProductCode
		}
		return before(a.ExpiresAt, b.ExpiresAt)
	})
	return lines
}

// PreExpiryFrame lays consolidated lines out in workbook column order.
func PreExpiryFrame(lines []PreExpiryLine) *frame.Frame {
	f := frame.New(PreExpiryColumns...)
	for _, l := range lines {
		_ = f.Append(l.Branch, l.Classification, l.Supplier, l.ProductCode, l.Description,
			l.Quantity, l.LastCost, l.ExpiresAt, l.Total)
	}
	return f
}

// null expiry dates sort last
func before(a, b pgtype.Date) bool {
	switch {
	case !a.Valid:
		return false
	case !b.Valid:
		return true
	}
	return a.Time.Before(b.Time)
}
