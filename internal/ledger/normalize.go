package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/coerce"
	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// NormalizeAccruals maps a raw accrual extract onto Accrual records. The
// frame's columns are renamed in place. Rows in an excluded classification
// are dropped; every other cell is coerced permissively.
func NormalizeAccruals(f *frame.Frame, s *schema.Schema) []Accrual {
	s.Apply(schema.Accrual, f)
	out := make([]Accrual, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		class := label(f.Value(i, schema.ColClassification), s.Sentinels.Unclassified)
		if s.Excluded(class) {
			continue
		}
		branch, _ := coerce.Int(f.Value(i, schema.ColBranch))
		grant, _ := coerce.Text(f.Value(i, schema.ColGrantNumber))
		status, _ := coerce.Text(f.Value(i, schema.ColStatus))
		registered := coerce.Date(f.Value(i, schema.ColRegisteredAt))

		out = append(out, Accrual{
			Branch:         branch,
			GrantNumber:    grant,
			Classification: class,
			Buyer:          label(f.Value(i, schema.ColBuyer), s.Sentinels.Undefined),
			Supplier:       label(f.Value(i, schema.ColSupplier), s.Sentinels.Undefined),
			Status:         strings.ToUpper(status),
			RegisteredAt:   registered,
			RegisteredYear: yearOf(registered),
			DueAt:          coerce.Date(f.Value(i, schema.ColDueAt)),
			GrantValue:     amount(f.Value(i, schema.ColGrantValue)),
			AppliedTotal:   amount(f.Value(i, schema.ColAppliedTotal)),
			Debit:          amount(f.Value(i, schema.ColDebit)),
			Credit:         amount(f.Value(i, schema.ColCredit)),
		})
	}
	return out
}

// NormalizeReturns maps a raw returns extract onto Return records.
func NormalizeReturns(f *frame.Frame, s *schema.Schema) []Return {
	s.Apply(schema.Returns, f)
	out := make([]Return, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		class := label(f.Value(i, schema.ColClassification), s.Sentinels.Unclassified)
		if s.Excluded(class) {
			continue
		}
		branch, _ := coerce.Int(f.Value(i, schema.ColBranch))
		code, _ := coerce.Text(f.Value(i, schema.ColSupplierCode))
		paid := coerce.Date(f.Value(i, schema.ColPaidAt))

		out = append(out, Return{
			Branch:         branch,
			Classification: class,
			SupplierCode:   code,
			Supplier:       label(f.Value(i, schema.ColSupplier), s.Sentinels.Undefined),
			Buyer:          label(f.Value(i, schema.ColBuyer), s.Sentinels.Undefined),
			IssuedAt:       coerce.Date(f.Value(i, schema.ColIssuedAt)),
			DueAt:          coerce.Date(f.Value(i, schema.ColDueAt)),
			PaidAt:         paid,
			ReturnValue:    amount(f.Value(i, schema.ColReturnValue)),
			Settlement:     SettlementOf(paid),
		})
	}
	return out
}

// ApplyBalances sets Receivable and ToApply on every row. Recomputing over
// derived rows yields the same values.
func ApplyBalances(rows []Accrual) {
	for i := range rows {
		rows[i].Receivable = rows[i].Debit.Add(rows[i].Credit)
		rows[i].ToApply = rows[i].GrantValue.Add(rows[i].Credit)
	}
}

// ClassifyAccruals assigns the aging status of every row as of asOf.
// Balances must already be applied.
func ClassifyAccruals(rows []Accrual, asOf time.Time) {
	for i := range rows {
		res := aging.Classify(rows[i].Receivable, rows[i].DueAt, asOf)
		rows[i].Aging = res.Status
		rows[i].DaysOverdue = res.DaysOverdue
	}
}

// ClassifyReturns assigns the aging status of every return as of asOf.
func ClassifyReturns(rows []Return, asOf time.Time) {
	for i := range rows {
		res := aging.ClassifyReturn(rows[i].PaidAt, rows[i].DueAt, asOf)
		rows[i].Settlement = SettlementOf(rows[i].PaidAt)
		rows[i].Aging = res.Status
		rows[i].DaysOverdue = res.DaysOverdue
	}
}

// DeriveAccruals applies balances then aging.
func DeriveAccruals(rows []Accrual, asOf time.Time) []Accrual {
	ApplyBalances(rows)
	ClassifyAccruals(rows, asOf)
	return rows
}

// ReadAccruals loads, normalizes and derives the accrual ledger of src.
func ReadAccruals(src extract.Source, opts extract.Options, s *schema.Schema, asOf time.Time) ([]Accrual, error) {
	f, err := readFrame(src, opts, schema.Accrual)
	if err != nil {
		return nil, err
	}
	s.Prepare(schema.Accrual, f, src.Format == extract.FormatXLSX)
	return DeriveAccruals(NormalizeAccruals(f, s), asOf), nil
}

// ReadReturns loads, normalizes and classifies the returns ledger of src.
func ReadReturns(src extract.Source, opts extract.Options, s *schema.Schema, asOf time.Time) ([]Return, error) {
	f, err := readFrame(src, opts, schema.Returns)
	if err != nil {
		return nil, err
	}
	s.Prepare(schema.Returns, f, src.Format == extract.FormatXLSX)
	rows := NormalizeReturns(f, s)
	ClassifyReturns(rows, asOf)
	return rows, nil
}

func readFrame(src extract.Source, opts extract.Options, ds schema.Dataset) (*frame.Frame, error) {
	if src.Format != extract.FormatParquet {
		return extract.ReadFrame(src, opts)
	}
	switch ds {
	case schema.Accrual:
		rows, err := extract.ReadParquet[AccrualSnapshot](src.Path)
		if err != nil {
			return nil, err
		}
		return accrualSnapshotFrame(rows), nil
	case schema.Returns:
		rows, err := extract.ReadParquet[ReturnSnapshot](src.Path)
		if err != nil {
			return nil, err
		}
		return returnSnapshotFrame(rows), nil
	}
	return nil, fmt.Errorf("%w: no parquet layout for %s", extract.ErrUnsupportedFormat, ds)
}

func label(v any, sentinel string) string {
	if s, ok := coerce.Text(v); ok {
		return s
	}
	return sentinel
}

func amount(v any) decimal.Decimal {
	d, _ := coerce.Decimal(v)
	return d
}

func yearOf(d pgtype.Date) int {
	if !d.Valid {
		return 0
	}
	return d.Time.Year()
}
