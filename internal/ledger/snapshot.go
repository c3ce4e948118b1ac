package ledger

import (
	"io"

	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// AccrualSnapshot is the parquet layout of the accrual extract. Dates are
// days since the Unix epoch.
type AccrualSnapshot struct {
	Branch         int64   `parquet:"name=branch, type=INT64"`
	GrantNumber    string  `parquet:"name=grant_number, type=BYTE_ARRAY, convertedtype=UTF8"`
	Classification string  `parquet:"name=classification, type=BYTE_ARRAY, convertedtype=UTF8"`
	Buyer          string  `parquet:"name=buyer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Supplier       string  `parquet:"name=supplier, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status         string  `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	RegisteredAt   *int32  `parquet:"name=registered_at, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL"`
	DueAt          *int32  `parquet:"name=due_at, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL"`
	GrantValue     float64 `parquet:"name=grant_value, type=DOUBLE"`
	AppliedTotal   float64 `parquet:"name=applied_total, type=DOUBLE"`
	Debit          float64 `parquet:"name=debit, type=DOUBLE"`
	Credit         float64 `parquet:"name=credit, type=DOUBLE"`
}

// ReturnSnapshot is the parquet layout of the returns extract.
type ReturnSnapshot struct {
	Branch         int64   `parquet:"name=branch, type=INT64"`
	Classification string  `parquet:"name=classification, type=BYTE_ARRAY, convertedtype=UTF8"`
	SupplierCode   string  `parquet:"name=supplier_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Supplier       string  `parquet:"name=supplier, type=BYTE_ARRAY, convertedtype=UTF8"`
	Buyer          string  `parquet:"name=buyer, type=BYTE_ARRAY, convertedtype=UTF8"`
	IssuedAt       *int32  `parquet:"name=issued_at, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL"`
	DueAt          *int32  `parquet:"name=due_at, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL"`
	PaidAt         *int32  `parquet:"name=paid_at, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL"`
	ReturnValue    float64 `parquet:"name=return_value, type=DOUBLE"`
}

// UnifiedSnapshot is the parquet layout of the unified pending view.
type UnifiedSnapshot struct {
	Type           string  `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Classification string  `parquet:"name=classification, type=BYTE_ARRAY, convertedtype=UTF8"`
	Buyer          string  `parquet:"name=buyer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Supplier       string  `parquet:"name=supplier, type=BYTE_ARRAY, convertedtype=UTF8"`
	Branch         int64   `parquet:"name=branch, type=INT64"`
	Status         string  `parquet:"name=unified_status, type=BYTE_ARRAY, convertedtype=UTF8"`
	DaysOverdue    int32   `parquet:"name=days_overdue, type=INT32"`
	DueAt          *int32  `parquet:"name=due_at, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL"`
	PendingAmount  float64 `parquet:"name=pending_amount, type=DOUBLE"`
}

// SnapshotAccruals converts accruals back to their source layout.
func SnapshotAccruals(rows []Accrual) []AccrualSnapshot {
	out := make([]AccrualSnapshot, len(rows))
	for i, a := range rows {
		out[i] = AccrualSnapshot{
			Branch:         a.Branch,
			GrantNumber:    a.GrantNumber,
			Classification: a.Classification,
			Buyer:          a.Buyer,
			Supplier:       a.Supplier,
			Status:         a.Status,
			RegisteredAt:   extract.EpochDays(a.RegisteredAt),
			DueAt:          extract.EpochDays(a.DueAt),
			GrantValue:     a.GrantValue.InexactFloat64(),
			AppliedTotal:   a.AppliedTotal.InexactFloat64(),
			Debit:          a.Debit.InexactFloat64(),
			Credit:         a.Credit.InexactFloat64(),
		}
	}
	return out
}

// SnapshotReturns converts returns back to their source layout.
func SnapshotReturns(rows []Return) []ReturnSnapshot {
	out := make([]ReturnSnapshot, len(rows))
	for i, r := range rows {
		out[i] = ReturnSnapshot{
			Branch:         r.Branch,
			Classification: r.Classification,
			SupplierCode:   r.SupplierCode,
			Supplier:       r.Supplier,
			Buyer:          r.Buyer,
			IssuedAt:       extract.EpochDays(r.IssuedAt),
			DueAt:          extract.EpochDays(r.DueAt),
			PaidAt:         extract.EpochDays(r.PaidAt),
			ReturnValue:    r.ReturnValue.InexactFloat64(),
		}
	}
	return out
}

// WriteUnifiedParquet streams the unified view as a parquet file.
func WriteUnifiedParquet(w io.Writer, rows []Unified) error {
	out := make([]UnifiedSnapshot, len(rows))
	for i, u := range rows {
		out[i] = UnifiedSnapshot{
			Type:           string(u.Type),
			Classification: u.Classification,
			Buyer:          u.Buyer,
			Supplier:       u.Supplier,
			Branch:         u.Branch,
			Status:         string(u.Status),
			DaysOverdue:    int32(u.DaysOverdue),
			DueAt:          extract.EpochDays(u.DueAt),
			PendingAmount:  u.PendingAmount.InexactFloat64(),
		}
	}
	return extract.WriteParquet(w, out)
}

func accrualSnapshotFrame(rows []AccrualSnapshot) *frame.Frame {
	f := frame.New(
		schema.ColBranch, schema.ColGrantNumber, schema.ColClassification, schema.ColBuyer,
		schema.ColSupplier, schema.ColStatus, schema.ColRegisteredAt, schema.ColDueAt,
		schema.ColGrantValue, schema.ColAppliedTotal, schema.ColDebit, schema.ColCredit,
	)
	for _, r := range rows {
		_ = f.Append(
			r.Branch, r.GrantNumber, r.Classification, r.Buyer,
			r.Supplier, r.Status, extract.EpochDate(r.RegisteredAt), extract.EpochDate(r.DueAt),
			decimal.NewFromFloat(r.GrantValue), decimal.NewFromFloat(r.AppliedTotal),
			decimal.NewFromFloat(r.Debit), decimal.NewFromFloat(r.Credit),
		)
	}
	return f
}

func returnSnapshotFrame(rows []ReturnSnapshot) *frame.Frame {
	f := frame.New(
		schema.ColBranch, schema.ColClassification, schema.ColSupplierCode, schema.ColSupplier,
		schema.ColBuyer, schema.ColIssuedAt, schema.ColDueAt, schema.ColPaidAt, schema.ColReturnValue,
	)
	for _, r := range rows {
		_ = f.Append(
			r.Branch, r.Classification, r.SupplierCode, r.Supplier,
			r.Buyer, extract.EpochDate(r.IssuedAt), extract.EpochDate(r.DueAt), extract.EpochDate(r.PaidAt),
			decimal.NewFromFloat(r.ReturnValue),
		)
	}
	return f
}
