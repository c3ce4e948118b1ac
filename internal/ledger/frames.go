package ledger

import (
	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// AccrualColumns is the column order of the derived accrual table.
var AccrualColumns = []string{
	schema.ColBranch,
	schema.ColGrantNumber,
	schema.ColClassification,
	schema.ColBuyer,
	schema.ColSupplier,
	schema.ColStatus,
	schema.ColRegisteredAt,
	schema.ColRegisteredYear,
	schema.ColDueAt,
	schema.ColGrantValue,
	schema.ColAppliedTotal,
	schema.ColDebit,
	schema.ColCredit,
	schema.ColReceivable,
	schema.ColToApply,
	schema.ColAgingStatus,
	schema.ColDaysOverdue,
}

// ReturnColumns is the column order of the derived returns table.
var ReturnColumns = []string{
	schema.ColBranch,
	schema.ColClassification,
	schema.ColSupplierCode,
	schema.ColSupplier,
	schema.ColBuyer,
	schema.ColIssuedAt,
	schema.ColDueAt,
	schema.ColPaidAt,
	schema.ColReturnValue,
	schema.ColSettlement,
	schema.ColAgingStatus,
	schema.ColDaysOverdue,
}

// AccrualFrame lays derived accruals out as a table for aggregation. Dates
// stay typed.
func AccrualFrame(rows []Accrual) *frame.Frame {
	f := frame.New(AccrualColumns...)
	for _, a := range rows {
		_ = f.Append(
			a.Branch,
			a.GrantNumber,
			a.Classification,
			a.Buyer,
			a.Supplier,
			a.Status,
			a.RegisteredAt,
			int64(a.RegisteredYear),
			a.DueAt,
			a.GrantValue,
			a.AppliedTotal,
			a.Debit,
			a.Credit,
			a.Receivable,
			a.ToApply,
			string(a.Aging),
			int64(a.DaysOverdue),
		)
	}
	return f
}

// ReturnFrame lays returns out as a table for aggregation.
func ReturnFrame(rows []Return) *frame.Frame {
	f := frame.New(ReturnColumns...)
	for _, r := range rows {
		_ = f.Append(
			r.Branch,
			r.Classification,
			r.SupplierCode,
			r.Supplier,
			r.Buyer,
			r.IssuedAt,
			r.DueAt,
			r.PaidAt,
			r.ReturnValue,
			string(r.Settlement),
			string(r.Aging),
			int64(r.DaysOverdue),
		)
	}
	return f
}
