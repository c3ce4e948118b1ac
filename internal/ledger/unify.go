package ledger

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// Kind tags the ledger a unified row came from.
type Kind string

const (
	KindAccrual Kind = "ACCRUAL"
	KindReturn  Kind = "RETURN"
)

// Unified is one pending balance in the merged view.
type Unified struct {
	Type           Kind            `json:"type"`
	Classification string          `json:"classification"`
	Buyer          string          `json:"buyer"`
	Supplier       string          `json:"supplier"`
	Branch         int64           `json:"branch"`
	Status         aging.Status    `json:"unified_status"`
	DaysOverdue    int             `json:"days_overdue"`
	DueAt          pgtype.Date     `json:"due_at"`
	PendingAmount  decimal.Decimal `json:"pending_amount"`
}

// UnifiedColumns is the column order of the unified output table.
var UnifiedColumns = []string{
	schema.ColType,
	schema.ColClassification,
	schema.ColBuyer,
	schema.ColSupplier,
	schema.ColBranch,
	schema.ColUnifiedStatus,
	schema.ColDaysOverdue,
	schema.ColDueAt,
	schema.ColPendingAmount,
}

// Unify merges derived accruals with pending returns. Settled returns are
// excluded before projection and every row whose pending amount is not
// positive is dropped. Accruals come first, each stream in input order.
func Unify(accruals []Accrual, returns []Return) []Unified {
	out := make([]Unified, 0, len(accruals)+len(returns))
	for _, a := range accruals {
		out = append(out, Unified{
			Type:           KindAccrual,
			Classification: a.Classification,
			Buyer:          a.Buyer,
			Supplier:       a.Supplier,
			Branch:         a.Branch,
			Status:         a.Aging,
			DaysOverdue:    a.DaysOverdue,
			DueAt:          a.DueAt,
			PendingAmount:  a.Receivable,
		})
	}
	for _, r := range returns {
		if SettlementOf(r.PaidAt) != Pending {
			continue
		}
		out = append(out, Unified{
			Type:           KindReturn,
			Classification: r.Classification,
			Buyer:          r.Buyer,
			Supplier:       r.Supplier,
			Branch:         r.Branch,
			Status:         r.Aging,
			DaysOverdue:    r.DaysOverdue,
			DueAt:          r.DueAt,
			PendingAmount:  r.ReturnValue,
		})
	}

	kept := out[:0]
	for _, u := range out {
		if u.PendingAmount.IsPositive() {
			kept = append(kept, u)
		}
	}
	return kept
}

// Row renders u for output in UnifiedColumns order. The due date becomes
// DD/MM/YYYY text, empty when unknown.
func (u Unified) Row() []any {
	return []any{
		string(u.Type),
		u.Classification,
		u.Buyer,
		u.Supplier,
		u.Branch,
		string(u.Status),
		int64(u.DaysOverdue),
		extract.FormatCell(u.DueAt),
		u.PendingAmount,
	}
}

// UnifiedFrame renders the unified view as an output table.
func UnifiedFrame(rows []Unified) *frame.Frame {
	f := frame.New(UnifiedColumns...)
	for _, u := range rows {
		_ = f.Append(u.Row()...)
	}
	return f
}

// TotalPending sums the pending amount of every row.
func TotalPending(rows []Unified) decimal.Decimal {
	total := decimal.Zero
	for _, u := range rows {
		total = total.Add(u.PendingAmount)
	}
	return total
}
