// Package ledger turns raw accrual and returns extracts into typed records,
// derives their balances and aging, and merges both streams into the unified
// pending-balance view.
package ledger

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
)

// ErrSourceNotFound is returned when an extract is absent. Reports treat it
// as fatal and produce no output.
var ErrSourceNotFound = extract.ErrSourceNotFound

// Grant status flags carried by the accrual extract.
const (
	StatusActive    = "ATIVA"
	StatusCancelled = "CANCELADA"
)

// Accrual is one supplier grant. Receivable, ToApply, Aging and DaysOverdue
// are derived and recomputed on every run.
type Accrual struct {
	Branch         int64           `json:"branch"`
	GrantNumber    string          `json:"grant_number"`
	Classification string          `json:"classification"`
	Buyer          string          `json:"buyer"`
	Supplier       string          `json:"supplier"`
	Status         string          `json:"status"`
	RegisteredAt   pgtype.Date     `json:"registered_at"`
	RegisteredYear int             `json:"registered_year"`
	DueAt          pgtype.Date     `json:"due_at"`
	GrantValue     decimal.Decimal `json:"grant_value"`
	AppliedTotal   decimal.Decimal `json:"applied_total"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`

	Receivable  decimal.Decimal `json:"receivable"`
	ToApply     decimal.Decimal `json:"to_apply"`
	Aging       aging.Status    `json:"aging_status"`
	DaysOverdue int             `json:"days_overdue"`
}

// Settlement is the payment state of a return.
type Settlement string

const (
	Pending Settlement = "PENDING"
	Paid    Settlement = "SETTLED"
)

// Return is one supplier return. A payment date alone marks it settled.
type Return struct {
	Branch         int64           `json:"branch"`
	Classification string          `json:"classification"`
	SupplierCode   string          `json:"supplier_code"`
	Supplier       string          `json:"supplier"`
	Buyer          string          `json:"buyer"`
	IssuedAt       pgtype.Date     `json:"issued_at"`
	DueAt          pgtype.Date     `json:"due_at"`
	PaidAt         pgtype.Date     `json:"paid_at"`
	ReturnValue    decimal.Decimal `json:"return_value"`

	Settlement  Settlement   `json:"settlement"`
	Aging       aging.Status `json:"aging_status"`
	DaysOverdue int          `json:"days_overdue"`
}

// SettlementOf derives the payment state from the payment date.
func SettlementOf(paid pgtype.Date) Settlement {
	if paid.Valid {
		return Paid
	}
	return Pending
}
