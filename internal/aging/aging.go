// Package aging classifies balances as overdue, not yet due or settled
// relative to an evaluation date.
package aging

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Status is the aging classification of a balance.
type Status string

const (
	Overdue   Status = "OVERDUE"
	NotYetDue Status = "NOT_YET_DUE"
	Settled   Status = "SETTLED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case Overdue, NotYetDue, Settled:
		return true
	}
	return false
}

// Result pairs a status with the overdue day count. DaysOverdue is zero
// unless Status is Overdue.
type Result struct {
	Status      Status `json:"status"`
	DaysOverdue int    `json:"days_overdue"`
}

// Clock supplies the evaluation date.
type Clock func() time.Time

// SystemClock evaluates against the wall clock.
func SystemClock() time.Time { return time.Now() }

// Fixed returns a clock pinned to t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// DayDifference returns the whole calendar days from due to asOf; positive
// means asOf is after due. ok is false for a null due date.
func DayDifference(asOf time.Time, due pgtype.Date) (int, bool) {
	if !due.Valid {
		return 0, false
	}
	a := civil(asOf)
	d := civil(due.Time)
	return int(a.Sub(d).Hours() / 24), true
}

// Classify evaluates an accrual balance. Precedence: a zero receivable is
// Settled whatever the date; a positive receivable past its due date is
// Overdue; everything else, including a null due date, is NotYetDue.
func Classify(receivable decimal.Decimal, due pgtype.Date, asOf time.Time) Result {
	if receivable.IsZero() {
		return Result{Status: Settled}
	}
	diff, ok := DayDifference(asOf, due)
	if ok && diff > 0 && receivable.IsPositive() {
		return Result{Status: Overdue, DaysOverdue: diff}
	}
	return Result{Status: NotYetDue}
}

// ClassifyReturn evaluates a returns balance where settlement is decided by
// the presence of a payment date, checked before the due date.
func ClassifyReturn(paid, due pgtype.Date, asOf time.Time) Result {
	if paid.Valid {
		return Result{Status: Settled}
	}
	diff, ok := DayDifference(asOf, due)
	if ok && diff > 0 {
		return Result{Status: Overdue, DaysOverdue: diff}
	}
	return Result{Status: NotYetDue}
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
