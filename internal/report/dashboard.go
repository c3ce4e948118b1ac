package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/aggregate"
	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/coerce"
	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	"github.com/RoqueChristian/backup-inteligencia/internal/ledger"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

const (
	topToApplyLimit     = 15
	receivableSinceYear = 2022
)

// ErrUnknownSource reports an aggregate request over an unknown table.
var ErrUnknownSource = errors.New("report: unknown aggregate source")

// Aggregate sources.
const (
	SourceAccrual = "accrual"
	SourceReturns = "returns"
	SourceUnified = "unified"
)

// AccrualKPIs are the headline figures of the accrual dashboard.
type AccrualKPIs struct {
	Grants            int             `json:"grants"`
	GrantValue        decimal.Decimal `json:"grant_value"`
	Receivable        decimal.Decimal `json:"receivable"`
	ToApply           decimal.Decimal `json:"to_apply"`
	OverdueReceivable decimal.Decimal `json:"overdue_receivable"`
}

// YearEvolution compares overdue and not yet due receivable for one
// registration year.
type YearEvolution struct {
	Year      int             `json:"year"`
	Overdue   decimal.Decimal `json:"overdue"`
	NotYetDue decimal.Decimal `json:"not_yet_due"`
}

// AccrualDashboard is the accrual view.
type AccrualDashboard struct {
	AsOf                    string           `json:"as_of"`
	KPIs                    AccrualKPIs      `json:"kpis"`
	TopToApply              aggregate.Result `json:"top_to_apply"`
	OverdueByClassification aggregate.Result `json:"overdue_by_classification"`
	ReceivableByYear        aggregate.Result `json:"receivable_by_year"`
	Evolution               []YearEvolution  `json:"evolution"`
	SupplierByYear          aggregate.Result `json:"supplier_by_year"`
	Warnings                []string         `json:"warnings"`
}

// ReturnsDashboard is the returns view over pending returns.
type ReturnsDashboard struct {
	AsOf         string           `json:"as_of"`
	Pending      int              `json:"pending"`
	PendingValue decimal.Decimal  `json:"pending_value"`
	Summary      aggregate.Result `json:"summary"`
	Warnings     []string         `json:"warnings"`
}

// UnifiedView is the merged pending-balance table.
type UnifiedView struct {
	AsOf  string           `json:"as_of"`
	Total decimal.Decimal  `json:"total_pending"`
	Rows  []ledger.Unified `json:"rows"`
}

// UnifiedSummary groups the unified table by classification, buyer, type
// and status.
type UnifiedSummary struct {
	AsOf     string           `json:"as_of"`
	Total    decimal.Decimal  `json:"total_pending"`
	Summary  aggregate.Result `json:"summary"`
	Warnings []string         `json:"warnings"`
}

// AggregateQuery selects an ad-hoc aggregation over a derived table.
type AggregateQuery struct {
	Source string
	Keys   []string
	Field  string
	Where  *Condition
}

// Condition keeps only the rows whose column equals value.
type Condition struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// ParseCondition reads a COLUMN:VALUE pair. An empty string is no condition.
// The value may itself contain colons.
func ParseCondition(raw string) (*Condition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	column, value, ok := strings.Cut(raw, ":")
	column = strings.TrimSpace(column)
	if !ok || column == "" {
		return nil, fmt.Errorf("%w: where %q", ErrInvalidFilter, raw)
	}
	return &Condition{Column: column, Value: strings.TrimSpace(value)}, nil
}

// AggregateView is an ad-hoc aggregation with the reason it came back empty.
type AggregateView struct {
	Source   string           `json:"source"`
	Where    *Condition       `json:"where,omitempty"`
	Result   aggregate.Result `json:"result"`
	Warnings []string         `json:"warnings"`
}

type sections struct {
	warnings []string
}

// sum aggregates and records a warning instead of failing the dashboard.
func (s *sections) sum(name string, f *frame.Frame, keys []string, field string) aggregate.Result {
	res, err := aggregate.Checked(f, keys, field)
	if err != nil {
		s.warnings = append(s.warnings, fmt.Sprintf("%s: %v", name, err))
		return aggregate.Result{
			KeyColumns: append([]string(nil), keys...),
			Field:      field,
			Column:     aggregate.SumPrefix + field,
			Groups:     []aggregate.Group{},
		}
	}
	return res
}

// sumWhere is the conditional form of sum.
func (s *sections) sumWhere(name string, f *frame.Frame, cond Condition, keys []string, field string) aggregate.Result {
	required := append(append([]string{cond.Column}, keys...), field)
	if missing := f.Missing(required...); len(missing) > 0 {
		s.warnings = append(s.warnings, fmt.Sprintf("%s: %v: %s", name, aggregate.ErrMissingColumn, strings.Join(missing, ", ")))
	}
	return aggregate.SumWhere(f, cond.Column, conditionValue(f, cond), keys, field)
}

// conditionValue types the raw condition value after the column's cells so
// that "1" matches a numeric branch and "05/03/2025" a date.
func conditionValue(f *frame.Frame, cond Condition) any {
	for i := 0; i < f.Len(); i++ {
		switch f.Value(i, cond.Column).(type) {
		case nil:
			continue
		case string:
			return cond.Value
		case pgtype.Date, time.Time:
			if d := coerce.Date(cond.Value); d.Valid {
				return d
			}
			return cond.Value
		default:
			if d, ok := coerce.Decimal(cond.Value); ok {
				return d
			}
			return cond.Value
		}
	}
	return cond.Value
}

func (s *sections) list() []string {
	if s.warnings == nil {
		return []string{}
	}
	return s.warnings
}

// BuildAccrualDashboard computes every accrual section from derived rows.
func BuildAccrualDashboard(rows []ledger.Accrual) AccrualDashboard {
	var s sections
	kpis := AccrualKPIs{
		Grants:            len(rows),
		GrantValue:        decimal.Zero,
		Receivable:        decimal.Zero,
		ToApply:           decimal.Zero,
		OverdueReceivable: decimal.Zero,
	}
	var overdue, recent []ledger.Accrual
	for _, a := range rows {
		kpis.GrantValue = kpis.GrantValue.Add(a.GrantValue)
		kpis.Receivable = kpis.Receivable.Add(a.Receivable)
		kpis.ToApply = kpis.ToApply.Add(a.ToApply)
		if a.Aging == aging.Overdue {
			kpis.OverdueReceivable = kpis.OverdueReceivable.Add(a.Receivable)
		}
		if a.Aging == aging.Overdue && a.Receivable.IsPositive() &&
			strings.EqualFold(a.Status, ledger.StatusActive) {
			overdue = append(overdue, a)
		}
		if a.RegisteredYear >= receivableSinceYear && a.Receivable.IsPositive() {
			recent = append(recent, a)
		}
	}

	all := ledger.AccrualFrame(rows)
	top := s.sum("top_to_apply", all,
		[]string{schema.ColClassification, schema.ColBuyer}, schema.ColToApply)
	overdueByClass := s.sum("overdue_by_classification", ledger.AccrualFrame(overdue),
		[]string{schema.ColClassification}, schema.ColReceivable)
	byYear := s.sum("receivable_by_year", ledger.AccrualFrame(recent),
		[]string{schema.ColRegisteredYear, schema.ColClassification}, schema.ColReceivable)
	supplierYear := s.sum("supplier_by_year", all,
		[]string{schema.ColSupplier, schema.ColRegisteredYear}, schema.ColReceivable)

	return AccrualDashboard{
		KPIs:                    kpis,
		TopToApply:              top.SortBySumDesc().Top(topToApplyLimit),
		OverdueByClassification: overdueByClass.SortBySumDesc(),
		ReceivableByYear:        byYear.SortByKeys(),
		Evolution:               evolution(rows),
		SupplierByYear:          supplierYear.Where(func(g aggregate.Group) bool { return !g.Sum.IsZero() }).SortBySumDesc(),
		Warnings:                s.list(),
	}
}

// evolution sums receivable per registration year split by aging status.
// Rows without a registration year are left out.
func evolution(rows []ledger.Accrual) []YearEvolution {
	byYear := make(map[int]*YearEvolution)
	for _, a := range rows {
		if a.RegisteredYear == 0 {
			continue
		}
		e, ok := byYear[a.RegisteredYear]
		if !ok {
			e = &YearEvolution{Year: a.RegisteredYear, Overdue: decimal.Zero, NotYetDue: decimal.Zero}
			byYear[a.RegisteredYear] = e
		}
		switch a.Aging {
		case aging.Overdue:
			e.Overdue = e.Overdue.Add(a.Receivable)
		case aging.NotYetDue:
			e.NotYetDue = e.NotYetDue.Add(a.Receivable)
		}
	}
	out := make([]YearEvolution, 0, len(byYear))
	for _, e := range byYear {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// BuildReturnsDashboard summarizes pending returns.
func BuildReturnsDashboard(rows []ledger.Return) ReturnsDashboard {
	var s sections
	pending := make([]ledger.Return, 0, len(rows))
	value := decimal.Zero
	for _, r := range rows {
		if r.Settlement != ledger.Pending {
			continue
		}
		pending = append(pending, r)
		value = value.Add(r.ReturnValue)
	}
	summary := s.sum("summary", ledger.ReturnFrame(pending),
		[]string{schema.ColBranch, schema.ColClassification, schema.ColSupplier, schema.ColBuyer},
		schema.ColReturnValue)
	return ReturnsDashboard{
		Pending:      len(pending),
		PendingValue: value,
		Summary:      summary.SortBySumDesc(),
		Warnings:     s.list(),
	}
}

// BuildUnifiedSummary groups unified rows by classification, buyer, type and
// status, largest pending amount first.
func BuildUnifiedSummary(rows []ledger.Unified) UnifiedSummary {
	var s sections
	summary := s.sum("summary", ledger.UnifiedFrame(rows),
		[]string{schema.ColClassification, schema.ColBuyer, schema.ColType, schema.ColUnifiedStatus},
		schema.ColPendingAmount)
	return UnifiedSummary{
		Total:    ledger.TotalPending(rows),
		Summary:  summary.SortBySumDesc(),
		Warnings: s.list(),
	}
}

// BuildAggregate groups one of the derived tables by keys and sums field,
// optionally over the rows matching q.Where. Missing columns yield an empty
// result with a warning.
func BuildAggregate(q AggregateQuery, accruals []ledger.Accrual, returns []ledger.Return) (AggregateView, error) {
	var f *frame.Frame
	switch q.Source {
	case SourceAccrual:
		f = ledger.AccrualFrame(accruals)
	case SourceReturns:
		f = ledger.ReturnFrame(returns)
	case SourceUnified:
		f = ledger.UnifiedFrame(ledger.Unify(accruals, returns))
	default:
		return AggregateView{}, fmt.Errorf("%w: %q", ErrUnknownSource, q.Source)
	}
	var s sections
	view := AggregateView{Source: q.Source, Where: q.Where}
	if q.Where != nil {
		view.Result = s.sumWhere("aggregate", f, *q.Where, q.Keys, q.Field)
	} else {
		view.Result = s.sum("aggregate", f, q.Keys, q.Field)
	}
	view.Warnings = s.list()
	return view, nil
}
