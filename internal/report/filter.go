package report

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/ledger"
)

// ErrInvalidFilter wraps every filter validation failure.
var ErrInvalidFilter = errors.New("report: invalid filter")

// Branch scopes accepted besides a single branch number.
const (
	BranchAll   = "all"
	BranchGroup = "1-7"
	BranchDepot = "8-9"
)

// Filter narrows the accrual and returns dashboards. Empty lists match
// everything.
type Filter struct {
	Branch          string         `json:"branch,omitempty" validate:"omitempty,branchscope"`
	Classifications []string       `json:"classifications,omitempty" validate:"dive,required"`
	Years           []int          `json:"years,omitempty" validate:"dive,gte=1990,lte=2100"`
	Statuses        []string       `json:"statuses,omitempty" validate:"dive,oneof=ATIVA CANCELADA"`
	Buyers          []string       `json:"buyers,omitempty" validate:"dive,required"`
	Aging           []aging.Status `json:"aging,omitempty" validate:"dive,oneof=OVERDUE NOT_YET_DUE SETTLED"`
	Supplier        string         `json:"supplier,omitempty" validate:"max=120"`
}

// BranchScope is an inclusive branch range. The zero value matches every
// branch.
type BranchScope struct {
	Min int64
	Max int64
}

// All reports whether the scope is unrestricted.
func (b BranchScope) All() bool { return b.Min == 0 && b.Max == 0 }

// Contains reports whether branch falls inside the scope.
func (b BranchScope) Contains(branch int64) bool {
	return b.All() || (branch >= b.Min && branch <= b.Max)
}

// ParseBranchScope reads "all", a "lo-hi" range or a single branch number.
func ParseBranchScope(raw string) (BranchScope, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" || s == BranchAll {
		return BranchScope{}, nil
	}
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		min, errLo := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
		max, errHi := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
		if errLo != nil || errHi != nil || min <= 0 || max < min {
			return BranchScope{}, fmt.Errorf("%w: branch %q", ErrInvalidFilter, raw)
		}
		return BranchScope{Min: min, Max: max}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return BranchScope{}, fmt.Errorf("%w: branch %q", ErrInvalidFilter, raw)
	}
	return BranchScope{Min: n, Max: n}, nil
}

// NewValidator returns a validator that understands branch scopes.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("branchscope", func(fl validator.FieldLevel) bool {
		_, err := ParseBranchScope(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the filter with v and reports the offending fields.
func (f Filter) Validate(v *validator.Validate) error {
	return validateStruct(v, f)
}

func validateStruct(v *validator.Validate, x any) error {
	err := v.Struct(x)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Namespace())
	}
	return fmt.Errorf("%w: %s", ErrInvalidFilter, strings.Join(fields, ", "))
}

// Key renders the filter as a stable cache key fragment.
func (f Filter) Key() string {
	parts := []string{
		"b=" + strings.ToLower(strings.TrimSpace(f.Branch)),
		"c=" + joinSorted(f.Classifications),
		"y=" + joinSortedInts(f.Years),
		"s=" + joinSorted(f.Statuses),
		"u=" + joinSorted(f.Buyers),
		"a=" + joinSortedStatus(f.Aging),
		"f=" + FoldSearch(f.Supplier),
	}
	return strings.Join(parts, ";")
}

type matcher struct {
	branch          BranchScope
	classifications map[string]struct{}
	years           map[int]struct{}
	statuses        map[string]struct{}
	buyers          map[string]struct{}
	aging           map[aging.Status]struct{}
	supplier        string
}

func (f Filter) matcher() (matcher, error) {
	scope, err := ParseBranchScope(f.Branch)
	if err != nil {
		return matcher{}, err
	}
	m := matcher{
		branch:          scope,
		classifications: upperSet(f.Classifications),
		statuses:        upperSet(f.Statuses),
		buyers:          upperSet(f.Buyers),
		supplier:        FoldSearch(f.Supplier),
	}
	if len(f.Years) > 0 {
		m.years = make(map[int]struct{}, len(f.Years))
		for _, y := range f.Years {
			m.years[y] = struct{}{}
		}
	}
	if len(f.Aging) > 0 {
		m.aging = make(map[aging.Status]struct{}, len(f.Aging))
		for _, a := range f.Aging {
			m.aging[a] = struct{}{}
		}
	}
	return m, nil
}

func (m matcher) accrual(a ledger.Accrual) bool {
	return m.branch.Contains(a.Branch) &&
		inUpper(m.classifications, a.Classification) &&
		inUpper(m.statuses, a.Status) &&
		inUpper(m.buyers, a.Buyer) &&
		inYears(m.years, a.RegisteredYear) &&
		inAging(m.aging, a.Aging) &&
		matchesSupplier(m.supplier, a.Supplier)
}

func (m matcher) ret(r ledger.Return) bool {
	year := 0
	if r.IssuedAt.Valid {
		year = r.IssuedAt.Time.Year()
	}
	return m.branch.Contains(r.Branch) &&
		inUpper(m.classifications, r.Classification) &&
		inUpper(m.buyers, r.Buyer) &&
		inYears(m.years, year) &&
		inAging(m.aging, r.Aging) &&
		matchesSupplier(m.supplier, r.Supplier)
}

// FilterAccruals keeps the accruals matching f.
func FilterAccruals(rows []ledger.Accrual, f Filter) ([]ledger.Accrual, error) {
	m, err := f.matcher()
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Accrual, 0, len(rows))
	for _, a := range rows {
		if m.accrual(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

// FilterReturns keeps the returns matching f. Status flags do not apply to
// returns; the year is the issue year.
func FilterReturns(rows []ledger.Return, f Filter) ([]ledger.Return, error) {
	m, err := f.matcher()
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Return, 0, len(rows))
	for _, r := range rows {
		if m.ret(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

var foldCaser = cases.Fold()

// FoldSearch strips accents and case so "São João" matches "SAO JOAO".
func FoldSearch(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return foldCaser.String(out)
}

func matchesSupplier(needle, supplier string) bool {
	return needle == "" || strings.Contains(FoldSearch(supplier), needle)
}

func upperSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToUpper(strings.TrimSpace(v))] = struct{}{}
	}
	return set
}

func inUpper(set map[string]struct{}, v string) bool {
	if set == nil {
		return true
	}
	_, ok := set[strings.ToUpper(strings.TrimSpace(v))]
	return ok
}

func inYears(set map[int]struct{}, year int) bool {
	if set == nil {
		return true
	}
	_, ok := set[year]
	return ok
}

func inAging(set map[aging.Status]struct{}, s aging.Status) bool {
	if set == nil {
		return true
	}
	_, ok := set[s]
	return ok
}

func joinSorted(values []string) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToUpper(strings.TrimSpace(v))
	}
	slices.Sort(out)
	return strings.Join(out, ",")
}

func joinSortedInts(values []int) string {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	out := make([]string, len(sorted))
	for i, v := range sorted {
		out[i] = strconv.Itoa(v)
	}
	return strings.Join(out, ",")
}

func joinSortedStatus(values []aging.Status) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	slices.Sort(out)
	return strings.Join(out, ",")
}
