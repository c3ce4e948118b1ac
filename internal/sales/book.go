package sales

import (
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/aggregate"
	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// LineColumns is the column order of the sales table.
var LineColumns = []string{
	schema.ColBranch,
	schema.ColMovedAt,
	schema.ColYear,
	schema.ColMonth,
	schema.ColOrderNumber,
	schema.ColSellerCode,
	schema.ColSeller,
	schema.ColSupervisorCode,
	schema.ColCustomerCode,
	schema.ColCustomer,
	schema.ColProductCode,
	schema.ColProduct,
	schema.ColCategory,
	schema.ColSection,
	schema.ColQuantity,
	schema.ColNetValue,
	schema.ColOrigin,
}

// Frame lays lines out as a table for aggregation. Row i is lines[i].
func Frame(lines []Line) *frame.Frame {
	f := frame.New(LineColumns...)
	for _, l := range lines {
		_ = f.Append(
			l.Branch, l.MovedAt, l.Year, l.Month, l.OrderNumber,
			l.SellerCode, l.Seller, l.SupervisorCode,
			l.CustomerCode, l.Customer,
			l.ProductCode, l.Product, l.Category, l.Section,
			l.Quantity, l.NetValue, l.Origin,
		)
	}
	return f
}

// Book is a seller-filtered sales history. Today is the latest movement of
// the whole extract, whatever the filter.
type Book struct {
	lines     []Line
	frame     *frame.Frame
	today     pgtype.Date
	sellers   []string
	sentinels schema.Sentinels
}

// NewBook filters lines by f and fixes the reference date.
func NewBook(lines []Line, f Filter, sentinels schema.Sentinels) *Book {
	b := &Book{sentinels: sentinels}
	sellers := map[string]struct{}{}
	for _, l := range lines {
		if l.MovedAt.Valid && (!b.today.Valid || l.MovedAt.Time.After(b.today.Time)) {
			b.today = l.MovedAt
		}
		sellers[l.Seller] = struct{}{}
	}
	for s := range sellers {
		b.sellers = append(b.sellers, s)
	}
	sort.Strings(b.sellers)

	all := Frame(lines)
	want := map[string]struct{}{}
	for _, s := range f.Normalized().Sellers {
		want[s] = struct{}{}
	}
	if len(want) == 0 {
		b.lines, b.frame = lines, all
		return b
	}
	keep := func(i int) bool {
		_, ok := want[lines[i].Seller]
		return ok
	}
	b.frame = all.Filter(keep)
	for i, l := range lines {
		if keep(i) {
			b.lines = append(b.lines, l)
		}
	}
	return b
}

// Today is the reference date; invalid when no line carries a date.
func (b *Book) Today() pgtype.Date { return b.today }

// Len returns the number of lines after filtering.
func (b *Book) Len() int { return len(b.lines) }

// Year is the year of the reference date, zero without one.
func (b *Book) Year() int {
	if !b.today.Valid {
		return 0
	}
	return b.today.Time.Year()
}

// Dashboard computes the portfolio KPIs and revenue breakdowns.
func (b *Book) Dashboard() Dashboard {
	customers := map[int64]struct{}{}
	skus := map[string]struct{}{}
	for _, l := range b.lines {
		customers[l.CustomerCode] = struct{}{}
		skus[l.Product] = struct{}{}
	}
	kpis := KPIs{
		NetRevenue:          aggregate.Total(b.frame, schema.ColNetValue),
		ActiveCustomers:     len(customers),
		ActiveSKUs:          len(skus),
		YearRevenue:         decimal.Zero,
		PreviousYearRevenue: decimal.Zero,
		YoYPercent:          decimal.Zero,
	}
	if year := b.Year(); year > 0 {
		kpis.Year = year
		kpis.YearRevenue = b.revenueIn(year)
		kpis.PreviousYearRevenue = b.revenueIn(year - 1)
		kpis.YoYPercent = growth(kpis.YearRevenue, kpis.PreviousYearRevenue)
	}
	dated := b.frame.Filter(func(i int) bool { return b.lines[i].Year > 0 })
	return Dashboard{
		Today:           formatDay(b.today),
		KPIs:            kpis,
		RevenueByMonth:  aggregate.Sum(dated, []string{schema.ColYear, schema.ColMonth}, schema.ColNetValue).SortByKeys(),
		TopCategories:   aggregate.Sum(b.frame, []string{schema.ColCategory}, schema.ColNetValue).SortBySumDesc().Top(TopCategoryLimit),
		RevenueByOrigin: aggregate.Sum(b.frame, []string{schema.ColOrigin}, schema.ColNetValue).SortBySumDesc(),
		Sellers:         append([]string{}, b.sellers...),
	}
}

func (b *Book) revenueIn(year int) decimal.Decimal {
	return aggregate.SumWhere(b.frame, schema.ColYear, year, nil, schema.ColNetValue).Total()
}

func growth(current, previous decimal.Decimal) decimal.Decimal {
	if !previous.IsPositive() {
		return decimal.Zero
	}
	return current.Div(previous).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Round(1)
}

// Customers lists the book's customers ordered by name then code.
func (b *Book) Customers() []CustomerRef {
	seen := map[int64]struct{}{}
	out := []CustomerRef{}
	for _, l := range b.lines {
		if _, ok := seen[l.CustomerCode]; ok {
			continue
		}
		seen[l.CustomerCode] = struct{}{}
		out = append(out, CustomerRef{Code: l.CustomerCode, Name: l.Customer})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// customer returns the customer's lines and the matching table rows.
func (b *Book) customer(code int64) (CustomerRef, []Line, *frame.Frame, error) {
	var lines []Line
	rows := make(map[int]struct{})
	for i, l := range b.lines {
		if l.CustomerCode == code {
			lines = append(lines, l)
			rows[i] = struct{}{}
		}
	}
	if len(lines) == 0 {
		return CustomerRef{}, nil, nil, fmt.Errorf("%w: %d", ErrCustomerNotFound, code)
	}
	f := b.frame.Filter(func(i int) bool {
		_, ok := rows[i]
		return ok
	})
	return CustomerRef{Code: code, Name: lines[0].Customer}, lines, f, nil
}

// Profile computes the lifetime view of one customer. Items are the
// customer's top products by revenue; one is ACTIVE when last bought in the
// reference year.
func (b *Book) Profile(code int64) (Profile, error) {
	ref, lines, f, err := b.customer(code)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{CustomerRef: ref, LTV: aggregate.Total(f, schema.ColNetValue), AverageTicket: decimal.Zero}

	orders := map[int64]struct{}{}
	type itemKey struct{ product, category string }
	lastBought := map[itemKey]pgtype.Date{}
	for _, l := range lines {
		orders[l.OrderNumber] = struct{}{}
		if later(l.MovedAt, p.LastPurchase) {
			p.LastPurchase = l.MovedAt
			p.Seller = l.Seller
		}
		k := itemKey{l.Product, l.Category}
		if later(l.MovedAt, lastBought[k]) {
			lastBought[k] = l.MovedAt
		}
	}
	if p.Seller == "" {
		p.Seller = lines[0].Seller
	}
	p.Orders = len(orders)
	if p.Orders > 0 {
		p.AverageTicket = p.LTV.Div(decimal.NewFromInt(int64(p.Orders))).Round(2)
	}
	if b.today.Valid {
		p.InactiveDays, _ = aging.DayDifference(b.today.Time, p.LastPurchase)
	}

	keys := []string{schema.ColProduct, schema.ColCategory}
	totals := aggregate.Sum(f, keys, schema.ColNetValue).SortBySumDesc().Top(ProfileItemLimit)
	quantities := aggregate.Sum(f, keys, schema.ColQuantity)
	p.Items = make([]ItemSummary, 0, len(totals.Groups))
	for _, g := range totals.Groups {
		product, category := keyText(g.Keys[0]), keyText(g.Keys[1])
		qty, _ := quantities.Lookup(g.Keys...)
		last := lastBought[itemKey{product, category}]
		status := StatusChurn
		if last.Valid && last.Time.Year() == b.Year() {
			status = StatusActive
		}
		p.Items = append(p.Items, ItemSummary{
			Product:      product,
			Category:     category,
			Quantity:     qty,
			Total:        g.Sum,
			LastPurchase: last,
			Status:       status,
		})
	}

	positive := f.Filter(func(i int) bool { return lines[i].NetValue.IsPositive() })
	p.Share = aggregate.Sum(positive, []string{schema.ColCategory, schema.ColSection}, schema.ColNetValue).SortBySumDesc()
	return p, nil
}

// CrossSell lists the categories of the book the customer never bought,
// each with the book's best selling product in it.
func (b *Book) CrossSell(code int64) (CrossSell, error) {
	ref, lines, _, err := b.customer(code)
	if err != nil {
		return CrossSell{}, err
	}
	bought := map[string]struct{}{}
	for _, l := range lines {
		bought[l.Category] = struct{}{}
	}

	best := map[string]Suggestion{}
	byProduct := aggregate.Sum(b.frame, []string{schema.ColCategory, schema.ColProduct}, schema.ColNetValue)
	for _, g := range byProduct.Groups {
		category, product := keyText(g.Keys[0]), keyText(g.Keys[1])
		cur, ok := best[category]
		if !ok || g.Sum.GreaterThan(cur.Revenue) || (g.Sum.Equal(cur.Revenue) && product < cur.Product) {
			best[category] = Suggestion{Category: category, Product: product, Revenue: g.Sum}
		}
	}

	out := CrossSell{CustomerRef: ref, TotalCategories: len(best), Categories: []string{}, Suggestions: []Suggestion{}}
	for c := range bought {
		if c != b.sentinels.Unregistered {
			out.Categories = append(out.Categories, c)
		}
	}
	sort.Strings(out.Categories)

	var gap []string
	for c := range best {
		if _, ok := bought[c]; !ok {
			gap = append(gap, c)
		}
	}
	sort.Strings(gap)
	out.Complete = len(gap) == 0
	for _, c := range gap {
		if len(out.Suggestions) == SuggestionLimit {
			break
		}
		out.Suggestions = append(out.Suggestions, best[c])
	}
	return out, nil
}

// MixErosion ranks the customers who bought from fewer categories in the
// reference year than in the year before. Only customers active in both
// years are compared; customers gone entirely show up as churned items.
func (b *Book) MixErosion() []Erosion {
	year := b.Year()
	out := []Erosion{}
	if year == 0 {
		return out
	}
	type mix struct {
		name     string
		previous map[string]struct{}
		current  map[string]struct{}
	}
	byCustomer := map[int64]*mix{}
	for _, l := range b.lines {
		if l.Year != year && l.Year != year-1 {
			continue
		}
		m, ok := byCustomer[l.CustomerCode]
		if !ok {
			m = &mix{name: l.Customer, previous: map[string]struct{}{}, current: map[string]struct{}{}}
			byCustomer[l.CustomerCode] = m
		}
		if l.Year == year {
			m.current[l.Category] = struct{}{}
		} else {
			m.previous[l.Category] = struct{}{}
		}
	}
	for code, m := range byCustomer {
		if len(m.previous) == 0 || len(m.current) == 0 {
			continue
		}
		if lost := len(m.previous) - len(m.current); lost > 0 {
			out = append(out, Erosion{
				CustomerRef:        CustomerRef{Code: code, Name: m.name},
				PreviousCategories: len(m.previous),
				CurrentCategories:  len(m.current),
				Lost:               lost,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lost != out[j].Lost {
			return out[i].Lost > out[j].Lost
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > ErosionLimit {
		out = out[:ErosionLimit]
	}
	return out
}

type period struct{ year, month int }

func (p period) String() string { return fmt.Sprintf("%02d/%d", p.month, p.year) }

// ItemHistory pivots the customer's quantities by product and month, largest
// total first. limit caps the rows returned; zero returns them all. Lines
// without a movement date are left out.
func (b *Book) ItemHistory(code int64, limit int) (ItemHistory, error) {
	ref, lines, f, err := b.customer(code)
	if err != nil {
		return ItemHistory{}, err
	}
	dated := f.Filter(func(i int) bool { return lines[i].Year > 0 })
	pivot := aggregate.Sum(dated, []string{schema.ColProduct, schema.ColYear, schema.ColMonth}, schema.ColQuantity)

	seen := map[period]struct{}{}
	cells := map[string]map[period]decimal.Decimal{}
	for _, g := range pivot.Groups {
		product := keyText(g.Keys[0])
		p := period{year: keyInt(g.Keys[1]), month: keyInt(g.Keys[2])}
		seen[p] = struct{}{}
		if cells[product] == nil {
			cells[product] = map[period]decimal.Decimal{}
		}
		cells[product][p] = g.Sum
	}
	periods := make([]period, 0, len(seen))
	for p := range seen {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].year != periods[j].year {
			return periods[i].year < periods[j].year
		}
		return periods[i].month < periods[j].month
	})

	h := ItemHistory{CustomerRef: ref, Periods: make([]string, len(periods)), Rows: []HistoryRow{}}
	for i, p := range periods {
		h.Periods[i] = p.String()
	}
	for product, byPeriod := range cells {
		row := HistoryRow{Product: product, Quantities: make([]decimal.Decimal, len(periods)), Total: decimal.Zero}
		for i, p := range periods {
			row.Quantities[i] = byPeriod[p]
			row.Total = row.Total.Add(byPeriod[p])
		}
		h.Rows = append(h.Rows, row)
	}
	sort.Slice(h.Rows, func(i, j int) bool {
		if !h.Rows[i].Total.Equal(h.Rows[j].Total) {
			return h.Rows[i].Total.GreaterThan(h.Rows[j].Total)
		}
		return h.Rows[i].Product < h.Rows[j].Product
	})
	h.TotalRows = len(h.Rows)
	if limit > 0 && len(h.Rows) > limit {
		h.Rows = h.Rows[:limit]
	}
	return h, nil
}

// HistoryFrame lays the pivot out as PRODUCT, one column per period, TOTAL.
func HistoryFrame(h ItemHistory) *frame.Frame {
	cols := append(append([]string{schema.ColProduct}, h.Periods...), schema.ColTotal)
	f := frame.New(cols...)
	for _, r := range h.Rows {
		values := make([]any, 0, len(cols))
		values = append(values, r.Product)
		for _, q := range r.Quantities {
			values = append(values, q)
		}
		_ = f.Append(append(values, r.Total)...)
	}
	return f
}

func later(d, than pgtype.Date) bool {
	return d.Valid && (!than.Valid || d.Time.After(than.Time))
}

func keyText(v any) string {
	s, _ := v.(string)
	return s
}

func keyInt(v any) int {
	n, _ := v.(int)
	return n
}

func formatDay(d pgtype.Date) string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(time.DateOnly)
}
