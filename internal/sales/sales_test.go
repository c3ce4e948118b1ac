package sales

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
	_ "github.com/RoqueChristian/backup-inteligencia/internal/testing/guard"
)

func day(y int, m time.Month, d int) pgtype.Date {
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, got.Equal(amt(want)), "want %s got %s %v", want, got, msgAndArgs)
}

type product struct{ name, category, section string }

var (
	dipirona = product{"DIPIRONA", "ANALGESICO", "MEDICAMENTO"}
	shampoo  = product{"SHAMPOO", "HIGIENE", "PERFUMARIA"}
	protetor = product{"PROTETOR", "DERMO", "PERFUMARIA"}
	vitamina = product{"VITAMINA C", "SUPLEMENTO", "MEDICAMENTO"}
)

func line(moved pgtype.Date, order int64, seller string, customer int64, name string, p product, qty, value string) Line {
	l := Line{
		Branch:       1,
		MovedAt:      moved,
		OrderNumber:  order,
		Seller:       seller,
		CustomerCode: customer,
		Customer:     name,
		Product:      p.name,
		Category:     p.category,
		Section:      p.section,
		Quantity:     amt(qty),
		NetValue:     amt(value),
		Origin:       "BALCAO",
	}
	if moved.Valid {
		l.Year, l.Month = moved.Time.Year(), int(moved.Time.Month())
	}
	return l
}

func fixture() []Line {
	return []Line{
		line(day(2024, 3, 10), 1, "CARLOS", 100, "FARMACIA SOL", dipirona, "10", "100"),
		line(day(2024, 3, 10), 1, "CARLOS", 100, "FARMACIA SOL", shampoo, "5", "50"),
		line(day(2025, 2, 5), 2, "CARLOS", 100, "FARMACIA SOL", dipirona, "4", "40"),
		line(day(2025, 1, 20), 3, "BIA", 200, "DROGARIA LUA", protetor, "2", "300"),
		line(day(2024, 6, 1), 4, "BIA", 200, "DROGARIA LUA", vitamina, "1", "60"),
		line(day(2024, 6, 1), 4, "BIA", 200, "DROGARIA LUA", protetor, "1", "150"),
		line(day(2025, 3, 1), 5, "CARLOS", 100, "FARMACIA SOL", shampoo, "-3", "-30"),
	}
}

func book(f Filter) *Book {
	return NewBook(fixture(), f, schema.Default().Sentinels)
}

func TestDashboard(t *testing.T) {
	d := book(Filter{}).Dashboard()

	require.Equal(t, "2025-03-01", d.Today)
	requireAmount(t, "670", d.KPIs.NetRevenue)
	require.Equal(t, 2, d.KPIs.ActiveCustomers)
	require.Equal(t, 4, d.KPIs.ActiveSKUs)
	require.Equal(t, 2025, d.KPIs.Year)
	requireAmount(t, "310", d.KPIs.YearRevenue)
	requireAmount(t, "360", d.KPIs.PreviousYearRevenue)
	requireAmount(t, "-13.9", d.KPIs.YoYPercent)
	require.Equal(t, []string{"BIA", "CARLOS"}, d.Sellers)

	require.Len(t, d.RevenueByMonth.Groups, 5)
	require.Equal(t, []any{2024, 3}, d.RevenueByMonth.Groups[0].Keys)
	requireAmount(t, "150", d.RevenueByMonth.Groups[0].Sum)
	require.Equal(t, []any{2025, 3}, d.RevenueByMonth.Groups[4].Keys)
	requireAmount(t, "-30", d.RevenueByMonth.Groups[4].Sum)

	require.Len(t, d.TopCategories.Groups, 4)
	require.Equal(t, []any{"DERMO"}, d.TopCategories.Groups[0].Keys)
	requireAmount(t, "450", d.TopCategories.Groups[0].Sum)
	require.Equal(t, []any{"HIGIENE"}, d.TopCategories.Groups[3].Keys)
	requireAmount(t, "20", d.TopCategories.Groups[3].Sum)

	require.Len(t, d.RevenueByOrigin.Groups, 1)
	requireAmount(t, "670", d.RevenueByOrigin.Groups[0].Sum)
}

func TestDashboardSellerFilter(t *testing.T) {
	b := book(Filter{Sellers: []string{" carlos "}})
	d := b.Dashboard()

	require.Equal(t, 4, b.Len())
	require.Equal(t, "2025-03-01", d.Today)
	requireAmount(t, "160", d.KPIs.NetRevenue)
	require.Equal(t, 1, d.KPIs.ActiveCustomers)
	require.Equal(t, []string{"BIA", "CARLOS"}, d.Sellers, "seller choices ignore the filter")

	empty := NewBook(fixture(), Filter{Sellers: []string{"NOBODY"}}, schema.Default().Sentinels)
	require.Zero(t, empty.Len())
	require.Equal(t, "2025-03-01", empty.Dashboard().Today, "reference date comes from the whole extract")
	require.True(t, empty.Dashboard().KPIs.NetRevenue.IsZero())
}

func TestDashboardWithoutPreviousYear(t *testing.T) {
	lines := []Line{line(day(2025, 1, 2), 1, "BIA", 1, "A", dipirona, "1", "10")}
	d := NewBook(lines, Filter{}, schema.Default().Sentinels).Dashboard()
	requireAmount(t, "10", d.KPIs.YearRevenue)
	require.True(t, d.KPIs.PreviousYearRevenue.IsZero())
	require.True(t, d.KPIs.YoYPercent.IsZero())

	d = NewBook(nil, Filter{}, schema.Default().Sentinels).Dashboard()
	require.Empty(t, d.Today)
	require.Zero(t, d.KPIs.Year)
	require.Empty(t, d.RevenueByMonth.Groups)
}

func TestCustomers(t *testing.T) {
	got := book(Filter{}).Customers()
	require.Equal(t, []CustomerRef{{Code: 200, Name: "DROGARIA LUA"}, {Code: 100, Name: "FARMACIA SOL"}}, got)

	got = book(Filter{Sellers: []string{"BIA"}}).Customers()
	require.Equal(t, []CustomerRef{{Code: 200, Name: "DROGARIA LUA"}}, got)
}

func TestProfile(t *testing.T) {
	p, err := book(Filter{}).Profile(200)
	require.NoError(t, err)

	require.Equal(t, CustomerRef{Code: 200, Name: "DROGARIA LUA"}, p.CustomerRef)
	require.Equal(t, "BIA", p.Seller)
	requireAmount(t, "510", p.LTV)
	require.Equal(t, 2, p.Orders)
	requireAmount(t, "255", p.AverageTicket)
	require.Equal(t, day(2025, 1, 20), p.LastPurchase)
	require.Equal(t, 40, p.InactiveDays)

	require.Len(t, p.Items, 2)
	require.Equal(t, "PROTETOR", p.Items[0].Product)
	requireAmount(t, "3", p.Items[0].Quantity)
	requireAmount(t, "450", p.Items[0].Total)
	require.Equal(t, StatusActive, p.Items[0].Status)
	require.Equal(t, "VITAMINA C", p.Items[1].Product)
	require.Equal(t, day(2024, 6, 1), p.Items[1].LastPurchase)
	require.Equal(t, StatusChurn, p.Items[1].Status)

	require.Len(t, p.Share.Groups, 2)
	require.Equal(t, []any{"DERMO", "PERFUMARIA"}, p.Share.Groups[0].Keys)
}

func TestProfileShareSkipsReturns(t *testing.T) {
	p, err := book(Filter{}).Profile(100)
	require.NoError(t, err)

	requireAmount(t, "160", p.LTV)
	require.Equal(t, 3, p.Orders)
	requireAmount(t, "53.33", p.AverageTicket)
	require.Equal(t, 0, p.InactiveDays)

	higiene, ok := p.Share.Lookup("HIGIENE", "PERFUMARIA")
	require.True(t, ok)
	requireAmount(t, "50", higiene, "the -30 return stays out of the share")
	requireAmount(t, "190", p.Share.Total())
}

func TestProfileUnknownCustomer(t *testing.T) {
	_, err := book(Filter{}).Profile(999)
	require.True(t, errors.Is(err, ErrCustomerNotFound))

	_, err = book(Filter{Sellers: []string{"BIA"}}).Profile(100)
	require.True(t, errors.Is(err, ErrCustomerNotFound), "customer outside the seller filter")
}

func TestCrossSell(t *testing.T) {
	c, err := book(Filter{}).CrossSell(100)
	require.NoError(t, err)

	require.Equal(t, []string{"ANALGESICO", "HIGIENE"}, c.Categories)
	require.Equal(t, 4, c.TotalCategories)
	require.False(t, c.Complete)
	require.Equal(t, []Suggestion{
		{Category: "DERMO", Product: "PROTETOR", Revenue: c.Suggestions[0].Revenue},
		{Category: "SUPLEMENTO", Product: "VITAMINA C", Revenue: c.Suggestions[1].Revenue},
	}, c.Suggestions)
	requireAmount(t, "450", c.Suggestions[0].Revenue)
}

func TestCrossSellCompleteAndUnregistered(t *testing.T) {
	sentinels := schema.Default().Sentinels
	unknown := product{sentinels.Unregistered, sentinels.Unregistered, sentinels.Unregistered}
	lines := []Line{
		line(day(2025, 1, 2), 1, "BIA", 1, "A", dipirona, "1", "10"),
		line(day(2025, 1, 2), 1, "BIA", 1, "A", unknown, "1", "5"),
	}
	c, err := NewBook(lines, Filter{}, sentinels).CrossSell(1)
	require.NoError(t, err)
	require.Equal(t, []string{"ANALGESICO"}, c.Categories)
	require.True(t, c.Complete)
	require.Empty(t, c.Suggestions)
}

func TestCrossSellSuggestionLimitAndTies(t *testing.T) {
	lines := []Line{line(day(2025, 1, 2), 1, "BIA", 1, "A", dipirona, "1", "10")}
	for i := 0; i < SuggestionLimit+2; i++ {
		cat := string(rune('A'+i)) + "CAT"
		lines = append(lines,
			line(day(2025, 1, 2), 2, "BIA", 2, "B", product{"ZETA", cat, "S"}, "1", "7"),
			line(day(2025, 1, 2), 2, "BIA", 2, "B", product{"ALFA", cat, "S"}, "1", "7"),
		)
	}
	c, err := NewBook(lines, Filter{}, schema.Default().Sentinels).CrossSell(1)
	require.NoError(t, err)
	require.Len(t, c.Suggestions, SuggestionLimit)
	require.Equal(t, "ACAT", c.Suggestions[0].Category)
	require.Equal(t, "ALFA", c.Suggestions[0].Product, "ties go to the first name")
}

func TestMixErosion(t *testing.T) {
	got := book(Filter{}).MixErosion()
	require.Equal(t, []Erosion{{
		CustomerRef:        CustomerRef{Code: 200, Name: "DROGARIA LUA"},
		PreviousCategories: 2,
		CurrentCategories:  1,
		Lost:               1,
	}}, got)

	lines := append(fixture(), line(day(2024, 5, 5), 9, "BIA", 300, "GONE", dipirona, "1", "1"))
	got = NewBook(lines, Filter{}, schema.Default().Sentinels).MixErosion()
	require.Len(t, got, 1, "customers absent from the current year are not compared")
}

func TestItemHistory(t *testing.T) {
	lines := append(fixture(), line(pgtype.Date{}, 3, "BIA", 200, "DROGARIA LUA", protetor, "9", "0"))
	b := NewBook(lines, Filter{}, schema.Default().Sentinels)

	h, err := b.ItemHistory(200, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"06/2024", "01/2025"}, h.Periods)
	require.Equal(t, 2, h.TotalRows)
	require.Equal(t, "PROTETOR", h.Rows[0].Product)
	requireAmount(t, "1", h.Rows[0].Quantities[0])
	requireAmount(t, "2", h.Rows[0].Quantities[1])
	requireAmount(t, "3", h.Rows[0].Total, "undated lines stay out")
	require.Equal(t, "VITAMINA C", h.Rows[1].Product)
	require.True(t, h.Rows[1].Quantities[1].IsZero())

	f := HistoryFrame(h)
	require.Equal(t, []string{schema.ColProduct, "06/2024", "01/2025", schema.ColTotal}, f.Columns())
	require.Equal(t, 2, f.Len())

	h, err = b.ItemHistory(200, 1)
	require.NoError(t, err)
	require.Len(t, h.Rows, 1)
	require.Equal(t, 2, h.TotalRows)

	_, err = b.ItemHistory(12345, 0)
	require.True(t, errors.Is(err, ErrCustomerNotFound))
}

func TestFilterKey(t *testing.T) {
	a := Filter{Sellers: []string{"bia", " Carlos"}}
	b := Filter{Sellers: []string{"CARLOS", "BIA", ""}}
	require.Equal(t, a.Key(), b.Key())
	require.Equal(t, []string{"BIA", "CARLOS"}, a.Normalized().Sellers)
}

func strp(s string) *string { return &s }
func i64(n int64) *int64    { return &n }
func f64(v float64) *float64 {
	return &v
}

func writeParquet[T any](t *testing.T, dir, name string, rows []T) extract.Source {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, extract.WriteParquet(&buf, rows))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	src, err := extract.Stat(path)
	require.NoError(t, err)
	return src
}

func writeFile(t *testing.T, dir, name, body string) extract.Source {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	src, err := extract.Stat(path)
	require.NoError(t, err)
	return src
}

func dimensions(t *testing.T, dir string) DimensionSources {
	return DimensionSources{
		Products: writeParquet(t, dir, "dim_produto.parquet", []ProductRecord{
			{Code: i64(10), Name: strp("dipirona"), Category: strp("analgesico"), Section: strp("medicamento")},
			{Code: i64(10), Name: strp("duplicate"), Category: strp("x"), Section: strp("x")},
			{Code: i64(20), Name: strp("shampoo"), Section: strp("perfumaria")},
		}),
		Customers: writeParquet(t, dir, "dim_cliente.parquet", []CustomerRecord{
			{Code: i64(100), Name: strp("Farmacia Sol")},
			{Code: i64(200)},
		}),
		Sellers: writeParquet(t, dir, "dim_vendedor.parquet", []SellerRecord{
			{Code: i64(7), Name: strp("carlos")},
		}),
	}
}

func TestReadDimensions(t *testing.T) {
	s := schema.Default()
	dims, err := ReadDimensions(dimensions(t, t.TempDir()), extract.Options{}, s)
	require.NoError(t, err)

	require.Equal(t, Product{Name: "DIPIRONA", Category: "ANALGESICO", Section: "MEDICAMENTO"}, dims.Products[10])
	require.Equal(t, s.Sentinels.NotInformed, dims.Products[20].Category)
	require.Equal(t, "FARMACIA SOL", dims.Customers[100])
	require.Equal(t, s.Sentinels.NotInformed, dims.Customers[200])
	require.Equal(t, "CARLOS", dims.Sellers[7])

	dims, err = ReadDimensions(DimensionSources{}, extract.Options{}, s)
	require.NoError(t, err)
	require.Empty(t, dims.Products)
}

func TestReadLinesCSV(t *testing.T) {
	dir := t.TempDir()
	s := schema.Default()
	dims, err := ReadDimensions(dimensions(t, dir), extract.Options{}, s)
	require.NoError(t, err)

	fact := writeFile(t, dir, "fato_venda.csv",
		"COD_FILIAL;DATA_MOVIMENTACAO;NUM_PEDIDO;COD_VENDEDOR;COD_SUPERVISOR;COD_CLIENTE;COD_PRODUTO;QT_VENDIDA;VALOR_LIQUIDO;ORIGEM_PEDIDO\n"+
			"1;05/02/2025;10;7;3;100;10;2;25,50;balcao\n"+
			"1;2024;11;9;3;300;99;1;abc;\n")
	lines, err := ReadLines(fact, extract.Options{}, s, dims)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	first := lines[0]
	require.Equal(t, day(2025, 2, 5), first.MovedAt)
	require.Equal(t, 2025, first.Year)
	require.Equal(t, 2, first.Month)
	require.Equal(t, int64(10), first.OrderNumber)
	require.Equal(t, int64(3), first.SupervisorCode)
	require.Equal(t, "CARLOS", first.Seller)
	require.Equal(t, "FARMACIA SOL", first.Customer)
	require.Equal(t, "DIPIRONA", first.Product)
	require.Equal(t, "ANALGESICO", first.Category)
	requireAmount(t, "25.5", first.NetValue)
	require.Equal(t, "BALCAO", first.Origin)

	second := lines[1]
	unregistered := s.Sentinels.Unregistered
	require.False(t, second.MovedAt.Valid, "a bare year is not a date")
	require.Zero(t, second.Year)
	require.Equal(t, unregistered, second.Seller)
	require.Equal(t, unregistered, second.Customer)
	require.Equal(t, unregistered, second.Product)
	require.Equal(t, unregistered, second.Category)
	require.True(t, second.NetValue.IsZero())
	require.Equal(t, unregistered, second.Origin)
}

func TestReadLinesWithoutOriginColumn(t *testing.T) {
	s := schema.Default()
	fact := writeFile(t, t.TempDir(), "fato.csv",
		"DATA_MOVIMENTACAO;COD_CLIENTE;COD_PRODUTO;VALOR_LIQUIDO\n01/03/2025;1;1;10\n")
	lines, err := ReadLines(fact, extract.Options{}, s, Dimensions{})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, s.Sentinels.NotInformed, lines[0].Origin)
	require.True(t, lines[0].Quantity.IsZero(), "absent quantity column reads as zero")
}

func TestReadLinesParquet(t *testing.T) {
	dir := t.TempDir()
	s := schema.Default()
	fact := writeParquet(t, dir, "fato_venda.parquet", []FactRecord{
		{
			Branch: i64(2), MovedAt: extract.EpochDays(day(2025, 3, 1)), OrderNumber: i64(55),
			SellerCode: i64(7), CustomerCode: i64(100), ProductCode: i64(10),
			Quantity: f64(3), NetValue: f64(12.5), Origin: strp("App"),
		},
		{CustomerCode: i64(100)},
	})
	dims, err := ReadDimensions(dimensions(t, dir), extract.Options{}, s)
	require.NoError(t, err)

	lines, err := ReadLines(fact, extract.Options{}, s, dims)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	require.Equal(t, day(2025, 3, 1), lines[0].MovedAt)
	require.Equal(t, int64(2), lines[0].Branch)
	require.Equal(t, int64(55), lines[0].OrderNumber)
	require.Equal(t, "CARLOS", lines[0].Seller)
	require.Equal(t, "APP", lines[0].Origin)
	requireAmount(t, "12.5", lines[0].NetValue)

	require.False(t, lines[1].MovedAt.Valid)
	require.True(t, lines[1].NetValue.IsZero())
	require.Equal(t, s.Sentinels.Unregistered, lines[1].Origin)
	require.Equal(t, "FARMACIA SOL", lines[1].Customer)
}
