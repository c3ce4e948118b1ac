package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/sales"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

func TestSalesDashboard(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	dash, err := env.svc.SalesDashboard(ctx, sales.Filter{})
	require.NoError(t, err)

	require.Equal(t, "2025-02-05", dash.Today)
	requireDecimal(t, "500", dash.KPIs.NetRevenue)
	require.Equal(t, 2, dash.KPIs.ActiveCustomers)
	require.Equal(t, 3, dash.KPIs.ActiveSKUs)
	require.Equal(t, 2025, dash.KPIs.Year)
	requireDecimal(t, "340", dash.KPIs.YearRevenue)
	requireDecimal(t, "160", dash.KPIs.PreviousYearRevenue)
	requireDecimal(t, "112.5", dash.KPIs.YoYPercent)
	require.Equal(t, []string{"BIA", "CARLOS"}, dash.Sellers)
	require.Len(t, dash.RevenueByMonth.Groups, 4)
	require.Equal(t, "DERMO", dash.TopCategories.Groups[0].Keys[0])
	require.Len(t, dash.RevenueByOrigin.Groups, 2)

	var cached []string
	for _, k := range env.mr.Keys() {
		if strings.HasPrefix(k, "report:sales:") {
			cached = append(cached, k)
		}
	}
	require.Len(t, cached, 1)

	bia, err := env.svc.SalesDashboard(ctx, sales.Filter{Sellers: []string{"bia"}})
	require.NoError(t, err)
	requireDecimal(t, "360", bia.KPIs.NetRevenue)
	require.Equal(t, 1, bia.KPIs.ActiveCustomers)
}

func TestSalesCustomerViews(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	customers, err := env.svc.SalesCustomers(ctx, sales.Filter{Sellers: []string{"BIA"}})
	require.NoError(t, err)
	require.Equal(t, []sales.CustomerRef{{Code: 200, Name: "DROGARIA LUA"}}, customers)

	p, err := env.svc.CustomerProfile(ctx, sales.Filter{}, 200)
	require.NoError(t, err)
	require.Equal(t, "DROGARIA LUA", p.Name)
	requireDecimal(t, "360", p.LTV)
	require.Equal(t, 2, p.Orders)
	requireDecimal(t, "180", p.AverageTicket)
	require.Equal(t, 16, p.InactiveDays)
	require.Len(t, p.Items, 2)
	require.Equal(t, sales.StatusActive, p.Items[0].Status)
	require.Equal(t, sales.StatusChurn, p.Items[1].Status)

	c, err := env.svc.CrossSell(ctx, sales.Filter{}, 100)
	require.NoError(t, err)
	require.Equal(t, []string{"ANALGESICO"}, c.Categories)
	require.Len(t, c.Suggestions, 2)
	require.Equal(t, "PROTETOR", c.Suggestions[0].Product)

	erosion, err := env.svc.MixErosion(ctx, sales.Filter{})
	require.NoError(t, err)
	require.Empty(t, erosion)

	h, err := env.svc.ItemHistory(ctx, sales.Filter{}, 200, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"06/2024", "01/2025"}, h.Periods)
	require.Len(t, h.Rows, 1)
	require.Equal(t, 2, h.TotalRows)

	_, err = env.svc.CustomerProfile(ctx, sales.Filter{}, 999)
	require.ErrorIs(t, err, sales.ErrCustomerNotFound)
	_, err = env.svc.CrossSell(ctx, sales.Filter{Sellers: []string{"CARLOS"}}, 200)
	require.ErrorIs(t, err, sales.ErrCustomerNotFound)
}

func TestSalesFilterValidation(t *testing.T) {
	env := newTestService(t)
	_, err := env.svc.SalesDashboard(context.Background(), sales.Filter{Sellers: []string{strings.Repeat("X", 121)}})
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestExportItemHistory(t *testing.T) {
	env := newTestService(t)
	var buf bytes.Buffer

	rows, err := env.svc.ExportItemHistory(context.Background(), &buf, ExportCSV, sales.Filter{}, 200)
	require.NoError(t, err)
	require.Equal(t, 2, rows)
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\ufeff")))
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(buf.String(), "\ufeff")), "\n")
	require.Equal(t, []string{
		"PRODUCT;06/2024;01/2025;TOTAL",
		"PROTETOR;0,00;2,00;2,00",
		"VITAMINA C;1,00;0,00;1,00",
	}, lines)

	_, err = env.svc.ExportItemHistory(context.Background(), &buf, ExportParquet, sales.Filter{}, 200)
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestSalesWithoutDimensions(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(Sources{
		Sales:      writeFixture(t, dir, "fato_venda.csv", salesCSV),
		ProductDim: filepath.Join(dir, "missing.parquet"),
	}, nil, extract.Options{}, nil)

	datasets, err := loader.SalesDatasets()
	require.NoError(t, err)
	require.Equal(t, []schema.Dataset{schema.Sales}, datasets)

	ds, err := loader.Sales(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Rows, 4)
	unregistered := schema.Default().Sentinels.Unregistered
	require.Equal(t, unregistered, ds.Rows[0].Product)
	require.Equal(t, unregistered, ds.Rows[0].Customer)
	require.Equal(t, unregistered, ds.Rows[0].Seller)

	_, err = NewLoader(Sources{}, nil, extract.Options{}, nil).Sales(context.Background())
	require.ErrorIs(t, err, extract.ErrSourceNotFound)
}

func TestSalesReloadsOnDimensionChange(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	first, err := env.loader.Sales(ctx)
	require.NoError(t, err)
	require.Equal(t, "FARMACIA SOL", first.Rows[0].Customer)

	changed := strings.Replace(customerDimCSV, "Farmacia Sol", "Farmacia Sol Nascente", 1)
	require.NoError(t, os.WriteFile(env.sources.CustomerDim, []byte(changed), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(env.sources.CustomerDim, future, future))

	second, err := env.loader.Sales(ctx)
	require.NoError(t, err)
	require.Equal(t, "FARMACIA SOL NASCENTE", second.Rows[0].Customer)
	require.Equal(t, first.Source, second.Source, "the fact extract itself is unchanged")

	svc := NewService(env.loader, nil, quietLogger()).WithClock(aging.Fixed(asOf))
	p, err := svc.CustomerProfile(ctx, sales.Filter{}, 100)
	require.NoError(t, err)
	require.Equal(t, "FARMACIA SOL NASCENTE", p.Name)
}
