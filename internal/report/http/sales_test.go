package reporthttp

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/sales"
)

func TestSalesDashboardParsesSellers(t *testing.T) {
	svc := &stubService{}
	rec := get(t, newRouter(svc), "/reports/sales?seller=carlos,bia&seller=ana")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"CARLOS", "BIA", "ANA"}, svc.lastSales.Sellers)

	var body sales.Dashboard
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "2025-03-01", body.Today)
	require.Equal(t, 2, body.KPIs.ActiveCustomers)

	rec = get(t, newRouter(svc), "/reports/sales/customers")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, svc.lastSales.Sellers)
	require.JSONEq(t, `[{"code":100,"name":"FARMACIA SOL"}]`, rec.Body.String())

	require.Equal(t, http.StatusOK, get(t, newRouter(svc), "/reports/sales/mix-erosion?seller=bia").Code)
	require.Equal(t, []string{"BIA"}, svc.lastSales.Sellers)
}

func TestCustomerEndpoints(t *testing.T) {
	svc := &stubService{}
	router := newRouter(svc)

	rec := get(t, router, "/reports/sales/customers/100?seller=carlos")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(100), svc.lastCode)
	require.Equal(t, []string{"CARLOS"}, svc.lastSales.Sellers)
	require.Contains(t, rec.Body.String(), `"orders":3`)
	require.Contains(t, rec.Body.String(), `"name":"FARMACIA SOL"`)

	rec = get(t, router, "/reports/sales/customers/100/cross-sell")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total_categories":4`)

	require.Equal(t, http.StatusNotFound, get(t, router, "/reports/sales/customers/7").Code)
	require.Equal(t, http.StatusNotFound, get(t, router, "/reports/sales/customers/7/cross-sell").Code)

	rec = get(t, router, "/reports/sales/customers/abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid customer")
}

func TestItemHistoryEndpoint(t *testing.T) {
	svc := &stubService{}
	router := newRouter(svc)

	rec := get(t, router, "/reports/sales/customers/100/items")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, sales.DefaultHistoryRows, svc.lastLimit)
	require.Contains(t, rec.Body.String(), `"periods":["02/2025","03/2025"]`)

	require.Equal(t, http.StatusOK, get(t, router, "/reports/sales/customers/100/items?limit=0").Code)
	require.Equal(t, 0, svc.lastLimit)
	require.Equal(t, http.StatusBadRequest, get(t, router, "/reports/sales/customers/100/items?limit=-1").Code)
	require.Equal(t, http.StatusBadRequest, get(t, router, "/reports/sales/customers/100/items?limit=many").Code)
}

func TestItemHistoryDownloads(t *testing.T) {
	svc := &stubService{}
	router := newRouter(svc)

	rec := get(t, router, "/reports/sales/customers/100/items.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, svc.lastLimit, "downloads carry every row")
	require.Equal(t, `attachment; filename="items-100-20250315.csv"`, rec.Header().Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(rec.Body.String(), "\ufeff")), "\n")
	require.Equal(t, []string{"PRODUCT;02/2025;03/2025;TOTAL", "DIPIRONA;4,00;1,50;5,50"}, lines)

	rec = get(t, router, "/reports/sales/customers/100/items.xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := extract.ReadXLSX(rec.Body, "")
	require.NoError(t, err)
	require.Equal(t, []string{"PRODUCT", "02/2025", "03/2025", "TOTAL"}, f.Columns())

	require.Equal(t, http.StatusBadRequest, get(t, router, "/reports/sales/customers/100/items.parquet").Code)
	require.Equal(t, http.StatusNotFound, get(t, router, "/reports/sales/customers/9/items.csv").Code)
}
