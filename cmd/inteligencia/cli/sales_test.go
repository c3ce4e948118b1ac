package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RoqueChristian/backup-inteligencia/internal/sales"
)

const salesCSV = "COD_FILIAL;DATA_MOVIMENTACAO;NUM_PEDIDO;COD_VENDEDOR;COD_CLIENTE;COD_PRODUTO;QT_VENDIDA;VALOR_LIQUIDO;ORIGEM_PEDIDO\n" +
	"1;10/03/2024;1;7;100;10;10;100,00;BALCAO\n" +
	"1;05/02/2025;2;7;100;10;4;40,00;BALCAO\n" +
	"1;20/01/2025;3;8;200;30;2;300,00;APP\n" +
	"1;01/06/2024;4;8;200;40;1;60,00;APP\n"

const productDimCSV = "COD_PRODUTO;NM_PRODUTO;CATEGORIA;SECAO\n" +
	"10;Dipirona;Analgesico;Medicamento\n" +
	"30;Protetor;Dermo;Perfumaria\n" +
	"40;Vitamina C;Suplemento;Medicamento\n"

const customerDimCSV = "COD_CLIENTE;NM_CLIENTE\n100;Farmacia Sol\n200;Drogaria Lua\n"

const sellerDimCSV = "COD_VENDEDOR;NM_VENDEDOR\n7;Carlos\n8;Bia\n"

func TestSalesDashboardCommand(t *testing.T) {
	f := newFixture(t)

	code, out, errOut := f.run(t, "sales", "dashboard")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "latest movement 2025-02-05")
	require.Contains(t, out, "R$ 500,00")
	require.Contains(t, out, "112,50%")
	require.Contains(t, out, "Top categories")

	code, out, errOut = f.run(t, "--json", "sales", "dashboard", "--seller", "bia")
	require.Equal(t, 0, code, errOut)
	var dash sales.Dashboard
	require.NoError(t, json.Unmarshal([]byte(out), &dash))
	require.Equal(t, 1, dash.KPIs.ActiveCustomers)
	require.Equal(t, "360", dash.KPIs.NetRevenue.String())
}

func TestSalesCustomerCommands(t *testing.T) {
	f := newFixture(t)

	code, out, errOut := f.run(t, "sales", "customers", "--seller", "carlos")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "FARMACIA SOL")
	require.NotContains(t, out, "DROGARIA LUA")

	code, out, errOut = f.run(t, "sales", "customer", "200")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "200 DROGARIA LUA (seller BIA)")
	require.Contains(t, out, "Inactive days")
	require.Contains(t, out, "CHURN")

	code, out, errOut = f.run(t, "sales", "cross-sell", "100")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "buys 1 of 3 categories")
	require.Contains(t, out, "PROTETOR")

	code, out, errOut = f.run(t, "sales", "mix-erosion")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "no customer narrowed its mix")

	code, out, errOut = f.run(t, "sales", "items", "--limit", "1", "200")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "1 of 2 products")
	require.Contains(t, out, "01/2025")

	code, out, errOut = f.run(t, "sales", "items", "--format", "csv", "200")
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(out, "\ufeff")), "\n")
	require.Equal(t, "PRODUCT;06/2024;01/2025;TOTAL", lines[0])
	require.Len(t, lines, 3)
}

func TestSalesCustomerErrors(t *testing.T) {
	f := newFixture(t)

	code, _, errOut := f.run(t, "sales", "customer", "999")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "customer not found")

	code, _, errOut = f.run(t, "sales", "customer", "abc")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "customer code required")
}
