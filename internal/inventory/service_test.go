package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
	_ "github.com/RoqueChristian/backup-inteligencia/internal/testing/guard"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestExcessValuation(t *testing.T) {
	policy := DefaultPolicy()
	require.NoError(t, policy.Validate())

	cases := map[string]struct {
		pos    StockPosition
		stock  string
		daily  string
		excess string
	}{
		"new product is exempt": {
			pos:   StockPosition{Classification: "FARMA", StockQty: dec("10"), LastCost: dec("2.5"), NewProduct: true},
			stock: "25", daily: "0", excess: "0",
		},
		"no sales is full excess": {
			pos:   StockPosition{Classification: "FARMA", StockQty: dec("10"), LastCost: dec("2.5")},
			stock: "25", daily: "0", excess: "25",
		},
		"pharmacy covers ninety days": {
			pos:   StockPosition{Classification: "Farma", StockQty: dec("100"), LastCost: dec("2"), Sales90D: dec("90")},
			stock: "200", daily: "1", excess: "20",
		},
		"health and beauty covers sixty days": {
			pos:   StockPosition{Classification: "HB", StockQty: dec("100"), LastCost: dec("2"), Sales90D: dec("90"), ZeroStockDays: 30},
			stock: "200", daily: "1.5", excess: "20",
		},
		"unknown classification": {
			pos:   StockPosition{Classification: "PERFUMARIA", StockQty: dec("100"), LastCost: dec("2"), Sales90D: dec("90")},
			stock: "200", daily: "1", excess: "0",
		},
		"covered stock floors at zero": {
			pos:   StockPosition{Classification: "FARMA", StockQty: dec("50"), LastCost: dec("2"), Sales90D: dec("90")},
			stock: "100", daily: "1", excess: "0",
		},
		"out of stock all window": {
			pos:   StockPosition{Classification: "FARMA", StockQty: dec("50"), LastCost: dec("2"), Sales90D: dec("5"), ZeroStockDays: 90},
			stock: "100", daily: "0", excess: "0",
		},
		"daily sales keep four places": {
			pos:   StockPosition{Classification: "FARMA", StockQty: dec("20"), LastCost: dec("1"), Sales90D: dec("10")},
			stock: "20", daily: "0.1111", excess: "10",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := policy.Value(tc.pos)
			requireDecimal(t, tc.stock, v.StockValue)
			requireDecimal(t, tc.daily, v.DailySales)
			requireDecimal(t, tc.excess, v.ExcessValue)
		})
	}
}

func TestPolicyValidate(t *testing.T) {
	require.ErrorIs(t, Policy{}.Validate(), ErrInvalidPolicy)
	require.ErrorIs(t, Policy{WindowDays: 90, Coverage: map[string]int{"HB": -1}}.Validate(), ErrInvalidPolicy)
}

func TestNormalizePositionsAndSummaries(t *testing.T) {
	f := frame.New("CODFILIAL", "CLASSIFICACAO", "CODPROD", "QTD_TOTAL_ESTOQUE", "VALOR_ULTIMA_ENTRADA", "QTD_VENDAS_90D", "QTD_DIAS_ZERADOS", "IS_PRODUTO_NOVO", "MES")
	require.NoError(t, f.Append("1", "FARMA", "10", "10", "2,50", "0", "0", "Não", "2025-01"))
	require.NoError(t, f.Append("2", "HB", "11", "100", "2", "90", "30", "Não", "2025-02"))
	require.NoError(t, f.Append("2", "FARMA", "12", "5", "1", "0", "0", "Sim", "2025-01"))
	require.NoError(t, f.Append("3", "OUTROS", "13", "5", "1", "0", "0", "Não", "2025-01"))

	positions := NormalizePositions(f, schema.Default())
	require.Len(t, positions, 3)
	require.True(t, positions[2].NewProduct)
	require.Equal(t, int64(30), positions[1].ZeroStockDays)
	require.Equal(t, "2025-02", positions[1].Month)

	vals := DefaultPolicy().Valuate(positions)
	byBranch := ExcessByBranch(vals)
	require.Equal(t, "Sum_of_EXCESS_VALUE", byBranch.Column)
	require.Equal(t, int64(1), byBranch.Groups[0].Keys[0])
	requireDecimal(t, "25", byBranch.Groups[0].Sum)

	byMonth := ExcessByMonth(vals)
	require.Equal(t, "2025-01", byMonth.Groups[0].Keys[0])
	require.Equal(t, "2025-02", byMonth.Groups[1].Keys[0])
}

func TestConsolidatePreExpiry(t *testing.T) {
	f := frame.New("CODFILIAL", "CLASSIFICACAO", "FORNECEDOR", "CODPROD", "DESCRICAO", "QUANTIDADE", "VALOR_ULTIMA_ENTRADA", "DATA_VALIDADE")
	rows := [][]any{
		{"1", "FARMA", "ACME", "P1", "DIPIRONA", "5", "2", "30/06/2025"},
		{"1", "FARMA", "ACME", "P1", "DIPIRONA", "3", "9", "30/06/2025"},
		{"1", "FARMA", "ACME", "P1", "DIPIRONA", "2", "2", "31/07/2025"},
		{"2", "FARMA", "ACME", "P1", "DIPIRONA", "4", "3", "30/06/2025"},
		{"1", "OUTROS", "ACME", "P2", "SACOLA", "4", "1", "30/06/2025"},
		{"1", "HB", "BETA", "P3", "SHAMPOO", "0", "1", "30/06/2025"},
	}
	for _, r := range rows {
		require.NoError(t, f.Append(r...))
	}

	lines := ConsolidatePreExpiry(NormalizeLots(f, schema.Default()))
	require.Len(t, lines, 3)

	require.Equal(t, int64(1), lines[0].Branch)
	require.Equal(t, "30/06/2025", lines[0].ExpiresAt.Time.Format("02/01/2006"))
	requireDecimal(t, "8", lines[0].Quantity)
	requireDecimal(t, "2", lines[0].LastCost)
	requireDecimal(t, "16", lines[0].Total)
	require.Equal(t, "DIPIRONA", lines[0].Description)

	requireDecimal(t, "4", lines[1].Total)
	require.Equal(t, int64(2), lines[2].Branch)
	requireDecimal(t, "12", lines[2].Total)

	out := PreExpiryFrame(lines)
	require.Equal(t, PreExpiryColumns, out.Columns())
	require.Equal(t, 3, out.Len())
}
