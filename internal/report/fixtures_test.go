package report

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
)

var asOf = time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

const accrualCSV = "CODIGOFILIAL;NUMEROVERBA;DATACADASTRO;DATAVENCIMENTO;VALOR_VERBA;VALORAPLICADO;VALORDEBITO;VALORCREDITO;SITUACAO;CLASSIFICACAO;COMPRADOR;FORNECEDOR\n" +
	"1;V-1;10/01/2024;05/03/2025;1.000,00;200,00;80,00;20,00;ATIVA;FARMA;ANA;São João Ltda\n" +
	"2;V-2;15/02/2023;20/03/2025;500,00;0;50;0;ATIVA;HB;BRUNO;BETA\n" +
	"8;V-3;10/01/2022;01/01/2024;300,00;0;0;0;ATIVA;FARMA;ANA;ACME\n" +
	"4;V-4;10/01/2022;01/01/2024;10,00;0;5;0;ATIVA;OUTROS;ANA;ACME\n"

const returnsCSV = "FILIAL;CLASSIFICACAO;CODFORNEC;FORNECEDOR;COMPRADOR;VALOR_VERBA_DEVOLUCAO;DTEMISSAO;DATA_VENCIMENTO;DATA_PAGAMENTO\n" +
	"1;FARMA;77;ACME;ANA;150,00;01/02/2025;01/03/2025;\n" +
	"2;HB;78;BETA;BRUNO;40,00;01/02/2025;01/04/2025;\n" +
	"1;FARMA;77;ACME;ANA;90,00;01/01/2025;01/02/2025;10/02/2025\n" +
	"3;FARMA;79;GAMA;ANA;0;01/01/2025;01/02/2025;\n"

const excessCSV = "CODFILIAL;CLASSIFICACAO;CODPROD;PRODUTO;QTD_TOTAL_ESTOQUE;VALOR_ULTIMA_ENTRADA;QTD_VENDAS_90D;QTD_DIAS_ZERADOS;IS_PRODUTO_NOVO;MES\n" +
	"1;FARMA;10;DIPIRONA;10;2,50;0;0;Não;2025-01\n" +
	"2;FARMA;11;PARACETAMOL;100;2;90;0;Não;2025-02\n"

const preExpiryCSV = "CODFILIAL;CLASSIFICACAO;FORNECEDOR;CODPROD;DESCRICAO;QUANTIDADE;VALOR_ULTIMA_ENTRADA;DATA_VALIDADE\n" +
	"1;FARMA;ACME;P1;DIPIRONA;5;2;30/06/2025\n" +
	"1;FARMA;ACME;P1;DIPIRONA;3;9;30/06/2025\n"

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

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fixtureSources(t *testing.T) Sources {
	t.Helper()
	dir := t.TempDir()
	return Sources{
		Accrual:     writeFixture(t, dir, "verbas.csv", accrualCSV),
		Returns:     writeFixture(t, dir, "devolucoes.csv", returnsCSV),
		Excess:      writeFixture(t, dir, "estoque.csv", excessCSV),
		PreExpiry:   writeFixture(t, dir, "pre_vencidos.csv", preExpiryCSV),
		Sales:       writeFixture(t, dir, "fato_venda.csv", salesCSV),
		ProductDim:  writeFixture(t, dir, "dim_produto.csv", productDimCSV),
		CustomerDim: writeFixture(t, dir, "dim_cliente.csv", customerDimCSV),
		SellerDim:   writeFixture(t, dir, "dim_vendedor.csv", sellerDimCSV),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	svc     *Service
	loader  *Loader
	mr      *miniredis.Miniredis
	sources Sources
	metrics *Metrics
}

func newTestService(t *testing.T) testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sources := fixtureSources(t)
	metrics := NewMetrics(prometheus.NewRegistry())
	loader := NewLoader(sources, nil, extract.Options{}, metrics)
	svc := NewService(loader, NewCache(client, time.Minute), quietLogger()).WithClock(aging.Fixed(asOf))
	return testEnv{svc: svc, loader: loader, mr: mr, sources: sources, metrics: metrics}
}
