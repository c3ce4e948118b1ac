package extract

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	_ "github.com/RoqueChristian/backup-inteligencia/internal/testing/guard"
)

func TestReadCSVStripsBOMAndPadsRows(t *testing.T) {
	data := "\ufeffBUYER ; AMOUNT;EXTRA\nANA;1.234,50\nBRUNO;10;x;overflow\n"
	f, err := ReadCSV(strings.NewReader(data), Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"BUYER", "AMOUNT", "EXTRA"}, f.Columns())
	require.Equal(t, 2, f.Len())
	require.Equal(t, "1.234,50", f.Value(0, "AMOUNT"))
	require.Nil(t, f.Value(0, "EXTRA"))
	require.Equal(t, "x", f.Value(1, "EXTRA"))
}

func TestReadCSVWindows1252(t *testing.T) {
	encoded, err := charmap.Windows1252.NewEncoder().String("FORNECEDOR\nSÃO JOÃO FARMACÊUTICA\n")
	require.NoError(t, err)

	f, err := ReadCSV(strings.NewReader(encoded), Options{Encoding: Windows1252})
	require.NoError(t, err)
	require.Equal(t, "SÃO JOÃO FARMACÊUTICA", f.Value(0, "FORNECEDOR"))

	_, err = ReadCSV(strings.NewReader(encoded), Options{Encoding: "ebcdic"})
	require.Error(t, err)
}

func TestReadCSVEmpty(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(""), Options{})
	require.NoError(t, err)
	require.Equal(t, 0, f.Len())
	require.Empty(t, f.Columns())
}

func TestReadCSVRepeatedHeaderKeepsColumnsAligned(t *testing.T) {
	data := "CODIGOFILIAL;CODIGOFILIAL;VALORDEBITO;VALORCREDITO;CLASSIFICACAO\n1;1;60;40;FARMA\n2;9\n"
	f, err := ReadCSV(strings.NewReader(data), Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"CODIGOFILIAL", "VALORDEBITO", "VALORCREDITO", "CLASSIFICACAO"}, f.Columns())
	require.Equal(t, []any{"1", "60", "40", "FARMA"}, f.Row(0))
	require.Equal(t, []any{"2", nil, nil, nil}, f.Row(1))
}

func TestReadXLSXRepeatedHeaderKeepsColumnsAligned(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]any{"CODIGOFILIAL", "CODIGOFILIAL", "VALORDEBITO", "VALORCREDITO", "CLASSIFICACAO"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]any{1, 1, 60, 40, "FARMA"}))
	var buf bytes.Buffer
	require.NoError(t, book.Write(&buf))
	require.NoError(t, book.Close())

	f, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "")
	require.NoError(t, err)
	require.Equal(t, []string{"CODIGOFILIAL", "VALORDEBITO", "VALORCREDITO", "CLASSIFICACAO"}, f.Columns())
	require.Equal(t, "60", f.Value(0, "VALORDEBITO"))
	require.Equal(t, "40", f.Value(0, "VALORCREDITO"))
	require.Equal(t, "FARMA", f.Value(0, "CLASSIFICACAO"))
}

func TestWriteCSVFormatsCells(t *testing.T) {
	f := frame.New("NAME", "AMOUNT", "DUE", "COUNT")
	due := pgtype.Date{Time: time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), Valid: true}
	require.NoError(t, f.Append("ANA", decimal.RequireFromString("1234.5"), due, int64(3)))
	require.NoError(t, f.Append(nil, decimal.Zero, pgtype.Date{}, 0))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, f, WriteOptions{BOM: true}))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"))
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(out, "\ufeff")), "\n")
	require.Equal(t, []string{
		"NAME;AMOUNT;DUE;COUNT",
		"ANA;1234,50;05/02/2024;3",
		";0,00;;0",
	}, lines)
}

func TestXLSXRoundTrip(t *testing.T) {
	f := frame.New("PRODUCT", "TOTAL", "EXPIRES_AT")
	require.NoError(t, f.Append("DIPIRONA", decimal.RequireFromString("10.25"), pgtype.Date{Time: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), Valid: true}))
	require.NoError(t, f.Append("SORO", decimal.NewFromInt(3), nil))

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "PreExpiry", f))

	back, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "PreExpiry")
	require.NoError(t, err)
	require.Equal(t, f.Columns(), back.Columns())
	require.Equal(t, 2, back.Len())
	require.Equal(t, "DIPIRONA", back.Value(0, "PRODUCT"))
	require.Equal(t, "10.25", back.Value(0, "TOTAL"))
	require.Equal(t, "30/06/2025", back.Value(0, "EXPIRES_AT"))
}

type snapshotRow struct {
	Name   string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount float64 `parquet:"name=amount, type=DOUBLE"`
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.parquet")
	file, err := os.Create(path)
	require.NoError(t, err)
	rows := []snapshotRow{{Name: "ANA", Amount: 1.5}, {Name: "BRUNO", Amount: -2}}
	require.NoError(t, WriteParquet(file, rows))
	require.NoError(t, file.Close())

	back, err := ReadParquet[snapshotRow](path)
	require.NoError(t, err)
	require.Equal(t, rows, back)
}

func TestStatAndReadFrame(t *testing.T) {
	dir := t.TempDir()
	_, err := Stat(filepath.Join(dir, "missing.csv"))
	require.ErrorIs(t, err, ErrSourceNotFound)

	path := filepath.Join(dir, "accrual.csv")
	require.NoError(t, os.WriteFile(path, []byte("A;B\n1;2\n"), 0o600))
	src, err := Stat(path)
	require.NoError(t, err)
	require.Equal(t, FormatCSV, src.Format)
	require.Contains(t, src.Fingerprint(), path)

	f, err := ReadFrame(src, Options{})
	require.NoError(t, err)
	require.Equal(t, "2", f.Value(0, "B"))

	_, err = Stat(filepath.Join(dir, "notes.doc"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.doc"), nil, 0o600))
	_, err = Stat(filepath.Join(dir, "notes.doc"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
