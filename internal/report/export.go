package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/inventory"
	"github.com/RoqueChristian/backup-inteligencia/internal/ledger"
)

// ErrUnknownFormat reports an export format no writer handles.
var ErrUnknownFormat = errors.New("report: unknown export format")

// ExportFormat selects the serialisation of an export.
type ExportFormat string

const (
	ExportCSV     ExportFormat = "csv"
	ExportXLSX    ExportFormat = "xlsx"
	ExportParquet ExportFormat = "parquet"
)

const (
	unifiedSheet   = "unified"
	preExpirySheet = "pre_expiry"
)

// ParseExportFormat reads a format name or file extension.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch f := ExportFormat(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), ".")); f {
	case ExportCSV, ExportXLSX, ExportParquet:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
}

// ContentType is the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportCSV:
		return "text/csv; charset=utf-8"
	case ExportXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// Export describes one export run.
type Export struct {
	RunID  uuid.UUID       `json:"run_id"`
	Format ExportFormat    `json:"format"`
	Rows   int             `json:"rows"`
	Total  decimal.Decimal `json:"total"`
	Path   string          `json:"path,omitempty"`
}

// WriteUnified serialises unified rows. CSV output carries a BOM, semicolons
// and decimal commas; dates render as DD/MM/YYYY in every format but parquet.
func WriteUnified(w io.Writer, format ExportFormat, rows []ledger.Unified) error {
	switch format {
	case ExportCSV:
		return extract.WriteCSV(w, ledger.UnifiedFrame(rows), extract.WriteOptions{Comma: extract.DefaultComma, BOM: true})
	case ExportXLSX:
		return extract.WriteXLSX(w, unifiedSheet, ledger.UnifiedFrame(rows))
	case ExportParquet:
		return ledger.WriteUnifiedParquet(w, rows)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// WritePreExpiry writes the pre-expiry workbook.
func WritePreExpiry(w io.Writer, lines []inventory.PreExpiryLine) error {
	return extract.WriteXLSX(w, preExpirySheet, inventory.PreExpiryFrame(lines))
}

// ExportUnified writes the unified view for f to w.
func (s *Service) ExportUnified(ctx context.Context, w io.Writer, format ExportFormat, f Filter) (Export, error) {
	rows, err := s.UnifiedRows(ctx, f)
	if err != nil {
		return Export{}, err
	}
	exp := Export{RunID: uuid.New(), Format: format, Rows: len(rows), Total: ledger.TotalPending(rows)}
	if err := WriteUnified(w, format, rows); err != nil {
		return Export{}, fmt.Errorf("report: export unified: %w", err)
	}
	s.logger.Info("unified export written",
		slog.String("run_id", exp.RunID.String()), slog.String("format", string(format)), slog.Int("rows", exp.Rows))
	return exp, nil
}

// ExportUnifiedFile writes the unified view into dir. The file appears only
// once fully written; a missing source leaves dir untouched.
func (s *Service) ExportUnifiedFile(ctx context.Context, dir string, format ExportFormat, f Filter) (Export, error) {
	rows, err := s.UnifiedRows(ctx, f)
	if err != nil {
		return Export{}, err
	}
	exp := Export{RunID: uuid.New(), Format: format, Rows: len(rows), Total: ledger.TotalPending(rows)}
	name := fmt.Sprintf("unified-%s-%s.%s", s.AsOf().Format("20060102"), exp.RunID.String()[:8], format)
	path, err := writeAtomic(dir, name, func(w io.Writer) error {
		return WriteUnified(w, format, rows)
	})
	if err != nil {
		return Export{}, err
	}
	exp.Path = path
	s.logger.Info("unified export written",
		slog.String("run_id", exp.RunID.String()), slog.String("path", path), slog.Int("rows", exp.Rows))
	return exp, nil
}

// ExportPreExpiryFile writes the pre-expiry workbook into dir.
func (s *Service) ExportPreExpiryFile(ctx context.Context, dir string) (Export, error) {
	lines, err := s.PreExpiry(ctx)
	if err != nil {
		return Export{}, err
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total)
	}
	exp := Export{RunID: uuid.New(), Format: ExportXLSX, Rows: len(lines), Total: total}
	name := fmt.Sprintf("pre-expiry-%s.xlsx", s.clock().Format("20060102-150405"))
	path, err := writeAtomic(dir, name, func(w io.Writer) error {
		return WritePreExpiry(w, lines)
	})
	if err != nil {
		return Export{}, err
	}
	exp.Path = path
	return exp, nil
}

func writeAtomic(dir, name string, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return "", fmt.Errorf("report: export temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("report: export %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("report: export %s: %w", name, err)
	}
	return path, nil
}
