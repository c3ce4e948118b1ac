package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/sales"
)

const historySheet = "items"

// SalesDashboard computes the portfolio view for the sellers in f.
func (s *Service) SalesDashboard(ctx context.Context, f sales.Filter) (sales.Dashboard, error) {
	var dash sales.Dashboard
	err := s.salesSection(ctx, &dash, "sales", f, func(b *sales.Book) (any, error) {
		return b.Dashboard(), nil
	})
	return dash, err
}

// SalesCustomers lists the customers of the sellers in f.
func (s *Service) SalesCustomers(ctx context.Context, f sales.Filter) ([]sales.CustomerRef, error) {
	var out []sales.CustomerRef
	err := s.salesSection(ctx, &out, "sales-customers", f, func(b *sales.Book) (any, error) {
		return b.Customers(), nil
	})
	return out, err
}

// CustomerProfile computes the lifetime view of one customer.
func (s *Service) CustomerProfile(ctx context.Context, f sales.Filter, code int64) (sales.Profile, error) {
	var p sales.Profile
	err := s.salesSection(ctx, &p, "sales-profile:"+strconv.FormatInt(code, 10), f, func(b *sales.Book) (any, error) {
		return b.Profile(code)
	})
	return p, err
}

// CrossSell lists the categories one customer never bought.
func (s *Service) CrossSell(ctx context.Context, f sales.Filter, code int64) (sales.CrossSell, error) {
	var c sales.CrossSell
	err := s.salesSection(ctx, &c, "sales-cross-sell:"+strconv.FormatInt(code, 10), f, func(b *sales.Book) (any, error) {
		return b.CrossSell(code)
	})
	return c, err
}

// MixErosion ranks the customers who narrowed their category mix.
func (s *Service) MixErosion(ctx context.Context, f sales.Filter) ([]sales.Erosion, error) {
	var out []sales.Erosion
	err := s.salesSection(ctx, &out, "sales-mix-erosion", f, func(b *sales.Book) (any, error) {
		return b.MixErosion(), nil
	})
	return out, err
}

// ItemHistory pivots one customer's purchases by month, capped at limit rows.
func (s *Service) ItemHistory(ctx context.Context, f sales.Filter, code int64, limit int) (sales.ItemHistory, error) {
	var h sales.ItemHistory
	section := fmt.Sprintf("sales-items:%d:%d", code, limit)
	err := s.salesSection(ctx, &h, section, f, func(b *sales.Book) (any, error) {
		return b.ItemHistory(code, limit)
	})
	return h, err
}

// ExportItemHistory writes the full purchase history of one customer.
func (s *Service) ExportItemHistory(ctx context.Context, w io.Writer, format ExportFormat, f sales.Filter, code int64) (int, error) {
	if err := validateStruct(s.validate, f); err != nil {
		return 0, err
	}
	b, err := s.salesBook(ctx, f)
	if err != nil {
		return 0, err
	}
	h, err := b.ItemHistory(code, 0)
	if err != nil {
		return 0, err
	}
	if err := WriteItemHistory(w, format, h); err != nil {
		return 0, fmt.Errorf("report: export items: %w", err)
	}
	s.logger.Info("item history written",
		slog.Int64("customer", code), slog.String("format", string(format)), slog.Int("rows", len(h.Rows)))
	return len(h.Rows), nil
}

// WriteItemHistory serialises the pivot as CSV or XLSX.
func WriteItemHistory(w io.Writer, format ExportFormat, h sales.ItemHistory) error {
	switch format {
	case ExportCSV:
		return extract.WriteCSV(w, sales.HistoryFrame(h), extract.WriteOptions{Comma: extract.DefaultComma, BOM: true})
	case ExportXLSX:
		return extract.WriteXLSX(w, historySheet, sales.HistoryFrame(h))
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func (s *Service) salesSection(ctx context.Context, dest any, section string, f sales.Filter, build func(*sales.Book) (any, error)) error {
	if err := validateStruct(s.validate, f); err != nil {
		return err
	}
	datasets, err := s.loader.SalesDatasets()
	if err != nil {
		return err
	}
	loader := func(ctx context.Context) (any, error) {
		b, err := s.salesBook(ctx, f)
		if err != nil {
			return nil, err
		}
		return build(b)
	}
	return s.cached(ctx, dest, loader, datasets, section, s.AsOf(), f.Key())
}

func (s *Service) salesBook(ctx context.Context, f sales.Filter) (*sales.Book, error) {
	ds, err := s.loader.Sales(ctx)
	if err != nil {
		return nil, err
	}
	return sales.NewBook(ds.Rows, f, s.loader.schema.Sentinels), nil
}
