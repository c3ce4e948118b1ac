package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/inventory"
	"github.com/RoqueChristian/backup-inteligencia/internal/ledger"
	"github.com/RoqueChristian/backup-inteligencia/internal/sales"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// Sources holds the extract path of each dataset. Empty paths are treated as
// missing sources.
type Sources struct {
	Accrual     string
	Returns     string
	Excess      string
	PreExpiry   string
	Sales       string
	ProductDim  string
	CustomerDim string
	SellerDim   string
}

// Dataset is a loaded and normalized extract together with the identity of
// the file it came from.
type Dataset[T any] struct {
	Source extract.Source
	AsOf   time.Time
	Rows   []T
}

type memoEntry struct {
	key   string
	value any
}

// Loader reads extracts and memoizes the normalized rows per dataset. An
// entry is reused while the file keeps its path, size and modification time
// and the evaluation date is unchanged.
type Loader struct {
	sources Sources
	schema  *schema.Schema
	opts    extract.Options
	metrics *Metrics

	group singleflight.Group
	mu    sync.Mutex
	memo  map[schema.Dataset]memoEntry
}

// NewLoader builds a loader over the given sources. A nil schema selects the
// embedded table.
func NewLoader(sources Sources, s *schema.Schema, opts extract.Options, metrics *Metrics) *Loader {
	if s == nil {
		s = schema.Default()
	}
	return &Loader{
		sources: sources,
		schema:  s,
		opts:    opts,
		metrics: metrics,
		memo:    make(map[schema.Dataset]memoEntry),
	}
}

// Sources returns the configured paths.
func (l *Loader) Sources() Sources { return l.sources }

// Invalidate drops every memoized dataset.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.memo = make(map[schema.Dataset]memoEntry)
}

// Accruals loads the accrual ledger with balances and aging evaluated at asOf.
func (l *Loader) Accruals(ctx context.Context, asOf time.Time) (Dataset[ledger.Accrual], error) {
	return load(ctx, l, schema.Accrual, l.sources.Accrual, "", asOf, func(src extract.Source) ([]ledger.Accrual, error) {
		return ledger.ReadAccruals(src, l.opts, l.schema, asOf)
	})
}

// Returns loads the returns ledger with aging evaluated at asOf.
func (l *Loader) Returns(ctx context.Context, asOf time.Time) (Dataset[ledger.Return], error) {
	return load(ctx, l, schema.Returns, l.sources.Returns, "", asOf, func(src extract.Source) ([]ledger.Return, error) {
		return ledger.ReadReturns(src, l.opts, l.schema, asOf)
	})
}

// Positions loads the stock snapshot used for excess valuation.
func (l *Loader) Positions(ctx context.Context) (Dataset[inventory.StockPosition], error) {
	return load(ctx, l, schema.Excess, l.sources.Excess, "", time.Time{}, func(src extract.Source) ([]inventory.StockPosition, error) {
		return inventory.ReadPositions(src, l.opts, l.schema)
	})
}

// Lots loads the pre-expiry lots.
func (l *Loader) Lots(ctx context.Context) (Dataset[inventory.Lot], error) {
	return load(ctx, l, schema.PreExpiry, l.sources.PreExpiry, "", time.Time{}, func(src extract.Source) ([]inventory.Lot, error) {
		return inventory.ReadLots(src, l.opts, l.schema)
	})
}

// Sales loads the sales fact joined with whichever dimensions are present.
// A missing dimension leaves its codes unregistered.
func (l *Loader) Sales(ctx context.Context) (Dataset[sales.Line], error) {
	dims, variant, err := l.dimensions()
	if err != nil {
		return Dataset[sales.Line]{}, err
	}
	return load(ctx, l, schema.Sales, l.sources.Sales, variant, time.Time{}, func(src extract.Source) ([]sales.Line, error) {
		d, err := sales.ReadDimensions(dims, l.opts, l.schema)
		if err != nil {
			return nil, err
		}
		return sales.ReadLines(src, l.opts, l.schema, d)
	})
}

// SalesDatasets lists the sales fact and the dimensions currently present.
func (l *Loader) SalesDatasets() ([]schema.Dataset, error) {
	out := []schema.Dataset{schema.Sales}
	for _, ds := range dimensionDatasets {
		if _, err := l.Stat(ds); err != nil {
			if errors.Is(err, extract.ErrSourceNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, ds)
	}
	return out, nil
}

var dimensionDatasets = []schema.Dataset{schema.ProductDim, schema.CustomerDim, schema.SellerDim}

func (l *Loader) dimensions() (sales.DimensionSources, string, error) {
	var (
		srcs  sales.DimensionSources
		parts []string
	)
	for _, ds := range dimensionDatasets {
		src, err := l.Stat(ds)
		if errors.Is(err, extract.ErrSourceNotFound) {
			parts = append(parts, "-")
			continue
		}
		if err != nil {
			return sales.DimensionSources{}, "", err
		}
		parts = append(parts, src.Fingerprint())
		switch ds {
		case schema.ProductDim:
			srcs.Products = src
		case schema.CustomerDim:
			srcs.Customers = src
		case schema.SellerDim:
			srcs.Sellers = src
		}
	}
	return srcs, strings.Join(parts, "|"), nil
}

// load reads path through the memo. variant joins the memo key for inputs
// beyond the main source, such as joined dimensions.
func load[T any](ctx context.Context, l *Loader, ds schema.Dataset, path, variant string, asOf time.Time, read func(extract.Source) ([]T, error)) (Dataset[T], error) {
	track := l.metrics.trackLoad(ds)
	if err := ctx.Err(); err != nil {
		return Dataset[T]{}, track.end(err, false)
	}
	src, err := stat(ds, path)
	if err != nil {
		return Dataset[T]{}, track.end(err, false)
	}
	key := memoKey(ds, src, asOf) + variant

	l.mu.Lock()
	entry, ok := l.memo[ds]
	l.mu.Unlock()
	if ok && entry.key == key {
		return entry.value.(Dataset[T]), track.end(nil, true)
	}

	resultChan := l.group.DoChan(key, func() (any, error) {
		rows, err := read(src)
		if err != nil {
			return nil, fmt.Errorf("report: load %s: %w", ds, err)
		}
		value := Dataset[T]{Source: src, AsOf: asOf, Rows: rows}
		l.mu.Lock()
		l.memo[ds] = memoEntry{key: key, value: value}
		l.mu.Unlock()
		return value, nil
	})
	select {
	case <-ctx.Done():
		return Dataset[T]{}, track.end(ctx.Err(), false)
	case res := <-resultChan:
		if res.Err != nil {
			return Dataset[T]{}, track.end(res.Err, false)
		}
		return res.Val.(Dataset[T]), track.end(nil, false)
	}
}

// Stat resolves the current identity of a dataset's source without reading it.
func (l *Loader) Stat(ds schema.Dataset) (extract.Source, error) {
	switch ds {
	case schema.Accrual:
		return stat(ds, l.sources.Accrual)
	case schema.Returns:
		return stat(ds, l.sources.Returns)
	case schema.Excess:
		return stat(ds, l.sources.Excess)
	case schema.PreExpiry:
		return stat(ds, l.sources.PreExpiry)
	case schema.Sales:
		return stat(ds, l.sources.Sales)
	case schema.ProductDim:
		return stat(ds, l.sources.ProductDim)
	case schema.CustomerDim:
		return stat(ds, l.sources.CustomerDim)
	case schema.SellerDim:
		return stat(ds, l.sources.SellerDim)
	}
	return extract.Source{}, fmt.Errorf("report: unknown dataset %q", ds)
}

func stat(ds schema.Dataset, path string) (extract.Source, error) {
	if path == "" {
		return extract.Source{}, fmt.Errorf("%w: %s source not configured", ledger.ErrSourceNotFound, ds)
	}
	return extract.Stat(path)
}

func memoKey(ds schema.Dataset, src extract.Source, asOf time.Time) string {
	day := "-"
	if !asOf.IsZero() {
		day = asOf.Format(time.DateOnly)
	}
	return string(ds) + "|" + src.Fingerprint() + "|" + day
}

// evaluation date used when a caller does not pin one
func today(clock aging.Clock) time.Time {
	if clock == nil {
		clock = aging.SystemClock
	}
	t := clock()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
