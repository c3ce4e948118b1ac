// Package report assembles the accrual, returns, unified and inventory
// views over the normalized extracts, caching computed sections in Redis.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/RoqueChristian/backup-inteligencia/internal/aggregate"
	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/inventory"
	"github.com/RoqueChristian/backup-inteligencia/internal/ledger"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// Service coordinates extract loading with the cache layer.
type Service struct {
	loader   *Loader
	cache    *Cache
	logger   *slog.Logger
	validate *validator.Validate
	policy   inventory.Policy
	clock    aging.Clock
}

// NewService wires a Loader with a Cache helper. cache may be nil.
func NewService(loader *Loader, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		loader:   loader,
		cache:    cache,
		logger:   logger,
		validate: NewValidator(),
		policy:   inventory.DefaultPolicy(),
		clock:    aging.SystemClock,
	}
}

// WithClock pins the evaluation date source.
func (s *Service) WithClock(clock aging.Clock) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithPolicy replaces the excess coverage policy.
func (s *Service) WithPolicy(p inventory.Policy) *Service {
	s.policy = p
	return s
}

// AsOf returns the evaluation date of the next computation.
func (s *Service) AsOf() time.Time { return today(s.clock) }

// ValidateFilter checks f against the filter rules.
func (s *Service) ValidateFilter(f Filter) error { return f.Validate(s.validate) }

// Invalidate drops memoized extracts and bumps the cache version.
func (s *Service) Invalidate(ctx context.Context) (int64, error) {
	s.loader.Invalidate()
	return s.cache.Bump(ctx)
}

// ListenForInvalidation follows bumps from other processes and drops the
// memoized extracts on each.
func (s *Service) ListenForInvalidation(ctx context.Context) error {
	return s.cache.ListenForInvalidation(ctx, func(version int64) {
		s.loader.Invalidate()
		s.logger.Info("report cache bumped", slog.Int64("version", version))
	})
}

// AccrualDashboard computes the accrual view for f.
func (s *Service) AccrualDashboard(ctx context.Context, f Filter) (AccrualDashboard, error) {
	if err := s.ValidateFilter(f); err != nil {
		return AccrualDashboard{}, err
	}
	asOf := s.AsOf()
	loader := func(ctx context.Context) (any, error) {
		ds, err := s.loader.Accruals(ctx, asOf)
		if err != nil {
			return nil, err
		}
		rows, err := FilterAccruals(ds.Rows, f)
		if err != nil {
			return nil, err
		}
		dash := BuildAccrualDashboard(rows)
		dash.AsOf = asOf.Format(time.DateOnly)
		s.logWarnings("accrual", dash.Warnings)
		return dash, nil
	}
	var dash AccrualDashboard
	err := s.cached(ctx, &dash, loader, []schema.Dataset{schema.Accrual}, "accrual", asOf, f.Key())
	return dash, err
}

// ReturnsDashboard computes the returns view for f.
func (s *Service) ReturnsDashboard(ctx context.Context, f Filter) (ReturnsDashboard, error) {
	if err := s.ValidateFilter(f); err != nil {
		return ReturnsDashboard{}, err
	}
	asOf := s.AsOf()
	loader := func(ctx context.Context) (any, error) {
		ds, err := s.loader.Returns(ctx, asOf)
		if err != nil {
			return nil, err
		}
		rows, err := FilterReturns(ds.Rows, f)
		if err != nil {
			return nil, err
		}
		dash := BuildReturnsDashboard(rows)
		dash.AsOf = asOf.Format(time.DateOnly)
		s.logWarnings("returns", dash.Warnings)
		return dash, nil
	}
	var dash ReturnsDashboard
	err := s.cached(ctx, &dash, loader, []schema.Dataset{schema.Returns}, "returns", asOf, f.Key())
	return dash, err
}

// Unified merges the filtered accrual and returns ledgers into the pending
// balance view.
func (s *Service) Unified(ctx context.Context, f Filter) (UnifiedView, error) {
	if err := s.ValidateFilter(f); err != nil {
		return UnifiedView{}, err
	}
	asOf := s.AsOf()
	loader := func(ctx context.Context) (any, error) {
		rows, err := s.unifiedRows(ctx, asOf, f)
		if err != nil {
			return nil, err
		}
		return UnifiedView{AsOf: asOf.Format(time.DateOnly), Total: ledger.TotalPending(rows), Rows: rows}, nil
	}
	var view UnifiedView
	err := s.cached(ctx, &view, loader, []schema.Dataset{schema.Accrual, schema.Returns}, "unified", asOf, f.Key())
	return view, err
}

// UnifiedSummary groups the unified view by classification, buyer, type and
// status.
func (s *Service) UnifiedSummary(ctx context.Context, f Filter) (UnifiedSummary, error) {
	if err := s.ValidateFilter(f); err != nil {
		return UnifiedSummary{}, err
	}
	asOf := s.AsOf()
	loader := func(ctx context.Context) (any, error) {
		rows, err := s.unifiedRows(ctx, asOf, f)
		if err != nil {
			return nil, err
		}
		sum := BuildUnifiedSummary(rows)
		sum.AsOf = asOf.Format(time.DateOnly)
		return sum, nil
	}
	var sum UnifiedSummary
	err := s.cached(ctx, &sum, loader, []schema.Dataset{schema.Accrual, schema.Returns}, "unified-summary", asOf, f.Key())
	return sum, err
}

// Aggregate groups one derived table by keys and sums field. Only the
// datasets the source needs are loaded.
func (s *Service) Aggregate(ctx context.Context, q AggregateQuery) (AggregateView, error) {
	asOf := s.AsOf()
	var (
		accruals []ledger.Accrual
		returns  []ledger.Return
	)
	switch q.Source {
	case SourceAccrual:
		ds, err := s.loader.Accruals(ctx, asOf)
		if err != nil {
			return AggregateView{}, err
		}
		accruals = ds.Rows
	case SourceReturns:
		ds, err := s.loader.Returns(ctx, asOf)
		if err != nil {
			return AggregateView{}, err
		}
		returns = ds.Rows
	case SourceUnified:
		acc, ret, err := s.loadLedgers(ctx, asOf)
		if err != nil {
			return AggregateView{}, err
		}
		accruals, returns = acc.Rows, ret.Rows
	}
	view, err := BuildAggregate(q, accruals, returns)
	if err != nil {
		return AggregateView{}, err
	}
	s.logWarnings("aggregate", view.Warnings)
	return view, nil
}

// ExcessView is the inventory excess valuation with its summaries.
type ExcessView struct {
	Rows       []inventory.Valuation `json:"rows"`
	StockValue string                `json:"stock_value"`
	Excess     string                `json:"excess_value"`
	ByBranch   aggregate.Result      `json:"by_branch"`
	ByMonth    aggregate.Result      `json:"by_month"`
}

// Excess values the stock snapshot with the configured coverage policy.
func (s *Service) Excess(ctx context.Context) (ExcessView, error) {
	if err := s.policy.Validate(); err != nil {
		return ExcessView{}, err
	}
	ds, err := s.loader.Positions(ctx)
	if err != nil {
		return ExcessView{}, err
	}
	vals := s.policy.Valuate(ds.Rows)
	f := inventory.ValuationFrame(vals)
	return ExcessView{
		Rows:       vals,
		StockValue: aggregate.Total(f, schema.ColStockValue).StringFixed(2),
		Excess:     aggregate.Total(f, schema.ColExcessValue).StringFixed(2),
		ByBranch:   inventory.ExcessByBranch(vals),
		ByMonth:    inventory.ExcessByMonth(vals),
	}, nil
}

// PreExpiry consolidates the pre-expiry lots.
func (s *Service) PreExpiry(ctx context.Context) ([]inventory.PreExpiryLine, error) {
	ds, err := s.loader.Lots(ctx)
	if err != nil {
		return nil, err
	}
	return inventory.ConsolidatePreExpiry(ds.Rows), nil
}

// UnifiedRows returns the unified rows without going through the section
// cache. Exports and the publisher use it.
func (s *Service) UnifiedRows(ctx context.Context, f Filter) ([]ledger.Unified, error) {
	if err := s.ValidateFilter(f); err != nil {
		return nil, err
	}
	return s.unifiedRows(ctx, s.AsOf(), f)
}

func (s *Service) unifiedRows(ctx context.Context, asOf time.Time, f Filter) ([]ledger.Unified, error) {
	acc, ret, err := s.loadLedgers(ctx, asOf)
	if err != nil {
		return nil, err
	}
	accruals, err := FilterAccruals(acc.Rows, f)
	if err != nil {
		return nil, err
	}
	returns, err := FilterReturns(ret.Rows, f)
	if err != nil {
		return nil, err
	}
	return ledger.Unify(accruals, returns), nil
}

// loadLedgers reads both ledgers in parallel. Either source missing fails
// the whole load.
func (s *Service) loadLedgers(ctx context.Context, asOf time.Time) (Dataset[ledger.Accrual], Dataset[ledger.Return], error) {
	var (
		acc Dataset[ledger.Accrual]
		ret Dataset[ledger.Return]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		acc, err = s.loader.Accruals(gctx, asOf)
		return err
	})
	g.Go(func() error {
		var err error
		ret, err = s.loader.Returns(gctx, asOf)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dataset[ledger.Accrual]{}, Dataset[ledger.Return]{}, err
	}
	return acc, ret, nil
}

// cached resolves a section through the Redis cache. The key embeds the
// identity of every source the section reads, so a changed extract never
// serves stale data.
func (s *Service) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), datasets []schema.Dataset, section string, asOf time.Time, filterKey string) error {
	parts := []string{section, asOf.Format(time.DateOnly)}
	for _, ds := range datasets {
		src, err := s.loader.Stat(ds)
		if err != nil {
			return err
		}
		parts = append(parts, sourceToken(src))
	}
	parts = append(parts, uuid.NewSHA1(uuid.NameSpaceOID, []byte(filterKey)).String())

	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return err
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

func sourceToken(src extract.Source) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(src.Fingerprint())).String()
}

func (s *Service) logWarnings(section string, warnings []string) {
	for _, w := range warnings {
		s.logger.Warn("report section skipped", slog.String("report", section), slog.String("warning", w))
	}
}
