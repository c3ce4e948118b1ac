package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	jobmetrics "github.com/RoqueChristian/backup-inteligencia/internal/jobs"
	"github.com/RoqueChristian/backup-inteligencia/internal/ledger"
	"github.com/RoqueChristian/backup-inteligencia/internal/report"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// warmupScopes are the branch scopes the dashboards open with.
var warmupScopes = []report.Filter{
	{},
	{Branch: report.BranchGroup},
	{Branch: report.BranchDepot},
}

// ExportService writes report files.
type ExportService interface {
	ExportUnifiedFile(ctx context.Context, dir string, format report.ExportFormat, f report.Filter) (report.Export, error)
	ExportPreExpiryFile(ctx context.Context, dir string) (report.Export, error)
}

// PublishSource provides the rows a publish run copies.
type PublishSource interface {
	AsOf() time.Time
	UnifiedRows(ctx context.Context, f report.Filter) ([]ledger.Unified, error)
}

// UnifiedPublisher persists a unified snapshot.
type UnifiedPublisher interface {
	Publish(ctx context.Context, rows []ledger.Unified, asOf time.Time) (report.Publication, error)
}

// WarmupService computes the cached dashboard sections.
type WarmupService interface {
	Invalidate(ctx context.Context) (int64, error)
	AccrualDashboard(ctx context.Context, f report.Filter) (report.AccrualDashboard, error)
	ReturnsDashboard(ctx context.Context, f report.Filter) (report.ReturnsDashboard, error)
	UnifiedSummary(ctx context.Context, f report.Filter) (report.UnifiedSummary, error)
}

// UnifiedExportJob writes scheduled exports into Dir.
type UnifiedExportJob struct {
	Service ExportService
	Dir     string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewUnifiedExportJob wires dependencies for the export handler.
func NewUnifiedExportJob(service ExportService, dir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *UnifiedExportJob {
	return &UnifiedExportJob{Service: service, Dir: dir, Logger: logger, Metrics: metrics}
}

// Handle processes export tasks.
func (j *UnifiedExportJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("unified export: handler not configured")
	}
	var payload UnifiedExportPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	format, err := report.ParseExportFormat(string(payload.Format))
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskUnifiedExport)
	defer func() { resultErr = tracker.End(resultErr) }()

	logger := jobLogger(j.Logger, TaskUnifiedExport).With(slog.String("format", string(format)))
	exp, err := j.Service.ExportUnifiedFile(ctx, j.Dir, format, payload.Filter)
	if err != nil {
		logger.Error("unified export failed", slog.Any("error", err))
		return permanent(err)
	}
	metricsOrDefault(j.Metrics).AddRows(TaskUnifiedExport, int64(exp.Rows))
	logger.Info("unified export completed",
		slog.String("run_id", exp.RunID.String()), slog.String("path", exp.Path),
		slog.Int("rows", exp.Rows), slog.String("total", exp.Total.StringFixed(2)))

	if payload.IncludePreExpiry {
		pre, err := j.Service.ExportPreExpiryFile(ctx, j.Dir)
		if err != nil {
			logger.Error("pre-expiry export failed", slog.Any("error", err))
			return permanent(err)
		}
		logger.Info("pre-expiry export completed", slog.String("path", pre.Path), slog.Int("rows", pre.Rows))
	}
	return nil
}

// PublishUnifiedJob copies the unified ledger into Postgres.
type PublishUnifiedJob struct {
	Source    PublishSource
	Publisher UnifiedPublisher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewPublishUnifiedJob wires dependencies for the publish handler.
func NewPublishUnifiedJob(source PublishSource, publisher UnifiedPublisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *PublishUnifiedJob {
	return &PublishUnifiedJob{Source: source, Publisher: publisher, Logger: logger, Metrics: metrics}
}

// Handle processes publish tasks.
func (j *PublishUnifiedJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil || j.Publisher == nil {
		return errors.New("publish unified: handler not configured")
	}
	var payload PublishUnifiedPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskPublishUnified)
	defer func() { resultErr = tracker.End(resultErr) }()

	logger := jobLogger(j.Logger, TaskPublishUnified)
	asOf := j.Source.AsOf()
	rows, err := j.Source.UnifiedRows(ctx, report.Filter{})
	if err != nil {
		logger.Error("load unified rows", slog.Any("error", err))
		return permanent(err)
	}
	pub, err := j.Publisher.Publish(ctx, rows, asOf)
	if err != nil {
		logger.Error("publish unified", slog.Any("error", err))
		return err
	}
	metricsOrDefault(j.Metrics).AddRows(TaskPublishUnified, pub.Rows)
	logger.Info("unified snapshot published",
		slog.String("run_id", pub.RunID.String()), slog.String("as_of", pub.AsOf), slog.Int64("rows", pub.Rows))
	return nil
}

// CacheWarmupJob pre-populates the section cache.
type CacheWarmupJob struct {
	Service WarmupService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCacheWarmupJob wires dependencies for the warmup handler.
func NewCacheWarmupJob(service WarmupService, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheWarmupJob {
	return &CacheWarmupJob{Service: service, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle processes warmup tasks.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var payload CacheWarmupPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskCacheWarmup)
	defer func() { resultErr = tracker.End(resultErr) }()

	logger := jobLogger(j.Logger, TaskCacheWarmup)
	start := j.now()
	if payload.Refresh {
		version, err := j.Service.Invalidate(ctx)
		if err != nil {
			logger.Error("bump cache version", slog.Any("error", err))
			return err
		}
		logger.Info("cache version bumped", slog.Int64("version", version))
	}
	for _, scope := range warmupScopes {
		if err := j.warmScope(ctx, scope); err != nil {
			logger.Error("warm scope", slog.String("branch", scope.Branch), slog.Any("error", err))
			return permanent(err)
		}
	}
	logger.Info("completed cache warmup", slog.Int("scopes", len(warmupScopes)), slog.Duration("duration", j.now().Sub(start)))
	return nil
}

func (j *CacheWarmupJob) warmScope(ctx context.Context, scope report.Filter) error {
	scopeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := j.Service.AccrualDashboard(scopeCtx, scope); err != nil {
		return err
	}
	if _, err := j.Service.ReturnsDashboard(scopeCtx, scope); err != nil {
		return err
	}
	_, err := j.Service.UnifiedSummary(scopeCtx, scope)
	return err
}

func (j *CacheWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

// permanent marks errors a retry cannot fix so asynq archives the task.
func permanent(err error) error {
	if errors.Is(err, extract.ErrSourceNotFound) ||
		errors.Is(err, report.ErrInvalidFilter) ||
		errors.Is(err, report.ErrUnknownFormat) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
