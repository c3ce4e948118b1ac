package app

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/report"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// ServiceOptions carries the optional collaborators of the report service.
type ServiceOptions struct {
	// Redis enables the section cache. Nil computes every view directly.
	Redis *redis.Client
	// Registerer receives the loader metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	// Clock pins the evaluation date.
	Clock aging.Clock
}

// NewReportService wires the loader, cache and schema described by cfg.
func NewReportService(cfg *Config, logger *slog.Logger, opts ServiceOptions) (*report.Service, error) {
	sch, err := schema.Load(cfg.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	var metrics *report.Metrics
	if opts.Registerer != nil {
		metrics = report.NewMetrics(opts.Registerer)
	}
	loader := report.NewLoader(cfg.Sources(), sch, cfg.ExtractOptions(), metrics)
	svc := report.NewService(loader, report.NewCache(opts.Redis, cfg.ReportCacheTTL), logger)
	if opts.Clock != nil {
		svc = svc.WithClock(opts.Clock)
	}
	return svc, nil
}
