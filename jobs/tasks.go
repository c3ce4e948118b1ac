package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/RoqueChristian/backup-inteligencia/internal/report"
)

const (
	// QueueDefault serves short maintenance tasks.
	QueueDefault = "default"
	// QueueExports serves tasks that write files or copy into Postgres.
	QueueExports = "exports"

	// TaskUnifiedExport writes the unified ledger to the export directory.
	TaskUnifiedExport = "report:unified_export"
	// TaskPublishUnified replaces the Postgres snapshot of the unified ledger.
	TaskPublishUnified = "report:publish_unified"
	// TaskCacheWarmup precomputes the dashboard sections for the common scopes.
	TaskCacheWarmup = "report:cache_warmup"
)

// UnifiedExportPayload configures an export run.
type UnifiedExportPayload struct {
	Format           report.ExportFormat `json:"format"`
	Filter           report.Filter       `json:"filter"`
	IncludePreExpiry bool                `json:"include_pre_expiry,omitempty"`
	ScheduledFor     time.Time           `json:"scheduled_for"`
}

// PublishUnifiedPayload carries scheduling metadata.
type PublishUnifiedPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// CacheWarmupPayload selects whether the warmup drops existing sections first.
type CacheWarmupPayload struct {
	Refresh      bool      `json:"refresh"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewUnifiedExportTask constructs an export task. An empty format means xlsx.
func NewUnifiedExportTask(payload UnifiedExportPayload) (*asynq.Task, error) {
	if payload.Format == "" {
		payload.Format = report.ExportXLSX
	}
	if _, err := report.ParseExportFormat(string(payload.Format)); err != nil {
		return nil, err
	}
	return newTask(TaskUnifiedExport, payload, asynq.Queue(QueueExports), asynq.Timeout(10*time.Minute))
}

// NewPublishUnifiedTask constructs a publish task.
func NewPublishUnifiedTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskPublishUnified, PublishUnifiedPayload{ScheduledFor: at},
		asynq.Queue(QueueExports), asynq.MaxRetry(3), asynq.Timeout(10*time.Minute))
}

// NewCacheWarmupTask constructs a warmup task.
func NewCacheWarmupTask(refresh bool, at time.Time) (*asynq.Task, error) {
	return newTask(TaskCacheWarmup, CacheWarmupPayload{Refresh: refresh, ScheduledFor: at}, asynq.Queue(QueueDefault))
}

func newTask(typename string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, body, opts...), nil
}

func decodePayload(t *asynq.Task, dest any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dest); err != nil {
		return fmt.Errorf("%s: decode payload: %w", t.Type(), asynq.SkipRetry)
	}
	return nil
}
