package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	jobmetrics "github.com/RoqueChristian/backup-inteligencia/internal/jobs"
	"github.com/RoqueChristian/backup-inteligencia/internal/ledger"
	"github.com/RoqueChristian/backup-inteligencia/internal/report"
	_ "github.com/RoqueChristian/backup-inteligencia/internal/testing/guard"
)

var asOf = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type stubExport struct {
	err       error
	dir       string
	format    report.ExportFormat
	filter    report.Filter
	preExpiry int
}

func (s *stubExport) ExportUnifiedFile(_ context.Context, dir string, format report.ExportFormat, f report.Filter) (report.Export, error) {
	s.dir, s.format, s.filter = dir, format, f
	if s.err != nil {
		return report.Export{}, s.err
	}
	return report.Export{RunID: uuid.New(), Format: format, Rows: 4, Total: decimal.NewFromInt(340), Path: dir + "/unified.xlsx"}, nil
}

func (s *stubExport) ExportPreExpiryFile(_ context.Context, dir string) (report.Export, error) {
	s.preExpiry++
	return report.Export{RunID: uuid.New(), Format: report.ExportXLSX, Rows: 1, Path: dir + "/pre-expiry.xlsx"}, nil
}

type stubSource struct {
	rows []ledger.Unified
	err  error
}

func (s stubSource) AsOf() time.Time { return asOf }

func (s stubSource) UnifiedRows(context.Context, report.Filter) ([]ledger.Unified, error) {
	return s.rows, s.err
}

type stubPublisher struct {
	rows []ledger.Unified
	asOf time.Time
	err  error
}

func (p *stubPublisher) Publish(_ context.Context, rows []ledger.Unified, at time.Time) (report.Publication, error) {
	p.rows, p.asOf = rows, at
	if p.err != nil {
		return report.Publication{}, p.err
	}
	return report.Publication{RunID: uuid.New(), AsOf: at.Format(time.DateOnly), Rows: int64(len(rows)), Total: ledger.TotalPending(rows)}, nil
}

type stubWarmup struct {
	bumps    int
	branches []string
	err      error
}

func (s *stubWarmup) Invalidate(context.Context) (int64, error) {
	s.bumps++
	return int64(s.bumps + 1), nil
}

func (s *stubWarmup) AccrualDashboard(_ context.Context, f report.Filter) (report.AccrualDashboard, error) {
	s.branches = append(s.branches, f.Branch)
	return report.AccrualDashboard{}, s.err
}

func (s *stubWarmup) ReturnsDashboard(context.Context, report.Filter) (report.ReturnsDashboard, error) {
	return report.ReturnsDashboard{}, nil
}

func (s *stubWarmup) UnifiedSummary(context.Context, report.Filter) (report.UnifiedSummary, error) {
	return report.UnifiedSummary{}, nil
}

func TestUnifiedExportJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := &stubExport{}
	job := NewUnifiedExportJob(svc, "/srv/exports", quietLogger(), jobmetrics.NewMetrics(reg))

	task, err := NewUnifiedExportTask(UnifiedExportPayload{Format: report.ExportCSV, Filter: report.Filter{Branch: report.BranchGroup}, IncludePreExpiry: true})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, "/srv/exports", svc.dir)
	require.Equal(t, report.ExportCSV, svc.format)
	require.Equal(t, report.BranchGroup, svc.filter.Branch)
	require.Equal(t, 1, svc.preExpiry)

	count, err := testutil.GatherAndCount(reg, "inteligencia_jobs_total", "inteligencia_job_rows_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestUnifiedExportTaskDefaultsAndRejects(t *testing.T) {
	task, err := NewUnifiedExportTask(UnifiedExportPayload{})
	require.NoError(t, err)
	var payload UnifiedExportPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, report.ExportXLSX, payload.Format)

	_, err = NewUnifiedExportTask(UnifiedExportPayload{Format: "pdf"})
	require.ErrorIs(t, err, report.ErrUnknownFormat)
}

func TestMissingSourceIsNotRetried(t *testing.T) {
	svc := &stubExport{err: fmt.Errorf("%w: /data/verbas.csv", extract.ErrSourceNotFound)}
	job := NewUnifiedExportJob(svc, t.TempDir(), quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewUnifiedExportTask(UnifiedExportPayload{})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, extract.ErrSourceNotFound)
	require.Zero(t, svc.preExpiry)
}

func TestBadPayloadIsNotRetried(t *testing.T) {
	job := NewCacheWarmupJob(&stubWarmup{}, quietLogger(), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskCacheWarmup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPublishUnifiedJob(t *testing.T) {
	rows := []ledger.Unified{
		{Type: ledger.KindAccrual, PendingAmount: decimal.NewFromInt(100)},
		{Type: ledger.KindReturn, PendingAmount: decimal.NewFromInt(40)},
	}
	pub := &stubPublisher{}
	job := NewPublishUnifiedJob(stubSource{rows: rows}, pub, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewPublishUnifiedTask(asOf)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, pub.rows, 2)
	require.Equal(t, asOf, pub.asOf)

	pub.err = errors.New("connection refused")
	err = job.Handle(context.Background(), task)
	require.ErrorContains(t, err, "connection refused")
	require.NotErrorIs(t, err, asynq.SkipRetry, "database failures are retried")

	require.Error(t, NewPublishUnifiedJob(stubSource{}, nil, nil, nil).Handle(context.Background(), task))
}

func TestCacheWarmupJob(t *testing.T) {
	svc := &stubWarmup{}
	job := NewCacheWarmupJob(svc, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewCacheWarmupTask(true, asOf)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, svc.bumps)
	require.Equal(t, []string{"", report.BranchGroup, report.BranchDepot}, svc.branches)

	task, err = NewCacheWarmupTask(false, asOf)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, svc.bumps)

	svc.err = fmt.Errorf("%w: Filter.Branch", report.ErrInvalidFilter)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestReportSchedule(t *testing.T) {
	entries, err := ReportSchedule("0 6 * * *", true)
	require.NoError(t, err)
	var types []string
	for _, e := range entries {
		types = append(types, e.Task.Type())
	}
	require.Equal(t, []string{TaskCacheWarmup, TaskUnifiedExport, TaskPublishUnified}, types)

	entries, err = ReportSchedule("0 6 * * *", false)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = ReportSchedule("", true)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = ReportSchedule("every morning", true)
	require.Error(t, err)
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewCacheWarmupTask(false, asOf)
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Logger:    quietLogger(),
		Cron:      []CronRegistration{{Spec: "61 * * * *", Task: task}},
	})
	require.ErrorContains(t, err, "report:cache_warmup")
}

func TestBuildTrigger(t *testing.T) {
	for _, name := range TriggerNames {
		task, err := BuildTrigger(name, "", asOf)
		require.NoError(t, err, name)
		require.NotNil(t, task)
	}
	_, err := BuildTrigger("reindex", "", asOf)
	require.ErrorIs(t, err, ErrUnknownTask)
}

type stubEnqueuer struct {
	tasks []string
	err   error
}

func (s *stubEnqueuer) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task.Type())
	return &asynq.TaskInfo{ID: "t-1", Queue: QueueExports, Type: task.Type()}, nil
}

func jobsRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestHealthWithoutInspector(t *testing.T) {
	rec := httptest.NewRecorder()
	jobsRouter(NewHandler(nil, nil, quietLogger())).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queues":[
		{"queue":"default","pending":0,"active":0,"retry":0,"archived":0},
		{"queue":"exports","pending":0,"active":0,"retry":0,"archived":0}]}`, rec.Body.String())
}

func TestTriggerEndpoint(t *testing.T) {
	enq := &stubEnqueuer{}
	router := jobsRouter(NewHandler(nil, enq, quietLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/trigger/publish", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"id":"t-1","queue":"exports","type":"report:publish_unified"}`, rec.Body.String())
	require.Equal(t, []string{TaskPublishUnified}, enq.tasks)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/trigger/export?format=pdf", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/trigger/reindex", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	jobsRouter(NewHandler(nil, nil, quietLogger())).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/trigger/warmup", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
