package reporthttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/inventory"
	"github.com/RoqueChristian/backup-inteligencia/internal/ledger"
	"github.com/RoqueChristian/backup-inteligencia/internal/platform/httpx"
	"github.com/RoqueChristian/backup-inteligencia/internal/report"
	"github.com/RoqueChristian/backup-inteligencia/internal/sales"
)

const requestTimeout = 30 * time.Second

// ReportService is the report contract the handler depends on.
type ReportService interface {
	AccrualDashboard(ctx context.Context, f report.Filter) (report.AccrualDashboard, error)
	ReturnsDashboard(ctx context.Context, f report.Filter) (report.ReturnsDashboard, error)
	Unified(ctx context.Context, f report.Filter) (report.UnifiedView, error)
	UnifiedSummary(ctx context.Context, f report.Filter) (report.UnifiedSummary, error)
	UnifiedRows(ctx context.Context, f report.Filter) ([]ledger.Unified, error)
	Aggregate(ctx context.Context, q report.AggregateQuery) (report.AggregateView, error)
	Excess(ctx context.Context) (report.ExcessView, error)
	PreExpiry(ctx context.Context) ([]inventory.PreExpiryLine, error)
	SalesDashboard(ctx context.Context, f sales.Filter) (sales.Dashboard, error)
	SalesCustomers(ctx context.Context, f sales.Filter) ([]sales.CustomerRef, error)
	CustomerProfile(ctx context.Context, f sales.Filter, code int64) (sales.Profile, error)
	CrossSell(ctx context.Context, f sales.Filter, code int64) (sales.CrossSell, error)
	MixErosion(ctx context.Context, f sales.Filter) ([]sales.Erosion, error)
	ItemHistory(ctx context.Context, f sales.Filter, code int64, limit int) (sales.ItemHistory, error)
	Invalidate(ctx context.Context) (int64, error)
}

var errorRules = []httpx.Rule{
	{Target: extract.ErrSourceNotFound, Status: http.StatusNotFound, Title: "Source Not Found"},
	{Target: sales.ErrCustomerNotFound, Status: http.StatusNotFound, Title: "Customer Not Found"},
	{Target: report.ErrInvalidFilter, Status: http.StatusBadRequest, Title: "Invalid Filter"},
	{Target: report.ErrUnknownSource, Status: http.StatusBadRequest, Title: "Invalid Filter"},
	{Target: report.ErrUnknownFormat, Status: http.StatusBadRequest, Title: "Invalid Filter"},
	{Target: inventory.ErrInvalidPolicy, Status: http.StatusInternalServerError, Title: "Invalid Policy"},
	{Target: context.DeadlineExceeded, Status: http.StatusGatewayTimeout, Title: "Timeout"},
}

// Handler serves the report endpoints as JSON and file downloads.
type Handler struct {
	logger     *slog.Logger
	service    ReportService
	exportPool sync.Pool
	now        func() time.Time
}

// NewHandler constructs the report HTTP handler.
func NewHandler(logger *slog.Logger, service ReportService) *Handler {
	h := &Handler{logger: logger, service: service, now: time.Now}
	h.exportPool.New = func() any { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) handleAccrual(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.handleError(w, "parse filter", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	dash, err := h.service.AccrualDashboard(ctx, filter)
	if err != nil {
		h.handleError(w, "accrual dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) handleReturns(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.handleError(w, "parse filter", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	dash, err := h.service.ReturnsDashboard(ctx, filter)
	if err != nil {
		h.handleError(w, "returns dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) handleUnified(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.handleError(w, "parse filter", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, err := h.service.Unified(ctx, filter)
	if err != nil {
		h.handleError(w, "unified view", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleUnifiedSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.handleError(w, "parse filter", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sum, err := h.service.UnifiedSummary(ctx, filter)
	if err != nil {
		h.handleError(w, "unified summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

type overview struct {
	Accrual report.AccrualDashboard `json:"accrual"`
	Returns report.ReturnsDashboard `json:"returns"`
	Unified report.UnifiedSummary   `json:"unified"`
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.handleError(w, "parse filter", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	data, err := h.loadOverview(ctx, filter)
	if err != nil {
		h.handleError(w, "load overview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func (h *Handler) loadOverview(ctx context.Context, filter report.Filter) (overview, error) {
	var data overview
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dash, err := h.service.AccrualDashboard(ctx, filter)
		if err != nil {
			return err
		}
		data.Accrual = dash
		return nil
	})
	g.Go(func() error {
		dash, err := h.service.ReturnsDashboard(ctx, filter)
		if err != nil {
			return err
		}
		data.Returns = dash
		return nil
	})
	g.Go(func() error {
		sum, err := h.service.UnifiedSummary(ctx, filter)
		if err != nil {
			return err
		}
		data.Unified = sum
		return nil
	})
	if err := g.Wait(); err != nil {
		return overview{}, err
	}
	return data, nil
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := strings.ToLower(strings.TrimSpace(q.Get("source")))
	if source == "" {
		source = report.SourceAccrual
	}
	keys := listParam(q["keys"])
	field := strings.TrimSpace(q.Get("field"))
	if len(keys) == 0 {
		h.handleError(w, "parse aggregate", validationError{field: "keys"})
		return
	}
	if field == "" {
		h.handleError(w, "parse aggregate", validationError{field: "field"})
		return
	}
	where, err := report.ParseCondition(q.Get("where"))
	if err != nil {
		h.handleError(w, "parse aggregate", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, err := h.service.Aggregate(ctx, report.AggregateQuery{Source: source, Keys: keys, Field: field, Where: where})
	if err != nil {
		h.handleError(w, "aggregate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleExcess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, err := h.service.Excess(ctx)
	if err != nil {
		h.handleError(w, "excess valuation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleUnifiedExport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseExportFormat(chi.URLParam(r, "format"))
	if err != nil {
		h.handleError(w, "export format", err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		h.handleError(w, "parse filter", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rows, err := h.service.UnifiedRows(ctx, filter)
	if err != nil {
		h.handleError(w, "load unified", err)
		return
	}

	buf := h.exportPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.exportPool.Put(buf)
	}()
	if err := report.WriteUnified(buf, format, rows); err != nil {
		h.handleError(w, "write unified export", err)
		return
	}
	h.sendFile(w, format.ContentType(), fmt.Sprintf("unified-%s.%s", h.now().Format("20060102"), format), buf)
}

func (h *Handler) handlePreExpiry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	lines, err := h.service.PreExpiry(ctx)
	if err != nil {
		h.handleError(w, "pre-expiry", err)
		return
	}
	buf := h.exportPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.exportPool.Put(buf)
	}()
	if err := report.WritePreExpiry(buf, lines); err != nil {
		h.handleError(w, "write pre-expiry", err)
		return
	}
	h.sendFile(w, report.ExportXLSX.ContentType(), fmt.Sprintf("pre-expiry-%s.xlsx", h.now().Format("20060102")), buf)
}

func (h *Handler) handleBump(w http.ResponseWriter, r *http.Request) {
	version, err := h.service.Invalidate(r.Context())
	if err != nil {
		h.handleError(w, "bump cache", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"version": version})
}

func (h *Handler) sendFile(w http.ResponseWriter, contentType, filename string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream export", err)
	}
}

// parseFilter reads the dashboard filter from the query string. List
// parameters accept repeated keys and comma separated values.
func parseFilter(r *http.Request) (report.Filter, error) {
	q := r.URL.Query()
	f := report.Filter{
		Branch:          strings.TrimSpace(q.Get("branch")),
		Classifications: listParam(q["classification"]),
		Statuses:        upperList(listParam(q["status"])),
		Buyers:          listParam(q["buyer"]),
		Supplier:        strings.TrimSpace(q.Get("supplier")),
	}
	for _, raw := range listParam(q["year"]) {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return report.Filter{}, validationError{field: "year"}
		}
		f.Years = append(f.Years, year)
	}
	for _, raw := range upperList(listParam(q["aging"])) {
		f.Aging = append(f.Aging, aging.Status(raw))
	}
	return f, nil
}

func listParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func upperList(values []string) []string {
	for i, v := range values {
		values[i] = strings.ToUpper(v)
	}
	return values
}

func (h *Handler) handleError(w http.ResponseWriter, context string, err error) {
	var vErr validationError
	if errors.As(err, &vErr) {
		err = fmt.Errorf("%w: %s", httpx.ErrValidation, vErr.Error())
	}
	if httpx.StatusFor(err, errorRules...) >= http.StatusInternalServerError {
		h.logError(context, err)
	}
	httpx.RespondError(w, err, errorRules...)
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return fmt.Sprintf("invalid %s", v.field)
}
