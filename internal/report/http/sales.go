package reporthttp

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/RoqueChristian/backup-inteligencia/internal/platform/httpx"
	"github.com/RoqueChristian/backup-inteligencia/internal/report"
	"github.com/RoqueChristian/backup-inteligencia/internal/sales"
)

func (h *Handler) handleSalesDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	dash, err := h.service.SalesDashboard(ctx, parseSalesFilter(r))
	if err != nil {
		h.handleError(w, "sales dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) handleSalesCustomers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	out, err := h.service.SalesCustomers(ctx, parseSalesFilter(r))
	if err != nil {
		h.handleError(w, "sales customers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleCustomerProfile(w http.ResponseWriter, r *http.Request) {
	code, err := customerParam(r)
	if err != nil {
		h.handleError(w, "parse customer", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := h.service.CustomerProfile(ctx, parseSalesFilter(r), code)
	if err != nil {
		h.handleError(w, "customer profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleCrossSell(w http.ResponseWriter, r *http.Request) {
	code, err := customerParam(r)
	if err != nil {
		h.handleError(w, "parse customer", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	out, err := h.service.CrossSell(ctx, parseSalesFilter(r), code)
	if err != nil {
		h.handleError(w, "cross-sell", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleMixErosion(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	out, err := h.service.MixErosion(ctx, parseSalesFilter(r))
	if err != nil {
		h.handleError(w, "mix erosion", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleItemHistory(w http.ResponseWriter, r *http.Request) {
	code, err := customerParam(r)
	if err != nil {
		h.handleError(w, "parse customer", err)
		return
	}
	limit := sales.DefaultHistoryRows
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.handleError(w, "parse limit", validationError{field: "limit"})
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	out, err := h.service.ItemHistory(ctx, parseSalesFilter(r), code, limit)
	if err != nil {
		h.handleError(w, "item history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleItemHistoryExport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseExportFormat(chi.URLParam(r, "format"))
	if err == nil && format == report.ExportParquet {
		err = fmt.Errorf("%w: %q", report.ErrUnknownFormat, format)
	}
	if err != nil {
		h.handleError(w, "export format", err)
		return
	}
	code, err := customerParam(r)
	if err != nil {
		h.handleError(w, "parse customer", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	hist, err := h.service.ItemHistory(ctx, parseSalesFilter(r), code, 0)
	if err != nil {
		h.handleError(w, "item history", err)
		return
	}
	buf := h.exportPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.exportPool.Put(buf)
	}()
	if err := report.WriteItemHistory(buf, format, hist); err != nil {
		h.handleError(w, "write item history", err)
		return
	}
	h.sendFile(w, format.ContentType(), fmt.Sprintf("items-%d-%s.%s", code, h.now().Format("20060102"), format), buf)
}

func parseSalesFilter(r *http.Request) sales.Filter {
	return sales.Filter{Sellers: upperList(listParam(r.URL.Query()["seller"]))}
}

func customerParam(r *http.Request) (int64, error) {
	code, err := strconv.ParseInt(chi.URLParam(r, "code"), 10, 64)
	if err != nil {
		return 0, validationError{field: "customer"}
	}
	return code, nil
}
