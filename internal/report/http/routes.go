// Package reporthttp exposes the report service over HTTP.
package reporthttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the report endpoints onto the router. Downloads share
// a stricter per-client limit.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Route("/reports", func(rr chi.Router) {
		rr.Get("/", h.handleOverview)
		rr.Get("/accrual", h.handleAccrual)
		rr.Get("/returns", h.handleReturns)
		rr.Get("/unified", h.handleUnified)
		rr.Get("/unified/summary", h.handleUnifiedSummary)
		rr.Get("/aggregate", h.handleAggregate)
		rr.Get("/inventory/excess", h.handleExcess)
		rr.Get("/sales", h.handleSalesDashboard)
		rr.Get("/sales/customers", h.handleSalesCustomers)
		rr.Get("/sales/customers/{code}", h.handleCustomerProfile)
		rr.Get("/sales/customers/{code}/cross-sell", h.handleCrossSell)
		rr.Get("/sales/customers/{code}/items", h.handleItemHistory)
		rr.Get("/sales/mix-erosion", h.handleMixErosion)
		rr.Post("/cache/bump", h.handleBump)
		rr.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/unified/export.{format}", h.handleUnifiedExport)
			gr.Get("/inventory/pre-expiry.xlsx", h.handlePreExpiry)
			gr.Get("/sales/customers/{code}/items.{format}", h.handleItemHistoryExport)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
