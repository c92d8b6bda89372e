package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jumpindia/funzone-pos/internal/auth"
	"github.com/jumpindia/funzone-pos/internal/idempotency"
	"github.com/jumpindia/funzone-pos/internal/observability"
	"github.com/jumpindia/funzone-pos/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter, idemp *idempotency.Idempotency, authStore *auth.Store) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)
	r.Use(AuthMiddleware(authStore))
	r.Use(RateLimitMiddleware(rl))

	// Money-moving writes require an Idempotency-Key.
	keyed := r.With(IdempotencyMiddleware(idemp))

	r.Post("/v1/transactions", h.StartTransaction)
	r.Get("/v1/transactions", h.ListTransactions)
	r.Get("/v1/transactions/active", h.ActiveTransaction)
	r.Get("/v1/transactions/{id}", h.GetTransaction)
	r.Post("/v1/transactions/{id}/items", h.AddItem)
	r.Delete("/v1/transactions/{id}/items/{itemID}", h.RemoveItem)
	r.Put("/v1/transactions/{id}/discount", h.SetDiscount)
	r.Put("/v1/transactions/{id}/assignments", h.BulkAssign)
	r.Post("/v1/transactions/{id}/assignments/auto", h.AutoAssignJumpers)
	r.Delete("/v1/transactions/{id}/assignments/{guestID}", h.Unassign)
	r.Post("/v1/transactions/{id}/merge", h.MergeTransactions)
	r.Delete("/v1/transactions/{id}", h.DeleteTransaction)
	keyed.Post("/v1/transactions/{id}/checkout", h.Checkout)
	r.Get("/v1/transactions/{id}/suggestion", h.TransactionSuggestion)

	r.Post("/v1/guests", h.RegisterGuest)
	r.Get("/v1/guests", h.SearchGuests)
	keyed.Post("/v1/guests/{id}/waiver", h.SignWaiver)
	r.Get("/v1/waiver-text", h.WaiverText)
	r.Get("/v1/safety-tip", h.SafetyTip)

	r.Get("/v1/products", h.ListProducts)

	r.Get("/v1/sales", h.ListSales)
	r.Get("/v1/sales/{id}", h.GetSale)
	r.Get("/v1/sales/{id}/receipt", h.SaleReceipt)

	r.Post("/v1/drawer", h.OpenDrawer)
	r.Get("/v1/drawer", h.CurrentDrawer)
	keyed.Post("/v1/drawer/deposits", h.DrawerDeposit)
	keyed.Post("/v1/drawer/close", h.CloseDrawer)
	r.Get("/v1/drawer/history", h.DrawerHistory)

	r.Get("/v1/staff", h.ListStaff)
	r.Put("/v1/staff", h.PutStaff)
	r.Get("/v1/roles/{role}", h.GetRole)
	r.Put("/v1/roles/{role}", h.SetRole)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
