package router

import (
	"log/slog"
	"net/http"

	"github.com/lendly/backend/internal/auth"
	"github.com/lendly/backend/internal/dashboard"
	"github.com/lendly/backend/internal/handlers"
	"github.com/lendly/backend/internal/middleware"
	"github.com/lendly/backend/internal/ratelimit"
	"github.com/lendly/backend/internal/registry"
)

// Handlers groups everything mounted under /api/v1.
type Handlers struct {
	Auth      *auth.Handler
	Items     *registry.Handler
	Exchanges *handlers.ExchangeHandler
	Dashboard *dashboard.Handler
}

// New returns an http.Handler that serves API under /api/v1.
// Public routes: RateLimit(ip) -> handler. Protected: BearerAuth -> RateLimit(user) -> handler.
func New(h Handlers, tokens middleware.TokenValidator, limiter ratelimit.Limiter, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.BearerAuth(tokens)
	limited := middleware.RateLimit(limiter, log)
	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, limited(fn))
	}
	protect := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authed(limited(fn)))
	}

	public("POST "+base+"/auth/register", h.Auth.Register)
	public("POST "+base+"/auth/login", h.Auth.Login)

	public("GET "+base+"/items", h.Items.ListItems)
	protect("POST "+base+"/items", h.Items.CreateItem)
	protect("POST "+base+"/items/{id}/promote", h.Items.PromoteItem)

	protect("POST "+base+"/exchanges", h.Exchanges.CreateExchange)
	protect("GET "+base+"/exchanges", h.Exchanges.ListExchanges)
	protect("GET "+base+"/exchanges/{id}", h.Exchanges.GetExchange)
	protect("POST "+base+"/exchanges/{id}/respond", h.Exchanges.Respond)
	protect("POST "+base+"/exchanges/{id}/complete", h.Exchanges.Complete)
	protect("POST "+base+"/exchanges/{id}/cancel", h.Exchanges.Cancel)
	protect("POST "+base+"/exchanges/{id}/mark-late", h.Exchanges.MarkLate)

	protect("GET "+base+"/account/me", h.Dashboard.GetMe)
	protect("GET "+base+"/wallet", h.Dashboard.GetWallet)
	protect("GET "+base+"/wallet/transactions", h.Dashboard.ListTransactions)
	protect("GET "+base+"/trust-score", h.Dashboard.GetTrustScore)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}
