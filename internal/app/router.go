package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stocknest/stocknest/internal/adjustments"
	"github.com/stocknest/stocknest/internal/counts"
	"github.com/stocknest/stocknest/internal/ledger"
	"github.com/stocknest/stocknest/internal/purchasing"
	"github.com/stocknest/stocknest/internal/receiving"
	"github.com/stocknest/stocknest/internal/transfers"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	PurchasingHandler  *purchasing.Handler
	ReceivingHandler   *receiving.Handler
	TransfersHandler   *transfers.Handler
	AdjustmentsHandler *adjustments.Handler
	CountsHandler      *counts.Handler
	LedgerHandler      *ledger.Handler
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(TenantMiddleware)
		params.PurchasingHandler.MountRoutes(r)
		params.ReceivingHandler.MountRoutes(r)
		params.TransfersHandler.MountRoutes(r)
		params.AdjustmentsHandler.MountRoutes(r)
		params.CountsHandler.MountRoutes(r)
		params.LedgerHandler.MountRoutes(r)
	})

	return r
}
