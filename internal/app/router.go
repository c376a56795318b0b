package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kipuventas/kipu/internal/addresses"
	"github.com/kipuventas/kipu/internal/alerts"
	"github.com/kipuventas/kipu/internal/catalog"
	"github.com/kipuventas/kipu/internal/observability"
	"github.com/kipuventas/kipu/internal/sales"
	"github.com/kipuventas/kipu/internal/stock"
	"github.com/kipuventas/kipu/internal/users"
	"github.com/kipuventas/kipu/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SalesHandler     *sales.Handler
	CatalogHandler   *catalog.Handler
	StockHandler     *stock.Handler
	UsersHandler     *users.Handler
	AddressesHandler *addresses.Handler
	AlertsHandler    *alerts.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
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
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.CatalogHandler != nil {
			r.Route("/catalog", params.CatalogHandler.MountRoutes)
		}
		if params.StockHandler != nil {
			r.Route("/stock", params.StockHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.AddressesHandler != nil {
			r.Route("/addresses", params.AddressesHandler.MountRoutes)
		}
		if params.AlertsHandler != nil {
			r.Route("/alerts", params.AlertsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
