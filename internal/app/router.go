package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/checkout"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/creditnote"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/inventory"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/observability"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/refunds"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/returns"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/sales"
	"github.com/amitprasad2007/varanasisaree-sub002/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	InventoryHandler  *inventory.Handler
	CreditNoteHandler *creditnote.Handler
	SalesHandler      *sales.Handler
	ReturnsHandler    *returns.Handler
	RefundsHandler    *refunds.Handler
	CheckoutHandler   *checkout.Handler

	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
}

// NewRouter constructs the chi.Router for the back office API.
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

	r.Route("/api", func(r chi.Router) {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
		r.Route("/credit-notes", params.CreditNoteHandler.MountRoutes)
		r.Route("/transactions", params.SalesHandler.MountRoutes)
		r.Route("/returns", params.ReturnsHandler.MountRoutes)
		r.Route("/refunds", params.RefundsHandler.MountRoutes)
		r.Route("/checkout", params.CheckoutHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
