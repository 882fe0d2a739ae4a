package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campusledger/campusledger/internal/auth"
	"github.com/campusledger/campusledger/internal/fees"
	"github.com/campusledger/campusledger/internal/masterdata"
	"github.com/campusledger/campusledger/internal/observability"
	"github.com/campusledger/campusledger/internal/rbac"
	"github.com/campusledger/campusledger/internal/shared"
	"github.com/campusledger/campusledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	TokenStore        *shared.TokenStore
	AuthHandler       *auth.Handler
	FeesHandler       *fees.Handler
	MasterDataHandler *masterdata.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	RBAC              rbac.Middleware
}

// NewRouter constructs the chi.Router with CampusLedger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		// Everything below requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(params.TokenStore, params.Logger))

			r.Route("/studentFees", params.FeesHandler.MountRoutes)
			if params.MasterDataHandler != nil {
				params.MasterDataHandler.MountRoutes(r)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(params.RBAC.RequireRole(auth.RoleAdmin))
					params.JobHandler.MountRoutes(r)
				})
			}
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
