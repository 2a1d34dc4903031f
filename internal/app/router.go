package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/cotiza-erp/cotiza-erp/internal/documents"
	"github.com/cotiza-erp/cotiza-erp/internal/observability"
	"github.com/cotiza-erp/cotiza-erp/internal/platform/httpx"
	"github.com/cotiza-erp/cotiza-erp/internal/shared"
	"github.com/cotiza-erp/cotiza-erp/internal/taxes"
	"github.com/cotiza-erp/cotiza-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	DocumentsHandler *documents.Handler
	TaxCache         *taxes.Cache
	Metrics          *observability.Metrics
	Store            documents.Store
	JobsClient       *jobs.Client
}

// NewRouter constructs the chi.Router.
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
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		params.DocumentsHandler.MountRoutes(r)

		if params.TaxCache != nil {
			r.Get("/taxes", func(w http.ResponseWriter, req *http.Request) {
				configs, err := params.TaxCache.ActiveConfigs(req.Context())
				if err != nil {
					params.Logger.Error("list tax configs", slog.Any("error", err))
					httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
					return
				}
				httpx.JSON(w, http.StatusOK, configs)
			})
		}

		if params.JobsClient != nil && params.Store != nil {
			r.Post("/admin/expiry-sweep", func(w http.ResponseWriter, req *http.Request) {
				actor := shared.ActorFromContext(req.Context())
				role, err := params.Store.GetUserRole(req.Context(), actor)
				if err != nil || role != documents.RoleAdmin {
					httpx.Problem(w, http.StatusForbidden, "Forbidden",
						"only administrators can trigger the expiry sweep")
					return
				}
				info, err := params.JobsClient.EnqueueExpirySweep(req.Context())
				if err != nil {
					params.Logger.Error("enqueue expiry sweep", slog.Any("error", err))
					httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
					return
				}
				httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": info.ID})
			})
		}
	})

	return r
}
