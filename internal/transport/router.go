package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/swarm-handbook/editor/internal/catalog"
	"github.com/swarm-handbook/editor/internal/config"
	"github.com/swarm-handbook/editor/internal/observability"
	"github.com/swarm-handbook/editor/internal/schema"
	"github.com/swarm-handbook/editor/internal/session"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config   *config.Config
	Catalog  *catalog.Catalog
	Schema   *schema.Schema // nil when no schema is configured
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Logger   *zap.Logger

	HealthHandler  http.Handler
	ReadyHandler   http.Handler
	MetricsHandler http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints skip request
// logging and the handler timeout.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)
	r.Use(deps.Metrics.MetricsMiddleware)

	r.Method(http.MethodGet, "/ui/health", orDefault(deps.HealthHandler, observability.HandleHealth()))
	r.Method(http.MethodGet, "/ui/ready", orDefault(deps.ReadyHandler, observability.HandleReady(observability.ReadinessChecks{
		CatalogLoaded: deps.Catalog.Loaded,
	})))
	if m := deps.Config.Observability.Metrics; m.Enabled && deps.MetricsHandler != nil {
		r.Method(http.MethodGet, m.Path, deps.MetricsHandler)
	}

	h := &handlers{
		catalog:   deps.Catalog,
		schema:    deps.Schema,
		sessions:  deps.Sessions,
		metrics:   deps.Metrics,
		logger:    logger,
		maxUpload: deps.Config.Server.MaxUploadBytes,
	}

	r.Group(func(r chi.Router) {
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		r.Get("/ui/catalog", h.listCatalog)
		r.Get("/ui/catalog/{productId}", h.getProduct)
		r.Get("/ui/catalog/{productId}/preview", h.previewProduct)
		r.Get("/ui/schema", h.getSchema)

		r.Post("/ui/sessions", h.createSession)
		r.Route("/ui/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.deleteSession)
			r.Get("/form", h.getForm)
			r.Put("/widgets", h.putWidgets)
			r.Post("/refresh", h.refresh)
			r.Post("/load", h.load)
			r.Post("/upload", h.upload)
			r.Get("/download", h.download)
		})
	})

	return r
}

func orDefault(h, fallback http.Handler) http.Handler {
	if h == nil {
		return fallback
	}
	return h
}
