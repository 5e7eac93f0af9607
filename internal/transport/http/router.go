// Package httptransport assembles the HTTP surface: the middleware chain, the
// authenticated member API, the internal provider and cron paths, health,
// metrics and the static front end.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accounthandler "memberships/internal/account/handler"
	"memberships/internal/platform/metrics"
	"memberships/pkg/platform/middleware/auth"
	"memberships/pkg/platform/middleware/metadata"
	request "memberships/pkg/platform/middleware/request"
	"memberships/pkg/platform/middleware/requesttime"
)

// RouteRegistrar mounts a module's routes.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// RegisterFunc adapts a plain mount function to RouteRegistrar.
type RegisterFunc func(r chi.Router)

func (f RegisterFunc) Register(r chi.Router) { f(r) }

type Config struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	Verifier auth.TokenVerifier
	Accounts accounthandler.AccountResolver

	// Member routes run behind identity verification and account resolution.
	Member []RouteRegistrar
	// Internal routes carry their own token checks.
	Internal []RouteRegistrar

	Health         []HealthCheck
	StaticDir      string
	RequestTimeout time.Duration
	Clock          func() time.Time
}

func NewRouter(cfg Config) http.Handler {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(cfg.Logger))
	r.Use(request.Latency(cfg.Metrics, routePattern))
	r.Use(requesttime.MiddlewareWithClock(cfg.Clock))

	r.Get("/health", healthHandler(cfg.Health, cfg.Logger))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	for _, registrar := range cfg.Internal {
		registrar.Register(r)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(request.Timeout(cfg.RequestTimeout))
		}
		r.Use(auth.RequireIdentity(cfg.Verifier, cfg.Logger))
		r.Use(accounthandler.ResolveAccount(cfg.Accounts, cfg.Logger))
		for _, registrar := range cfg.Member {
			registrar.Register(r)
		}
	})

	r.NotFound(staticHandler(cfg.StaticDir))
	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "static"
}
