package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chatpulse/internal/messaging/gateway"
	"chatpulse/internal/platform/config"
	"chatpulse/internal/platform/health"
	"chatpulse/internal/session/bus"
	"chatpulse/internal/session/handler"
	"chatpulse/internal/session/service"
	"chatpulse/pkg/platform/middleware/admin"
	"chatpulse/pkg/platform/middleware/request"
	"chatpulse/pkg/platform/validation"
)

type routerDeps struct {
	cfg      config.Server
	manager  *service.Manager
	events   *bus.Bus
	gateway  *gateway.Backend
	health   *health.Handler
	registry *prometheus.Registry
	logger   *slog.Logger
}

// newRouter mounts probes, metrics, the gateway webhook and the admin-guarded
// session API. Event streams sit outside the timeout middleware because
// http.TimeoutHandler buffers responses.
func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		request.Recovery(d.logger),
		request.RequestID,
		request.Logger(d.logger),
		request.LatencyMiddleware(request.NewMetrics(d.registry), routePattern),
	)

	d.health.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{Registry: d.registry}))

	if d.gateway != nil {
		r.Group(func(r chi.Router) {
			r.Use(request.BodyLimit(validation.MaxWebhookBodySize))
			handler.NewWebhook(d.gateway, d.logger).Register(r)
		})
	}

	sessions := handler.New(d.manager, d.events, d.logger, handler.WithHeartbeat(d.cfg.Session.SSEHeartbeat))
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(d.cfg.AdminToken, d.logger))
		sessions.RegisterStreams(r)

		r.Group(func(r chi.Router) {
			r.Use(
				request.Timeout(d.cfg.RequestTimeout),
				request.ContentTypeJSON,
				request.BodyLimit(validation.MaxBodySize),
			)
			sessions.Register(r)
		})
	})

	return otelhttp.NewHandler(r, "chatpulse")
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
