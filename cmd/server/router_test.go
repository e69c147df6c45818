package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"chatpulse/internal/messaging"
	"chatpulse/internal/messaging/gateway"
	"chatpulse/internal/messaging/messagingtest"
	"chatpulse/internal/platform/config"
	"chatpulse/internal/platform/health"
	"chatpulse/internal/session/bus"
	"chatpulse/internal/session/handler"
	"chatpulse/internal/session/metrics"
	"chatpulse/internal/session/registry"
	"chatpulse/internal/session/service"
	"chatpulse/pkg/platform/middleware/admin"
)

const testAdminToken = "router-test-token"

type RouterSuite struct {
	suite.Suite
	backend *messagingtest.PushBackend
	bus     *bus.Bus
	router  http.Handler
	deps    routerDeps
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	s.bus = bus.New(bus.WithMetrics(m))
	sessions := registry.New(s.bus, registry.WithMetrics(m))
	s.backend = messagingtest.NewPush()
	manager := service.New(sessions, s.backend, service.WithMetrics(m), service.WithLogger(log))

	s.deps = routerDeps{
		cfg: config.Server{
			AdminToken:     testAdminToken,
			RequestTimeout: 5 * time.Second,
			Session:        config.SessionConfig{SSEHeartbeat: time.Second},
		},
		manager:  manager,
		events:   s.bus,
		health:   health.New("test"),
		registry: promReg,
		logger:   log,
	}
	s.router = newRouter(s.deps)
}

func (s *RouterSuite) TearDownTest() {
	s.bus.Close()
}

func (s *RouterSuite) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set(admin.HeaderToken, testAdminToken)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) session(path string) handler.SessionResponse {
	rec := s.do(http.MethodGet, path, "", true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp handler.SessionResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *RouterSuite) TestProbesAndMetricsNeedNoToken() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health/live", "", false).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health/ready", "", false).Code)

	rec := s.do(http.MethodGet, "/metrics", "", false)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "chatpulse_bus_subscribers")
}

func (s *RouterSuite) TestSessionAPIRequiresAdminToken() {
	rec := s.do(http.MethodGet, "/sessions", "", false)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestWebhookRouteOnlyWithGateway() {
	rec := s.do(http.MethodPost, "/webhooks/gateway/acme", `{}`, false)
	s.Equal(http.StatusNotFound, rec.Code)

	gw, err := gateway.New(gateway.Config{
		BaseURL:        "http://127.0.0.1:1",
		WebhookBaseURL: "http://localhost:8080",
		WebhookSecret:  "secret",
	})
	s.Require().NoError(err)
	s.deps.gateway = gw
	s.deps.registry = prometheus.NewRegistry()
	s.router = newRouter(s.deps)

	rec = s.do(http.MethodPost, "/webhooks/gateway/acme", `{}`, false)
	s.Equal(http.StatusUnauthorized, rec.Code, "webhooks authenticate with their own bearer token")
}

func (s *RouterSuite) TestTenantLifecycleOverHTTP() {
	rec := s.do(http.MethodPost, "/sessions", `{"tenantId":"acme","displayInfo":{"name":"Acme"}}`, true)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/sessions/acme/auth", "", true)
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())

	s.True(s.backend.Emit("acme", messaging.Signal{Kind: messaging.SignalArtifactIssued, Artifact: "QR-1"}))
	got := s.session("/sessions/acme")
	s.Equal("authPending", got.State)
	s.Equal("QR-1", got.AuthArtifact)

	s.backend.Emit("acme", messaging.Signal{Kind: messaging.SignalAuthAccepted, AccountID: "+4915100000000"})
	s.backend.Emit("acme", messaging.Signal{Kind: messaging.SignalReady})
	got = s.session("/sessions/acme")
	s.Equal("connected", got.State)
	s.Equal("+4915100000000", got.DisplayInfo.AccountID)

	rec = s.do(http.MethodPost, "/sessions/acme/send", `{"destination":"+4917000000000","content":"hello"}`, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Len(s.backend.Sent(), 1)

	s.Equal(http.StatusUnsupportedMediaType, s.withContentType(http.MethodPost, "/sessions/acme/send", "destination=x", "text/plain").Code)

	rec = s.do(http.MethodPost, "/sessions/acme/disconnect", "", true)
	s.Require().Equal(http.StatusNoContent, rec.Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/sessions/acme", "", true).Code)
}

func (s *RouterSuite) withContentType(method, path, body, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(admin.HeaderToken, testAdminToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}
