package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
)

type HealthSuite struct {
	suite.Suite
	handler *Handler
	router  chi.Router
}

func TestHealthSuite(t *testing.T) {
	suite.Run(t, new(HealthSuite))
}

func (s *HealthSuite) SetupTest() {
	s.handler = New("test")
	s.router = chi.NewRouter()
	s.handler.Register(s.router)
}

func (s *HealthSuite) get(path string) (*httptest.ResponseRecorder, ReadinessResponse) {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body ReadinessResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

type namedChecker struct {
	name string
	err  error
}

func (c namedChecker) Name() string                { return c.name }
func (c namedChecker) Check(context.Context) error { return c.err }

func (s *HealthSuite) TestLiveness() {
	rec, body := s.get("/health/live")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("alive", body.Status)
}

func (s *HealthSuite) TestReadyWhenAllChecksPass() {
	s.handler.RegisterChecker(namedChecker{name: "postgres"})
	s.handler.RegisterCheck("redis", func(context.Context) error { return nil })

	rec, body := s.get("/health/ready")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("ready", body.Status)
	s.Equal(map[string]string{"postgres": "up", "redis": "up"}, body.Checks)
}

func (s *HealthSuite) TestRequiredFailureIsNotReady() {
	s.handler.RegisterChecker(namedChecker{name: "kafka", err: errors.New("no brokers")})

	rec, body := s.get("/health/ready")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal("not_ready", body.Status)
	s.Equal("down: no brokers", body.Checks["kafka"])
}

func (s *HealthSuite) TestOptionalFailureDegrades() {
	s.handler.RegisterOptionalCheck("gateway", func(context.Context) error { return errors.New("circuit open") })

	rec, body := s.get("/health/ready")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("degraded", body.Status)
}

func (s *HealthSuite) TestChecksShareATimeout() {
	s.handler.checkTimeout = 20 * time.Millisecond
	s.handler.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	rec, body := s.get("/health/ready")
	s.Less(time.Since(start), time.Second)
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Contains(body.Checks["slow"], "deadline exceeded")
}

func (s *HealthSuite) TestDrainingIsNotReady() {
	s.handler.SetDraining()
	rec, body := s.get("/health/ready")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal("draining", body.Status)
}

func (s *HealthSuite) TestStatus() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body StatusResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("healthy", body.Status)
	s.Equal("test", body.Environment)
	s.Equal(Version, body.Version)
}
