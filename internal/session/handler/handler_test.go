package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"chatpulse/internal/session/bus"
	"chatpulse/internal/session/handler/mocks"
	"chatpulse/internal/session/models"
	dErrors "chatpulse/pkg/domain-errors"
	"chatpulse/pkg/platform/httputil"
	adminmw "chatpulse/pkg/platform/middleware/admin"
)

const adminToken = "secret-token"

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	bus     *bus.Bus
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.bus = bus.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(s.service, s.bus, logger, WithHeartbeat(20*time.Millisecond))
	r := chi.NewRouter()
	r.Use(adminmw.RequireAdminToken(adminToken, logger))
	h.RegisterStreams(r)
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.bus.Close()
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(adminmw.HeaderToken, adminToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var body httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func summary(id models.TenantID, state models.State) models.Summary {
	return models.Summary{
		TenantID:         id,
		State:            state,
		DisplayInfo:      models.DisplayInfo{Name: "Acme"},
		LastTransitionAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func (s *HandlerSuite) TestAdminTokenRequired() {
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestCreate() {
	s.Run("creates a tenant", func() {
		s.service.EXPECT().
			Create(gomock.Any(), models.TenantID("t1"), models.DisplayInfo{Name: "Acme"}).
			Return(summary("t1", models.StateCreated), nil)

		rec := s.do(http.MethodPost, "/sessions", `{"tenantId":" t1 ","displayInfo":{"name":"Acme "}}`)
		s.Equal(http.StatusCreated, rec.Code)

		var resp SessionResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("t1", resp.TenantID)
		s.Equal("created", resp.State)
		s.Equal("Acme", resp.DisplayInfo.Name)
	})

	s.Run("duplicate maps to 409", func() {
		s.service.EXPECT().Create(gomock.Any(), models.TenantID("t1"), gomock.Any()).
			Return(models.Summary{}, dErrors.New(dErrors.CodeAlreadyExists, "tenant already exists"))

		rec := s.do(http.MethodPost, "/sessions", `{"tenantId":"t1"}`)
		s.Equal(http.StatusConflict, rec.Code)
		s.Equal("already_exists", s.errorCode(rec))
	})

	s.Run("missing tenant id never reaches the service", func() {
		rec := s.do(http.MethodPost, "/sessions", `{"displayInfo":{"name":"Acme"}}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("validation_error", s.errorCode(rec))
	})

	s.Run("tenant id with a slash is rejected", func() {
		rec := s.do(http.MethodPost, "/sessions", `{"tenantId":"a/b"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("malformed json", func() {
		rec := s.do(http.MethodPost, "/sessions", `{"tenantId":`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("bad_request", s.errorCode(rec))
	})
}

func (s *HandlerSuite) TestStatus() {
	s.service.EXPECT().Status(gomock.Any(), models.TenantID("t1")).Return(summary("t1", models.StateConnected), nil)
	rec := s.do(http.MethodGet, "/sessions/t1", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"state":"connected"`)

	s.service.EXPECT().Status(gomock.Any(), models.TenantID("ghost")).
		Return(models.Summary{}, dErrors.New(dErrors.CodeNotFound, "tenant not found"))
	rec = s.do(http.MethodGet, "/sessions/ghost", "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("not_found", s.errorCode(rec))
}

func (s *HandlerSuite) TestList() {
	s.Run("without filter", func() {
		s.service.EXPECT().List(gomock.Any()).Return([]models.Summary{
			summary("a", models.StateConnected),
			summary("b", models.StateCreated),
		})
		rec := s.do(http.MethodGet, "/sessions", "")
		s.Equal(http.StatusOK, rec.Code)

		var resp ListResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(2, resp.Total)
		s.Equal("a", resp.Sessions[0].TenantID)
	})

	s.Run("state filter accepts repeated and comma separated values", func() {
		s.service.EXPECT().List(gomock.Any(), models.StateConnected, models.StateAuthPending).Return(nil)
		rec := s.do(http.MethodGet, "/sessions?state=connected,authPending&state=connected", "")
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"sessions":[],"total":0}`, rec.Body.String())
	})

	s.Run("unknown state", func() {
		rec := s.do(http.MethodGet, "/sessions?state=sleeping", "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestRequestAuth() {
	s.service.EXPECT().RequestAuthArtifact(gomock.Any(), models.TenantID("t1")).
		Return(summary("t1", models.StateInitializing), nil)
	rec := s.do(http.MethodPost, "/sessions/t1/auth", "")
	s.Equal(http.StatusAccepted, rec.Code)
	s.Contains(rec.Body.String(), `"state":"initializing"`)

	s.service.EXPECT().RequestAuthArtifact(gomock.Any(), models.TenantID("t1")).
		Return(models.Summary{}, dErrors.New(dErrors.CodeInvalidState, "already authenticated"))
	rec = s.do(http.MethodPost, "/sessions/t1/auth", "")
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("invalid_state", s.errorCode(rec))

	s.service.EXPECT().RequestAuthArtifact(gomock.Any(), models.TenantID("t1")).
		Return(models.Summary{}, dErrors.New(dErrors.CodeExternalUnavailable, "gateway down"))
	rec = s.do(http.MethodPost, "/sessions/t1/auth", "")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *HandlerSuite) TestSend() {
	s.Run("delivers", func() {
		s.service.EXPECT().Send(gomock.Any(), models.TenantID("t1"), "123", "hi").Return(nil)
		rec := s.do(http.MethodPost, "/sessions/t1/send", `{"destination":" 123 ","content":"hi"}`)
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"tenantId":"t1","status":"sent"}`, rec.Body.String())
	})

	s.Run("not connected", func() {
		s.service.EXPECT().Send(gomock.Any(), models.TenantID("t1"), "123", "hi").
			Return(dErrors.New(dErrors.CodeNotConnected, "tenant is not connected"))
		rec := s.do(http.MethodPost, "/sessions/t1/send", `{"destination":"123","content":"hi"}`)
		s.Equal(http.StatusConflict, rec.Code)
		s.Equal("not_connected", s.errorCode(rec))
	})

	s.Run("delivery failure", func() {
		s.service.EXPECT().Send(gomock.Any(), models.TenantID("t1"), "123", "hi").
			Return(&dErrors.Error{Code: dErrors.CodeDeliveryFailed, Message: "message delivery failed", Err: errors.New("blocked")})
		rec := s.do(http.MethodPost, "/sessions/t1/send", `{"destination":"123","content":"hi"}`)
		s.Equal(http.StatusBadGateway, rec.Code)
		s.NotContains(rec.Body.String(), "blocked")
	})

	s.Run("blank destination", func() {
		rec := s.do(http.MethodPost, "/sessions/t1/send", `{"destination":"  ","content":"hi"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("oversized content", func() {
		body, _ := json.Marshal(SendRequest{Destination: "123", Content: strings.Repeat("x", 16*1024+1)})
		rec := s.do(http.MethodPost, "/sessions/t1/send", string(body))
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "content exceeds max length")
	})
}

func (s *HandlerSuite) TestDisconnect() {
	s.service.EXPECT().Disconnect(gomock.Any(), models.TenantID("t1")).Return(nil)
	rec := s.do(http.MethodPost, "/sessions/t1/disconnect", "")
	s.Equal(http.StatusNoContent, rec.Code)
	s.Zero(rec.Body.Len())
}

func TestParseStates(t *testing.T) {
	states, err := parseStates([]string{" connected ", "", "authFailed,connected"})
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 || states[0] != models.StateConnected || states[1] != models.StateAuthFailed {
		t.Fatalf("unexpected states %v", states)
	}

	if _, err := parseStates([]string{strings.Repeat("created,initializing,", 4) + "x"}); err == nil {
		t.Fatal("expected error for unknown state")
	}
}
