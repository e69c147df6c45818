package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"go.uber.org/mock/gomock"

	"chatpulse/internal/session/models"
	dErrors "chatpulse/pkg/domain-errors"
	adminmw "chatpulse/pkg/platform/middleware/admin"
)

type sseFrame struct {
	id    string
	event string
	data  string
}

// readFrame reads lines until a blank line ends a frame, skipping
// keep-alive comments.
func readFrame(r *bufio.Reader) (sseFrame, error) {
	var f sseFrame
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return f, err
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if f.event != "" {
				return f, nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			f.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func (s *HandlerSuite) openStream(srv *httptest.Server, path string) (*http.Response, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	s.Require().NoError(err)
	req.Header.Set(adminmw.HeaderToken, adminToken)
	resp, err := srv.Client().Do(req)
	s.Require().NoError(err)
	return resp, cancel
}

func (s *HandlerSuite) TestTenantStreamSendsSnapshotThenEvents() {
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	s.service.EXPECT().Status(gomock.Any(), models.TenantID("t1")).Return(summary("t1", models.StateInitializing), nil)
	resp, cancel := s.openStream(srv, "/sessions/t1/events")
	defer cancel()
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	frame, err := readFrame(reader)
	s.Require().NoError(err)
	s.Equal(eventSnapshot, frame.event)
	s.Contains(frame.data, `"state":"initializing"`)

	s.bus.Publish(models.Event{ID: "evt-other", TenantID: "t2", Type: models.EventStateChanged})
	s.bus.Publish(models.Event{
		ID:        "evt-1",
		TenantID:  "t1",
		Type:      models.EventAuthArtifactIssued,
		FromState: models.StateInitializing,
		ToState:   models.StateAuthPending,
		Payload:   models.Payload{AuthArtifact: "QR-1"},
	})

	frame, err = readFrame(reader)
	s.Require().NoError(err)
	s.Equal("evt-1", frame.id)
	s.Equal(string(models.EventAuthArtifactIssued), frame.event)

	var evt models.Event
	s.Require().NoError(json.Unmarshal([]byte(frame.data), &evt))
	s.Equal(models.StateAuthPending, evt.ToState)
	s.Equal("QR-1", evt.Payload.AuthArtifact)
}

func (s *HandlerSuite) TestWildcardStreamUnsubscribesOnClientDisconnect() {
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	resp, cancel := s.openStream(srv, "/sessions/events")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Eventually(func() bool { return s.bus.Len() == 1 }, time.Second, 5*time.Millisecond)

	s.bus.Publish(models.Event{ID: "a", TenantID: "t1", Type: models.EventStateChanged})
	s.bus.Publish(models.Event{ID: "b", TenantID: "t2", Type: models.EventMessageReceived})

	reader := bufio.NewReader(resp.Body)
	first, err := readFrame(reader)
	s.Require().NoError(err)
	second, err := readFrame(reader)
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, []string{first.id, second.id})

	cancel()
	resp.Body.Close()
	s.Eventually(func() bool { return s.bus.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func (s *HandlerSuite) TestStreamEndsWhenBusCloses() {
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	resp, cancel := s.openStream(srv, "/sessions/events")
	defer cancel()
	defer resp.Body.Close()
	s.Eventually(func() bool { return s.bus.Len() == 1 }, time.Second, 5*time.Millisecond)

	s.bus.Close()
	reader := bufio.NewReader(resp.Body)
	_, err := readFrame(reader)
	s.Error(err, "the stream ends once the bus is closed")
}

func (s *HandlerSuite) TestTenantStreamUnknownTenant() {
	s.service.EXPECT().Status(gomock.Any(), models.TenantID("ghost")).
		Return(models.Summary{}, dErrors.New(dErrors.CodeNotFound, "tenant not found"))

	rec := s.do(http.MethodGet, "/sessions/ghost/events", "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Zero(s.bus.Len())
}
