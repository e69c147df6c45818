package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "chatpulse/pkg/domain-errors"
)

type sendBody struct {
	Destination string `json:"destination"`
	Content     string `json:"content"`
}

func (b *sendBody) Normalize() {
	b.Destination = strings.TrimSpace(b.Destination)
}

func (b *sendBody) Validate() error {
	if b.Destination == "" {
		return errors.New("destination is required")
	}
	if b.Content == "forbidden" {
		return dErrors.New(dErrors.CodeBadRequest, "content rejected")
	}
	return nil
}

func decodeRecorder(t *testing.T, body io.Reader) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sessions/acme/send", body)
	return httptest.NewRecorder(), req
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestDecodeJSON(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantDesc   string
	}{
		{name: "malformed", body: `{"destination":`, wantStatus: http.StatusBadRequest, wantCode: "bad_request", wantDesc: "invalid request body"},
		{name: "empty", body: ``, wantStatus: http.StatusBadRequest, wantCode: "bad_request", wantDesc: "request body is required"},
		{name: "unknown field", body: `{"destination":"x","cc":"y"}`, wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
		{name: "trailing document", body: `{"destination":"x"}{"destination":"y"}`, wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, req := decodeRecorder(t, strings.NewReader(tt.body))

			got, ok := DecodeJSON[sendBody](rec, req, quietLogger, ctx, "req-1")

			assert.False(t, ok)
			assert.Nil(t, got)
			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := errorBody(t, rec)
			assert.Equal(t, tt.wantCode, resp.Error)
			if tt.wantDesc != "" {
				assert.Equal(t, tt.wantDesc, resp.ErrorDescription)
			}
		})
	}

	t.Run("decodes a well formed body", func(t *testing.T) {
		rec, req := decodeRecorder(t, strings.NewReader(`{"destination":"+49151","content":"hi"}`))

		got, ok := DecodeJSON[sendBody](rec, req, quietLogger, ctx, "req-1")

		require.True(t, ok)
		assert.Equal(t, &sendBody{Destination: "+49151", Content: "hi"}, got)
	})

	t.Run("oversized body maps to 413", func(t *testing.T) {
		rec, req := decodeRecorder(t, strings.NewReader(`{"destination":"`+strings.Repeat("9", 64)+`"}`))
		req.Body = http.MaxBytesReader(rec, req.Body, 16)

		_, ok := DecodeJSON[sendBody](rec, req, quietLogger, ctx, "req-1")

		assert.False(t, ok)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "request body too large", errorBody(t, rec).ErrorDescription)
	})
}

func TestDecodeAndPrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes before validating", func(t *testing.T) {
		rec, req := decodeRecorder(t, strings.NewReader(`{"destination":"  +49151  ","content":"hi"}`))

		got, ok := DecodeAndPrepare[sendBody](rec, req, quietLogger, ctx, "req-1")

		require.True(t, ok)
		assert.Equal(t, "+49151", got.Destination)
	})

	t.Run("plain validation error becomes validation_error", func(t *testing.T) {
		rec, req := decodeRecorder(t, strings.NewReader(`{"destination":"   "}`))

		_, ok := DecodeAndPrepare[sendBody](rec, req, quietLogger, ctx, "req-1")

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := errorBody(t, rec)
		assert.Equal(t, "validation_error", resp.Error)
		assert.Equal(t, "destination is required", resp.ErrorDescription)
	})

	t.Run("domain error keeps its code", func(t *testing.T) {
		rec, req := decodeRecorder(t, strings.NewReader(`{"destination":"+49151","content":"forbidden"}`))

		_, ok := DecodeAndPrepare[sendBody](rec, req, quietLogger, ctx, "req-1")

		assert.False(t, ok)
		assert.Equal(t, "bad_request", errorBody(t, rec).Error)
	})
}

func TestPrepareRequestIgnoresPlainTypes(t *testing.T) {
	assert.NoError(t, PrepareRequest(&struct{ Name string }{}))
}
