package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chatpulse/internal/platform/tracing"
	"chatpulse/pkg/platform/circuit"
)

// maxResponseBody caps how much of a gateway response is read.
const maxResponseBody = 1 << 20

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for non-2xx gateway responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// do sends one JSON request. connID names the gateway session the call
// belongs to and is empty for gateway-wide calls such as Open.
//
// Two breakers guard each call. The gateway-wide breaker counts failures to
// reach the gateway at all, plus any failure of a gateway-wide call. A
// session-scoped call that gets a 5xx or times out counts against that
// session's breaker only, so one broken session never fails fast for the
// others. 4xx responses count against neither.
func (b *Backend) do(ctx context.Context, op, connID, method, path string, in, out any) error {
	var own *circuit.Breaker
	if connID != "" {
		own = b.connBreaker(connID)
	}
	if !b.breaker.Allow() || (own != nil && !own.Allow()) {
		b.metrics.observeRequest(op, "circuit_open")
		return fmt.Errorf("%s: %w", op, circuit.ErrOpen)
	}

	ctx, span := b.tracer.Start(ctx, tracing.SpanGatewayRequest,
		tracing.String("gateway.operation", op),
		tracing.String(tracing.AttrHTTPMethod, method),
		tracing.String(tracing.AttrHTTPPath, path),
	)
	var err error
	defer func() { span.End(err) }()

	var body io.Reader
	if in != nil {
		payload, mErr := json.Marshal(in)
		if mErr != nil {
			err = fmt.Errorf("%s: encode request: %w", op, mErr)
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		err = fmt.Errorf("%s: build request: %w", op, err)
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("X-Api-Key", b.apiKey)
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			// The caller gave up; the gateway is not to blame.
		case unreachable(err):
			b.recordFailure(ctx, op, connID, nil)
		default:
			b.recordFailure(ctx, op, connID, own)
		}
		b.metrics.observeRequest(op, "transport_error")
		err = fmt.Errorf("%s: %w", op, err)
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(
		tracing.Int(tracing.AttrHTTPStatus, resp.StatusCode),
		tracing.Duration("gateway.latency_ms", time.Since(start)),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		b.recordFailure(ctx, op, connID, own)
		b.metrics.observeRequest(op, "transport_error")
		err = fmt.Errorf("%s: read response: %w", op, err)
		return err
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		b.recordFailure(ctx, op, connID, own)
		b.metrics.observeRequest(op, "server_error")
		err = fmt.Errorf("%s: %w", op, &StatusError{StatusCode: resp.StatusCode, Body: truncate(raw)})
		return err
	}
	b.recordSuccess(ctx, connID, own)

	if resp.StatusCode >= http.StatusBadRequest {
		b.metrics.observeRequest(op, "client_error")
		err = fmt.Errorf("%s: %w", op, &StatusError{StatusCode: resp.StatusCode, Body: truncate(raw)})
		return err
	}
	b.metrics.observeRequest(op, "ok")

	if out != nil && len(raw) > 0 {
		if uErr := json.Unmarshal(raw, out); uErr != nil {
			err = fmt.Errorf("%s: decode response: %w", op, uErr)
			return err
		}
	}
	return nil
}

// unreachable reports whether err means no connection to the gateway could
// be established.
func unreachable(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// recordFailure charges the failure to own, or to the gateway-wide breaker
// when own is nil.
func (b *Backend) recordFailure(ctx context.Context, op, connID string, own *circuit.Breaker) {
	if own != nil {
		if change := own.RecordFailure(); change.Opened {
			b.metrics.incConnBreakerOpened()
			b.logger.WarnContext(ctx, "gateway connection circuit opened",
				"breaker", own.Name(),
				"connection_id", connID,
				"operation", op,
			)
		}
		return
	}
	if change := b.breaker.RecordFailure(); change.Opened {
		b.metrics.setBreakerOpen(true)
		b.logger.WarnContext(ctx, "gateway circuit opened", "breaker", b.breaker.Name(), "operation", op)
	}
}

// recordSuccess is called once the gateway answered with a non-5xx status.
// The gateway is reachable, so the gateway-wide breaker always hears of it.
func (b *Backend) recordSuccess(ctx context.Context, connID string, own *circuit.Breaker) {
	if change := b.breaker.RecordSuccess(); change.Closed {
		b.metrics.setBreakerOpen(false)
		b.logger.InfoContext(ctx, "gateway circuit closed", "breaker", b.breaker.Name())
	}
	if own == nil {
		return
	}
	if change := own.RecordSuccess(); change.Closed {
		b.logger.InfoContext(ctx, "gateway connection circuit closed", "breaker", own.Name(), "connection_id", connID)
	}
}

func truncate(raw []byte) string {
	const max = 256
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
