// Package gateway is the messaging backend for an HTTP chat gateway. The
// gateway pushes connection events to a webhook and also answers status
// queries, so the backend is both a Notifier and a StatusQuerier.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chatpulse/internal/messaging"
	"chatpulse/internal/platform/tracing"
	"chatpulse/internal/session/models"
	"chatpulse/pkg/platform/circuit"
)

const backendName = "gateway"

// Config holds the gateway connection settings.
type Config struct {
	BaseURL        string
	APIKey         string
	WebhookBaseURL string
	WebhookSecret  string
	Timeout        time.Duration
}

// Backend talks to the gateway REST API.
type Backend struct {
	baseURL       string
	apiKey        string
	webhookBase   string
	webhookSecret []byte
	client        HTTPDoer
	breakerOpts   []circuit.Option
	breaker       *circuit.Breaker
	tracer        tracing.Tracer
	metrics       *Metrics
	logger        *slog.Logger
	now           func() time.Time

	mu   sync.Mutex
	subs map[string]*subscription

	connMu       sync.Mutex
	connBreakers map[string]*circuit.Breaker
}

type subscription struct {
	conn *Conn
	fn   messaging.SignalFunc
}

// Conn is one gateway session. ID is assigned by the gateway on Open.
type Conn struct {
	tenantID models.TenantID
	ID       string
}

func (c *Conn) TenantID() models.TenantID {
	return c.tenantID
}

type Option func(*Backend)

// WithHTTPClient replaces the default client, whose transport is wrapped
// with otelhttp.
func WithHTTPClient(c HTTPDoer) Option {
	return func(b *Backend) {
		if c != nil {
			b.client = c
		}
	}
}

// WithBreakerOptions configures both the gateway-wide breaker and the
// breaker each connection gets on its first call.
func WithBreakerOptions(opts ...circuit.Option) Option {
	return func(b *Backend) {
		b.breakerOpts = append(b.breakerOpts, opts...)
	}
}

func WithTracer(t tracing.Tracer) Option {
	return func(b *Backend) {
		b.tracer = t
	}
}

func WithMetrics(m *Metrics) Option {
	return func(b *Backend) {
		b.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// New validates cfg and creates a Backend.
func New(cfg Config, opts ...Option) (*Backend, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("gateway base url: %w", err)
	}
	if cfg.WebhookBaseURL != "" && cfg.WebhookSecret == "" {
		return nil, errors.New("gateway webhook secret is required when a webhook base url is set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	b := &Backend{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		webhookBase:   strings.TrimRight(cfg.WebhookBaseURL, "/"),
		webhookSecret: []byte(cfg.WebhookSecret),
		client:        newHTTPClient(cfg.Timeout),
		tracer:        tracing.NewNoop(),
		logger:        slog.Default(),
		now:           time.Now,
		subs:          make(map[string]*subscription),
		connBreakers:  make(map[string]*circuit.Breaker),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.breaker = circuit.New(backendName, b.breakerOpts...)
	return b, nil
}

func (b *Backend) Name() string {
	return backendName
}

// Breaker exposes the gateway-wide circuit breaker for health reporting.
// It opens when the gateway cannot be reached at all; failures of one
// connection trip only that connection's breaker.
func (b *Backend) Breaker() *circuit.Breaker {
	return b.breaker
}

// connBreaker returns the breaker for connID, creating it on first use.
func (b *Backend) connBreaker(connID string) *circuit.Breaker {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	br, ok := b.connBreakers[connID]
	if !ok {
		br = circuit.New(backendName+":"+connID, b.breakerOpts...)
		b.connBreakers[connID] = br
	}
	return br
}

func (b *Backend) dropConnBreaker(connID string) {
	b.connMu.Lock()
	delete(b.connBreakers, connID)
	b.connMu.Unlock()
}

type openRequest struct {
	TenantID   string `json:"tenantId"`
	WebhookURL string `json:"webhookUrl,omitempty"`
}

type openResponse struct {
	ConnectionID string `json:"connectionId"`
}

// Open creates a gateway session and registers this instance's webhook for
// it.
func (b *Backend) Open(ctx context.Context, tenantID models.TenantID) (messaging.Conn, error) {
	req := openRequest{TenantID: tenantID.String()}
	if b.webhookBase != "" {
		req.WebhookURL = b.webhookBase + "/webhooks/gateway/" + url.PathEscape(tenantID.String())
	}
	var resp openResponse
	if err := b.do(ctx, "open", "", http.MethodPost, "/v1/sessions", req, &resp); err != nil {
		return nil, err
	}
	if resp.ConnectionID == "" {
		return nil, errors.New("open: gateway returned no connection id")
	}
	return &Conn{tenantID: tenantID, ID: resp.ConnectionID}, nil
}

// RequestArtifact asks the gateway to produce a QR code. It arrives later
// through the webhook or a status poll.
func (b *Backend) RequestArtifact(ctx context.Context, conn messaging.Conn) error {
	c, err := b.conn(conn)
	if err != nil {
		return err
	}
	return b.do(ctx, "request_artifact", c.ID, http.MethodPost, "/v1/sessions/"+url.PathEscape(c.ID)+"/qr", nil, nil)
}

type sendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (b *Backend) Send(ctx context.Context, conn messaging.Conn, destination, content string) error {
	c, err := b.conn(conn)
	if err != nil {
		return err
	}
	return b.do(ctx, "send", c.ID, http.MethodPost, "/v1/sessions/"+url.PathEscape(c.ID)+"/messages",
		sendRequest{To: destination, Text: content}, nil)
}

// Release deletes the gateway session. A session the gateway no longer
// knows counts as released.
func (b *Backend) Release(ctx context.Context, conn messaging.Conn) error {
	c, err := b.conn(conn)
	if err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.subs, c.ID)
	b.mu.Unlock()

	err = b.do(ctx, "release", c.ID, http.MethodDelete, "/v1/sessions/"+url.PathEscape(c.ID), nil, nil)
	b.dropConnBreaker(c.ID)
	if IsStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

type statusResponse struct {
	Status    string `json:"status"`
	QR        string `json:"qr"`
	AccountID string `json:"accountId"`
}

// QueryStatus fetches the gateway's view of the connection. It returns an
// error wrapping circuit.ErrOpen without calling the gateway while either
// the gateway-wide or the connection's breaker is open.
func (b *Backend) QueryStatus(ctx context.Context, conn messaging.Conn) (messaging.RemoteStatus, error) {
	c, err := b.conn(conn)
	if err != nil {
		return messaging.RemoteStatus{}, err
	}
	var resp statusResponse
	if err := b.do(ctx, "status", c.ID, http.MethodGet, "/v1/sessions/"+url.PathEscape(c.ID)+"/status", nil, &resp); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return messaging.RemoteStatus{State: messaging.RemoteLoggedOut}, nil
		}
		return messaging.RemoteStatus{}, err
	}
	return messaging.RemoteStatus{
		State:     remoteState(resp.Status),
		Artifact:  resp.QR,
		AccountID: resp.AccountID,
	}, nil
}

// Subscribe routes webhook events for conn to fn until the returned stop
// function is called.
func (b *Backend) Subscribe(conn messaging.Conn, fn messaging.SignalFunc) func() {
	c, err := b.conn(conn)
	if err != nil {
		return func() {}
	}
	sub := &subscription{conn: c, fn: fn}
	b.mu.Lock()
	b.subs[c.ID] = sub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.subs[c.ID] == sub {
			delete(b.subs, c.ID)
		}
	}
}

func (b *Backend) subscriber(connID string) (*subscription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[connID]
	return sub, ok
}

func (b *Backend) conn(conn messaging.Conn) (*Conn, error) {
	c, ok := conn.(*Conn)
	if !ok || c == nil {
		return nil, fmt.Errorf("gateway: foreign connection %T", conn)
	}
	return c, nil
}

func remoteState(status string) messaging.RemoteState {
	switch strings.ToUpper(status) {
	case "SCAN_QR", "STARTING":
		return messaging.RemoteAwaitingAuth
	case "AUTHORIZED":
		return messaging.RemoteAuthorized
	case "CONNECTED", "WORKING":
		return messaging.RemoteConnected
	case "LOGGED_OUT", "STOPPED":
		return messaging.RemoteLoggedOut
	case "FAILED", "AUTH_REJECTED":
		return messaging.RemoteAuthRejected
	default:
		return messaging.RemoteUnknown
	}
}

var (
	_ messaging.Backend       = (*Backend)(nil)
	_ messaging.Notifier      = (*Backend)(nil)
	_ messaging.StatusQuerier = (*Backend)(nil)
)
