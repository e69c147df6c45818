// Package simulator is an in-process messaging backend for local
// development. It plays both the chat network and the end user: a requested
// artifact is issued after a short delay, and a simulated user accepts it
// after another, so a session reaches connected without any external
// service. Outbound messages can be echoed back as inbound ones.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chatpulse/internal/messaging"
	"chatpulse/internal/session/models"
	"chatpulse/pkg/platform/ids"
)

const backendName = "simulator"

// ErrNotConnected is returned by Send before the simulated user accepted
// the artifact.
var ErrNotConnected = errors.New("simulator: connection is not authenticated")

// Config controls the simulated timings.
type Config struct {
	// ArtifactDelay is the time between RequestArtifact and the artifact
	// being issued.
	ArtifactDelay time.Duration
	// AuthDelay is how long the simulated user takes to accept an issued
	// artifact. Zero leaves the connection waiting for authentication.
	AuthDelay time.Duration
	// Echo reflects every sent message back as an inbound message from the
	// destination.
	Echo bool
}

// Conn is a simulated connection.
type Conn struct {
	tenantID models.TenantID
	ID       string
}

func (c *Conn) TenantID() models.TenantID {
	return c.tenantID
}

type session struct {
	conn      *Conn
	state     messaging.RemoteState
	artifact  string
	accountID string
	fn        messaging.SignalFunc
	timer     *time.Timer
}

// Backend simulates a chat network. It is both a Notifier and a
// StatusQuerier.
type Backend struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	pending  sync.WaitGroup
}

type Option func(*Backend)

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

func New(cfg Config, opts ...Option) *Backend {
	if cfg.ArtifactDelay < 0 {
		cfg.ArtifactDelay = 0
	}
	b := &Backend{
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string {
	return backendName
}

func (b *Backend) Open(ctx context.Context, tenantID models.TenantID) (messaging.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("simulator: closed")
	}
	conn := &Conn{tenantID: tenantID, ID: "sim-" + ids.NewULID(b.now())}
	b.sessions[conn.ID] = &session{conn: conn, state: messaging.RemoteUnknown}
	return conn, nil
}

// RequestArtifact schedules a fresh artifact. Any pending step of the
// simulated flow is cancelled first.
func (b *Backend) RequestArtifact(ctx context.Context, conn messaging.Conn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.sessionLocked(conn)
	if err != nil {
		return err
	}
	if s.state == messaging.RemoteConnected {
		return nil
	}
	b.scheduleLocked(s, b.cfg.ArtifactDelay, b.issueArtifact)
	return nil
}

func (b *Backend) Send(ctx context.Context, conn messaging.Conn, destination, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	s, err := b.sessionLocked(conn)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if s.state != messaging.RemoteConnected {
		b.mu.Unlock()
		return ErrNotConnected
	}
	fn := s.fn
	echo := b.cfg.Echo && fn != nil
	if echo {
		b.pending.Add(1)
	}
	b.mu.Unlock()

	b.logger.DebugContext(ctx, "simulated message sent",
		"tenant_id", conn.TenantID().String(),
		"destination", destination,
	)
	if echo {
		msg := &models.Message{
			ID:         ids.NewULID(b.now()),
			From:       destination,
			Content:    content,
			ReceivedAt: b.now(),
		}
		go func() {
			defer b.pending.Done()
			b.deliver(s, messaging.Signal{Kind: messaging.SignalMessage, Message: msg})
		}()
	}
	return nil
}

// Release forgets the connection. Releasing an unknown connection is a
// no-op.
func (b *Backend) Release(_ context.Context, conn messaging.Conn) error {
	c, ok := conn.(*Conn)
	if !ok || c == nil {
		return fmt.Errorf("simulator: foreign connection %T", conn)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[c.ID]; ok {
		b.stopLocked(s)
		delete(b.sessions, c.ID)
	}
	return nil
}

func (b *Backend) Subscribe(conn messaging.Conn, fn messaging.SignalFunc) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.sessionLocked(conn)
	if err != nil {
		return func() {}
	}
	s.fn = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		s.fn = nil
	}
}

// QueryStatus reports the simulated state. A released connection reports
// logged out.
func (b *Backend) QueryStatus(ctx context.Context, conn messaging.Conn) (messaging.RemoteStatus, error) {
	if err := ctx.Err(); err != nil {
		return messaging.RemoteStatus{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.sessionLocked(conn)
	if err != nil {
		return messaging.RemoteStatus{State: messaging.RemoteLoggedOut}, nil
	}
	return messaging.RemoteStatus{State: s.state, Artifact: s.artifact, AccountID: s.accountID}, nil
}

// Close stops every pending step and waits for in-flight deliveries.
func (b *Backend) Close() {
	b.mu.Lock()
	b.closed = true
	for _, s := range b.sessions {
		b.stopLocked(s)
	}
	b.mu.Unlock()
	b.pending.Wait()
}

func (b *Backend) sessionLocked(conn messaging.Conn) (*session, error) {
	c, ok := conn.(*Conn)
	if !ok || c == nil {
		return nil, fmt.Errorf("simulator: foreign connection %T", conn)
	}
	s, ok := b.sessions[c.ID]
	if !ok {
		return nil, fmt.Errorf("simulator: unknown connection %s", c.ID)
	}
	return s, nil
}

// scheduleLocked replaces s's pending step with step after d.
func (b *Backend) scheduleLocked(s *session, d time.Duration, step func(*session)) {
	b.stopLocked(s)
	b.pending.Add(1)
	s.timer = time.AfterFunc(d, func() {
		defer b.pending.Done()
		step(s)
	})
}

func (b *Backend) stopLocked(s *session) {
	if s.timer != nil && s.timer.Stop() {
		b.pending.Done()
	}
	s.timer = nil
}

func (b *Backend) liveLocked(s *session) bool {
	return !b.closed && b.sessions[s.conn.ID] == s
}

func (b *Backend) issueArtifact(s *session) {
	b.mu.Lock()
	if !b.liveLocked(s) {
		b.mu.Unlock()
		return
	}
	s.timer = nil
	s.state = messaging.RemoteAwaitingAuth
	s.artifact = "SIM-" + ids.NewULID(b.now())
	artifact := s.artifact
	if b.cfg.AuthDelay > 0 {
		b.scheduleLocked(s, b.cfg.AuthDelay, b.authorize)
	}
	b.mu.Unlock()

	b.deliver(s, messaging.Signal{Kind: messaging.SignalArtifactIssued, Artifact: artifact})
}

func (b *Backend) authorize(s *session) {
	b.mu.Lock()
	if !b.liveLocked(s) {
		b.mu.Unlock()
		return
	}
	s.timer = nil
	s.state = messaging.RemoteConnected
	s.artifact = ""
	s.accountID = "sim-" + s.conn.tenantID.String()
	accountID := s.accountID
	b.mu.Unlock()

	b.logger.Info("simulated user authenticated", "tenant_id", s.conn.tenantID.String())
	b.deliver(s, messaging.Signal{Kind: messaging.SignalAuthAccepted, AccountID: accountID})
	b.deliver(s, messaging.Signal{Kind: messaging.SignalReady})
}

// deliver calls the current subscriber without holding the backend lock.
func (b *Backend) deliver(s *session, sig messaging.Signal) {
	b.mu.Lock()
	fn := s.fn
	b.mu.Unlock()
	if fn != nil {
		fn(sig)
	}
}

var (
	_ messaging.Backend       = (*Backend)(nil)
	_ messaging.Notifier      = (*Backend)(nil)
	_ messaging.StatusQuerier = (*Backend)(nil)
)
