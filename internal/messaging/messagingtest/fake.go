// Package messagingtest provides scriptable in-memory messaging backends for
// tests. PushBackend reports connection events through Subscribe;
// PullBackend only answers QueryStatus.
package messagingtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatpulse/internal/messaging"
	"chatpulse/internal/session/models"
)

// Conn is the fake connection handed out by Open.
type Conn struct {
	tenantID models.TenantID
	serial   int
}

func (c *Conn) TenantID() models.TenantID {
	return c.tenantID
}

func (c *Conn) String() string {
	return fmt.Sprintf("fake-conn(%s#%d)", c.tenantID, c.serial)
}

// Sent records one delivered message.
type Sent struct {
	TenantID    models.TenantID
	Destination string
	Content     string
}

// Backend is the shared in-memory core. It satisfies messaging.Backend only.
type Backend struct {
	mu sync.Mutex

	name             string
	serial           int
	conns            map[models.TenantID]*Conn
	opens            map[models.TenantID]int
	artifactRequests map[models.TenantID]int
	sent             []Sent
	released         []models.TenantID

	openErr      error
	artifactErr  error
	sendErr      error
	releaseErr   error
	releaseDelay time.Duration
	sendHolds    map[models.TenantID]chan struct{}
}

func newBackend(name string) *Backend {
	return &Backend{
		name:             name,
		conns:            make(map[models.TenantID]*Conn),
		opens:            make(map[models.TenantID]int),
		artifactRequests: make(map[models.TenantID]int),
		sendHolds:        make(map[models.TenantID]chan struct{}),
	}
}

func (b *Backend) Name() string {
	return b.name
}

func (b *Backend) Open(ctx context.Context, tenantID models.TenantID) (messaging.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.serial++
	conn := &Conn{tenantID: tenantID, serial: b.serial}
	b.conns[tenantID] = conn
	b.opens[tenantID]++
	return conn, nil
}

func (b *Backend) RequestArtifact(ctx context.Context, conn messaging.Conn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.artifactRequests[conn.TenantID()]++
	return b.artifactErr
}

// Send blocks while sends for the connection's tenant are held.
func (b *Backend) Send(ctx context.Context, conn messaging.Conn, destination, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	hold := b.sendHolds[conn.TenantID()]
	b.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, Sent{TenantID: conn.TenantID(), Destination: destination, Content: content})
	return nil
}

// Release waits for the configured release delay, honouring ctx, before
// recording the release.
func (b *Backend) Release(ctx context.Context, conn messaging.Conn) error {
	b.mu.Lock()
	delay := b.releaseDelay
	b.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.releaseErr != nil {
		return b.releaseErr
	}
	b.released = append(b.released, conn.TenantID())
	if current, ok := b.conns[conn.TenantID()]; ok && current == conn {
		delete(b.conns, conn.TenantID())
	}
	return nil
}

func (b *Backend) FailOpen(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
}

func (b *Backend) FailArtifactRequests(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.artifactErr = err
}

func (b *Backend) FailSend(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErr = err
}

func (b *Backend) FailRelease(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseErr = err
}

// HoldSends makes every Send for tenantID block until the returned function
// is called or the send's context ends. Other tenants are unaffected.
func (b *Backend) HoldSends(tenantID models.TenantID) (release func()) {
	hold := make(chan struct{})
	b.mu.Lock()
	b.sendHolds[tenantID] = hold
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.sendHolds, tenantID)
			b.mu.Unlock()
			close(hold)
		})
	}
}

// SetReleaseDelay makes every Release block for d or until its context ends.
func (b *Backend) SetReleaseDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseDelay = d
}

// Conn returns the most recently opened, unreleased connection for tenantID.
func (b *Backend) Conn(tenantID models.TenantID) (*Conn, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[tenantID]
	return c, ok
}

func (b *Backend) Opens(tenantID models.TenantID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens[tenantID]
}

func (b *Backend) ArtifactRequests(tenantID models.TenantID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.artifactRequests[tenantID]
}

func (b *Backend) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sent(nil), b.sent...)
}

func (b *Backend) Released() []models.TenantID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.TenantID(nil), b.released...)
}

// PushBackend reports connection events to subscribers. Tests drive it with
// Emit.
type PushBackend struct {
	*Backend

	subsMu sync.Mutex
	subs   map[*Conn]messaging.SignalFunc
}

// NewPush creates a push-style fake backend.
func NewPush() *PushBackend {
	return &PushBackend{
		Backend: newBackend("fake-push"),
		subs:    make(map[*Conn]messaging.SignalFunc),
	}
}

func (p *PushBackend) Subscribe(conn messaging.Conn, fn messaging.SignalFunc) func() {
	c, ok := conn.(*Conn)
	if !ok {
		return func() {}
	}
	p.subsMu.Lock()
	p.subs[c] = fn
	p.subsMu.Unlock()

	return func() {
		p.subsMu.Lock()
		defer p.subsMu.Unlock()
		delete(p.subs, c)
	}
}

// Emit delivers sig synchronously to the subscriber of tenantID's current
// connection. It reports whether anyone was listening.
func (p *PushBackend) Emit(tenantID models.TenantID, sig messaging.Signal) bool {
	conn, ok := p.Conn(tenantID)
	if !ok {
		return false
	}
	p.subsMu.Lock()
	fn, ok := p.subs[conn]
	p.subsMu.Unlock()
	if !ok {
		return false
	}
	fn(sig)
	return true
}

// Subscribers returns the number of live subscriptions.
func (p *PushBackend) Subscribers() int {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	return len(p.subs)
}

// PullBackend only exposes status through QueryStatus.
type PullBackend struct {
	*Backend

	statusMu    sync.Mutex
	status      map[models.TenantID]messaging.RemoteStatus
	statusErr   map[models.TenantID]error
	statusDelay time.Duration
	queries     map[models.TenantID]int
}

// NewPull creates a pull-style fake backend.
func NewPull() *PullBackend {
	return &PullBackend{
		Backend:   newBackend("fake-pull"),
		status:    make(map[models.TenantID]messaging.RemoteStatus),
		statusErr: make(map[models.TenantID]error),
		queries:   make(map[models.TenantID]int),
	}
}

func (p *PullBackend) QueryStatus(ctx context.Context, conn messaging.Conn) (messaging.RemoteStatus, error) {
	p.statusMu.Lock()
	delay := p.statusDelay
	p.queries[conn.TenantID()]++
	p.statusMu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return messaging.RemoteStatus{}, ctx.Err()
		}
	}

	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	if err := p.statusErr[conn.TenantID()]; err != nil {
		return messaging.RemoteStatus{}, err
	}
	if st, ok := p.status[conn.TenantID()]; ok {
		return st, nil
	}
	return messaging.RemoteStatus{State: messaging.RemoteUnknown}, nil
}

// SetStatus sets the status QueryStatus reports for tenantID.
func (p *PullBackend) SetStatus(tenantID models.TenantID, st messaging.RemoteStatus) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status[tenantID] = st
	delete(p.statusErr, tenantID)
}

// FailStatus makes QueryStatus for tenantID return err.
func (p *PullBackend) FailStatus(tenantID models.TenantID, err error) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.statusErr[tenantID] = err
}

// SetStatusDelay makes every QueryStatus block for d or until its context
// ends.
func (p *PullBackend) SetStatusDelay(d time.Duration) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.statusDelay = d
}

func (p *PullBackend) Queries(tenantID models.TenantID) int {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return p.queries[tenantID]
}

var (
	_ messaging.Backend       = (*Backend)(nil)
	_ messaging.Notifier      = (*PushBackend)(nil)
	_ messaging.StatusQuerier = (*PullBackend)(nil)
)
