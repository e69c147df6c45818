//go:build integration

// Package containers starts the Postgres and Kafka dependencies that
// integration tests run against. Containers are shared per test binary:
// the first suite that asks starts one, later suites reuse it, and Main
// terminates whatever was started once the package's tests finish.
package containers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

const terminateTimeout = 30 * time.Second

// Manager hands out the shared containers.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	kafka    *KafkaContainer
}

var (
	globalManager *Manager
	initOnce      sync.Once
)

// GetManager returns the per-binary container manager.
func GetManager() *Manager {
	initOnce.Do(func() {
		globalManager = &Manager{}
	})
	return globalManager
}

// GetPostgres returns the shared Postgres container with migrations
// applied, starting it on first use. Tests are skipped when no container
// runtime is reachable.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.postgres == nil {
		m.postgres = NewPostgresContainer(t)
	}
	return m.postgres
}

// GetKafka returns the shared Kafka-protocol broker, starting it on first
// use.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.kafka == nil {
		m.kafka = NewKafkaContainer(t)
	}
	return m.kafka
}

// Terminate stops every container the manager started. It is safe to call
// more than once.
func (m *Manager) Terminate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.postgres != nil {
		if err := m.postgres.terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
		m.postgres = nil
	}
	if m.kafka != nil {
		if err := m.kafka.Container.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		}
		m.kafka = nil
	}
	return errors.Join(errs...)
}

// Main runs the package's tests and then terminates the shared containers.
// Call it from TestMain in integration test files:
//
//	func TestMain(m *testing.M) { os.Exit(containers.Main(m)) }
func Main(m *testing.M) int {
	code := m.Run()

	ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
	defer cancel()
	if err := GetManager().Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "terminate test containers: %v\n", err)
	}
	return code
}
