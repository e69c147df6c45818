package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpulse/internal/platform/config"
)

func TestNewDisabledWithoutURL(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "://nope"}, nil)
	assert.Error(t, err)
}

func TestClientCheckAndPoolStats(t *testing.T) {
	mr := miniredis.RunT(t)
	reg := prometheus.NewRegistry()

	c, err := New(context.Background(), config.RedisConfig{
		URL:         "redis://" + mr.Addr(),
		PoolSize:    4,
		DialTimeout: time.Second,
	}, reg)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Check(context.Background()))
	assert.Equal(t, "redis", c.Name())

	c.RecordPoolStats()
	assert.GreaterOrEqual(t, testutil.ToFloat64(c.metrics.totalConns), float64(1))

	mr.Close()
	assert.Error(t, c.Check(context.Background()))
}

func TestRunPoolStatsStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()}, prometheus.NewRegistry())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.RunPoolStats(ctx, 5*time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
