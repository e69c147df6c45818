package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chatpulse/internal/messaging"
	"chatpulse/internal/messaging/gateway"
	"chatpulse/internal/messaging/simulator"
	"chatpulse/internal/platform/config"
	"chatpulse/internal/platform/database"
	"chatpulse/internal/platform/health"
	"chatpulse/internal/platform/kafka/producer"
	"chatpulse/internal/platform/redis"
	"chatpulse/internal/platform/tracing"
	"chatpulse/internal/session/bus"
	"chatpulse/internal/session/metrics"
	"chatpulse/internal/session/models"
	"chatpulse/internal/session/roster"
	"chatpulse/internal/session/service"
	"chatpulse/internal/session/sink"
	"chatpulse/migrations"
)

// infrastructure holds the optional external stores. Each one is nil when
// its URL is not configured.
type infrastructure struct {
	db       *database.Pool
	redis    *redis.Client
	producer *producer.Producer
	roster   service.RosterStore

	instanceID   string
	kafkaTopic   string
	redisChannel string
	closeTimeout time.Duration
	log          *slog.Logger
}

func openInfrastructure(ctx context.Context, cfg config.Server, reg prometheus.Registerer, checks *health.Handler, log *slog.Logger) (*infrastructure, error) {
	infra := &infrastructure{
		instanceID:   cfg.InstanceID,
		kafkaTopic:   cfg.Kafka.EventsTopic,
		redisChannel: cfg.Redis.EventsChannel,
		closeTimeout: 10 * time.Second,
		log:          log,
	}

	db, err := database.New(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if db != nil {
		infra.db = db
		checks.RegisterChecker(db)
		if cfg.Database.Migrate {
			version, err := database.Migrate(db.DB(), migrations.FS)
			if err != nil {
				infra.Close()
				return nil, err
			}
			log.Info("database schema ready", "version", version)
		}
	}

	rc, err := redis.New(ctx, cfg.Redis, reg)
	if err != nil {
		infra.Close()
		return nil, err
	}
	if rc != nil {
		infra.redis = rc
		checks.RegisterChecker(rc)
	}

	if cfg.Kafka.Brokers != "" {
		pcfg := producer.DefaultConfig(cfg.Kafka.Brokers)
		pcfg.Acks = cfg.Kafka.Acks
		p, err := producer.New(pcfg, log)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.producer = p
		checks.RegisterChecker(p)
	}

	switch {
	case infra.db != nil:
		infra.roster = roster.NewPostgres(infra.db.DB())
		log.Info("tenant roster enabled", "store", "postgres")
	case infra.redis != nil:
		infra.roster = roster.NewRedis(infra.redis, cfg.Redis.RosterKey)
		log.Info("tenant roster enabled", "store", "redis")
	default:
		log.Info("tenant roster disabled; tenants are not restored after restart")
	}
	return infra, nil
}

// relays builds one bus relay per configured sink.
func (i *infrastructure) relays(events sink.Source, m *metrics.Metrics, log *slog.Logger) []*sink.Relay {
	var out []*sink.Relay
	add := func(pub sink.Publisher, err error, opts ...sink.Option) {
		if err == nil {
			var relay *sink.Relay
			relay, err = sink.NewRelay(events, pub, append(opts, sink.WithMetrics(m), sink.WithLogger(log))...)
			if err == nil {
				out = append(out, relay)
				return
			}
		}
		log.Error("event sink disabled", "error", err)
	}

	if i.producer != nil {
		pub, err := sink.NewKafkaPublisher(i.producer, i.kafkaTopic)
		add(pub, err,
			sink.WithEventTypes(models.EventStateChanged, models.EventAuthArtifactIssued, models.EventMessageReceived),
			sink.WithoutAuthArtifacts(),
		)
	}
	if i.redis != nil {
		pub, err := sink.NewRedisPublisher(i.redis, i.redisChannel, i.instanceID)
		add(pub, err)
	}
	return out
}

func (i *infrastructure) Close() {
	if i.producer != nil {
		i.producer.Close(i.closeTimeout)
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			i.log.Warn("close redis", "error", err)
		}
	}
	if err := i.db.Close(); err != nil {
		i.log.Warn("close database", "error", err)
	}
}

// newBackend returns the messaging backend and, when it is the HTTP
// gateway, the concrete gateway for webhook intake.
func newBackend(cfg config.Server, reg prometheus.Registerer, tracer tracing.Tracer, checks *health.Handler, log *slog.Logger) (messaging.Backend, *gateway.Backend, error) {
	if cfg.Gateway.URL == "" {
		if cfg.IsProduction() {
			return nil, nil, errors.New("GATEWAY_URL is required in production")
		}
		log.Warn("GATEWAY_URL not set; using the in-process simulator backend",
			"artifact_delay", cfg.Simulator.ArtifactDelay.String(),
			"auth_delay", cfg.Simulator.AuthDelay.String(),
		)
		return simulator.New(simulator.Config{
			ArtifactDelay: cfg.Simulator.ArtifactDelay,
			AuthDelay:     cfg.Simulator.AuthDelay,
			Echo:          cfg.Simulator.Echo,
		}, simulator.WithLogger(log)), nil, nil
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL:        cfg.Gateway.URL,
		APIKey:         cfg.Gateway.APIKey,
		WebhookBaseURL: cfg.Gateway.WebhookBaseURL,
		WebhookSecret:  cfg.Gateway.WebhookSecret,
		Timeout:        cfg.Gateway.Timeout,
	},
		gateway.WithBreakerOptions(breakerOptions(cfg.Gateway)...),
		gateway.WithTracer(tracer),
		gateway.WithMetrics(gateway.NewMetrics(reg)),
		gateway.WithLogger(log),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway backend: %w", err)
	}
	checks.RegisterOptionalCheck("gateway", func(context.Context) error {
		if gw.Breaker().IsOpen() {
			return errors.New("circuit open")
		}
		return nil
	})
	return gw, gw, nil
}

var _ sink.Source = (*bus.Bus)(nil)
