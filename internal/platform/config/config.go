// Package config decodes process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Server captures HTTP server level configuration and everything the
// composition root wires from it.
type Server struct {
	Addr            string        `env:"CHATPULSE_ADDR,default=:8080"`
	InstanceID      string        `env:"CHATPULSE_INSTANCE_ID"`
	Environment     string        `env:"ENVIRONMENT,default=development"`
	AdminToken      string        `env:"ADMIN_API_TOKEN"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`

	Log       LogConfig
	Session   SessionConfig
	Gateway   GatewayConfig
	Simulator SimulatorConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Tracing   TracingConfig
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL,default=info"`
	// File, when set, receives logs through a rotating writer instead of
	// stdout.
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB,default=50"`
	MaxBackups int    `env:"LOG_FILE_MAX_BACKUPS,default=3"`
}

type SessionConfig struct {
	PollInterval     time.Duration `env:"SESSION_POLL_INTERVAL,default=30s"`
	PollTimeout      time.Duration `env:"SESSION_POLL_TIMEOUT,default=10s"`
	PollConcurrency  int           `env:"SESSION_POLL_CONCURRENCY,default=16"`
	ReleaseTimeout   time.Duration `env:"SESSION_RELEASE_TIMEOUT,default=5s"`
	SubscriberBuffer int           `env:"SESSION_SUBSCRIBER_BUFFER,default=64"`
	SSEHeartbeat     time.Duration `env:"SESSION_SSE_HEARTBEAT,default=15s"`
}

type GatewayConfig struct {
	URL              string        `env:"GATEWAY_URL"`
	APIKey           string        `env:"GATEWAY_API_KEY"`
	WebhookBaseURL   string        `env:"GATEWAY_WEBHOOK_BASE_URL"`
	WebhookSecret    string        `env:"GATEWAY_WEBHOOK_SECRET"`
	Timeout          time.Duration `env:"GATEWAY_TIMEOUT,default=15s"`
	FailureThreshold int           `env:"GATEWAY_BREAKER_FAILURES,default=5"`
	Cooldown         time.Duration `env:"GATEWAY_BREAKER_COOLDOWN,default=30s"`
}

// SimulatorConfig drives the in-process backend used when GATEWAY_URL is
// unset. A zero auth delay leaves sessions waiting in authPending.
type SimulatorConfig struct {
	ArtifactDelay time.Duration `env:"SIMULATOR_ARTIFACT_DELAY,default=500ms"`
	AuthDelay     time.Duration `env:"SIMULATOR_AUTH_DELAY,default=5s"`
	Echo          bool          `env:"SIMULATOR_ECHO,default=true"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=2"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=5m"`
	Migrate         bool          `env:"DATABASE_MIGRATE,default=true"`
}

// RedisConfig configures the shared Redis client. The roster uses it when
// no database is configured; the event mirror uses it whenever it is set.
type RedisConfig struct {
	URL           string        `env:"REDIS_URL"`
	PoolSize      int           `env:"REDIS_POOL_SIZE,default=10"`
	MinIdleConns  int           `env:"REDIS_MIN_IDLE_CONNS,default=2"`
	DialTimeout   time.Duration `env:"REDIS_DIAL_TIMEOUT,default=5s"`
	ReadTimeout   time.Duration `env:"REDIS_READ_TIMEOUT,default=3s"`
	WriteTimeout  time.Duration `env:"REDIS_WRITE_TIMEOUT,default=3s"`
	RosterKey     string        `env:"REDIS_ROSTER_KEY,default=chatpulse:roster"`
	EventsChannel string        `env:"REDIS_EVENTS_CHANNEL,default=chatpulse:session-events"`
}

type KafkaConfig struct {
	Brokers     string `env:"KAFKA_BROKERS"`
	EventsTopic string `env:"KAFKA_EVENTS_TOPIC,default=chatpulse.session-events"`
	Acks        string `env:"KAFKA_ACKS,default=all"`
}

type TracingConfig struct {
	// Endpoint is an OTLP/HTTP collector such as localhost:4318. Tracing
	// stays a no-op when it is empty.
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE,default=true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME,default=chatpulse"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_RATIO,default=1"`
}

// FromEnv decodes the Server config from environment variables and validates
// it.
func FromEnv() (Server, error) {
	var cfg Server
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Server{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.InstanceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "chatpulse"
		}
		cfg.InstanceID = host
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// IsProduction reports whether the process runs in production.
func (s Server) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// Validate rejects combinations that would start a broken or unguarded
// server.
func (s Server) Validate() error {
	var errs []error
	if s.IsProduction() && s.AdminToken == "" {
		errs = append(errs, errors.New("ADMIN_API_TOKEN is required in production"))
	}
	if s.Session.PollInterval <= 0 {
		errs = append(errs, errors.New("SESSION_POLL_INTERVAL must be positive"))
	}
	if s.Session.PollTimeout <= 0 || s.Session.ReleaseTimeout <= 0 {
		errs = append(errs, errors.New("session timeouts must be positive"))
	}
	if s.Session.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("SESSION_SUBSCRIBER_BUFFER must be positive"))
	}
	if s.Gateway.WebhookBaseURL != "" && s.Gateway.WebhookSecret == "" {
		errs = append(errs, errors.New("GATEWAY_WEBHOOK_SECRET is required when GATEWAY_WEBHOOK_BASE_URL is set"))
	}
	if s.Tracing.SampleRatio < 0 || s.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLER_RATIO must be within [0,1]"))
	}
	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_LEVEL %q", s.Log.Level))
	}
	return errors.Join(errs...)
}
