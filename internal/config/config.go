// Package config loads environment-driven settings for the approvals service.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config stores environment-driven settings for the server.
type Config struct {
	// ServiceName identifies this service in logs and audit events.
	ServiceName string `env:"SERVICE_NAME" envDefault:"expense-approvals"`
	// Environment is the deployment environment (development, staging, production).
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	// LogLevel sets the zerolog level.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTPPort is the port the HTTP API listens on.
	HTTPPort int `env:"HTTP_PORT" envDefault:"8086"`
	// ReadTimeout bounds request header+body reads.
	ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	// IdleTimeout bounds keep-alive idle connections.
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	// RequestTimeout is the per-request deadline applied by middleware.
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	// ShutdownTimeout controls graceful shutdown duration.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// DatabaseURL is the Postgres connection string. When empty the service
	// falls back to the in-memory store (development mode).
	DatabaseURL string `env:"DATABASE_URL"`
	// DatabaseMaxConns caps the pgx connection pool size.
	DatabaseMaxConns int32 `env:"DATABASE_MAX_CONNS" envDefault:"10"`

	// NATSURL is the NATS server for audit events. When empty audit events
	// are only logged.
	NATSURL string `env:"NATS_URL"`
}

// Load parses environment variables into Config.
func Load() (Config, error) {
	return env.ParseAs[Config]()
}
