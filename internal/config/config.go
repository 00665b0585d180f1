// Package config loads roster process configuration from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

// Log formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config is the process configuration for cmd/roster.
type Config struct {
	Storage Storage
	Log     Log

	// OTelEndpoint enables OTLP/HTTP trace export when set.
	OTelEndpoint string `env:"ROSTER_OTEL_ENDPOINT"`
}

// Storage selects and configures the storage engine.
type Storage struct {
	Driver string `env:"ROSTER_STORAGE_DRIVER" envDefault:"sqlite"`

	SQLitePath  string `env:"ROSTER_SQLITE_PATH"  envDefault:"roster.db"`
	PostgresDSN string `env:"ROSTER_POSTGRES_DSN"`

	DynamoTablePrefix   string `env:"ROSTER_DYNAMODB_TABLE_PREFIX"`
	DynamoSequenceTable string `env:"ROSTER_DYNAMODB_SEQUENCE_TABLE" envDefault:"roster_sequences"`
	DynamoRegion        string `env:"ROSTER_DYNAMODB_REGION"`
	DynamoEndpoint      string `env:"ROSTER_DYNAMODB_ENDPOINT"`
}

// Log configures the process logger.
type Log struct {
	Level  slog.Level `env:"ROSTER_LOG_LEVEL"  envDefault:"info"`
	Format string     `env:"ROSTER_LOG_FORMAT" envDefault:"json"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks driver and format choices.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverDynamoDB:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("ROSTER_POSTGRES_DSN is required for the %s driver", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case FormatJSON, FormatText:
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Logger builds a logger writing to w in the configured format and level.
func (l Log) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.Level}
	if l.Format == FormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
