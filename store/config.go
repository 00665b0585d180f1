package store

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used for spans emitted by this package.
const TracerName = "github.com/jacentio/roster/store"

// Config holds configuration for a Registry and the units of work built on it.
type Config struct {
	// Logger receives structured persistence logs.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics records operation counts, commit latency and identity map hits.
	// Default: nil (metrics disabled)
	Metrics *Metrics

	// Tracer starts spans around mapper operations and commits.
	// Default: the global OpenTelemetry tracer provider's TracerName tracer
	Tracer trace.Tracer

	// journal is set by NewRegistry so mappers it builds report committed
	// inserts and deletes to its identity map.
	journal *journal
}

// DefaultConfig returns a configuration that logs through slog.Default and
// traces through the global OpenTelemetry provider.
func DefaultConfig() Config {
	return Config{
		Logger: slog.Default(),
		Tracer: otel.Tracer(TracerName),
	}
}

// validate fills unset fields with their defaults.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(TracerName)
	}
}
