// Package backend opens the storage engine selected by configuration and
// prepares the school tables on it.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacentio/roster/internal/config"
	"github.com/jacentio/roster/internal/dynamoengine"
	"github.com/jacentio/roster/internal/sqlengine"
	"github.com/jacentio/roster/school"
	"github.com/jacentio/roster/store"
)

// Open connects to the configured engine and ensures the school tables exist.
func Open(ctx context.Context, cfg config.Storage, logger *slog.Logger) (store.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverSQLite, "":
		return openSQL(ctx, sqlengine.Options{Driver: sqlengine.DriverSQLite, DSN: cfg.SQLitePath, Logger: logger})
	case config.DriverPostgres:
		return openSQL(ctx, sqlengine.Options{Driver: sqlengine.DriverPostgres, DSN: cfg.PostgresDSN, Logger: logger})
	case config.DriverDynamoDB:
		conn, err := dynamoengine.Open(ctx,
			dynamoengine.ClientOptions{Region: cfg.DynamoRegion, Endpoint: cfg.DynamoEndpoint},
			dynamoengine.Options{
				TablePrefix:   cfg.DynamoTablePrefix,
				SequenceTable: cfg.DynamoSequenceTable,
				Logger:        logger,
			})
		if err != nil {
			return nil, err
		}
		if err := conn.EnsureTables(ctx, school.Tables()...); err != nil {
			return nil, fmt.Errorf("ensure dynamodb tables: %w", err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func openSQL(ctx context.Context, opts sqlengine.Options) (store.Conn, error) {
	conn, err := sqlengine.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	ddl, err := school.Schema(conn.Dialect().Name())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.ApplySchema(ctx, ddl); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
