// Package sqlengine implements store.Conn over database/sql for SQLite and Postgres.
package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/jacentio/roster/store"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

const defaultSQLitePath = "roster.db"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Options configures Open.
type Options struct {
	// Driver is DriverSQLite or DriverPostgres.
	// Default: DriverSQLite
	Driver string

	// DSN is the SQLite file path (":memory:" allowed) or the Postgres connection string.
	// Default: "roster.db" for SQLite
	DSN string

	// Logger receives statement-level debug logs.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Conn is a store.Conn over a single database/sql connection.
type Conn struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect Dialect
	logger  *slog.Logger
}

var _ store.Conn = (*Conn)(nil)

// Open connects to the database and pins the pool to one connection.
func Open(ctx context.Context, opts Options) (*Conn, error) {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var dialect Dialect
	switch opts.Driver {
	case DriverSQLite:
		dialect = SQLite
		if strings.TrimSpace(opts.DSN) == "" {
			opts.DSN = defaultSQLitePath
		}
	case DriverPostgres:
		dialect = Postgres
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
	default:
		return nil, fmt.Errorf("unknown sql driver %q", opts.Driver)
	}

	openMu.Lock()
	db, err := sqlOpen(opts.Driver, opts.DSN)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.name, err)
	}
	// One connection for the process lifetime; an in-memory SQLite database
	// also lives exactly as long as this connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.name, err)
	}
	return &Conn{db: db, dialect: dialect, logger: opts.Logger}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (c *Conn) DB() *sql.DB { return c.db }

// Dialect returns the statement renderer for this database.
func (c *Conn) Dialect() store.Dialect { return c.dialect }

// InTx reports whether a transaction is open.
func (c *Conn) InTx() bool { return c.tx != nil }

// Exec runs stmt inside the open transaction, beginning one if needed.
func (c *Conn) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	tx, err := c.begin(ctx)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("exec", "stmt", stmt)
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// InsertID runs an insert inside the open transaction and returns the new row's identity.
func (c *Conn) InsertID(ctx context.Context, table, stmt string, args ...any) (int64, error) {
	tx, err := c.begin(ctx)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("insert", "table", table, "stmt", stmt)
	if c.dialect.returning {
		var id int64
		if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
			return 0, classify(err)
		}
		return id, nil
	}
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Query runs stmt inside the open transaction, or directly when none is open.
func (c *Conn) Query(ctx context.Context, stmt string, args ...any) ([]store.Row, error) {
	c.logger.Debug("query", "stmt", stmt)
	var (
		rows *sql.Rows
		err  error
	)
	if c.tx != nil {
		rows, err = c.tx.QueryContext(ctx, stmt, args...)
	} else {
		rows, err = c.db.QueryContext(ctx, stmt, args...)
	}
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var out []store.Row
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(store.Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Begin opens a transaction, or joins the one already open.
func (c *Conn) Begin(ctx context.Context) error {
	_, err := c.begin(ctx)
	return err
}

func (c *Conn) begin(ctx context.Context) (*sql.Tx, error) {
	if c.tx != nil {
		return c.tx, nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	c.tx = tx
	return tx, nil
}

// Commit commits the open transaction. Without one it does nothing.
func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

// Rollback discards the open transaction. Without one it does nothing.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Close rolls back any open transaction and closes the database handle.
func (c *Conn) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	rbErr := c.Rollback(context.Background())
	return errors.Join(rbErr, c.db.Close())
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
