package store

import "context"

// Conn is the storage engine boundary shared by every mapper.
//
// Writes are never durable until Commit: a write issued while no transaction
// is open implicitly begins one, and Begin joins a transaction that is
// already open. Reads run inside the open transaction when there is one.
//
// Implementations are not safe for concurrent use.
type Conn interface {
	// Exec runs a statement that returns no rows and reports rows affected.
	// Engines that only learn the outcome at commit report 1.
	Exec(ctx context.Context, stmt string, args ...any) (int64, error)

	// InsertID runs an insert built by Dialect().Insert for table and returns
	// the identity the engine assigned to the new row.
	InsertID(ctx context.Context, table, stmt string, args ...any) (int64, error)

	// Query runs a statement and returns every result row.
	Query(ctx context.Context, stmt string, args ...any) ([]Row, error)

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Dialect returns the statement renderer matching this engine.
	Dialect() Dialect

	Close() error
}

// Dialect renders the statements a flat-table mapper issues. Column lists
// never include the identity column, which is always named "id".
type Dialect interface {
	Name() string
	SelectByID(table string, cols []string) string
	SelectAll(table string, cols []string) string
	Insert(table string, cols []string) string
	// Update binds column values first and the identity last.
	Update(table string, cols []string) string
	Delete(table string) string
}

// IdentityColumn is the surrogate primary key column of every mapped table.
const IdentityColumn = "id"
