package store

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Mapper translates one domain type to and from its table.
//
// No method commits: outside a UnitOfWork the caller must commit through
// Registry.Commit. Mappers never cache rows; use Registry.Load or an
// IdentityMap when instance identity matters.
type Mapper interface {
	// Type returns the type tag this mapper serves.
	Type() string

	// Table returns the backing table name.
	Table() string

	// FindByID loads one object with status Clean, or fails with ErrRecordNotFound.
	FindByID(ctx context.Context, id int64) (DomainObject, error)

	// FindAll loads one freshly constructed Clean object per row.
	FindAll(ctx context.Context) ([]DomainObject, error)

	// Insert writes obj and stores the engine-assigned identity on it.
	Insert(ctx context.Context, obj DomainObject) error

	// Update rewrites the row keyed by obj's identity.
	Update(ctx context.Context, obj DomainObject) error

	// Delete removes the row keyed by obj's identity.
	Delete(ctx context.Context, obj DomainObject) error
}

// MapperFunc constructs a mapper bound to conn. Registries call it on every
// lookup, so it must be cheap and side-effect free.
type MapperFunc func(conn Conn, cfg Config) Mapper

// Schema describes how a domain type T maps onto a flat table.
type Schema[T DomainObject] struct {
	// Type is the type tag returned by T's EntityType.
	Type string

	// Table is the backing table name.
	Table string

	// Columns lists the non-identity columns in binding order.
	Columns []string

	// New returns an empty instance to load a row into.
	New func() T

	// Values returns obj's field values in Columns order.
	Values func(obj T) []any

	// Load copies the non-identity columns of row onto obj.
	Load func(obj T, row Row) error
}

// TableMapper implements Mapper for any Schema. Concrete mappers embed it.
type TableMapper[T DomainObject] struct {
	conn    Conn
	schema  Schema[T]
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	journal *journal
}

var _ Mapper = (*TableMapper[DomainObject])(nil)

// NewTableMapper creates a mapper for schema over conn.
func NewTableMapper[T DomainObject](conn Conn, cfg Config, schema Schema[T]) *TableMapper[T] {
	cfg.validate()
	return &TableMapper[T]{
		conn:    conn,
		schema:  schema,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		journal: cfg.journal,
	}
}

// Type returns the schema's type tag.
func (m *TableMapper[T]) Type() string { return m.schema.Type }

// Table returns the schema's table name.
func (m *TableMapper[T]) Table() string { return m.schema.Table }

// Find is the typed form of FindByID.
func (m *TableMapper[T]) Find(ctx context.Context, id int64) (obj T, err error) {
	ctx, span := m.start(ctx, "find", id)
	defer func() { err = m.finish(span, "find", id, err) }()

	var zero T
	if id <= 0 {
		return zero, opError("find", m.schema.Table, id, ErrRecordNotFound, nil)
	}
	stmt := m.conn.Dialect().SelectByID(m.schema.Table, m.schema.Columns)
	rows, err := m.conn.Query(ctx, stmt, id)
	if err != nil {
		return zero, opError("find", m.schema.Table, id, nil, err)
	}
	if len(rows) == 0 {
		return zero, opError("find", m.schema.Table, id, ErrRecordNotFound, nil)
	}
	obj, err = m.load(rows[0])
	if err != nil {
		return zero, opError("find", m.schema.Table, id, nil, err)
	}
	return obj, nil
}

// FindByID loads one object by identity.
func (m *TableMapper[T]) FindByID(ctx context.Context, id int64) (DomainObject, error) {
	obj, err := m.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// All is the typed form of FindAll.
func (m *TableMapper[T]) All(ctx context.Context) (objs []T, err error) {
	ctx, span := m.start(ctx, "find_all", 0)
	defer func() { err = m.finish(span, "find_all", 0, err) }()

	stmt := m.conn.Dialect().SelectAll(m.schema.Table, m.schema.Columns)
	rows, err := m.conn.Query(ctx, stmt)
	if err != nil {
		return nil, opError("find_all", m.schema.Table, 0, nil, err)
	}
	objs = make([]T, 0, len(rows))
	for _, row := range rows {
		obj, err := m.load(row)
		if err != nil {
			return nil, opError("find_all", m.schema.Table, 0, nil, err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// FindAll loads every row of the table.
func (m *TableMapper[T]) FindAll(ctx context.Context) ([]DomainObject, error) {
	objs, err := m.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DomainObject, len(objs))
	for i, obj := range objs {
		out[i] = obj
	}
	return out, nil
}

// Insert writes obj as a new row. On success obj carries the assigned
// identity and status Clean.
func (m *TableMapper[T]) Insert(ctx context.Context, obj DomainObject) (err error) {
	ctx, span := m.start(ctx, "insert", 0)
	var id int64
	defer func() { err = m.finish(span, "insert", id, err) }()

	o, err := m.cast("insert", obj)
	if err != nil {
		return err
	}
	if obj.HasID() {
		return opError("insert", m.schema.Table, obj.ID(), ErrInsert, fmt.Errorf("object already has identity"))
	}
	args, err := m.values(o)
	if err != nil {
		return opError("insert", m.schema.Table, 0, ErrInsert, err)
	}
	stmt := m.conn.Dialect().Insert(m.schema.Table, m.schema.Columns)
	id, err = m.conn.InsertID(ctx, m.schema.Table, stmt, args...)
	if err != nil {
		return opError("insert", m.schema.Table, 0, ErrInsert, err)
	}
	if id <= 0 {
		return opError("insert", m.schema.Table, 0, ErrInsert, fmt.Errorf("engine assigned invalid identity %d", id))
	}
	r := obj.record()
	r.id = id
	r.status = StatusClean
	m.journal.inserted(obj)
	return nil
}

// Update rewrites obj's row. A zero-row match fails with ErrUpdate wrapping ErrRecordNotFound.
func (m *TableMapper[T]) Update(ctx context.Context, obj DomainObject) (err error) {
	id := obj.ID()
	ctx, span := m.start(ctx, "update", id)
	defer func() { err = m.finish(span, "update", id, err) }()

	o, err := m.cast("update", obj)
	if err != nil {
		return err
	}
	if !obj.HasID() {
		return opError("update", m.schema.Table, 0, ErrMissingIdentity, nil)
	}
	args, err := m.values(o)
	if err != nil {
		return opError("update", m.schema.Table, id, ErrUpdate, err)
	}
	stmt := m.conn.Dialect().Update(m.schema.Table, m.schema.Columns)
	n, err := m.conn.Exec(ctx, stmt, append(args, id)...)
	if err != nil {
		return opError("update", m.schema.Table, id, ErrUpdate, err)
	}
	if n == 0 {
		return opError("update", m.schema.Table, id, ErrUpdate, ErrRecordNotFound)
	}
	obj.record().status = StatusClean
	return nil
}

// Delete removes obj's row. On success obj has status Removed and keeps its identity.
func (m *TableMapper[T]) Delete(ctx context.Context, obj DomainObject) (err error) {
	id := obj.ID()
	ctx, span := m.start(ctx, "delete", id)
	defer func() { err = m.finish(span, "delete", id, err) }()

	if _, err := m.cast("delete", obj); err != nil {
		return err
	}
	if !obj.HasID() {
		return opError("delete", m.schema.Table, 0, ErrMissingIdentity, nil)
	}
	n, err := m.conn.Exec(ctx, m.conn.Dialect().Delete(m.schema.Table), id)
	if err != nil {
		return opError("delete", m.schema.Table, id, ErrDelete, err)
	}
	if n == 0 {
		return opError("delete", m.schema.Table, id, ErrDelete, ErrRecordNotFound)
	}
	obj.record().status = StatusRemoved
	m.journal.deleted(obj.EntityType(), id)
	return nil
}

func (m *TableMapper[T]) cast(op string, obj DomainObject) (T, error) {
	o, ok := obj.(T)
	if !ok {
		var zero T
		return zero, opError(op, m.schema.Table, obj.ID(), ErrUnknownMappedType,
			fmt.Errorf("%T is not mapped by the %s mapper", obj, m.schema.Type))
	}
	return o, nil
}

func (m *TableMapper[T]) values(obj T) ([]any, error) {
	args := m.schema.Values(obj)
	if len(args) != len(m.schema.Columns) {
		return nil, fmt.Errorf("schema %s: %d values for %d columns", m.schema.Type, len(args), len(m.schema.Columns))
	}
	return args, nil
}

func (m *TableMapper[T]) load(row Row) (T, error) {
	obj := m.schema.New()
	id, err := row.Int64(IdentityColumn)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := m.schema.Load(obj, row); err != nil {
		var zero T
		return zero, err
	}
	r := obj.record()
	r.id = id
	r.status = StatusClean
	return obj, nil
}

func (m *TableMapper[T]) start(ctx context.Context, op string, id int64) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "store."+op, trace.WithAttributes(
		attribute.String("db.sql.table", m.schema.Table),
		attribute.String("roster.type", m.schema.Type),
		attribute.Int64("roster.id", id),
	))
}

func (m *TableMapper[T]) finish(span trace.Span, op string, id int64, err error) error {
	defer span.End()
	m.metrics.observeOp(op, m.schema.Table, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Debug("mapper operation failed",
			"op", op,
			"table", m.schema.Table,
			"id", id,
			"error", err,
		)
		return err
	}
	m.logger.Debug("mapper operation",
		"op", op,
		"table", m.schema.Table,
		"id", id,
	)
	return nil
}
