// Package store provides an object-relational persistence core for flat entity tables.
//
// Roster maps in-memory domain objects to rows through one mapper per domain
// type, hands out exactly one live instance per persisted identity, and batches
// writes into units of work that commit atomically.
//
// # Key Features
//
//   - Mapper registry resolving objects and type names to mappers
//   - One storage connection per process, owned by the registry
//   - Identity map guaranteeing one instance per (type, identity)
//   - Unit of work with insert, update, delete ordering and all-or-nothing commit
//   - Pluggable engines behind [Conn] and [Dialect] (SQLite, Postgres, DynamoDB PartiQL)
//
// # Domain Objects
//
// Domain types embed [Record] and implement [DomainObject]:
//
//	type Student struct {
//	    store.Record
//	    name string
//	}
//
//	func (s *Student) EntityType() string { return "student" }
//
// Identity is 0 until the engine assigns one on insert. Status starts as
// [StatusNew], becomes [StatusClean] after a load or write, [StatusDirty] after
// [Record.MarkDirty], and [StatusRemoved] after a delete request.
//
// # Mappers
//
// A [Schema] describes the table and column binding; [TableMapper] implements
// [Mapper] for it. Mappers execute statements but never commit: outside a
// [UnitOfWork] the caller commits through [Registry.Commit].
//
// # Registry
//
// Construct one [Registry] at startup and close it at shutdown:
//
//	reg := store.NewRegistry(conn, store.DefaultConfig())
//	defer reg.Close()
//	school.Register(reg)
//	store.SetDefault(reg)
//
// # Units of Work
//
//	uow := store.NewUnitOfWork(reg)
//	_ = uow.RegisterNew(ann)
//	if err := uow.Commit(ctx); err != nil {
//	    // nothing was written; uow is open again with its sets intact
//	}
//
// # Concurrency
//
// Registry, IdentityMap, UnitOfWork and every Conn assume a single thread of
// control. Use one UnitOfWork per logical operation and guard shared state
// externally if requests run concurrently.
//
// # Errors
//
// The package defines domain-specific errors, usually wrapped in an [OpError]
// carrying the operation, table and identity:
//
//   - [ErrUnknownMappedType] - no mapper registered for the type or name
//   - [ErrRecordNotFound] - point lookup matched no row
//   - [ErrMissingIdentity] - update or delete on an unpersisted object
//   - [ErrInsert], [ErrUpdate], [ErrDelete] - storage rejected the write
//   - [ErrCommit] - storage failed to commit
//   - [ErrInvalidStateTransition] - unit of work used after commit started
package store
