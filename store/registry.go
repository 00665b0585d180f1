package store

import (
	"context"
	"fmt"
	"sync"
)

// Registry resolves domain objects and type names to their mappers and owns
// the single storage connection every mapper borrows.
//
// A process constructs one Registry at startup, publishes it with SetDefault
// if other packages need it, and closes it at shutdown. Registry is not safe
// for concurrent use.
type Registry struct {
	conn       Conn
	config     Config
	mappers    map[string]MapperFunc
	identities *IdentityMap
	closed     bool
}

// NewRegistry creates a Registry that owns conn.
func NewRegistry(conn Conn, config Config) *Registry {
	config.validate()
	config.journal = &journal{}
	identities := NewIdentityMap()
	identities.metrics = config.Metrics
	return &Registry{
		conn:       conn,
		config:     config,
		mappers:    make(map[string]MapperFunc),
		identities: identities,
	}
}

// Register binds a type tag to a mapper constructor, replacing any earlier binding.
// This should be called once per domain type during startup.
func (r *Registry) Register(typ string, fn MapperFunc) {
	r.mappers[typ] = fn
}

// Types returns the registered type tags in no particular order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.mappers))
	for typ := range r.mappers {
		types = append(types, typ)
	}
	return types
}

// Mapper returns the mapper for obj's type tag.
func (r *Registry) Mapper(obj DomainObject) (Mapper, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: nil object", ErrUnknownMappedType)
	}
	return r.MapperByName(obj.EntityType())
}

// MapperByName returns the mapper registered under name. Every call builds a
// fresh mapper value bound to the registry's connection.
func (r *Registry) MapperByName(name string) (Mapper, error) {
	if r.closed {
		return nil, ErrRegistryClosed
	}
	fn, ok := r.mappers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMappedType, name)
	}
	return fn(r.conn, r.config), nil
}

// Identities returns the registry's identity map.
func (r *Registry) Identities() *IdentityMap {
	return r.identities
}

// Load returns the single live instance of (typ, id), reading it through the
// type's mapper on the first request only.
func (r *Registry) Load(ctx context.Context, typ string, id int64) (DomainObject, error) {
	m, err := r.MapperByName(typ)
	if err != nil {
		return nil, err
	}
	return r.identities.GetOrLoad(typ, id, func() (DomainObject, error) {
		return m.FindByID(ctx, id)
	})
}

// LoadAll reads every row of typ's table, substituting already cached
// instances for rows whose identity is live in the identity map.
func (r *Registry) LoadAll(ctx context.Context, typ string) ([]DomainObject, error) {
	m, err := r.MapperByName(typ)
	if err != nil {
		return nil, err
	}
	objs, err := m.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for i, obj := range objs {
		objs[i] = r.identities.Resolve(obj)
	}
	return objs, nil
}

// Commit commits writes issued directly through mappers. Objects inserted
// by those writes join the identity map and deleted ones are evicted, once
// the engine commit succeeds.
func (r *Registry) Commit(ctx context.Context) error {
	if r.closed {
		return ErrRegistryClosed
	}
	if err := r.conn.Commit(ctx); err != nil {
		r.config.journal.discard()
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	r.config.journal.apply(r.identities)
	return nil
}

// Rollback discards writes issued directly through mappers. The identity map
// is left as it was before them.
func (r *Registry) Rollback(ctx context.Context) error {
	if r.closed {
		return ErrRegistryClosed
	}
	r.config.journal.discard()
	return r.conn.Rollback(ctx)
}

// Close empties the identity map and closes the connection. Later calls are no-ops.
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.config.journal.discard()
	r.identities.EvictAll()
	return r.conn.Close()
}

var (
	defaultMu       sync.RWMutex
	defaultRegistry *Registry
)

// SetDefault publishes r as the process-wide registry. Pass nil at shutdown.
func SetDefault(r *Registry) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = r
}

// Default returns the process-wide registry, or nil if none was set.
// It never constructs one.
func Default() *Registry {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRegistry
}
