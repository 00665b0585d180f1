package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is the lifecycle state of a UnitOfWork.
type State int

const (
	// StateOpen accepts registrations and Commit.
	StateOpen State = iota
	// StateCommitting is held for the duration of Commit.
	StateCommitting
	// StateClosed is terminal; start a new UnitOfWork for further work.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitting:
		return "committing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// objectSet is an insertion-ordered set of domain objects.
type objectSet struct {
	items []DomainObject
	index map[DomainObject]struct{}
}

func (s *objectSet) has(obj DomainObject) bool {
	_, ok := s.index[obj]
	return ok
}

func (s *objectSet) add(obj DomainObject) {
	if s.index == nil {
		s.index = make(map[DomainObject]struct{})
	}
	if _, ok := s.index[obj]; ok {
		return
	}
	s.index[obj] = struct{}{}
	s.items = append(s.items, obj)
}

func (s *objectSet) remove(obj DomainObject) {
	if _, ok := s.index[obj]; !ok {
		return
	}
	delete(s.index, obj)
	for i, item := range s.items {
		if item == obj {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

func (s *objectSet) list() []DomainObject {
	out := make([]DomainObject, len(s.items))
	copy(out, s.items)
	return out
}

func (s *objectSet) clear() {
	s.items = nil
	s.index = nil
}

// UnitOfWork batches inserts, updates and deletes and commits them atomically.
//
// An object belongs to at most one of the new, dirty and removed sets;
// registering it again moves it. Commit applies inserts, then updates, then
// deletes, each in registration order, followed by a single engine commit.
// If anything fails the engine transaction is rolled back, every object's
// identity and status are restored, the sets are left as they were and the
// unit of work is open again.
//
// A UnitOfWork serves one logical operation and is not safe for concurrent use.
type UnitOfWork struct {
	id       string
	registry *Registry
	state    State
	inserts  objectSet
	updates  objectSet
	deletes  objectSet
	logger   *slog.Logger
}

// NewUnitOfWork starts an open unit of work on r.
func NewUnitOfWork(r *Registry) *UnitOfWork {
	id := uuid.NewString()
	return &UnitOfWork{
		id:       id,
		registry: r,
		logger:   r.config.Logger.With("uow", id),
	}
}

// ID returns the unit of work's correlation identifier.
func (u *UnitOfWork) ID() string { return u.id }

// State returns the current lifecycle state.
func (u *UnitOfWork) State() State { return u.state }

// NewObjects returns the objects pending insert, in registration order.
func (u *UnitOfWork) NewObjects() []DomainObject { return u.inserts.list() }

// DirtyObjects returns the objects pending update, in registration order.
func (u *UnitOfWork) DirtyObjects() []DomainObject { return u.updates.list() }

// RemovedObjects returns the objects pending delete, in registration order.
func (u *UnitOfWork) RemovedObjects() []DomainObject { return u.deletes.list() }

// RegisterNew schedules obj for insert. obj must not have an identity yet.
func (u *UnitOfWork) RegisterNew(obj DomainObject) error {
	m, err := u.check(obj)
	if err != nil {
		return err
	}
	if u.inserts.has(obj) {
		return nil
	}
	if obj.HasID() {
		return opError("register_new", m.Table(), obj.ID(), ErrInsert, fmt.Errorf("object already has identity"))
	}
	u.updates.remove(obj)
	u.deletes.remove(obj)
	u.inserts.add(obj)
	return nil
}

// RegisterDirty schedules obj for update. An object already pending insert
// stays there, since the insert writes its current fields.
func (u *UnitOfWork) RegisterDirty(obj DomainObject) error {
	m, err := u.check(obj)
	if err != nil {
		return err
	}
	if u.inserts.has(obj) || u.updates.has(obj) {
		return nil
	}
	if !obj.HasID() {
		return opError("register_dirty", m.Table(), 0, ErrMissingIdentity, nil)
	}
	if u.deletes.has(obj) {
		u.deletes.remove(obj)
		obj.record().status = StatusDirty
	}
	u.updates.add(obj)
	return nil
}

// RegisterRemoved schedules obj for delete and marks it Removed. An object
// pending insert that was never persisted is simply dropped from the batch.
func (u *UnitOfWork) RegisterRemoved(obj DomainObject) error {
	m, err := u.check(obj)
	if err != nil {
		return err
	}
	if u.inserts.has(obj) && !obj.HasID() {
		u.inserts.remove(obj)
		return nil
	}
	if u.deletes.has(obj) {
		return nil
	}
	if !obj.HasID() {
		return opError("register_removed", m.Table(), 0, ErrMissingIdentity, nil)
	}
	u.inserts.remove(obj)
	u.updates.remove(obj)
	u.deletes.add(obj)
	obj.record().status = StatusRemoved
	return nil
}

// check validates a registration and returns obj's mapper.
func (u *UnitOfWork) check(obj DomainObject) (Mapper, error) {
	if u.state != StateOpen {
		return nil, fmt.Errorf("%w: register on %s unit of work", ErrInvalidStateTransition, u.state)
	}
	return u.registry.Mapper(obj)
}

// Commit applies the batch. See UnitOfWork for the failure contract.
func (u *UnitOfWork) Commit(ctx context.Context) (err error) {
	if u.state != StateOpen {
		return fmt.Errorf("%w: commit on %s unit of work", ErrInvalidStateTransition, u.state)
	}
	if u.registry.closed {
		return ErrRegistryClosed
	}
	u.state = StateCommitting

	cfg := u.registry.config
	started := time.Now()
	ctx, span := cfg.Tracer.Start(ctx, "store.UnitOfWork.Commit", trace.WithAttributes(
		attribute.String("roster.uow", u.id),
		attribute.Int("roster.inserts", len(u.inserts.items)),
		attribute.Int("roster.updates", len(u.updates.items)),
		attribute.Int("roster.deletes", len(u.deletes.items)),
	))
	defer func() {
		cfg.Metrics.observeCommit(time.Since(started), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(u.inserts.items)+len(u.updates.items)+len(u.deletes.items) == 0 {
		u.state = StateClosed
		return nil
	}

	saved := u.save()
	if err := u.apply(ctx); err != nil {
		return u.abort(ctx, saved, err)
	}
	u.finalize()
	return nil
}

func (u *UnitOfWork) save() map[DomainObject]state {
	saved := make(map[DomainObject]state, len(u.inserts.items)+len(u.updates.items)+len(u.deletes.items))
	for _, set := range []*objectSet{&u.inserts, &u.updates, &u.deletes} {
		for _, obj := range set.items {
			saved[obj] = saveState(obj)
		}
	}
	return saved
}

func (u *UnitOfWork) apply(ctx context.Context) error {
	conn := u.registry.conn
	if err := conn.Begin(ctx); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	steps := []struct {
		set *objectSet
		run func(Mapper, context.Context, DomainObject) error
	}{
		{&u.inserts, Mapper.Insert},
		{&u.updates, Mapper.Update},
		{&u.deletes, Mapper.Delete},
	}
	for _, step := range steps {
		for _, obj := range step.set.items {
			m, err := u.registry.Mapper(obj)
			if err != nil {
				return err
			}
			if err := step.run(m, ctx, obj); err != nil {
				return err
			}
		}
	}
	if err := conn.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	return nil
}

func (u *UnitOfWork) abort(ctx context.Context, saved map[DomainObject]state, cause error) error {
	rbErr := u.registry.conn.Rollback(ctx)
	u.registry.config.journal.discard()
	for obj, st := range saved {
		st.restore(obj)
	}
	u.state = StateOpen
	if rbErr != nil {
		u.logger.Error("unit of work rollback failed",
			"cause", cause,
			"error", rbErr,
		)
		return errors.Join(cause, fmt.Errorf("rollback: %w", rbErr))
	}
	u.logger.Warn("unit of work rolled back",
		"inserts", len(u.inserts.items),
		"updates", len(u.updates.items),
		"deletes", len(u.deletes.items),
		"error", cause,
	)
	return cause
}

func (u *UnitOfWork) finalize() {
	identities := u.registry.identities
	u.registry.config.journal.apply(identities)
	for _, obj := range u.inserts.items {
		identities.Add(obj)
	}
	for _, obj := range u.deletes.items {
		identities.Evict(obj.EntityType(), obj.ID())
	}
	u.logger.Info("unit of work committed",
		"inserts", len(u.inserts.items),
		"updates", len(u.updates.items),
		"deletes", len(u.deletes.items),
	)
	u.inserts.clear()
	u.updates.clear()
	u.deletes.clear()
	u.state = StateClosed
}
