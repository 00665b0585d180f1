package store

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMappedType is returned when no mapper is registered for a type or name.
	ErrUnknownMappedType = errors.New("roster: no mapper registered for type")

	// ErrRecordNotFound is returned when a point lookup matches zero rows.
	ErrRecordNotFound = errors.New("roster: record not found")

	// ErrMissingIdentity is returned when update or delete is attempted on an
	// object that was never persisted.
	ErrMissingIdentity = errors.New("roster: object has no identity")

	// ErrInsert is returned when the storage engine rejects an insert.
	ErrInsert = errors.New("roster: insert failed")

	// ErrUpdate is returned when the storage engine rejects an update or the row vanished.
	ErrUpdate = errors.New("roster: update failed")

	// ErrDelete is returned when the storage engine rejects a delete or the row vanished.
	ErrDelete = errors.New("roster: delete failed")

	// ErrCommit is returned when the storage engine fails to commit a transaction.
	ErrCommit = errors.New("roster: commit failed")

	// ErrInvalidStateTransition is returned when a unit of work is used after commit started.
	ErrInvalidStateTransition = errors.New("roster: invalid unit of work state transition")

	// ErrConstraint is reported by engines when a statement violates a table constraint.
	ErrConstraint = errors.New("roster: constraint violation")

	// ErrRegistryClosed is returned by a registry after Close.
	ErrRegistryClosed = errors.New("roster: registry is closed")
)

// OpError records a failed persistence operation with its table and identity.
//
// It unwraps to both Kind (one of the sentinels above) and Err (the storage
// cause), so errors.Is matches either.
type OpError struct {
	Op    string
	Table string
	ID    int64
	Kind  error
	Err   error
}

func (e *OpError) Error() string {
	msg := e.Op + " " + e.Table
	if e.ID != 0 {
		msg += fmt.Sprintf(" id=%d", e.ID)
	}
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func opError(op, table string, id int64, kind, err error) error {
	return &OpError{Op: op, Table: table, ID: id, Kind: kind, Err: err}
}
