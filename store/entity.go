package store

import (
	"fmt"
	"math"
	"strconv"
)

// Status tracks where a domain object sits in its persistence lifecycle.
type Status int

const (
	// StatusNew marks an object constructed in memory and never persisted.
	StatusNew Status = iota
	// StatusClean marks an object whose fields match its stored row.
	StatusClean
	// StatusDirty marks a persisted object mutated since it was loaded or written.
	StatusDirty
	// StatusRemoved marks an object whose deletion was requested.
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusClean:
		return "clean"
	case StatusDirty:
		return "dirty"
	case StatusRemoved:
		return "removed"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Record holds the identity and status shared by every domain object.
// Domain types embed it by value and are always handled through pointers.
type Record struct {
	id     int64
	status Status
}

// ID returns the storage-assigned identity, or 0 while the object is unpersisted.
func (r *Record) ID() int64 { return r.id }

// HasID reports whether the object has been assigned an identity.
func (r *Record) HasID() bool { return r.id != 0 }

// Status returns the current lifecycle status.
func (r *Record) Status() Status { return r.status }

// MarkDirty flags a clean object as mutated. New and removed objects keep their status.
func (r *Record) MarkDirty() {
	if r.status == StatusClean {
		r.status = StatusDirty
	}
}

func (r *Record) record() *Record { return r }

// DomainObject is implemented by every persistable type.
//
// The unexported record accessor is satisfied by embedding [Record]; identity
// and status are therefore only ever changed by this package.
type DomainObject interface {
	// EntityType returns the type tag used to resolve the object's mapper (e.g., "student").
	EntityType() string

	ID() int64
	HasID() bool
	Status() Status

	record() *Record
}

// state is a saved identity/status pair used to undo a failed commit.
type state struct {
	id     int64
	status Status
}

func saveState(obj DomainObject) state {
	r := obj.record()
	return state{id: r.id, status: r.status}
}

func (s state) restore(obj DomainObject) {
	r := obj.record()
	r.id = s.id
	r.status = s.status
}

// Row is one result row keyed by column name.
type Row map[string]any

// Int64 returns the named column as an integer. Drivers differ in how they
// surface integers (int64, float64 for DynamoDB numbers, []byte for some text
// protocols), all of which are accepted.
func (r Row) Int64(col string) (int64, error) {
	v, ok := r[col]
	if !ok {
		return 0, fmt.Errorf("column %q missing from row", col)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("column %q: %v is not an integer", col, n)
		}
		if n < -(1<<63) || n >= 1<<63 {
			return 0, fmt.Errorf("column %q: %v overflows int64", col, n)
		}
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("column %q: unsupported integer type %T", col, v)
	}
}

// String returns the named column as a string. NULL is returned as "".
func (r Row) String(col string) (string, error) {
	v, ok := r[col]
	if !ok {
		return "", fmt.Errorf("column %q missing from row", col)
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", fmt.Errorf("column %q: unsupported string type %T", col, v)
	}
}
