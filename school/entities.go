// Package school defines the course-catalog domain objects and their mappers.
package school

import (
	"errors"
	"fmt"

	"github.com/jacentio/roster/store"
)

// Type tags, also used as table names.
const (
	TypeStudent  = "student"
	TypeTeacher  = "teacher"
	TypeCategory = "category"
	TypeCourse   = "course"
)

// ErrUnknownKind is returned by the factories for an unrecognized kind.
var ErrUnknownKind = errors.New("roster: unknown kind")

// User is implemented by every person in the catalog.
type User interface {
	store.DomainObject
	Name() string
	SetName(name string)
}

// Student is a person enrolled in courses.
type Student struct {
	store.Record
	name string
}

// NewStudent creates an unpersisted student.
func NewStudent(name string) *Student {
	return &Student{name: name}
}

func (s *Student) EntityType() string { return TypeStudent }
func (s *Student) Name() string       { return s.name }

// SetName renames the student, marking it dirty when the name changes.
func (s *Student) SetName(name string) {
	if s.name == name {
		return
	}
	s.name = name
	s.MarkDirty()
}

// Role distinguishes teaching staff stored in the teacher table.
type Role string

const (
	RoleTeacher    Role = "teacher"
	RoleInstructor Role = "instructor"
)

// Teacher is a member of teaching staff.
type Teacher struct {
	store.Record
	name string
	role Role
}

// NewTeacher creates an unpersisted teacher with the given role.
func NewTeacher(name string, role Role) *Teacher {
	return &Teacher{name: name, role: role}
}

func (t *Teacher) EntityType() string { return TypeTeacher }
func (t *Teacher) Name() string       { return t.name }
func (t *Teacher) Role() Role         { return t.role }

func (t *Teacher) SetName(name string) {
	if t.name == name {
		return
	}
	t.name = name
	t.MarkDirty()
}

// NewUser creates a user of the given kind: "student", "teacher" or "instructor".
func NewUser(kind, name string) (User, error) {
	switch kind {
	case "student":
		return NewStudent(name), nil
	case string(RoleTeacher):
		return NewTeacher(name, RoleTeacher), nil
	case string(RoleInstructor):
		return NewTeacher(name, RoleInstructor), nil
	default:
		return nil, fmt.Errorf("%w: user %q", ErrUnknownKind, kind)
	}
}

// Category groups courses.
type Category struct {
	store.Record
	name string
}

// NewCategory creates an unpersisted category.
func NewCategory(name string) *Category {
	return &Category{name: name}
}

func (c *Category) EntityType() string { return TypeCategory }
func (c *Category) Name() string       { return c.name }

func (c *Category) SetName(name string) {
	if c.name == name {
		return
	}
	c.name = name
	c.MarkDirty()
}

// CourseKind is the delivery format of a course.
type CourseKind string

const (
	CourseOffline     CourseKind = "offline"
	CourseInteractive CourseKind = "interactive"
	CourseRecord      CourseKind = "record"
)

func (k CourseKind) valid() bool {
	switch k {
	case CourseOffline, CourseInteractive, CourseRecord:
		return true
	}
	return false
}

// Course is a unit of teaching offered in one format.
type Course struct {
	store.Record
	name string
	kind CourseKind
}

// NewCourse creates an unpersisted course of the given kind.
func NewCourse(kind, name string) (*Course, error) {
	k := CourseKind(kind)
	if !k.valid() {
		return nil, fmt.Errorf("%w: course %q", ErrUnknownKind, kind)
	}
	return &Course{name: name, kind: k}, nil
}

func (c *Course) EntityType() string { return TypeCourse }
func (c *Course) Name() string       { return c.name }
func (c *Course) Kind() CourseKind   { return c.kind }

func (c *Course) SetName(name string) {
	if c.name == name {
		return
	}
	c.name = name
	c.MarkDirty()
}

// Clone returns an unpersisted copy of the course with the same fields.
func (c *Course) Clone() *Course {
	return &Course{name: c.name, kind: c.kind}
}
