package school

import (
	"embed"
	"fmt"

	"github.com/jacentio/roster/store"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Schema returns the table DDL for the named SQL dialect ("sqlite" or "postgres").
func Schema(dialect string) (string, error) {
	data, err := schemaFS.ReadFile("schema/" + dialect + ".sql")
	if err != nil {
		return "", fmt.Errorf("schema for dialect %q: %w", dialect, err)
	}
	return string(data), nil
}

// Tables lists the backing table of every school type.
func Tables() []string {
	return []string{TypeStudent, TypeTeacher, TypeCategory, TypeCourse}
}

var studentSchema = store.Schema[*Student]{
	Type:    TypeStudent,
	Table:   TypeStudent,
	Columns: []string{"name"},
	New:     func() *Student { return &Student{} },
	Values:  func(s *Student) []any { return []any{s.name} },
	Load: func(s *Student, row store.Row) (err error) {
		s.name, err = row.String("name")
		return err
	},
}

var teacherSchema = store.Schema[*Teacher]{
	Type:    TypeTeacher,
	Table:   TypeTeacher,
	Columns: []string{"name", "role"},
	New:     func() *Teacher { return &Teacher{} },
	Values:  func(t *Teacher) []any { return []any{t.name, string(t.role)} },
	Load: func(t *Teacher, row store.Row) error {
		name, err := row.String("name")
		if err != nil {
			return err
		}
		role, err := row.String("role")
		if err != nil {
			return err
		}
		t.name, t.role = name, Role(role)
		return nil
	},
}

var categorySchema = store.Schema[*Category]{
	Type:    TypeCategory,
	Table:   TypeCategory,
	Columns: []string{"name"},
	New:     func() *Category { return &Category{} },
	Values:  func(c *Category) []any { return []any{c.name} },
	Load: func(c *Category, row store.Row) (err error) {
		c.name, err = row.String("name")
		return err
	},
}

var courseSchema = store.Schema[*Course]{
	Type:    TypeCourse,
	Table:   TypeCourse,
	Columns: []string{"name", "kind"},
	New:     func() *Course { return &Course{} },
	Values:  func(c *Course) []any { return []any{c.name, string(c.kind)} },
	Load: func(c *Course, row store.Row) error {
		name, err := row.String("name")
		if err != nil {
			return err
		}
		kind, err := row.String("kind")
		if err != nil {
			return err
		}
		c.name, c.kind = name, CourseKind(kind)
		return nil
	},
}

// StudentMapper maps students to the student table.
type StudentMapper struct {
	*store.TableMapper[*Student]
}

// NewStudentMapper is the registry constructor for students.
func NewStudentMapper(conn store.Conn, cfg store.Config) store.Mapper {
	return &StudentMapper{store.NewTableMapper(conn, cfg, studentSchema)}
}

// TeacherMapper maps teachers and instructors to the teacher table.
type TeacherMapper struct {
	*store.TableMapper[*Teacher]
}

// NewTeacherMapper is the registry constructor for teachers.
func NewTeacherMapper(conn store.Conn, cfg store.Config) store.Mapper {
	return &TeacherMapper{store.NewTableMapper(conn, cfg, teacherSchema)}
}

// CategoryMapper maps categories to the category table.
type CategoryMapper struct {
	*store.TableMapper[*Category]
}

// NewCategoryMapper is the registry constructor for categories.
func NewCategoryMapper(conn store.Conn, cfg store.Config) store.Mapper {
	return &CategoryMapper{store.NewTableMapper(conn, cfg, categorySchema)}
}

// CourseMapper maps courses to the course table.
type CourseMapper struct {
	*store.TableMapper[*Course]
}

// NewCourseMapper is the registry constructor for courses.
func NewCourseMapper(conn store.Conn, cfg store.Config) store.Mapper {
	return &CourseMapper{store.NewTableMapper(conn, cfg, courseSchema)}
}

// Register binds every school type to its mapper.
func Register(reg *store.Registry) {
	reg.Register(TypeStudent, NewStudentMapper)
	reg.Register(TypeTeacher, NewTeacherMapper)
	reg.Register(TypeCategory, NewCategoryMapper)
	reg.Register(TypeCourse, NewCourseMapper)
}

// Students returns the registry's student mapper.
func Students(reg *store.Registry) (*StudentMapper, error) {
	return mapperAs[*StudentMapper](reg, TypeStudent)
}

// Teachers returns the registry's teacher mapper.
func Teachers(reg *store.Registry) (*TeacherMapper, error) {
	return mapperAs[*TeacherMapper](reg, TypeTeacher)
}

// Categories returns the registry's category mapper.
func Categories(reg *store.Registry) (*CategoryMapper, error) {
	return mapperAs[*CategoryMapper](reg, TypeCategory)
}

// Courses returns the registry's course mapper.
func Courses(reg *store.Registry) (*CourseMapper, error) {
	return mapperAs[*CourseMapper](reg, TypeCourse)
}

func mapperAs[M store.Mapper](reg *store.Registry, typ string) (M, error) {
	var zero M
	m, err := reg.MapperByName(typ)
	if err != nil {
		return zero, err
	}
	typed, ok := m.(M)
	if !ok {
		return zero, fmt.Errorf("%w: %q is served by %T", store.ErrUnknownMappedType, typ, m)
	}
	return typed, nil
}
