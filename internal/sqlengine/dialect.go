package sqlengine

import (
	"strconv"
	"strings"

	"github.com/jacentio/roster/store"
)

// Dialect renders flat-table statements for one SQL flavor.
type Dialect struct {
	name string
	// numbered selects $1, $2 ... placeholders instead of ?.
	numbered bool
	// returning appends RETURNING "id" to inserts instead of relying on LastInsertId.
	returning bool
}

var (
	// SQLite is the dialect of modernc.org/sqlite.
	SQLite = Dialect{name: "sqlite"}
	// Postgres is the dialect of pgx.
	Postgres = Dialect{name: "postgres", numbered: true, returning: true}
)

var _ store.Dialect = Dialect{}

func (d Dialect) Name() string { return d.name }

func (d Dialect) SelectByID(table string, cols []string) string {
	return "SELECT " + d.columns(cols) + " FROM " + quote(table) +
		" WHERE " + quote(store.IdentityColumn) + " = " + d.param(1)
}

func (d Dialect) SelectAll(table string, cols []string) string {
	return "SELECT " + d.columns(cols) + " FROM " + quote(table) +
		" ORDER BY " + quote(store.IdentityColumn)
}

func (d Dialect) Insert(table string, cols []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quote(table))
	if len(cols) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		b.WriteString(" (")
		for i, col := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quote(col))
		}
		b.WriteString(") VALUES (")
		for i := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.param(i + 1))
		}
		b.WriteString(")")
	}
	if d.returning {
		b.WriteString(" RETURNING ")
		b.WriteString(quote(store.IdentityColumn))
	}
	return b.String()
}

func (d Dialect) Update(table string, cols []string) string {
	id := quote(store.IdentityColumn)
	sets := make([]string, 0, len(cols))
	for i, col := range cols {
		sets = append(sets, quote(col)+" = "+d.param(i+1))
	}
	if len(sets) == 0 {
		sets = append(sets, id+" = "+id)
	}
	return "UPDATE " + quote(table) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + id + " = " + d.param(len(cols)+1)
}

func (d Dialect) Delete(table string) string {
	return "DELETE FROM " + quote(table) + " WHERE " + quote(store.IdentityColumn) + " = " + d.param(1)
}

func (d Dialect) columns(cols []string) string {
	quoted := make([]string, 0, len(cols)+1)
	quoted = append(quoted, quote(store.IdentityColumn))
	for _, col := range cols {
		quoted = append(quoted, quote(col))
	}
	return strings.Join(quoted, ", ")
}

func (d Dialect) param(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
