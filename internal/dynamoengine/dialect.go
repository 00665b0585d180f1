package dynamoengine

import (
	"strings"

	"github.com/jacentio/roster/store"
)

// Dialect renders PartiQL statements. Table names carry the connection's prefix.
//
// Insert binds the identity as its first parameter; Conn.InsertID supplies it.
type Dialect struct {
	prefix string
}

var _ store.Dialect = Dialect{}

func (d Dialect) Name() string { return "dynamodb" }

func (d Dialect) SelectByID(table string, cols []string) string {
	return "SELECT " + d.columns(cols) + " FROM " + d.table(table) +
		" WHERE " + quote(store.IdentityColumn) + " = ?"
}

func (d Dialect) SelectAll(table string, cols []string) string {
	return "SELECT " + d.columns(cols) + " FROM " + d.table(table)
}

func (d Dialect) Insert(table string, cols []string) string {
	fields := make([]string, 0, len(cols)+1)
	fields = append(fields, "'"+store.IdentityColumn+"': ?")
	for _, col := range cols {
		fields = append(fields, "'"+col+"': ?")
	}
	return "INSERT INTO " + d.table(table) + " VALUE {" + strings.Join(fields, ", ") + "}"
}

// Update renders one SET clause per column and fails at commit when no item
// carries the identity.
func (d Dialect) Update(table string, cols []string) string {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(d.table(table))
	for _, col := range cols {
		b.WriteString(" SET ")
		b.WriteString(quote(col))
		b.WriteString(" = ?")
	}
	id := quote(store.IdentityColumn)
	b.WriteString(" WHERE " + id + " = ? AND attribute_exists(" + id + ")")
	return b.String()
}

// Delete requires the item to exist, mirroring a zero-row delete in SQL.
func (d Dialect) Delete(table string) string {
	id := quote(store.IdentityColumn)
	return "DELETE FROM " + d.table(table) + " WHERE " + id + " = ? AND attribute_exists(" + id + ")"
}

func (d Dialect) table(name string) string {
	return quote(d.prefix + name)
}

func (d Dialect) columns(cols []string) string {
	quoted := make([]string, 0, len(cols)+1)
	quoted = append(quoted, quote(store.IdentityColumn))
	for _, col := range cols {
		quoted = append(quoted, quote(col))
	}
	return strings.Join(quoted, ", ")
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
