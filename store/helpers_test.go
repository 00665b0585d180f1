package store_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/jacentio/roster/store"
)

// --- Test domain ---

const (
	typeWidget = "widget"
	typeGadget = "gadget"
)

type widget struct {
	store.Record
	name string
}

func newWidget(name string) *widget { return &widget{name: name} }

func (w *widget) EntityType() string { return typeWidget }

func (w *widget) SetName(name string) {
	w.name = name
	w.MarkDirty()
}

var widgetSchema = store.Schema[*widget]{
	Type:    typeWidget,
	Table:   "widgets",
	Columns: []string{"name"},
	New:     func() *widget { return &widget{} },
	Values:  func(w *widget) []any { return []any{w.name} },
	Load: func(w *widget, row store.Row) (err error) {
		w.name, err = row.String("name")
		return err
	},
}

func newWidgetMapper(conn store.Conn, cfg store.Config) store.Mapper {
	return store.NewTableMapper(conn, cfg, widgetSchema)
}

// gadget is never registered.
type gadget struct {
	store.Record
}

func (g *gadget) EntityType() string { return typeGadget }

// --- Fake connection ---

// fakeConn is an in-memory store.Conn. Statements are rendered by fakeDialect
// as "op|table|col,col" and interpreted here. Writes go to a working copy that
// replaces the committed tables on Commit.
type fakeConn struct {
	committed map[string]map[int64]store.Row
	working   map[string]map[int64]store.Row
	nextID    map[string]int64

	// failWrite fails the write with this 1-based index inside a transaction.
	failWrite int
	writes    int
	// writeLog records "op table id" for each successful write.
	writeLog []string

	queryErr    error
	beginErr    error
	commitErr   error
	rollbackErr error

	queries   int
	begins    int
	commits   int
	rollbacks int
	closes    int
}

var errInjected = errors.New("injected storage failure")

func newFakeConn() *fakeConn {
	return &fakeConn{
		committed: map[string]map[int64]store.Row{},
		nextID:    map[string]int64{},
	}
}

// seed writes a committed row directly.
func (c *fakeConn) seed(table string, id int64, row store.Row) {
	if c.committed[table] == nil {
		c.committed[table] = map[int64]store.Row{}
	}
	row = maps.Clone(row)
	row[store.IdentityColumn] = id
	c.committed[table][id] = row
	if id > c.nextID[table] {
		c.nextID[table] = id
	}
}

// rows returns the committed rows of table.
func (c *fakeConn) rows(table string) map[int64]store.Row {
	return c.committed[table]
}

func (c *fakeConn) tables() map[string]map[int64]store.Row {
	if c.working != nil {
		return c.working
	}
	return c.committed
}

func (c *fakeConn) Dialect() store.Dialect { return fakeDialect{} }

func (c *fakeConn) Begin(ctx context.Context) error {
	c.begins++
	if c.beginErr != nil {
		return c.beginErr
	}
	c.begin()
	return nil
}

func (c *fakeConn) begin() {
	if c.working != nil {
		return
	}
	c.writes = 0
	c.working = make(map[string]map[int64]store.Row, len(c.committed))
	for table, rows := range c.committed {
		copied := make(map[int64]store.Row, len(rows))
		for id, row := range rows {
			copied[id] = maps.Clone(row)
		}
		c.working[table] = copied
	}
}

func (c *fakeConn) Commit(ctx context.Context) error {
	c.commits++
	if c.commitErr != nil {
		return c.commitErr
	}
	if c.working != nil {
		c.committed = c.working
		c.working = nil
	}
	return nil
}

func (c *fakeConn) Rollback(ctx context.Context) error {
	c.rollbacks++
	c.working = nil
	return c.rollbackErr
}

func (c *fakeConn) Close() error {
	c.closes++
	c.working = nil
	return nil
}

func (c *fakeConn) write() error {
	c.begin()
	c.writes++
	if c.failWrite > 0 && c.writes == c.failWrite {
		return errInjected
	}
	return nil
}

func (c *fakeConn) InsertID(ctx context.Context, table, stmt string, args ...any) (int64, error) {
	if err := c.write(); err != nil {
		return 0, err
	}
	op, tbl, cols := parse(stmt)
	if op != "insert" || tbl != table {
		return 0, fmt.Errorf("unexpected insert statement %q", stmt)
	}
	c.nextID[table]++
	id := c.nextID[table]
	row := store.Row{store.IdentityColumn: id}
	for i, col := range cols {
		row[col] = args[i]
	}
	tables := c.tables()
	if tables[table] == nil {
		tables[table] = map[int64]store.Row{}
	}
	tables[table][id] = row
	c.writeLog = append(c.writeLog, fmt.Sprintf("insert %s %d", table, id))
	return id, nil
}

func (c *fakeConn) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	if err := c.write(); err != nil {
		return 0, err
	}
	op, table, cols := parse(stmt)
	id := args[len(args)-1].(int64)
	rows := c.tables()[table]
	row, ok := rows[id]
	if !ok {
		return 0, nil
	}
	switch op {
	case "update":
		for i, col := range cols {
			row[col] = args[i]
		}
	case "delete":
		delete(rows, id)
	default:
		return 0, fmt.Errorf("unexpected exec statement %q", stmt)
	}
	c.writeLog = append(c.writeLog, fmt.Sprintf("%s %s %d", op, table, id))
	return 1, nil
}

func (c *fakeConn) Query(ctx context.Context, stmt string, args ...any) ([]store.Row, error) {
	c.queries++
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	op, table, _ := parse(stmt)
	rows := c.tables()[table]
	switch op {
	case "select_by_id":
		row, ok := rows[args[0].(int64)]
		if !ok {
			return nil, nil
		}
		return []store.Row{maps.Clone(row)}, nil
	case "select_all":
		out := make([]store.Row, 0, len(rows))
		for id := int64(1); id <= c.nextID[table]; id++ {
			if row, ok := rows[id]; ok {
				out = append(out, maps.Clone(row))
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected query %q", stmt)
	}
}

func parse(stmt string) (op, table string, cols []string) {
	parts := strings.SplitN(stmt, "|", 3)
	op, table = parts[0], parts[1]
	if len(parts) == 3 && parts[2] != "" {
		cols = strings.Split(parts[2], ",")
	}
	return op, table, cols
}

type fakeDialect struct{}

func (fakeDialect) Name() string { return "fake" }
func (fakeDialect) SelectByID(table string, cols []string) string {
	return "select_by_id|" + table + "|" + strings.Join(cols, ",")
}
func (fakeDialect) SelectAll(table string, cols []string) string {
	return "select_all|" + table + "|" + strings.Join(cols, ",")
}
func (fakeDialect) Insert(table string, cols []string) string {
	return "insert|" + table + "|" + strings.Join(cols, ",")
}
func (fakeDialect) Update(table string, cols []string) string {
	return "update|" + table + "|" + strings.Join(cols, ",")
}
func (fakeDialect) Delete(table string) string { return "delete|" + table + "|" }

// newTestRegistry returns a registry over a fresh fake connection with the
// widget mapper registered.
func newTestRegistry(cfg store.Config) (*store.Registry, *fakeConn) {
	conn := newFakeConn()
	reg := store.NewRegistry(conn, cfg)
	reg.Register(typeWidget, newWidgetMapper)
	return reg, conn
}
