package sqlengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaInTx is returned by ApplySchema while a transaction is open.
var ErrSchemaInTx = errors.New("roster: schema apply inside an open transaction")

// ApplySchema executes each ;-separated statement of ddl outside any transaction.
func (c *Conn) ApplySchema(ctx context.Context, ddl string) error {
	if c.tx != nil {
		return ErrSchemaInTx
	}
	for _, stmt := range splitStatements(ddl) {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func splitStatements(ddl string) []string {
	var out []string
	for _, part := range strings.Split(ddl, ";") {
		lines := strings.Split(part, "\n")
		kept := lines[:0]
		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			kept = append(kept, line)
		}
		stmt := strings.TrimSpace(strings.Join(kept, "\n"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
