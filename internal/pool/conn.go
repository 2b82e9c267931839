package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/greenquote/payhook/internal/observability"
)

// Conn is a pooled session. Callers receive temporary, non-owning access
// between Acquire and Release.
type Conn struct {
	id      int64
	sqlConn *sql.Conn
	pool    *Pool

	createdAt  time.Time
	acquiredAt time.Time
	lastUsed   time.Time
	inUse      bool
	broken     bool
}

// ID identifies the connection in stats and logs.
func (c *Conn) ID() int64 {
	return c.id
}

// MarkBroken flags the connection for destruction on release.
func (c *Conn) MarkBroken() {
	c.pool.mu.Lock()
	c.broken = true
	c.pool.mu.Unlock()
}

// ExecContext runs one write statement on the pooled session.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	name := queryName(query)
	ctx, span := observability.StartDBSpan(ctx, name, "exec")
	defer span.End()

	observability.CountQuery(ctx)
	result, err := c.sqlConn.ExecContext(ctx, query, args...)
	c.touch()
	c.markBrokenOnConnError(err)
	span.RecordError(err)
	return result, err
}

// QueryContext runs one read statement on the pooled session.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	name := queryName(query)
	ctx, span := observability.StartDBSpan(ctx, name, "query")
	defer span.End()

	observability.CountQuery(ctx)
	rows, err := c.sqlConn.QueryContext(ctx, query, args...)
	c.touch()
	c.markBrokenOnConnError(err)
	span.RecordError(err)
	return rows, err
}

// QueryRowContext runs one single-row read on the pooled session.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	name := queryName(query)
	ctx, span := observability.StartDBSpan(ctx, name, "query_row")
	observability.CountQuery(ctx)
	row := c.sqlConn.QueryRowContext(ctx, query, args...)
	c.touch()
	span.End()
	return row
}

func (c *Conn) touch() {
	c.pool.mu.Lock()
	c.lastUsed = time.Now()
	c.pool.mu.Unlock()
}

// markBrokenOnConnError flags the session for destruction when the driver
// reports the connection itself is unusable.
func (c *Conn) markBrokenOnConnError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		c.MarkBroken()
	}
}

// queryName extracts the "-- name:" annotation from a query constant.
func queryName(query string) string {
	lines := strings.Split(strings.TrimSpace(query), "\n")
	if len(lines) == 0 {
		return "unknown"
	}
	first := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(first, "-- name:") {
		return "unknown"
	}
	parts := strings.Fields(first)
	if len(parts) < 3 {
		return "unknown"
	}
	return strings.TrimSpace(parts[2])
}
