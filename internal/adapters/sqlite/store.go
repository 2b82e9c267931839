// Package sqlite implements the app ports against SQLite through the
// bounded connection pool.
package sqlite

import (
	"database/sql"
	"strings"
	"time"

	"github.com/greenquote/payhook/internal/pool"
)

const timeLayout = time.RFC3339

var timeNow = time.Now

// Store bundles the sqlite-backed port implementations around one pool.
type Store struct {
	pool *pool.Pool
}

// NewStore constructs the sqlite adapter around the shared pool.
func NewStore(p *pool.Pool) *Store {
	return &Store{pool: p}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	parsed, err := time.Parse(timeLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func boolToInt64(value bool) int64 {
	if value {
		return 1
	}
	return 0
}
