package sqlite

import (
	"context"

	"database/sql"

	"github.com/google/uuid"
	"github.com/greenquote/payhook/internal/app/ports"
	"github.com/greenquote/payhook/internal/pool"
)

const recordDeadLetterQuery = `-- name: RecordDeadLetter :exec
INSERT INTO dead_letters (id, event_id, reason, detail, created_at)
VALUES (?, ?, ?, ?, ?)`

const listRecentDeadLettersQuery = `-- name: ListRecentDeadLetters :many
SELECT id, event_id, reason, detail, created_at
FROM dead_letters
ORDER BY created_at DESC
LIMIT ?`

// Record persists one failed event for inspection and replay.
func (s *Store) Record(ctx context.Context, letter ports.DeadLetter) error {
	if letter.ID == "" {
		letter.ID = uuid.NewString()
	}
	if letter.CreatedAt.IsZero() {
		letter.CreatedAt = timeNow()
	}
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, recordDeadLetterQuery,
			letter.ID,
			nullString(letter.EventID),
			string(letter.Reason),
			letter.Detail,
			formatTime(letter.CreatedAt),
		)
		return err
	})
}

// ListRecent returns the newest dead letters, capped at limit.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ports.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	var letters []ports.DeadLetter
	err := s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		rows, err := conn.QueryContext(ctx, listRecentDeadLettersQuery, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				letter    ports.DeadLetter
				eventID   sql.NullString
				reason    string
				createdAt string
			)
			if err := rows.Scan(&letter.ID, &eventID, &reason, &letter.Detail, &createdAt); err != nil {
				return err
			}
			letter.EventID = eventID.String
			letter.Reason = ports.FailureReason(reason)
			letter.CreatedAt = parseTime(createdAt)
			letters = append(letters, letter)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return letters, nil
}

var _ ports.DeadLetterStore = (*Store)(nil)
