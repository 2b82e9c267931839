package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/greenquote/payhook/internal/app/ports"
	"github.com/greenquote/payhook/internal/pool"
)

const hasBeenProcessedQuery = `-- name: HasBeenProcessed :one
SELECT processed FROM webhook_events WHERE event_id = ?`

const recordSeenQuery = `-- name: RecordSeen :exec
INSERT INTO webhook_events (event_id, event_type, payload, received_at, processed)
VALUES (?, ?, ?, ?, 0)
ON CONFLICT (event_id) DO NOTHING`

const markProcessedQuery = `-- name: MarkProcessed :exec
UPDATE webhook_events SET processed = ?, processed_at = ?, error = ? WHERE event_id = ?`

const getEventQuery = `-- name: GetEvent :one
SELECT event_id, event_type, payload, received_at, processed, processed_at, error
FROM webhook_events WHERE event_id = ?`

// HasBeenProcessed reports whether an event id was already fully processed.
func (s *Store) HasBeenProcessed(ctx context.Context, eventID string) (bool, error) {
	var processed bool
	err := s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		var flag int64
		if err := conn.QueryRowContext(ctx, hasBeenProcessedQuery, eventID).Scan(&flag); err != nil {
			return err
		}
		processed = flag != 0
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return processed, nil
}

// RecordSeen upserts the raw event before handler execution.
func (s *Store) RecordSeen(ctx context.Context, record ports.EventRecord) error {
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, recordSeenQuery,
			record.EventID,
			record.EventType,
			record.Payload,
			formatTime(record.ReceivedAt),
		)
		return err
	})
}

// MarkProcessed finalizes one processing attempt.
func (s *Store) MarkProcessed(ctx context.Context, eventID, errMsg string) error {
	processed := int64(1)
	if errMsg != "" {
		processed = 0
	}
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, markProcessedQuery,
			processed,
			formatTime(timeNow()),
			nullString(errMsg),
			eventID,
		)
		return err
	})
}

// GetEvent loads one ledger entry.
func (s *Store) GetEvent(ctx context.Context, eventID string) (ports.EventRecord, error) {
	var record ports.EventRecord
	err := s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		var (
			receivedAt  string
			processed   int64
			processedAt sql.NullString
			errMsg      sql.NullString
		)
		err := conn.QueryRowContext(ctx, getEventQuery, eventID).Scan(
			&record.EventID,
			&record.EventType,
			&record.Payload,
			&receivedAt,
			&processed,
			&processedAt,
			&errMsg,
		)
		if err != nil {
			return err
		}
		record.ReceivedAt = parseTime(receivedAt)
		record.Processed = processed != 0
		if processedAt.Valid {
			at := parseTime(processedAt.String)
			record.ProcessedAt = &at
		}
		record.Error = errMsg.String
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return ports.EventRecord{}, ports.ErrNotFound
	}
	if err != nil {
		return ports.EventRecord{}, err
	}
	return record, nil
}

var _ ports.LedgerStore = (*Store)(nil)
