package sqlite

import (
	"context"

	"github.com/greenquote/payhook/internal/app/ports"
	"github.com/greenquote/payhook/internal/pool"
)

const appendPerfSampleQuery = `-- name: AppendPerfSample :exec
INSERT INTO perf_samples (operation, duration_ms, query_count, api_call_count, error_count, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

// Append stores one performance sample. Samples are append-only.
func (s *Store) Append(ctx context.Context, sample ports.PerfSample) error {
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = timeNow()
	}
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, appendPerfSampleQuery,
			sample.Operation,
			sample.Duration.Milliseconds(),
			sample.QueryCount,
			sample.APICallCount,
			sample.ErrorCount,
			formatTime(sample.CreatedAt),
		)
		return err
	})
}

var _ ports.PerfStore = (*Store)(nil)
