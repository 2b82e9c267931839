package pool

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/greenquote/payhook/internal/db"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "pooltest"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	p, err := New(context.Background(), database, cfg, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestAcquireRespectsMaxConns(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{
		MinConns:       0,
		MaxConns:       2,
		AcquireTimeout: 100 * time.Millisecond,
	})
	ctx := context.Background()

	first, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	second, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	if _, err := p.Acquire(ctx); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted for third acquire, got %v", err)
	}

	stats := p.Stats()
	if stats.TotalConns != 2 || stats.InUseConns != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.AcquireTimeouts != 1 {
		t.Fatalf("expected 1 acquire timeout, got %d", stats.AcquireTimeouts)
	}

	p.Release(first)
	p.Release(second)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{
		MinConns:       1,
		MaxConns:       1,
		AcquireTimeout: 2 * time.Second,
	})
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		conn, err := p.Acquire(ctx)
		if err == nil {
			p.Release(conn)
		}
		acquired <- err
	}()

	time.Sleep(50 * time.Millisecond)
	p.Release(held)

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("waiting acquire failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiting acquire never completed after release")
	}
}

func TestQueryReleasesOnError(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{
		MinConns:       1,
		MaxConns:       1,
		AcquireTimeout: 200 * time.Millisecond,
	})
	ctx := context.Background()

	wantErr := fmt.Errorf("handler blew up")
	err := p.Query(ctx, func(ctx context.Context, conn *Conn) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected handler error, got %v", err)
	}

	// The connection must be back in the pool despite the error.
	conn, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after failed query: %v", err)
	}
	p.Release(conn)
}

func TestQueryRunsStatements(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{MinConns: 1, MaxConns: 2})
	ctx := context.Background()

	err := p.Query(ctx, func(ctx context.Context, conn *Conn) error {
		var one int
		return conn.QueryRowContext(ctx, "-- name: ProbeOne :one\nSELECT 1").Scan(&one)
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
}

func TestPingProbesConnection(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{MinConns: 1, MaxConns: 2})
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestAcquireAfterCloseFails(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{MinConns: 0, MaxConns: 2})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestConnectionDetailsReportState(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{MinConns: 2, MaxConns: 4})
	ctx := context.Background()

	conn, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p.Release(conn)

	details := p.ConnectionDetails()
	if len(details) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(details))
	}
	inUse := 0
	for _, detail := range details {
		if detail.InUse {
			inUse++
			if detail.AcquiredAt.IsZero() {
				t.Fatal("in-use connection missing acquired_at")
			}
		}
	}
	if inUse != 1 {
		t.Fatalf("expected exactly 1 in-use connection, got %d", inUse)
	}
}
