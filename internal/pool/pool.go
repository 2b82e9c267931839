// Package pool implements a bounded connection pool over database/sql
// sessions. Acquire blocks FIFO up to a configurable timeout, release is
// mandatory on every path, and a background loop health-checks and reaps
// idle connections.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrExhausted is returned when no connection becomes available within
	// the acquire timeout.
	ErrExhausted = errors.New("pool exhausted")
	// ErrClosed is returned for operations on a closed pool.
	ErrClosed = errors.New("pool closed")
)

// Config sizes the pool. MinConns are opened eagerly; the pool grows lazily
// up to MaxConns.
type Config struct {
	MinConns       int
	MaxConns       int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	HealthInterval time.Duration
}

func (c Config) normalized() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.MinConns < 0 {
		c.MinConns = 0
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = time.Minute
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	return c
}

// Pool manages dedicated sessions against one shared database handle.
type Pool struct {
	db  *sql.DB
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	conns   map[int64]*Conn
	idle    []*Conn
	waiters []chan *Conn
	opening int
	nextID  int64
	closed  bool

	acquires        int64
	acquireTimeouts int64
	healthFailures  int64
	idleReaped      int64
	opened          int64
	destroyed       int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a pool and eagerly opens MinConns sessions.
func New(ctx context.Context, db *sql.DB, cfg Config, log *slog.Logger) (*Pool, error) {
	if db == nil {
		return nil, fmt.Errorf("pool requires a database handle")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.normalized()

	p := &Pool{
		db:    db,
		cfg:   cfg,
		log:   log,
		conns: make(map[int64]*Conn),
		stop:  make(chan struct{}),
	}

	for i := 0; i < cfg.MinConns; i++ {
		conn, err := p.open(ctx)
		if err != nil {
			p.closeAll()
			return nil, fmt.Errorf("open initial connection: %w", err)
		}
		p.mu.Lock()
		p.conns[conn.id] = conn
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
	}

	p.wg.Add(1)
	go p.maintain()

	return p, nil
}

// Acquire returns an idle connection, opens a new one below MaxConns, or
// waits FIFO up to AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.acquires++

	if len(p.idle) > 0 {
		conn := p.idle[0]
		p.idle = p.idle[1:]
		p.markAcquiredLocked(conn)
		p.mu.Unlock()
		return conn, nil
	}

	if len(p.conns)+p.opening < p.cfg.MaxConns {
		p.opening++
		p.mu.Unlock()

		conn, err := p.open(ctx)

		p.mu.Lock()
		p.opening--
		if err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("open connection: %w", err)
		}
		if p.closed {
			p.mu.Unlock()
			_ = conn.sqlConn.Close()
			return nil, ErrClosed
		}
		p.conns[conn.id] = conn
		p.markAcquiredLocked(conn)
		p.mu.Unlock()
		return conn, nil
	}

	waiter := make(chan *Conn, 1)
	p.waiters = append(p.waiters, waiter)
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case conn, ok := <-waiter:
		if !ok {
			return nil, ErrClosed
		}
		return conn, nil
	case <-timer.C:
		if p.cancelWaiter(waiter) {
			p.mu.Lock()
			p.acquireTimeouts++
			p.mu.Unlock()
			return nil, ErrExhausted
		}
		// A connection was handed off concurrently with the timeout.
		conn, ok := <-waiter
		if !ok {
			return nil, ErrClosed
		}
		return conn, nil
	case <-ctx.Done():
		if p.cancelWaiter(waiter) {
			return nil, ctx.Err()
		}
		conn, ok := <-waiter
		if !ok {
			return nil, ErrClosed
		}
		return conn, nil
	}
}

// Release returns a connection to the pool. It must be called exactly once
// for every successful Acquire.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	conn.inUse = false
	conn.acquiredAt = time.Time{}
	conn.lastUsed = time.Now()

	if conn.broken || p.closed {
		p.destroyLocked(conn)
		p.mu.Unlock()
		return
	}

	if waiter := p.popWaiterLocked(); waiter != nil {
		p.markAcquiredLocked(conn)
		p.mu.Unlock()
		waiter <- conn
		return
	}

	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// Query acquires a connection, invokes fn, and guarantees release on every
// exit path.
func (p *Pool) Query(ctx context.Context, fn func(ctx context.Context, conn *Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(ctx, conn)
}

// Ping probes the pool by acquiring one connection and pinging it.
func (p *Pool) Ping(ctx context.Context) error {
	return p.Query(ctx, func(ctx context.Context, conn *Conn) error {
		return conn.sqlConn.PingContext(ctx)
	})
}

// Close destroys all connections and wakes waiters with ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	close(p.stop)
	p.wg.Wait()

	for _, waiter := range waiters {
		close(waiter)
	}

	p.closeAll()
	return nil
}

func (p *Pool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.conns {
		_ = conn.sqlConn.Close()
	}
	p.conns = make(map[int64]*Conn)
	p.idle = nil
}

func (p *Pool) open(ctx context.Context) (*Conn, error) {
	sqlConn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.opened++
	p.mu.Unlock()

	now := time.Now()
	return &Conn{
		id:        id,
		sqlConn:   sqlConn,
		pool:      p,
		createdAt: now,
		lastUsed:  now,
	}, nil
}

func (p *Pool) markAcquiredLocked(conn *Conn) {
	conn.inUse = true
	conn.acquiredAt = time.Now()
	conn.lastUsed = conn.acquiredAt
}

func (p *Pool) popWaiterLocked() chan *Conn {
	if len(p.waiters) == 0 {
		return nil
	}
	waiter := p.waiters[0]
	p.waiters = p.waiters[1:]
	return waiter
}

func (p *Pool) cancelWaiter(waiter chan *Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, candidate := range p.waiters {
		if candidate == waiter {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pool) destroyLocked(conn *Conn) {
	delete(p.conns, conn.id)
	p.destroyed++
	go func() { _ = conn.sqlConn.Close() }()

	// Waiters must not starve on a destroyed connection.
	if len(p.waiters) > 0 && !p.closed {
		go p.replaceForWaiter()
	}
}

func (p *Pool) replaceForWaiter() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AcquireTimeout)
	defer cancel()

	conn, err := p.open(ctx)
	if err != nil {
		p.log.Warn("failed to open replacement connection", "error", err)
		return
	}

	p.mu.Lock()
	if p.closed || len(p.conns)+p.opening >= p.cfg.MaxConns {
		p.mu.Unlock()
		_ = conn.sqlConn.Close()
		return
	}
	p.conns[conn.id] = conn
	if waiter := p.popWaiterLocked(); waiter != nil {
		p.markAcquiredLocked(conn)
		p.mu.Unlock()
		waiter <- conn
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

func (p *Pool) maintain() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.reapIdle()
			p.checkIdleHealth()
			p.ensureMinConns()
		}
	}
}

// reapIdle destroys idle connections beyond MinConns that have not been used
// within IdleTimeout.
func (p *Pool) reapIdle() {
	now := time.Now()

	p.mu.Lock()
	kept := p.idle[:0]
	for _, conn := range p.idle {
		if len(p.conns) > p.cfg.MinConns && now.Sub(conn.lastUsed) > p.cfg.IdleTimeout {
			p.idleReaped++
			p.destroyLocked(conn)
			continue
		}
		kept = append(kept, conn)
	}
	p.idle = kept
	p.mu.Unlock()
}

// checkIdleHealth probes each idle connection and destroys failed ones.
func (p *Pool) checkIdleHealth() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	for _, conn := range idle {
		conn.inUse = true
	}
	p.mu.Unlock()

	healthy := make([]*Conn, 0, len(idle))
	for _, conn := range idle {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := conn.sqlConn.PingContext(ctx)
		cancel()
		if err != nil {
			p.mu.Lock()
			p.healthFailures++
			p.destroyLocked(conn)
			p.mu.Unlock()
			p.log.Warn("destroyed unhealthy pooled connection", "conn_id", conn.id, "error", err)
			continue
		}
		healthy = append(healthy, conn)
	}

	p.mu.Lock()
	for _, conn := range healthy {
		conn.inUse = false
		if p.closed {
			p.destroyLocked(conn)
			continue
		}
		if waiter := p.popWaiterLocked(); waiter != nil {
			p.markAcquiredLocked(conn)
			waiter <- conn
			continue
		}
		p.idle = append(p.idle, conn)
	}
	p.mu.Unlock()
}

// ensureMinConns opens replacements after health-check destruction shrinks
// the pool below MinConns.
func (p *Pool) ensureMinConns() {
	for {
		p.mu.Lock()
		if p.closed || len(p.conns)+p.opening >= p.cfg.MinConns {
			p.mu.Unlock()
			return
		}
		p.opening++
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, err := p.open(ctx)
		cancel()

		p.mu.Lock()
		p.opening--
		if err != nil {
			p.mu.Unlock()
			p.log.Warn("failed to restore minimum pool size", "error", err)
			return
		}
		p.conns[conn.id] = conn
		if waiter := p.popWaiterLocked(); waiter != nil {
			p.markAcquiredLocked(conn)
			p.mu.Unlock()
			waiter <- conn
			continue
		}
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
	}
}
