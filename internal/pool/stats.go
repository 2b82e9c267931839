package pool

import (
	"sort"
	"time"
)

// Stats is a point-in-time snapshot of pool state and lifetime counters.
type Stats struct {
	MinConns        int   `json:"min_conns"`
	MaxConns        int   `json:"max_conns"`
	TotalConns      int   `json:"total_conns"`
	IdleConns       int   `json:"idle_conns"`
	InUseConns      int   `json:"in_use_conns"`
	Waiting         int   `json:"waiting"`
	Acquires        int64 `json:"acquires"`
	AcquireTimeouts int64 `json:"acquire_timeouts"`
	HealthFailures  int64 `json:"health_failures"`
	IdleReaped      int64 `json:"idle_reaped"`
	Opened          int64 `json:"opened"`
	Destroyed       int64 `json:"destroyed"`
}

// ConnDetail describes one pooled connection for admin surfaces.
type ConnDetail struct {
	ID         int64     `json:"id"`
	InUse      bool      `json:"in_use"`
	CreatedAt  time.Time `json:"created_at"`
	AcquiredAt time.Time `json:"acquired_at,omitzero"`
	LastUsed   time.Time `json:"last_used"`
}

// Stats returns current pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	inUse := 0
	for _, conn := range p.conns {
		if conn.inUse {
			inUse++
		}
	}

	return Stats{
		MinConns:        p.cfg.MinConns,
		MaxConns:        p.cfg.MaxConns,
		TotalConns:      len(p.conns),
		IdleConns:       len(p.idle),
		InUseConns:      inUse,
		Waiting:         len(p.waiters),
		Acquires:        p.acquires,
		AcquireTimeouts: p.acquireTimeouts,
		HealthFailures:  p.healthFailures,
		IdleReaped:      p.idleReaped,
		Opened:          p.opened,
		Destroyed:       p.destroyed,
	}
}

// ConnectionDetails returns per-connection state for admin surfaces.
func (p *Pool) ConnectionDetails() []ConnDetail {
	p.mu.Lock()
	defer p.mu.Unlock()

	details := make([]ConnDetail, 0, len(p.conns))
	for _, conn := range p.conns {
		details = append(details, ConnDetail{
			ID:         conn.id,
			InUse:      conn.inUse,
			CreatedAt:  conn.createdAt,
			AcquiredAt: conn.acquiredAt,
			LastUsed:   conn.lastUsed,
		})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].ID < details[j].ID })
	return details
}
