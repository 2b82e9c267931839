package observability

import (
	"context"
	"sync/atomic"
)

const countersKey contextKey = "observability.perf_counters"

// Counters accumulates per-request work counts. One instance is attached to
// the request context at the start of webhook processing; the store and the
// upstream billing client increment it as they run.
type Counters struct {
	queries  atomic.Int64
	apiCalls atomic.Int64
	errors   atomic.Int64
}

// WithCounters attaches a fresh counter set to the context.
func WithCounters(ctx context.Context) (context.Context, *Counters) {
	counters := &Counters{}
	return context.WithValue(ctx, countersKey, counters), counters
}

// CountersFromContext extracts the request counter set, if any.
func CountersFromContext(ctx context.Context) (*Counters, bool) {
	counters, ok := ctx.Value(countersKey).(*Counters)
	return counters, ok && counters != nil
}

// CountQuery records one datastore query against the request counters.
func CountQuery(ctx context.Context) {
	if counters, ok := CountersFromContext(ctx); ok {
		counters.queries.Add(1)
	}
}

// CountAPICall records one upstream billing API call.
func CountAPICall(ctx context.Context) {
	if counters, ok := CountersFromContext(ctx); ok {
		counters.apiCalls.Add(1)
	}
}

// CountError records one failed operation.
func CountError(ctx context.Context) {
	if counters, ok := CountersFromContext(ctx); ok {
		counters.errors.Add(1)
	}
}

func (c *Counters) Queries() int64 {
	if c == nil {
		return 0
	}
	return c.queries.Load()
}

func (c *Counters) APICalls() int64 {
	if c == nil {
		return 0
	}
	return c.apiCalls.Load()
}

func (c *Counters) Errors() int64 {
	if c == nil {
		return 0
	}
	return c.errors.Load()
}
