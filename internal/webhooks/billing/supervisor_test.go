package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	billingdom "github.com/greenquote/payhook/internal/billing"
)

func testRoute(name string, timeout time.Duration, fn HandlerFunc) Route {
	return Route{Name: name, Handler: fn, Priority: PriorityNormal, Timeout: timeout}
}

func TestSupervisorReturnsHandlerResult(t *testing.T) {
	t.Parallel()

	supervisor := NewSupervisor(nil)
	route := testRoute("fast", time.Second, func(context.Context, billingdom.Event) error {
		return nil
	})
	if err := supervisor.Execute(context.Background(), route, billingdom.Event{ID: "evt_1"}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	wantErr := errors.New("projection failed")
	failing := testRoute("failing", time.Second, func(context.Context, billingdom.Event) error {
		return wantErr
	})
	if err := supervisor.Execute(context.Background(), failing, billingdom.Event{ID: "evt_2"}); !errors.Is(err, wantErr) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestSupervisorDetachesSlowHandler(t *testing.T) {
	t.Parallel()

	supervisor := NewSupervisor(nil)
	finished := make(chan struct{})
	route := testRoute("slow", 20*time.Millisecond, func(ctx context.Context, _ billingdom.Event) error {
		time.Sleep(100 * time.Millisecond)
		close(finished)
		return nil
	})

	started := time.Now()
	err := supervisor.Execute(context.Background(), route, billingdom.Event{ID: "evt_1"})
	if !errors.Is(err, ErrHandlerTimeout) {
		t.Fatalf("expected ErrHandlerTimeout, got %v", err)
	}
	if took := time.Since(started); took > 80*time.Millisecond {
		t.Fatalf("supervisor waited %s, should return at the deadline", took)
	}

	// The detached handler keeps running to completion.
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("detached handler never finished")
	}
}

func TestSupervisorRecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	supervisor := NewSupervisor(nil)
	route := testRoute("panicky", time.Second, func(context.Context, billingdom.Event) error {
		panic("boom")
	})
	err := supervisor.Execute(context.Background(), route, billingdom.Event{ID: "evt_1"})
	if err == nil {
		t.Fatal("expected error from panicking handler")
	}
	if errors.Is(err, ErrHandlerTimeout) {
		t.Fatalf("panic misreported as timeout: %v", err)
	}
}
