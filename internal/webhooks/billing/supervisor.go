package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	billingdom "github.com/greenquote/payhook/internal/billing"
)

// ErrHandlerTimeout means the handler outlived its route deadline. The
// handler goroutine keeps running detached; its eventual result is logged,
// not recorded.
var ErrHandlerTimeout = errors.New("handler deadline exceeded")

// Supervisor runs routed handlers under their per-route deadline.
type Supervisor struct {
	log *slog.Logger
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{log: log}
}

// Execute runs the route's handler and waits at most route.Timeout. On
// timeout the handler is detached, not canceled: it keeps its context so
// in-flight writes can land, the supervisor returns ErrHandlerTimeout
// immediately, and a watcher goroutine logs the late outcome.
func (s *Supervisor) Execute(ctx context.Context, route Route, event billingdom.Event) error {
	handlerCtx := context.WithoutCancel(ctx)

	done := make(chan error, 1)
	started := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler %s panicked: %v", route.Name, r)
			}
		}()
		done <- route.Handler(handlerCtx, event)
	}()

	timer := time.NewTimer(route.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		s.log.WarnContext(ctx, "handler exceeded deadline, detaching",
			slog.String("handler", route.Name),
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
			slog.Duration("timeout", route.Timeout),
		)
		go func() {
			err := <-done
			s.log.Warn("detached handler finished",
				slog.String("handler", route.Name),
				slog.String("event_id", event.ID),
				slog.Duration("ran_for", time.Since(started)),
				slog.Any("error", err),
			)
		}()
		return fmt.Errorf("handler %s after %s: %w", route.Name, route.Timeout, ErrHandlerTimeout)
	}
}
