package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/greenquote/payhook/internal/app/ports"
	billingdom "github.com/greenquote/payhook/internal/billing"
	"github.com/greenquote/payhook/internal/observability"
	"github.com/greenquote/payhook/internal/pool"
)

// Status classifies the outcome of one delivery.
type Status string

const (
	StatusProcessed  Status = "processed"
	StatusDuplicate  Status = "duplicate"
	StatusUnhandled  Status = "unhandled"
	StatusRejected   Status = "rejected"
	StatusFailed     Status = "failed"
	StatusServerFail Status = "server_error"
)

// Outcome is what one delivery produced. HTTPStatus is the response code the
// transport should send; the provider retries anything >= 500.
type Outcome struct {
	EventID    string
	EventType  string
	Handler    string
	Status     Status
	Reason     ports.FailureReason
	Duration   time.Duration
	HTTPStatus int
	Err        error
}

// Pipeline runs a raw delivery through verification, the idempotency ledger,
// routing and supervised handler execution.
type Pipeline struct {
	verifier    *Verifier
	router      *Router
	supervisor  *Supervisor
	ledger      ports.LedgerStore
	deadLetters ports.DeadLetterStore
	perf        ports.PerfStore
	metrics     *observability.PipelineMetrics
	log         *slog.Logger
}

func NewPipeline(
	verifier *Verifier,
	router *Router,
	supervisor *Supervisor,
	ledger ports.LedgerStore,
	deadLetters ports.DeadLetterStore,
	perf ports.PerfStore,
	metrics *observability.PipelineMetrics,
	log *slog.Logger,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		verifier:    verifier,
		router:      router,
		supervisor:  supervisor,
		ledger:      ledger,
		deadLetters: deadLetters,
		perf:        perf,
		metrics:     metrics,
		log:         log,
	}
}

// Process handles one raw delivery for a tenant. It never panics and always
// returns an Outcome; Err is advisory detail for logging.
func (p *Pipeline) Process(ctx context.Context, tenant, signatureHeader string, body []byte) Outcome {
	started := time.Now()
	ctx, counters := observability.WithCounters(ctx)

	if err := p.verifier.Verify(tenant, signatureHeader, body); err != nil {
		if errors.Is(err, ErrSecretMissing) {
			// Config problem on our side, not the sender's. No dead
			// letter: the payload is unauthenticated and the provider
			// will redeliver once the secret is fixed.
			p.log.ErrorContext(ctx, "webhook secret missing", slog.String("tenant", tenant), slog.Any("error", err))
			return Outcome{Status: StatusServerFail, HTTPStatus: http.StatusInternalServerError, Err: err}
		}
		p.deadLetter(ctx, "", ports.ReasonSignatureInvalid, err)
		return Outcome{
			Status:     StatusRejected,
			Reason:     ports.ReasonSignatureInvalid,
			HTTPStatus: http.StatusBadRequest,
			Err:        err,
		}
	}

	event, err := billingdom.ParseEvent(body)
	if err != nil {
		p.deadLetter(ctx, "", ports.ReasonParsingFailed, err)
		return Outcome{
			Status:     StatusRejected,
			Reason:     ports.ReasonParsingFailed,
			HTTPStatus: http.StatusBadRequest,
			Err:        err,
		}
	}

	ctx = observability.WithEventIdentity(ctx, tenant, event.ID)
	p.metrics.RecordReceived(ctx, event.Type)

	outcome := p.process(ctx, event, body)
	outcome.EventID = event.ID
	outcome.EventType = event.Type
	outcome.Duration = time.Since(started)

	p.recordPerf(ctx, event.Type, outcome.Duration, counters)
	return outcome
}

func (p *Pipeline) process(ctx context.Context, event billingdom.Event, body []byte) Outcome {
	started := time.Now()

	processed, err := p.ledger.HasBeenProcessed(ctx, event.ID)
	if err != nil {
		return p.storageFailure(ctx, event, err)
	}
	if processed {
		p.metrics.RecordDuplicate(ctx, event.Type)
		p.log.InfoContext(ctx, "duplicate delivery short-circuited", slog.String("event_type", event.Type))
		return Outcome{Status: StatusDuplicate, HTTPStatus: http.StatusOK}
	}

	record := ports.EventRecord{
		EventID:    event.ID,
		EventType:  event.Type,
		Payload:    string(body),
		ReceivedAt: time.Now(),
	}
	if err := p.ledger.RecordSeen(ctx, record); err != nil {
		return p.storageFailure(ctx, event, err)
	}

	route, ok := p.router.Resolve(event.Type)
	if !ok {
		// Unknown types are acknowledged so the provider stops retrying.
		// Marked processed to keep the ledger row from reading as pending.
		if err := p.ledger.MarkProcessed(ctx, event.ID, ""); err != nil {
			p.log.ErrorContext(ctx, "mark unhandled event processed", slog.Any("error", err))
		}
		p.metrics.RecordUnhandled(ctx, event.Type)
		p.log.InfoContext(ctx, "no handler for event type, acknowledged", slog.String("event_type", event.Type))
		return Outcome{Status: StatusUnhandled, HTTPStatus: http.StatusOK}
	}

	if err := p.supervisor.Execute(ctx, route, event); err != nil {
		observability.CountError(ctx)
		reason := classifyFailure(err)
		if markErr := p.ledger.MarkProcessed(ctx, event.ID, err.Error()); markErr != nil {
			p.log.ErrorContext(ctx, "mark failed event", slog.Any("error", markErr))
		}
		p.deadLetter(ctx, event.ID, reason, err)
		p.metrics.RecordFailed(ctx, event.Type, string(reason), time.Since(started))
		p.log.ErrorContext(ctx, "handler failed",
			slog.String("handler", route.Name),
			slog.String("priority", route.Priority.String()),
			slog.String("reason", string(reason)),
			slog.Any("error", err),
		)
		return Outcome{
			Status:     StatusFailed,
			Handler:    route.Name,
			Reason:     reason,
			HTTPStatus: http.StatusInternalServerError,
			Err:        err,
		}
	}

	if err := p.ledger.MarkProcessed(ctx, event.ID, ""); err != nil {
		// The handler's writes landed; failing the delivery now would
		// only trigger a redelivery the ledger cannot dedupe.
		p.log.ErrorContext(ctx, "mark processed after successful handler", slog.Any("error", err))
	}
	p.metrics.RecordProcessed(ctx, event.Type, route.Name, time.Since(started))
	p.log.InfoContext(ctx, "event processed",
		slog.String("handler", route.Name),
		slog.String("priority", route.Priority.String()),
		slog.Duration("took", time.Since(started)),
	)
	return Outcome{Status: StatusProcessed, Handler: route.Name, HTTPStatus: http.StatusOK}
}

func (p *Pipeline) storageFailure(ctx context.Context, event billingdom.Event, err error) Outcome {
	observability.CountError(ctx)
	reason := ports.ReasonDatabaseError
	if errors.Is(err, pool.ErrExhausted) {
		reason = ports.ReasonPoolExhausted
	}
	p.deadLetter(ctx, event.ID, reason, err)
	p.metrics.RecordFailed(ctx, event.Type, string(reason), 0)
	p.log.ErrorContext(ctx, "ledger unavailable", slog.String("reason", string(reason)), slog.Any("error", err))
	return Outcome{
		Status:     StatusServerFail,
		Reason:     reason,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func classifyFailure(err error) ports.FailureReason {
	switch {
	case errors.Is(err, ErrHandlerTimeout):
		return ports.ReasonTimeoutExceeded
	case errors.Is(err, pool.ErrExhausted):
		return ports.ReasonPoolExhausted
	case errors.Is(err, pool.ErrClosed):
		return ports.ReasonDatabaseError
	default:
		return ports.ReasonHandlerError
	}
}

func (p *Pipeline) deadLetter(ctx context.Context, eventID string, reason ports.FailureReason, cause error) {
	letter := ports.DeadLetter{
		EventID: eventID,
		Reason:  reason,
		Detail:  cause.Error(),
	}
	// Recording is best effort; a dead store must not mask the original
	// failure.
	if err := p.deadLetters.Record(ctx, letter); err != nil {
		p.log.ErrorContext(ctx, "record dead letter",
			slog.String("reason", string(reason)),
			slog.Any("cause", cause),
			slog.Any("error", err),
		)
	}
}

func (p *Pipeline) recordPerf(ctx context.Context, operation string, duration time.Duration, counters *observability.Counters) {
	sample := ports.PerfSample{
		Operation:    operation,
		Duration:     duration,
		QueryCount:   counters.Queries(),
		APICallCount: counters.APICalls(),
		ErrorCount:   counters.Errors(),
	}
	if err := p.perf.Append(ctx, sample); err != nil {
		p.log.WarnContext(ctx, "append perf sample", slog.Any("error", err))
	}
}
