package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("payhook/pipeline")

// PipelineMetrics collects counters and timings for webhook processing.
type PipelineMetrics struct {
	receivedCounter   metric.Int64Counter
	processedCounter  metric.Int64Counter
	failedCounter     metric.Int64Counter
	duplicateCounter  metric.Int64Counter
	unhandledCounter  metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

// NewPipelineMetrics registers the webhook pipeline instruments.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	receivedCounter, err := meter.Int64Counter(
		"payhook.events.received",
		metric.WithDescription("Total number of webhook events received"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	processedCounter, err := meter.Int64Counter(
		"payhook.events.processed",
		metric.WithDescription("Total number of webhook events processed successfully"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	failedCounter, err := meter.Int64Counter(
		"payhook.events.failed",
		metric.WithDescription("Total number of webhook events that failed processing"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	duplicateCounter, err := meter.Int64Counter(
		"payhook.events.duplicate",
		metric.WithDescription("Total number of duplicate deliveries short-circuited by the ledger"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	unhandledCounter, err := meter.Int64Counter(
		"payhook.events.unhandled",
		metric.WithDescription("Total number of acknowledged events with no configured handler"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	durationHistogram, err := meter.Float64Histogram(
		"payhook.event.duration",
		metric.WithDescription("Duration of webhook event processing in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		receivedCounter:   receivedCounter,
		processedCounter:  processedCounter,
		failedCounter:     failedCounter,
		duplicateCounter:  duplicateCounter,
		unhandledCounter:  unhandledCounter,
		durationHistogram: durationHistogram,
	}, nil
}

// RecordReceived records one inbound event delivery.
func (m *PipelineMetrics) RecordReceived(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.receivedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

// RecordProcessed records one successful handler run.
func (m *PipelineMetrics) RecordProcessed(ctx context.Context, eventType, handler string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("handler", handler),
		attribute.String("status", "processed"),
	)
	m.processedCounter.Add(ctx, 1, attrs)
	m.durationHistogram.Record(ctx, duration.Seconds(), attrs)
}

// RecordFailed records one failed handler run with its dead-letter reason.
func (m *PipelineMetrics) RecordFailed(ctx context.Context, eventType, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("reason", reason),
		attribute.String("status", "failed"),
	)
	m.failedCounter.Add(ctx, 1, attrs)
	m.durationHistogram.Record(ctx, duration.Seconds(), attrs)
}

// RecordDuplicate records one short-circuited duplicate delivery.
func (m *PipelineMetrics) RecordDuplicate(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.duplicateCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

// RecordUnhandled records one acknowledged event without a route.
func (m *PipelineMetrics) RecordUnhandled(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.unhandledCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}
