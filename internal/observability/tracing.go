package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const dbTracerName = "payhook/db"

type contextKey string

const (
	tenantContextKey  contextKey = "observability.tenant"
	eventIDContextKey contextKey = "observability.event_id"
	requestIDKey      contextKey = "observability.request_id"
	routeKey          contextKey = "observability.route"
)

// Span is the application-level tracing span contract.
type Span interface {
	End()
	RecordError(error)
}

type otelSpan struct {
	inner trace.Span
}

// StartDBSpan starts a database tracing span for one query operation.
func StartDBSpan(ctx context.Context, queryName, operation string) (context.Context, Span) {
	queryName = strings.TrimSpace(queryName)
	if queryName == "" {
		queryName = "unknown"
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.system.name", "sqlite"),
		attribute.String("db.query_name", queryName),
		attribute.String("db.operation", strings.TrimSpace(operation)),
	}
	if tenant, ok := TenantFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("payhook.tenant", tenant))
	}
	if eventID, ok := EventIDFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("payhook.event_id", eventID))
	}

	ctx, span := otel.Tracer(dbTracerName).Start(ctx, "db."+queryName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, otelSpan{inner: span}
}

// WithEventIdentity enriches context and current span with tenant/event attributes.
func WithEventIdentity(ctx context.Context, tenant, eventID string) context.Context {
	tenant = strings.TrimSpace(tenant)
	eventID = strings.TrimSpace(eventID)
	if tenant != "" {
		ctx = context.WithValue(ctx, tenantContextKey, tenant)
	}
	if eventID != "" {
		ctx = context.WithValue(ctx, eventIDContextKey, eventID)
	}
	setSpanEventAttributes(ctx, tenant, eventID)
	return ctx
}

// WithRequestMetadata enriches context and current span with request metadata.
func WithRequestMetadata(ctx context.Context, requestID, route string) context.Context {
	requestID = strings.TrimSpace(requestID)
	route = strings.TrimSpace(route)
	if requestID != "" {
		ctx = context.WithValue(ctx, requestIDKey, requestID)
	}
	if route != "" {
		ctx = context.WithValue(ctx, routeKey, route)
	}
	setSpanRequestAttributes(ctx, requestID, route)
	return ctx
}

// TenantFromContext extracts the webhook tenant name.
func TenantFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(tenantContextKey).(string)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// EventIDFromContext extracts the provider event id.
func EventIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(eventIDContextKey).(string)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// RequestIDFromContext extracts request id.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(requestIDKey).(string)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// RouteFromContext extracts normalized route path.
func RouteFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(routeKey).(string)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func setSpanEventAttributes(ctx context.Context, tenant, eventID string) {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, 2)
	if tenant != "" {
		attrs = append(attrs, attribute.String("payhook.tenant", tenant))
	}
	if eventID != "" {
		attrs = append(attrs, attribute.String("payhook.event_id", eventID))
	}
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
}

func setSpanRequestAttributes(ctx context.Context, requestID, route string) {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, 2)
	if requestID != "" {
		attrs = append(attrs, attribute.String("request.id", requestID))
	}
	if route != "" {
		attrs = append(attrs, attribute.String("http.route", route))
	}
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
}

func (s otelSpan) End() {
	if s.inner == nil {
		return
	}
	s.inner.End()
}

func (s otelSpan) RecordError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.RecordError(err)
	s.inner.SetStatus(codes.Error, err.Error())
}
