// Package correlation ties outbox messages and spans to the request that
// produced them with a ULID.
package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const attributeKey = attribute.Key("correlation_id")

type ctxKey struct{}

func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// Ensure returns ctx carrying a correlation id, minting one if absent.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return WithID(ctx, id), id
}

// InjectTrace stamps payload with the correlation id and, when ctx has a
// sampled span, its trace and span ids.
func InjectTrace(ctx context.Context, payload map[string]any) string {
	_, id := Ensure(ctx)
	if payload == nil {
		return id
	}
	payload[string(attributeKey)] = id
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		payload["trace_id"] = sc.TraceID().String()
		payload["span_id"] = sc.SpanID().String()
	}
	return id
}

// SpanProcessor copies the correlation id onto every span started under it.
type SpanProcessor struct{}

var _ sdktrace.SpanProcessor = (*SpanProcessor)(nil)

func (SpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if id := FromContext(ctx); id != "" {
		s.SetAttributes(attributeKey.String(id))
	}
}

func (SpanProcessor) OnEnd(sdktrace.ReadOnlySpan)      {}
func (SpanProcessor) Shutdown(context.Context) error   { return nil }
func (SpanProcessor) ForceFlush(context.Context) error { return nil }
