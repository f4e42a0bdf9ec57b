package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartBridgeSpan starts the span covering one bridge's lifetime
func (t *Telemetry) StartBridgeSpan(ctx context.Context, id, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	defaultAttrs := []attribute.KeyValue{
		attribute.String("protocol", "websocket"),
		attribute.String("bridge.id", id),
		attribute.String("bridge.path", path),
	}
	attrs = append(defaultAttrs, attrs...)

	return t.tracer.Start(ctx, "WebSocket bridge",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// EndBridgeSpan ends a bridge span, marking it failed when err is non-nil
func EndBridgeSpan(span trace.Span, err error) {
	if !span.IsRecording() {
		span.End()
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
