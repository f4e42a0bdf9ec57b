package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
)

// ExtractHTTPHeaders returns ctx carrying the trace context found in header
func (t *Telemetry) ExtractHTTPHeaders(ctx context.Context, header http.Header) context.Context {
	return t.propagator.Extract(ctx, propagation.HeaderCarrier(header))
}

// InjectHTTPHeaders writes the trace context of ctx into header
func (t *Telemetry) InjectHTTPHeaders(ctx context.Context, header http.Header) {
	t.propagator.Inject(ctx, propagation.HeaderCarrier(header))
}
