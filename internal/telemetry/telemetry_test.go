package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestNew_Disabled(t *testing.T) {
	telemetry, err := New(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("New failed for disabled telemetry: %v", err)
	}
	if telemetry == nil {
		t.Fatal("Expected non-nil telemetry even when disabled")
	}
	if telemetry.Tracer() == nil || telemetry.Meter() == nil {
		t.Error("Expected no-op tracer and meter")
	}

	// no-op instruments are usable
	inst, err := telemetry.NewBridgeInstruments()
	if err != nil {
		t.Fatalf("NewBridgeInstruments failed: %v", err)
	}
	inst.RecordDuration(context.Background(), "closed", time.Second)

	if err := telemetry.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestNew_TracingEnabled(t *testing.T) {
	cfg := Config{
		Enabled:    true,
		Service:    "test-bridge",
		Version:    "1.0.0",
		Endpoint:   "127.0.0.1:4318",
		Insecure:   true,
		SampleRate: 0.5,
	}

	telemetry, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// nothing was exported, so shutdown only has to stop the batcher
	_ = telemetry.Shutdown(ctx)
}

func TestBridgeInstruments_ExportedThroughPrometheus(t *testing.T) {
	registry := prometheus.NewRegistry()

	telemetry, err := New(Config{Service: "test-bridge"}, registry)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer telemetry.Shutdown(context.Background())

	inst, err := telemetry.NewBridgeInstruments()
	if err != nil {
		t.Fatalf("NewBridgeInstruments failed: %v", err)
	}

	ctx := context.Background()
	inst.RecordDuration(ctx, "closed", 2*time.Second)
	inst.RecordFlush(ctx, 3)
	inst.RecordConnect(ctx, 50*time.Millisecond)

	w := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	for _, want := range []string{
		"wsbridge_bridge_duration_seconds",
		"wsbridge_pending_flushed_frames",
		"wsbridge_upstream_connect_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestNilBridgeInstruments(t *testing.T) {
	var inst *BridgeInstruments
	inst.RecordDuration(context.Background(), "failed", time.Second)
	inst.RecordFlush(context.Background(), 1)
	inst.RecordConnect(context.Background(), time.Second)
}

func TestBridgeSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	telemetry, _ := New(Config{}, nil)
	telemetry.tracer = tp.Tracer("test")

	ctx, span := telemetry.StartBridgeSpan(context.Background(), "abc", "/chat")
	AddEvent(ctx, "active")
	EndBridgeSpan(span, errors.New("upstream refused"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "WebSocket bridge" {
		t.Errorf("span name = %q", s.Name())
	}
	if len(s.Events()) < 2 {
		t.Errorf("Expected the transition and error events, got %d", len(s.Events()))
	}
	if s.Status().Description != "upstream refused" {
		t.Errorf("status = %+v", s.Status())
	}
}

func TestPropagation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	telemetry, _ := New(Config{}, nil)
	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	defer span.End()

	header := http.Header{}
	telemetry.InjectHTTPHeaders(ctx, header)
	if header.Get("traceparent") == "" {
		t.Fatal("Expected traceparent header")
	}

	extracted := telemetry.ExtractHTTPHeaders(context.Background(), header)
	if got := trace.SpanContextFromContext(extracted).TraceID(); got != span.SpanContext().TraceID() {
		t.Errorf("trace id = %s, want %s", got, span.SpanContext().TraceID())
	}
}
