package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "wsbridge"

// Config holds telemetry configuration
type Config struct {
	Enabled bool
	Service string
	Version string

	// Endpoint is the OTLP/HTTP collector host:port. Empty uses the
	// exporter's default or OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint   string
	Insecure   bool
	Headers    map[string]string
	SampleRate float64
}

// Telemetry manages OpenTelemetry providers
type Telemetry struct {
	config     Config
	tracer     trace.Tracer
	meter      metric.Meter
	shutdown   []func(context.Context) error
	resource   *resource.Resource
	propagator propagation.TextMapPropagator
}

// New creates a new telemetry instance. Tracing is exported over OTLP/HTTP
// when enabled. Metrics are exported through reg when it is non-nil.
func New(config Config, reg prometheus.Registerer) (*Telemetry, error) {
	t := &Telemetry{
		config:   config,
		tracer:   tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:    noop.NewMeterProvider().Meter(instrumentationName),
		shutdown: make([]func(context.Context) error, 0),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}

	if !config.Enabled && reg == nil {
		return t, nil
	}

	if err := t.initResource(); err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if config.Enabled {
		if err := t.initTracing(); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		otel.SetTextMapPropagator(t.propagator)
	}

	if reg != nil {
		if err := t.initMetrics(reg); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	return t, nil
}

// initResource creates the OpenTelemetry resource
func (t *Telemetry) initResource() error {
	service := t.config.Service
	if service == "" {
		service = instrumentationName
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(t.config.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	t.resource = res
	return nil
}

// initTracing initializes the tracing provider
func (t *Telemetry) initTracing() error {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithTimeout(10 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
			MaxElapsedTime:  time.Minute,
		}),
	}
	if t.config.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(t.config.Endpoint))
	}
	if t.config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(t.config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(t.config.Headers))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	if t.config.SampleRate > 0 && t.config.SampleRate < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(t.config.SampleRate))
	} else {
		sampler = sdktrace.AlwaysSample()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(t.resource),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	t.tracer = tp.Tracer(instrumentationName)
	t.shutdown = append(t.shutdown, tp.Shutdown)

	return nil
}

// initMetrics initializes a meter provider exported through reg
func (t *Telemetry) initMetrics(reg prometheus.Registerer) error {
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(reg),
		otelprom.WithoutScopeInfo(),
	)
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(t.resource),
	)

	t.meter = mp.Meter(instrumentationName)
	t.shutdown = append(t.shutdown, mp.Shutdown)

	return nil
}

// Tracer returns the tracer
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the meter
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// Propagator returns the propagator
func (t *Telemetry) Propagator() propagation.TextMapPropagator {
	return t.propagator
}

// Shutdown flushes and stops the providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddEvent adds an event to the current span
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// RecordError records an error on the span from context
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
	}
}
