package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BridgeInstruments records bridge distributions through the OTel meter
type BridgeInstruments struct {
	duration metric.Float64Histogram
	flushed  metric.Int64Histogram
	connect  metric.Float64Histogram
}

// NewBridgeInstruments creates the bridge histograms on the telemetry meter
func (t *Telemetry) NewBridgeInstruments() (*BridgeInstruments, error) {
	var (
		b   BridgeInstruments
		err error
	)

	b.duration, err = t.meter.Float64Histogram(
		"wsbridge_bridge_duration_seconds",
		metric.WithDescription("Lifetime of a bridge from accept to terminal state"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	b.flushed, err = t.meter.Int64Histogram(
		"wsbridge_pending_flushed_frames",
		metric.WithDescription("Client frames flushed to the upstream on connect"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flush histogram: %w", err)
	}

	b.connect, err = t.meter.Float64Histogram(
		"wsbridge_upstream_connect_seconds",
		metric.WithDescription("Time from accept until the upstream connection was established"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connect histogram: %w", err)
	}

	return &b, nil
}

// RecordDuration records a finished bridge
func (b *BridgeInstruments) RecordDuration(ctx context.Context, outcome string, d time.Duration) {
	if b == nil {
		return
	}
	b.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordFlush records the number of queued frames flushed on connect
func (b *BridgeInstruments) RecordFlush(ctx context.Context, n int) {
	if b == nil {
		return
	}
	b.flushed.Record(ctx, int64(n))
}

// RecordConnect records how long the upstream took to connect
func (b *BridgeInstruments) RecordConnect(ctx context.Context, d time.Duration) {
	if b == nil {
		return
	}
	b.connect.Record(ctx, d.Seconds())
}
