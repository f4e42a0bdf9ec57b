package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wsbridge"

// Direction labels for relayed frames
const (
	DirectionClientToUpstream = "client_to_upstream"
	DirectionUpstreamToClient = "upstream_to_client"
)

// Outcome labels for finished bridges
const (
	OutcomeClosed = "closed"
	OutcomeFailed = "failed"
)

// Metrics holds the bridge's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Bridge lifecycle
	BridgesActive prometheus.Gauge
	BridgesTotal  *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	IdleTimeouts  prometheus.Counter

	// Frames
	FramesForwarded *prometheus.CounterVec
	FramesBuffered  prometheus.Counter
	BytesForwarded  *prometheus.CounterVec

	// Upstream
	ConnectRetries  prometheus.Counter
	ConnectFailures prometheus.Counter

	// Requests rejected before upgrade
	RequestErrors *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates metrics registered with the default Prometheus registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates metrics registered with reg and served from gatherer
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BridgesActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bridges_active",
			Help:      "Number of bridges not yet closed",
		}),
		BridgesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridges_total",
			Help:      "Total number of finished bridges by outcome",
		}, []string{"outcome"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_transitions_total",
			Help:      "Total number of bridge state transitions by target state",
		}, []string{"state"}),
		IdleTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_timeouts_total",
			Help:      "Total number of bridges closed by the idle timer",
		}),
		FramesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_forwarded_total",
			Help:      "Total number of frames relayed by direction and frame type",
		}, []string{"direction", "type"}),
		FramesBuffered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_buffered_total",
			Help:      "Total number of client frames queued while the upstream was connecting",
		}),
		BytesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_forwarded_total",
			Help:      "Total payload bytes relayed by direction",
		}, []string{"direction"}),
		ConnectRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_connect_retries_total",
			Help:      "Total number of upstream connect retries",
		}),
		ConnectFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_connect_failures_total",
			Help:      "Total number of bridges whose upstream never connected",
		}),
		RequestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Total number of requests rejected before upgrade by error code",
		}, []string{"code"}),
		gatherer: gatherer,
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// BridgeOpened records a new bridge
func (m *Metrics) BridgeOpened() {
	if m == nil {
		return
	}
	m.BridgesActive.Inc()
}

// BridgeFinished records a bridge reaching a terminal state
func (m *Metrics) BridgeFinished(outcome string) {
	if m == nil {
		return
	}
	m.BridgesActive.Dec()
	m.BridgesTotal.WithLabelValues(outcome).Inc()
}

// Transition records a state transition
func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
}

// IdleTimeout records an idle timer expiry
func (m *Metrics) IdleTimeout() {
	if m == nil {
		return
	}
	m.IdleTimeouts.Inc()
}

// FrameForwarded records one relayed frame
func (m *Metrics) FrameForwarded(direction, frameType string, size int) {
	if m == nil {
		return
	}
	m.FramesForwarded.WithLabelValues(direction, frameType).Inc()
	m.BytesForwarded.WithLabelValues(direction).Add(float64(size))
}

// FrameBuffered records a client frame queued during connect
func (m *Metrics) FrameBuffered() {
	if m == nil {
		return
	}
	m.FramesBuffered.Inc()
}

// ConnectRetry records an upstream connect retry
func (m *Metrics) ConnectRetry() {
	if m == nil {
		return
	}
	m.ConnectRetries.Inc()
}

// ConnectFailed records an exhausted upstream connect
func (m *Metrics) ConnectFailed() {
	if m == nil {
		return
	}
	m.ConnectFailures.Inc()
}

// RequestError records a request rejected with code
func (m *Metrics) RequestError(code string) {
	if m == nil {
		return
	}
	m.RequestErrors.WithLabelValues(code).Inc()
}
