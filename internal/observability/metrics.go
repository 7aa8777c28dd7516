package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting bridge metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Client-facing request counts and latency
//   - Upstream call performance, retries, and degrade events
//   - Streaming event volume
//   - Conversation store operation outcomes
//   - Token consumption reported by the upstream
type Metrics struct {
	// HTTPRequestCounter counts client requests.
	// Labels: path, method, status
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures client request latency in seconds.
	// Labels: path, method
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s, 120s
	HTTPRequestDuration *prometheus.HistogramVec

	// UpstreamRequestCounter counts upstream chat completion calls.
	// Labels: status (HTTP status or "transport_error"), stream ("true"|"false")
	UpstreamRequestCounter *prometheus.CounterVec

	// UpstreamRequestDuration measures upstream call latency in seconds.
	// Labels: stream ("true"|"false")
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s
	UpstreamRequestDuration *prometheus.HistogramVec

	// UpstreamRetryCounter counts retried upstream attempts.
	UpstreamRetryCounter prometheus.Counter

	// DegradeCounter counts requests replayed with an optional field removed.
	// Labels: field
	DegradeCounter *prometheus.CounterVec

	// EmptyCompletionCounter counts upstream replies with no usable output.
	EmptyCompletionCounter prometheus.Counter

	// StreamEventCounter counts emitted Responses stream events.
	// Labels: type
	StreamEventCounter *prometheus.CounterVec

	// StoreOperationCounter counts conversation store operations.
	// Labels: operation (get|put|delete), status (success|error|miss)
	StoreOperationCounter *prometheus.CounterVec

	// TokensUsed tracks upstream-reported token consumption.
	// Labels: type (prompt|completion)
	TokensUsed *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry. Call once at application startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NopMetrics returns metrics backed by a private registry. Components that
// are constructed without metrics use this so counting stays safe.
func NopMetrics() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

// NewMetricsWith registers the metrics with a specific registerer. Tests use
// this with a fresh registry to avoid duplicate registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openbridge_requests_total",
				Help: "Total number of client requests by path, method, and status",
			},
			[]string{"path", "method", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openbridge_request_latency_seconds",
				Help:    "Latency of client requests in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"path", "method"},
		),

		UpstreamRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openbridge_upstream_requests_total",
				Help: "Total number of upstream chat completion calls by status",
			},
			[]string{"status", "stream"},
		),

		UpstreamRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openbridge_upstream_latency_seconds",
				Help:    "Latency of upstream chat completion calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stream"},
		),

		UpstreamRetryCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "openbridge_upstream_retries_total",
				Help: "Total number of retried upstream attempts",
			},
		),

		DegradeCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openbridge_degraded_requests_total",
				Help: "Total number of upstream calls replayed with an optional field removed",
			},
			[]string{"field"},
		),

		EmptyCompletionCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "openbridge_empty_completions_total",
				Help: "Total number of upstream replies carrying no usable output",
			},
		),

		StreamEventCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openbridge_stream_events_total",
				Help: "Total number of emitted Responses stream events by type",
			},
			[]string{"type"},
		),

		StoreOperationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openbridge_store_operations_total",
				Help: "Total number of conversation store operations by outcome",
			},
			[]string{"operation", "status"},
		),

		TokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openbridge_upstream_tokens_total",
				Help: "Total number of upstream-reported tokens by type",
			},
			[]string{"type"},
		),
	}
}

// ObserveUsage records upstream-reported token counts. The usage map is the
// raw upstream object; only numeric prompt/completion fields are counted.
func (m *Metrics) ObserveUsage(usage map[string]any) {
	if m == nil || usage == nil {
		return
	}
	if v, ok := numericUsage(usage["prompt_tokens"]); ok {
		m.TokensUsed.WithLabelValues("prompt").Add(v)
	}
	if v, ok := numericUsage(usage["completion_tokens"]); ok {
		m.TokensUsed.WithLabelValues("completion").Add(v)
	}
}

func numericUsage(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, n >= 0
	case int:
		return float64(n), n >= 0
	case int64:
		return float64(n), n >= 0
	default:
		return 0, false
	}
}
