// Package metrics provides Prometheus instrumentation for RPC traffic and
// transaction outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taostats"

// Metrics holds all collectors. A nil *Metrics records nothing.
type Metrics struct {
	RPCCalls   *prometheus.CounterVec
	RPCLatency *prometheus.HistogramVec
	Reconnects prometheus.Counter
	BlockViews prometheus.Gauge

	Submissions     *prometheus.CounterVec
	SlippageBlocked *prometheus.CounterVec
	Slippage        *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RPCCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Chain RPC calls by method and result",
		}, []string{"method", "result"}),
		RPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Chain RPC call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "connections_opened_total",
			Help:      "Chain connections opened",
		}),
		BlockViews: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "block_views",
			Help:      "Cached per-block views",
		}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "submissions_total",
			Help:      "Submitted transactions by operation and result",
		}, []string{"operation", "result"}),
		SlippageBlocked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "slippage_blocked_total",
			Help:      "Transactions refused because slippage exceeded the tolerance",
		}, []string{"operation"}),
		Slippage: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "slippage_percent",
			Help:      "Quoted slippage percentage",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 25, 50},
		}, []string{"operation"}),
	}
}

// Handler serves the collectors of g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRPC(method string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RPCCalls.WithLabelValues(method, result).Inc()
	m.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) SetBlockViews(n int) {
	if m == nil {
		return
	}
	m.BlockViews.Set(float64(n))
}

func (m *Metrics) Submitted(operation string, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.Submissions.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) Blocked(operation string) {
	if m == nil {
		return
	}
	m.SlippageBlocked.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveSlippage(operation string, percent float64) {
	if m == nil {
		return
	}
	m.Slippage.WithLabelValues(operation).Observe(percent)
}
