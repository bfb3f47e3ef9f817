// Package prometheus provides a Prometheus implementation of sqlactor.Metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yuku/sqlactor"
)

// Default histogram buckets for acquire latency (in seconds).
var defaultBuckets = []float64{
	.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// poolMetrics implements sqlactor.Metrics using Prometheus.
type poolMetrics struct {
	acquireDuration *prometheus.HistogramVec
	acquiresTotal   *prometheus.CounterVec
	opensTotal      *prometheus.CounterVec
	closesTotal     *prometheus.CounterVec
	conns           *prometheus.GaugeVec
	waiting         prometheus.Gauge
	maxConns        prometheus.Gauge
}

// NewPoolMetrics creates Prometheus metrics for one pool and registers them
// with reg. Every metric carries a constant "pool" label set to name.
func NewPoolMetrics(reg prometheus.Registerer, name string) sqlactor.Metrics {
	labels := prometheus.Labels{"pool": name}
	m := &poolMetrics{
		acquireDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "sqlactor_acquire_duration_seconds",
			Help:        "Time spent waiting for a pooled connection in seconds",
			Buckets:     defaultBuckets,
			ConstLabels: labels,
		}, []string{"success"}),

		acquiresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "sqlactor_acquires_total",
			Help:        "Total number of acquire attempts",
			ConstLabels: labels,
		}, []string{"success"}),

		opensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "sqlactor_actor_opens_total",
			Help:        "Total number of actor resource opens",
			ConstLabels: labels,
		}, []string{"success"}),

		closesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "sqlactor_actor_closes_total",
			Help:        "Total number of actor resource closes",
			ConstLabels: labels,
		}, []string{"success"}),

		conns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "sqlactor_connections",
			Help:        "Current number of pooled connections by state",
			ConstLabels: labels,
		}, []string{"state"}),

		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "sqlactor_waiting_acquires",
			Help:        "Current number of callers waiting for a connection",
			ConstLabels: labels,
		}),

		maxConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "sqlactor_max_connections",
			Help:        "Configured maximum number of connections",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.acquireDuration,
		m.acquiresTotal,
		m.opensTotal,
		m.closesTotal,
		m.conns,
		m.waiting,
		m.maxConns,
	)

	return m
}

func successLabel(err error) string {
	if err != nil {
		return "false"
	}
	return "true"
}

func (m *poolMetrics) AcquireDuration(d time.Duration, err error) {
	success := successLabel(err)
	m.acquireDuration.WithLabelValues(success).Observe(d.Seconds())
	m.acquiresTotal.WithLabelValues(success).Inc()
}

func (m *poolMetrics) ActorOpened(err error) {
	m.opensTotal.WithLabelValues(successLabel(err)).Inc()
}

func (m *poolMetrics) ActorClosed(err error) {
	m.closesTotal.WithLabelValues(successLabel(err)).Inc()
}

func (m *poolMetrics) PoolState(s sqlactor.Stats) {
	m.conns.WithLabelValues("open").Set(float64(s.Open))
	m.conns.WithLabelValues("idle").Set(float64(s.Idle))
	m.conns.WithLabelValues("in_use").Set(float64(s.InUse))
	m.waiting.Set(float64(s.Waiting))
	m.maxConns.Set(float64(s.MaxConns))
}
