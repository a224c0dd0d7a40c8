package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes recorded in ioprocess_requests_total.
const (
	OutcomeOK          = "ok"
	OutcomeWorkerError = "worker_error"
	OutcomeCrash       = "crash"
	OutcomeTimeout     = "timeout"
	OutcomeClosed      = "closed"
)

// Metrics holds the collectors of one client.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PendingRequests prometheus.Gauge
	QueuedCommands  prometheus.Gauge
	WorkerRestarts  prometheus.Counter
	WorkerSpawns    prometheus.Counter
}

// New creates the collectors for the client called name and registers them
// with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer, name string) (*Metrics, error) {
	labels := prometheus.Labels{"client": name}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "ioprocess_requests_total",
				Help:        "Total number of ioprocess requests by outcome",
				ConstLabels: labels,
			},
			[]string{"method", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "ioprocess_request_duration_seconds",
				Help:        "ioprocess request duration in seconds",
				Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 30, 60},
				ConstLabels: labels,
			},
			[]string{"method"},
		),
		PendingRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "ioprocess_pending_requests",
				Help:        "Requests sent to the worker and not yet answered",
				ConstLabels: labels,
			},
		),
		QueuedCommands: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "ioprocess_queued_requests",
				Help:        "Requests waiting for the wire to become free",
				ConstLabels: labels,
			},
		),
		WorkerRestarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "ioprocess_worker_restarts_total",
				Help:        "Total number of worker restarts after a failure",
				ConstLabels: labels,
			},
		),
		WorkerSpawns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "ioprocess_worker_spawns_total",
				Help:        "Total number of worker processes started",
				ConstLabels: labels,
			},
		),
	}

	if reg == nil {
		return m, nil
	}

	collectors := m.collectors()

	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			// Unregister matches by descriptor, so only roll back our own successes.
			for _, registered := range collectors[:i] {
				reg.Unregister(registered)
			}

			return nil, fmt.Errorf("register ioprocess metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RequestsTotal,
		m.RequestDuration,
		m.PendingRequests,
		m.QueuedCommands,
		m.WorkerRestarts,
		m.WorkerSpawns,
	}
}

// Unregister removes the collectors from reg.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		return
	}

	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

// ObserveRequest records one finished call.
func (m *Metrics) ObserveRequest(method, outcome string, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(method, outcome).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// SetPending records the size of the pending request table.
func (m *Metrics) SetPending(n int) {
	m.PendingRequests.Set(float64(n))
}

// SetQueued records the number of commands not yet sent to the worker.
func (m *Metrics) SetQueued(n int) {
	m.QueuedCommands.Set(float64(n))
}
