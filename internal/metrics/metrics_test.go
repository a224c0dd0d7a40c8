package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew_Unregistered(t *testing.T) {
	m, err := New(nil, "c1")
	require.NoError(t, err)

	m.ObserveRequest("ping", OutcomeOK, time.Millisecond)
	require.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("ping", OutcomeOK)), 0)
}

func TestNew_RegistersWithClientLabel(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()

	m, err := New(reg, "c1")
	require.NoError(t, err)

	m.ObserveRequest("stat", OutcomeWorkerError, 2*time.Millisecond)
	m.SetPending(3)
	m.SetQueued(5)
	m.WorkerSpawns.Inc()
	m.WorkerRestarts.Inc()

	expected := `
# HELP ioprocess_pending_requests Requests sent to the worker and not yet answered
# TYPE ioprocess_pending_requests gauge
ioprocess_pending_requests{client="c1"} 3
# HELP ioprocess_queued_requests Requests waiting for the wire to become free
# TYPE ioprocess_queued_requests gauge
ioprocess_queued_requests{client="c1"} 5
# HELP ioprocess_requests_total Total number of ioprocess requests by outcome
# TYPE ioprocess_requests_total counter
ioprocess_requests_total{client="c1",method="stat",outcome="worker_error"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"ioprocess_pending_requests", "ioprocess_queued_requests", "ioprocess_requests_total"))

	count, err := testutil.GatherAndCount(reg, "ioprocess_worker_spawns_total", "ioprocess_worker_restarts_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestNew_TwoClientsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg, "a")
	require.NoError(t, err)

	_, err = New(reg, "b")
	require.NoError(t, err)
}

func TestNew_DuplicateNameFails(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := New(reg, "dup")
	require.NoError(t, err)

	_, err = New(reg, "dup")
	require.ErrorContains(t, err, "register ioprocess metrics")

	// The failed attempt must not leave partial registrations behind.
	first.Unregister(reg)

	_, err = New(reg, "dup")
	require.NoError(t, err)
}
