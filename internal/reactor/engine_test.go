package reactor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/ioprocess-go/internal/config"
	"github.com/wagiedev/ioprocess-go/internal/errors"
	"github.com/wagiedev/ioprocess-go/internal/metrics"
	"github.com/wagiedev/ioprocess-go/internal/protocol"
	"github.com/wagiedev/ioprocess-go/internal/subprocess"
	"github.com/wagiedev/ioprocess-go/internal/testworker"
)

const waitTimeout = 10 * time.Second

func workerOptions(t *testing.T) *config.Options {
	t.Helper()

	exe, err := os.Executable()
	require.NoError(t, err)

	opts := &config.Options{
		ExecutablePath:    exe,
		Env:               testworker.Env(),
		MaxThreads:        4,
		MaxQueuedRequests: -1,
		RestartInitial:    time.Millisecond,
		RestartMax:        10 * time.Millisecond,
	}
	opts.SetTaskset("")

	return opts.WithDefaults()
}

type runningEngine struct {
	*Engine
	metrics *metrics.Metrics
	eg      *errgroup.Group
}

func startEngine(t *testing.T, opts *config.Options) *runningEngine {
	t.Helper()

	m, err := metrics.New(nil, opts.Name)
	require.NoError(t, err)

	e, err := NewEngine(slog.Default(), opts, m)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	eg := &errgroup.Group{}
	eg.Go(func() error { return e.Run(context.Background()) })

	select {
	case <-e.Ready():
	case <-time.After(waitTimeout):
		t.Fatal("engine never became ready")
	}

	re := &runningEngine{Engine: e, metrics: m, eg: eg}

	t.Cleanup(func() { re.stop(t) })

	return re
}

func (re *runningEngine) stop(t *testing.T) {
	t.Helper()

	re.Stop()
	require.NoError(t, re.eg.Wait())
	require.NoError(t, re.Close())
}

func (re *runningEngine) call(t *testing.T, method string, args map[string]any) *protocol.Response {
	t.Helper()

	pending, err := re.Submit(method, args)
	require.NoError(t, err)

	return wait(t, pending)
}

func wait(t *testing.T, pending *protocol.PendingRequest) *protocol.Response {
	t.Helper()

	select {
	case <-pending.Done():
		return pending.Result()
	case <-time.After(waitTimeout):
		t.Fatalf("%s never completed", pending.Method)

		return nil
	}
}

func TestEngine_Ping(t *testing.T) {
	re := startEngine(t, workerOptions(t))

	resp := re.call(t, "ping", nil)
	require.False(t, resp.IsError())
	require.JSONEq(t, `"pong"`, string(resp.Result))
	require.Positive(t, re.Pid())
	require.InDelta(t, 1, testutil.ToFloat64(re.metrics.WorkerSpawns), 0)
}

func TestEngine_ConcurrentCallsResolveOnce(t *testing.T) {
	re := startEngine(t, workerOptions(t))

	const n = 200

	var wg sync.WaitGroup

	for i := range n {
		wg.Go(func() {
			text := strings.Repeat("x", i)

			pending, err := re.Submit("echo", map[string]any{"text": text, "sleep": 0})
			require.NoError(t, err)

			resp := wait(t, pending)

			var got string
			require.NoError(t, json.Unmarshal(resp.Result, &got))
			require.Equal(t, text, got)
		})
	}

	wg.Wait()
	require.Zero(t, re.Pending())
}

func TestEngine_LargeFramesCrossPipeBuffers(t *testing.T) {
	re := startEngine(t, workerOptions(t))

	text := strings.Repeat("שלום, עולם! ", 200_000)

	resp := re.call(t, "echo", map[string]any{"text": text, "sleep": 0})
	require.False(t, resp.IsError())

	var got string
	require.NoError(t, json.Unmarshal(resp.Result, &got))
	require.Equal(t, text, got)
}

func TestEngine_CrashFailsInFlightAndRespawns(t *testing.T) {
	re := startEngine(t, workerOptions(t))

	firstPid := re.Pid()

	slow, err := re.Submit("echo", map[string]any{"text": "never", "sleep": 30})
	require.NoError(t, err)

	resp := re.call(t, "crash", nil)
	require.True(t, resp.IsCrash())
	require.Equal(t, errors.CrashMessage, resp.Errstr)

	slowResp := wait(t, slow)
	require.True(t, slowResp.IsCrash(), "in-flight request must fail with the crash code")

	resp = re.call(t, "ping", nil)
	require.False(t, resp.IsError())
	require.NotEqual(t, firstPid, re.Pid())
	require.InDelta(t, 1, testutil.ToFloat64(re.metrics.WorkerRestarts), 0)
	require.InDelta(t, 2, testutil.ToFloat64(re.metrics.WorkerSpawns), 0)
}

func TestEngine_IDsSurviveRestart(t *testing.T) {
	re := startEngine(t, workerOptions(t))

	re.call(t, "ping", nil)
	re.call(t, "crash", nil)
	re.call(t, "ping", nil)

	require.Equal(t, uint64(3), re.nextID.Load())
}

func TestEngine_EncodeFailureIsLocal(t *testing.T) {
	re := startEngine(t, workerOptions(t))

	pid := re.Pid()

	resp := re.call(t, "echo", map[string]any{"text": make(chan int)})
	require.True(t, resp.IsError())
	require.False(t, resp.IsCrash())

	resp = re.call(t, "ping", nil)
	require.False(t, resp.IsError())
	require.Equal(t, pid, re.Pid(), "encode failures must not restart the worker")
}

// panickingArg blows up while the request is being encoded.
type panickingArg struct{}

func (panickingArg) MarshalJSON() ([]byte, error) {
	panic("boom")
}

func TestEngine_PanicBecomesRestart(t *testing.T) {
	re := startEngine(t, workerOptions(t))

	pid := re.Pid()

	resp := re.call(t, "echo", map[string]any{"text": panickingArg{}})
	require.True(t, resp.IsCrash())

	resp = re.call(t, "ping", nil)
	require.False(t, resp.IsError())
	require.NotEqual(t, pid, re.Pid())
}

func TestEngine_StopFailsPendingAndRejectsNewWork(t *testing.T) {
	re := startEngine(t, workerOptions(t))

	slow, err := re.Submit("echo", map[string]any{"text": "slow", "sleep": 30})
	require.NoError(t, err)

	// Let the request reach the worker.
	require.Eventually(t, func() bool { return re.Pending() == 1 }, waitTimeout, 5*time.Millisecond)

	re.stop(t)

	require.True(t, wait(t, slow).IsCrash())
	require.Zero(t, re.Pid())

	_, err = re.Submit("ping", nil)
	require.ErrorIs(t, err, errors.ErrClosed)
}

func TestEngine_StopDrainsQueuedCommands(t *testing.T) {
	opts := workerOptions(t)

	m, err := metrics.New(nil, opts.Name)
	require.NoError(t, err)

	e, err := NewEngine(slog.Default(), opts, m)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	// Nothing is running the engine yet, so these stay queued.
	queued := make([]*protocol.PendingRequest, 0, 3)

	for range 3 {
		p, err := e.Submit("ping", nil)
		require.NoError(t, err)

		queued = append(queued, p)
	}

	require.InDelta(t, 3, testutil.ToFloat64(m.QueuedCommands), 0)

	e.Stop()
	require.NoError(t, e.Run(context.Background()))
	require.NoError(t, e.Close())

	require.Zero(t, testutil.ToFloat64(m.QueuedCommands))

	for _, p := range queued {
		require.True(t, wait(t, p).IsCrash())
	}
}

func TestEngine_RestartLimit(t *testing.T) {
	script := filepath.Join(t.TempDir(), "ioprocess")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	opts := &config.Options{ExecutablePath: script, MaxRestarts: 2, RestartInitial: time.Millisecond}
	opts.SetTaskset("")
	opts = opts.WithDefaults()

	m, err := metrics.New(nil, opts.Name)
	require.NoError(t, err)

	e, err := NewEngine(slog.Default(), opts, m)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("engine never gave up")
	}

	defer e.Close()

	require.ErrorIs(t, e.Err(), errors.ErrRestartLimit)
	require.ErrorIs(t, e.Err(), errors.ErrClosed)
	require.InDelta(t, 3, testutil.ToFloat64(m.WorkerSpawns), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.WorkerRestarts), 0)

	_, err = e.Submit("ping", nil)
	require.ErrorIs(t, err, errors.ErrRestartLimit)
}

func TestEngine_SpawnFailuresCountTowardsLimit(t *testing.T) {
	opts := workerOptions(t)
	opts.MaxRestarts = 3

	e, err := NewEngine(slog.Default(), opts, nil)
	require.NoError(t, err)

	defer e.Close()

	attempts := 0
	e.SetSpawnFunc(func(context.Context, *slog.Logger, *config.Options) (*subprocess.Worker, error) {
		attempts++

		return nil, &errors.SpawnError{Path: "ioprocess", Err: stderrors.New("no")}
	})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, 4, attempts)
	require.ErrorIs(t, e.Err(), errors.ErrRestartLimit)
}

func TestEngine_RunHonoursContext(t *testing.T) {
	opts := workerOptions(t)

	e, err := NewEngine(slog.Default(), opts, nil)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	<-e.Ready()
	cancel()

	// Cancellation is noticed at the latest when the poll timeout expires;
	// a submit makes it immediate.
	_, _ = e.Submit("ping", nil)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(pollTimeout + waitTimeout):
		t.Fatal("engine ignored context cancellation")
	}
}
