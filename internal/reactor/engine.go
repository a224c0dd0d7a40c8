package reactor

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wagiedev/ioprocess-go/internal/command"
	"github.com/wagiedev/ioprocess-go/internal/config"
	"github.com/wagiedev/ioprocess-go/internal/errors"
	"github.com/wagiedev/ioprocess-go/internal/metrics"
	"github.com/wagiedev/ioprocess-go/internal/protocol"
	"github.com/wagiedev/ioprocess-go/internal/subprocess"
)

// SpawnFunc starts a worker. subprocess.Spawn is the default.
type SpawnFunc func(ctx context.Context, log *slog.Logger, opts *config.Options) (*subprocess.Worker, error)

// Engine supervises the workers of one client.
//
// Callers Submit commands from any goroutine; Run drives the worker from a
// single goroutine until Stop is called or the restart limit is reached.
type Engine struct {
	log     *slog.Logger
	opts    *config.Options
	metrics *metrics.Metrics
	spawn   SpawnFunc

	channel *command.Channel
	table   *protocol.Table
	nextID  atomic.Uint64
	worker  atomic.Pointer[subprocess.Worker]

	stopping atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	readyOnce sync.Once
	ready     chan struct{}

	errMu sync.Mutex
	err   error
}

// NewEngine creates an engine for opts. opts must already carry defaults.
// A nil m gets unregistered collectors.
func NewEngine(log *slog.Logger, opts *config.Options, m *metrics.Metrics) (*Engine, error) {
	if m == nil {
		var err error
		if m, err = metrics.New(nil, opts.Name); err != nil {
			return nil, err
		}
	}

	wake, err := command.NewWakeSignal()
	if err != nil {
		return nil, err
	}

	return &Engine{
		log:     log.With("component", "engine", "client", opts.Name),
		opts:    opts,
		metrics: m,
		spawn:   subprocess.Spawn,
		channel: command.NewChannel(wake),
		table:   protocol.NewTable(),
		stopCh:  make(chan struct{}),
		ready:   make(chan struct{}),
	}, nil
}

// SetSpawnFunc replaces the worker launcher. It must be called before Start.
func (e *Engine) SetSpawnFunc(fn SpawnFunc) {
	e.spawn = fn
}

// Start launches the first worker so spawn failures reach the caller.
func (e *Engine) Start(ctx context.Context) error {
	w, err := e.spawnWorker(ctx)
	if err != nil {
		return err
	}

	e.worker.Store(w)

	return nil
}

func (e *Engine) spawnWorker(ctx context.Context) (*subprocess.Worker, error) {
	w, err := e.spawn(ctx, e.log, e.opts)
	if err != nil {
		return nil, err
	}

	e.metrics.WorkerSpawns.Inc()

	return w, nil
}

// Submit queues a call and returns its handle.
// It fails with errors.ErrClosed once the engine stopped accepting work.
func (e *Engine) Submit(method string, args map[string]any) (*protocol.PendingRequest, error) {
	if err := e.Err(); err != nil {
		return nil, err
	}

	pending := protocol.NewPendingRequest(method)

	if err := e.channel.Submit(command.Command{Method: method, Args: args, Pending: pending}); err != nil {
		if terminal := e.Err(); terminal != nil {
			return nil, terminal
		}

		return nil, err
	}

	e.metrics.SetQueued(e.channel.Len())

	return pending, nil
}

// Ready is closed once the first reactor is polling, or the engine gave up.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

func (e *Engine) markReady() {
	e.readyOnce.Do(func() { close(e.ready) })
}

// Pid returns the current worker's pid, or 0 between workers.
func (e *Engine) Pid() int {
	if w := e.worker.Load(); w != nil {
		return w.Pid
	}

	return 0
}

// Pending returns the number of requests awaiting a response.
func (e *Engine) Pending() int {
	return e.table.Len()
}

// Err returns the terminal error once the engine gave up on its worker.
func (e *Engine) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()

	return e.err
}

func (e *Engine) setErr(err error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()

	if e.err == nil {
		e.err = err
	}
}

// Stop asks Run to return. Queued and pending requests are failed on the way out.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.stopping.Store(true)
		e.channel.Close()

		if err := e.channel.Wake().Signal(); err != nil && !stderrors.Is(err, errors.ErrClosed) {
			e.log.Warn("Could not wake engine for shutdown", "error", err)
		}

		close(e.stopCh)
	})
}

// Close releases the wake pipe. Call it after Stop; Run does not need it to exit.
func (e *Engine) Close() error {
	return e.channel.Wake().Close()
}

// Run drives workers until Stop, ctx cancellation, or the restart limit.
func (e *Engine) Run(ctx context.Context) error {
	defer e.shutdown()

	policy := e.restartPolicy()

	for {
		w := e.worker.Load()
		if w == nil {
			if e.stopping.Load() {
				return nil
			}

			var err error
			if w, err = e.spawnWorker(ctx); err != nil {
				e.log.Error("Failed to respawn ioprocess", "error", err)

				if !e.waitRestart(ctx, policy) {
					return nil
				}

				continue
			}

			e.worker.Store(w)
		}

		runErr := e.runReactor(ctx, w)
		e.retire(w)

		if runErr == nil || e.stopping.Load() {
			return nil
		}

		e.log.Warn("Lost connection to ioprocess", "pid", w.Pid, "error", runErr)

		if time.Since(w.Started) >= config.HealthyRunThreshold {
			policy.Reset()
		}

		if !e.waitRestart(ctx, policy) {
			return nil
		}

		e.log.Info("Restarting ioprocess")
		e.metrics.WorkerRestarts.Inc()
	}
}

func (e *Engine) restartPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.RestartInitial
	b.MaxInterval = e.opts.RestartMax
	b.MaxElapsedTime = 0
	b.Reset()

	if e.opts.MaxRestarts > 0 {
		return backoff.WithMaxRetries(b, uint64(e.opts.MaxRestarts))
	}

	return b
}

// waitRestart sleeps until the next restart is due. It returns false when the
// engine should stop instead.
func (e *Engine) waitRestart(ctx context.Context, policy backoff.BackOff) bool {
	delay := policy.NextBackOff()
	if delay == backoff.Stop {
		e.log.Error("Giving up on ioprocess", "max_restarts", e.opts.MaxRestarts)
		e.setErr(fmt.Errorf("%w: %w", errors.ErrClosed, errors.ErrRestartLimit))

		return false
	}

	e.log.Debug("Waiting before restart", "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return !e.stopping.Load()
	case <-e.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// retire fails everything the worker still owed, reaps it and closes its pipes.
func (e *Engine) retire(w *subprocess.Worker) {
	if n := e.table.DrainAllFailing(errors.CrashCode, errors.CrashMessage); n > 0 {
		e.log.Warn("Failed pending requests", "count", n, "pid", w.Pid)
	}

	e.metrics.SetPending(0)

	w.Terminate()

	if err := w.CloseFds(); err != nil {
		e.log.Warn("Failed to close worker descriptors", "pid", w.Pid, "error", err)
	}

	e.worker.CompareAndSwap(w, nil)
}

// shutdown fails every command that never reached a worker.
func (e *Engine) shutdown() {
	e.channel.Close()

	queued := e.channel.DrainAll()
	for _, cmd := range queued {
		cmd.Pending.Resolve(protocol.CrashResponse(0, ""))
	}

	if len(queued) > 0 {
		e.log.Info("Failed queued requests", "count", len(queued))
	}

	e.table.DrainAllFailing(errors.CrashCode, errors.CrashMessage)
	e.metrics.SetPending(0)
	e.metrics.SetQueued(0)
	e.markReady()

	e.log.Info("Engine stopped")
}
