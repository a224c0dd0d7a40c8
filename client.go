package ioprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/ioprocess-go/internal/config"
	"github.com/wagiedev/ioprocess-go/internal/errors"
	"github.com/wagiedev/ioprocess-go/internal/metrics"
	"github.com/wagiedev/ioprocess-go/internal/protocol"
	"github.com/wagiedev/ioprocess-go/internal/reactor"
)

// Client runs filesystem operations in a supervised ioprocess worker.
//
// Every method is safe for concurrent use. Calls block until the worker
// answers, the per-call timeout expires, or ctx is done. If the worker dies,
// calls in flight fail with *CrashError and a new worker is started for the
// calls that follow.
type Client struct {
	log     *slog.Logger
	opts    *Options
	metrics *metrics.Metrics
	engine  *reactor.Engine

	eg     *errgroup.Group
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// New starts a worker and returns a client bound to it.
//
// The first worker is spawned synchronously, so a missing or broken
// executable is reported here. New then waits up to the configured
// WaitUntilReady for the engine to start polling.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := applyOptions(opts)

	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}

	options.ApplyEnv(env)
	options = options.WithDefaults()

	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	base := options.Logger
	if base == nil {
		base = NopLogger()
	}

	m, err := metrics.New(options.MetricsRegisterer, options.Name)
	if err != nil {
		return nil, err
	}

	eng, err := reactor.NewEngine(base, options, m)
	if err != nil {
		m.Unregister(options.MetricsRegisterer)

		return nil, err
	}

	log := base.With("component", "client", "client", options.Name)

	if err := eng.Start(ctx); err != nil {
		if closeErr := eng.Close(); closeErr != nil {
			log.Warn("Failed to release wake signal", "error", closeErr)
		}

		m.Unregister(options.MetricsRegisterer)

		return nil, err
	}

	c := &Client{
		log:     log,
		opts:    options,
		metrics: m,
		engine:  eng,
	}

	// The engine outlives the ctx passed to New; Close is what stops it.
	var egCtx context.Context

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.eg, egCtx = errgroup.WithContext(runCtx)

	c.eg.Go(func() error {
		return eng.Run(egCtx)
	})

	timer := time.NewTimer(options.WaitUntilReady)
	defer timer.Stop()

	select {
	case <-eng.Ready():
	case <-timer.C:
		log.Warn("Timed out waiting for ioprocess engine", "wait", options.WaitUntilReady)
	case <-ctx.Done():
		_ = c.Close()

		return nil, ctx.Err()
	}

	if err := eng.Err(); err != nil {
		_ = c.Close()

		return nil, err
	}

	log.Info("Client started", "pid", eng.Pid())

	return c, nil
}

// Name returns the instance name used in logs and metrics.
func (c *Client) Name() string {
	return c.opts.Name
}

// Pid returns the pid of the current worker, or 0 while it is being replaced.
func (c *Client) Pid() int {
	return c.engine.Pid()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// call sends one request and waits for its response. A non-nil out receives
// the decoded result.
func (c *Client) call(ctx context.Context, method string, args map[string]any, out any) error {
	if c.isClosed() {
		c.metrics.ObserveRequest(method, metrics.OutcomeClosed, 0)

		return ErrClosed
	}

	start := time.Now()

	pending, err := c.engine.Submit(method, args)
	if err != nil {
		c.metrics.ObserveRequest(method, metrics.OutcomeClosed, 0)

		return err
	}

	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()

	select {
	case <-pending.Done():
	case <-timer.C:
		c.metrics.ObserveRequest(method, metrics.OutcomeTimeout, time.Since(start))
		c.log.Debug("Request timed out", "method", method, "timeout", c.opts.Timeout)

		return fmt.Errorf("ioprocess %s: %w", method, ErrTimeout)
	case <-ctx.Done():
		c.metrics.ObserveRequest(method, metrics.OutcomeTimeout, time.Since(start))

		return ctx.Err()
	}

	return c.complete(method, pending.Result(), out, time.Since(start))
}

func (c *Client) complete(method string, resp *protocol.Response, out any, elapsed time.Duration) error {
	switch {
	case resp.IsCrash():
		c.metrics.ObserveRequest(method, metrics.OutcomeCrash, elapsed)

		return &errors.CrashError{Method: method, Message: resp.Errstr}
	case resp.IsError():
		c.metrics.ObserveRequest(method, metrics.OutcomeWorkerError, elapsed)

		return &errors.WorkerError{Method: method, Code: resp.Errcode, Message: resp.Errstr}
	}

	c.metrics.ObserveRequest(method, metrics.OutcomeOK, elapsed)

	if out == nil || len(resp.Result) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Result, out); err != nil {
		return &errors.DecodeError{Method: method, Raw: string(resp.Result), Err: err}
	}

	return nil
}

// Close stops the worker and waits for the engine to exit.
// Calls still waiting fail with *CrashError; later calls fail with ErrClosed.
// Close is idempotent.
func (c *Client) Close() error {
	c.shutdown()

	if err := c.eg.Wait(); err != nil {
		return fmt.Errorf("engine stopped with error: %w", err)
	}

	return nil
}

// CloseAsync stops the client like Close but does not wait for the engine to exit.
func (c *Client) CloseAsync() {
	c.shutdown()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.log.Info("Closing client")

		c.engine.Stop()

		if err := c.engine.Close(); err != nil {
			c.log.Warn("Failed to release wake signal", "error", err)
		}

		c.cancel()
		c.metrics.Unregister(c.opts.MetricsRegisterer)
	})
}
