package ioprocess

import (
	"log/slog"
	"maps"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wagiedev/ioprocess-go/internal/config"
)

// Options holds the full client configuration. Build it with Option values.
type Options = config.Options

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options on top of the client defaults.
func applyOptions(opts []Option) *Options {
	options := &Options{
		MaxQueuedRequests: config.DefaultMaxQueuedRequests,
	}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithName sets the instance name used in logs and metrics.
// Defaults to "ioprocess-" followed by a ULID.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithTimeout bounds every call. Defaults to 60 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithWaitUntilReady sets how long New waits for the engine to start polling.
func WithWaitUntilReady(d time.Duration) Option {
	return func(o *Options) {
		o.WaitUntilReady = d
	}
}

// ===== Worker Limits =====

// WithMaxThreads caps the worker's thread pool. Zero lets the worker decide.
func WithMaxThreads(n int) Option {
	return func(o *Options) {
		o.MaxThreads = n
	}
}

// WithMaxQueuedRequests caps how many calls may wait for a worker thread.
// Calls beyond the cap fail with EAGAIN. A negative value means unbounded.
func WithMaxQueuedRequests(n int) Option {
	return func(o *Options) {
		o.MaxQueuedRequests = n
	}
}

// ===== Launch Configuration =====

// WithExecutable sets the path to the ioprocess binary, skipping discovery.
func WithExecutable(path string) Option {
	return func(o *Options) {
		o.ExecutablePath = path
	}
}

// WithTaskset sets the taskset(1) binary used to pin the worker.
// An empty path disables CPU pinning.
func WithTaskset(path string) Option {
	return func(o *Options) {
		o.SetTaskset(path)
	}
}

// WithCPUList sets the taskset CPU list. Defaults to every CPU.
func WithCPUList(cpus string) Option {
	return func(o *Options) {
		o.CPUList = cpus
	}
}

// WithTrace enables worker-side request tracing.
func WithTrace(trace bool) Option {
	return func(o *Options) {
		o.Trace = trace
	}
}

// WithDebugTerminate makes the client stop workers with SIGTERM instead of SIGKILL.
func WithDebugTerminate(debug bool) Option {
	return func(o *Options) {
		o.DebugTerminate = debug
	}
}

// WithEnv adds environment variables to the worker's environment.
// Later calls merge into earlier ones.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string, len(env))
		}

		maps.Copy(o.Env, env)
	}
}

// WithExtraArgs appends raw arguments to the worker command line.
func WithExtraArgs(args ...string) Option {
	return func(o *Options) {
		o.ExtraArgs = append(o.ExtraArgs, args...)
	}
}

// ===== Supervision =====

// WithRestartBackoff bounds the delay between consecutive worker respawns.
func WithRestartBackoff(initial, maxDelay time.Duration) Option {
	return func(o *Options) {
		o.RestartInitial = initial
		o.RestartMax = maxDelay
	}
}

// WithMaxRestarts caps consecutive failed worker runs before the client closes itself.
// Zero, the default, restarts forever.
func WithMaxRestarts(n int) Option {
	return func(o *Options) {
		o.MaxRestarts = n
	}
}

// WithMetricsRegisterer registers the client's Prometheus collectors with reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *Options) {
		o.MetricsRegisterer = reg
	}
}
