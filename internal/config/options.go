package config

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Defaults applied by WithDefaults.
const (
	DefaultTimeout           = 60 * time.Second
	DefaultMaxQueuedRequests = -1
	DefaultWaitUntilReady    = 2 * time.Second
	DefaultTasksetPath       = "/usr/bin/taskset"
	DefaultRestartInitial    = 50 * time.Millisecond
	DefaultRestartMax        = 5 * time.Second

	// HealthyRunThreshold is how long a worker must survive before the
	// restart backoff starts over.
	HealthyRunThreshold = 10 * time.Second
)

// Options configures an ioprocess client.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Name identifies the client in logs and metrics.
	// Defaults to "ioprocess-<ULID>".
	Name string

	// MaxThreads caps the worker's thread pool. Zero lets the worker decide.
	MaxThreads int

	// Timeout bounds every call. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxQueuedRequests caps the worker's backlog. Negative means unbounded.
	// Overflowing calls fail with EAGAIN.
	MaxQueuedRequests int

	// WaitUntilReady is how long New waits for the engine to come up.
	WaitUntilReady time.Duration

	// ExecutablePath is the explicit path to the ioprocess binary.
	// If empty, the binary is discovered.
	ExecutablePath string

	// TasksetPath pins the worker with taskset(1). Empty disables pinning.
	TasksetPath string

	// CPUList is passed to taskset as --cpu-list. Defaults to every CPU.
	CPUList string

	// Trace enables worker-side request tracing.
	Trace bool

	// DebugTerminate makes restarts send SIGTERM instead of SIGKILL.
	DebugTerminate bool

	// Env provides additional environment variables for the worker.
	Env map[string]string

	// ExtraArgs is appended to the worker command line.
	ExtraArgs []string

	// RestartInitial and RestartMax bound the delay between consecutive respawns.
	RestartInitial time.Duration
	RestartMax     time.Duration

	// MaxRestarts caps consecutive failed worker runs. Zero means unlimited.
	MaxRestarts int

	// MetricsRegisterer receives the client's collectors. Nil disables metrics.
	MetricsRegisterer prometheus.Registerer

	// explicitTaskset is set when the taskset path, possibly empty, was chosen by the caller.
	explicitTaskset bool
}

// SetTaskset records an explicit taskset choice, including "" to disable pinning.
func (o *Options) SetTaskset(path string) {
	o.TasksetPath = path
	o.explicitTaskset = true
}

// TasksetExplicit reports whether SetTaskset was called.
func (o *Options) TasksetExplicit() bool {
	return o.explicitTaskset
}

// WithDefaults returns a copy of o with every unset field filled in.
func (o *Options) WithDefaults() *Options {
	out := *o

	if out.Name == "" {
		out.Name = "ioprocess-" + ulid.Make().String()
	}

	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}

	if out.WaitUntilReady <= 0 {
		out.WaitUntilReady = DefaultWaitUntilReady
	}

	if !out.explicitTaskset && out.TasksetPath == "" {
		out.TasksetPath = DefaultTasksetPath
	}

	if out.CPUList == "" {
		out.CPUList = AnyCPU()
	}

	if out.RestartInitial <= 0 {
		out.RestartInitial = DefaultRestartInitial
	}

	if out.RestartMax <= 0 {
		out.RestartMax = DefaultRestartMax
	}

	if out.RestartMax < out.RestartInitial {
		out.RestartMax = out.RestartInitial
	}

	return &out
}

// Validate reports configuration that can never produce a working client.
func (o *Options) Validate() error {
	if o.MaxThreads < 0 {
		return fmt.Errorf("max threads must not be negative, got %d", o.MaxThreads)
	}

	if o.MaxRestarts < 0 {
		return fmt.Errorf("max restarts must not be negative, got %d", o.MaxRestarts)
	}

	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", o.Timeout)
	}

	return nil
}

// AnyCPU returns a taskset CPU list covering every CPU of this host.
func AnyCPU() string {
	return fmt.Sprintf("0-%d", runtime.NumCPU()-1)
}
