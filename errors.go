package ioprocess

import "github.com/wagiedev/ioprocess-go/internal/errors"

// Re-export error types from internal package

// IOProcessError is the base interface for all client errors.
type IOProcessError = errors.IOProcessError

// WorkerError is an errno reported by the worker for a single call.
// errors.Is(err, syscall.ENOENT) and errors.Is(err, fs.ErrNotExist) match it.
type WorkerError = errors.WorkerError

// CrashError is delivered to calls that were pending when the worker died.
type CrashError = errors.CrashError

// SpawnError indicates the worker process could not be started.
type SpawnError = errors.SpawnError

// ExecutableNotFoundError indicates the worker binary was not found.
type ExecutableNotFoundError = errors.ExecutableNotFoundError

// DecodeError indicates a result did not have the expected shape.
type DecodeError = errors.DecodeError

// CrashCode is the error code carried by CrashError.
const CrashCode = errors.CrashCode

// Re-export sentinel errors from internal package.
var (
	// ErrClosed indicates the client has been closed and cannot be reused.
	ErrClosed = errors.ErrClosed

	// ErrTimeout indicates a call got no response before its deadline.
	ErrTimeout = errors.ErrTimeout

	// ErrRestartLimit indicates the client gave up respawning its worker.
	// It is always wrapped together with ErrClosed.
	ErrRestartLimit = errors.ErrRestartLimit
)
