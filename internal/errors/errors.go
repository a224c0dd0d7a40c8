package errors

import (
	"errors"
	"fmt"
	"syscall"
)

// CrashCode is the error code injected into every pending request when the
// connection to the worker is lost. It is never produced by the worker itself.
const CrashCode = 100001

// CrashMessage is the message carried by synthetic crash responses.
const CrashMessage = "ioprocess crashed unexpectedly"

// IOProcessError is the base interface for all client errors.
type IOProcessError interface {
	error
	IsIOProcessError() bool
}

// Compile-time verification that all error types implement IOProcessError.
var (
	_ IOProcessError = (*WorkerError)(nil)
	_ IOProcessError = (*CrashError)(nil)
	_ IOProcessError = (*FramingError)(nil)
	_ IOProcessError = (*SpawnError)(nil)
	_ IOProcessError = (*ExecutableNotFoundError)(nil)
	_ IOProcessError = (*DecodeError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrClosed indicates the client has been closed and cannot be used.
	ErrClosed = errors.New("ioprocess client closed")

	// ErrTimeout indicates no response arrived before the call deadline.
	// The request stays pending on the worker side.
	ErrTimeout = errors.New("ioprocess request timed out")

	// ErrRestartLimit indicates the engine gave up respawning the worker.
	ErrRestartLimit = errors.New("ioprocess restart limit reached")
)

// WorkerError is a non-zero error code returned by the worker.
//
// Codes are errno values, so the error unwraps to the matching syscall.Errno:
// errors.Is(err, syscall.ENOENT) and errors.Is(err, fs.ErrNotExist) both work.
type WorkerError struct {
	Method  string
	Code    int
	Message string
}

func (e *WorkerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = syscall.Errno(e.Code).Error()
	}

	return fmt.Sprintf("ioprocess %s: [Errno %d] %s", e.Method, e.Code, msg)
}

func (e *WorkerError) Unwrap() error {
	return syscall.Errno(e.Code)
}

// IsIOProcessError implements IOProcessError.
func (e *WorkerError) IsIOProcessError() bool { return true }

// CrashError is the synthetic failure delivered to requests that were pending
// when the worker connection was lost.
type CrashError struct {
	Method  string
	Message string
}

func (e *CrashError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = CrashMessage
	}

	if e.Method == "" {
		return fmt.Sprintf("%s (code %d)", msg, CrashCode)
	}

	return fmt.Sprintf("ioprocess %s: %s (code %d)", e.Method, msg, CrashCode)
}

// Code returns the synthetic crash code.
func (e *CrashError) Code() int { return CrashCode }

// IsIOProcessError implements IOProcessError.
func (e *CrashError) IsIOProcessError() bool { return true }

// FramingError indicates the pipe protocol with the worker broke down.
// It never reaches callers; the engine turns it into a restart.
type FramingError struct {
	Op  string
	Err error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing failure during %s: %v", e.Op, e.Err)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// IsIOProcessError implements IOProcessError.
func (e *FramingError) IsIOProcessError() bool { return true }

// SpawnError indicates the worker process could not be started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn ioprocess %q: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsIOProcessError implements IOProcessError.
func (e *SpawnError) IsIOProcessError() bool { return true }

// ExecutableNotFoundError indicates the worker binary was not found.
type ExecutableNotFoundError struct {
	SearchedPaths []string
}

func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf("ioprocess executable not found in: %v", e.SearchedPaths)
}

// IsIOProcessError implements IOProcessError.
func (e *ExecutableNotFoundError) IsIOProcessError() bool { return true }

// DecodeError indicates a successful response carried a result of the wrong shape.
type DecodeError struct {
	Method string
	Raw    string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s result: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsIOProcessError implements IOProcessError.
func (e *DecodeError) IsIOProcessError() bool { return true }
