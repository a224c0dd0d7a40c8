package errors

import (
	"errors"
	"io/fs"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkerError(t *testing.T) {
	err := &WorkerError{Method: "stat", Code: int(syscall.ENOENT), Message: "No such file or directory"}

	require.Equal(t, "ioprocess stat: [Errno 2] No such file or directory", err.Error())
	require.ErrorIs(t, err, syscall.ENOENT)
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.NotErrorIs(t, err, syscall.EACCES)
	require.True(t, err.IsIOProcessError())
}

func TestWorkerError_DefaultMessage(t *testing.T) {
	err := &WorkerError{Method: "ping", Code: int(syscall.EAGAIN)}

	require.Equal(t, "ioprocess ping: [Errno 11] "+syscall.EAGAIN.Error(), err.Error())
}

func TestCrashError(t *testing.T) {
	err := &CrashError{Method: "echo"}

	require.Equal(t, "ioprocess echo: ioprocess crashed unexpectedly (code 100001)", err.Error())
	require.Equal(t, CrashCode, err.Code())
	require.True(t, err.IsIOProcessError())

	bare := &CrashError{Message: "client closed"}
	require.Equal(t, "client closed (code 100001)", bare.Error())
}

func TestFramingError(t *testing.T) {
	root := errors.New("unexpected EOF")
	err := &FramingError{Op: "read body", Err: root}

	require.Equal(t, "framing failure during read body: unexpected EOF", err.Error())
	require.ErrorIs(t, err, root)
	require.True(t, err.IsIOProcessError())
}

func TestSpawnError(t *testing.T) {
	root := errors.New("permission denied")
	err := &SpawnError{Path: "/usr/libexec/ioprocess", Err: root}

	require.Equal(t, `failed to spawn ioprocess "/usr/libexec/ioprocess": permission denied`, err.Error())
	require.ErrorIs(t, err, root)
}

func TestExecutableNotFoundError(t *testing.T) {
	err := &ExecutableNotFoundError{SearchedPaths: []string{"$PATH", "/usr/libexec/ioprocess"}}

	require.Equal(t, "ioprocess executable not found in: [$PATH /usr/libexec/ioprocess]", err.Error())
	require.True(t, err.IsIOProcessError())
}

func TestDecodeError(t *testing.T) {
	root := errors.New("cannot unmarshal string into int")
	err := &DecodeError{Method: "probe_block_size", Raw: `"x"`, Err: root}

	require.Equal(t, "failed to decode probe_block_size result: cannot unmarshal string into int", err.Error())
	require.ErrorIs(t, err, root)

	target, ok := errors.AsType[*DecodeError](error(err))
	require.True(t, ok)
	require.Equal(t, `"x"`, target.Raw)
}
