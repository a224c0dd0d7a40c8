package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNoIntrPoll_Timeout(t *testing.T) {
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC))

	defer unix.Close(p[0])
	defer unix.Close(p[1])

	fds := []unix.PollFd{{Fd: int32(p[0]), Events: inputFlags}}

	start := time.Now()
	n, err := noIntrPoll(fds, 50*time.Millisecond)
	require.NoError(t, err)
	require.Zero(t, n)
	require.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
}

func TestNoIntrPoll_Readable(t *testing.T) {
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC))

	defer unix.Close(p[0])
	defer unix.Close(p[1])

	_, err := unix.Write(p[1], []byte{'0'})
	require.NoError(t, err)

	fds := []unix.PollFd{{Fd: int32(p[0]), Events: inputFlags}}

	n, err := noIntrPoll(fds, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NotZero(t, fds[0].Revents&unix.POLLIN)
}

func TestNoIntrPoll_HangupOnClosedWriter(t *testing.T) {
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC))

	defer unix.Close(p[0])

	require.NoError(t, unix.Close(p[1]))

	fds := []unix.PollFd{{Fd: int32(p[0]), Events: inputFlags}}

	_, err := noIntrPoll(fds, time.Second)
	require.NoError(t, err)
	require.NotZero(t, fds[0].Revents&errorFlags)
}

func TestDescribeEvents(t *testing.T) {
	require.Equal(t, "none", describeEvents(0))
	require.Equal(t, "POLLIN|POLLHUP", describeEvents(unix.POLLIN|unix.POLLHUP))
}
