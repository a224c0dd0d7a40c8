package reactor

import (
	stderrors "errors"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const (
	inputFlags  = unix.POLLIN | unix.POLLPRI
	outputFlags = unix.POLLOUT
	errorFlags  = unix.POLLERR | unix.POLLHUP | unix.POLLNVAL

	// pollTimeout bounds one wait so a stop request is noticed even if the
	// wake-up byte is lost.
	pollTimeout = 5 * time.Second
)

// noIntrPoll is poll(2) that resumes after EINTR with whatever is left of
// timeout. A negative timeout waits indefinitely.
func noIntrPoll(fds []unix.PollFd, timeout time.Duration) (int, error) {
	base := time.Now()
	remaining := timeout

	for {
		ms := -1
		if timeout >= 0 {
			ms = int(remaining / time.Millisecond)
		}

		n, err := unix.Poll(fds, ms)
		if !stderrors.Is(err, unix.EINTR) {
			return n, err
		}

		if timeout >= 0 {
			remaining = max(0, timeout-time.Since(base))
		}
	}
}

// describeEvents renders poll event bits for logs.
func describeEvents(events int16) string {
	names := make([]string, 0, 4)

	for _, f := range []struct {
		bit  int16
		name string
	}{
		{unix.POLLIN, "POLLIN"},
		{unix.POLLPRI, "POLLPRI"},
		{unix.POLLOUT, "POLLOUT"},
		{unix.POLLERR, "POLLERR"},
		{unix.POLLHUP, "POLLHUP"},
		{unix.POLLNVAL, "POLLNVAL"},
	} {
		if events&f.bit != 0 {
			names = append(names, f.name)
		}
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}
