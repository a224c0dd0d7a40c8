package command

import (
	stderrors "errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/wagiedev/ioprocess-go/internal/errors"
)

// WakeSignal is a non-blocking self-pipe used to interrupt the engine's poll.
//
// Signal is safe from many goroutines. Close is final; signals after Close
// fail with errors.ErrClosed and never touch the (possibly reused) descriptors.
type WakeSignal struct {
	mu       sync.RWMutex
	closed   bool
	receiver int
	sender   int
}

// NewWakeSignal creates the pipe pair. Both ends are close-on-exec and non-blocking.
func NewWakeSignal() (*WakeSignal, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("create wake pipe: %w", err)
	}

	return &WakeSignal{receiver: p[0], sender: p[1]}, nil
}

// Signal writes one notification byte.
// A full pipe is not an error: the unread bytes already guarantee a wake-up.
func (w *WakeSignal) Signal() error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return errors.ErrClosed
	}

	for {
		_, err := unix.Write(w.sender, []byte{'0'})

		switch {
		case err == nil:
			return nil
		case stderrors.Is(err, unix.EINTR):
			continue
		case stderrors.Is(err, unix.EAGAIN):
			return nil
		default:
			return fmt.Errorf("write wake signal: %w", err)
		}
	}
}

// DupReceiver returns a private duplicate of the receiver end for one engine run.
// The caller owns the returned descriptor and must close it.
func (w *WakeSignal) DupReceiver() (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return -1, errors.ErrClosed
	}

	fd, err := unix.FcntlInt(uintptr(w.receiver), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("dup wake receiver: %w", err)
	}

	return fd, nil
}

// Drain consumes one notification byte from fd.
// It reports false when the pipe was already empty.
func Drain(fd int) (bool, error) {
	var buf [1]byte

	for {
		n, err := unix.Read(fd, buf[:])

		switch {
		case err == nil:
			return n > 0, nil
		case stderrors.Is(err, unix.EINTR):
			continue
		case stderrors.Is(err, unix.EAGAIN):
			return false, nil
		default:
			return false, fmt.Errorf("drain wake signal: %w", err)
		}
	}
}

// Close closes both ends. It is safe to call multiple times.
func (w *WakeSignal) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true

	return stderrors.Join(unix.Close(w.receiver), unix.Close(w.sender))
}
