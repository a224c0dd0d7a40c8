package reactor

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wagiedev/ioprocess-go/internal/command"
	"github.com/wagiedev/ioprocess-go/internal/errors"
	"github.com/wagiedev/ioprocess-go/internal/protocol"
	"github.com/wagiedev/ioprocess-go/internal/subprocess"
)

// Slots of the poll set.
const (
	slotResponses = iota
	slotDiag
	slotWake
	slotRequests
	numSlots
)

var slotNames = [numSlots]string{"responses", "diagnostics", "wake", "requests"}

// reactor is one connection to one worker. It lives on the engine goroutine.
type reactor struct {
	e      *Engine
	log    *slog.Logger
	w      *subprocess.Worker
	wakeFd int

	fds    [numSlots]unix.PollFd
	reader *protocol.FrameReader
	sender protocol.DataSender
	diag   *diagLogger
	buf    [4096]byte
}

// runReactor serves w until the connection fails or the engine stops.
// A nil return means a clean stop.
func (e *Engine) runReactor(ctx context.Context, w *subprocess.Worker) (err error) {
	wakeFd, err := e.channel.Wake().DupReceiver()
	if err != nil {
		if stderrors.Is(err, errors.ErrClosed) {
			return nil
		}

		return err
	}

	defer unix.Close(wakeFd)

	r := &reactor{
		e:      e,
		log:    e.log.With("component", "reactor", "pid", w.Pid),
		w:      w,
		wakeFd: wakeFd,
		reader: protocol.NewFrameReader(),
		diag:   newDiagLogger(e.log.With("component", "worker", "pid", w.Pid)),
	}

	r.fds[slotResponses] = unix.PollFd{Fd: int32(w.ReadFd), Events: inputFlags}
	r.fds[slotDiag] = unix.PollFd{Fd: int32(w.DiagFd), Events: inputFlags}
	r.fds[slotWake] = unix.PollFd{Fd: int32(wakeFd), Events: inputFlags}
	r.fds[slotRequests] = unix.PollFd{Fd: int32(w.WriteFd), Events: errorFlags}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Reactor panicked", "panic", p, "stack", string(debug.Stack()))
			err = &errors.FramingError{Op: "reactor", Err: fmt.Errorf("panic: %v", p)}
		}

		if err != nil && (r.sender.Busy() || r.reader.Remaining() > 0) {
			r.log.Warn("Connection lost mid-frame",
				"unsent_bytes", r.sender.Unsent(),
				"missing_response_bytes", r.reader.Remaining())
		}

		r.diag.Flush()
	}()

	return r.run(ctx)
}

func (r *reactor) run(ctx context.Context) error {
	r.log.Debug("Reactor started")
	r.e.markReady()

	// Commands queued while no worker was running need a first nudge.
	r.kick()

	for {
		if r.shouldStop(ctx) {
			return nil
		}

		if _, err := noIntrPoll(r.fds[:], pollTimeout); err != nil {
			return &errors.FramingError{Op: "poll", Err: err}
		}

		if r.shouldStop(ctx) {
			return nil
		}

		if err := r.handleEvents(); err != nil {
			return err
		}
	}
}

func (r *reactor) shouldStop(ctx context.Context) bool {
	if r.e.stopping.Load() || ctx.Err() != nil {
		r.log.Info("Shutdown requested")

		return true
	}

	return false
}

// handleEvents processes one poll result. Readable data is consumed before
// error flags on the same descriptor are acted on, so answers the worker
// managed to send before dying still reach their callers.
func (r *reactor) handleEvents() error {
	for slot := range numSlots {
		revents := r.fds[slot].Revents
		if revents == 0 {
			continue
		}

		var err error

		switch slot {
		case slotResponses:
			if revents&inputFlags != 0 {
				err = r.readResponses()
			}
		case slotDiag:
			if revents&inputFlags != 0 {
				err = r.readDiagnostics()
			}
		case slotWake:
			if revents&inputFlags != 0 {
				err = r.onWake()
			}
		case slotRequests:
			if revents&errorFlags == 0 && revents&outputFlags != 0 {
				err = r.onWritable()
			}
		}

		if err != nil {
			return err
		}

		if revents&errorFlags != 0 {
			return &errors.FramingError{
				Op:  "poll " + slotNames[slot],
				Err: fmt.Errorf("error events %s", describeEvents(revents&errorFlags)),
			}
		}
	}

	return nil
}

func (r *reactor) readResponses() error {
	for {
		resp, err := r.reader.Process(protocol.FdIO(r.w.ReadFd))
		if err != nil {
			return err
		}

		if resp == nil {
			return nil
		}

		if !r.e.table.Resolve(resp.ID, resp) {
			r.log.Warn("Unknown request id", "request_id", resp.ID)
		}

		r.e.metrics.SetPending(r.e.table.Len())
	}
}

func (r *reactor) readDiagnostics() error {
	for {
		n, err := unix.Read(r.w.DiagFd, r.buf[:])

		switch {
		case err == nil && n == 0:
			return &errors.FramingError{Op: "read diagnostics", Err: io.ErrUnexpectedEOF}
		case err == nil:
			r.diag.Feed(r.buf[:n])
		case stderrors.Is(err, unix.EINTR):
		case stderrors.Is(err, unix.EAGAIN):
			return nil
		default:
			return &errors.FramingError{Op: "read diagnostics", Err: err}
		}
	}
}

// onWake consumes one wake-up and, if the wire is free, dispatches one command.
func (r *reactor) onWake() error {
	if _, err := command.Drain(r.wakeFd); err != nil {
		return &errors.FramingError{Op: "read wake", Err: err}
	}

	if r.sender.Busy() {
		return nil
	}

	cmd, ok := r.e.channel.TryPop()
	if !ok {
		return nil
	}

	r.e.metrics.SetQueued(r.e.channel.Len())

	r.dispatch(cmd)

	return nil
}

// dispatch registers cmd under a fresh id and starts writing it.
// The request is registered before encoding so that nothing that goes wrong
// afterwards can leave its caller without an answer.
func (r *reactor) dispatch(cmd command.Command) {
	id := r.e.nextID.Add(1)

	if err := r.e.table.Add(id, cmd.Pending); err != nil {
		r.rejectLocally(cmd, id, err)

		return
	}

	frame, err := protocol.EncodeRequest(id, cmd.Method, cmd.Args)
	if err != nil {
		r.e.table.Resolve(id, localError(id, err))
		r.log.Warn("Could not encode request", "request_id", id, "method", cmd.Method, "error", err)
		r.kick()

		return
	}

	if err := r.sender.Start(frame); err != nil {
		r.e.table.Resolve(id, localError(id, err))
		r.kick()

		return
	}

	if r.e.opts.Trace {
		r.log.Debug("Sending request", "request_id", id, "method", cmd.Method, "bytes", len(frame))
	}

	r.fds[slotRequests].Events = outputFlags
	r.e.metrics.SetPending(r.e.table.Len())
}

func (r *reactor) rejectLocally(cmd command.Command, id uint64, err error) {
	r.log.Warn("Could not register request", "request_id", id, "method", cmd.Method, "error", err)
	cmd.Pending.Resolve(localError(id, err))
	r.kick()
}

func localError(id uint64, err error) *protocol.Response {
	return &protocol.Response{ID: id, Errcode: int(syscall.EINVAL), Errstr: err.Error()}
}

// onWritable pushes the in-flight request. Once it is fully written the
// request pipe goes back to error-only interest and the next command is pulled.
func (r *reactor) onWritable() error {
	done, err := r.sender.Process(protocol.FdIO(r.w.WriteFd))
	if err != nil {
		return err
	}

	if done {
		r.fds[slotRequests].Events = errorFlags
		r.kick()
	}

	return nil
}

func (r *reactor) kick() {
	if err := r.e.channel.Wake().Signal(); err != nil && !stderrors.Is(err, errors.ErrClosed) {
		r.log.Warn("Could not signal wake pipe", "error", err)
	}
}
