package testworker

import (
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/wagiedev/ioprocess-go/internal/protocol"
)

// EnvVar marks a process as a test worker when set to "1".
const EnvVar = "IOPROCESS_TEST_WORKER"

// CrashExitCode is the exit status of the crash method.
const CrashExitCode = 1

// MainIfWorker runs the worker and exits if this process was launched as one.
// Otherwise it returns immediately.
func MainIfWorker() {
	if os.Getenv(EnvVar) != "1" {
		return
	}

	os.Exit(Main(os.Args[1:], os.Stderr))
}

// Env returns the environment entries that turn a re-executed test binary into a worker.
func Env() map[string]string {
	return map[string]string{EnvVar: "1"}
}

type worker struct {
	in    io.Reader
	out   io.Writer
	diag  io.Writer
	trace bool

	writeMu sync.Mutex
	diagMu  sync.Mutex

	threads    chan struct{}
	maxQueued  int
	queueMu    sync.Mutex
	queued     int
	dispatched sync.WaitGroup
}

// Main parses worker flags, serves requests until the request pipe closes and
// returns the exit status.
func Main(args []string, diag io.Writer) int {
	fs := flag.NewFlagSet("ioprocess", flag.ContinueOnError)
	fs.SetOutput(diag)

	readFd := fs.Int("read-pipe-fd", -1, "request pipe")
	writeFd := fs.Int("write-pipe-fd", -1, "response pipe")
	maxThreads := fs.Int("max-threads", 0, "worker threads, 0 for unlimited")
	maxQueued := fs.Int("max-queued-requests", -1, "queued requests, negative for unlimited")
	trace := fs.Bool("trace-enabled", false, "trace every request")
	_ = fs.Bool("keep-fds", false, "ignored")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *readFd < 0 || *writeFd < 0 {
		fmt.Fprintln(diag, "ERROR|testworker|missing pipe descriptors")

		return 2
	}

	w := newWorker(
		os.NewFile(uintptr(*readFd), "requests"),
		os.NewFile(uintptr(*writeFd), "responses"),
		diag, *maxThreads, *maxQueued, *trace,
	)

	return w.serve()
}

func newWorker(in io.Reader, out, diag io.Writer, maxThreads, maxQueued int, trace bool) *worker {
	w := &worker{in: in, out: out, diag: diag, trace: trace, maxQueued: maxQueued}

	if maxThreads > 0 {
		w.threads = make(chan struct{}, maxThreads)
	}

	return w
}

func (w *worker) logf(level, format string, args ...any) {
	w.diagMu.Lock()
	defer w.diagMu.Unlock()

	fmt.Fprintf(w.diag, "%s|testworker|%s\n", level, fmt.Sprintf(format, args...))
}

func (w *worker) serve() int {
	w.logf("INFO", "Starting ioprocess pid=%d", os.Getpid())

	var header [protocol.HeaderSize]byte

	for {
		if _, err := io.ReadFull(w.in, header[:]); err != nil {
			if stderrors.Is(err, io.EOF) {
				w.logf("INFO", "Request pipe closed, shutting down")
				w.dispatched.Wait()

				return 0
			}

			w.logf("ERROR", "Could not read request length: %v", err)

			return 1
		}

		body := make([]byte, binary.NativeEndian.Uint64(header[:]))
		if _, err := io.ReadFull(w.in, body); err != nil {
			w.logf("ERROR", "Could not read request body: %v", err)

			return 1
		}

		var req protocol.Request
		if err := json.Unmarshal(body, &req); err != nil {
			w.logf("WARNING", "Dropping undecodable request: %v", err)

			continue
		}

		if w.trace {
			w.logf("DEBUG", "Received request id=%d method=%s", req.ID, req.MethodName)
		}

		w.dispatch(&req)
	}
}

// dispatch runs req on a free thread, queues it, or rejects it with EAGAIN
// when the queue is full. The decision is made before reading the next request.
func (w *worker) dispatch(req *protocol.Request) {
	if w.threads == nil {
		w.dispatched.Go(func() { w.run(req) })

		return
	}

	select {
	case w.threads <- struct{}{}:
		w.dispatched.Go(func() {
			defer func() { <-w.threads }()
			w.run(req)
		})

		return
	default:
	}

	w.queueMu.Lock()
	if w.maxQueued >= 0 && w.queued >= w.maxQueued {
		w.queueMu.Unlock()
		w.respond(errorResponse(req.ID, syscall.EAGAIN))

		return
	}

	w.queued++
	w.queueMu.Unlock()

	w.dispatched.Go(func() {
		w.threads <- struct{}{}

		w.queueMu.Lock()
		w.queued--
		w.queueMu.Unlock()

		defer func() { <-w.threads }()
		w.run(req)
	})
}

func (w *worker) run(req *protocol.Request) {
	result, err := call(req.MethodName, req.Args)
	if err != nil {
		w.respond(errorResponse(req.ID, err))

		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		w.respond(errorResponse(req.ID, syscall.EINVAL))

		return
	}

	// The real worker always reports success explicitly.
	w.respond(&protocol.Response{ID: req.ID, Result: raw, Errstr: "SUCCESS"})
}

func (w *worker) respond(resp *protocol.Response) {
	frame, err := protocol.EncodeResponse(resp)
	if err != nil {
		w.logf("ERROR", "Could not encode response id=%d: %v", resp.ID, err)

		return
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if _, err := w.out.Write(frame); err != nil {
		w.logf("ERROR", "Could not write response id=%d: %v", resp.ID, err)
	}
}

func errorResponse(id uint64, err error) *protocol.Response {
	code := syscall.EIO

	if errno, ok := stderrors.AsType[syscall.Errno](err); ok {
		code = errno
	}

	return &protocol.Response{ID: id, Errcode: int(code), Errstr: code.Error()}
}
