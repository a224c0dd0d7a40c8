package subprocess

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wagiedev/ioprocess-go/internal/config"
	"github.com/wagiedev/ioprocess-go/internal/errors"
)

const (
	// WorkerReadFd is the descriptor number the worker reads requests from.
	WorkerReadFd = 3

	// WorkerWriteFd is the descriptor number the worker writes responses to.
	WorkerWriteFd = 4

	// softTerminateGrace bounds how long a SIGTERM'd worker may take to exit
	// before it is killed anyway.
	softTerminateGrace = 5 * time.Second
)

// ExitStatus describes how a worker ended.
type ExitStatus struct {
	Code     int
	Signaled bool
	Signal   syscall.Signal
}

func (s ExitStatus) String() string {
	if s.Signaled {
		return "terminated by signal " + s.Signal.String()
	}

	return "exited with code " + strconv.Itoa(s.Code)
}

// Worker is one running ioprocess and the engine's ends of its pipes.
//
// WriteFd carries requests to the worker, ReadFd carries responses back and
// DiagFd is the worker's stderr. All three are non-blocking.
type Worker struct {
	Pid     int
	WriteFd int
	ReadFd  int
	DiagFd  int
	Started time.Time

	log            *slog.Logger
	cmd            *exec.Cmd
	debugTerminate bool

	termOnce sync.Once
	exit     ExitStatus

	closeOnce sync.Once
	closeErr  error
}

// BuildCommand returns the full argv used to launch the worker.
// When taskset is non-empty the worker is pinned to opts.CPUList.
func BuildCommand(taskset, executable string, opts *config.Options) []string {
	argv := make([]string, 0, 16)

	if taskset != "" {
		argv = append(argv, taskset, "--cpu-list", opts.CPUList)
	}

	argv = append(argv,
		executable,
		"--read-pipe-fd", strconv.Itoa(WorkerReadFd),
		"--write-pipe-fd", strconv.Itoa(WorkerWriteFd),
		"--max-threads", strconv.Itoa(opts.MaxThreads),
		"--max-queued-requests", strconv.Itoa(opts.MaxQueuedRequests),
	)

	if opts.Trace {
		argv = append(argv, "--trace-enabled")
	}

	return append(argv, opts.ExtraArgs...)
}

// BuildEnvironment returns the worker environment: ours plus opts.Env.
func BuildEnvironment(opts *config.Options) []string {
	env := os.Environ()

	for _, key := range slices.Sorted(maps.Keys(opts.Env)) {
		env = append(env, key+"="+opts.Env[key])
	}

	return env
}

// pipePair is a pipe whose ends are both close-on-exec.
type pipePair struct {
	r, w int
}

func newPipe() (pipePair, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return pipePair{r: -1, w: -1}, err
	}

	return pipePair{r: p[0], w: p[1]}, nil
}

func closeFds(fds ...int) {
	for _, fd := range fds {
		if fd >= 0 {
			_ = unix.Close(fd)
		}
	}
}

// Spawn starts a worker configured by opts.
//
// The worker's pipe ends are handed down as descriptors 3 and 4 and its stderr
// as the diagnostic pipe; the parent's copies of those ends are closed once the
// child is running. Discovery failures are returned as-is; anything that goes
// wrong after the binary was found is a *errors.SpawnError.
func Spawn(ctx context.Context, log *slog.Logger, opts *config.Options) (*Worker, error) {
	log = log.With("component", "subprocess")

	executable, err := NewDiscoverer(&DiscoveryConfig{
		ExecutablePath: opts.ExecutablePath,
		Logger:         log,
	}).Discover(ctx)
	if err != nil {
		return nil, err
	}

	argv := BuildCommand(ResolveTaskset(log, opts.TasksetPath), executable, opts)
	log.Debug("Built worker command", "argv", argv)

	spawnErr := func(err error) error {
		log.Error("Failed to spawn ioprocess", "path", executable, "error", err)

		return &errors.SpawnError{Path: executable, Err: err}
	}

	// requests flow engine -> worker, responses and diagnostics worker -> engine.
	requests, err := newPipe()
	if err != nil {
		return nil, spawnErr(fmt.Errorf("request pipe: %w", err))
	}

	responses, err := newPipe()
	if err != nil {
		closeFds(requests.r, requests.w)

		return nil, spawnErr(fmt.Errorf("response pipe: %w", err))
	}

	diag, err := newPipe()
	if err != nil {
		closeFds(requests.r, requests.w, responses.r, responses.w)

		return nil, spawnErr(fmt.Errorf("diagnostic pipe: %w", err))
	}

	workerRead := os.NewFile(uintptr(requests.r), "ioprocess-requests")
	workerWrite := os.NewFile(uintptr(responses.w), "ioprocess-responses")
	workerStderr := os.NewFile(uintptr(diag.w), "ioprocess-stderr")

	//nolint:gosec // G204: the worker command line is built from configuration
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = BuildEnvironment(opts)
	cmd.ExtraFiles = []*os.File{workerRead, workerWrite}
	cmd.Stderr = workerStderr

	startErr := cmd.Start()

	// The child holds its own copies now.
	_ = workerRead.Close()
	_ = workerWrite.Close()
	_ = workerStderr.Close()

	if startErr != nil {
		closeFds(requests.w, responses.r, diag.r)

		return nil, spawnErr(startErr)
	}

	w := &Worker{
		Pid:            cmd.Process.Pid,
		WriteFd:        requests.w,
		ReadFd:         responses.r,
		DiagFd:         diag.r,
		Started:        time.Now(),
		cmd:            cmd,
		debugTerminate: opts.DebugTerminate,
	}
	w.log = log.With("pid", w.Pid)

	for _, fd := range []int{w.WriteFd, w.ReadFd, w.DiagFd} {
		if err := unix.SetNonblock(fd, true); err != nil {
			w.Terminate()
			_ = w.CloseFds()

			return nil, spawnErr(fmt.Errorf("set non-blocking: %w", err))
		}
	}

	w.log.Info("ioprocess started", "path", executable)

	return w, nil
}

// Alive reports whether the worker has not been reaped yet.
func (w *Worker) Alive() bool {
	return w.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Terminate stops the worker if it is still running and reaps it.
// SIGKILL is used unless debug termination asked for SIGTERM. It is safe to
// call more than once; later calls return the first result.
func (w *Worker) Terminate() ExitStatus {
	w.termOnce.Do(func() {
		if w.Alive() {
			sig := syscall.SIGKILL
			if w.debugTerminate {
				sig = syscall.SIGTERM
			}

			w.log.Info("Terminating ioprocess", "signal", sig.String())
			_ = w.cmd.Process.Signal(sig)
		}

		w.exit = w.wait()

		w.log.Info("ioprocess "+w.exit.String(), "uptime", time.Since(w.Started).Round(time.Millisecond))
	})

	return w.exit
}

func (w *Worker) wait() ExitStatus {
	waited := make(chan error, 1)

	go func() {
		waited <- w.cmd.Wait()
	}()

	var err error

	if w.debugTerminate {
		select {
		case err = <-waited:
		case <-time.After(softTerminateGrace):
			w.log.Warn("ioprocess ignored SIGTERM, killing it", "grace", softTerminateGrace)
			_ = w.cmd.Process.Kill()
			err = <-waited
		}
	} else {
		err = <-waited
	}

	return classifyExit(w.cmd.ProcessState, err)
}

func classifyExit(state *os.ProcessState, err error) ExitStatus {
	if state == nil {
		if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
			state = exitErr.ProcessState
		}
	}

	if state == nil {
		return ExitStatus{Code: -1}
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signaled: true, Signal: ws.Signal()}
	}

	return ExitStatus{Code: state.ExitCode()}
}

// CloseFds closes the engine's three descriptors. Only the first call acts.
func (w *Worker) CloseFds() error {
	w.closeOnce.Do(func() {
		w.closeErr = stderrors.Join(
			unix.Close(w.WriteFd),
			unix.Close(w.ReadFd),
			unix.Close(w.DiagFd),
		)
	})

	return w.closeErr
}
