// Package ioprocess runs filesystem operations in a supervised helper process.
//
// Calls such as stat or unlink on a hung NFS mount can block a thread forever.
// A Client sends them to a long-lived ioprocess worker over anonymous pipes
// instead, so the caller only ever waits as long as its timeout. If the worker
// dies, every call it still owed fails with a *CrashError and a fresh worker
// takes over for the calls that follow.
//
// # Basic Usage
//
//	ctx := context.Background()
//	client, err := ioprocess.New(ctx,
//	    ioprocess.WithMaxThreads(10),
//	    ioprocess.WithTimeout(30*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	names, err := client.Listdir(ctx, "/rhev/data-center/mnt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Or let WithClient manage the lifecycle:
//
//	err := ioprocess.WithClient(ctx, func(c *ioprocess.Client) error {
//	    return c.Touch(ctx, "/var/run/ready", 0, 0o644)
//	})
//
// # Logging
//
// For detailed operation tracking, use WithLogger. Diagnostic lines written
// by the worker are re-emitted through the same logger with component=worker:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
//	client, err := ioprocess.New(ctx, ioprocess.WithLogger(logger))
//
// # Error Handling
//
// Worker errors carry an errno and match the host's syscall errors:
//
//	_, err := client.Stat(ctx, path)
//	switch {
//	case errors.Is(err, fs.ErrNotExist):
//	    // missing
//	case errors.Is(err, ioprocess.ErrTimeout):
//	    // the worker is stuck on this path; the client is still usable
//	}
//	if crashErr, ok := errors.AsType[*ioprocess.CrashError](err); ok {
//	    log.Printf("worker died during %s", crashErr.Method)
//	}
//
// # Configuration
//
// Launch settings can also come from the environment. Explicit options win:
//
//	IOPROCESS_PATH              path to the ioprocess binary
//	IOPROCESS_TASKSET_PATH      taskset(1) used for CPU pinning
//	IOPROCESS_TRACE             enable worker tracing
//	IOPROCESS_DEBUG_TERMINATE   stop workers with SIGTERM instead of SIGKILL
//
// # Requirements
//
// The ioprocess executable must be installed. It is looked up in PATH and under
// /usr/libexec; use WithExecutable to point at a specific binary.
package ioprocess
