package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	ioprocess "github.com/wagiedev/ioprocess-go"
)

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	executable string
	timeout    time.Duration
	maxThreads int
	trace      bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "iopctl",
		Short:         "Run filesystem operations through an ioprocess worker",
		Long:          "iopctl starts an ioprocess worker and runs one operation through it.\nA hung filesystem makes the command time out instead of blocking forever.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("iopctl {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.executable, "ioprocess", "", "path to the ioprocess executable (discovered when empty)")
	pf.DurationVar(&g.timeout, "timeout", 30*time.Second, "per-operation timeout")
	pf.IntVar(&g.maxThreads, "max-threads", 0, "worker thread limit, 0 lets the worker decide")
	pf.BoolVar(&g.trace, "trace", false, "enable worker request tracing")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(
		newPingCmd(g),
		newEchoCmd(g),
		newStatCmd(g),
		newLsCmd(g),
		newCatCmd(g),
		newProbeBlockSizeCmd(g),
		newMemstatCmd(g),
		newMCPCmd(g),
	)

	return cmd
}

// options converts the persistent flags into client options.
func (g *globalFlags) options(cmd *cobra.Command) []ioprocess.Option {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}

	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	opts := []ioprocess.Option{
		ioprocess.WithLogger(log),
		ioprocess.WithTimeout(g.timeout),
		ioprocess.WithMaxThreads(g.maxThreads),
		ioprocess.WithTrace(g.trace),
	}

	if g.executable != "" {
		opts = append(opts, ioprocess.WithExecutable(g.executable))
	}

	return opts
}

// run starts a client for the duration of fn.
func (g *globalFlags) run(cmd *cobra.Command, fn func(ctx context.Context, c *ioprocess.Client) error) error {
	ctx := cmd.Context()

	return ioprocess.WithClient(ctx, func(c *ioprocess.Client) error {
		return fn(ctx, c)
	}, g.options(cmd)...)
}
