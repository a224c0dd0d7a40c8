package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	ioprocess "github.com/wagiedev/ioprocess-go"
)

func newPingCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the worker answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, c *ioprocess.Client) error {
				start := time.Now()
				if err := c.Ping(ctx); err != nil {
					return fmt.Errorf("ping: %w", err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "pong from pid %d in %s\n", c.Pid(), time.Since(start).Round(time.Microsecond))

				return nil
			})
		},
	}
}

func newEchoCmd(g *globalFlags) *cobra.Command {
	var sleep time.Duration

	cmd := &cobra.Command{
		Use:   "echo <text>",
		Short: "Have the worker echo text back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *ioprocess.Client) error {
				out, err := c.Echo(ctx, args[0], sleep)
				if err != nil {
					return fmt.Errorf("echo: %w", err)
				}

				fmt.Fprintln(cmd.OutOrStdout(), out)

				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&sleep, "sleep", 0, "delay the answer, in whole seconds")

	return cmd
}

func newStatCmd(g *globalFlags) *cobra.Command {
	var lstat bool

	cmd := &cobra.Command{
		Use:   "stat <path> [path...]",
		Short: "Print mode, size and modification time of paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *ioprocess.Client) error {
				stat := c.Stat
				if lstat {
					stat = c.Lstat
				}

				for _, path := range args {
					st, err := stat(ctx, path)
					if err != nil {
						return fmt.Errorf("stat: %w", err)
					}

					fmt.Fprintf(cmd.OutOrStdout(), "%s %12d %s %s\n",
						st.FileMode(), st.Size, st.ModTime().UTC().Format(time.RFC3339), path)
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&lstat, "lstat", false, "do not follow a final symlink")

	return cmd
}

func newLsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <dir>",
		Short: "List a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *ioprocess.Client) error {
				names, err := c.Listdir(ctx, args[0])
				if err != nil {
					return fmt.Errorf("ls: %w", err)
				}

				slices.Sort(names)

				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}

				return nil
			})
		},
	}
}

func newCatCmd(g *globalFlags) *cobra.Command {
	var direct bool

	cmd := &cobra.Command{
		Use:   "cat <path> [path...]",
		Short: "Print file contents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *ioprocess.Client) error {
				for _, path := range args {
					data, err := c.ReadFile(ctx, path, direct)
					if err != nil {
						return fmt.Errorf("cat: %w", err)
					}

					if _, err := cmd.OutOrStdout().Write(data); err != nil {
						return err
					}
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&direct, "direct", false, "read with O_DIRECT")

	return cmd
}

func newProbeBlockSizeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe-block-size <dir>",
		Short: "Probe the block size of the filesystem holding a writable directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *ioprocess.Client) error {
				size, err := c.ProbeBlockSize(ctx, args[0])
				if err != nil {
					return fmt.Errorf("probe-block-size: %w", err)
				}

				fmt.Fprintln(cmd.OutOrStdout(), size)

				return nil
			})
		},
	}
}

func newMemstatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "memstat",
		Short: "Print the worker's memory usage in pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, c *ioprocess.Client) error {
				mem, err := c.Memstat(ctx)
				if err != nil {
					return fmt.Errorf("memstat: %w", err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "size=%d rss=%d shr=%d\n", mem.Size, mem.RSS, mem.Shr)

				return nil
			})
		},
	}
}
