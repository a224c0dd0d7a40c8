package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	ioprocess "github.com/wagiedev/ioprocess-go"
)

func newMCPCmd(g *globalFlags) *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve filesystem tools over MCP on stdio",
		Long:  "Serve the worker's filesystem operations as Model Context Protocol tools on stdin/stdout.\nOnly read tools are exposed unless --write is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, c *ioprocess.Client) error {
				var opts []ioprocess.MCPOption
				if write {
					opts = append(opts, ioprocess.WithWriteTools())
				}

				tools := ioprocess.NewMCPTools(c, "iopctl", version, opts...)

				err := tools.Serve(ctx, &mcp.StdioTransport{})
				if err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("mcp: %w", err)
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "also expose tools that change the filesystem")

	return cmd
}
