package ioprocess

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	internalmcp "github.com/wagiedev/ioprocess-go/internal/mcp"
)

// Compile-time verification that Client can back the MCP tools.
var _ internalmcp.FS = (*Client)(nil)

// MCPTools is a registry of MCP tools backed by a Client.
// Tools can be called directly with CallTool or served with Serve.
type MCPTools = internalmcp.Server

// MCPOption configures the tools exposed over MCP.
type MCPOption func(*mcpOptions)

type mcpOptions struct {
	write bool
}

// WithWriteTools also exposes the tools that change the filesystem:
// mkdir, unlink, rmdir, rename, writefile, touch and truncate.
func WithWriteTools() MCPOption {
	return func(o *mcpOptions) {
		o.write = true
	}
}

// NewMCPTools registers the client's operations as MCP tools.
//
// Example:
//
//	tools := ioprocess.NewMCPTools(client, "iopctl", "1.0.0")
//	if err := tools.Serve(ctx, &mcp.StdioTransport{}); err != nil {
//	    log.Fatal(err)
//	}
func NewMCPTools(c *Client, name, version string, opts ...MCPOption) *MCPTools {
	var options mcpOptions
	for _, opt := range opts {
		opt(&options)
	}

	tools := internalmcp.NewServer(name, version)
	internalmcp.RegisterReadTools(tools, c)

	if options.write {
		internalmcp.RegisterWriteTools(tools, c)
	}

	return tools
}

// NewMCPServer returns an MCP server exposing the client's operations as tools.
// Worker errors are reported as tool error results, not protocol errors.
func NewMCPServer(c *Client, name, version string, opts ...MCPOption) *mcp.Server {
	return NewMCPTools(c, name, version, opts...).SDKServer()
}
