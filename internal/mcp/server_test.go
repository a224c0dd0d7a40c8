package mcp

import (
	"context"
	"errors"
	"testing"

	mcpgo "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// textOf returns the text of a single-content result.
func textOf(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()

	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(*mcpgo.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])

	return text.Text
}

func TestServerMetadata(t *testing.T) {
	server := NewServer("iopctl", "1.2.3")

	require.Equal(t, "iopctl", server.Name())
	require.Equal(t, "1.2.3", server.Version())
	require.Empty(t, server.Tools())
}

func TestServerToolsAndCallTool(t *testing.T) {
	server := NewServer("demo", "1.0.0")
	schema := SimpleSchema(map[string]string{"text": "string"})
	server.AddTool(
		NewTool("echo", "echoes text", schema),
		func(_ context.Context, req *mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			args, err := ParseArguments(req)
			if err != nil {
				return nil, err
			}

			text, _ := args["text"].(string)

			return TextResult("echo: " + text), nil
		},
	)
	server.AddTool(NewTool("another", "sorted first", nil),
		func(context.Context, *mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			return nil, nil
		})

	tools := server.Tools()
	require.Len(t, tools, 2)
	require.Equal(t, "another", tools[0].Name)
	require.Equal(t, "echo", tools[1].Name)
	require.Equal(t, "echoes text", tools[1].Description)

	result := server.CallTool(context.Background(), "echo", map[string]any{"text": "hello"})
	require.False(t, result.IsError)
	require.Equal(t, "echo: hello", textOf(t, result))

	empty := server.CallTool(context.Background(), "another", nil)
	require.False(t, empty.IsError)
	require.Empty(t, empty.Content)

	missing := server.CallTool(context.Background(), "unknown", map[string]any{})
	require.True(t, missing.IsError)
	require.Equal(t, "Tool not found: unknown", textOf(t, missing))
}

func TestServerCallTool_HandlerError(t *testing.T) {
	server := NewServer("demo", "1.0.0")
	server.AddTool(
		NewTool("fails", "always fails", nil),
		func(_ context.Context, _ *mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			return nil, errors.New("boom")
		},
	)

	result := server.CallTool(context.Background(), "fails", map[string]any{})

	require.True(t, result.IsError)
	require.Equal(t, "Tool execution failed: boom", textOf(t, result))
}

func TestServerSDKServer(t *testing.T) {
	server := NewServer("demo", "1.0.0")
	RegisterReadTools(server, &fakeFS{})

	require.NotNil(t, server.SDKServer())
}

func TestSimpleSchema(t *testing.T) {
	schema := SimpleSchema(map[string]string{
		"path":   "string",
		"direct": "bool",
		"names":  "[]string",
	}, "direct")

	require.Equal(t, "object", schema.Type)
	require.Equal(t, []string{"names", "path"}, schema.Required)
	require.Equal(t, "string", schema.Properties["path"].Type)
	require.Equal(t, "boolean", schema.Properties["direct"].Type)
	require.Equal(t, "array", schema.Properties["names"].Type)
	require.Equal(t, "string", schema.Properties["names"].Items.Type)
}

func TestGoTypeToJSONSchema(t *testing.T) {
	tests := []struct {
		name      string
		goType    string
		wantType  string
		wantItems *string
	}{
		{
			name:     "string",
			goType:   "string",
			wantType: "string",
		},
		{
			name:     "integer",
			goType:   "int64",
			wantType: "integer",
		},
		{
			name:     "number",
			goType:   "float64",
			wantType: "number",
		},
		{
			name:     "boolean",
			goType:   "bool",
			wantType: "boolean",
		},
		{
			name:      "array",
			goType:    "[]int",
			wantType:  "array",
			wantItems: strPtr("integer"),
		},
		{
			name:     "fallback",
			goType:   "customType",
			wantType: "string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := goTypeToJSONSchema(tt.goType)

			require.Equal(t, tt.wantType, got.Type)

			if tt.wantItems != nil {
				require.NotNil(t, got.Items)
				require.Equal(t, *tt.wantItems, got.Items.Type)
			}
		})
	}
}

func TestResultHelpersAndNewTool(t *testing.T) {
	textResult := TextResult("ok")
	require.False(t, textResult.IsError)
	require.Len(t, textResult.Content, 1)

	errorResult := ErrorResult("failed")
	require.True(t, errorResult.IsError)
	require.Len(t, errorResult.Content, 1)

	jsonResult := JSONResult(map[string]int{"size": 4096})
	require.False(t, jsonResult.IsError)
	require.JSONEq(t, `{"size": 4096}`, textOf(t, jsonResult))

	bad := JSONResult(make(chan int))
	require.True(t, bad.IsError)

	schema := SimpleSchema(map[string]string{"path": "string"})
	tool := NewTool("stat", "stats a path", schema)
	require.Equal(t, "stat", tool.Name)
	require.Equal(t, "stats a path", tool.Description)
	require.Equal(t, schema, tool.InputSchema)

	require.NotNil(t, NewTool("ping", "no input", nil).InputSchema)
}

func TestParseArguments(t *testing.T) {
	t.Run("nil request and empty args return empty map", func(t *testing.T) {
		args, err := ParseArguments(nil)
		require.NoError(t, err)
		require.Empty(t, args)

		args, err = ParseArguments(&mcpgo.CallToolRequest{Params: &mcpgo.CallToolParamsRaw{}})
		require.NoError(t, err)
		require.Empty(t, args)
	})

	t.Run("valid arguments are parsed", func(t *testing.T) {
		req := &mcpgo.CallToolRequest{
			Params: &mcpgo.CallToolParamsRaw{
				Arguments: []byte(`{"path":"/tmp","mode":493}`),
			},
		}

		args, err := ParseArguments(req)
		require.NoError(t, err)
		require.Equal(t, "/tmp", args["path"])
		require.Equal(t, float64(493), args["mode"])
	})

	t.Run("invalid json returns wrapped error", func(t *testing.T) {
		req := &mcpgo.CallToolRequest{
			Params: &mcpgo.CallToolParamsRaw{
				Arguments: []byte(`{"path":`),
			},
		}

		args, err := ParseArguments(req)
		require.Error(t, err)
		require.Nil(t, args)
		require.Contains(t, err.Error(), "failed to unmarshal arguments")
	})
}

func strPtr(s string) *string {
	return &s
}
