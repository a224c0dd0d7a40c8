package mcp

import (
	"context"
	"encoding/base64"
	"io/fs"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/ioprocess-go/internal/protocol"
)

// FS is the subset of the ioprocess client the tools call into.
type FS interface {
	Ping(ctx context.Context) error
	Stat(ctx context.Context, path string) (*protocol.StatResult, error)
	Lstat(ctx context.Context, path string) (*protocol.StatResult, error)
	Statvfs(ctx context.Context, path string) (*protocol.StatvfsResult, error)
	Lexists(ctx context.Context, path string) (bool, error)
	Listdir(ctx context.Context, path string) ([]string, error)
	Glob(ctx context.Context, pattern string) ([]string, error)
	ReadFile(ctx context.Context, path string, direct bool) ([]byte, error)
	ProbeBlockSize(ctx context.Context, dir string) (int, error)
	Memstat(ctx context.Context) (*protocol.MemStat, error)

	Mkdir(ctx context.Context, path string, mode fs.FileMode) error
	Unlink(ctx context.Context, path string) error
	Rmdir(ctx context.Context, path string) error
	Rename(ctx context.Context, oldpath, newpath string) error
	WriteFile(ctx context.Context, path string, data []byte, direct bool) error
	Touch(ctx context.Context, path string, flags int, mode fs.FileMode) error
	Truncate(ctx context.Context, path string, size int64, mode fs.FileMode, excl bool) error
}

// Default modes used when a mutating tool is called without one.
const (
	defaultDirMode  = 0o775
	defaultFileMode = 0o644
)

// toolFunc handles one call with already parsed arguments.
type toolFunc func(ctx context.Context, fsys FS, args map[string]any) *mcp.CallToolResult

// handler adapts a toolFunc to the SDK handler signature.
func handler(fsys FS, fn toolFunc) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := ParseArguments(req)
		if err != nil {
			return ErrorResult(err.Error()), nil
		}

		return fn(ctx, fsys, args), nil
	}
}

// errorOr reports err as an error result, otherwise encodes v as JSON.
func errorOr(v any, err error) *mcp.CallToolResult {
	if err != nil {
		return ErrorResult(err.Error())
	}

	return JSONResult(v)
}

var pathSchema = map[string]string{"path": "string"}

// RegisterReadTools adds the tools that only inspect the filesystem.
func RegisterReadTools(s *Server, fsys FS) {
	s.AddTool(NewTool("ping", "Check that the ioprocess worker answers", nil),
		handler(fsys, func(ctx context.Context, fsys FS, _ map[string]any) *mcp.CallToolResult {
			if err := fsys.Ping(ctx); err != nil {
				return ErrorResult(err.Error())
			}

			return TextResult("pong")
		}))

	s.AddTool(NewTool("stat", "Return stat(2) information for a path, following symlinks", SimpleSchema(pathSchema)),
		handler(fsys, withPath(func(ctx context.Context, fsys FS, path string) *mcp.CallToolResult {
			return errorOr(fsys.Stat(ctx, path))
		})))

	s.AddTool(NewTool("lstat", "Return lstat(2) information for a path", SimpleSchema(pathSchema)),
		handler(fsys, withPath(func(ctx context.Context, fsys FS, path string) *mcp.CallToolResult {
			return errorOr(fsys.Lstat(ctx, path))
		})))

	s.AddTool(NewTool("statvfs", "Return statistics of the filesystem holding a path", SimpleSchema(pathSchema)),
		handler(fsys, withPath(func(ctx context.Context, fsys FS, path string) *mcp.CallToolResult {
			return errorOr(fsys.Statvfs(ctx, path))
		})))

	s.AddTool(NewTool("lexists", "Report whether a path exists without following a final symlink", SimpleSchema(pathSchema)),
		handler(fsys, withPath(func(ctx context.Context, fsys FS, path string) *mcp.CallToolResult {
			return errorOr(fsys.Lexists(ctx, path))
		})))

	s.AddTool(NewTool("listdir", "List the names in a directory", SimpleSchema(pathSchema)),
		handler(fsys, withPath(func(ctx context.Context, fsys FS, path string) *mcp.CallToolResult {
			return errorOr(fsys.Listdir(ctx, path))
		})))

	s.AddTool(NewTool("glob", "Return the paths matching a shell pattern", SimpleSchema(map[string]string{"pattern": "string"})),
		handler(fsys, func(ctx context.Context, fsys FS, args map[string]any) *mcp.CallToolResult {
			pattern, err := stringArg(args, "pattern")
			if err != nil {
				return ErrorResult(err.Error())
			}

			return errorOr(fsys.Glob(ctx, pattern))
		}))

	s.AddTool(NewTool("readfile", "Read a file. Text is returned as is, binary content as base64",
		SimpleSchema(map[string]string{"path": "string", "direct": "bool"}, "direct")),
		handler(fsys, readFile))

	s.AddTool(NewTool("probe_block_size", "Probe the block size of the filesystem holding a writable directory",
		SimpleSchema(map[string]string{"dir": "string"})),
		handler(fsys, func(ctx context.Context, fsys FS, args map[string]any) *mcp.CallToolResult {
			dir, err := stringArg(args, "dir")
			if err != nil {
				return ErrorResult(err.Error())
			}

			return errorOr(fsys.ProbeBlockSize(ctx, dir))
		}))

	s.AddTool(NewTool("memstat", "Report the worker's memory usage in pages", nil),
		handler(fsys, func(ctx context.Context, fsys FS, _ map[string]any) *mcp.CallToolResult {
			return errorOr(fsys.Memstat(ctx))
		}))
}

// RegisterWriteTools adds the tools that change the filesystem.
func RegisterWriteTools(s *Server, fsys FS) {
	s.AddTool(NewTool("mkdir", "Create a directory", SimpleSchema(map[string]string{"path": "string", "mode": "int"}, "mode")),
		handler(fsys, func(ctx context.Context, fsys FS, args map[string]any) *mcp.CallToolResult {
			path, err := stringArg(args, "path")
			if err != nil {
				return ErrorResult(err.Error())
			}

			mode, err := intArg(args, "mode", defaultDirMode)
			if err != nil {
				return ErrorResult(err.Error())
			}

			return done(fsys.Mkdir(ctx, path, fs.FileMode(mode)))
		}))

	s.AddTool(NewTool("unlink", "Remove a file", SimpleSchema(pathSchema)),
		handler(fsys, withPath(func(ctx context.Context, fsys FS, path string) *mcp.CallToolResult {
			return done(fsys.Unlink(ctx, path))
		})))

	s.AddTool(NewTool("rmdir", "Remove an empty directory", SimpleSchema(pathSchema)),
		handler(fsys, withPath(func(ctx context.Context, fsys FS, path string) *mcp.CallToolResult {
			return done(fsys.Rmdir(ctx, path))
		})))

	s.AddTool(NewTool("rename", "Rename a path", SimpleSchema(map[string]string{"oldpath": "string", "newpath": "string"})),
		handler(fsys, func(ctx context.Context, fsys FS, args map[string]any) *mcp.CallToolResult {
			oldpath, err := stringArg(args, "oldpath")
			if err != nil {
				return ErrorResult(err.Error())
			}

			newpath, err := stringArg(args, "newpath")
			if err != nil {
				return ErrorResult(err.Error())
			}

			return done(fsys.Rename(ctx, oldpath, newpath))
		}))

	s.AddTool(NewTool("writefile", "Replace the contents of a file. Set base64 when content is base64 encoded",
		SimpleSchema(map[string]string{"path": "string", "content": "string", "base64": "bool", "direct": "bool"}, "base64", "direct")),
		handler(fsys, writeFile))

	s.AddTool(NewTool("touch", "Create a file if needed and set its times to now",
		SimpleSchema(map[string]string{"path": "string", "mode": "int"}, "mode")),
		handler(fsys, func(ctx context.Context, fsys FS, args map[string]any) *mcp.CallToolResult {
			path, err := stringArg(args, "path")
			if err != nil {
				return ErrorResult(err.Error())
			}

			mode, err := intArg(args, "mode", defaultFileMode)
			if err != nil {
				return ErrorResult(err.Error())
			}

			return done(fsys.Touch(ctx, path, 0, fs.FileMode(mode)))
		}))

	s.AddTool(NewTool("truncate", "Create a file if needed and set its size",
		SimpleSchema(map[string]string{"path": "string", "size": "int", "mode": "int", "excl": "bool"}, "mode", "excl")),
		handler(fsys, func(ctx context.Context, fsys FS, args map[string]any) *mcp.CallToolResult {
			path, err := stringArg(args, "path")
			if err != nil {
				return ErrorResult(err.Error())
			}

			size, err := intArg(args, "size", -1)
			if err != nil {
				return ErrorResult(err.Error())
			}

			if size < 0 {
				return ErrorResult(`missing or invalid "size" argument`)
			}

			mode, err := intArg(args, "mode", defaultFileMode)
			if err != nil {
				return ErrorResult(err.Error())
			}

			excl, err := boolArg(args, "excl")
			if err != nil {
				return ErrorResult(err.Error())
			}

			return done(fsys.Truncate(ctx, path, size, fs.FileMode(mode), excl))
		}))
}

func withPath(fn func(ctx context.Context, fsys FS, path string) *mcp.CallToolResult) toolFunc {
	return func(ctx context.Context, fsys FS, args map[string]any) *mcp.CallToolResult {
		path, err := stringArg(args, "path")
		if err != nil {
			return ErrorResult(err.Error())
		}

		return fn(ctx, fsys, path)
	}
}

func done(err error) *mcp.CallToolResult {
	if err != nil {
		return ErrorResult(err.Error())
	}

	return TextResult("ok")
}

func readFile(ctx context.Context, fsys FS, args map[string]any) *mcp.CallToolResult {
	path, err := stringArg(args, "path")
	if err != nil {
		return ErrorResult(err.Error())
	}

	direct, err := boolArg(args, "direct")
	if err != nil {
		return ErrorResult(err.Error())
	}

	data, err := fsys.ReadFile(ctx, path, direct)
	if err != nil {
		return ErrorResult(err.Error())
	}

	if utf8.Valid(data) {
		return TextResult(string(data))
	}

	return JSONResult(map[string]string{"base64": base64.StdEncoding.EncodeToString(data)})
}

func writeFile(ctx context.Context, fsys FS, args map[string]any) *mcp.CallToolResult {
	path, err := stringArg(args, "path")
	if err != nil {
		return ErrorResult(err.Error())
	}

	content, ok := args["content"].(string)
	if !ok {
		return ErrorResult(`missing or invalid "content" argument`)
	}

	encoded, err := boolArg(args, "base64")
	if err != nil {
		return ErrorResult(err.Error())
	}

	direct, err := boolArg(args, "direct")
	if err != nil {
		return ErrorResult(err.Error())
	}

	data := []byte(content)
	if encoded {
		if data, err = base64.StdEncoding.DecodeString(content); err != nil {
			return ErrorResult("content is not valid base64: " + err.Error())
		}
	}

	return done(fsys.WriteFile(ctx, path, data, direct))
}
