package ioprocess

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"io/fs"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wagiedev/ioprocess-go/internal/errors"
)

// DefaultMkdirMode is the mode Mkdir callers use when they have no better choice (rwxrwxr-x).
const DefaultMkdirMode fs.FileMode = 0o775

// Access modes understood by Access.
const (
	AccessExists  = unix.F_OK
	AccessRead    = unix.R_OK
	AccessWrite   = unix.W_OK
	AccessExecute = unix.X_OK
)

// unixMode converts an fs.FileMode to the st_mode permission bits the worker expects.
func unixMode(mode fs.FileMode) uint32 {
	m := uint32(mode.Perm())

	if mode&fs.ModeSetuid != 0 {
		m |= unix.S_ISUID
	}

	if mode&fs.ModeSetgid != 0 {
		m |= unix.S_ISGID
	}

	if mode&fs.ModeSticky != 0 {
		m |= unix.S_ISVTX
	}

	return m
}

// ===== Diagnostics =====

// Ping checks that the worker answers.
func (c *Client) Ping(ctx context.Context) error {
	var pong string

	return c.call(ctx, "ping", nil, &pong)
}

// Echo returns text after the worker sleeps for sleep. The worker sleeps in
// whole seconds, so sleep must be a non-negative multiple of time.Second.
func (c *Client) Echo(ctx context.Context, text string, sleep time.Duration) (string, error) {
	if sleep < 0 || sleep%time.Second != 0 {
		return "", fmt.Errorf("echo sleep %s is not a whole number of seconds", sleep)
	}

	var out string

	err := c.call(ctx, "echo", map[string]any{
		"text":  text,
		"sleep": int64(sleep / time.Second),
	}, &out)

	return out, err
}

// Crash asks the worker to exit abruptly. It reports whether the call ended
// with the crash error, which is how a successful crash looks to the caller.
func (c *Client) Crash(ctx context.Context) bool {
	err := c.call(ctx, "crash", nil, nil)
	_, crashed := stderrors.AsType[*errors.CrashError](err)

	return crashed
}

// Memstat returns the worker's memory usage.
func (c *Client) Memstat(ctx context.Context) (*MemStat, error) {
	var out MemStat
	if err := c.call(ctx, "memstat", nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ===== Metadata =====

// Stat returns the stat(2) result for path, following symlinks.
func (c *Client) Stat(ctx context.Context, path string) (*StatResult, error) {
	return c.stat(ctx, "stat", path)
}

// Lstat returns the lstat(2) result for path.
func (c *Client) Lstat(ctx context.Context, path string) (*StatResult, error) {
	return c.stat(ctx, "lstat", path)
}

func (c *Client) stat(ctx context.Context, method, path string) (*StatResult, error) {
	var out StatResult
	if err := c.call(ctx, method, map[string]any{"path": path}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Statvfs returns filesystem statistics for the filesystem holding path.
func (c *Client) Statvfs(ctx context.Context, path string) (*StatvfsResult, error) {
	var out StatvfsResult
	if err := c.call(ctx, "statvfs", map[string]any{"path": path}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// PathExists reports whether path is readable, and writable too when asked.
// A failed check is retried once before giving up.
func (c *Client) PathExists(ctx context.Context, path string, writable bool) bool {
	mode := uint32(AccessRead)
	if writable {
		mode |= AccessWrite
	}

	if c.Access(ctx, path, mode) {
		return true
	}

	return c.Access(ctx, path, mode)
}

// Lexists reports whether path exists without following a final symlink.
func (c *Client) Lexists(ctx context.Context, path string) (bool, error) {
	var out bool
	err := c.call(ctx, "lexists", map[string]any{"path": path}, &out)

	return out, err
}

// Access runs access(2) with mode. Any failure, including a transport
// failure, reports false.
func (c *Client) Access(ctx context.Context, path string, mode uint32) bool {
	var out bool
	if err := c.call(ctx, "access", map[string]any{"path": path, "mode": mode}, &out); err != nil {
		return false
	}

	return out
}

// Glob returns the paths matching pattern.
func (c *Client) Glob(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	err := c.call(ctx, "glob", map[string]any{"pattern": pattern}, &out)

	return out, err
}

// Listdir returns the names in the directory at path.
func (c *Client) Listdir(ctx context.Context, path string) ([]string, error) {
	var out []string
	err := c.call(ctx, "listdir", map[string]any{"path": path}, &out)

	return out, err
}

// ProbeBlockSize returns the block size of the filesystem holding dir.
// The worker needs write access to dir. A result of 1 means the size could not be detected.
func (c *Client) ProbeBlockSize(ctx context.Context, dir string) (int, error) {
	var out int
	err := c.call(ctx, "probe_block_size", map[string]any{"dir": dir}, &out)

	return out, err
}

// ===== Namespace =====

// Mkdir creates a directory.
func (c *Client) Mkdir(ctx context.Context, path string, mode fs.FileMode) error {
	return c.call(ctx, "mkdir", map[string]any{"path": path, "mode": unixMode(mode)}, nil)
}

// Unlink removes a file.
func (c *Client) Unlink(ctx context.Context, path string) error {
	return c.call(ctx, "unlink", map[string]any{"path": path}, nil)
}

// Rmdir removes an empty directory.
func (c *Client) Rmdir(ctx context.Context, path string) error {
	return c.call(ctx, "rmdir", map[string]any{"path": path}, nil)
}

// Rename renames oldpath to newpath.
func (c *Client) Rename(ctx context.Context, oldpath, newpath string) error {
	return c.call(ctx, "rename", linkArgs(oldpath, newpath), nil)
}

// Link creates newpath as a hard link to oldpath.
func (c *Client) Link(ctx context.Context, oldpath, newpath string) error {
	return c.call(ctx, "link", linkArgs(oldpath, newpath), nil)
}

// Symlink creates newpath as a symbolic link to oldpath.
func (c *Client) Symlink(ctx context.Context, oldpath, newpath string) error {
	return c.call(ctx, "symlink", linkArgs(oldpath, newpath), nil)
}

func linkArgs(oldpath, newpath string) map[string]any {
	return map[string]any{"oldpath": oldpath, "newpath": newpath}
}

// Chmod changes the mode of path.
func (c *Client) Chmod(ctx context.Context, path string, mode fs.FileMode) error {
	return c.call(ctx, "chmod", map[string]any{"path": path, "mode": unixMode(mode)}, nil)
}

// ===== Data =====

// FsyncPath opens path and fsyncs it.
func (c *Client) FsyncPath(ctx context.Context, path string) error {
	return c.call(ctx, "fsyncPath", map[string]any{"path": path}, nil)
}

// ReadFile returns the contents of path. With direct, the worker reads with O_DIRECT.
func (c *Client) ReadFile(ctx context.Context, path string, direct bool) ([]byte, error) {
	var encoded string
	if err := c.call(ctx, "readfile", map[string]any{"path": path, "direct": direct}, &encoded); err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &errors.DecodeError{Method: "readfile", Raw: encoded, Err: err}
	}

	return data, nil
}

// ReadLines returns the lines of path without their line terminators.
// "\n", "\r\n" and a lone "\r" all end a line.
func (c *Client) ReadLines(ctx context.Context, path string, direct bool) ([]string, error) {
	data, err := c.ReadFile(ctx, path, direct)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, bytes.Count(data, []byte{'\n'})+1)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), len(data)+1)
	scanner.Split(scanLines)

	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines, scanner.Err()
}

// scanLines is bufio.ScanLines extended to treat a lone '\r' as a terminator.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	i := bytes.IndexAny(data, "\r\n")

	switch {
	case i < 0 && atEOF:
		return len(data), data, nil
	case i < 0:
		return 0, nil, nil
	case data[i] == '\n':
		return i + 1, data[:i], nil
	case i+1 < len(data) && data[i+1] == '\n':
		return i + 2, data[:i], nil
	case i+1 < len(data) || atEOF:
		return i + 1, data[:i], nil
	default:
		// A trailing '\r' may be the first half of "\r\n".
		return 0, nil, nil
	}
}

// WriteFile replaces the contents of path with data. With direct, the worker writes with O_DIRECT.
func (c *Client) WriteFile(ctx context.Context, path string, data []byte, direct bool) error {
	return c.call(ctx, "writefile", map[string]any{
		"path":   path,
		"data":   base64.StdEncoding.EncodeToString(data),
		"direct": direct,
	}, nil)
}

// Touch creates path if needed, opening it with the extra open(2) flags, and
// sets its times to now. A zero mode lets the worker pick rw-r--r--.
func (c *Client) Touch(ctx context.Context, path string, flags int, mode fs.FileMode) error {
	return c.call(ctx, "touch", map[string]any{
		"path":  path,
		"flags": flags,
		"mode":  unixMode(mode),
	}, nil)
}

// Truncate creates path if needed and sets its size. With excl, an existing
// path is an error.
func (c *Client) Truncate(ctx context.Context, path string, size int64, mode fs.FileMode, excl bool) error {
	return c.call(ctx, "truncate", map[string]any{
		"path": path,
		"size": size,
		"mode": unixMode(mode),
		"excl": excl,
	}, nil)
}
