package testworker

import (
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

type method func(args map[string]any) (any, error)

var methods map[string]method

func init() {
	methods = map[string]method{
		"ping":             func(map[string]any) (any, error) { return "pong", nil },
		"echo":             echo,
		"crash":            crash,
		"memstat":          memstat,
		"stat":             statWith(unix.Stat),
		"lstat":            statWith(unix.Lstat),
		"statvfs":          statvfs,
		"lexists":          lexists,
		"access":           access,
		"fsyncPath":        fsyncPath,
		"mkdir":            mkdir,
		"listdir":          listdir,
		"unlink":           pathOp(unix.Unlink),
		"rmdir":            pathOp(unix.Rmdir),
		"rename":           twoPathOp(unix.Rename),
		"link":             twoPathOp(unix.Link),
		"symlink":          twoPathOp(unix.Symlink),
		"chmod":            chmod,
		"readfile":         readfile,
		"writefile":        writefile,
		"glob":             glob,
		"touch":            touch,
		"truncate":         truncate,
		"probe_block_size": probeBlockSize,
	}
}

func call(name string, args map[string]any) (any, error) {
	m, ok := methods[name]
	if !ok {
		return nil, syscall.ENOSYS
	}

	return m(args)
}

func argString(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok {
		return "", syscall.EINVAL
	}

	return v, nil
}

// argInt accepts JSON numbers, which decode as float64.
func argInt(args map[string]any, name string) (int64, error) {
	v, ok := args[name].(float64)
	if !ok {
		return 0, syscall.EINVAL
	}

	return int64(v), nil
}

func argBool(args map[string]any, name string) (bool, error) {
	v, ok := args[name].(bool)
	if !ok {
		return false, syscall.EINVAL
	}

	return v, nil
}

func echo(args map[string]any) (any, error) {
	text, err := argString(args, "text")
	if err != nil {
		return nil, err
	}

	sleep, err := argInt(args, "sleep")
	if err != nil {
		return nil, err
	}

	if sleep > 0 {
		time.Sleep(time.Duration(sleep) * time.Second)
	}

	return text, nil
}

func crash(map[string]any) (any, error) {
	os.Exit(CrashExitCode)

	return nil, nil
}

func memstat(map[string]any) (any, error) {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return nil, err
	}

	var size, rss, shr uint64
	if _, err := fmt.Sscanf(string(data), "%d %d %d", &size, &rss, &shr); err != nil {
		return nil, syscall.EINVAL
	}

	return map[string]uint64{"size": size, "rss": rss, "shr": shr}, nil
}

// double encodes d the way the real worker's JSON generator does: integral
// values keep a trailing ".0".
func double(d float64) json.RawMessage {
	s := strconv.FormatFloat(d, 'g', 17, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}

	return json.RawMessage(s)
}

func statWith(stat func(string, *unix.Stat_t) error) method {
	return func(args map[string]any) (any, error) {
		path, err := argString(args, "path")
		if err != nil {
			return nil, err
		}

		var st unix.Stat_t
		if err := stat(path, &st); err != nil {
			return nil, err
		}

		return map[string]any{
			"st_ino":    st.Ino,
			"st_dev":    st.Dev,
			"st_mode":   st.Mode,
			"st_nlink":  st.Nlink,
			"st_uid":    st.Uid,
			"st_gid":    st.Gid,
			"st_size":   st.Size,
			"st_atime":  double(float64(st.Atim.Sec)),
			"st_mtime":  double(float64(st.Mtim.Sec)),
			"st_ctime":  double(float64(st.Ctim.Sec)),
			"st_blocks": st.Blocks,
		}, nil
	}
}

func statvfs(args map[string]any) (any, error) {
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}

	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return nil, err
	}

	return map[string]any{
		"f_bsize":   int64(st.Bsize),
		"f_frsize":  int64(st.Frsize),
		"f_blocks":  int64(st.Blocks),
		"f_bfree":   int64(st.Bfree),
		"f_bavail":  int64(st.Bavail),
		"f_files":   int64(st.Files),
		"f_ffree":   int64(st.Ffree),
		"f_favail":  int64(st.Ffree),
		"f_fsid":    int64(uint64(uint32(st.Fsid.Val[0])) | uint64(uint32(st.Fsid.Val[1]))<<32),
		"f_flag":    int64(st.Flags),
		"f_namemax": double(float64(st.Namelen)),
	}, nil
}

func lexists(args map[string]any) (any, error) {
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}

	var st unix.Stat_t

	return unix.Lstat(path, &st) == nil, nil
}

func access(args map[string]any) (any, error) {
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}

	mode, err := argInt(args, "mode")
	if err != nil {
		return nil, err
	}

	if err := unix.Access(path, uint32(mode)); err != nil {
		return nil, err
	}

	return true, nil
}

func fsyncPath(args map[string]any) (any, error) {
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	return nil, unix.Fsync(fd)
}

func mkdir(args map[string]any) (any, error) {
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}

	mode, err := argInt(args, "mode")
	if err != nil {
		return nil, err
	}

	return nil, unix.Mkdir(path, uint32(mode))
}

func listdir(args map[string]any) (any, error) {
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, unwrapErrno(err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names, nil
}

func pathOp(op func(string) error) method {
	return func(args map[string]any) (any, error) {
		path, err := argString(args, "path")
		if err != nil {
			return nil, err
		}

		return nil, op(path)
	}
}

func twoPathOp(op func(string, string) error) method {
	return func(args map[string]any) (any, error) {
		oldpath, err := argString(args, "oldpath")
		if err != nil {
			return nil, err
		}

		newpath, err := argString(args, "newpath")
		if err != nil {
			return nil, err
		}

		return nil, op(oldpath, newpath)
	}
}

func chmod(args map[string]any) (any, error) {
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}

	mode, err := argInt(args, "mode")
	if err != nil {
		return nil, err
	}

	return nil, unix.Chmod(path, uint32(mode))
}

func readfile(args map[string]any) (any, error) {
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}

	if _, err := argBool(args, "direct"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, unwrapErrno(err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

func writefile(args map[string]any) (any, error) {
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}

	encoded, err := argString(args, "data")
	if err != nil {
		return nil, err
	}

	if _, err := argBool(args, "direct"); err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, syscall.EINVAL
	}

	return nil, unwrapErrno(os.WriteFile(path, data, 0o644))
}

func glob(args map[string]any) (any, error) {
	pattern, err := argString(args, "pattern")
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, syscall.EINVAL
	}

	if matches == nil {
		matches = []string{}
	}

	return matches, nil
}

const defaultFileMode = unix.S_IRUSR | unix.S_IWUSR | unix.S_IRGRP | unix.S_IROTH

func touch(args map[string]any) (any, error) {
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}

	flags, err := argInt(args, "flags")
	if err != nil {
		return nil, err
	}

	mode, err := argInt(args, "mode")
	if err != nil {
		return nil, err
	}

	if mode == 0 {
		mode = defaultFileMode
	}

	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CREAT|unix.O_CLOEXEC|int(flags), uint32(mode))
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	return nil, unix.Utimes(path, nil)
}

func truncate(args map[string]any) (any, error) {
	path, err := argString(args, "path")
	if err != nil {
		return nil, err
	}

	size, err := argInt(args, "size")
	if err != nil {
		return nil, err
	}

	mode, err := argInt(args, "mode")
	if err != nil {
		return nil, err
	}

	excl, err := argBool(args, "excl")
	if err != nil {
		return nil, err
	}

	if mode == 0 {
		mode = defaultFileMode
	}

	flags := unix.O_WRONLY | unix.O_CREAT | unix.O_CLOEXEC
	if excl {
		flags |= unix.O_EXCL
	}

	fd, err := unix.Open(path, flags, uint32(mode))
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	return nil, unix.Ftruncate(fd, size)
}

// probeBlockSize reports the filesystem block size of dir, after checking the
// directory is writable the same way the real probe does.
func probeBlockSize(args map[string]any) (any, error) {
	dir, err := argString(args, "dir")
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, unwrapErrno(err)
	}

	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return nil, err
	}

	return st.Bsize, nil
}

// unwrapErrno digs the errno out of an *os.PathError and friends.
func unwrapErrno(err error) error {
	if err == nil {
		return nil
	}

	if errno, ok := stderrors.AsType[syscall.Errno](err); ok {
		return errno
	}

	return syscall.EIO
}
