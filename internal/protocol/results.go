package protocol

import (
	"io/fs"
	"math"
	"time"

	"golang.org/x/sys/unix"
)

// StatResult is the result of the stat and lstat methods.
// Times are seconds since the epoch with whole-second precision.
type StatResult struct {
	Mode   uint32  `json:"st_mode"`
	Ino    uint64  `json:"st_ino"`
	Dev    uint64  `json:"st_dev"`
	Nlink  uint64  `json:"st_nlink"`
	UID    uint32  `json:"st_uid"`
	GID    uint32  `json:"st_gid"`
	Size   int64   `json:"st_size"`
	Atime  float64 `json:"st_atime"`
	Mtime  float64 `json:"st_mtime"`
	Ctime  float64 `json:"st_ctime"`
	Blocks int64   `json:"st_blocks"`
}

// FileMode converts the raw st_mode bits to an fs.FileMode.
func (s *StatResult) FileMode() fs.FileMode {
	mode := fs.FileMode(s.Mode & 0o777)

	switch s.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		mode |= fs.ModeDir
	case unix.S_IFLNK:
		mode |= fs.ModeSymlink
	case unix.S_IFIFO:
		mode |= fs.ModeNamedPipe
	case unix.S_IFSOCK:
		mode |= fs.ModeSocket
	case unix.S_IFBLK:
		mode |= fs.ModeDevice
	case unix.S_IFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	}

	if s.Mode&unix.S_ISUID != 0 {
		mode |= fs.ModeSetuid
	}

	if s.Mode&unix.S_ISGID != 0 {
		mode |= fs.ModeSetgid
	}

	if s.Mode&unix.S_ISVTX != 0 {
		mode |= fs.ModeSticky
	}

	return mode
}

// IsDir reports whether the path is a directory.
func (s *StatResult) IsDir() bool {
	return s.Mode&unix.S_IFMT == unix.S_IFDIR
}

// ModTime returns Mtime as a time.Time.
func (s *StatResult) ModTime() time.Time {
	return epochSeconds(s.Mtime)
}

func epochSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)

	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}

// StatvfsResult is the result of the statvfs method.
//
// Fields arrive as signed longs, so f_fsid may be negative. f_namemax is
// encoded as a double (255.0); use MaxNameLen for the integer value.
type StatvfsResult struct {
	Bsize   int64   `json:"f_bsize"`
	Frsize  int64   `json:"f_frsize"`
	Blocks  int64   `json:"f_blocks"`
	Bfree   int64   `json:"f_bfree"`
	Bavail  int64   `json:"f_bavail"`
	Files   int64   `json:"f_files"`
	Ffree   int64   `json:"f_ffree"`
	Favail  int64   `json:"f_favail"`
	Fsid    int64   `json:"f_fsid"`
	Flag    int64   `json:"f_flag"`
	Namemax float64 `json:"f_namemax"`
}

// MaxNameLen returns f_namemax as an integer.
func (s *StatvfsResult) MaxNameLen() int {
	return int(s.Namemax)
}

// MemStat is the result of the memstat method: worker memory in pages, as in /proc/self/statm.
type MemStat struct {
	Size uint64 `json:"size"`
	RSS  uint64 `json:"rss"`
	Shr  uint64 `json:"shr"`
}
