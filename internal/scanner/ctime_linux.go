//go:build linux

package scanner

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// creationTime returns the birth time when the filesystem records one and
// falls back to the modification time.
func creationTime(path string, info fs.FileInfo) time.Time {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx); err != nil {
		return info.ModTime()
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		return info.ModTime()
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
}
