//go:build unix

package scanner

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// statFields extracts the raw inode/device/nlink/uid/gid a real OS file
// carries in its Stat_t, for hardlink bookkeeping (two entries with the
// same RawDevice+RawInode are the same file). info.Sys() on a real
// filesystem source is *unix.Stat_t; other io/fs.FS implementations (e.g.
// an in-memory test tree) report ok=false and the caller falls back to
// treating every entry as nlink 1.
func statFields(info fs.FileInfo) (ino, dev, rdev uint64, nlink, uid, gid uint32, ok bool) {
	st, ok := info.Sys().(*unix.Stat_t)
	if !ok {
		return 0, 0, 0, 0, 0, 0, false
	}
	return uint64(st.Ino), uint64(st.Dev), uint64(st.Rdev), uint32(st.Nlink), st.Uid, st.Gid, true
}
