//go:build !unix

package scanner

import "io/fs"

func statFields(info fs.FileInfo) (ino, dev, rdev uint64, nlink, uid, gid uint32, ok bool) {
	return 0, 0, 0, 0, 0, 0, false
}
