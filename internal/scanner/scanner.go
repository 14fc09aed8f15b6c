// Package scanner walks a source directory tree, classifies each entry,
// applies an optional filter and chmod transform, and records each
// entry's raw inode and device numbers (RawInode, RawDevice). It does not
// group hardlinked paths itself: every path is reported as its own Entry.
// Grounded on the teacher's fs.WalkDirFunc-shaped Writer.Add, generalized
// into an explicit FIFO queue of pending directories; visit is called
// once per entry that survives the filter.
package scanner

import (
	"fmt"
	"io/fs"
	"path"

	"github.com/dwarfs-go/dwarfs/internal/scanner/filter"
	"github.com/dwarfs-go/dwarfs/internal/scanner/transform"
)

// Kind classifies a scanned entry the way entry_factory does.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
	KindDevice
	KindOther
)

// Entry is one scanned filesystem object, ready for inode assignment.
type Entry struct {
	Path       string // slash-separated, relative to the scan root
	Name       string
	Kind       Kind
	Info       fs.FileInfo
	LinkTarget string // populated for KindSymlink
	RawInode   uint64 // st_ino (plus st_dev disambiguation via RawDevice)
	RawDevice  uint64
	Rdev       uint64 // encoded device number, KindDevice only
	Nlink      uint32
	Uid, Gid   uint32
}

// Options configures a scan.
type Options struct {
	Filter    *filter.Filter
	Chmod     *transform.Chmod
	FollowTop bool // not read by Scan; the root is walked as fsys presents it
}

// Scanner walks srcFS breadth-first from a FIFO of pending directories,
// applying Options.Filter/Chmod to each entry as it is produced.
type Scanner struct {
	fsys fs.FS
	opt  Options

	queue []string // pending directory paths, FIFO
}

// New creates a Scanner over fsys with the given options.
func New(fsys fs.FS, opt Options) *Scanner {
	return &Scanner{fsys: fsys, opt: opt}
}

// Scan walks the tree from root ("." for the whole source), calling
// visit for every entry that survives the filter, in breadth-first
// directory order (matching the original scanner's FIFO directory
// queue rather than depth-first fs.WalkDir order).
func (s *Scanner) Scan(root string, visit func(Entry) error) error {
	s.queue = append(s.queue, root)

	for len(s.queue) > 0 {
		dir := s.queue[0]
		s.queue = s.queue[1:]

		children, err := fs.ReadDir(s.fsys, dir)
		if err != nil {
			return fmt.Errorf("scanner: read dir %q: %w", dir, err)
		}

		for _, d := range children {
			childPath := d.Name()
			if dir != "." {
				childPath = path.Join(dir, d.Name())
			}

			if s.opt.Filter != nil && !s.opt.Filter.Match(childPath) {
				continue
			}

			entry, err := s.classify(childPath, d)
			if err != nil {
				return err
			}

			if s.opt.Chmod != nil {
				mode := transform.Mode(entry.Info.Mode().Perm())
				if entry.Info.Mode()&fs.ModeSetuid != 0 {
					mode |= 04000
				}
				if entry.Info.Mode()&fs.ModeSetgid != 0 {
					mode |= 02000
				}
				if entry.Info.Mode()&fs.ModeSticky != 0 {
					mode |= 01000
				}
				mode = s.opt.Chmod.Apply(mode, entry.Kind == KindDir)
				entry.Info = &modeOverrideInfo{FileInfo: entry.Info, mode: applyPermBits(entry.Info.Mode(), mode)}
			}

			if err := visit(entry); err != nil {
				return err
			}

			if entry.Kind == KindDir {
				s.queue = append(s.queue, childPath)
			}
		}
	}
	return nil
}

func (s *Scanner) classify(childPath string, d fs.DirEntry) (Entry, error) {
	info, err := d.Info()
	if err != nil {
		return Entry{}, fmt.Errorf("scanner: stat %q: %w", childPath, err)
	}

	e := Entry{Path: childPath, Name: d.Name(), Info: info}

	switch {
	case info.Mode().IsDir():
		e.Kind = KindDir
	case info.Mode().IsRegular():
		e.Kind = KindFile
	case info.Mode()&fs.ModeSymlink != 0:
		e.Kind = KindSymlink
		target, err := fs.ReadLink(s.fsys, childPath)
		if err != nil {
			return Entry{}, fmt.Errorf("scanner: readlink %q: %w", childPath, err)
		}
		e.LinkTarget = target
	case info.Mode()&(fs.ModeDevice|fs.ModeCharDevice) != 0:
		e.Kind = KindDevice
	default:
		e.Kind = KindOther
	}

	if ino, dev, rdev, nlink, uid, gid, ok := statFields(info); ok {
		e.RawInode, e.RawDevice, e.Rdev, e.Nlink, e.Uid, e.Gid = ino, dev, rdev, nlink, uid, gid
	} else {
		e.Nlink = 1
	}

	return e, nil
}

// modeOverrideInfo wraps an fs.FileInfo to report a transformed mode
// without needing a full FileInfo reimplementation per field.
type modeOverrideInfo struct {
	fs.FileInfo
	mode fs.FileMode
}

func (m *modeOverrideInfo) Mode() fs.FileMode { return m.mode }

func applyPermBits(orig fs.FileMode, m transform.Mode) fs.FileMode {
	typeBits := orig &^ fs.ModePerm &^ fs.ModeSetuid &^ fs.ModeSetgid &^ fs.ModeSticky
	result := typeBits | fs.FileMode(m&0777)
	if m&04000 != 0 {
		result |= fs.ModeSetuid
	}
	if m&02000 != 0 {
		result |= fs.ModeSetgid
	}
	if m&01000 != 0 {
		result |= fs.ModeSticky
	}
	return result
}
