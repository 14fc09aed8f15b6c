package metadata

import "sort"

// RawEntry is one scanned source entry, already classified and ordered
// by the caller (the inode ordering pass decides the final rank within
// each kind before Build is called).
type RawEntry struct {
	Name    string // basename only
	Parent  int    // index into Entries of the parent directory; 0 (itself) for root
	Kind    InodeKind
	Mode    uint32
	Uid     uint32
	Gid     uint32
	Atime   uint64
	Mtime   uint64
	Ctime   uint64
	Target  string // symlink target, Kind==KindSymlink only
	Rdev    uint64 // Kind==KindDevice only
	Chunks  []Chunk
	// UniqueOf points at the unique (first-seen) file's index within the
	// file range when this entry is a dedup duplicate; -1 if this entry
	// is itself unique or not a regular file.
	UniqueOf int
}

// Input is the complete, ordered scanner+segmenter output ready to be
// frozen into a Tree.
type Input struct {
	Entries       []RawEntry // already rank-ordered: dirs, symlinks, files, devices, other
	DirChildren   [][]int    // DirChildren[d] lists indices into Entries that are direct children of directory d
	BlockSize     uint32
	TimestampBase uint64
	MtimeOnly     bool
}

// Build assembles a frozen Tree from scanner/segmenter output: it sorts
// each directory's children by name, deduplicates the names/uids/gids/
// modes/symlinks pools, and lays out chunk_table/shared_files_table.
func Build(in Input) (*Tree, error) {
	t := &Tree{BlockSize: in.BlockSize, TimestampBase: in.TimestampBase, MtimeOnly: in.MtimeOnly}

	names := newStringPool()
	uids := newU32Pool()
	gids := newU32Pool()
	modes := newU32Pool()
	symlinks := newStringPool()

	for _, e := range in.Entries {
		switch e.Kind {
		case KindDir:
			t.DirCount++
		case KindSymlink:
			t.SymlinkCount++
		case KindFile:
			t.FileCount++
			if e.UniqueOf < 0 {
				t.UniqueFileCount++
			}
		case KindDevice:
			t.DeviceCount++
		default:
			t.OtherCount++
		}
	}

	t.Entries = make([]Entry, len(in.Entries))
	for i, e := range in.Entries {
		t.Entries[i] = Entry{
			Mode:        modes.intern(e.Mode),
			OwnerIndex:  uids.intern(e.Uid),
			GroupIndex:  gids.intern(e.Gid),
			AtimeOffset: e.Atime,
			MtimeOffset: e.Mtime,
			CtimeOffset: e.Ctime,
			NameIndex:   names.intern(e.Name),
			InodeNum:    uint32(i),
		}
		if e.Kind == KindSymlink {
			idx := symlinks.intern(e.Target)
			t.SymlinkTable = append(t.SymlinkTable, idx)
		}
		if e.Kind == KindDevice {
			t.Devices = append(t.Devices, Device{Rdev: e.Rdev})
		}
	}
	t.Names = names.ordered()
	t.Uids = uids.ordered()
	t.Gids = gids.ordered()
	t.Modes = modes.ordered()
	t.Symlinks = symlinks.ordered()

	// chunk_table + chunks, in file-rank order (unique files first by
	// construction since the caller assigns UniqueOf only to later
	// duplicates).
	fileStart := t.DirCount + t.SymlinkCount
	t.SharedFilesTable = make([]uint32, 0, t.FileCount-t.UniqueFileCount)
	t.ChunkTable = make([]uint32, 0, t.FileCount+1)
	t.ChunkTable = append(t.ChunkTable, 0)
	for i := fileStart; i < fileStart+t.FileCount; i++ {
		e := in.Entries[i]
		if e.UniqueOf >= 0 {
			t.SharedFilesTable = append(t.SharedFilesTable, uint32(e.UniqueOf))
			t.ChunkTable = append(t.ChunkTable, t.ChunkTable[len(t.ChunkTable)-1])
			continue
		}
		t.Chunks = append(t.Chunks, e.Chunks...)
		t.ChunkTable = append(t.ChunkTable, uint32(len(t.Chunks)))
	}

	// directories[] + dir_entries[], built from DirChildren with each
	// directory's children sorted by name.
	t.Directories = make([]Directory, 0, t.DirCount+1)
	for d := 0; d < t.DirCount; d++ {
		children := append([]int(nil), in.DirChildren[d]...)
		sort.Slice(children, func(i, j int) bool {
			return in.Entries[children[i]].Name < in.Entries[children[j]].Name
		})
		t.Directories = append(t.Directories, Directory{FirstEntry: uint32(len(t.DirEntries)), ParentEntry: uint32(in.Entries[d].Parent)})
		for _, c := range children {
			t.DirEntries = append(t.DirEntries, DirEntry{EntryIndex: uint32(c), ParentIndex: uint32(d)})
		}
	}
	// Sentinel directory terminates the last range.
	t.Directories = append(t.Directories, Directory{FirstEntry: uint32(len(t.DirEntries))})

	if err := CheckConsistency(t); err != nil {
		return nil, err
	}
	return t, nil
}

type u32Pool struct {
	values []uint32
	index  map[uint32]uint32
}

func newU32Pool() *u32Pool { return &u32Pool{index: map[uint32]uint32{}} }

func (p *u32Pool) intern(v uint32) uint32 {
	if idx, ok := p.index[v]; ok {
		return idx
	}
	idx := uint32(len(p.values))
	p.values = append(p.values, v)
	p.index[v] = idx
	return idx
}

func (p *u32Pool) ordered() []uint32 { return p.values }

type stringPool struct {
	values []string
	index  map[string]uint32
}

func newStringPool() *stringPool { return &stringPool{index: map[string]uint32{}} }

func (p *stringPool) intern(s string) uint32 {
	if idx, ok := p.index[s]; ok {
		return idx
	}
	idx := uint32(len(p.values))
	p.values = append(p.values, s)
	p.index[s] = idx
	return idx
}

func (p *stringPool) ordered() []string { return p.values }
