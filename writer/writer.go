// Package writer assembles a DwarFS image from a source filesystem: it
// scans the tree, deduplicates identical file content, orders unique
// files for better cross-file matching, segments and compresses their
// bytes into blocks, and freezes the whole structure into a metadata
// tree before framing everything into the final image. Generalizes the
// teacher's single-pass Writer.Add/Finalize into the distinct scan,
// dedup, order and block-assembly stages a content-defined-chunking
// archive format needs.
package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"

	dwarfs "github.com/dwarfs-go/dwarfs"
	"github.com/dwarfs-go/dwarfs/internal/blockwriter"
	"github.com/dwarfs-go/dwarfs/internal/categorize"
	"github.com/dwarfs-go/dwarfs/internal/codec"
	"github.com/dwarfs-go/dwarfs/internal/dedup"
	"github.com/dwarfs-go/dwarfs/internal/logging"
	"github.com/dwarfs-go/dwarfs/internal/metadata"
	"github.com/dwarfs-go/dwarfs/internal/progress"
	"github.com/dwarfs-go/dwarfs/internal/scanner"
	"github.com/dwarfs-go/dwarfs/internal/scanner/filter"
	"github.com/dwarfs-go/dwarfs/internal/scanner/transform"
	"github.com/dwarfs-go/dwarfs/internal/segmenter"
	"github.com/dwarfs-go/dwarfs/internal/section"
	"github.com/dwarfs-go/dwarfs/internal/similarity"
)

// Option configures a Writer, following the teacher's WriterOption shape.
type Option func(*Writer) error

// WithBlockSize sets the block size for the filesystem.
func WithBlockSize(size int64) Option {
	return func(w *Writer) error {
		if size <= 0 {
			return fmt.Errorf("writer: block size must be positive")
		}
		w.blockSize = size
		return nil
	}
}

// WithCompression sets the block compression codec (default Zstd).
func WithCompression(tag codec.Tag, params map[string]string) Option {
	return func(w *Writer) error { w.codecTag, w.codecParams = tag, params; return nil }
}

// WithWorkers bounds the compression worker pool (0 lets workerpool
// choose GOMAXPROCS).
func WithWorkers(n int) Option {
	return func(w *Writer) error { w.workers = n; return nil }
}

// WithFilter installs a scanner include/exclude filter.
func WithFilter(f *filter.Filter) Option {
	return func(w *Writer) error { w.filter = f; return nil }
}

// WithChmod installs a chmod transform applied to every scanned entry.
func WithChmod(c *transform.Chmod) Option {
	return func(w *Writer) error { w.chmod = c; return nil }
}

// WithOrder selects the file ordering strategy applied before blocks are
// assembled (default OrderPath).
func WithOrder(mode similarity.Order, explicitOrder []int, script similarity.ScriptFunc) Option {
	return func(w *Writer) error {
		w.order, w.explicitOrder, w.script = mode, explicitOrder, script
		return nil
	}
}

// WithSegmenter overrides the content-defined-chunking window/table
// parameters (zero-valued fields take the segmenter's own defaults).
func WithSegmenter(opt segmenter.Options) Option {
	return func(w *Writer) error { w.segOpt = opt; return nil }
}

// WithProgress installs a progress.Counters external callers can poll.
func WithProgress(p *progress.Counters) Option {
	return func(w *Writer) error { w.prog = p; return nil }
}

// WithLogger installs a logger (default logging.Nop).
func WithLogger(l logging.Logger) Option {
	return func(w *Writer) error { w.log = l; return nil }
}

// WithTimestampBase sets the epoch every stored atime/mtime/ctime is
// relative to (default: now, at Finalize time, unless WithNoCreateTimestamp
// is also set).
func WithTimestampBase(t time.Time) Option {
	return func(w *Writer) error { w.timestampBase = uint64(t.Unix()); w.haveTimestampBase = true; return nil }
}

// WithNoHistory suppresses the HISTORY section that Finalize otherwise
// appends by default.
func WithNoHistory() Option {
	return func(w *Writer) error { w.noHistory = true; return nil }
}

// WithNoSectionIndex suppresses the trailing INDEX section that Finalize
// otherwise appends by default.
func WithNoSectionIndex() Option {
	return func(w *Writer) error { w.noIndex = true; return nil }
}

// WithDevices controls whether block/char device inodes are archived
// (default false, matching the original tool's opt-in behavior).
func WithDevices(include bool) Option {
	return func(w *Writer) error { w.withDevices = include; return nil }
}

// WithSpecials controls whether named pipes and sockets are archived
// (default false).
func WithSpecials(include bool) Option {
	return func(w *Writer) error { w.withSpecials = include; return nil }
}

// WithRemoveEmptyDirs drops directories (and their ancestors, if they
// become empty in turn) that end up with no archived descendant once
// the filter and device/special exclusion have been applied.
func WithRemoveEmptyDirs(enabled bool) Option {
	return func(w *Writer) error { w.removeEmptyDirs = enabled; return nil }
}

// WithNoCreateTimestamp pins the timestamp base to the Unix epoch
// instead of the wall-clock time Finalize runs at, for byte-reproducible
// images, unless WithTimestampBase already set an explicit base.
func WithNoCreateTimestamp() Option {
	return func(w *Writer) error { w.noCreateTimestamp = true; return nil }
}

// WithKeepAllTimes controls whether atime/ctime are stored distinctly
// from mtime. The default keeps them distinct; passing false collapses
// them to mtime. PackMetadata's "mtime_only" category is an alias for
// WithKeepAllTimes(false).
func WithKeepAllTimes(keep bool) Option {
	return func(w *Writer) error { w.mtimeOnly = !keep; return nil }
}

// WithPackMetadata selects which optional metadata categories to pack.
// The only category currently recognized is "mtime_only" (see
// WithKeepAllTimes); others are accepted but have no effect, so a caller
// passing a category from a newer mkdwarfs doesn't hard-fail Finalize.
func WithPackMetadata(categories ...string) Option {
	return func(w *Writer) error {
		for _, c := range categories {
			if c == "mtime_only" {
				w.mtimeOnly = true
			}
		}
		return nil
	}
}

// WithOwner forces every entry's uid to the given value, overriding
// whatever the scanner observed.
func WithOwner(uid uint32) Option {
	return func(w *Writer) error { w.forceUid = &uid; return nil }
}

// WithGroup forces every entry's gid to the given value.
func WithGroup(gid uint32) Option {
	return func(w *Writer) error { w.forceGid = &gid; return nil }
}

// WithSetTime forces every entry's atime/mtime/ctime to t, overriding
// whatever the scanner observed.
func WithSetTime(t time.Time) Option {
	return func(w *Writer) error { v := uint64(t.Unix()); w.forceTime = &v; return nil }
}

// WithTimeResolution rounds every stored timestamp down to a multiple of
// d (e.g. time.Hour to discard sub-hour precision for smaller pools).
func WithTimeResolution(d time.Duration) Option {
	return func(w *Writer) error { w.timeResolution = d; return nil }
}

// WithHeader prepends raw, uninterpreted bytes before the image's own
// magic, for embedding a DwarFS image inside another container format.
// A reader must be opened with a matching WithImageOffset.
func WithHeader(raw []byte) Option {
	return func(w *Writer) error { w.header = append([]byte(nil), raw...); return nil }
}

// WithCategorizer installs the classifier consulted for every unique
// file before it is handed to the block writer; files it marks
// CategoryIncompressible are routed into their own uncompressed blocks
// instead of sharing the main compressed block stream.
func WithCategorizer(c categorize.Categorizer) Option {
	return func(w *Writer) error { w.categorizer = c; return nil }
}

// Writer builds one DwarFS image from one or more source file trees.
type Writer struct {
	blockSize         int64
	codecTag          codec.Tag
	codecParams       map[string]string
	workers           int
	filter            *filter.Filter
	chmod             *transform.Chmod
	order             similarity.Order
	explicitOrder     []int
	script            similarity.ScriptFunc
	segOpt            segmenter.Options
	prog              *progress.Counters
	log               logging.Logger
	timestampBase     uint64
	haveTimestampBase bool

	noHistory         bool
	noIndex           bool
	withDevices       bool
	withSpecials      bool
	removeEmptyDirs   bool
	noCreateTimestamp bool
	mtimeOnly         bool
	forceUid          *uint32
	forceGid          *uint32
	forceTime         *uint64
	timeResolution    time.Duration
	header            []byte
	categorizer       categorize.Categorizer

	scanned []scanNode
}

// scanNode is one staged entry: its scanner.Entry plus enough bookkeeping
// to read its content later and resolve its parent once every entry has
// been assigned a final rank-ordered index.
type scanNode struct {
	entry      scanner.Entry
	parentScan int // index into scanned; -1 only for the synthetic root
	fsys       fs.FS
	srcPath    string // path to read file/symlink content from, within fsys
}

// NewWriter creates an empty Writer.
func NewWriter(opts ...Option) (*Writer, error) {
	w := &Writer{
		blockSize: 16 << 20,
		codecTag:  codec.Zstd,
		order:     similarity.OrderPath,
		prog:      progress.New(),
		log:       logging.Nop,
	}
	w.scanned = []scanNode{{entry: scanner.Entry{Path: ".", Kind: scanner.KindDir}, parentScan: -1}}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// AddTree scans srcFS from root and stages every entry it finds for
// Finalize. It may be called more than once against different source
// filesystems; entries from every call accumulate under the one
// synthetic root directory.
func (w *Writer) AddTree(srcFS fs.FS, root string) error {
	s := scanner.New(srcFS, scanner.Options{Filter: w.filter, Chmod: w.chmod})

	dirIndexByPath := map[string]int{".": 0, "": 0}
	err := s.Scan(root, func(e scanner.Entry) error {
		parentPath := parentOf(e.Path)
		parentScan, ok := dirIndexByPath[parentPath]
		if !ok {
			return fmt.Errorf("writer: parent of %q not scanned yet", e.Path)
		}
		idx := len(w.scanned)
		w.scanned = append(w.scanned, scanNode{entry: e, parentScan: parentScan, fsys: srcFS, srcPath: e.Path})
		if e.Kind == scanner.KindDir {
			dirIndexByPath[e.Path] = idx
		}
		w.prog.AddFilesScanned(1)
		if e.Info != nil {
			w.prog.AddBytesScanned(e.Info.Size())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writer: scan: %w", err)
	}
	return nil
}

func parentOf(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return "."
	}
	return dir
}

// emptyDirs returns the set of scan indices that are directories with no
// archived descendant (recursively), excluding the synthetic root. A
// directory whose only children are themselves empty directories counts
// as empty too, so WithRemoveEmptyDirs prunes whole empty subtrees.
func (w *Writer) emptyDirs() map[int]bool {
	children := make(map[int][]int)
	for i, n := range w.scanned {
		if i == 0 {
			continue
		}
		children[n.parentScan] = append(children[n.parentScan], i)
	}

	memo := make(map[int]bool)
	var isEmpty func(i int) bool
	isEmpty = func(i int) bool {
		if v, ok := memo[i]; ok {
			return v
		}
		empty := true
		for _, c := range children[i] {
			kind := w.scanned[c].entry.Kind
			if (kind == scanner.KindDevice && !w.withDevices) || (kind == scanner.KindOther && !w.withSpecials) {
				continue // excluded from the archive, so not content
			}
			if kind == scanner.KindDir {
				if !isEmpty(c) {
					empty = false
				}
			} else {
				empty = false
			}
		}
		memo[i] = empty
		return empty
	}

	removed := make(map[int]bool)
	for i, n := range w.scanned {
		if i == 0 || n.entry.Kind != scanner.KindDir {
			continue
		}
		if isEmpty(i) {
			removed[i] = true
		}
	}
	return removed
}

// applyOverrides resolves an entry's final mode/uid/gid/timestamps,
// honoring the synthetic root's lack of an Info, the force-owner/group/
// time options, and WithTimeResolution's rounding.
func (w *Writer) applyOverrides(n scanNode) (mode uint32, uid, gid uint32, mtime uint64) {
	mode = uint32(0755) | 0x4000 // sIFDIR, for the synthetic root which has no Info
	mtime = w.timestampBase
	uid, gid = n.entry.Uid, n.entry.Gid
	if n.entry.Info != nil {
		mode = dwarfs.ModeToUnix(n.entry.Info.Mode())
		mtime = uint64(n.entry.Info.ModTime().Unix())
	}
	if w.forceUid != nil {
		uid = *w.forceUid
	}
	if w.forceGid != nil {
		gid = *w.forceGid
	}
	if w.forceTime != nil {
		mtime = *w.forceTime
	}
	if w.timeResolution > 0 {
		res := uint64(w.timeResolution / time.Second)
		if res > 0 {
			mtime -= mtime % res
		}
	}
	return mode, uid, gid, mtime
}

// Finalize dedups, orders, segments and compresses every staged entry,
// then writes the complete framed image to out.
func (w *Writer) Finalize(ctx context.Context, out io.Writer) error {
	if !w.haveTimestampBase {
		if w.noCreateTimestamp {
			w.timestampBase = 0
		} else {
			w.timestampBase = uint64(time.Now().Unix())
		}
	}

	removedDirs := map[int]bool{}
	if w.removeEmptyDirs {
		removedDirs = w.emptyDirs()
	}

	var dirs, symlinks, devices, others []int
	var fileIdxs []int
	for i, n := range w.scanned {
		switch n.entry.Kind {
		case scanner.KindDir:
			if removedDirs[i] {
				continue
			}
			dirs = append(dirs, i)
		case scanner.KindSymlink:
			symlinks = append(symlinks, i)
		case scanner.KindFile:
			fileIdxs = append(fileIdxs, i)
		case scanner.KindDevice:
			if w.withDevices {
				devices = append(devices, i)
			}
		default:
			if w.withSpecials {
				others = append(others, i)
			}
		}
	}

	deduper := dedup.New()
	uniqueOfScan := make(map[int]int) // scan index -> unique file's scan index (itself if unique)
	content := make(map[int][]byte)   // unique files' bytes, kept until blockwriter consumes them

	var uniqueScanIdxs []int
	for _, idx := range fileIdxs {
		n := w.scanned[idx]
		data, err := fs.ReadFile(n.fsys, n.srcPath)
		if err != nil {
			return fmt.Errorf("writer: read %q: %w", n.srcPath, err)
		}
		hash, err := dedup.HashFile(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("writer: hash %q: %w", n.srcPath, err)
		}
		uniqueIdx, isDup := deduper.Resolve(int64(len(data)), idx, hash)
		uniqueOfScan[idx] = uniqueIdx
		if isDup {
			w.prog.AddFilesDeduped(1)
			continue
		}
		content[idx] = data
		uniqueScanIdxs = append(uniqueScanIdxs, idx)
	}

	items := make([]similarity.Item, len(uniqueScanIdxs))
	for i, idx := range uniqueScanIdxs {
		it := similarity.Item{Index: idx, Path: w.scanned[idx].entry.Path}
		if w.order == similarity.OrderSimilarity || w.order == similarity.OrderNilsimsa {
			it.Sig = similarity.Compute(content[idx])
		}
		items[i] = it
	}
	ordered := similarity.Sort(items, w.order, w.explicitOrder, w.script)
	orderedUniqueScanIdxs := make([]int, len(ordered))
	for i, it := range ordered {
		orderedUniqueScanIdxs[i] = it.Index
	}

	var duplicateScanIdxs []int
	for _, idx := range fileIdxs {
		if uniqueOfScan[idx] != idx {
			duplicateScanIdxs = append(duplicateScanIdxs, idx)
		}
	}

	var finalOrder []int
	finalOrder = append(finalOrder, dirs...)
	finalOrder = append(finalOrder, symlinks...)
	finalOrder = append(finalOrder, orderedUniqueScanIdxs...)
	finalOrder = append(finalOrder, duplicateScanIdxs...)
	finalOrder = append(finalOrder, devices...)
	finalOrder = append(finalOrder, others...)

	oldToNew := make(map[int]int, len(finalOrder))
	for newIdx, oldIdx := range finalOrder {
		oldToNew[oldIdx] = newIdx
	}

	bw := blockwriter.New(blockwriter.Options{
		BlockSize:   w.blockSize,
		Codec:       w.codecTag,
		CodecParams: w.codecParams,
		Workers:     w.workers,
		Segmenter:   w.segOpt,
		Progress:    w.prog,
	})
	var incompBW *blockwriter.Manager
	var incompNewIdxs []int

	entries := make([]metadata.RawEntry, len(finalOrder))
	dirChildren := make([][]int, len(dirs))
	// finalOrder puts every directory first, so a directory's final index
	// equals its position within dirs.
	dirFinalIndex := make(map[int]int, len(dirs))
	for i, oldIdx := range dirs {
		dirFinalIndex[oldIdx] = i
	}

	for newIdx, oldIdx := range finalOrder {
		n := w.scanned[oldIdx]
		parentFinal := 0
		if n.parentScan >= 0 {
			parentFinal = oldToNew[n.parentScan]
		}

		mode, uid, gid, mtime := w.applyOverrides(n)
		ctime, atime := w.timestampBase, w.timestampBase
		if w.mtimeOnly {
			ctime, atime = mtime, mtime
		}

		re := metadata.RawEntry{
			Name:     n.entry.Name,
			Parent:   parentFinal,
			Mode:     mode,
			Uid:      uid,
			Gid:      gid,
			Atime:    atime,
			Mtime:    mtime,
			Ctime:    ctime,
			UniqueOf: -1,
		}

		switch n.entry.Kind {
		case scanner.KindDir:
			re.Kind = metadata.KindDir
			dirChildren[dirFinalIndex[oldIdx]] = nil // ensure present even if childless
		case scanner.KindSymlink:
			re.Kind = metadata.KindSymlink
			re.Target = n.entry.LinkTarget
		case scanner.KindFile:
			re.Kind = metadata.KindFile
			uIdx := uniqueOfScan[oldIdx]
			if uIdx != oldIdx {
				re.UniqueOf = oldToNew[uIdx] - len(dirs) - len(symlinks)
			} else {
				data := content[oldIdx]
				cat := categorize.CategoryDefault
				if w.categorizer != nil {
					cat = w.categorizer(data, n.entry.Path)
				}
				if cat == categorize.CategoryIncompressible {
					if incompBW == nil {
						incompBW = blockwriter.New(blockwriter.Options{
							BlockSize: w.blockSize,
							Codec:     codec.None,
							Workers:   w.workers,
							Segmenter: w.segOpt,
							Progress:  w.prog,
						})
					}
					chunks, err := incompBW.AddFile(ctx, data)
					if err != nil {
						return fmt.Errorf("writer: segment %q: %w", n.entry.Path, err)
					}
					re.Chunks = chunks
					incompNewIdxs = append(incompNewIdxs, newIdx)
				} else {
					chunks, err := bw.AddFile(ctx, data)
					if err != nil {
						return fmt.Errorf("writer: segment %q: %w", n.entry.Path, err)
					}
					re.Chunks = chunks
				}
				delete(content, oldIdx)
			}
		case scanner.KindDevice:
			re.Kind = metadata.KindDevice
			re.Rdev = n.entry.Rdev
		default:
			re.Kind = metadata.KindOther
		}

		entries[newIdx] = re
		if n.parentScan >= 0 {
			pf := dirFinalIndex[n.parentScan]
			dirChildren[pf] = append(dirChildren[pf], newIdx)
		}
	}

	sections, err := bw.Finish(ctx)
	if err != nil {
		return fmt.Errorf("writer: finish blocks: %w", err)
	}
	if incompBW != nil {
		incompSections, err := incompBW.Finish(ctx)
		if err != nil {
			return fmt.Errorf("writer: finish incompressible blocks: %w", err)
		}
		offset := uint32(len(sections))
		for _, newIdx := range incompNewIdxs {
			chunks := entries[newIdx].Chunks
			for i := range chunks {
				chunks[i].BlockIndex += offset
			}
		}
		sections = append(sections, incompSections...)
	}

	tree, err := metadata.Build(metadata.Input{
		Entries:       entries,
		DirChildren:   dirChildren,
		BlockSize:     uint32(w.blockSize),
		TimestampBase: w.timestampBase,
		MtimeOnly:     w.mtimeOnly,
	})
	if err != nil {
		return fmt.Errorf("writer: build metadata: %w", err)
	}

	cw := &countingWriter{w: out}

	if len(w.header) > 0 {
		if _, err := cw.Write(w.header); err != nil {
			return fmt.Errorf("writer: write header prefix: %w", err)
		}
	}
	if err := section.WriteFileHeader(cw); err != nil {
		return fmt.Errorf("writer: write file header: %w", err)
	}

	var index []section.IndexEntry
	for _, s := range sections {
		offset := cw.n
		if _, err := cw.Write(s.Bytes); err != nil {
			return fmt.Errorf("writer: write block section %d: %w", s.Index, err)
		}
		index = append(index, section.IndexEntry{Type: section.TypeBlock, Offset: uint64(offset), Length: uint64(len(s.Bytes))})
	}

	schemaPayload, err := metadata.EncodeSchema(metadata.CurrentSchema())
	if err != nil {
		return fmt.Errorf("writer: encode schema: %w", err)
	}
	schemaOffset := cw.n
	n, err := section.Write(cw, section.TypeSchema, w.codecTag, schemaPayload, w.codecParams)
	if err != nil {
		return fmt.Errorf("writer: write schema section: %w", err)
	}
	index = append(index, section.IndexEntry{Type: section.TypeSchema, Offset: uint64(schemaOffset), Length: uint64(n)})

	metaPayload, err := metadata.Encode(tree)
	if err != nil {
		return fmt.Errorf("writer: encode metadata: %w", err)
	}
	metaOffset := cw.n
	n, err = section.Write(cw, section.TypeMetadata, w.codecTag, metaPayload, w.codecParams)
	if err != nil {
		return fmt.Errorf("writer: write metadata section: %w", err)
	}
	index = append(index, section.IndexEntry{Type: section.TypeMetadata, Offset: uint64(metaOffset), Length: uint64(n)})

	if !w.noHistory {
		histPayload, err := encodeHistory(historyRecord{
			Dirs:          len(dirs),
			Symlinks:      len(symlinks),
			Files:         len(fileIdxs),
			UniqueFiles:   len(uniqueScanIdxs),
			Devices:       len(devices),
			Blocks:        len(sections),
			BlockSize:     w.blockSize,
			Codec:         w.codecTag.String(),
			TimestampBase: w.timestampBase,
		})
		if err != nil {
			return fmt.Errorf("writer: encode history: %w", err)
		}
		histOffset := cw.n
		n, err := section.Write(cw, section.TypeHistory, codec.None, histPayload, nil)
		if err != nil {
			return fmt.Errorf("writer: write history section: %w", err)
		}
		index = append(index, section.IndexEntry{Type: section.TypeHistory, Offset: uint64(histOffset), Length: uint64(n)})
	}

	if !w.noIndex {
		if _, err := section.Write(cw, section.TypeIndex, codec.None, section.EncodeIndex(index), nil); err != nil {
			return fmt.Errorf("writer: write index section: %w", err)
		}
	}

	w.log.Info().
		Int("dirs", len(dirs)).
		Int("symlinks", len(symlinks)).
		Int("files", len(fileIdxs)).
		Int("unique_files", len(uniqueScanIdxs)).
		Int("blocks", len(sections)).
		Int64("collisions", bw.Collisions()).
		Msg("image written")

	return nil
}

// countingWriter tracks the absolute byte offset written so far, so
// Finalize can record each section's position for the trailing INDEX
// section without requiring out to be an io.Seeker.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// historyRecord is the JSON payload stored in the HISTORY section: a
// summary of the build that produced the image, grounded on the
// original tool's history entries (version/timestamp/build summary)
// without needing that tool's Thrift wire format.
type historyRecord struct {
	Dirs          int    `json:"dirs"`
	Symlinks      int    `json:"symlinks"`
	Files         int    `json:"files"`
	UniqueFiles   int    `json:"unique_files"`
	Devices       int    `json:"devices"`
	Blocks        int    `json:"blocks"`
	BlockSize     int64  `json:"block_size"`
	Codec         string `json:"codec"`
	TimestampBase uint64 `json:"timestamp_base"`
}

func encodeHistory(h historyRecord) ([]byte, error) {
	return json.Marshal(h)
}
