package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encode serializes t into the METADATA section payload. Fields whose
// Schema.Encoding is Delta or RLE are transformed before being written;
// packed-string fields are written as (count, then per-string u32
// length + bytes) rather than a flat byte blob, trading a little size
// for O(1) random access by index.
func Encode(t *Tree) ([]byte, error) {
	var buf bytes.Buffer
	w := &binWriter{buf: &buf}

	w.u32(uint32(len(t.Entries)))
	for _, e := range t.Entries {
		w.u32(e.Mode)
		w.u32(e.OwnerIndex)
		w.u32(e.GroupIndex)
		w.u64(e.AtimeOffset)
		w.u64(e.MtimeOffset)
		w.u64(e.CtimeOffset)
		w.u32(e.NameIndex)
		w.u32(e.InodeNum)
	}

	w.u32(uint32(len(t.DirEntries)))
	for _, de := range t.DirEntries {
		w.u32(de.EntryIndex)
		w.u32(de.ParentIndex)
	}

	w.u32(uint32(len(t.Directories)))
	writeDeltaU32(w, directoryFirstEntries(t.Directories))
	for _, d := range t.Directories {
		w.u32(d.ParentEntry)
	}

	w.u32(uint32(len(t.ChunkTable)))
	writeDeltaU32(w, t.ChunkTable)

	w.u32(uint32(len(t.Chunks)))
	for _, c := range t.Chunks {
		w.u32(c.BlockIndex)
		w.u32(c.Offset)
		w.u32(c.Size)
	}

	w.u32(uint32(len(t.SymlinkTable)))
	for _, v := range t.SymlinkTable {
		w.u32(v)
	}
	writeStringTable(w, t.Symlinks)
	writeStringTable(w, t.Names)

	w.u32(uint32(len(t.Uids)))
	for _, v := range t.Uids {
		w.u32(v)
	}
	w.u32(uint32(len(t.Gids)))
	for _, v := range t.Gids {
		w.u32(v)
	}
	w.u32(uint32(len(t.Modes)))
	for _, v := range t.Modes {
		w.u32(v)
	}

	w.u32(uint32(len(t.Devices)))
	for _, d := range t.Devices {
		w.u64(d.Rdev)
	}

	writeRLEU32(w, t.SharedFilesTable)

	w.u32(t.BlockSize)
	w.u64(t.TimestampBase)
	w.u64(t.TotalFsSize)
	w.u8(boolByte(t.MtimeOnly))

	w.u32(uint32(t.DirCount))
	w.u32(uint32(t.SymlinkCount))
	w.u32(uint32(t.FileCount))
	w.u32(uint32(t.UniqueFileCount))
	w.u32(uint32(t.DeviceCount))
	w.u32(uint32(t.OtherCount))

	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

// Decode parses a METADATA section payload written by Encode. schema is
// consulted only to confirm the image wasn't built by something newer
// that changed the wire layout in an incompatible way; this package
// currently has one on-disk layout version (schema.Version == 1).
func Decode(payload []byte, schema Schema) (*Tree, error) {
	if schema.Version != 1 {
		return nil, fmt.Errorf("metadata: unsupported schema version %d", schema.Version)
	}
	r := &binReader{buf: payload}
	t := &Tree{}

	n := r.u32()
	t.Entries = make([]Entry, n)
	for i := range t.Entries {
		t.Entries[i] = Entry{
			Mode:        r.u32(),
			OwnerIndex:  r.u32(),
			GroupIndex:  r.u32(),
			AtimeOffset: r.u64(),
			MtimeOffset: r.u64(),
			CtimeOffset: r.u64(),
			NameIndex:   r.u32(),
			InodeNum:    r.u32(),
		}
	}

	n = r.u32()
	t.DirEntries = make([]DirEntry, n)
	for i := range t.DirEntries {
		t.DirEntries[i] = DirEntry{EntryIndex: r.u32(), ParentIndex: r.u32()}
	}

	n = r.u32()
	firsts := readDeltaU32(r, int(n))
	t.Directories = make([]Directory, n)
	for i := range t.Directories {
		t.Directories[i].FirstEntry = firsts[i]
	}
	for i := range t.Directories {
		t.Directories[i].ParentEntry = r.u32()
	}

	n = r.u32()
	t.ChunkTable = readDeltaU32(r, int(n))

	n = r.u32()
	t.Chunks = make([]Chunk, n)
	for i := range t.Chunks {
		t.Chunks[i] = Chunk{BlockIndex: r.u32(), Offset: r.u32(), Size: r.u32()}
	}

	n = r.u32()
	t.SymlinkTable = make([]uint32, n)
	for i := range t.SymlinkTable {
		t.SymlinkTable[i] = r.u32()
	}
	t.Symlinks = readStringTable(r)
	t.Names = readStringTable(r)

	n = r.u32()
	t.Uids = make([]uint32, n)
	for i := range t.Uids {
		t.Uids[i] = r.u32()
	}
	n = r.u32()
	t.Gids = make([]uint32, n)
	for i := range t.Gids {
		t.Gids[i] = r.u32()
	}
	n = r.u32()
	t.Modes = make([]uint32, n)
	for i := range t.Modes {
		t.Modes[i] = r.u32()
	}

	n = r.u32()
	t.Devices = make([]Device, n)
	for i := range t.Devices {
		t.Devices[i] = Device{Rdev: r.u64()}
	}

	t.SharedFilesTable = readRLEU32(r)

	t.BlockSize = r.u32()
	t.TimestampBase = r.u64()
	t.TotalFsSize = r.u64()
	t.MtimeOnly = r.u8() != 0

	t.DirCount = int(r.u32())
	t.SymlinkCount = int(r.u32())
	t.FileCount = int(r.u32())
	t.UniqueFileCount = int(r.u32())
	t.DeviceCount = int(r.u32())
	t.OtherCount = int(r.u32())

	if r.err != nil {
		return nil, r.err
	}
	return t, nil
}

// EncodeSchema serializes s into the SCHEMA section payload that
// precedes METADATA in an image.
func EncodeSchema(s Schema) ([]byte, error) {
	var buf bytes.Buffer
	w := &binWriter{buf: &buf}
	w.u32(uint32(s.Version))
	w.u32(uint32(len(s.Fields)))
	for _, f := range s.Fields {
		w.u32(uint32(len(f.Path)))
		buf.WriteString(f.Path)
		w.u32(uint32(f.BitWidth))
		w.u8(boolByte(f.Signed))
		w.u8(uint8(f.Encoding))
	}
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

// DecodeSchema parses a SCHEMA section payload written by EncodeSchema.
// Fields it doesn't recognize are still returned, so a caller can test
// for them with Schema.Has; Decode itself checks only the Version.
func DecodeSchema(payload []byte) (Schema, error) {
	r := &binReader{buf: payload}
	var s Schema
	s.Version = int(r.u32())
	n := r.u32()
	s.Fields = make([]FieldDesc, n)
	for i := range s.Fields {
		pathLen := r.u32()
		s.Fields[i].Path = string(r.need(int(pathLen)))
		s.Fields[i].BitWidth = int(r.u32())
		s.Fields[i].Signed = r.u8() != 0
		s.Fields[i].Encoding = Encoding(r.u8())
	}
	if r.err != nil {
		return Schema{}, r.err
	}
	return s, nil
}

func directoryFirstEntries(dirs []Directory) []uint32 {
	out := make([]uint32, len(dirs))
	for i, d := range dirs {
		out[i] = d.FirstEntry
	}
	return out
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// --- low-level readers/writers ---

type binWriter struct {
	buf *bytes.Buffer
	err error
}

func (w *binWriter) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *binWriter) u32(v uint32) { binary.Write(w.buf, binary.LittleEndian, v) }
func (w *binWriter) u64(v uint64) { binary.Write(w.buf, binary.LittleEndian, v) }

type binReader struct {
	buf []byte
	pos int
	err error
}

func (r *binReader) need(n int) []byte {
	if r.err != nil || r.pos+n > len(r.buf) {
		if r.err == nil {
			r.err = fmt.Errorf("metadata: truncated payload")
		}
		return make([]byte, n)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *binReader) u8() uint8   { return r.need(1)[0] }
func (r *binReader) u32() uint32 { return binary.LittleEndian.Uint32(r.need(4)) }
func (r *binReader) u64() uint64 { return binary.LittleEndian.Uint64(r.need(8)) }

func writeDeltaU32(w *binWriter, vals []uint32) {
	var prev uint32
	for _, v := range vals {
		w.u32(v - prev)
		prev = v
	}
}

func readDeltaU32(r *binReader, n int) []uint32 {
	out := make([]uint32, n)
	var prev uint32
	for i := 0; i < n; i++ {
		prev += r.u32()
		out[i] = prev
	}
	return out
}

func writeStringTable(w *binWriter, strs []string) {
	w.u32(uint32(len(strs)))
	for _, s := range strs {
		w.u32(uint32(len(s)))
		w.buf.WriteString(s)
	}
}

func readStringTable(r *binReader) []string {
	n := r.u32()
	out := make([]string, n)
	for i := range out {
		l := r.u32()
		out[i] = string(r.need(int(l)))
	}
	return out
}

// writeRLEU32 packs a mostly-repetitive uint32 slice as (run-length,
// value) pairs, matching shared_files_table's tendency to reference
// consecutive unique-file indices in long runs.
func writeRLEU32(w *binWriter, vals []uint32) {
	w.u32(uint32(len(vals)))
	i := 0
	for i < len(vals) {
		j := i + 1
		for j < len(vals) && vals[j] == vals[i] {
			j++
		}
		w.u32(uint32(j - i))
		w.u32(vals[i])
		i = j
	}
	w.u32(0) // run-length-0 sentinel terminates the pair stream
}

func readRLEU32(r *binReader) []uint32 {
	total := int(r.u32())
	out := make([]uint32, 0, total)
	for {
		runLen := r.u32()
		if runLen == 0 || r.err != nil {
			break
		}
		if len(out)+int(runLen) > total {
			r.err = fmt.Errorf("metadata: run-length pairs exceed declared length %d", total)
			break
		}
		v := r.u32()
		for k := uint32(0); k < runLen; k++ {
			out = append(out, v)
		}
	}
	return out
}
