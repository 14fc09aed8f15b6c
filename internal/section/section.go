// Package section implements the on-disk image framing: a fixed
// magic+version file header, followed by a sequence of sections each
// carrying a fixed 64-byte header (type, codec, flags, length, checksum)
// plus a codec-compressed payload.
package section

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/dwarfs-go/dwarfs/internal/codec"
)

// Magic is the 6-byte image signature.
var Magic = [6]byte{'D', 'W', 'A', 'R', 'F', 'S'}

const (
	HeaderSize = 64

	currentMajor = 2
	currentMinor = 6
)

// Type identifies the kind of a framed section.
type Type uint16

const (
	TypeBlock Type = iota + 1
	TypeSchema
	TypeMetadata
	TypeHistory
	TypeIndex
	TypeHeader
)

func (t Type) String() string {
	switch t {
	case TypeBlock:
		return "BLOCK"
	case TypeSchema:
		return "SCHEMA"
	case TypeMetadata:
		return "METADATA"
	case TypeHistory:
		return "HISTORY"
	case TypeIndex:
		return "INDEX"
	case TypeHeader:
		return "HEADER"
	default:
		return fmt.Sprintf("Type(%d)", uint16(t))
	}
}

// Flag bits for a section header.
type Flag uint16

const (
	_ Flag = 0
)

// Header is the fixed 64-byte per-section framing record.
type Header struct {
	Type             Type
	Codec            codec.Tag
	Flags            Flag
	UncompressedSize uint64
	CompressedSize   uint64
	Checksum         uint64 // xxhash64 over header(checksum zeroed)+payload
}

// MarshalBinary encodes the header to exactly HeaderSize bytes.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Type))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(h.Codec))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(h.Flags))
	binary.LittleEndian.PutUint64(buf[8:16], h.UncompressedSize)
	binary.LittleEndian.PutUint64(buf[16:24], h.CompressedSize)
	binary.LittleEndian.PutUint64(buf[24:32], h.Checksum)
	return buf, nil
}

// UnmarshalBinary decodes a header from exactly HeaderSize bytes.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderSize {
		return io.ErrUnexpectedEOF
	}
	h.Type = Type(binary.LittleEndian.Uint16(buf[0:2]))
	h.Codec = codec.Tag(binary.LittleEndian.Uint16(buf[2:4]))
	h.Flags = Flag(binary.LittleEndian.Uint16(buf[4:6]))
	h.UncompressedSize = binary.LittleEndian.Uint64(buf[8:16])
	h.CompressedSize = binary.LittleEndian.Uint64(buf[16:24])
	h.Checksum = binary.LittleEndian.Uint64(buf[24:32])
	return nil
}

// Checksum computes the content hash over header-with-checksum-zeroed
// concatenated with payload.
func Checksum(hdr Header, payload []byte) uint64 {
	hdr.Checksum = 0
	raw, _ := hdr.MarshalBinary()
	d := xxhash.New()
	d.Write(raw)
	d.Write(payload)
	return d.Sum64()
}

// WriteFileHeader writes the 8-byte image signature (magic + major/minor).
func WriteFileHeader(w io.Writer) error {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(currentMajor)
	buf.WriteByte(currentMinor)
	_, err := w.Write(buf.Bytes())
	return err
}

// FileHeaderSize is the size in bytes of the leading magic+version header.
const FileHeaderSize = 8

// ParseFileHeader validates the magic and returns the major/minor version.
func ParseFileHeader(buf []byte) (major, minor byte, err error) {
	if len(buf) < FileHeaderSize {
		return 0, 0, io.ErrUnexpectedEOF
	}
	if !bytes.Equal(buf[:6], Magic[:]) {
		return 0, 0, errBadMagic
	}
	return buf[6], buf[7], nil
}

// CurrentVersion returns the major/minor version this package writes.
func CurrentVersion() (major, minor byte) { return currentMajor, currentMinor }

var errBadMagic = fmt.Errorf("section: bad magic")

// ErrBadMagic is returned by ParseFileHeader when the signature doesn't match.
func ErrBadMagic() error { return errBadMagic }

// Write frames and writes one section: it compresses payload with the
// requested codec, fills in the header, and writes header+payload to w.
// It returns the number of bytes written.
func Write(w io.Writer, typ Type, tag codec.Tag, payload []byte, params map[string]string) (int64, error) {
	c, ok := codec.Lookup(tag)
	if !ok {
		return 0, fmt.Errorf("section: %w: %s", errUnsupportedCodec, tag)
	}
	compressed, err := c.Compress(payload, params)
	if err != nil {
		return 0, err
	}
	hdr := Header{
		Type:             typ,
		Codec:            tag,
		UncompressedSize: uint64(len(payload)),
		CompressedSize:   uint64(len(compressed)),
	}
	hdr.Checksum = Checksum(hdr, compressed)
	raw, _ := hdr.MarshalBinary()
	n1, err := w.Write(raw)
	if err != nil {
		return int64(n1), err
	}
	n2, err := w.Write(compressed)
	return int64(n1 + n2), err
}

var errUnsupportedCodec = fmt.Errorf("unsupported codec")

// Read reads one section's header and raw (still-compressed) payload at
// the given offset from r. It verifies the checksum unless noCheck is
// set, in which case a mismatch is returned as a non-fatal
// *ChecksumWarning alongside the data rather than a hard error.
func Read(r io.ReaderAt, offset int64, noCheck bool) (Header, []byte, *ChecksumWarning, error) {
	hdrBuf := make([]byte, HeaderSize)
	if _, err := r.ReadAt(hdrBuf, offset); err != nil {
		return Header{}, nil, nil, err
	}
	var hdr Header
	if err := hdr.UnmarshalBinary(hdrBuf); err != nil {
		return Header{}, nil, nil, err
	}
	payload := make([]byte, hdr.CompressedSize)
	if hdr.CompressedSize > 0 {
		if _, err := r.ReadAt(payload, offset+HeaderSize); err != nil {
			return Header{}, nil, nil, err
		}
	}
	got := Checksum(hdr, payload)
	var warn *ChecksumWarning
	if got != hdr.Checksum {
		warn = &ChecksumWarning{Offset: offset, Type: hdr.Type}
		if !noCheck {
			return hdr, payload, warn, fmt.Errorf("section at offset %d: checksum mismatch", offset)
		}
	}
	return hdr, payload, warn, nil
}

// ChecksumWarning reports a checksum mismatch that --no-check suppressed
// from being a hard error.
type ChecksumWarning struct {
	Offset int64
	Type   Type
}

func (w *ChecksumWarning) Error() string {
	return fmt.Sprintf("checksum mismatch for %s section at offset %d", w.Type, w.Offset)
}

// Size returns the total on-disk size (header+payload) of a section.
func Size(hdr Header) int64 { return HeaderSize + int64(hdr.CompressedSize) }

// IndexEntry records where one earlier section in the stream lives,
// letting a reader seek straight to a section type instead of walking
// the whole stream.
type IndexEntry struct {
	Type   Type
	Offset uint64
	Length uint64 // header + payload, i.e. what Size(hdr) would report
}

const indexEntrySize = 2 + 8 + 8

// EncodeIndex serializes an INDEX section's payload: entry count
// followed by fixed-size (type, offset, length) records, in the order
// the sections themselves were written.
func EncodeIndex(entries []IndexEntry) []byte {
	buf := make([]byte, 4+len(entries)*indexEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(entries)))
	off := 4
	for _, e := range entries {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(e.Type))
		binary.LittleEndian.PutUint64(buf[off+2:off+10], e.Offset)
		binary.LittleEndian.PutUint64(buf[off+10:off+18], e.Length)
		off += indexEntrySize
	}
	return buf
}

// DecodeIndex parses a payload produced by EncodeIndex.
func DecodeIndex(payload []byte) ([]IndexEntry, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("section: truncated index payload")
	}
	count := binary.LittleEndian.Uint32(payload[0:4])
	want := 4 + int(count)*indexEntrySize
	if len(payload) < want {
		return nil, fmt.Errorf("section: truncated index payload: want %d bytes, have %d", want, len(payload))
	}
	entries := make([]IndexEntry, count)
	off := 4
	for i := range entries {
		entries[i] = IndexEntry{
			Type:   Type(binary.LittleEndian.Uint16(payload[off : off+2])),
			Offset: binary.LittleEndian.Uint64(payload[off+2 : off+10]),
			Length: binary.LittleEndian.Uint64(payload[off+10 : off+18]),
		}
		off += indexEntrySize
	}
	return entries, nil
}

// Decompress fully decodes a section's payload using its codec tag,
// driving the streaming Decoder to completion (used when the block
// cache is bypassed, e.g. for SCHEMA/METADATA sections which are read
// once at open and never partially).
func Decompress(hdr Header, payload []byte) ([]byte, error) {
	c, ok := codec.Lookup(hdr.Codec)
	if !ok {
		return nil, fmt.Errorf("section: %w: %s", errUnsupportedCodec, hdr.Codec)
	}
	dec, err := c.NewDecoder(payload)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, hdr.UncompressedSize)
	for {
		var more bool
		out, more, err = dec.DecompressFrame(out)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return out, nil
}
