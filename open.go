package dwarfs

import (
	"errors"
	"fmt"
	"os"

	"github.com/dwarfs-go/dwarfs/internal/blockcache"
	"github.com/dwarfs-go/dwarfs/internal/codec"
	"github.com/dwarfs-go/dwarfs/internal/inodereader"
	"github.com/dwarfs-go/dwarfs/internal/logging"
	"github.com/dwarfs-go/dwarfs/internal/metadata"
	"github.com/dwarfs-go/dwarfs/internal/mmap"
	"github.com/dwarfs-go/dwarfs/internal/section"
)

// Open maps the image at path and parses its section stream into a
// ready-to-use Filesystem. The returned Filesystem must be Closed once
// the caller is done with it.
func Open(path string, opts ...Option) (*Filesystem, error) {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	log := logging.With(o.log, "open")

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dwarfs: %w: %s", ErrIO, err)
	}
	img, err := mmap.Open(f, o.lockMode)
	if err != nil {
		return nil, fmt.Errorf("dwarfs: %w: %s", ErrMap, err)
	}

	fsys := &Filesystem{img: img, enableNlink: o.enableNlink, noCheck: o.noCheck}
	if err := fsys.parse(o, log); err != nil {
		img.Close()
		return nil, err
	}
	return fsys, nil
}

// parse walks the section stream starting at o.imageOffset, collecting
// block offsets and decoding the SCHEMA and METADATA sections.
func (f *Filesystem) parse(o options, log logging.Logger) error {
	hdrBuf := make([]byte, section.FileHeaderSize)
	if _, err := f.img.ReadAt(hdrBuf, o.imageOffset); err != nil {
		return fmt.Errorf("dwarfs: %w: reading file header: %s", ErrIO, err)
	}
	major, minor, err := section.ParseFileHeader(hdrBuf)
	if err != nil {
		return ErrBadMagic
	}
	wantMajor, _ := section.CurrentVersion()
	if major != wantMajor {
		return fmt.Errorf("%w: image is v%d.%d", ErrUnsupportedVersion, major, minor)
	}

	var (
		schema       metadata.Schema
		haveSchema   bool
		metaPayload  []byte
		metaHdr      section.Header
		haveMetadata bool
	)

	offset := o.imageOffset + section.FileHeaderSize
	index := 0
	for offset < f.img.Size() {
		hdr, payload, warn, err := section.Read(f.img, offset, o.noCheck)
		if err != nil {
			return &SectionError{Index: index, Type: hdr.Type.String(), Offset: offset, Err: err}
		}
		if warn != nil {
			log.Warn().Int64("offset", offset).Str("type", warn.Type.String()).Msg("checksum mismatch, continuing")
		}
		if _, ok := codec.Lookup(hdr.Codec); !ok {
			return fmt.Errorf("%w: section %d (%s) at offset %d uses %s", ErrUnsupportedCodec, index, hdr.Type, offset, hdr.Codec)
		}

		switch hdr.Type {
		case section.TypeBlock:
			f.blockOffsets = append(f.blockOffsets, offset)
		case section.TypeSchema:
			raw, err := section.Decompress(hdr, payload)
			if err != nil {
				return &SectionError{Index: index, Type: "SCHEMA", Offset: offset, Err: err}
			}
			schema, err = metadata.DecodeSchema(raw)
			if err != nil {
				return &SectionError{Index: index, Type: "SCHEMA", Offset: offset, Err: err}
			}
			haveSchema = true
		case section.TypeMetadata:
			metaHdr = hdr
			metaPayload = payload
			haveMetadata = true
		case section.TypeHistory:
			raw, err := section.Decompress(hdr, payload)
			if err != nil {
				return &SectionError{Index: index, Type: "HISTORY", Offset: offset, Err: err}
			}
			f.historyBytes = raw
		case section.TypeIndex:
			raw, err := section.Decompress(hdr, payload)
			if err != nil {
				return &SectionError{Index: index, Type: "INDEX", Offset: offset, Err: err}
			}
			entries, err := section.DecodeIndex(raw)
			if err != nil {
				return &SectionError{Index: index, Type: "INDEX", Offset: offset, Err: err}
			}
			f.index = entries
		case section.TypeHeader:
			// Carried for inspection tooling; not needed to serve reads.
		}

		offset += section.Size(hdr)
		index++
	}

	if !haveSchema || !haveMetadata {
		return fmt.Errorf("%w: missing SCHEMA or METADATA section", ErrCorruptSection)
	}
	rawMeta, err := section.Decompress(metaHdr, metaPayload)
	if err != nil {
		return &SectionError{Type: "METADATA", Err: err}
	}
	tree, err := metadata.Decode(rawMeta, schema)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCorruptMetadata, err)
	}
	if err := metadata.CheckConsistency(tree); err != nil {
		var inv *metadata.InvariantError
		if errors.As(err, &inv) {
			return &MetadataError{Invariant: inv.Invariant, Detail: inv.Detail}
		}
		return fmt.Errorf("%w: %s", ErrCorruptMetadata, err)
	}
	f.tree = tree

	cacheOpt := blockcache.Options{
		MaxBytes:  o.cacheBytes,
		BlockSize: int64(tree.BlockSize),
		Workers:   o.workers,
	}
	f.cache = blockcache.New(blockSourceAdapter{fsys: f}, cacheOpt)
	f.rdr = inodereader.New(tree, f.cache)
	return nil
}
