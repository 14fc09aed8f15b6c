package metadata

// Encoding names the transform applied to a field's stored values
// relative to its logical values.
type Encoding uint8

const (
	EncodingPlain Encoding = iota
	EncodingDelta
	EncodingPackedString
	EncodingRLE
)

func (e Encoding) String() string {
	switch e {
	case EncodingPlain:
		return "plain"
	case EncodingDelta:
		return "delta"
	case EncodingPackedString:
		return "packed-string-table"
	case EncodingRLE:
		return "rle"
	default:
		return "unknown"
	}
}

// FieldDesc self-describes one field of the frozen tree for a tolerant
// reader: readers that don't recognize a field's Path skip it rather
// than failing the whole metadata section.
type FieldDesc struct {
	Path     string
	BitWidth int
	Signed   bool
	Encoding Encoding
}

// Schema is the ordered list of fields written into the SCHEMA section
// ahead of METADATA. Version is bumped whenever a field is added so
// readers can distinguish "unknown field" from "tool is out of date".
type Schema struct {
	Version int
	Fields  []FieldDesc
}

// CurrentSchema describes the field layout this package writes. Readers
// built against an older Schema.Version must still be able to read
// images produced with a newer one, modulo fields they don't recognize;
// this package recognizes exactly these paths and ignores any other
// entries found in an incoming Schema (forward compatibility).
func CurrentSchema() Schema {
	return Schema{
		Version: 1,
		Fields: []FieldDesc{
			{Path: "entries.mode", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "entries.owner_index", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "entries.group_index", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "entries.atime_offset", BitWidth: 64, Encoding: EncodingPlain},
			{Path: "entries.mtime_offset", BitWidth: 64, Encoding: EncodingPlain},
			{Path: "entries.ctime_offset", BitWidth: 64, Encoding: EncodingPlain},
			{Path: "entries.name_index", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "entries.inode_num", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "dir_entries.entry_index", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "dir_entries.parent_index", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "directories.first_entry", BitWidth: 32, Encoding: EncodingDelta},
			{Path: "directories.parent_entry", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "chunk_table", BitWidth: 32, Encoding: EncodingDelta},
			{Path: "chunks", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "symlink_table", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "symlinks", BitWidth: 0, Encoding: EncodingPackedString},
			{Path: "names", BitWidth: 0, Encoding: EncodingPackedString},
			{Path: "uids", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "gids", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "modes", BitWidth: 32, Encoding: EncodingPlain},
			{Path: "devices.rdev", BitWidth: 64, Encoding: EncodingPlain},
			{Path: "shared_files_table", BitWidth: 32, Encoding: EncodingRLE},
		},
	}
}

// Has reports whether the schema names a field at path, so a reader can
// tell "absent, tolerate" apart from "present but unreadable".
func (s Schema) Has(path string) bool {
	for _, f := range s.Fields {
		if f.Path == path {
			return true
		}
	}
	return false
}
