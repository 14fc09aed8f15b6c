// Package categorize implements the pluggable content classifier the
// writer consults before deciding how hard to try compressing a file's
// bytes. It mirrors the teacher's habit of keeping format-sniffing
// logic (the codec package's own Lookup-by-tag dispatch) as small,
// independent, composable predicates rather than one monolithic
// switch.
package categorize

import "bytes"

// Category labels a file's content for the writer's block-assembly
// pass. The zero value, CategoryDefault, means "segment and compress
// normally".
type Category int

const (
	CategoryDefault Category = iota
	// CategoryIncompressible marks content not worth spending codec
	// effort on: already-compressed containers, media, and archives.
	CategoryIncompressible
)

func (c Category) String() string {
	switch c {
	case CategoryIncompressible:
		return "incompressible"
	default:
		return "default"
	}
}

// Categorizer inspects one file's full content (and its source path,
// for extension-based hints) and returns the Category the writer
// should route it through.
type Categorizer func(data []byte, path string) Category

// knownMagic pairs a leading byte signature with the Category it implies.
var knownMagic = []struct {
	sig []byte
	cat Category
}{
	{[]byte{0x1f, 0x8b}, CategoryIncompressible},             // gzip
	{[]byte("PK\x03\x04"), CategoryIncompressible},            // zip/jar/apk
	{[]byte("PK\x05\x06"), CategoryIncompressible},            // empty zip
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, CategoryIncompressible},  // zstd
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, CategoryIncompressible}, // xz
	{[]byte("BZh"), CategoryIncompressible},                   // bzip2
	{[]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, CategoryIncompressible}, // png
	{[]byte{0xff, 0xd8, 0xff}, CategoryIncompressible},        // jpeg
	{[]byte("GIF8"), CategoryIncompressible},                  // gif
}

// Incompressible is the one built-in Categorizer: it flags content
// whose leading bytes match a well-known already-compressed or
// already-entropy-dense container format, so the block writer doesn't
// burn a worker re-running a general-purpose codec over it.
func Incompressible(data []byte, path string) Category {
	for _, m := range knownMagic {
		if len(m.sig) == 0 || len(data) < len(m.sig) {
			continue
		}
		if bytes.Equal(data[:len(m.sig)], m.sig) {
			return m.cat
		}
	}
	return CategoryDefault
}
