// Package codec implements the block compression plugin contract: a
// stable tag maps to a pair of factories, one producing a one-shot
// compressor and one producing a streaming decoder that the block
// cache can call incrementally so it never blocks a reader on more
// decompression than the read actually needs.
package codec

import (
	"fmt"
	"sync"
)

// Tag identifies a codec on the wire. Values are stable across versions;
// unknown tags fail image open with ErrUnsupportedCodec.
type Tag uint16

const (
	None Tag = iota
	GZip
	Zstd
	XZ
	FSST
)

func (t Tag) String() string {
	switch t {
	case None:
		return "none"
	case GZip:
		return "gzip"
	case Zstd:
		return "zstd"
	case XZ:
		return "xz"
	case FSST:
		return "fsst"
	default:
		return fmt.Sprintf("codec(%d)", uint16(t))
	}
}

// Decoder streams decompressed bytes out of a single compressed block.
// DecompressFrame appends the next frame's worth of plaintext to dst and
// reports whether the decoder produced everything there is to produce.
// Callers drive it in a loop until `more` is false or enough bytes have
// been produced.
type Decoder interface {
	DecompressFrame(dst []byte) (out []byte, more bool, err error)
	UncompressedSize() int
}

// Codec is the contract a compression plugin implements.
type Codec interface {
	Tag() Tag
	// Compress returns framed, codec-specific compressed bytes for in,
	// honoring optional parameters (a map, as ParseParams builds from a
	// "k=v,k2=v2" string; nil means defaults).
	Compress(in []byte, params map[string]string) ([]byte, error)
	// NewDecoder wraps compressed bytes (the full section payload) with
	// a streaming decoder.
	NewDecoder(compressed []byte) (Decoder, error)
}

var (
	mu       sync.RWMutex
	registry = map[Tag]Codec{}
)

// Register binds a codec implementation to its tag. Called from each
// codec file's init().
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	registry[c.Tag()] = c
}

// Lookup returns the codec registered for tag, or false if none is
// registered (the caller should fail image open with ErrUnsupportedCodec).
func Lookup(tag Tag) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[tag]
	return c, ok
}

// ParseParams splits a "k=v,k2=v2" parameter string into a map.
func ParseParams(s string) map[string]string {
	out := map[string]string{}
	if s == "" {
		return out
	}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			kv := s[start:i]
			start = i + 1
			if kv == "" {
				continue
			}
			for j := 0; j < len(kv); j++ {
				if kv[j] == '=' {
					out[kv[:j]] = kv[j+1:]
					goto next
				}
			}
			out[kv] = ""
		next:
		}
	}
	return out
}
