package codec

import (
	"bytes"
	"sort"
)

// fsstCodec is a small FSST-style (Fast Static Symbol Table) coder for
// short, highly repetitive textual sub-streams such as the names[] and
// symlinks[] pools. It builds a per-block dictionary of up to 255 common
// byte strings (length 2..8), then encodes the stream as a sequence of
// symbol references and literal bytes. Single bytes are never symbols;
// they are always written as literals.
//
// Wire format: a one-byte symbol count N, then N (length-byte, bytes)
// dictionary entries, then the encoded body. In the body, byte 0xFF
// introduces either a symbol reference (0xFF, id) or an escaped literal
// 0xFF (0xFF, 0xFF); any other byte is a literal.
type fsstCodec struct{}

func (fsstCodec) Tag() Tag { return FSST }

const (
	fsstEscape    = 0xFF
	fsstMaxSymLen = 8
	fsstMaxSyms   = 255
)

func (fsstCodec) Compress(in []byte, _ map[string]string) ([]byte, error) {
	dict := buildFSSTDictionary(in)

	var out bytes.Buffer
	out.WriteByte(byte(len(dict)))
	index := make(map[string]byte, len(dict))
	for i, sym := range dict {
		out.WriteByte(byte(len(sym)))
		out.WriteString(sym)
		index[sym] = byte(i)
	}

	i := 0
	for i < len(in) {
		matched := false
		maxLen := fsstMaxSymLen
		if rem := len(in) - i; rem < maxLen {
			maxLen = rem
		}
		for l := maxLen; l >= 1; l-- {
			if id, ok := index[string(in[i:i+l])]; ok {
				out.WriteByte(fsstEscape)
				out.WriteByte(id)
				i += l
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		b := in[i]
		if b == fsstEscape {
			out.WriteByte(fsstEscape)
			out.WriteByte(fsstEscape)
		} else {
			out.WriteByte(b)
		}
		i++
	}
	return out.Bytes(), nil
}

// buildFSSTDictionary greedily selects up to fsstMaxSyms substrings of
// length 2..8 that maximize (length-1)*frequency, a simplified stand-in
// for the real FSST construction algorithm's counting pass.
func buildFSSTDictionary(in []byte) []string {
	type cand struct {
		s     string
		gain  int
		count int
	}
	freq := map[string]int{}
	for l := 2; l <= fsstMaxSymLen; l++ {
		for i := 0; i+l <= len(in); i++ {
			freq[string(in[i:i+l])]++
		}
	}
	cands := make([]cand, 0, len(freq))
	for s, c := range freq {
		if c < 2 {
			continue
		}
		cands = append(cands, cand{s: s, gain: (len(s) - 1) * c, count: c})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].gain > cands[j].gain })

	chosen := make([]string, 0, fsstMaxSyms)
	seen := map[string]bool{}
	for _, c := range cands {
		if len(chosen) >= fsstMaxSyms {
			break
		}
		if seen[c.s] {
			continue
		}
		seen[c.s] = true
		chosen = append(chosen, c.s)
	}
	return chosen
}

func (fsstCodec) NewDecoder(compressed []byte) (Decoder, error) {
	if len(compressed) == 0 {
		return &fsstDecoder{}, nil
	}
	n := int(compressed[0])
	pos := 1
	dict := make([]string, n)
	for i := 0; i < n; i++ {
		l := int(compressed[pos])
		pos++
		dict[i] = string(compressed[pos : pos+l])
		pos += l
	}
	return &fsstDecoder{dict: dict, body: compressed[pos:]}, nil
}

type fsstDecoder struct {
	dict []string
	body []byte
	done bool
}

func (d *fsstDecoder) UncompressedSize() int { return 0 }

func (d *fsstDecoder) DecompressFrame(dst []byte) ([]byte, bool, error) {
	if d.done {
		return dst, false, nil
	}
	d.done = true
	for i := 0; i < len(d.body); i++ {
		b := d.body[i]
		if b != fsstEscape {
			dst = append(dst, b)
			continue
		}
		i++
		if i >= len(d.body) {
			return dst, false, ErrTruncated
		}
		id := d.body[i]
		if id == fsstEscape {
			dst = append(dst, fsstEscape)
			continue
		}
		if int(id) >= len(d.dict) {
			return dst, false, ErrTruncated
		}
		dst = append(dst, d.dict[id]...)
	}
	return dst, false, nil
}

func init() { Register(fsstCodec{}) }
