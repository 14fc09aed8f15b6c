package codec

import (
	"bytes"
	"strconv"

	"github.com/klauspost/compress/flate"
)

// gzipCodec uses raw DEFLATE (klauspost/compress/flate) rather than the
// gzip container: section framing already carries a length and checksum,
// so the gzip header/trailer would be redundant. The tag keeps the name
// "gzip" for compatibility with the --compression flag naming.
type gzipCodec struct{}

func (gzipCodec) Tag() Tag { return GZip }

func (gzipCodec) Compress(in []byte, params map[string]string) ([]byte, error) {
	level := flate.DefaultCompression
	if v, ok := params["level"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			level = n
		}
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(in); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) NewDecoder(compressed []byte) (Decoder, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	return newStreamDecoder(r, r, 0), nil
}

func init() { Register(gzipCodec{}) }
