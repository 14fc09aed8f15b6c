package codec

import (
	"bytes"

	"github.com/ulikunitz/xz"
)

// xzCodec offers the highest compression ratio at the cost of slower
// decompression.
type xzCodec struct{}

func (xzCodec) Tag() Tag { return XZ }

func (xzCodec) Compress(in []byte, _ map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
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

func (xzCodec) NewDecoder(compressed []byte) (Decoder, error) {
	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	return newStreamDecoder(r, nil, 0), nil
}

func init() { Register(xzCodec{}) }
