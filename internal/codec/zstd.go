package codec

import (
	"bytes"
	"strconv"

	"github.com/klauspost/compress/zstd"
)

// zstdCodec is the default modern codec: good ratio, fast streaming
// decode, which lets the block cache decompress partial ranges cheaply.
type zstdCodec struct{}

func (zstdCodec) Tag() Tag { return Zstd }

func (zstdCodec) Compress(in []byte, params map[string]string) ([]byte, error) {
	level := zstd.SpeedDefault
	if v, ok := params["level"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			// "level" uses zstd's own 1..22 scale (mkdwarfs passes -l).
			level = zstd.EncoderLevelFromZstd(n)
		}
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(in, nil), nil
}

type zstdDecoderCloser struct {
	d *zstd.Decoder
}

func (c zstdDecoderCloser) Close() error {
	c.d.Close()
	return nil
}

func (zstdCodec) NewDecoder(compressed []byte) (Decoder, error) {
	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	return newStreamDecoder(dec, zstdDecoderCloser{dec}, 0), nil
}

func init() { Register(zstdCodec{}) }
