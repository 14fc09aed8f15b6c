package codec

// storedCodec implements the degenerate "no compression" codec. It is
// always registered and is used only where a caller selects it
// explicitly; section.Write does not fall back to it when another codec
// fails to shrink a block.
type storedCodec struct{}

func (storedCodec) Tag() Tag { return None }

func (storedCodec) Compress(in []byte, _ map[string]string) ([]byte, error) {
	out := make([]byte, len(in))
	copy(out, in)
	return out, nil
}

func (storedCodec) NewDecoder(compressed []byte) (Decoder, error) {
	return &storedDecoder{data: compressed}, nil
}

type storedDecoder struct {
	data []byte
	done bool
}

func (d *storedDecoder) UncompressedSize() int { return len(d.data) }

func (d *storedDecoder) DecompressFrame(dst []byte) ([]byte, bool, error) {
	if d.done {
		return dst, false, nil
	}
	d.done = true
	return append(dst, d.data...), false, nil
}

func init() { Register(storedCodec{}) }
