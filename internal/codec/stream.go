package codec

import "io"

// frameSize bounds how much plaintext a single DecompressFrame call
// produces. Callers drive decompression in a loop, publishing progress
// after every frame, so a smaller frame size means finer-grained progress
// for readers waiting on a partial range at the cost of more calls into
// the underlying decompressor.
const frameSize = 64 * 1024

// streamDecoder adapts any io.Reader-based decompressor (flate, zstd, xz
// all expose one) to the Decoder interface by pulling frameSize bytes at
// a time.
type streamDecoder struct {
	r          io.Reader
	closer     io.Closer
	uncompSize int
	read       int
	buf        [frameSize]byte
}

func newStreamDecoder(r io.Reader, closer io.Closer, uncompSize int) *streamDecoder {
	return &streamDecoder{r: r, closer: closer, uncompSize: uncompSize}
}

func (d *streamDecoder) UncompressedSize() int { return d.uncompSize }

func (d *streamDecoder) DecompressFrame(dst []byte) ([]byte, bool, error) {
	n, err := io.ReadFull(d.r, d.buf[:])
	if n > 0 {
		dst = append(dst, d.buf[:n]...)
		d.read += n
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if d.closer != nil {
			_ = d.closer.Close()
		}
		return dst, false, nil
	}
	if err != nil {
		return dst, false, err
	}
	// Full frame read and no EOF observed yet: there may be more.
	if d.uncompSize > 0 && d.read >= d.uncompSize {
		if d.closer != nil {
			_ = d.closer.Close()
		}
		return dst, false, nil
	}
	return dst, true, nil
}
