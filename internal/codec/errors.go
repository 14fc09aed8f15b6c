package codec

import "errors"

// ErrTruncated is returned by a Decoder when the compressed payload ends
// in the middle of a frame.
var ErrTruncated = errors.New("codec: truncated compressed stream")
