package readers

import (
	"io"

	"github.com/eventpix/media-archiver/common"
)

// LimitReaderWithOverrunError caps r at n bytes, failing with
// common.ErrMediaTooLarge as soon as the underlying stream goes past the
// cap. io.LimitReader would silently truncate, which for media downloads
// means a corrupt file in the archive instead of a clean refusal.
func LimitReaderWithOverrunError(r io.ReadCloser, n int64) io.ReadCloser {
	return &overrunReader{r: r, left: n}
}

type overrunReader struct {
	r    io.ReadCloser
	left int64
}

func (r *overrunReader) Read(p []byte) (int, error) {
	if r.left <= 0 {
		// Probe for one more byte; anything at all means the stream is over
		// budget.
		var probe [1]byte
		n, err := r.r.Read(probe[:])
		if n > 0 {
			return 0, common.ErrMediaTooLarge
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		return 0, io.EOF
	}

	if int64(len(p)) > r.left {
		p = p[:r.left]
	}
	n, err := r.r.Read(p)
	r.left -= int64(n)
	return n, err
}

func (r *overrunReader) Close() error {
	return r.r.Close()
}
