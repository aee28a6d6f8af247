package archival

import (
	"io"

	"github.com/eventpix/media-archiver/util/stream_util"
)

// Blob is a finalized archive held in memory. Callers must Release it once
// consumed; the session keeps no other reference to the bytes.
type Blob struct {
	SessionID string
	Title     string
	NumFiles  int

	data []byte
}

func (b *Blob) Bytes() []byte {
	return b.data
}

func (b *Blob) Len() int {
	return len(b.data)
}

func (b *Blob) NewReader() io.ReadCloser {
	return stream_util.BytesToStream(b.data)
}

func (b *Blob) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.data)
	return int64(n), err
}

// Release drops the archive bytes. Readers created before Release keep
// working; the blob itself reports empty afterwards.
func (b *Blob) Release() {
	b.data = nil
}
