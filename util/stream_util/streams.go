package stream_util

import (
	"bytes"
	"io"
)

func BytesToStream(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}

// DumpAndCloseStream drains whatever is left on r so the transport can
// recycle the connection, then closes it. Safe to call with nil.
func DumpAndCloseStream(r io.ReadCloser) {
	if r == nil {
		return
	}
	_, _ = io.Copy(io.Discard, r)
	_ = r.Close()
}
