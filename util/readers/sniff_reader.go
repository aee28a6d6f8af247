package readers

import (
	"bytes"
	"errors"
	"io"
)

// SniffReader buffers whatever a content sniffer consumes off the head of a
// stream so the complete stream can be reassembled afterwards. Read from it,
// then call Rewound to get a reader that replays the sniffed prefix followed
// by the rest of the original stream. Rewinding is a one-way door: once
// Rewound has been called the SniffReader itself refuses further reads.
type SniffReader struct {
	head    *bytes.Buffer
	tee     io.Reader
	source  io.Reader
	rewound io.Reader
}

func NewSniffReader(r io.Reader) *SniffReader {
	head := &bytes.Buffer{}
	return &SniffReader{
		head:   head,
		tee:    io.TeeReader(r, head),
		source: r,
	}
}

func (r *SniffReader) Read(p []byte) (int, error) {
	if r.rewound != nil {
		return 0, errors.New("stream was rewound; read from the rewound reader instead")
	}
	return r.tee.Read(p)
}

func (r *SniffReader) Rewound() io.Reader {
	if r.rewound == nil {
		r.rewound = io.MultiReader(r.head, r.source)
	}
	return r.rewound
}
