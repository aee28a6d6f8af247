package archival

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/eventpix/media-archiver/common/rcontext"
	"github.com/eventpix/media-archiver/util/readers"
	"github.com/eventpix/media-archiver/util/stream_util"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/sirupsen/logrus"
)

type archiveEntry struct {
	name string
	size int64
	data *bytes.Buffer
}

// session accumulates fetched media for one archive and serializes it into a
// zip. A session belongs to exactly one Generate call and is never reused.
type session struct {
	ctx   rcontext.RequestContext
	id    string
	title string
	level int

	mu        sync.Mutex
	entries   []*archiveEntry
	names     map[string]int
	byteTotal int64
}

func newSession(ctx rcontext.RequestContext, title string, level int) *session {
	id := uuid.New().String()
	return &session{
		ctx:     ctx.LogWithFields(logrus.Fields{"archive-session": id}),
		id:      id,
		title:   title,
		level:   level,
		entries: make([]*archiveEntry, 0),
		names:   make(map[string]int),
	}
}

// putEntry buffers one media stream into the session under the given name.
// Safe for concurrent use. Returns the number of bytes kept.
func (s *session) putEntry(file io.ReadCloser, name string) (int64, error) {
	defer stream_util.DumpAndCloseStream(file)

	sr := readers.NewSniffReader(file)
	detected, err := mimetype.DetectReader(sr)
	if err != nil {
		return 0, err
	}

	buf := &bytes.Buffer{}
	size, err := io.Copy(buf, sr.Rewound())
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entryName := s.claimName(ensureExtension(name, detected))
	s.entries = append(s.entries, &archiveEntry{name: entryName, size: size, data: buf})
	s.byteTotal += size
	s.ctx.Log.Debugf("Buffered %s for archive (%s)", entryName, humanize.Bytes(uint64(size)))
	return size, nil
}

func (s *session) entryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *session) sizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byteTotal
}

// ensureExtension appends the sniffed extension when the descriptor name has
// none. Names that already carry an extension are trusted.
func ensureExtension(name string, detected *mimetype.MIME) string {
	if path.Ext(name) != "" {
		return name
	}
	ext := detected.Extension()
	if ext == "" {
		return name
	}
	return name + ext
}

// claimName reserves a unique entry name, appending " (n)" before the
// extension on collisions. Callers hold s.mu.
func (s *session) claimName(name string) string {
	if _, taken := s.names[name]; !taken {
		s.names[name] = 1
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	n := s.names[name]
	for {
		n++
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, taken := s.names[candidate]; !taken {
			s.names[name] = n
			s.names[candidate] = 1
			return candidate
		}
	}
}

// finalize serializes every buffered entry into a single zip blob. When
// store is true entries are written uncompressed. The deadline on ctx is
// checked between entries; hitting it abandons the write with ctx.Err().
func (s *session) finalize(ctx rcontext.RequestContext, store bool) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &bytes.Buffer{}
	zw := zip.NewWriter(out)
	method := zip.Deflate
	if store {
		method = zip.Store
	} else {
		zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, s.level)
		})
	}

	modTime := time.Now().UTC()
	for _, e := range s.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header := &zip.FileHeader{
			Name:     e.name,
			Method:   method,
			Modified: modTime,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(w, bytes.NewReader(e.data.Bytes())); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	s.ctx.Log.Infof("Serialized %d files into a %s archive", len(s.entries), humanize.Bytes(uint64(out.Len())))
	return &Blob{
		SessionID: s.id,
		Title:     s.title,
		NumFiles:  len(s.entries),
		data:      out.Bytes(),
	}, nil
}

// releaseEntries drops the per-file buffers once the session is over.
func (s *session) releaseEntries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.names = nil
}
