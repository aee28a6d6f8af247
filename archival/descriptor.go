package archival

import (
	"github.com/eventpix/media-archiver/common"
)

// FileDescriptor is one media item to be pulled into an archive. Descriptors
// are treated as immutable once handed to a Manager.
type FileDescriptor struct {
	Name          string
	SizeHintBytes int64
	Kind          string
	SourceURL     string
}

// UsableFiles drops descriptors the archiver cannot act on: missing names or
// source URLs, or kinds it doesn't understand. Callers are expected to run
// their gallery listing through this before asking for an archive.
func UsableFiles(files []FileDescriptor) []FileDescriptor {
	usable := make([]FileDescriptor, 0, len(files))
	for _, f := range files {
		if f.Name == "" || f.SourceURL == "" {
			continue
		}
		if !common.IsArchivableKind(f.Kind) {
			continue
		}
		usable = append(usable, f)
	}
	return usable
}

func totalSizeHint(files []FileDescriptor) int64 {
	var total int64
	for _, f := range files {
		if f.SizeHintBytes > 0 {
			total += f.SizeHintBytes
		}
	}
	return total
}
