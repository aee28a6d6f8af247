package archival

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eventpix/media-archiver/common/rcontext"
	"github.com/eventpix/media-archiver/fetch"
	"github.com/eventpix/media-archiver/metrics"
	"github.com/eventpix/media-archiver/pool"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
)

// MediaFetcher pulls one remote media item. Implementations must honor any
// deadline already present on ctx.
type MediaFetcher interface {
	DownloadMedia(url string, ctx rcontext.RequestContext) (*fetch.DownloadedMedia, error)
}

const defaultChunkSize = 3

func chunkDescriptors(files []FileDescriptor, size int) [][]FileDescriptor {
	if size < 1 {
		size = 1
	}
	chunks := make([][]FileDescriptor, 0, (len(files)+size-1)/size)
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		chunks = append(chunks, files[start:end])
	}
	return chunks
}

// runFetchPhase walks the descriptor list chunk by chunk: chunks run in
// order, files within a chunk concurrently. Cancellation, the phase
// deadline, and the failure breaker are all observed between chunks only, so
// at most one chunk of in-flight transfers completes after any of them
// fires. Whatever was fetched stays in the session either way.
func (m *Manager) runFetchPhase(ctx rcontext.RequestContext, files []FileDescriptor) {
	budget := m.fetchBudget(len(files))
	var cancel context.CancelFunc
	ctx.Context, cancel = context.WithTimeout(ctx.Context, budget)
	defer cancel()

	ctx.Log.Infof("Fetching %d files with a budget of %s", len(files), budget)

	queue, err := pool.NewQueue(m.chunkSize, "archive-fetch")
	if err != nil {
		ctx.Log.Error("Unable to start fetch workers: ", err)
		sentry.CaptureException(err)
		m.tracker.setError("Could not start fetch workers")
		return
	}
	defer queue.Release()

	total := len(files)
	for _, chunk := range chunkDescriptors(files, m.chunkSize) {
		if m.token.IsCancelled() {
			ctx.Log.Info("Cancellation observed; no further files will be fetched")
			m.tracker.markCancelled()
			return
		}
		if ctx.Err() != nil {
			processed := m.tracker.snapshot().ProcessedFiles
			ctx.Log.Warnf("Fetch phase timed out after %d of %d files", processed, total)
			m.tracker.setError(fmt.Sprintf("Timed out after processing %d of %d files", processed, total))
			return
		}
		if m.breakerTripped() {
			ctx.Log.Warnf("Stopping after %d consecutive fetch failures", m.maxConsecutiveFails)
			m.tracker.setError(fmt.Sprintf("Aborted after %d consecutive fetch failures", m.maxConsecutiveFails))
			return
		}

		wg := &sync.WaitGroup{}
		for _, f := range chunk {
			f := f
			wg.Add(1)
			if err := queue.Schedule(func() {
				defer wg.Done()
				m.fetchOne(ctx, f)
			}); err != nil {
				wg.Done()
				m.recordFailure(ctx, f, err)
			}
		}
		wg.Wait()
	}
}

func (m *Manager) fetchOne(ctx rcontext.RequestContext, f FileDescriptor) {
	m.tracker.fileStarted(f.Name)

	media, err := m.fetcher.DownloadMedia(f.SourceURL, ctx)
	if err != nil {
		m.recordFailure(ctx, f, err)
		return
	}

	size, err := m.session.putEntry(media.Contents, entryNameFor(f, media))
	if err != nil {
		metrics.MediaFetchFailures.With(prometheus.Labels{"reason": "insert"}).Inc()
		m.recordFailure(ctx, f, err)
		return
	}

	atomic.StoreInt32(&m.consecutiveFailures, 0)
	metrics.BytesFetched.Add(float64(size))
	m.tracker.fileDone(f.Name, size)
}

func entryNameFor(f FileDescriptor, media *fetch.DownloadedMedia) string {
	if f.Name != "" {
		return f.Name
	}
	if media.DesiredFilename != "" {
		return media.DesiredFilename
	}
	return "media"
}

// recordFailure logs and counts one skipped file. The archive keeps going;
// failures only surface through OnError and the final counts.
func (m *Manager) recordFailure(ctx rcontext.RequestContext, f FileDescriptor, err error) {
	ctx.Log.Error("Failed to archive "+f.Name+": ", err)
	sentry.CaptureException(err)
	atomic.AddInt32(&m.failCount, 1)
	atomic.AddInt32(&m.consecutiveFailures, 1)
	if m.onError != nil {
		m.cbMu.Lock()
		m.onError(f, err)
		m.cbMu.Unlock()
	}
}

func (m *Manager) breakerTripped() bool {
	return m.maxConsecutiveFails > 0 && int(atomic.LoadInt32(&m.consecutiveFailures)) >= m.maxConsecutiveFails
}
