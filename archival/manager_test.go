package archival

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eventpix/media-archiver/common"
	"github.com/eventpix/media-archiver/common/rcontext"
	"github.com/eventpix/media-archiver/fetch"
	"github.com/eventpix/media-archiver/util/stream_util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetcherFunc func(url string, ctx rcontext.RequestContext) (*fetch.DownloadedMedia, error)

func (f fetcherFunc) DownloadMedia(url string, ctx rcontext.RequestContext) (*fetch.DownloadedMedia, error) {
	return f(url, ctx)
}

func pngMedia() *fetch.DownloadedMedia {
	return &fetch.DownloadedMedia{
		Contents:      stream_util.BytesToStream(pngBytes),
		ContentType:   "image/png",
		ContentLength: int64(len(pngBytes)),
	}
}

func mediaServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func galleryFiles(baseUrl string, names ...string) []FileDescriptor {
	files := make([]FileDescriptor, 0, len(names))
	for _, n := range names {
		files = append(files, FileDescriptor{
			Name:          n,
			SizeHintBytes: int64(len(pngBytes)),
			Kind:          common.KindImage,
			SourceURL:     baseUrl + "/" + n,
		})
	}
	return files
}

func readArchive(t *testing.T, blob *Blob) *zip.Reader {
	zr, err := zip.NewReader(bytes.NewReader(blob.Bytes()), int64(blob.Len()))
	require.NoError(t, err)
	return zr
}

func TestGenerateFullSuccess(t *testing.T) {
	srv := mediaServer(t)
	ctx := testCtx(t)

	snapshots := make([]Progress, 0)
	completions := 0
	failures := 0

	mgr := New(Options{
		ChunkSize: 3,
		Fetcher:   fetch.NewClient(ctx),
		OnProgress: func(p Progress) {
			snapshots = append(snapshots, p)
		},
		OnError:    func(f FileDescriptor, err error) { failures++ },
		OnComplete: func(b *Blob) { completions++ },
	})

	files := galleryFiles(srv.URL, "a.png", "b.png", "c.png", "d.png", "e.png", "f.png")
	blob, err := mgr.Generate(ctx, files, "summer party")
	require.NoError(t, err)
	require.NotNil(t, blob)

	assert.Equal(t, StateComplete, mgr.State())
	assert.Equal(t, 6, blob.NumFiles)
	assert.Equal(t, "summer party", blob.Title)
	assert.Equal(t, 1, completions)
	assert.Equal(t, 0, failures)

	zr := readArchive(t, blob)
	assert.Len(t, zr.File, 6)

	snap := mgr.Snapshot()
	assert.True(t, snap.Complete)
	assert.False(t, snap.Cancelled)
	assert.Equal(t, 100, snap.Percentage)
	assert.Equal(t, 6, snap.ProcessedFiles)
	assert.Equal(t, "", snap.Err)

	require.NotEmpty(t, snapshots)
	prev := -1
	for i, p := range snapshots {
		assert.GreaterOrEqual(t, p.Percentage, prev, "snapshot %d went backwards", i)
		prev = p.Percentage
	}
	assert.True(t, snapshots[len(snapshots)-1].Complete)
}

func TestGenerateSkipsFailedFiles(t *testing.T) {
	srv := mediaServer(t)
	ctx := testCtx(t)

	skipped := make([]string, 0)
	completions := 0
	mgr := New(Options{
		ChunkSize: 2,
		Fetcher:   fetch.NewClient(ctx),
		OnError: func(f FileDescriptor, err error) {
			skipped = append(skipped, f.Name)
			assert.ErrorIs(t, err, common.ErrMediaNotFound)
		},
		OnComplete: func(b *Blob) { completions++ },
	})

	files := galleryFiles(srv.URL, "a.png", "missing-1.png", "b.png", "missing-2.png", "c.png")
	blob, err := mgr.Generate(ctx, files, "test")
	require.NoError(t, err)
	require.NotNil(t, blob)

	// Skipped files degrade the contents, not the outcome.
	assert.Equal(t, StateComplete, mgr.State())
	assert.Equal(t, 1, completions)
	assert.Equal(t, 3, blob.NumFiles)
	assert.ElementsMatch(t, []string{"missing-1.png", "missing-2.png"}, skipped)

	snap := mgr.Snapshot()
	assert.Equal(t, 3, snap.ProcessedFiles)
	assert.Equal(t, 5, snap.TotalFiles)
	assert.Equal(t, "", snap.Err)
}

func TestGenerateNoSourceFiles(t *testing.T) {
	ctx := testCtx(t)
	mgr := New(Options{Fetcher: fetcherFunc(func(url string, ctx rcontext.RequestContext) (*fetch.DownloadedMedia, error) {
		return pngMedia(), nil
	})})

	blob, err := mgr.Generate(ctx, nil, "test")
	assert.Nil(t, blob)
	assert.ErrorIs(t, err, common.ErrNoSourceFiles)
	assert.Equal(t, StateFailed, mgr.State())
}

func TestGenerateIsSingleUse(t *testing.T) {
	srv := mediaServer(t)
	ctx := testCtx(t)
	mgr := New(Options{Fetcher: fetch.NewClient(ctx)})

	files := galleryFiles(srv.URL, "a.png")
	_, err := mgr.Generate(ctx, files, "test")
	require.NoError(t, err)

	blob, err := mgr.Generate(ctx, files, "test")
	assert.Nil(t, blob)
	assert.ErrorIs(t, err, common.ErrSessionActive)
}

func TestGenerateNothingArchived(t *testing.T) {
	srv := mediaServer(t)
	ctx := testCtx(t)
	mgr := New(Options{Fetcher: fetch.NewClient(ctx)})

	files := galleryFiles(srv.URL, "missing-1.png", "missing-2.png")
	blob, err := mgr.Generate(ctx, files, "test")
	assert.Nil(t, blob)
	assert.ErrorIs(t, err, common.ErrNothingArchived)
	assert.Equal(t, StateFailed, mgr.State())
	assert.Equal(t, common.ErrNothingArchived.Error(), mgr.Snapshot().Err)
}

func TestGenerateCancelBeforeAnyFetch(t *testing.T) {
	ctx := testCtx(t)
	mgr := New(Options{Fetcher: fetcherFunc(func(url string, ctx rcontext.RequestContext) (*fetch.DownloadedMedia, error) {
		return pngMedia(), nil
	})})
	mgr.Cancel()

	files := []FileDescriptor{{Name: "a.png", Kind: common.KindImage, SourceURL: "stub://media"}}
	blob, err := mgr.Generate(ctx, files, "test")
	assert.Nil(t, blob)
	assert.ErrorIs(t, err, common.ErrCancelled)
	assert.Equal(t, StateCancelled, mgr.State())
	assert.True(t, mgr.Snapshot().Cancelled)
}

func TestGenerateCancelStopsAtChunkBoundary(t *testing.T) {
	ctx := testCtx(t)

	var mgr *Manager
	mgr = New(Options{
		ChunkSize: 2,
		Fetcher: fetcherFunc(func(url string, ctx rcontext.RequestContext) (*fetch.DownloadedMedia, error) {
			time.Sleep(10 * time.Millisecond)
			return pngMedia(), nil
		}),
		OnProgress: func(p Progress) {
			if p.ProcessedFiles >= 1 {
				mgr.Cancel()
			}
		},
	})

	files := make([]FileDescriptor, 0)
	for i := 0; i < 8; i++ {
		files = append(files, FileDescriptor{Name: fmt.Sprintf("p%d.png", i), Kind: common.KindImage, SourceURL: "stub://media"})
	}

	blob, err := mgr.Generate(ctx, files, "test")
	require.NoError(t, err)
	require.NotNil(t, blob)

	// The first chunk was already in flight when the cancel landed; nothing
	// after it starts.
	assert.Equal(t, 2, blob.NumFiles)
	assert.Equal(t, StateCancelled, mgr.State())

	snap := mgr.Snapshot()
	assert.True(t, snap.Cancelled)
	assert.Equal(t, 2, snap.ProcessedFiles)
}

func TestGenerateFetchTimeoutKeepsPartialResults(t *testing.T) {
	ctx := testCtx(t)

	mgr := New(Options{
		ChunkSize: 1,
		Fetcher: fetcherFunc(func(url string, ctx rcontext.RequestContext) (*fetch.DownloadedMedia, error) {
			time.Sleep(60 * time.Millisecond)
			return pngMedia(), nil
		}),
	})
	mgr.fetchBudget = func(fileCount int) time.Duration { return 80 * time.Millisecond }

	files := make([]FileDescriptor, 0)
	for i := 0; i < 10; i++ {
		files = append(files, FileDescriptor{Name: fmt.Sprintf("p%d.png", i), Kind: common.KindImage, SourceURL: "stub://media"})
	}

	blob, err := mgr.Generate(ctx, files, "test")
	require.NoError(t, err)
	require.NotNil(t, blob)

	assert.Equal(t, StatePartialComplete, mgr.State())
	assert.Greater(t, blob.NumFiles, 0)
	assert.Less(t, blob.NumFiles, 10)

	snap := mgr.Snapshot()
	assert.Contains(t, snap.Err, "Timed out after processing")
	assert.True(t, snap.Complete)
}

func TestGenerateFinalizeFallsBackToStored(t *testing.T) {
	srv := mediaServer(t)
	ctx := testCtx(t)

	completions := 0
	mgr := New(Options{
		ChunkSize:  2,
		Fetcher:    fetch.NewClient(ctx),
		OnComplete: func(b *Blob) { completions++ },
	})
	mgr.finalizeBudget = func(sizeBytes int64) time.Duration { return 0 }

	files := galleryFiles(srv.URL, "a.png", "b.png", "c.png")
	blob, err := mgr.Generate(ctx, files, "test")
	require.NoError(t, err)
	require.NotNil(t, blob)

	assert.Equal(t, StatePartialComplete, mgr.State())
	assert.Equal(t, 0, completions)
	assert.Contains(t, mgr.Snapshot().Err, "Partial recovery: 3/3 files processed")

	zr := readArchive(t, blob)
	require.Len(t, zr.File, 3)
	for _, f := range zr.File {
		assert.Equal(t, zip.Store, f.Method)
	}
}

func TestGenerateCancelledSessionSkipsRecovery(t *testing.T) {
	ctx := testCtx(t)

	var mgr *Manager
	mgr = New(Options{
		ChunkSize: 2,
		Fetcher: fetcherFunc(func(url string, ctx rcontext.RequestContext) (*fetch.DownloadedMedia, error) {
			return pngMedia(), nil
		}),
		OnProgress: func(p Progress) {
			if p.ProcessedFiles >= 1 {
				mgr.Cancel()
			}
		},
	})
	mgr.finalizeBudget = func(sizeBytes int64) time.Duration { return 0 }

	files := make([]FileDescriptor, 0)
	for i := 0; i < 6; i++ {
		files = append(files, FileDescriptor{Name: fmt.Sprintf("p%d.png", i), Kind: common.KindImage, SourceURL: "stub://media"})
	}

	blob, err := mgr.Generate(ctx, files, "test")
	assert.Nil(t, blob)
	assert.ErrorIs(t, err, common.ErrFinalizeFailed)
	assert.Equal(t, StateCancelled, mgr.State())
}

func TestGenerateBreakerAbortsEarly(t *testing.T) {
	ctx := testCtx(t)

	failures := 0
	mgr := New(Options{
		ChunkSize:              1,
		MaxConsecutiveFailures: 2,
		Fetcher: fetcherFunc(func(url string, ctx rcontext.RequestContext) (*fetch.DownloadedMedia, error) {
			return nil, errors.New("remote exploded")
		}),
		OnError: func(f FileDescriptor, err error) { failures++ },
	})

	files := make([]FileDescriptor, 0)
	for i := 0; i < 10; i++ {
		files = append(files, FileDescriptor{Name: fmt.Sprintf("p%d.png", i), Kind: common.KindImage, SourceURL: "stub://media"})
	}

	blob, err := mgr.Generate(ctx, files, "test")
	assert.Nil(t, blob)
	assert.ErrorIs(t, err, common.ErrNothingArchived)
	assert.Equal(t, StateFailed, mgr.State())
	assert.Equal(t, 2, failures)
	assert.Contains(t, mgr.Snapshot().Err, "Aborted after 2 consecutive fetch failures")
}

func TestGenerateBoundsInFlightFetches(t *testing.T) {
	ctx := testCtx(t)

	var inFlight, highWater int32
	mgr := New(Options{
		ChunkSize: 3,
		Fetcher: fetcherFunc(func(url string, ctx rcontext.RequestContext) (*fetch.DownloadedMedia, error) {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				high := atomic.LoadInt32(&highWater)
				if cur <= high || atomic.CompareAndSwapInt32(&highWater, high, cur) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return pngMedia(), nil
		}),
	})

	files := make([]FileDescriptor, 0)
	for i := 0; i < 9; i++ {
		files = append(files, FileDescriptor{Name: fmt.Sprintf("p%d.png", i), Kind: common.KindImage, SourceURL: "stub://media"})
	}

	blob, err := mgr.Generate(ctx, files, "test")
	require.NoError(t, err)
	assert.Equal(t, 9, blob.NumFiles)

	high := atomic.LoadInt32(&highWater)
	assert.LessOrEqual(t, high, int32(3))
	assert.GreaterOrEqual(t, high, int32(2))
}

func TestManagerSnapshotBeforeGenerate(t *testing.T) {
	mgr := New(Options{})
	assert.Equal(t, Progress{}, mgr.Snapshot())
	assert.Equal(t, StateIdle, mgr.State())
}

func TestNewClampsOptions(t *testing.T) {
	mgr := New(Options{ChunkSize: -4, CompressionLevel: 42, MaxConsecutiveFailures: -1})
	assert.Equal(t, defaultChunkSize, mgr.chunkSize)
	assert.Equal(t, defaultCompressionLevel, mgr.level)
	assert.Equal(t, 0, mgr.maxConsecutiveFails)
}
