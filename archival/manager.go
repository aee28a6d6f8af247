package archival

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/eventpix/media-archiver/common"
	"github.com/eventpix/media-archiver/common/config"
	"github.com/eventpix/media-archiver/common/rcontext"
	"github.com/eventpix/media-archiver/metrics"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateIdle            State = "idle"
	StateFetchingFiles   State = "fetching_files"
	StateFinalizing      State = "finalizing"
	StateComplete        State = "complete"
	StatePartialComplete State = "partial_complete"
	StateFailed          State = "failed"
	StateCancelled       State = "cancelled"
)

const defaultCompressionLevel = 6

// Options configures a Manager. Zero values fall back to built-in defaults;
// DefaultOptions copies the knobs out of a loaded configuration instead.
type Options struct {
	ChunkSize              int
	CompressionLevel       int
	MaxConsecutiveFailures int

	// Fetcher performs the actual media transfers. Required.
	Fetcher MediaFetcher

	OnProgress ProgressFunc
	OnError    func(file FileDescriptor, err error)
	OnComplete func(blob *Blob)
}

func DefaultOptions(c *config.MainArchiverConfig) Options {
	return Options{
		ChunkSize:              c.Archives.ChunkSize,
		CompressionLevel:       c.Archives.CompressionLevel,
		MaxConsecutiveFailures: c.Archives.MaxConsecutiveFailures,
	}
}

// Manager drives one archive generation end to end. A Manager is single use:
// once Generate has been called it never returns to idle, and a second call
// is refused.
type Manager struct {
	chunkSize           int
	level               int
	maxConsecutiveFails int
	fetcher             MediaFetcher

	onProgress ProgressFunc
	onError    func(FileDescriptor, error)
	onComplete func(*Blob)

	stateMu sync.Mutex
	state   State
	tracker *tracker
	session *session

	// serializes user callbacks so consumers never see two at once
	cbMu sync.Mutex

	token *CancelToken

	failCount           int32
	consecutiveFailures int32

	fetchBudget    func(fileCount int) time.Duration
	finalizeBudget func(sizeBytes int64) time.Duration
}

func New(opts Options) *Manager {
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	level := opts.CompressionLevel
	if level <= 0 || level > 9 {
		level = defaultCompressionLevel
	}
	maxFails := opts.MaxConsecutiveFailures
	if maxFails < 0 {
		maxFails = 0
	}

	return &Manager{
		chunkSize:           chunk,
		level:               level,
		maxConsecutiveFails: maxFails,
		fetcher:             opts.Fetcher,
		onProgress:          opts.OnProgress,
		onError:             opts.OnError,
		onComplete:          opts.OnComplete,
		state:               StateIdle,
		token:               NewCancelToken(),
		fetchBudget:         FetchPhaseTimeout,
		finalizeBudget:      FinalizePhaseTimeout,
	}
}

// Generate fetches every descriptor and returns the finalized archive. The
// returned error is reserved for unrecoverable failures; per-file problems
// are reported through OnError and the final Progress. A degraded-but-usable
// archive comes back with a nil error and a non-empty Progress.Err.
func (m *Manager) Generate(ctx rcontext.RequestContext, files []FileDescriptor, title string) (*Blob, error) {
	ctx = ctx.LogWithFields(logrus.Fields{"archive-title": title})

	m.stateMu.Lock()
	if m.state != StateIdle {
		m.stateMu.Unlock()
		return nil, common.ErrSessionActive
	}
	if len(files) == 0 {
		m.state = StateFailed
		m.stateMu.Unlock()
		return nil, common.ErrNoSourceFiles
	}
	m.state = StateFetchingFiles
	m.session = newSession(ctx, title, m.level)
	m.tracker = newTracker(len(files), m.onProgress)
	m.stateMu.Unlock()

	ctx = m.session.ctx
	metrics.ArchivesStarted.Inc()
	defer m.session.releaseEntries()

	fetchStart := time.Now()
	m.runFetchPhase(ctx, files)
	metrics.PhaseSeconds.With(prometheus.Labels{"phase": "fetch"}).Observe(time.Since(fetchStart).Seconds())

	if m.session.entryCount() == 0 {
		outcome := StateFailed
		err := common.ErrNothingArchived
		if m.token.IsCancelled() {
			m.tracker.markCancelled()
			outcome = StateCancelled
			err = common.ErrCancelled
		}
		if m.tracker.snapshot().Err == "" {
			m.tracker.setError(err.Error())
		}
		m.setState(outcome)
		metrics.ArchivesFinished.With(prometheus.Labels{"outcome": string(outcome)}).Inc()
		ctx.Log.Warn("Fetch phase produced nothing to archive")
		return nil, err
	}

	// A cancel can race the tail of the last chunk; make sure it lands in
	// the progress before finalizing.
	if m.token.IsCancelled() {
		m.tracker.markCancelled()
	}

	m.setState(StateFinalizing)

	finBudget := m.finalizeBudget(totalSizeHint(files))
	ctx.Log.Infof("Finalizing %d files (%s buffered) with a budget of %s", m.session.entryCount(), humanize.Bytes(uint64(m.session.sizeBytes())), finBudget)

	fctx := ctx
	var cancel context.CancelFunc
	fctx.Context, cancel = context.WithTimeout(ctx.Context, finBudget)
	finStart := time.Now()
	blob, err := m.session.finalize(fctx, false)
	cancel()
	if err != nil {
		blob, err = m.retryUncompressed(ctx, err)
		if err != nil {
			outcome := StateFailed
			if m.token.IsCancelled() {
				outcome = StateCancelled
			}
			m.setState(outcome)
			metrics.ArchivesFinished.With(prometheus.Labels{"outcome": string(outcome)}).Inc()
			return nil, err
		}
	}
	metrics.PhaseSeconds.With(prometheus.Labels{"phase": "finalize"}).Observe(time.Since(finStart).Seconds())

	m.tracker.markComplete()
	snap := m.tracker.snapshot()

	outcome := StateComplete
	if snap.Cancelled {
		outcome = StateCancelled
	} else if snap.Err != "" {
		outcome = StatePartialComplete
	}
	m.setState(outcome)
	metrics.ArchivesFinished.With(prometheus.Labels{"outcome": string(outcome)}).Inc()
	metrics.ArchiveBytes.Observe(float64(blob.Len()))

	ctx.Log.Infof("Archive ready: %d of %d files, %d bytes (outcome: %s)", blob.NumFiles, snap.TotalFiles, blob.Len(), outcome)

	if outcome == StateComplete && m.onComplete != nil {
		m.cbMu.Lock()
		m.onComplete(blob)
		m.cbMu.Unlock()
	}
	return blob, nil
}

// retryUncompressed re-serializes the session with stored (uncompressed)
// entries and no fresh deadline. Cancelled sessions don't get the retry;
// whatever the primary attempt produced is all they get.
func (m *Manager) retryUncompressed(ctx rcontext.RequestContext, cause error) (*Blob, error) {
	ctx.Log.Warn("Archive serialization failed: ", cause)
	sentry.CaptureException(cause)

	if m.token.IsCancelled() {
		return nil, common.ErrFinalizeFailed
	}

	ctx.Log.Warn("Retrying archive serialization without compression")
	blob, err := m.session.finalize(ctx, true)
	if err != nil {
		ctx.Log.Error("Uncompressed retry failed: ", err)
		sentry.CaptureException(err)
		return nil, common.ErrFinalizeFailed
	}

	m.tracker.setError(fmt.Sprintf("Partial recovery: %d/%d files processed", blob.NumFiles, m.tracker.snapshot().TotalFiles))
	return blob, nil
}

func (m *Manager) setState(s State) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
}

func (m *Manager) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

// Cancel requests cooperative cancellation. In-flight transfers are left to
// finish and their results kept; no new chunk starts afterwards. Safe to
// call from any goroutine, any number of times.
func (m *Manager) Cancel() {
	m.token.Cancel()
}

// Snapshot returns a copy of the current progress. Zero value before
// Generate has been called.
func (m *Manager) Snapshot() Progress {
	m.stateMu.Lock()
	t := m.tracker
	m.stateMu.Unlock()
	if t == nil {
		return Progress{}
	}
	return t.snapshot()
}
