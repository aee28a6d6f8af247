package archival

import (
	"math"
	"sync"
)

// Progress is the externally visible state of an archive session. Consumers
// always receive a value copy; mutating one has no effect on the session.
type Progress struct {
	TotalFiles      int
	ProcessedFiles  int
	CurrentFile     string
	Percentage      int
	EstimatedSizeMB float64
	Cancelled       bool
	Complete        bool
	Err             string
}

type ProgressFunc func(p Progress)

// tracker owns the mutable progress state for one session. Every mutation
// recomputes the derived fields and pushes a snapshot to the callback while
// the lock is held, so snapshots arrive in mutation order. Callbacks must
// not call back into the session.
type tracker struct {
	mu       sync.Mutex
	p        Progress
	bytes    int64
	onUpdate ProgressFunc
}

func newTracker(totalFiles int, onUpdate ProgressFunc) *tracker {
	return &tracker{
		p:        Progress{TotalFiles: totalFiles},
		onUpdate: onUpdate,
	}
}

func (t *tracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}

func (t *tracker) fileStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.CurrentFile = name
	t.refresh()
}

func (t *tracker) fileDone(name string, size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.ProcessedFiles++
	t.p.CurrentFile = name
	t.bytes += size
	t.refresh()
}

func (t *tracker) markCancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p.Cancelled {
		return
	}
	t.p.Cancelled = true
	t.refresh()
}

func (t *tracker) setError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.Err = msg
	t.refresh()
}

// markComplete records a successful finalization. This is the only way the
// percentage reaches 100.
func (t *tracker) markComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.Complete = true
	t.p.CurrentFile = ""
	t.refresh()
}

// refresh recomputes derived fields and emits. Callers hold t.mu.
func (t *tracker) refresh() {
	if t.p.TotalFiles > 0 {
		pct := int(math.Round(float64(t.p.ProcessedFiles) / float64(t.p.TotalFiles) * 100))
		if pct > 99 && !t.p.Complete {
			pct = 99
		}
		t.p.Percentage = pct
	}
	if t.p.Complete {
		t.p.Percentage = 100
	}
	t.p.EstimatedSizeMB = float64(t.bytes) / (1024 * 1024)
	if t.onUpdate != nil {
		t.onUpdate(t.p)
	}
}
