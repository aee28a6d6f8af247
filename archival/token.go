package archival

import (
	"sync/atomic"
)

// CancelToken carries a cooperative cancellation flag between a Manager and
// its active session. Cancelling never interrupts an in-flight transfer; the
// pipeline reads the flag between chunks and stops issuing new work.
type CancelToken struct {
	flag int32
}

func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

func (t *CancelToken) Cancel() {
	atomic.StoreInt32(&t.flag, 1)
}

func (t *CancelToken) IsCancelled() bool {
	return atomic.LoadInt32(&t.flag) == 1
}
