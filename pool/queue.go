package pool

import (
	"github.com/eventpix/media-archiver/common/logging"
	"github.com/getsentry/sentry-go"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// Queue is a bounded worker pool owned by a single archive session. Session
// pools live for seconds, so workers are allocated up front and never purged
// for idleness; Release drops them when the fetch phase ends.
type Queue struct {
	pool *ants.Pool
}

func NewQueue(workers int, name string) (*Queue, error) {
	p, err := ants.NewPool(workers, ants.WithOptions(ants.Options{
		PreAlloc:     true,
		Nonblocking:  false,
		DisablePurge: true,
		PanicHandler: func(err interface{}) {
			logrus.Errorf("Panic from archive queue %s", name)
			logrus.Error(err)
			//goland:noinspection GoTypeAssertionOnErrors
			if e, ok := err.(error); ok {
				sentry.CaptureException(e)
			}
		},
		Logger: &logging.SendToDebugLogger{},
	}))
	if err != nil {
		return nil, err
	}
	return &Queue{pool: p}, nil
}

// Schedule blocks until a worker picks the task up.
func (p *Queue) Schedule(task func()) error {
	return p.pool.Submit(task)
}

// Release tears the pool down. The queue cannot be reused afterwards.
func (p *Queue) Release() {
	p.pool.Release()
}
