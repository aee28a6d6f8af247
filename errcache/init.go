package errcache

import (
	"time"
)

var FetchErrors *ErrCache

func Init(expiration time.Duration) {
	FetchErrors = NewErrCache(expiration)
}
