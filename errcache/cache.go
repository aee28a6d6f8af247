package errcache

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrCache remembers recent errors by key so hot failure paths don't get
// retried on every request. A nil ErrCache is valid and caches nothing.
type ErrCache struct {
	cache *cache.Cache
}

func NewErrCache(expiration time.Duration) *ErrCache {
	return &ErrCache{cache: cache.New(expiration, expiration*2)}
}

func (e *ErrCache) Get(key string) error {
	if e == nil {
		return nil
	}
	if err, ok := e.cache.Get(key); ok {
		return err.(error)
	}
	return nil
}

func (e *ErrCache) Set(key string, err error) {
	if e == nil {
		return
	}
	e.cache.Set(key, err, cache.DefaultExpiration)
}

func (e *ErrCache) Forget(key string) {
	if e == nil {
		return
	}
	e.cache.Delete(key)
}
