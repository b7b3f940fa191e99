package cacheutil

import (
	"sync"
	"time"
)

// CachedValue is a cached value with the time it was fetched.
type CachedValue[T any] struct {
	Value     T
	FetchedAt time.Time
}

// ReadThrough implements a thread-safe read-through cache with double-checked
// locking. Both the blockhash cache and the token-search response cache use
// it: the fast path checks under a read lock, and the write path re-validates
// after acquiring the write lock so concurrent misses do not fetch twice.
//
//   - checkCache runs under RLock (and again under Lock) and reports whether
//     the cached value is still fresh.
//   - fetchAndCache runs under Lock, fetches the value, and stores it.
//
// A fresh timestamp is taken after acquiring the write lock so a value cached
// by a concurrent goroutine is not treated as already expired.
func ReadThrough[T any](
	mu *sync.RWMutex,
	checkCache func(now time.Time) (T, bool),
	fetchAndCache func(now time.Time) (T, error),
) (T, error) {
	now := time.Now()
	mu.RLock()
	if value, ok := checkCache(now); ok {
		mu.RUnlock()
		return value, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	nowAfterLock := time.Now()
	if value, ok := checkCache(nowAfterLock); ok {
		return value, nil
	}

	return fetchAndCache(nowAfterLock)
}
