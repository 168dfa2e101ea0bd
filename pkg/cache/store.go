package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is the key/value surface the suggestion cache needs. Backends may be
// in-process or networked; all operations are expected to be eventually
// consistent, not linearizable.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Incrementer is implemented by stores that can bump a counter atomically.
// The expiration is applied when the counter is created.
type Incrementer interface {
	Incr(ctx context.Context, key string, expiration time.Duration) (int64, error)
}
