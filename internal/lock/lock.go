// Package lock serializes mutations of a single conversation across
// goroutines and, with redis, across processes.
package lock

import (
	"context"
	"time"
)

// Locker hands out exclusive leases keyed by an arbitrary string. Acquire
// blocks until the lease is granted or ctx is done; the returned func
// releases it and is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

const (
	DefaultTTL   = 4 * time.Minute
	retryBackoff = 25 * time.Millisecond
)
