package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/fitcoach/internal/lock"
	"github.com/yoockh/fitcoach/internal/utils"
)

// guard waits at most wait for the lease on key. Waiting longer means
// another request is mid-generation on the same key.
type guard struct {
	locker lock.Locker
	wait   time.Duration
}

func (g guard) acquire(ctx context.Context, op, key string) (func(), error) {
	wait := g.wait
	if wait <= 0 {
		wait = 30 * time.Second
	}
	lctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	release, err := g.locker.Acquire(lctx, key)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, utils.E(utils.CodeConflict, op, "another request is in progress, retry shortly", err)
		}
		if ctx.Err() != nil {
			return nil, utils.E(utils.CodeTimeout, op, "request cancelled", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to acquire lock", err)
	}
	return release, nil
}

// profileLockKey serializes every writer of one user's profile. It is always
// taken after the conversation lock, never before.
func profileLockKey(userID string) string { return "profile:" + userID }

// workoutLockKey serializes starting and editing one user's workout logs.
func workoutLockKey(userID string) string { return "workout:" + userID }
