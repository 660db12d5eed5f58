package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
)

var ErrJobLocked = errors.New("job is locked by another instance")

type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out fleet-wide locks that expire after ttl even if never released.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// RedisLocker is a Locker backed by redislock; it does not retry.
type RedisLocker struct {
	Client *redislock.Client
}

func (l RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	if l.Client == nil {
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lock, err := l.Client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrJobLocked
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}
