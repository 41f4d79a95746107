package loans

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
)

const (
	defaultLeaseTTL   = 30 * time.Second
	lockPollInterval  = 25 * time.Millisecond
	lockReleaseBudget = 2 * time.Second
)

// lockStore is the subset of the redis client used for leases.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLocker is a lease-based ItemLocker shared by every API instance.
// The lease TTL bounds how long a crashed holder can block an item.
type RedisLocker struct {
	store   lockStore
	timeout time.Duration
	ttl     time.Duration
	logg    *logger.Logger
}

var errLockHeld = errors.New("item lock held")

func NewRedisLocker(store lockStore, logg *logger.Logger, timeout, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis store required for item locker")
	}
	if logg == nil {
		return nil, errors.New("logger required for item locker")
	}
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLocker{store: store, timeout: timeout, ttl: ttl, logg: logg}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, itemID string) (func(), error) {
	key := l.store.LockKey("item", itemID)
	owner := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	err := retry.Do(waitCtx, retry.NewConstant(lockPollInterval), func(ctx context.Context) error {
		ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return fmt.Errorf("setnx %s: %w", key, err)
		}
		if !ok {
			return retry.RetryableError(errLockHeld)
		}
		return nil
	})
	if err != nil {
		if waitCtx.Err() != nil {
			return nil, lockError(ctx, itemID, waitCtx.Err())
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseBudget)
			defer cancel()
			released, err := l.store.ReleaseIfOwner(relCtx, key, owner)
			logCtx := l.logg.WithFields(ctx, map[string]any{"item_id": itemID, "lock_key": key})
			switch {
			case err != nil:
				l.logg.Error(logCtx, "item lock release failed", err)
			case !released:
				// the lease expired and another holder may have taken the item
				l.logg.Warn(logCtx, "item lock lease lost before release")
			}
		})
	}, nil
}
