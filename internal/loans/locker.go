package loans

import (
	"context"
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/Lavavarshney/Library-Management-System/pkg/errors"
)

const defaultLockTimeout = 5 * time.Second

// ItemLocker serializes issue/return work on a single item. Lock blocks until
// the item is free, the lock timeout passes, or ctx ends. The returned unlock
// func is safe to call more than once.
type ItemLocker interface {
	Lock(ctx context.Context, itemID string) (func(), error)
}

// LocalLocker is an in-process keyed lock. Distinct items never contend.
type LocalLocker struct {
	mu      sync.Mutex
	slots   map[string]*lockSlot
	timeout time.Duration
}

type lockSlot struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker builds a keyed lock; timeout <= 0 uses the default.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &LocalLocker{slots: map[string]*lockSlot{}, timeout: timeout}
}

func (l *LocalLocker) Lock(ctx context.Context, itemID string) (func(), error) {
	slot := l.acquireSlot(itemID)

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	select {
	case slot.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.sem
				l.releaseSlot(itemID, slot)
			})
		}, nil
	case <-waitCtx.Done():
		l.releaseSlot(itemID, slot)
		return nil, lockError(ctx, itemID, waitCtx.Err())
	}
}

func (l *LocalLocker) acquireSlot(itemID string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[itemID]
	if !ok {
		slot = &lockSlot{sem: make(chan struct{}, 1)}
		l.slots[itemID] = slot
	}
	slot.refs++
	return slot
}

func (l *LocalLocker) releaseSlot(itemID string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, itemID)
	}
}

// held reports how many item keys are currently tracked.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// lockError distinguishes a caller cancellation from the lock wait timing out.
func lockError(parent context.Context, itemID string, waitErr error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	if errors.Is(waitErr, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, waitErr, "item is busy, try again").
			WithDetails(map[string]any{"item_id": itemID})
	}
	return waitErr
}

// IsLockTimeout reports whether err came from a lock wait timing out.
func IsLockTimeout(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeConflict) && errors.Is(err, context.DeadlineExceeded)
}
