package booking

import (
	"context"
	"sync"
)

// Locker serializes ledger mutations per slot.
type Locker interface {
	WithSlotLock(ctx context.Context, slotID string, fn func(ctx context.Context) error) error
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// LocalLocker is an in-process Locker. Entries are dropped once no caller holds
// or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyedLock)}
}

func (l *LocalLocker) WithSlotLock(ctx context.Context, slotID string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	k, ok := l.locks[slotID]
	if !ok {
		k = &keyedLock{}
		l.locks[slotID] = k
	}
	k.refs++
	l.mu.Unlock()

	k.mu.Lock()
	defer func() {
		k.mu.Unlock()
		l.mu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(l.locks, slotID)
		}
		l.mu.Unlock()
	}()

	return fn(ctx)
}
