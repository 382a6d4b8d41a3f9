package allocator

import (
	"context"
	"errors"
	"sync"
)

// ErrLockNotObtained is returned when a lock could not be taken in time.
var ErrLockNotObtained = errors.New("allocator: lock not obtained")

// Locker hands out named mutual exclusion leases. Implementations backed by
// redis or etcd make the allocation sequence safe across processes.
type Locker interface {
	Obtain(ctx context.Context, key string) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// LocalLocker serialises holders inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string) (Lease, error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return &localLease{slot: slot}, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrLockNotObtained, ctx.Err())
	}
}

type localLease struct {
	once sync.Once
	slot chan struct{}
}

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() { <-l.slot })
	return nil
}
