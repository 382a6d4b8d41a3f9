package allocator

import (
	"context"
	"errors"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// EtcdLocker takes the allocation lock with an etcd session mutex.
type EtcdLocker struct {
	client *clientv3.Client
	prefix string
	ttl    int
}

// NewEtcdLocker creates a locker whose sessions expire ttlSeconds after the
// holder stops renewing them.
func NewEtcdLocker(client *clientv3.Client, prefix string, ttlSeconds int) *EtcdLocker {
	if ttlSeconds <= 0 {
		ttlSeconds = 30
	}
	return &EtcdLocker{client: client, prefix: prefix, ttl: ttlSeconds}
}

func (l *EtcdLocker) Obtain(ctx context.Context, key string) (Lease, error) {
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(l.ttl))
	if err != nil {
		return nil, err
	}
	mu := concurrency.NewMutex(session, l.prefix+key)
	if err := mu.Lock(ctx); err != nil {
		session.Close()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Join(ErrLockNotObtained, err)
		}
		return nil, err
	}
	return &etcdLease{session: session, mu: mu}, nil
}

type etcdLease struct {
	session *concurrency.Session
	mu      *concurrency.Mutex
}

func (l *etcdLease) Release(ctx context.Context) error {
	err := l.mu.Unlock(ctx)
	return errors.Join(err, l.session.Close())
}
