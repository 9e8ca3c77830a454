// Package lock provides per-tenant sync locks. LocalLocker guards a single process;
// RedisLocker extends the guarantee across replicas.
package lock

import (
	"context"
	"sync"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/ports"
)

// LocalLocker is an in-process TenantLocker
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates a new in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryLock acquires the tenant lock without waiting
func (l *LocalLocker) TryLock(ctx context.Context, tenantID string) (ports.Unlocker, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[tenantID]; ok {
		return nil, domain.ErrSyncInProgress
	}
	l.held[tenantID] = struct{}{}
	return &localLock{locker: l, tenantID: tenantID}, nil
}

type localLock struct {
	locker   *LocalLocker
	tenantID string
	once     sync.Once
}

func (k *localLock) Unlock(ctx context.Context) error {
	k.once.Do(func() {
		k.locker.mu.Lock()
		delete(k.locker.held, k.tenantID)
		k.locker.mu.Unlock()
	})
	return nil
}
