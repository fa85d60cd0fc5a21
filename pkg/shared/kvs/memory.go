package kvs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps values in a ttlcache. Data does not survive restarts.
type MemoryStore struct {
	prefix string
	cache  *ttlcache.Cache[string, []byte]
	closed atomic.Bool
}

// NewMemoryStore creates an in-memory store and starts its expiry loop.
func NewMemoryStore(namespace string) *MemoryStore {
	cache := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go cache.Start()

	return &MemoryStore{
		prefix: namespacePrefix(namespace),
		cache:  cache,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	item := m.cache.Get(m.prefix + key)
	if item == nil || item.IsExpired() {
		return nil, ErrNotFound
	}
	value := make([]byte, len(item.Value()))
	copy(value, item.Value())
	return value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.cache.Set(m.prefix+key, stored, ttl)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.cache.Delete(m.prefix + key)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	switch err {
	case nil:
		return true, nil
	case ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}

// Close stops the expiry loop. It is safe to call more than once.
func (m *MemoryStore) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.cache.Stop()
		m.cache.DeleteAll()
	}
	return nil
}
