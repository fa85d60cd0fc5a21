package kvs

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns one constructor per store type so every test runs the
// same contract against memory, LevelDB and Redis.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			s, err := New(Config{Type: "memory", Namespace: "rl"})
			require.NoError(t, err)
			return s
		},
		"leveldb": func(t *testing.T) Store {
			s, err := New(Config{Type: "leveldb", Namespace: "rl", LevelDB: LevelDBConfig{Path: filepath.Join(t.TempDir(), "db")}})
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			s, err := New(Config{Type: "redis", Namespace: "rl", Redis: RedisConfig{Addr: mr.Addr()}})
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer func() { _ = store.Close() }()
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Set(ctx, "10.0.0.1", []byte(`{"tokens":3}`), 0))
			got, err := store.Get(ctx, "10.0.0.1")
			require.NoError(t, err)
			assert.Equal(t, `{"tokens":3}`, string(got))

			ok, err := store.Exists(ctx, "10.0.0.1")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, store.Delete(ctx, "10.0.0.1"))
			require.NoError(t, store.Delete(ctx, "10.0.0.1"), "deleting a missing key is not an error")

			ok, err = store.Exists(ctx, "10.0.0.1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_ClosedStoreRejectsOperations(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Close())
			require.NoError(t, store.Close(), "Close is idempotent")

			_, err := store.Get(context.Background(), "k")
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, store.Set(context.Background(), "k", nil, 0), ErrClosed)
		})
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	for _, name := range []string{"memory", "leveldb"} {
		t.Run(name, func(t *testing.T) {
			store := backends(t)[name](t)
			defer func() { _ = store.Close() }()
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, "k", []byte("v"), 30*time.Millisecond))
			time.Sleep(80 * time.Millisecond)

			_, err := store.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("rl", RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	assert.True(t, mr.Exists("rl:k"), "namespace becomes a key prefix")

	mr.FastForward(2 * time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore("")
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			for j := 0; j < 50; j++ {
				_ = store.Set(ctx, key, []byte{byte(j)}, 0)
				_, _ = store.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	v, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte{49}, v)
}

func TestNew_UnsupportedType(t *testing.T) {
	_, err := New(Config{Type: "etcd"})
	assert.Error(t, err)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	_, err := NewRedisStore("", RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestLevelDB_DecodeValue(t *testing.T) {
	_, _, err := decodeValue([]byte{1, 2})
	assert.Error(t, err)

	v, expired, err := decodeValue(encodeValue([]byte("x"), 0))
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, []byte("x"), v)
}
