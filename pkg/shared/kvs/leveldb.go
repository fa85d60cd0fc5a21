package kvs

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	lderrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBStore persists values on disk. Each value is stored as
// [8 bytes big-endian expiry unix nanos, 0 = none][value]. Expired entries
// are removed lazily on read.
type LevelDBStore struct {
	prefix    string
	db        *leveldb.DB
	syncWrite bool

	mu     sync.RWMutex
	closed bool
}

// NewLevelDBStore opens (or creates) a LevelDB database. When cfg.Path is
// empty the database lives under the user cache directory.
func NewLevelDBStore(namespace string, cfg LevelDBConfig) (*LevelDBStore, error) {
	dbPath := cfg.Path
	if dbPath == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			cacheDir = os.TempDir()
		}
		name := "cmsgate"
		if namespace != "" {
			name += "-" + namespace
		}
		dbPath = filepath.Join(cacheDir, name)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kvs/leveldb: failed to create directory: %w", err)
	}

	db, err := leveldb.OpenFile(dbPath, &opt.Options{Compression: opt.SnappyCompression})
	if err != nil {
		var corrupted *lderrors.ErrCorrupted
		if errors.As(err, &corrupted) {
			db, err = leveldb.RecoverFile(dbPath, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("kvs/leveldb: failed to open database at %s: %w", dbPath, err)
		}
	}

	return &LevelDBStore{
		prefix:    namespacePrefix(namespace),
		db:        db,
		syncWrite: cfg.SyncWrites,
	}, nil
}

func encodeValue(value []byte, ttl time.Duration) []byte {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}
	encoded := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(encoded[:8], uint64(expiresAt))
	copy(encoded[8:], value)
	return encoded
}

// decodeValue returns the payload and whether it has expired.
func decodeValue(encoded []byte) ([]byte, bool, error) {
	if len(encoded) < 8 {
		return nil, false, errors.New("kvs/leveldb: invalid encoded value")
	}
	expiresAt := int64(binary.BigEndian.Uint64(encoded[:8]))
	if expiresAt > 0 && time.Now().UnixNano() > expiresAt {
		return nil, true, nil
	}
	return encoded[8:], false, nil
}

func (l *LevelDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}

	raw, err := l.db.Get([]byte(l.prefix+key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kvs/leveldb: get failed: %w", err)
	}

	value, expired, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	if expired {
		_ = l.db.Delete([]byte(l.prefix+key), nil)
		return nil, ErrNotFound
	}
	return value, nil
}

func (l *LevelDBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	if err := l.db.Put([]byte(l.prefix+key), encodeValue(value, ttl), &opt.WriteOptions{Sync: l.syncWrite}); err != nil {
		return fmt.Errorf("kvs/leveldb: set failed: %w", err)
	}
	return nil
}

func (l *LevelDBStore) Delete(ctx context.Context, key string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	if err := l.db.Delete([]byte(l.prefix+key), nil); err != nil {
		return fmt.Errorf("kvs/leveldb: delete failed: %w", err)
	}
	return nil
}

func (l *LevelDBStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := l.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (l *LevelDBStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
