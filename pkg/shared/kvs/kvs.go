// Package kvs provides a small key-value store abstraction with memory,
// LevelDB and Redis backends. It backs the API rate limiter.
package kvs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store is a thread-safe key-value store with per-key TTL.
type Store interface {
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources. Later calls return ErrClosed.
	Close() error
}

var (
	ErrNotFound = errors.New("kvs: key not found")
	ErrClosed   = errors.New("kvs: store is closed")
)

// Config selects and configures a backend.
type Config struct {
	// Type is "memory" (default), "leveldb" or "redis".
	Type      string        `yaml:"type" json:"type"`
	Namespace string        `yaml:"namespace" json:"namespace"`
	LevelDB   LevelDBConfig `yaml:"leveldb" json:"leveldb"`
	Redis     RedisConfig   `yaml:"redis" json:"redis"`
}

// LevelDBConfig configures the LevelDB backend.
type LevelDBConfig struct {
	Path       string `yaml:"path" json:"path"`
	SyncWrites bool   `yaml:"sync_writes" json:"sync_writes"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// New creates the store described by cfg.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(cfg.Namespace), nil
	case "leveldb":
		return NewLevelDBStore(cfg.Namespace, cfg.LevelDB)
	case "redis":
		return NewRedisStore(cfg.Namespace, cfg.Redis)
	default:
		return nil, fmt.Errorf("kvs: unsupported store type %q", cfg.Type)
	}
}

func namespacePrefix(namespace string) string {
	if namespace == "" {
		return ""
	}
	return namespace + ":"
}
