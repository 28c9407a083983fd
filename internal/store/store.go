package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrPersist is returned when the mapping cannot be written durably. The
// in-memory mapping is left as it was.
var ErrPersist = errors.New("store: persist failed")

// Backend names a [Store] implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

const (
	// DefaultPath is the state file used when none is configured.
	DefaultPath = "bili_latest_video.json"

	// DefaultRedisAddr is the Redis server used when none is configured.
	DefaultRedisAddr = "127.0.0.1:6379"

	// DefaultRedisKey is the hash holding the mapping.
	DefaultRedisKey = "creatorwatch:last_seen"
)

// Store is the durable creator id → last-seen item id mapping.
//
// Store implementations must be safe for concurrent access. Get and Set work
// on the in-memory snapshot; only Flush touches the backing medium.
type Store interface {
	// Load replaces the in-memory mapping with the persisted one and returns
	// a copy of it. An absent or unreadable medium yields an empty mapping
	// and a logged warning; Load never fails.
	Load(ctx context.Context) map[string]string

	// Get returns the recorded item id for creatorID.
	Get(creatorID string) (string, bool)

	// Set records itemID for creatorID in memory.
	Set(creatorID, itemID string)

	// Flush writes the whole mapping. On failure the persisted copy is
	// unchanged and the error wraps ErrPersist.
	Flush(ctx context.Context) error

	// Close releases the backing medium.
	Close() error
}

// Config selects and configures a backend. Zero values select defaults.
type Config struct {
	Backend   Backend
	Path      string
	RedisAddr string
	RedisKey  string
	Logger    *slog.Logger
}

// ParseBackend validates a backend name. The empty string means file.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case "":
		return BackendFile, nil
	case BackendFile, BackendSQLite, BackendRedis, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("unknown state backend %q (want file, sqlite, redis or memory)", name)
	}
}

// Open creates the configured backend. It does not load the mapping; call
// [Store.Load] before use.
func Open(ctx context.Context, cfg Config) (Store, error) {
	backend, err := ParseBackend(string(cfg.Backend))
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case BackendSQLite:
		path := cfg.Path
		if path == "" || path == DefaultPath {
			path = "bili_latest_video.db"
		}
		return OpenSQLite(ctx, path, logger)
	case BackendRedis:
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisKey, logger)
	case BackendMemory:
		return NewMemoryStore(nil), nil
	default:
		path := cfg.Path
		if path == "" {
			path = DefaultPath
		}
		return NewFileStore(path, logger), nil
	}
}
