package store

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore persists the mapping in a single Redis hash.
type RedisStore struct {
	*Snapshot
	rdb    *redis.Client
	key    string
	logger *slog.Logger
}

// OpenRedis connects to addr and checks the server answers.
func OpenRedis(ctx context.Context, addr, key string, logger *slog.Logger) (*RedisStore, error) {
	if addr == "" {
		addr = DefaultRedisAddr
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis store: ping %s: %w", addr, err)
	}
	return NewRedisStore(rdb, key, logger), nil
}

// NewRedisStore wraps an existing client. The store owns rdb from now on.
func NewRedisStore(rdb *redis.Client, key string, logger *slog.Logger) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		Snapshot: NewSnapshot(nil),
		rdb:      rdb,
		key:      key,
		logger:   logger,
	}
}

// Load reads the hash. A missing key is an empty mapping; a server error is
// logged and also yields an empty mapping.
func (r *RedisStore) Load(ctx context.Context) map[string]string {
	entries, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		r.logger.Warn("state hash unreadable, starting empty", "key", r.key, "error", err.Error())
		return r.replace(nil)
	}
	r.logger.Debug("state loaded", "key", r.key, "creators", len(entries))
	return r.replace(entries)
}

// Flush replaces the hash inside MULTI/EXEC.
func (r *RedisStore) Flush(ctx context.Context) error {
	return r.flush(ctx, r.write)
}

func (r *RedisStore) write(ctx context.Context, entries map[string]string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(entries) > 0 {
			pairs := make([]any, 0, 2*len(entries))
			for creatorID, itemID := range entries {
				pairs = append(pairs, creatorID, itemID)
			}
			pipe.HSet(ctx, r.key, pairs...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redis exec: %w", ErrPersist, err)
	}
	r.logger.Debug("state written", "key", r.key, "creators", len(entries))
	return nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
