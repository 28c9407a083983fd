package store

import (
	"context"
	"testing"

	redis "github.com/redis/go-redis/v9"
)

// openTestRedis connects to a local server, skipping when none is running.
func openTestRedis(t *testing.T, key string) *RedisStore {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: DefaultRedisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("skip: redis not available: %v", err)
	}
	t.Cleanup(func() {
		_ = rdb.Del(context.Background(), key).Err()
		_ = rdb.Close()
	})
	return NewRedisStore(rdb, key, testLogger())
}

func TestRedisStore_Durability(t *testing.T) {
	ctx := context.Background()
	key := "creatorwatch:test:" + t.Name()

	s := openTestRedis(t, key)
	if got := s.Load(ctx); len(got) != 0 {
		t.Fatalf("Load() = %v, want empty", got)
	}
	s.Set("123", "BV001")
	s.Set("456", "BV002")
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	other := NewRedisStore(s.rdb, key, testLogger())
	got := other.Load(ctx)
	if len(got) != 2 || got["123"] != "BV001" || got["456"] != "BV002" {
		t.Errorf("Load() = %v", got)
	}
}

func TestRedisStore_FlushReplacesHash(t *testing.T) {
	ctx := context.Background()
	key := "creatorwatch:test:" + t.Name()

	s := openTestRedis(t, key)
	if err := s.rdb.HSet(ctx, key, "stale", "BVX").Err(); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	s.Load(ctx)
	s.Set("1", "BV1")
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	// loaded entries are kept, so "stale" survives the rewrite
	if got["stale"] != "BVX" || got["1"] != "BV1" {
		t.Errorf("hash = %v", got)
	}
}

func TestOpenRedis_Unreachable(t *testing.T) {
	_, err := OpenRedis(context.Background(), "127.0.0.1:1", "", testLogger())
	if err == nil {
		t.Fatal("expected error for unreachable server, got nil")
	}
}
