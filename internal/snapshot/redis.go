// Package snapshot persists the wholesale host state. The engine itself
// has no storage format; whatever serializes the state serializes all of
// it, so the store works on the full state.Snapshot.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/zionworld/futures-engine/internal/state"
)

// RedisStore saves and restores state snapshots as a single JSON value.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore creates a snapshot store under the given key.
func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "futures:state"
	}
	return &RedisStore{rdb: rdb, key: key}
}

// Save serializes the snapshot and overwrites the stored value.
func (s *RedisStore) Save(ctx context.Context, snap state.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, data, 0).Err()
}

// Load returns the stored snapshot. ok is false when none exists.
func (s *RedisStore) Load(ctx context.Context) (state.Snapshot, bool, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return state.Snapshot{}, false, nil
	}
	if err != nil {
		return state.Snapshot{}, false, err
	}
	var snap state.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return state.Snapshot{}, false, err
	}
	return snap, true, nil
}
