package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// #region redis-store

// RedisStoreConfig configures the Redis store.
type RedisStoreConfig struct {
	Prefix     string        // key prefix, default "composer"
	TTL        time.Duration // expiry for session keys, 0 = no expiry
	MaxHistory int64         // versions kept per session, default 20
}

// RedisStore keeps the latest SessionRecord per session plus a bounded list
// of previous versions. Keys are "{prefix}:session:{id}" and
// "{prefix}:session:{id}:versions".
type RedisStore struct {
	client redis.UniversalClient
	cfg    RedisStoreConfig
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "composer"
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 20
	}
	return &RedisStore{client: client, cfg: cfg}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr string, cfg RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStore(client, cfg), nil
}

func (r *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", r.cfg.Prefix, sessionID)
}

func (r *RedisStore) versionsKey(sessionID string) string {
	return r.key(sessionID) + ":versions"
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, sessionID string) (SessionRecord, error) {
	val, err := r.client.Get(ctx, r.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return SessionRecord{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("redis get: %w", err)
	}
	var rec SessionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return SessionRecord{}, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return rec, nil
}

// Save implements Store. The latest record and the version list are written
// in one MULTI/EXEC transaction.
func (r *RedisStore) Save(ctx context.Context, rec SessionRecord) error {
	rec.Signals = nonNilSignals(rec.Signals)
	rec.Cooldowns = nonNilCooldowns(rec.Cooldowns)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	key, vkey := r.key(rec.SessionID), r.versionsKey(rec.SessionID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, r.cfg.TTL)
		pipe.LPush(ctx, vkey, data)
		pipe.LTrim(ctx, vkey, 0, r.cfg.MaxHistory-1)
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, vkey, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", rec.SessionID, err)
	}
	return nil
}

// ListVersions returns up to limit stored versions, newest first.
func (r *RedisStore) ListVersions(ctx context.Context, sessionID string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	vals, err := r.client.LRange(ctx, r.versionsKey(sessionID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]SessionRecord, 0, len(vals))
	for _, v := range vals {
		var rec SessionRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal version: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes a session and its versions.
func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, r.key(sessionID), r.versionsKey(sessionID)).Err()
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// #endregion redis-store
