package repo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	errx "github.com/gasdesk/agent-server/internal/core/error"
	logx "github.com/gasdesk/agent-server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each record as a string key "<kind>:<id>" and keeps the
// ids of a kind in the set "<kind>:index". Session records expire after ttl when ttl > 0.
type RedisBackend struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisBackend(rdb redis.UniversalClient, sessionTTL time.Duration) *RedisBackend {
	return &RedisBackend{rdb: rdb, ttl: sessionTTL}
}

func (r *RedisBackend) recordKey(kind Kind, id string) string {
	return fmt.Sprintf("%s:%s", kind, id)
}

func (r *RedisBackend) indexKey(kind Kind) string {
	return fmt.Sprintf("%s:index", kind)
}

func (r *RedisBackend) Get(ctx context.Context, kind Kind, id string) ([]byte, error) {
	key := r.recordKey(kind, id)
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Error().Err(err).Str("key", key).Msg("failed to read record from redis")
		}
		return nil, errx.WrapRedis(err)
	}
	return b, nil
}

func (r *RedisBackend) Put(ctx context.Context, kind Kind, id string, body []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	key := r.recordKey(kind, id)
	var ttl time.Duration
	if kind == KindSession {
		ttl = r.ttl
	}

	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, body, ttl)
		p.SAdd(ctx, r.indexKey(kind), id)
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write record to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// List returns indexed ids. Ids of expired sessions may still be listed; Get reports them missing.
func (r *RedisBackend) List(ctx context.Context, kind Kind) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, r.indexKey(kind)).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", r.indexKey(kind)).Msg("failed to list records")
		return nil, errx.WrapRedis(err)
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}

var _ Backend = (*RedisBackend)(nil)
