package sequence

import (
	"context"

	redis "github.com/redis/go-redis/v9"

	"tokobill/backend/internal/store"
)

const redisKeyPrefix = "pos:seq:"

// RedisCounter keeps counters as plain Redis integers. SETNX seeds the
// key and INCR advances it inside one MULTI/EXEC.
type RedisCounter struct {
	client redis.UniversalClient
}

func NewRedisCounter(addr string, password string, db int) *RedisCounter {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCounter{client: client}
}

func NewRedisCounterFromClient(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return store.Unavailable("redis ping", err)
	}
	return nil
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}

func (c *RedisCounter) NextSequence(ctx context.Context, name string, start int64) (int64, error) {
	key := redisKeyPrefix + name

	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, start-1, 0)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, store.Unavailable("redis incr "+key, err)
	}
	return incr.Val(), nil
}
