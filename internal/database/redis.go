package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients keeps pub/sub on its own connection so a blocked subscriber
// never starves lock traffic.
type RedisClients struct {
	Locks  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(ctx context.Context, redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	locks := redis.NewClient(opt)
	if err := locks.Ping(ctx).Err(); err != nil {
		locks.Close()
		return nil, fmt.Errorf("ping Redis (locks): %w", err)
	}

	pubsubOpt := *opt
	pubsub := redis.NewClient(&pubsubOpt)
	if err := pubsub.Ping(ctx).Err(); err != nil {
		locks.Close()
		pubsub.Close()
		return nil, fmt.Errorf("ping Redis (pubsub): %w", err)
	}

	return &RedisClients{Locks: locks, PubSub: pubsub}, nil
}

func (r *RedisClients) Close() {
	r.Locks.Close()
	r.PubSub.Close()
}

// RedisLocker hands out expiring keys with SET NX. A lock is never released
// explicitly; it lapses after its ttl.
type RedisLocker struct {
	client redis.Cmdable
}

func NewRedisLocker(client redis.Cmdable) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}
