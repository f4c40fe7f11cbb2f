package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only while the caller still owns it, so
// a holder whose lease expired cannot release a lock re-acquired by another
// node.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a lease-based ScopeLocker for multi-node deployments where
// an in-process mutex cannot serialize appends. The lease TTL bounds how
// long a crashed holder can block a tenant chain.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a RedisLocker with the given lease TTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

// Acquire polls SET NX until the scope lease is obtained or the context ends.
func (r *RedisLocker) Acquire(ctx context.Context, scope string) (func(), error) {
	key := "chainlock:" + scope
	token := uuid.New().String()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: setnx %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock: waiting for %s: %w", key, ctx.Err())
		case <-time.After(r.retry):
		}
	}

	release := func() {
		// Release must run even when the request context is already done.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(rctx, r.client, []string{key}, token).Result()
	}
	return release, nil
}
