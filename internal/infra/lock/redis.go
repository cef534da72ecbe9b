package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis serializes work per key across processes with SET NX leases.
type Redis struct {
	rdb   *redis.Client
	ttl   time.Duration
	retry time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{
		rdb:   rdb,
		ttl:   ttl,
		retry: 50 * time.Millisecond,
	}
}

// Lock retries until the lease is acquired or ctx ends. The lease expires
// after ttl even if the holder never releases it.
func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := "wallet:lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "acquire lock")
		}
		if ok {
			return func() {
				releaseScript.Run(context.Background(), l.rdb, []string{redisKey}, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
