package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker is a lease lock backed by Redis. The lease (ttl) bounds how long
// a crashed holder can block a key; wait bounds how long Lock polls.
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
	wait   time.Duration

	// retry is the polling interval while the key is held elsewhere.
	retry time.Duration
}

// NewRedisLocker returns a Locker over client. ttl and wait must be positive.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 || wait <= 0 {
		return nil, errors.New("lock: ttl and wait must be positive")
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(releaseScript),
		ttl:    ttl,
		wait:   wait,
		retry:  25 * time.Millisecond,
	}, nil
}

// TryLock makes a single SET NX attempt and returns the owner token on success.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lock: key is empty")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes key only if it is still owned by token.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// Lock implements Locker by polling TryLock until wait elapses.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	delay := l.retry
	for {
		token, ok, err := l.TryLock(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrTimeout
			}
			return nil, err
		}
		if ok {
			return func() {
				// Release must run even when the request context is gone.
				rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer rcancel()
				if err := l.Release(rctx, key, token); err != nil {
					log.Warn().Err(err).Str("key", key).Msg("redis lock release failed")
				}
			}, nil
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ErrTimeout
		case <-t.C:
		}
		if delay < 200*time.Millisecond {
			delay *= 2
		}
	}
}
