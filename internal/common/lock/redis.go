package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"certification-workers/internal/common/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by another worker is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	TTL          time.Duration
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// RedisLocker holds locks across worker replicas using SET NX PX.
type RedisLocker struct {
	client redis.Cmdable
	config RedisConfig
	logger logger.Logger
}

func NewRedisLocker(client redis.Cmdable, config RedisConfig, log logger.Logger) *RedisLocker {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Second
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 10 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 50 * time.Millisecond
	}
	return &RedisLocker{client: client, config: config, logger: log}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.config.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.config.TTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return l.releaser(key, token), nil
		}

		select {
		case <-waitCtx.Done():
			return nil, errors.Join(ErrNotAcquired, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) releaser(key, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			// The TTL frees the key eventually.
			l.logger.Warn("failed to release lock", map[string]interface{}{
				"key":   key,
				"error": err,
			})
		}
	}
}
