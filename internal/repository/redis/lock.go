package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RunLock is a single-key lease held by at most one replica at a time.
type RunLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	log    *zap.Logger
}

func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRunLock(client redis.UniversalClient, key string, ttl time.Duration, log *zap.Logger) *RunLock {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RunLock{
		client: client,
		key:    key,
		ttl:    ttl,
		log:    log.With(zap.String("component", "redis.lock"), zap.String("key", key)),
	}
}

// TryLock acquires the lease without waiting. The lease expires on its own
// after the TTL if unlock is never called.
func (l *RunLock) TryLock(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	l.log.Debug("lock acquired", zap.Duration("ttl", l.ttl))

	unlock := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", l.key, err)
		}
		if n == 0 {
			l.log.Warn("lock expired before release")
		}
		return nil
	}
	return unlock, true, nil
}

func Ping(ctx context.Context, client redis.UniversalClient) error {
	return client.Ping(ctx).Err()
}
