package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-dispatch/internal/config"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock already held")

// ErrNoRedis is returned when the client is not configured.
var ErrNoRedis = errors.New("redis client not configured")

// compare-and-delete so a holder never releases a lock it lost to expiry.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis wraps the go-redis client.
type Redis struct {
	Client  *redis.Client
	lockTTL time.Duration
}

// ReleaseFunc drops a held lock. It is a no-op once the lease has expired
// or been taken over by another holder.
type ReleaseFunc func(ctx context.Context) error

// NewRedis connects to Redis using the provided configuration. An unreachable
// server is logged, not fatal.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}

	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Redis{Client: client, lockTTL: ttl}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return ErrNoRedis
	}
	return r.Client.Ping(ctx).Err()
}

// Acquire takes the lock named key with SET NX. ErrLockHeld means someone else has it.
func (r *Redis) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	if r == nil || r.Client == nil {
		return nil, ErrNoRedis
	}
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, key, token, r.lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	client := r.Client
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, client, []string{key}, token).Err()
	}, nil
}
