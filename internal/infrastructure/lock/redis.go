package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shopify-insights/internal/domain"
	"shopify-insights/internal/ports"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultKeyPrefix namespaces tenant sync locks
	DefaultKeyPrefix = "shopify-insights:sync:"
	// DefaultTTL bounds how long a crashed replica can block a tenant
	DefaultTTL = 5 * time.Minute
)

// ErrLockNotHeld is returned when releasing a lock that expired or was taken over
var ErrLockNotHeld = errors.New("lock not held")

// releaseScript deletes the key only if we still own it
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker is a TenantLocker shared by every replica pointing at the same Redis
type RedisLocker struct {
	rdb       redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    zerolog.Logger
}

// NewRedisLocker creates a new Redis-backed locker
func NewRedisLocker(rdb redis.UniversalClient, keyPrefix string, ttl time.Duration, logger zerolog.Logger) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{
		rdb:       rdb,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

// TryLock attempts SET NX with the configured TTL
func (l *RedisLocker) TryLock(ctx context.Context, tenantID string) (ports.Unlocker, error) {
	key := l.keyPrefix + tenantID
	value := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, key, value, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for tenant %s: %w", tenantID, err)
	}
	if !ok {
		return nil, domain.ErrSyncInProgress
	}

	l.logger.Debug().Str("tenantId", tenantID).Dur("ttl", l.ttl).Msg("Acquired sync lock")
	return &redisLock{locker: l, key: key, value: value}, nil
}

type redisLock struct {
	locker *RedisLocker
	key    string
	value  string
}

func (k *redisLock) Unlock(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, k.locker.rdb, []string{k.key}, k.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", k.key, err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	k.locker.logger.Debug().Str("key", k.key).Msg("Released sync lock")
	return nil
}
