package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	errLockoutActive           = errors.New("account lockout active")
	errLockoutRedisUnavailable = errors.New("lockout redis unavailable")
)

const (
	lockoutFailureKeyPrefix = "alf"
	lockoutLockKeyPrefix    = "alk"
)

// lockoutLimiter tracks consecutive failed password checks per user.
//
// The failure counter lives under a window TTL so stale failures age out on
// their own. Crossing the threshold plants a lock key for the lock duration
// and clears the counter; any successful login clears the counter too.
type lockoutLimiter struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

func newLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig) *lockoutLimiter {
	return &lockoutLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func lockoutFailureKey(userID string) string {
	return lockoutFailureKeyPrefix + ":" + userID
}

func lockoutLockKey(userID string) string {
	return lockoutLockKeyPrefix + ":" + userID
}

// Check returns errLockoutActive while the lock key exists.
func (l *lockoutLimiter) Check(ctx context.Context, userID string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}

	n, err := l.redis.Exists(ctx, lockoutLockKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errLockoutRedisUnavailable, err)
	}
	if n > 0 {
		return errLockoutActive
	}
	return nil
}

// RecordFailure bumps the consecutive-failure counter and reports whether
// this failure crossed the lockout threshold.
func (l *lockoutLimiter) RecordFailure(ctx context.Context, userID string) (bool, error) {
	if l == nil || !l.config.Enabled {
		return false, nil
	}

	key := lockoutFailureKey(userID)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errLockoutRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", errLockoutRedisUnavailable, err)
		}
	}

	if count < int64(l.config.MaxFailures) {
		return false, nil
	}

	_, err = l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, lockoutLockKey(userID), 1, l.config.Duration)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", errLockoutRedisUnavailable, err)
	}
	return true, nil
}

// Reset clears the failure counter after a successful authentication.
func (l *lockoutLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}
	if err := l.redis.Del(ctx, lockoutFailureKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errLockoutRedisUnavailable, err)
	}
	return nil
}

// Unlock removes an active lock ahead of its natural expiry.
func (l *lockoutLimiter) Unlock(ctx context.Context, userID string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}
	if err := l.redis.Del(ctx, lockoutLockKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errLockoutRedisUnavailable, err)
	}
	return nil
}

// LockRemaining reports the time left on an active lock, zero when unlocked.
func (l *lockoutLimiter) LockRemaining(ctx context.Context, userID string) (time.Duration, error) {
	if l == nil || !l.config.Enabled {
		return 0, nil
	}
	ttl, err := l.redis.PTTL(ctx, lockoutLockKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errLockoutRedisUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
