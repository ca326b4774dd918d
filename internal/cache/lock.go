package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by TryLock when the lock is already held.
var ErrLocked = errors.New("lock is already held")

// Only the holder's token may release the lock.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// SourceLockKey is the lock held while a source is ingested or synced.
func SourceLockKey(sourceID int64) string {
	return fmt.Sprintf("channelfold:lock:source:%d", sourceID)
}

// TryLock acquires the lock at key with SET NX EX. The returned unlock
// function must be called to release it.
func TryLock(ctx context.Context, r *Redis, key string, ttl time.Duration) (unlock func(), err error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		// Detached so a cancelled request still releases the lock.
		_ = unlockScript.Run(context.Background(), r.client, []string{key}, token).Err()
	}, nil
}

// IsLocked reports whether the lock key exists.
func IsLocked(ctx context.Context, r *Redis, key string) bool {
	n, _ := r.client.Exists(ctx, key).Result()
	return n > 0
}

// TryLock is the method form of the package TryLock.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error) {
	return TryLock(ctx, r, key, ttl)
}
