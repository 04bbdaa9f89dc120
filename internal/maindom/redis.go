package maindom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	acquireScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
if cur == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisLocker keeps a lease as a Redis key holding the owner ID with a
// millisecond TTL. Check-and-set steps run as Lua scripts so they are atomic.
type RedisLocker struct {
	client redis.Scripter
	key    string
}

// Compile-time interface check.
var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker returns a locker for key.
func NewRedisLocker(client redis.Scripter, key string) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("maindom: redis client is required")
	}
	if key == "" {
		return nil, errors.New("maindom: redis key must not be empty")
	}
	return &RedisLocker{client: client, key: key}, nil
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	n, err := acquireScript.Run(ctx, l.client, []string{l.key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("maindom: acquire %s: %w", l.key, err)
	}
	return n == 1, nil
}

// Renew implements Locker.
func (l *RedisLocker) Renew(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("maindom: renew %s: %w", l.key, err)
	}
	return n == 1, nil
}

// Release implements Locker.
func (l *RedisLocker) Release(ctx context.Context, owner string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Err(); err != nil {
		return fmt.Errorf("maindom: release %s: %w", l.key, err)
	}
	return nil
}
