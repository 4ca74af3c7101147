// Package lock provides a Redis lease that elects one active outbox processor.
package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// DefaultKey is the lease key shared by every processor of one outbox.
const DefaultKey = "chat:outbox:leader"

// acquireScript takes the lease when it is free and extends it when the caller already holds it.
var acquireScript = rueidis.NewLuaScript(`
local holder = redis.call('GET', KEYS[1])
if holder == false then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
end
if holder == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

var releaseScript = rueidis.NewLuaScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLeader holds a lease in Redis. The lease expires after ttl unless renewed
// by another TryAcquire, so a crashed leader is replaced without intervention.
type RedisLeader struct {
	client rueidis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLeader creates a leader candidate with a unique token.
func NewRedisLeader(client rueidis.Client, key string, ttl time.Duration) *RedisLeader {
	return &RedisLeader{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryAcquire reports whether this candidate holds the lease after the call.
func (l *RedisLeader) TryAcquire(ctx context.Context) (bool, error) {
	n, err := acquireScript.Exec(ctx, l.client,
		[]string{l.key},
		[]string{l.token, strconv.FormatInt(l.ttl.Milliseconds(), 10)},
	).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", l.key, err)
	}

	return n == 1, nil
}

// Release gives the lease up if this candidate holds it.
func (l *RedisLeader) Release(ctx context.Context) error {
	if err := releaseScript.Exec(ctx, l.client, []string{l.key}, []string{l.token}).Error(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}

	return nil
}
