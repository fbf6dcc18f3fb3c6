package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNotAcquired is returned when a lock could not be taken within the wait
// budget. Callers treat this as "skip the pass", not as a failure.
var ErrNotAcquired = errors.New("lock not acquired within wait budget")

// Lease is a held named lock.
type Lease interface {
	Release(ctx context.Context)
}

// Manager hands out named exclusive locks with a bounded wait. Alert and
// archive passes use distinct names so they never exclude each other.
type Manager interface {
	Acquire(ctx context.Context, name string, wait time.Duration) (Lease, error)
}

const (
	retryInterval = 100 * time.Millisecond

	// leaseTTL caps how long a crashed holder can keep the lock. All passes
	// finish well inside this.
	leaseTTL = 5 * time.Minute
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

type RedisManager struct {
	client *redis.Client
	prefix string
}

func NewRedisManager(client *redis.Client, storeID string) *RedisManager {
	return &RedisManager{
		client: client,
		prefix: fmt.Sprintf("hub:%s:lock:", storeID),
	}
}

// Acquire polls SETNX until the lock is taken or the wait budget runs out.
// The stored value is a random token so a lease can only release itself.
func (m *RedisManager) Acquire(ctx context.Context, name string, wait time.Duration) (Lease, error) {
	key := m.prefix + name
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := m.client.SetNX(ctx, key, token, leaseTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		if ok {
			return &redisLease{client: m.client, key: key, token: token}, nil
		}

		if time.Now().Add(retryInterval).After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

// Release deletes the lock only if this lease still holds it. Errors are
// swallowed: an unreleased lease expires with its TTL.
func (l *redisLease) Release(ctx context.Context) {
	_ = releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
