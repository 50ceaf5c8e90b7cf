package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const defaultLockTTL = 15 * time.Minute

// ErrJobRunning is returned when another run holds the job lock
var ErrJobRunning = errors.New("job_already_running")

// Unlock releases a lock obtained from a Locker
type Unlock func(ctx context.Context) error

// Locker serialises job runs, across processes when backed by Redis
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// RedisLocker holds job locks as Redis keys with a TTL so a crashed
// runner cannot block later runs forever.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// releaseScript deletes the key only when it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "verification:lock:"}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrJobRunning
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Err()
	}, nil
}

// LocalLocker is an in-process Locker for single-instance deployments
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	now := l.now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, ErrJobRunning
	}
	until := now.Add(ttl)
	l.held[key] = until

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// a lock that expired and was taken over belongs to the new holder
		if l.held[key].Equal(until) {
			delete(l.held, key)
		}
		return nil
	}, nil
}
