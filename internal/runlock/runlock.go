// Package runlock guarantees that a source is processed by at most one run
// at a time, within a process or across processes sharing a Redis server.
package runlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL bounds how long a crashed holder can keep a Redis lock.
const DefaultTTL = 10 * time.Minute

// Locker hands out exclusive, non-blocking locks by key.
type Locker interface {
	// TryLock acquires key. ok is false when another holder has it. The
	// returned release func must be called once the work is done.
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Key is the lock key for a source.
func Key(sourceID int64) string {
	return fmt.Sprintf("feedwatch:source:%d", sourceID)
}

// MemoryLocker is an in-process Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker returns an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// TryLock implements Locker.
func (l *MemoryLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker backed by Redis SET NX PX.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisLocker connects to addr and checks that the server answers.
func NewRedisLocker(ctx context.Context, addr string, log *zap.Logger) (*RedisLocker, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisLocker{client: client, ttl: DefaultTTL, log: log}, nil
}

// TryLock implements Locker.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				l.log.Warn("releasing lock failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, true, nil
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// New returns a RedisLocker when redisAddr is set and a MemoryLocker otherwise.
func New(ctx context.Context, redisAddr string, log *zap.Logger) (Locker, error) {
	if redisAddr == "" {
		return NewMemoryLocker(), nil
	}
	return NewRedisLocker(ctx, redisAddr, log)
}
