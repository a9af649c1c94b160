package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes work on a key. Lock blocks until the key is free or ctx ends;
// the returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker is a keyed mutex for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an empty keyed mutex
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]*keyLock{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, kl, true) })
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock, held bool) {
	if held {
		<-kl.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// ErrLockTimeout is returned when a distributed lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock wait timed out")

const (
	redisLockPrefix = "lock:media:"
	redisPollDelay  = 50 * time.Millisecond
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker holds a lease in Redis (SET NX PX) so that replicas sharing the same
// storage serialize root mutations. The lease expires after ttl if the holder dies.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	maxWait time.Duration
	local   *LocalLocker
}

// NewRedisLocker creates a distributed locker. maxWait bounds how long Lock polls.
func NewRedisLocker(client *redis.Client, ttl, maxWait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, maxWait: maxWait, local: NewLocalLocker()}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	// queue same-process callers locally so only one of them polls Redis
	unlockLocal, err := r.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	redisKey := redisLockPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(r.maxWait)
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			unlockLocal()
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			unlockLocal()
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		case <-time.After(redisPollDelay):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release even if the request context is already cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = unlockScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err()
			unlockLocal()
		})
	}, nil
}
