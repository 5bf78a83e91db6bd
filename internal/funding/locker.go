package funding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "funding:lock:"

// Locker serialises resolvers of the same request.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	timeout time.Duration
}

// NewLocalLocker builds a keyed mutex whose waits are bounded by timeout.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry), timeout: timeout}
}

// Lock blocks until key is free, the timeout elapses or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			l.release(key, e)
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, ErrBusy
	}
}

func (l *LocalLocker) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// RedisLocker serialises resolvers across processes with a redsync mutex.
type RedisLocker struct {
	rs      *redsync.Redsync
	expiry  time.Duration
	timeout time.Duration
}

// NewRedisLocker builds a distributed locker on top of client.
func NewRedisLocker(client redis.UniversalClient, expiry, timeout time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = 30 * time.Second
	}
	return &RedisLocker{
		rs:      redsync.New(goredis.NewPool(client)),
		expiry:  expiry,
		timeout: timeout,
	}
}

// Lock acquires the distributed mutex for key.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	m := l.rs.NewMutex(lockPrefix+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(64),
		redsync.WithRetryDelay(50*time.Millisecond),
	)
	if err := m.LockContext(ctx); err != nil {
		var taken redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) || ctx.Err() != nil {
			return nil, ErrBusy
		}
		return nil, err
	}
	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = m.UnlockContext(unlockCtx)
	}, nil
}
