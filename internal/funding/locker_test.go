package funding

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerialisesSameKey(t *testing.T) {
	l := NewLocalLocker(50 * time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "req-1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "req-1")
	assert.ErrorIs(t, err, ErrBusy)

	other, err := l.Lock(ctx, "req-2")
	require.NoError(t, err)
	other()

	unlock()
	again, err := l.Lock(ctx, "req-1")
	require.NoError(t, err)
	again()

	l.mu.Lock()
	assert.Empty(t, l.entries)
	l.mu.Unlock()
}

func TestLocalLockerMutualExclusion(t *testing.T) {
	l := NewLocalLocker(time.Second)
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "k")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestRedisLocker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLocker(client, 10*time.Second, 200*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockPrefix+"req-1"))

	_, err = l.Lock(ctx, "req-1")
	assert.ErrorIs(t, err, ErrBusy)

	unlock()
	assert.False(t, mr.Exists(lockPrefix+"req-1"))

	again, err := l.Lock(ctx, "req-1")
	require.NoError(t, err)
	again()
}
