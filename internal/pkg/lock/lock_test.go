package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesKey(t *testing.T) {
	t.Parallel()

	l := NewLocalLocker()
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "abc")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	l.mu.Lock()
	assert.Empty(t, l.locks, "released keys are dropped")
	l.mu.Unlock()
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	t.Parallel()

	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLockerContextCancel(t *testing.T) {
	t.Parallel()

	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "abc")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "abc")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// double unlock is harmless
	unlock()
	unlock()

	unlock, err = l.Lock(context.Background(), "abc")
	require.NoError(t, err)
	unlock()
}
