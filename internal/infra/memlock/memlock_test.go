package memlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nalgeon/be"
)

func TestLocker(t *testing.T) {
	ctx := context.Background()
	l := New()

	release, ok, err := l.TryLock(ctx, "a")
	be.Err(t, err, nil)
	be.True(t, ok)

	_, ok, _ = l.TryLock(ctx, "a")
	be.True(t, !ok)

	_, ok, _ = l.TryLock(ctx, "b")
	be.True(t, ok)

	release()
	release()

	_, ok, _ = l.TryLock(ctx, "a")
	be.True(t, ok)
}

func TestLocker_SingleWinner(t *testing.T) {
	l := New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := l.TryLock(context.Background(), "key"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	be.Equal(t, wins.Load(), int32(1))
}
