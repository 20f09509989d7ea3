package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"reedy/reader/internal/update"
)

func TestEnqueueAfterStopDropsJob(t *testing.T) {
	pool := NewWorkerPool(nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	pool.Stop()

	assert.NotPanics(t, func() {
		pool.Enqueue(update.Job{FeedID: 1, Polling: true})
	})
}

func TestStopIsIdempotent(t *testing.T) {
	pool := NewWorkerPool(nil, 2)
	pool.Start(context.Background())

	assert.NotPanics(t, func() {
		pool.Stop()
		pool.Stop()
	})
}

func TestFeedLocksSerializeSameFeed(t *testing.T) {
	locks := newFeedLocks()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(42)
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "jobs for one feed never overlap")
	assert.Empty(t, locks.locks, "released locks are dropped from the table")
}

func TestFeedLocksIndependentFeeds(t *testing.T) {
	locks := newFeedLocks()

	unlockA := locks.lock(1)
	done := make(chan struct{})
	go func() {
		unlockB := locks.lock(2)
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different feed id blocked")
	}
	unlockA()
}
