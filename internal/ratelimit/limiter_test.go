package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAllowRejectsAfterLimitUntilOldestAgesOut(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(map[Category]Rule{Messages: {Limit: 3, Window: time.Minute}}).WithClock(clock.Now)

	require.True(t, l.Allow(1, Messages))
	clock.Advance(10 * time.Second)
	require.True(t, l.Allow(1, Messages))
	require.True(t, l.Allow(1, Messages))

	assert.False(t, l.Allow(1, Messages), "limit+1 call must be rejected")
	assert.True(t, l.Allow(2, Messages), "other users are independent")

	clock.Advance(49 * time.Second)
	assert.False(t, l.Allow(1, Messages), "oldest stamp is still inside the window")

	clock.Advance(time.Second)
	assert.True(t, l.Allow(1, Messages), "oldest stamp aged out")
	assert.False(t, l.Allow(1, Messages))
}

func TestRejectionIsNotRecorded(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(map[Category]Rule{Images: {Limit: 1, Window: time.Hour}}).WithClock(clock.Now)

	require.True(t, l.Allow(1, Images))
	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		require.False(t, l.Allow(1, Images))
	}
	clock.Advance(55 * time.Minute)
	assert.True(t, l.Allow(1, Images))
}

func TestCategoriesAreIndependent(t *testing.T) {
	l := New(DefaultRules())
	for i := 0; i < 5; i++ {
		require.True(t, l.Allow(1, Search))
	}
	assert.False(t, l.Allow(1, Search))
	assert.True(t, l.Allow(1, Images))
	assert.True(t, l.Allow(1, Messages))
	assert.True(t, l.Allow(1, Category("unknown")))
}

func TestConcurrentBurstNeverExceedsLimit(t *testing.T) {
	l := New(map[Category]Rule{Messages: {Limit: 12, Window: time.Minute}})

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(42, Messages) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(12), accepted.Load())
}

func TestReset(t *testing.T) {
	l := New(map[Category]Rule{Search: {Limit: 1, Window: time.Hour}})
	require.True(t, l.Allow(1, Search))
	require.False(t, l.Allow(1, Search))
	l.Reset()
	assert.True(t, l.Allow(1, Search))
}
