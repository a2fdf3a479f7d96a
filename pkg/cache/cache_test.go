package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	calls atomic.Int32
	err   error
}

func (c *counter) load(_ context.Context, key string) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}
	return "v:" + key, nil
}

func TestCacheExpiry(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	loader := &counter{}
	c := New[string, string](30*time.Second, 10, loader.load)
	c.now = func() time.Time { return current }
	ctx := context.Background()

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v:a", v)
	_, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, loader.calls.Load())

	current = current.Add(30 * time.Second)
	_, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, loader.calls.Load(), "an item is stale at exactly its ttl")
}

func TestCacheErrorsAreNotStored(t *testing.T) {
	boom := errors.New("boom")
	loader := &counter{err: boom}
	c := New[string, string](time.Minute, 10, loader.load)
	ctx := context.Background()

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, c.items)

	loader.err = nil
	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v:a", v)
	assert.EqualValues(t, 2, loader.calls.Load())
}

func TestCacheCapacity(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	loader := &counter{}
	c := New[string, string](time.Minute, 2, loader.load)
	c.now = func() time.Time { return current }
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		_, err := c.Get(ctx, key)
		require.NoError(t, err)
	}

	// expired items make room first
	current = current.Add(2 * time.Minute)
	_, err := c.Get(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, c.items, 1)

	for _, key := range []string{"d", "e", "f"} {
		_, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(c.items), 2)
	}
	assert.Contains(t, c.items, "f")
}

func TestCacheConcurrentMissesShareOneLoad(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	c := New[string, int](time.Minute, 10, func(ctx context.Context, key string) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 42, ctx.Err()
	})

	// the first caller gives up while the load is running
	first, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	results := make([]int, 5)
	errs := make([]error, 5)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.Get(first, "k")
	}()
	<-started

	for i := 1; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "k")
		}()
	}
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i])
	}
	assert.EqualValues(t, 1, calls.Load())
}
