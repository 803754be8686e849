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

	"github.com/jrjohn/arcana-ssr/internal/render/stats"
)

func TestGetOrFetch_CacheMiss(t *testing.T) {
	c := New(nil)
	req := &stats.Request{}
	var calls int32

	fetch := func(ctx context.Context, url string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("content for " + url), nil
	}

	content, fromCache, err := c.GetOrFetch(context.Background(), "https://example.com/a.js", req, fetch)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "content for https://example.com/a.js", string(content))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1), req.PackageFetches)
	assert.Equal(t, int64(0), req.FromCache)
}

func TestGetOrFetch_CacheHit(t *testing.T) {
	c := New(nil)
	req := &stats.Request{}
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		return []byte("body"), nil
	}

	_, _, err := c.GetOrFetch(context.Background(), "https://example.com/a.js", req, fetch)
	require.NoError(t, err)

	req2 := &stats.Request{}
	content, fromCache, err := c.GetOrFetch(context.Background(), "https://example.com/a.js", req2, fetch)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "body", string(content))
	assert.Equal(t, int64(1), req2.FromCache)
	assert.Equal(t, int64(0), req2.PackageFetches)
}

func TestGetOrFetch_SingleFlight(t *testing.T) {
	c := New(nil)
	var calls int32
	release := make(chan struct{})

	fetch := func(ctx context.Context, url string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("body"), nil
	}

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			req := &stats.Request{}
			content, _, err := c.GetOrFetch(context.Background(), "https://example.com/shared.js", req, fetch)
			assert.NoError(t, err)
			assert.Equal(t, "body", string(content))
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_FailureNotRetained(t *testing.T) {
	c := New(nil)
	var calls int32
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	}

	req := &stats.Request{}
	_, _, err := c.GetOrFetch(context.Background(), "https://example.com/fail.js", req, fetch)
	assert.Error(t, err)

	req2 := &stats.Request{}
	_, _, err = c.GetOrFetch(context.Background(), "https://example.com/fail.js", req2, fetch)
	assert.Error(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFlushAll(t *testing.T) {
	c := New(nil)
	req := &stats.Request{}
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		return []byte("x"), nil
	}

	_, _, _ = c.GetOrFetch(context.Background(), "https://example.com/a.js", req, fetch)
	assert.Equal(t, 1, c.Size())

	c.FlushAll()
	assert.Equal(t, 0, c.Size())
}

func TestFlushUnused(t *testing.T) {
	c := New(nil)
	req := &stats.Request{}
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		return []byte("x"), nil
	}

	_, _, _ = c.GetOrFetch(context.Background(), "https://example.com/old.js", req, fetch)
	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	_, _, _ = c.GetOrFetch(context.Background(), "https://example.com/new.js", req, fetch)

	c.FlushUnused(cutoff)

	_, fromCacheOld, _ := c.GetOrFetch(context.Background(), "https://example.com/old.js", req, fetch)
	assert.False(t, fromCacheOld, "old entry should have been evicted")

	_, fromCacheNew, _ := c.GetOrFetch(context.Background(), "https://example.com/new.js", req, fetch)
	assert.True(t, fromCacheNew, "new entry should survive the sweep")
}

func TestSize(t *testing.T) {
	c := New(nil)
	req := &stats.Request{}
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		return []byte("12345"), nil
	}

	assert.Equal(t, 0, c.Size())
	_, _, _ = c.GetOrFetch(context.Background(), "https://example.com/a.js", req, fetch)
	assert.Equal(t, 5, c.Size())
}
