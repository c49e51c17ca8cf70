package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/trackgate/internal/cache"
)

type failingCounter struct{}

func (failingCounter) CountSince(context.Context, string, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

type failingStore struct {
	cache.Store
}

func (failingStore) IncrementWithTTL(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func TestNewRateLimiterValidatesConfig(t *testing.T) {
	_, err := NewRateLimiter(RateLimiterConfig{})
	require.Error(t, err)

	_, err = NewRateLimiter(RateLimiterConfig{Strategy: RateLimitStrategyCounter})
	require.Error(t, err)

	_, err = NewRateLimiter(RateLimiterConfig{Strategy: "token-bucket", Store: newMemoryStore(t)})
	require.Error(t, err)

	limiter, err := NewRateLimiter(RateLimiterConfig{Strategy: " Counter ", Store: newMemoryStore(t)})
	require.NoError(t, err)
	require.Equal(t, RateLimitStrategyCounter, limiter.Strategy())
}

func TestRateLimiterLogStrategy(t *testing.T) {
	logSvc, _ := newRequestLogService(t)
	limiter, err := NewRateLimiter(RateLimiterConfig{Log: logSvc})
	require.NoError(t, err)
	require.Equal(t, RateLimitStrategyLog, limiter.Strategy())

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, logSvc.Record(ctx, RequestEntry{APIKeyID: "key-1", Endpoint: "/x", Method: "GET", StatusCode: 200}))
	}
	require.True(t, limiter.Allow(ctx, "key-1", 5), "4 requests in window with limit 5")

	require.NoError(t, logSvc.Record(ctx, RequestEntry{APIKeyID: "key-1", Endpoint: "/x", Method: "GET", StatusCode: 200}))
	require.False(t, limiter.Allow(ctx, "key-1", 5), "5 requests in window with limit 5")

	require.True(t, limiter.Allow(ctx, "key-2", 5), "limits are per key")
	require.False(t, limiter.Allow(ctx, "key-2", 0))
}

func TestRateLimiterLogStrategyWindowSlides(t *testing.T) {
	logSvc, _ := newRequestLogService(t)
	now := time.Now()
	limiter, err := NewRateLimiter(RateLimiterConfig{Log: logSvc, Now: func() time.Time { return now }})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, logSvc.Record(ctx, RequestEntry{APIKeyID: "key-1", Endpoint: "/x", Method: "GET"}))
	require.False(t, limiter.Allow(ctx, "key-1", 1))

	now = now.Add(RateLimitWindow + time.Second)
	require.True(t, limiter.Allow(ctx, "key-1", 1))
}

func TestRateLimiterFailsClosed(t *testing.T) {
	limiter := &RateLimiter{strategy: RateLimitStrategyLog, counter: failingCounter{}, now: time.Now, log: zap.NewNop()}
	require.False(t, limiter.Allow(context.Background(), "key-1", 100))

	limiter = &RateLimiter{strategy: RateLimitStrategyCounter, store: failingStore{}, now: time.Now, log: zap.NewNop()}
	require.False(t, limiter.Allow(context.Background(), "key-1", 100))
}

func TestRateLimiterCounterStrategyIsExact(t *testing.T) {
	store := newMemoryStore(t)
	limiter, err := NewRateLimiter(RateLimiterConfig{Strategy: RateLimitStrategyCounter, Store: store})
	require.NoError(t, err)

	const limit = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow(context.Background(), "key-1", limit) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, limit, allowed)
}

func newMemoryStore(t *testing.T) *cache.MemoryStore {
	t.Helper()
	store, err := cache.NewMemoryStore(cache.MemoryConfig{})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}
