package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

var errRemoteDown = errors.New("remote down")

// fakeRemote is an in-memory remoteBackend whose failures can be toggled.
type fakeRemote struct {
	mu     sync.Mutex
	values map[string][]byte
	fail   atomic.Bool
	calls  atomic.Int32
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{values: make(map[string][]byte)}
}

func (f *fakeRemote) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, false, errRemoteDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.calls.Add(1)
	if f.fail.Load() {
		return errRemoteDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, keys ...string) error {
	f.calls.Add(1)
	if f.fail.Load() {
		return errRemoteDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeRemote) IncrementWithTTL(_ context.Context, _ string, window time.Duration) (int64, time.Duration, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return 0, 0, errRemoteDown
	}
	return 1, window, nil
}

func (f *fakeRemote) Ping(context.Context) error {
	if f.fail.Load() {
		return errRemoteDown
	}
	return nil
}

func (f *fakeRemote) Reconnect(ctx context.Context) error { return f.Ping(ctx) }

func (f *fakeRemote) Close() error { return nil }

func newTestFallback(t *testing.T, remote remoteBackend) *FallbackStore {
	t.Helper()
	local, err := NewMemoryStore(MemoryConfig{})
	require.NoError(t, err)
	store := newFallbackStoreWithRemote(remote, local)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestFallbackStoreUnconfiguredUsesLocalOnly(t *testing.T) {
	store, err := NewFallbackStore(FallbackConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.Equal(t, HealthUnconfigured, store.Health())
	require.NoError(t, store.Connect(ctx))

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", string(value))

	store.MarkConnected()
	require.Equal(t, HealthUnconfigured, store.Health())
}

func TestFallbackStoreConnectFailureDegrades(t *testing.T) {
	remote := newFakeRemote()
	remote.fail.Store(true)
	store := newTestFallback(t, remote)

	require.Error(t, store.Connect(context.Background()))
	require.Equal(t, HealthDegraded, store.Health())
}

func TestFallbackStoreServesLocallyAfterRemoteError(t *testing.T) {
	remote := newFakeRemote()
	store := newTestFallback(t, remote)
	ctx := context.Background()

	require.NoError(t, store.Connect(ctx))
	require.Equal(t, HealthHealthy, store.Health())

	require.NoError(t, store.Set(ctx, "before", []byte("remote")))
	remote.mu.Lock()
	require.Equal(t, "remote", string(remote.values["before"]))
	remote.mu.Unlock()

	remote.fail.Store(true)

	// The first failing call is absorbed and answered locally.
	_, found, err := store.Get(ctx, "before")
	require.NoError(t, err)
	require.False(t, found, "values written remotely are not visible across the degrade boundary")
	require.Equal(t, HealthDegraded, store.Health())

	require.NoError(t, store.Set(ctx, "after", []byte("local")))
	value, found, err := store.Get(ctx, "after")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "local", string(value))

	count, _, err := store.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.NoError(t, store.Delete(ctx, "after"))
}

func TestFallbackStoreStaysDegradedUntilConnectNotification(t *testing.T) {
	remote := newFakeRemote()
	store := newTestFallback(t, remote)
	ctx := context.Background()

	require.NoError(t, store.Connect(ctx))
	remote.fail.Store(true)
	require.NoError(t, store.Set(ctx, "k", []byte("v1")))
	require.Equal(t, HealthDegraded, store.Health())

	// The remote silently recovers; the store must keep serving locally.
	remote.fail.Store(false)
	callsBefore := remote.calls.Load()

	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", string(value))
	require.Equal(t, callsBefore, remote.calls.Load(), "no remote call while degraded")
	require.Equal(t, HealthDegraded, store.Health())

	store.MarkConnected()
	require.Equal(t, HealthHealthy, store.Health())

	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found, "healthy reads go to the remote")
	require.Greater(t, remote.calls.Load(), callsBefore)
}

func TestFallbackStoreDeleteClearsLocalCopy(t *testing.T) {
	remote := newFakeRemote()
	store := newTestFallback(t, remote)
	ctx := context.Background()

	remote.fail.Store(true)
	require.NoError(t, store.Set(ctx, "k", []byte("stale")))

	remote.fail.Store(false)
	store.MarkConnected()
	require.NoError(t, store.Delete(ctx, "k"))

	remote.fail.Store(true)
	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestFallbackStoreSetWithExpiryAfterDegrade(t *testing.T) {
	remote := newFakeRemote()
	remote.fail.Store(true)
	store := newTestFallback(t, remote)
	ctx := context.Background()

	_ = store.Connect(ctx)
	require.NoError(t, store.SetWithExpiry(ctx, "k", []byte("v"), time.Second))

	time.Sleep(1100 * time.Millisecond)

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestFallbackStoreConcurrentDegrade(t *testing.T) {
	remote := newFakeRemote()
	store := newTestFallback(t, remote)
	ctx := context.Background()
	require.NoError(t, store.Connect(ctx))

	remote.fail.Store(true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, store.Set(ctx, "k", []byte("v")))
			_, _, err := store.Get(ctx, "k")
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, HealthDegraded, store.Health())
}

func TestFallbackStoreWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewFallbackStore(FallbackConfig{
		Redis:             RedisConfig{Address: mr.Addr(), Timeout: time.Second},
		ReconnectInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.Equal(t, HealthConnecting, store.Health())
	require.NoError(t, store.Connect(ctx))
	require.Equal(t, HealthHealthy, store.Health())

	require.NoError(t, store.SetWithExpiry(ctx, "telemetry:session", []byte("payload"), 3000*time.Second))
	stored, err := mr.Get("trackgate:telemetry:session")
	require.NoError(t, err)
	require.Equal(t, "payload", stored)
	require.Equal(t, 3000*time.Second, mr.TTL("trackgate:telemetry:session"))

	mr.SetError("LOADING redis is loading the dataset")

	_, found, err := store.Get(ctx, "telemetry:session")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, HealthDegraded, store.Health())

	require.NoError(t, store.Set(ctx, "local-only", []byte("v")))
	value, found, err := store.Get(ctx, "local-only")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", string(value))
}

func TestFallbackStoreRecoversOnReconnect(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewFallbackStore(FallbackConfig{
		Redis:             RedisConfig{Address: mr.Addr(), Timeout: 200 * time.Millisecond},
		ReconnectInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Connect(ctx))

	mr.Close()
	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.Equal(t, HealthDegraded, store.Health())

	require.NoError(t, mr.Restart())

	require.Eventually(t, func() bool {
		return store.Health() == HealthHealthy
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, store.Set(ctx, "k", []byte("remote")))
	stored, err := mr.Get("trackgate:k")
	require.NoError(t, err)
	require.Equal(t, "remote", stored)
}

func TestFallbackStoreCallerCancellationKeepsStoreHealthy(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewFallbackStore(FallbackConfig{
		Redis:             RedisConfig{Address: mr.Addr(), Timeout: time.Second},
		ReconnectInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Connect(context.Background()))
	require.Equal(t, HealthHealthy, store.Health())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = store.Get(cancelled, "telemetry:session")
	require.NoError(t, err)
	require.NoError(t, store.Set(cancelled, "k", []byte("v")))
	_, _, err = store.IncrementWithTTL(cancelled, "ratelimit:apikey:1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Delete(cancelled, "k"))
	require.Equal(t, HealthHealthy, store.Health())

	require.NoError(t, store.Set(context.Background(), "after", []byte("remote")))
	stored, err := mr.Get("trackgate:after")
	require.NoError(t, err)
	require.Equal(t, "remote", stored)
}

func TestFallbackStoreRecoversWhileRedisStaysUp(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewFallbackStore(FallbackConfig{
		Redis:             RedisConfig{Address: mr.Addr(), Timeout: time.Second},
		ReconnectInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Connect(context.Background()))

	// The pooled connection stays usable; only a fresh dial reports recovery.
	store.degrade("get", errRemoteDown)
	require.Equal(t, HealthDegraded, store.Health())

	require.Eventually(t, func() bool {
		return store.Health() == HealthHealthy
	}, 5*time.Second, 20*time.Millisecond)
}
