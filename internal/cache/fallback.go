package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/trackgate/pkg/logger"
	"github.com/charlesng35/trackgate/pkg/metrics"
)

const defaultReconnectInterval = 5 * time.Second

const (
	backendRemote = "remote"
	backendLocal  = "local"
)

// remoteBackend is the subset of RedisBackend used by FallbackStore.
type remoteBackend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Ping(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Close() error
}

// FallbackConfig configures a FallbackStore. An empty Redis.Address leaves the
// store unconfigured and every operation is served by the local store.
type FallbackConfig struct {
	Redis RedisConfig
	Local MemoryConfig
	// ReconnectInterval controls how often a degraded store pings the remote so the
	// client can re-establish a connection and report it.
	ReconnectInterval time.Duration
}

// FallbackStore prefers a remote Redis backend and transparently serves from an
// in-process store when the remote is missing or failing. No method ever returns a
// remote error: a failed remote call demotes the store to HealthDegraded and the
// same call is answered locally. Only the backend's connect notification
// (MarkConnected) promotes it back to HealthHealthy. A call whose own context was
// cancelled is answered locally without demoting the store.
type FallbackStore struct {
	remote remoteBackend
	local  *MemoryStore
	state  atomic.Int32
	log    *zap.Logger

	reconnectInterval time.Duration
	stop              chan struct{}
	stopOnce          sync.Once
	wg                sync.WaitGroup
}

// NewFallbackStore constructs the process-wide cache. Call Connect once at startup
// when a remote address is configured.
func NewFallbackStore(cfg FallbackConfig) (*FallbackStore, error) {
	local, err := NewMemoryStore(cfg.Local)
	if err != nil {
		return nil, err
	}

	s := &FallbackStore{
		local:             local,
		log:               logger.WithModule("cache"),
		reconnectInterval: cfg.ReconnectInterval,
		stop:              make(chan struct{}),
	}
	if s.reconnectInterval <= 0 {
		s.reconnectInterval = defaultReconnectInterval
	}

	if strings.TrimSpace(cfg.Redis.Address) == "" {
		s.setState(HealthUnconfigured)
		s.log.Info("redis address not configured; using in-memory cache")
		return s, nil
	}

	remote, err := NewRedisBackend(cfg.Redis, s.MarkConnected)
	if err != nil {
		local.Close()
		return nil, err
	}
	s.remote = remote
	s.setState(HealthConnecting)

	s.wg.Add(1)
	go s.reconnectLoop()
	return s, nil
}

// newFallbackStoreWithRemote wires an arbitrary remote backend; used by tests.
func newFallbackStoreWithRemote(remote remoteBackend, local *MemoryStore) *FallbackStore {
	s := &FallbackStore{
		remote:            remote,
		local:             local,
		log:               logger.WithModule("cache"),
		reconnectInterval: defaultReconnectInterval,
		stop:              make(chan struct{}),
	}
	s.setState(HealthConnecting)
	return s
}

// Connect performs the startup connection attempt. A failure leaves the store
// degraded and is returned for logging only; the store remains fully usable.
func (s *FallbackStore) Connect(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	if err := s.remote.Ping(ctx); err != nil {
		s.degrade("connect", err)
		return err
	}
	// A pooled connection may already exist, in which case no connect hook fired.
	if s.Health() == HealthConnecting {
		s.MarkConnected()
	}
	return nil
}

// MarkConnected records the backend's report of a freshly established connection.
func (s *FallbackStore) MarkConnected() {
	for {
		current := Health(s.state.Load())
		if current == HealthUnconfigured || current == HealthHealthy {
			return
		}
		if s.state.CompareAndSwap(int32(current), int32(HealthHealthy)) {
			metrics.CacheHealth.Set(float64(HealthHealthy))
			s.log.Info("redis connected", zap.String("previous", current.String()))
			return
		}
	}
}

// Health reports the current backend state.
func (s *FallbackStore) Health() Health {
	return Health(s.state.Load())
}

// Close stops background work and releases both backends.
func (s *FallbackStore) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		if s.remote != nil {
			err = multierr.Append(err, s.remote.Close())
		}
		s.local.Close()
	})
	return err
}

// Get retrieves a value by key.
func (s *FallbackStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, errEmptyKey
	}
	if s.useRemote() {
		value, found, err := s.remote.Get(ctx, key)
		if err == nil {
			recordLookup("get", backendRemote, found)
			return value, found, nil
		}
		s.remoteFailed(ctx, "get", err)
	}

	value, found, err := s.local.Get(ctx, key)
	recordLookup("get", backendLocal, found)
	return value, found, err
}

// Set stores a value without expiry.
func (s *FallbackStore) Set(ctx context.Context, key string, value []byte) error {
	return s.write(ctx, "set", key, value, 0)
}

// SetWithExpiry stores a value that expires after ttl.
func (s *FallbackStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.write(ctx, "set_with_expiry", key, value, ttl)
}

// Delete removes keys from the active backend. The local copy is always cleared
// so a later degrade cannot resurrect a deleted value.
func (s *FallbackStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if s.useRemote() {
		if err := s.remote.Delete(ctx, keys...); err != nil {
			s.remoteFailed(ctx, "delete", err)
		} else {
			recordOutcome("delete", backendRemote, nil)
		}
	}

	err := s.local.Delete(ctx, keys...)
	recordOutcome("delete", backendLocal, err)
	return err
}

// IncrementWithTTL increments a windowed counter on the active backend.
func (s *FallbackStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if key == "" {
		return 0, 0, errEmptyKey
	}
	if s.useRemote() {
		count, ttl, err := s.remote.IncrementWithTTL(ctx, key, window)
		if err == nil {
			recordOutcome("incr", backendRemote, nil)
			return count, ttl, nil
		}
		s.remoteFailed(ctx, "incr", err)
	}

	count, ttl, err := s.local.IncrementWithTTL(ctx, key, window)
	recordOutcome("incr", backendLocal, err)
	return count, ttl, err
}

func (s *FallbackStore) write(ctx context.Context, op, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	if s.useRemote() {
		err := s.remote.Set(ctx, key, value, ttl)
		if err == nil {
			recordOutcome(op, backendRemote, nil)
			return nil
		}
		s.remoteFailed(ctx, op, err)
	}

	err := s.local.SetWithExpiry(ctx, key, value, ttl)
	recordOutcome(op, backendLocal, err)
	return err
}

func (s *FallbackStore) useRemote() bool {
	return s.remote != nil && s.Health() == HealthHealthy
}

// remoteFailed demotes the store unless the failure is the caller giving up.
func (s *FallbackStore) remoteFailed(ctx context.Context, op string, cause error) {
	if ctx != nil && ctx.Err() != nil {
		recordOutcome(op, backendRemote, cause)
		return
	}
	s.degrade(op, cause)
}

func (s *FallbackStore) degrade(op string, cause error) {
	recordOutcome(op, backendRemote, cause)
	for {
		current := Health(s.state.Load())
		if current == HealthDegraded || current == HealthUnconfigured {
			return
		}
		if s.state.CompareAndSwap(int32(current), int32(HealthDegraded)) {
			metrics.CacheHealth.Set(float64(HealthDegraded))
			s.log.Warn("redis unavailable; falling back to in-memory cache",
				zap.String("op", op),
				zap.Error(cause),
			)
			return
		}
	}
}

func (s *FallbackStore) setState(h Health) {
	s.state.Store(int32(h))
	metrics.CacheHealth.Set(float64(h))
}

func (s *FallbackStore) reconnectLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.reconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if s.Health() != HealthDegraded {
				continue
			}
			s.probe()
		}
	}
}

// probe dials the remote on a fresh pool while degraded. Success alone does not
// restore the store; the connect notification from the new dial does.
func (s *FallbackStore) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), s.reconnectInterval)
	defer cancel()
	if err := s.remote.Reconnect(ctx); err != nil {
		s.log.Debug("redis reconnect probe failed", zap.Error(err))
	}
}

func recordLookup(op, backend string, found bool) {
	result := "miss"
	if found {
		result = "hit"
	}
	metrics.CacheOperations.WithLabelValues(op, backend, result).Inc()
}

func recordOutcome(op, backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.CacheOperations.WithLabelValues(op, backend, result).Inc()
}

var _ Store = (*FallbackStore)(nil)
var _ Store = (*MemoryStore)(nil)
var _ remoteBackend = (*RedisBackend)(nil)

