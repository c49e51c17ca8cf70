package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultMemoryMaxEntries = 10_000
	counterSweepInterval    = time.Minute
)

var (
	errEmptyKey = errors.New("cache: key is required")
	errRejected = errors.New("cache: local store rejected the write")
)

// MemoryConfig controls the in-process store.
type MemoryConfig struct {
	// MaxEntries bounds the number of cached values. Older, less frequently used
	// entries are evicted once the bound is reached.
	MaxEntries int64
	Clock      func() time.Time
}

// MemoryStore is the in-process Store used when no remote backend is configured
// and whenever the remote backend is degraded. Values live in a bounded ristretto
// cache whose per-entry TTL is enforced on read and swept in the background.
// Counters are kept separately so increments stay atomic.
type MemoryStore struct {
	values *ristretto.Cache[string, []byte]
	clock  func() time.Time

	mu       sync.Mutex
	counters map[string]*memoryCounter

	stop     chan struct{}
	stopOnce sync.Once
}

type memoryCounter struct {
	count     int64
	windowEnd time.Time
}

// NewMemoryStore constructs an in-memory Store.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMemoryMaxEntries
	}

	values, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	store := &MemoryStore{
		values:   values,
		clock:    clock,
		counters: make(map[string]*memoryCounter),
		stop:     make(chan struct{}),
	}

	go store.sweepLoop()
	return store, nil
}

// Close releases the background sweeper and the underlying cache.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.values.Close()
	})
}

// Get retrieves a value by key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, errEmptyKey
	}
	v, ok := s.values.Get(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Set stores a value without expiry.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithExpiry(ctx, key, value, 0)
}

// SetWithExpiry stores a value that disappears once ttl elapses. A zero ttl keeps the
// value until it is deleted or evicted.
func (s *MemoryStore) SetWithExpiry(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	if ttl < 0 {
		ttl = 0
	}
	payload := bytes.Clone(value)
	if !s.values.SetWithTTL(key, payload, 1, ttl) {
		// Dropped under buffer contention; retry once after the buffer drains.
		s.values.Wait()
		if !s.values.SetWithTTL(key, payload, 1, ttl) {
			return errRejected
		}
	}
	s.values.Wait()
	return nil
}

// Delete removes keys, ignoring missing ones.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	for _, key := range keys {
		s.values.Del(key)
	}
	s.values.Wait()

	s.mu.Lock()
	for _, key := range keys {
		delete(s.counters, key)
	}
	s.mu.Unlock()
	return nil
}

// IncrementWithTTL increments the counter for key inside a fixed window.
func (s *MemoryStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if key == "" {
		return 0, 0, errEmptyKey
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || !now.Before(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.counters[key] = counter
	}
	counter.count++

	return counter.count, counter.windowEnd.Sub(now), nil
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(counterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepCounters()
		}
	}
}

func (s *MemoryStore) sweepCounters() {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, counter := range s.counters {
		if !now.Before(counter.windowEnd) {
			delete(s.counters, key)
		}
	}
}
