package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters for the remote cache backend.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	// Timeout bounds every remote call, including the initial dial.
	Timeout time.Duration
}

const defaultRedisTimeout = 2 * time.Second
const redisKeyPrefix = "trackgate:"

// RedisBackend is the remote half of FallbackStore. Every method returns backend
// errors verbatim; absorbing them is the caller's job.
type RedisBackend struct {
	client  atomic.Pointer[redis.Client]
	opts    redis.Options
	timeout time.Duration
}

// NewRedisBackend builds a client without dialing. onConnect is invoked each time the
// client establishes a fresh connection to the server.
func NewRedisBackend(cfg RedisConfig, onConnect func()) (*RedisBackend, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		// Failures go straight to the local fallback instead of being retried here.
		MaxRetries: -1,
		OnConnect: func(context.Context, *redis.Conn) error {
			if onConnect != nil {
				onConnect()
			}
			return nil
		},
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	backend := &RedisBackend{opts: *opts, timeout: cfg.Timeout}
	backend.client.Store(redis.NewClient(opts))
	return backend, nil
}

// Close closes the underlying connection pool.
func (r *RedisBackend) Close() error {
	return r.client.Load().Close()
}

// Ping checks connectivity, dialing a new connection when the pool is empty.
func (r *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.client.Load().Ping(ctx).Err()
}

// Reconnect replaces the connection pool with an empty one and pings through it.
// The ping has to dial, so a reachable server always fires the connect hook.
func (r *RedisBackend) Reconnect(ctx context.Context) error {
	opts := r.opts
	if old := r.client.Swap(redis.NewClient(&opts)); old != nil {
		_ = old.Close()
	}
	return r.Ping(ctx)
}

// Get retrieves the value associated with a key.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	val, err := r.client.Load().Get(ctx, prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set stores a value with PX expiry semantics; a zero ttl stores it without expiry.
func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.client.Load().Set(ctx, prefixed(key), value, ttl).Err()
}

// Delete removes one or more keys, ignoring missing keys.
func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	prefixedKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixedKeys = append(prefixedKeys, prefixed(key))
	}
	return r.client.Load().Del(ctx, prefixedKeys...).Err()
}

// IncrementWithTTL increments the supplied key and sets the TTL when the window starts.
// A counter found without an expiry gets one, so a lost PEXPIRE cannot pin a window open.
func (r *RedisBackend) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	client := r.client.Load()
	prefixedKey := prefixed(key)

	var incr *redis.IntCmd
	var pttl *redis.DurationCmd
	if _, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, prefixedKey)
		pttl = pipe.PTTL(ctx, prefixedKey)
		return nil
	}); err != nil {
		return 0, 0, err
	}

	count := incr.Val()
	ttl := pttl.Val()
	if ttl > 0 {
		return count, ttl, nil
	}

	if err := client.PExpire(ctx, prefixedKey, window).Err(); err != nil {
		return 0, 0, err
	}
	return count, window, nil
}

func (r *RedisBackend) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, r.timeout)
}

func prefixed(key string) string {
	normalized := normalizeKey(key)
	if strings.HasPrefix(normalized, redisKeyPrefix) {
		return normalized
	}
	return normalizeKey(redisKeyPrefix + normalized)
}

// normalizeKey collapses repeated ':' separators.
func normalizeKey(key string) string {
	if key == "" {
		return key
	}
	var builder strings.Builder
	builder.Grow(len(key))
	prevColon := false
	for i := 0; i < len(key); i++ {
		ch := key[i]
		if ch == ':' {
			if prevColon {
				continue
			}
			prevColon = true
		} else {
			prevColon = false
		}
		builder.WriteByte(ch)
	}
	return builder.String()
}
