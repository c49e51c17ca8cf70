package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/charlesng35/trackgate/internal/cache"
	"github.com/charlesng35/trackgate/pkg/logger"
)

const (
	// SessionKey is the cache key holding the shared provider session.
	SessionKey = "telemetry:session"
	// SessionTTL bounds how long a provider session is reused.
	SessionTTL = 3000 * time.Second
)

// Authenticator performs a provider login.
type Authenticator interface {
	Login(ctx context.Context) (Session, error)
}

// SessionCache hands out the shared provider session, logging in only when the
// cached one is missing. Concurrent misses share a single login.
type SessionCache struct {
	store cache.Store
	auth  Authenticator
	ttl   time.Duration
	group singleflight.Group
	log   *zap.Logger
}

// NewSessionCache wires a SessionCache to the process-wide cache store.
func NewSessionCache(store cache.Store, auth Authenticator) (*SessionCache, error) {
	if store == nil {
		return nil, errors.New("session cache: store is required")
	}
	if auth == nil {
		return nil, errors.New("session cache: authenticator is required")
	}
	return &SessionCache{
		store: store,
		auth:  auth,
		ttl:   SessionTTL,
		log:   logger.WithModule("telemetry"),
	}, nil
}

// GetOrRefresh returns the cached session or logs in and caches a fresh one.
func (s *SessionCache) GetOrRefresh(ctx context.Context) (Session, error) {
	if session, ok := s.cached(ctx); ok {
		return session, nil
	}

	// The login must not be cancelled by whichever caller happened to start it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(SessionKey, func() (any, error) {
		if session, ok := s.cached(shared); ok {
			return session, nil
		}

		session, err := s.auth.Login(shared)
		if err != nil {
			return Session{}, err
		}

		payload, err := json.Marshal(session)
		if err != nil {
			return Session{}, err
		}
		if err := s.store.SetWithExpiry(shared, SessionKey, payload, s.ttl); err != nil {
			s.log.Warn("failed to cache telemetry session", zap.Error(err))
		}
		return session, nil
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

// Invalidate drops the cached session so the next call logs in again.
func (s *SessionCache) Invalidate(ctx context.Context) error {
	return s.store.Delete(ctx, SessionKey)
}

func (s *SessionCache) cached(ctx context.Context) (Session, bool) {
	payload, found, err := s.store.Get(ctx, SessionKey)
	if err != nil {
		s.log.Warn("failed to read telemetry session", zap.Error(err))
		return Session{}, false
	}
	if !found {
		return Session{}, false
	}

	var session Session
	if err := json.Unmarshal(payload, &session); err != nil || session.SessionID == "" {
		s.log.Warn("discarding unreadable telemetry session")
		_ = s.store.Delete(ctx, SessionKey)
		return Session{}, false
	}
	return session, true
}
