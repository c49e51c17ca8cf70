package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/trackgate/internal/models"
	"github.com/charlesng35/trackgate/pkg/crypto"
	apperrors "github.com/charlesng35/trackgate/pkg/errors"
	"github.com/charlesng35/trackgate/pkg/logger"
)

const (
	// APIKeyPrefix marks plaintext secrets issued by this service.
	APIKeyPrefix = "sk_"

	// DefaultAPIKeyRateLimit applies when a key is created without an explicit limit.
	DefaultAPIKeyRateLimit = 100

	apiKeySecretBytes   = 32
	apiKeyDisplayLength = 11
	defaultTouchTimeout = 5 * time.Second
)

// CreateAPIKeyInput describes a key to issue.
type CreateAPIKeyInput struct {
	UserID    string
	Name      string
	RateLimit int
	ExpiresAt *time.Time
}

// CreatedAPIKey is returned once at creation time and is the only place the
// plaintext secret ever appears.
type CreatedAPIKey struct {
	ID        string     `json:"id"`
	Key       string     `json:"apiKey"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rateLimit"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// APIKeySummary is the listing view of a key. It never carries the digest.
type APIKeySummary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"keyPrefix"`
	RateLimit  int        `json:"rateLimit"`
	IsActive   bool       `json:"isActive"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// APIKeyOption customises an APIKeyService.
type APIKeyOption func(*APIKeyService)

// WithAPIKeyClock overrides the time source used for expiry checks.
func WithAPIKeyClock(now func() time.Time) APIKeyOption {
	return func(s *APIKeyService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultRateLimit overrides the limit applied when none is requested.
func WithDefaultRateLimit(limit int) APIKeyOption {
	return func(s *APIKeyService) {
		if limit > 0 {
			s.defaultRateLimit = limit
		}
	}
}

// APIKeyService issues, validates and revokes API keys.
type APIKeyService struct {
	db               *gorm.DB
	now              func() time.Time
	defaultRateLimit int
	touchTimeout     time.Duration
	log              *zap.Logger

	background sync.WaitGroup
}

// NewAPIKeyService constructs an APIKeyService using the provided database handle.
func NewAPIKeyService(db *gorm.DB, opts ...APIKeyOption) (*APIKeyService, error) {
	if db == nil {
		return nil, errors.New("api key service: db is required")
	}
	svc := &APIKeyService{
		db:               db,
		now:              time.Now,
		defaultRateLimit: DefaultAPIKeyRateLimit,
		touchTimeout:     defaultTouchTimeout,
		log:              logger.WithModule("api_keys"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// HashKey returns the hex encoded sha256 digest stored for a plaintext key.
func HashKey(plaintext string) string {
	return crypto.SHA256Hex(plaintext)
}

// Create issues a new key. Only the digest is persisted.
func (s *APIKeyService) Create(ctx context.Context, input CreateAPIKeyInput) (*CreatedAPIKey, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}

	rateLimit := input.RateLimit
	if rateLimit <= 0 {
		rateLimit = s.defaultRateLimit
	}

	secret, err := crypto.GenerateHexToken(apiKeySecretBytes)
	if err != nil {
		return nil, fmt.Errorf("api key service: generate secret: %w", err)
	}
	plaintext := APIKeyPrefix + secret

	record := models.APIKey{
		UserID:    userID,
		Name:      name,
		KeyHash:   HashKey(plaintext),
		KeyPrefix: plaintext[:apiKeyDisplayLength],
		RateLimit: rateLimit,
		IsActive:  true,
		ExpiresAt: input.ExpiresAt,
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, persistenceError("api key service", "create key", err)
	}

	return &CreatedAPIKey{
		ID:        record.ID,
		Key:       plaintext,
		Name:      record.Name,
		RateLimit: record.RateLimit,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Validate resolves a plaintext key to its active, unexpired record. A nil record
// with a nil error means the key is unknown, revoked or expired.
func (s *APIKeyService) Validate(ctx context.Context, plaintext string) (*models.APIKey, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(plaintext) == "" {
		return nil, nil
	}

	var record models.APIKey
	err := s.db.WithContext(ctx).
		Where("key_hash = ? AND is_active = ?", HashKey(plaintext), true).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError("api key service", "lookup key", err)
	}

	now := s.now()
	if record.Expired(now) {
		return nil, nil
	}

	s.touch(record.ID, now)
	return &record, nil
}

// List returns the caller's keys, newest first.
func (s *APIKeyService) List(ctx context.Context, userID string) ([]APIKeySummary, error) {
	ctx = ensureContext(ctx)

	var records []models.APIKey
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, persistenceError("api key service", "list keys", err)
	}

	summaries := make([]APIKeySummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, APIKeySummary{
			ID:         record.ID,
			Name:       record.Name,
			KeyPrefix:  record.KeyPrefix,
			RateLimit:  record.RateLimit,
			IsActive:   record.IsActive,
			CreatedAt:  record.CreatedAt,
			LastUsedAt: record.LastUsedAt,
			ExpiresAt:  record.ExpiresAt,
		})
	}
	return summaries, nil
}

// Revoke deactivates a key owned by userID. Unknown keys and keys owned by someone
// else are left untouched and reported as success.
func (s *APIKeyService) Revoke(ctx context.Context, keyID, userID string) error {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ? AND user_id = ?", strings.TrimSpace(keyID), strings.TrimSpace(userID)).
		Update("is_active", false).Error
	if err != nil {
		return persistenceError("api key service", "revoke key", err)
	}
	return nil
}

// Wait blocks until pending background updates have finished.
func (s *APIKeyService) Wait() {
	s.background.Wait()
}

func (s *APIKeyService) touch(id string, at time.Time) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.touchTimeout)
		defer cancel()

		err := s.db.WithContext(ctx).
			Model(&models.APIKey{}).
			Where("id = ?", id).
			UpdateColumn("last_used_at", at).Error
		if err != nil {
			s.log.Warn("failed to record api key usage", zap.String("api_key_id", id), zap.Error(err))
		}
	}()
}
