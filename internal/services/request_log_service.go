package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/trackgate/internal/models"
	"github.com/charlesng35/trackgate/pkg/logger"
)

const defaultRecordTimeout = 5 * time.Second

// RequestEntry captures a single admitted request.
type RequestEntry struct {
	APIKeyID   string
	Endpoint   string
	Method     string
	StatusCode int
	IPAddress  string
}

// RequestLogService persists the API request log and answers window counts.
type RequestLogService struct {
	db  *gorm.DB
	now func() time.Time
	log *zap.Logger

	background sync.WaitGroup
}

// NewRequestLogService constructs a RequestLogService using the provided database handle.
func NewRequestLogService(db *gorm.DB) (*RequestLogService, error) {
	if db == nil {
		return nil, errors.New("request log service: db is required")
	}
	return &RequestLogService{
		db:  db,
		now: time.Now,
		log: logger.WithModule("request_log"),
	}, nil
}

// Record appends an entry to the log.
func (s *RequestLogService) Record(ctx context.Context, entry RequestEntry) error {
	ctx = ensureContext(ctx)

	apiKeyID := strings.TrimSpace(entry.APIKeyID)
	if apiKeyID == "" {
		return errors.New("request log service: api key id is required")
	}

	row := models.APIRequest{
		APIKeyID:   apiKeyID,
		Endpoint:   strings.TrimSpace(entry.Endpoint),
		Method:     strings.ToUpper(strings.TrimSpace(entry.Method)),
		StatusCode: entry.StatusCode,
		IPAddress:  strings.TrimSpace(entry.IPAddress),
		CreatedAt:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return persistenceError("request log service", "record request", err)
	}
	return nil
}

// RecordAsync appends an entry in the background. Failures are logged and dropped.
func (s *RequestLogService) RecordAsync(entry RequestEntry) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), defaultRecordTimeout)
		defer cancel()

		if err := s.Record(ctx, entry); err != nil {
			s.log.Warn("failed to record api request",
				zap.String("api_key_id", entry.APIKeyID),
				zap.String("endpoint", entry.Endpoint),
				zap.Error(err),
			)
		}
	}()
}

// CountSince returns the number of entries for apiKeyID created at or after since.
func (s *RequestLogService) CountSince(ctx context.Context, apiKeyID string, since time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.APIRequest{}).
		Where("api_key_id = ? AND created_at >= ?", apiKeyID, since).
		Count(&count).Error; err != nil {
		return 0, persistenceError("request log service", "count requests", err)
	}
	return count, nil
}

// CleanupOlderThan removes entries older than the supplied retention window (in days).
func (s *RequestLogService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("request log service: retentionDays must be positive")
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.APIRequest{})
	if result.Error != nil {
		return 0, persistenceError("request log service", "cleanup requests", result.Error)
	}
	return result.RowsAffected, nil
}

// Wait blocks until pending background records have been written.
func (s *RequestLogService) Wait() {
	s.background.Wait()
}
