package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/trackgate/internal/models"
	"github.com/charlesng35/trackgate/internal/services"
	apperrors "github.com/charlesng35/trackgate/pkg/errors"
	"github.com/charlesng35/trackgate/pkg/logger"
	"github.com/charlesng35/trackgate/pkg/metrics"
)

// Authentication methods reported on an Identity.
const (
	MethodAPIKey = "api_key"
	MethodBearer = "bearer"
)

// KeyValidator resolves plaintext API keys.
type KeyValidator interface {
	Validate(ctx context.Context, plaintext string) (*models.APIKey, error)
}

// Limiter admits or denies a request for an API key.
type Limiter interface {
	Allow(ctx context.Context, apiKeyID string, limit int) bool
}

// RequestRecorder logs admitted API-key requests without blocking the caller.
type RequestRecorder interface {
	RecordAsync(entry services.RequestEntry)
}

// BearerVerifier validates bearer tokens.
type BearerVerifier interface {
	ValidateAccessToken(token string) (*Claims, error)
}

// Credentials are the raw credentials and request facts presented by a caller.
type Credentials struct {
	APIKey      string
	BearerToken string
	Endpoint    string
	Method      string
	IPAddress   string
}

// Identity is the admitted principal.
type Identity struct {
	UserID   string
	APIKeyID string
	Method   string
}

// GatewayConfig wires the gateway collaborators.
type GatewayConfig struct {
	Keys     KeyValidator
	Limiter  Limiter
	Recorder RequestRecorder
	Bearer   BearerVerifier
}

// Gateway admits requests carrying an API key or a bearer token. An API key always
// takes precedence; the bearer token is then ignored.
type Gateway struct {
	keys     KeyValidator
	limiter  Limiter
	recorder RequestRecorder
	bearer   BearerVerifier
	log      *zap.Logger
}

// NewGateway validates the configuration and returns a Gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Keys == nil || cfg.Limiter == nil {
		return nil, errors.New("auth gateway: key validator and limiter are required")
	}
	return &Gateway{
		keys:     cfg.Keys,
		limiter:  cfg.Limiter,
		recorder: cfg.Recorder,
		bearer:   cfg.Bearer,
		log:      logger.WithModule("gateway"),
	}, nil
}

// Admit authenticates the caller and, for API keys, enforces the key's rate limit.
func (g *Gateway) Admit(ctx context.Context, creds Credentials) (*Identity, error) {
	apiKey := strings.TrimSpace(creds.APIKey)
	if apiKey != "" {
		return g.admitAPIKey(ctx, apiKey, creds)
	}

	token := strings.TrimSpace(creds.BearerToken)
	if token != "" {
		return g.admitBearer(token)
	}

	metrics.AuthAdmissions.WithLabelValues("none", "unauthenticated").Inc()
	return nil, apperrors.ErrUnauthorized
}

func (g *Gateway) admitAPIKey(ctx context.Context, plaintext string, creds Credentials) (*Identity, error) {
	record, err := g.keys.Validate(ctx, plaintext)
	if err != nil {
		metrics.AuthAdmissions.WithLabelValues(MethodAPIKey, "error").Inc()
		g.log.Error("api key validation failed", zap.Error(err))
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	if record == nil {
		metrics.AuthAdmissions.WithLabelValues(MethodAPIKey, "invalid_key").Inc()
		return nil, apperrors.ErrInvalidAPIKey
	}

	if !g.limiter.Allow(ctx, record.ID, record.RateLimit) {
		metrics.AuthAdmissions.WithLabelValues(MethodAPIKey, "rate_limited").Inc()
		return nil, apperrors.ErrRateLimit
	}

	if g.recorder != nil {
		g.recorder.RecordAsync(services.RequestEntry{
			APIKeyID:   record.ID,
			Endpoint:   creds.Endpoint,
			Method:     creds.Method,
			StatusCode: http.StatusOK,
			IPAddress:  creds.IPAddress,
		})
	}

	metrics.AuthAdmissions.WithLabelValues(MethodAPIKey, "admitted").Inc()
	return &Identity{
		UserID:   record.UserID,
		APIKeyID: record.ID,
		Method:   MethodAPIKey,
	}, nil
}

func (g *Gateway) admitBearer(token string) (*Identity, error) {
	if g.bearer == nil {
		metrics.AuthAdmissions.WithLabelValues(MethodBearer, "unauthenticated").Inc()
		return nil, apperrors.ErrUnauthorized
	}

	claims, err := g.bearer.ValidateAccessToken(token)
	if err != nil {
		metrics.AuthAdmissions.WithLabelValues(MethodBearer, "unauthenticated").Inc()
		return nil, apperrors.ErrUnauthorized.WithInternal(err)
	}

	metrics.AuthAdmissions.WithLabelValues(MethodBearer, "admitted").Inc()
	return &Identity{
		UserID: claims.Principal(),
		Method: MethodBearer,
	}, nil
}
