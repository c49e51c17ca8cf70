package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/trackgate/internal/services"
	apperrors "github.com/charlesng35/trackgate/pkg/errors"
	"github.com/charlesng35/trackgate/pkg/response"
)

const (
	msgAPIKeyCreated = "API key created successfully. Store this key securely - it cannot be retrieved again."
	msgAPIKeyRevoked = "API key revoked successfully"
)

// APIKeyHandler exposes key management for bearer-authenticated users.
type APIKeyHandler struct {
	svc *services.APIKeyService
}

// NewAPIKeyHandler constructs an API key handler.
func NewAPIKeyHandler(svc *services.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{svc: svc}
}

type createAPIKeyRequest struct {
	Name      string     `json:"name" validate:"required,max=255"`
	RateLimit int        `json:"rateLimit" validate:"omitempty,gte=1,lte=100000"`
	ExpiresAt *time.Time `json:"expiresAt" validate:"omitempty,future"`
}

// POST /api/keys/create
func (h *APIKeyHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req createAPIKeyRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		response.Error(c, apperrors.NewBadRequest("name is required"))
		return
	}

	created, err := h.svc.Create(requestContext(c), services.CreateAPIKeyInput{
		UserID:    userID,
		Name:      req.Name,
		RateLimit: req.RateLimit,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusCreated, created, msgAPIKeyCreated)
}

// GET /api/keys
func (h *APIKeyHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	keys, err := h.svc.List(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, keys, &response.Meta{Count: len(keys)})
}

// DELETE /api/keys/:keyId
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	keyID := strings.TrimSpace(c.Param("keyId"))
	if keyID == "" {
		response.Error(c, apperrors.NewBadRequest("key id is required"))
		return
	}

	if err := h.svc.Revoke(requestContext(c), keyID, userID); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{"id": keyID}, msgAPIKeyRevoked)
}
