package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/trackgate/internal/handlers"
)

func registerAPIKeyRoutes(api *gin.RouterGroup, requireBearer gin.HandlerFunc, handler *handlers.APIKeyHandler) {
	keys := api.Group("/keys")
	keys.Use(requireBearer)
	{
		keys.POST("/create", handler.Create)
		keys.GET("", handler.List)
		keys.DELETE("/:keyId", handler.Revoke)
	}
}
