package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/trackgate/internal/handlers"
)

func registerVehicleRoutes(api *gin.RouterGroup, admit gin.HandlerFunc, handler *handlers.VehicleHandler) {
	vehicles := api.Group("/vehicles")
	vehicles.Use(admit)
	{
		vehicles.GET("/:uid/positions", handler.Positions)
	}
}
