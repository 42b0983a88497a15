package api

import (
	"Cirkle/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all the routes for the resource sync service.
func RegisterRoutes(router *gin.Engine, api *API, jwtSecret string, limiter *ratelimiter.Keyed) {
	router.GET("/healthz", api.HealthHandler)

	auth := AuthMiddleware(jwtSecret)
	limit := RateLimitMiddleware(limiter)

	v1 := router.Group("/api/v1")
	v1.Use(auth, limit)
	{
		v1.GET("/groups/:id", api.GetGroupHandler)
		v1.POST("/groups/:id/sync", api.SyncGroupHandler)

		v1.PUT("/google/token", api.SaveTokenHandler)
		v1.POST("/google/token/refresh", api.RefreshTokenHandler)

		v1.POST("/drive/rename", api.RenameHandler)
		v1.POST("/drive/delete", api.DeleteHandler)
	}

	ws := router.Group("/ws")
	ws.Use(auth)
	{
		ws.GET("/subscribe", api.WebSocketHandler)
	}
}
