package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the HTTP router around a Signaling handler.
func NewRouter(sig *Signaling, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(allowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/signaling", sig.Submit)
		api.GET("/signaling", sig.Poll)
	}

	return router
}
