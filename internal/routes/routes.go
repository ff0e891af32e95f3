package routes

import (
	"github.com/chronodat-admin/signal-streamer-sub001/internal/handlers"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(r *gin.Engine) {
	// Get the configured handler
	signalHandler := handlers.GetGlobalHandler()
	if signalHandler == nil {
		// Fallback to creating a new handler if global handler is not set
		signalHandler = handlers.NewSignalHandler()
	}

	// API routes
	api := r.Group("/api/v1")
	{
		// Ingestion endpoints
		api.POST("/webhook/signal", signalHandler.HandleWebhookSignal)
		api.POST("/signals", signalHandler.HandleAPISignal)

		// Signal read endpoints
		signals := api.Group("/signals")
		{
			signals.GET("/:id", signalHandler.GetSignal)
			signals.GET("/:id/deliveries", signalHandler.GetSignalDeliveries)
		}

		// Strategy read endpoints
		strategies := api.Group("/strategies")
		{
			strategies.GET("/:id/signals", signalHandler.GetStrategySignals)
		}
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "signal-streamer",
		})
	})

	// Root endpoint
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Signal Streamer",
			"version": "1.0.0",
			"endpoints": gin.H{
				"webhook": "/api/v1/webhook/signal",
				"signals": "/api/v1/signals",
				"health":  "/health",
			},
		})
	})
}
