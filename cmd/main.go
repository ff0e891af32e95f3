package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/config"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/database"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/handlers"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/routes"
	"github.com/gin-gonic/gin"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", *configFile, err)
	}

	// Initialize database
	if err := database.InitDatabase(cfg.Database.DSN); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// Add middleware
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// Set up services with configuration
	setupServices(cfg)

	// Set up routes
	routes.SetupRoutes(r)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Webhook ingestion endpoint: http://%s/api/v1/webhook/signal", addr)
	log.Printf("API-key ingestion endpoint: http://%s/api/v1/signals", addr)
	log.Printf("Health check: http://%s/health", addr)

	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupServices configures all services with the application configuration
func setupServices(cfg *config.Config) {
	// Create signal handler and set its configuration
	signalHandler := handlers.NewSignalHandler()
	signalHandler.SetConfig(cfg)

	// Store the configured handler globally so routes can access it
	handlers.SetGlobalHandler(signalHandler)
}
