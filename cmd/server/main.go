package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/playcue/backend/internal/api"
	"github.com/playcue/backend/internal/config"
	"github.com/playcue/backend/internal/database"
	"github.com/playcue/backend/internal/match"
	"github.com/playcue/backend/internal/migrations"
	"github.com/playcue/backend/internal/presets"
	"github.com/playcue/backend/internal/redis"
	"github.com/playcue/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Load table presets
	store, err := presets.NewStore(cfg.PresetsDir)
	if err != nil {
		log.Fatalf("Failed to load presets: %v", err)
	}

	// Make sure finished matches have somewhere to land
	if err := os.MkdirAll(cfg.ReplaysDir, 0o755); err != nil {
		log.Fatalf("Failed to create replays dir: %v", err)
	}

	// Initialize Match Manager with Redis and config
	match.InitializeManager(db, rdb, cfg, store)
	match.Manager.SetBroadcaster(ws.MatchHub)

	// Wire Redis and start match event subscriber in WS layer
	ws.SetRedisClient(rdb, cfg)
	ws.StartMatchEventSubscriber(context.Background())

	// Start turn deadline worker
	match.StartTurnTimerWorker(context.Background(), rdb, cfg)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Initialize API handlers
	api.SetupRoutes(router, db, rdb, cfg, store)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting PlayCue server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
