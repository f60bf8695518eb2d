package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playcue/backend/internal/api/handlers"
	"github.com/playcue/backend/internal/config"
	"github.com/playcue/backend/internal/middleware"
	"github.com/playcue/backend/internal/presets"
	"github.com/redis/go-redis/v9"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, db *sqlx.DB, rdb *redis.Client, cfg *config.Config, store *presets.Store) {
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.WebSocketCORSCheck(cfg))

	// CRITICAL: No-cache middleware MUST be first in development
	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			// Aggressive no-cache for development
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] Aggressive no-cache headers enabled for all routes")
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Health check (also available at /api/v1/health)
		v1.GET("/health", handlers.HealthCheck)

		// Guest identity
		v1.POST("/auth/guest", handlers.GuestLogin(db, cfg))

		// Table presets
		pr := v1.Group("/presets")
		{
			pr.GET("", handlers.ListPresets(store))
			pr.GET("/:name", handlers.GetPreset(store))
			pr.POST("", handlers.AuthMiddleware(cfg), handlers.CreatePreset(store))
		}

		// Match endpoints
		matches := v1.Group("/matches")
		{
			matches.POST("", handlers.AuthMiddleware(cfg), handlers.CreateMatch(db, cfg))
			matches.POST("/:token/join", handlers.AuthMiddleware(cfg), handlers.JoinMatch(db, cfg))
			matches.GET("/:token", handlers.GetMatch())
			matches.GET("/:token/replay", handlers.GetMatchReplay(cfg))
			matches.GET("/:token/ws", handlers.HandleMatchWebSocket(db, rdb, cfg))
		}

		// Player endpoints
		players := v1.Group("/players")
		{
			players.GET("/:id/stats", handlers.GetPlayerStats(db))
		}
	}
}
