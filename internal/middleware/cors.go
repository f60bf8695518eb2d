package middleware

import (
	"log"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/playcue/backend/internal/config"
)

// productionOrigins is the browser origin allowlist outside development.
// FrontendURL extends it per deployment.
func productionOrigins(cfg *config.Config) []string {
	origins := []string{
		"https://playcue.io",
		"https://demo.playcue.io",
	}
	if cfg.FrontendURL != "" {
		origins = append(origins, cfg.FrontendURL)
	}
	return origins
}

// isLocalOrigin matches any localhost port, since Vite moves off 5173
// when the port is taken.
func isLocalOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost:") ||
		strings.HasPrefix(origin, "http://127.0.0.1:")
}

// CORSMiddleware configures gin-contrib/cors for the environment.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	log.Printf("[CORS] Environment: %s, FrontendURL: %s", cfg.Environment, cfg.FrontendURL)

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "Cache-Control", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if cfg.Environment == "development" {
		corsConfig.AllowOriginFunc = isLocalOrigin
	} else {
		corsConfig.AllowOrigins = productionOrigins(cfg)
		log.Printf("[CORS] Production allowed origins: %v", corsConfig.AllowOrigins)
	}

	return cors.New(corsConfig)
}

// WebSocketCORSCheck vets the Origin header on upgrade requests. Only
// browsers send Origin; native clients (the Go match client, bots) are
// let through since an origin check only defends against cross-site
// browser requests.
func WebSocketCORSCheck(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isUpgradeRequest(c) {
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		if !originAllowed(cfg, origin) {
			c.JSON(403, gin.H{"error": "WebSocket origin not allowed"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func isUpgradeRequest(c *gin.Context) bool {
	return strings.ToLower(c.GetHeader("Connection")) == "upgrade" &&
		strings.ToLower(c.GetHeader("Upgrade")) == "websocket"
}

func originAllowed(cfg *config.Config, origin string) bool {
	if cfg.Environment == "development" {
		return isLocalOrigin(origin)
	}
	for _, allowed := range productionOrigins(cfg) {
		if origin == allowed {
			return true
		}
	}
	return false
}
