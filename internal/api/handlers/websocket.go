package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playcue/backend/internal/config"
	"github.com/playcue/backend/internal/ws"
	"github.com/redis/go-redis/v9"
)

// HandleMatchWebSocket handles real-time match communication
func HandleMatchWebSocket(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return ws.HandleWebSocket
}
