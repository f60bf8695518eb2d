package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jmoiron/sqlx"

	"github.com/playcue/backend/internal/config"
	"github.com/playcue/backend/internal/models"
)

// GuestLogin creates a guest player and hands back a signed session token.
// Guests are full players; a display name is all it takes to get on a
// table.
func GuestLogin(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DisplayName string `json:"display_name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_name required"})
			return
		}

		name := strings.TrimSpace(req.DisplayName)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_name required"})
			return
		}
		if len(name) > 64 {
			name = name[:64]
		}

		var player models.Player
		err := db.Get(&player,
			`INSERT INTO players (display_name, is_guest) VALUES ($1, TRUE)
			 RETURNING id, display_name, is_guest, created_at`, name)
		if err != nil {
			log.Printf("[DB] Failed to create guest player: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		exp := time.Now().Add(time.Duration(cfg.SessionTimeoutMin) * time.Minute)
		claims := jwt.MapClaims{"player_id": player.ID, "exp": exp.Unix()}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(cfg.JWTSecret))
		if err != nil {
			log.Printf("Failed to sign token: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		log.Printf("[AUTH] Guest player %d (%s) created", player.ID, player.DisplayName)

		c.JSON(http.StatusOK, gin.H{
			"token":        signed,
			"player_id":    player.ID,
			"display_name": player.DisplayName,
			"expires_at":   exp.Unix(),
		})
	}
}

// AuthMiddleware validates a bearer JWT and sets player_id in context
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")

		parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !parsed.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		playerIDf, ok := claims["player_id"].(float64)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("player_id", int(playerIDf))
		c.Next()
	}
}

// playerIDFrom reads the authenticated player set by AuthMiddleware.
func playerIDFrom(c *gin.Context) (int, bool) {
	v, ok := c.Get("player_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}
