package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/playcue/backend/internal/config"
	"github.com/playcue/backend/internal/match"
	"github.com/playcue/backend/internal/physics"
	"github.com/playcue/backend/internal/presets"
	"github.com/playcue/backend/internal/replay"
)

// displayNameFor falls back to the stored name when the request omits one.
func displayNameFor(db *sqlx.DB, playerID int, requested string) string {
	if requested != "" {
		return requested
	}
	if db == nil {
		return ""
	}
	var name string
	if err := db.Get(&name, "SELECT display_name FROM players WHERE id = $1", playerID); err != nil {
		log.Printf("[DB] Failed to load display name for player %d: %v", playerID, err)
		return ""
	}
	return name
}

// CreateMatch opens a match for the authenticated player and returns the
// join credentials for the first seat.
func CreateMatch(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, ok := playerIDFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		var req struct {
			DisplayName string                  `json:"display_name"`
			Preset      string                  `json:"preset"`
			Config      *physics.PhysicsConfig  `json:"config"`
			Rack        []physics.BallPlacement `json:"rack"`
		}
		// An empty body means defaults; anything present must parse.
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		s, err := match.Manager.CreateMatch(playerID, displayNameFor(db, playerID, req.DisplayName), req.Preset, req.Config, req.Rack)
		if err != nil {
			var cfgErr *physics.ConfigError
			switch {
			case errors.Is(err, match.ErrAlreadyInMatch):
				c.JSON(http.StatusConflict, gin.H{"error": "player already in a match"})
			case errors.As(err, &cfgErr):
				c.JSON(http.StatusBadRequest, gin.H{"error": cfgErr.Error()})
			case errors.Is(err, physics.ErrBadRack):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, presets.ErrNotFound), errors.Is(err, presets.ErrBadName):
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown preset"})
			default:
				log.Printf("[MATCH] Create failed for player %d: %v", playerID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create match"})
			}
			return
		}

		seat := s.Seats()[0]
		c.JSON(http.StatusCreated, gin.H{
			"match_token": s.Token,
			"join_token":  seat.JoinToken,
			"preset":      s.Preset,
			"status":      string(s.Status()),
			"expires_at":  s.ExpiresAt.Unix(),
		})
	}
}

// JoinMatch seats the authenticated player as the second player.
func JoinMatch(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, ok := playerIDFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		var req struct {
			DisplayName string `json:"display_name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		token := c.Param("token")
		s, err := match.Manager.JoinMatch(token, playerID, displayNameFor(db, playerID, req.DisplayName))
		if err != nil {
			switch {
			case errors.Is(err, match.ErrMatchNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			case errors.Is(err, match.ErrMatchFull):
				c.JSON(http.StatusConflict, gin.H{"error": "match already has two players"})
			case errors.Is(err, match.ErrAlreadyInMatch):
				c.JSON(http.StatusConflict, gin.H{"error": "player already in a match"})
			default:
				log.Printf("[MATCH] Join failed for player %d: %v", playerID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join match"})
			}
			return
		}

		seat := s.Seats()[1]
		c.JSON(http.StatusOK, gin.H{
			"match_token": s.Token,
			"join_token":  seat.JoinToken,
			"preset":      s.Preset,
			"status":      string(s.Status()),
		})
	}
}

// GetMatch returns the current authoritative state of a match.
func GetMatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")

		s, err := match.Manager.GetSession(token)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}

		resp := gin.H{
			"match_token": s.Token,
			"preset":      s.Preset,
			"status":      string(s.Status()),
			"seats":       s.Seats(),
		}
		if snap, err := s.State(); err == nil {
			resp["state"] = snap
		}

		c.JSON(http.StatusOK, resp)
	}
}

// GetMatchReplay serves a match's replay record: from the live session
// while it runs, from the replay directory once it has been swept.
func GetMatchReplay(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")

		if s, err := match.Manager.GetSession(token); err == nil {
			if rec, ok := s.ReplayRecord(); ok {
				c.JSON(http.StatusOK, rec)
				return
			}
		}

		rec, err := replay.Load(replay.FilePath(cfg.ReplaysDir, token))
		if err != nil {
			var corrupt *replay.CorruptError
			if errors.As(err, &corrupt) {
				log.Printf("[REPLAY] Corrupt replay for match %s: %v", token, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "replay is corrupt"})
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"error": "replay not found"})
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}
