package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/playcue/backend/internal/models"
)

// GetPlayerStats reports a player's lifetime match statistics.
func GetPlayerStats(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
			return
		}

		var stats models.PlayerStats
		err = db.Get(&stats, `
			SELECT p.id AS player_id,
			       p.total_matches_played AS matches_played,
			       p.total_matches_won AS matches_won,
			       CASE WHEN p.total_matches_played > 0
			            THEN p.total_matches_won::float / p.total_matches_played
			            ELSE 0 END AS win_rate,
			       p.total_balls_pocketed AS balls_pocketed,
			       COALESCE((SELECT AVG(ms.shot_count)
			                 FROM match_sessions ms
			                 WHERE ms.status = 'completed'
			                   AND (ms.player1_id = p.id OR ms.player2_id = p.id)), 0) AS avg_shots_per_match
			FROM players p
			WHERE p.id = $1`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
				return
			}
			log.Printf("[DB] Failed to load stats for player %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}
