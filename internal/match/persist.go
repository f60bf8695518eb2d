package match

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/playcue/backend/internal/replay"
	"github.com/playcue/backend/internal/rules"
)

// insertSessionRow creates the match_sessions row and returns its id.
func (mm *MatchManager) insertSessionRow(s *Session, playerID int) int {
	if mm.db == nil {
		return 0
	}

	cfgJSON, err := json.Marshal(s.cfg)
	if err != nil {
		log.Printf("[DB] Failed to marshal config for match %s: %v", s.Token, err)
		return 0
	}

	var id int
	err = mm.db.QueryRowx(
		`INSERT INTO match_sessions (match_token, preset, config, player1_id, status, created_at, expiry_time) VALUES ($1, $2, $3::jsonb, $4, $5, NOW(), $6) RETURNING id`,
		s.Token, s.Preset, string(cfgJSON), playerID, string(StatusWaiting), s.ExpiresAt,
	).Scan(&id)
	if err != nil {
		log.Printf("[DB] Failed to create match_session: %v", err)
		return 0
	}

	mm.touchPlayer(playerID)
	return id
}

// setSessionPlayer2 fills the second seat on the session row.
func (mm *MatchManager) setSessionPlayer2(sessionID, playerID int) {
	if mm.db == nil || sessionID == 0 {
		return
	}
	if _, err := mm.db.Exec(`UPDATE match_sessions SET player2_id = $1 WHERE id = $2`, playerID, sessionID); err != nil {
		log.Printf("[DB] Failed to set player2 for session %d: %v", sessionID, err)
	}
	mm.touchPlayer(playerID)
}

// markSessionStarted updates the session row to in_progress and sets
// started_at if it wasn't set.
func (mm *MatchManager) markSessionStarted(sessionID int, startedAt time.Time) {
	if mm == nil || mm.db == nil || sessionID == 0 {
		return
	}
	if _, err := mm.db.Exec(
		`UPDATE match_sessions SET status = $1, started_at = COALESCE(started_at, $2) WHERE id = $3`,
		string(StatusInProgress), startedAt, sessionID,
	); err != nil {
		log.Printf("[DB] Failed to mark session %d started: %v", sessionID, err)
	}
}

// markSessionCancelled closes out a session nobody joined.
func (mm *MatchManager) markSessionCancelled(sessionID int) {
	if mm.db == nil || sessionID == 0 {
		return
	}
	if _, err := mm.db.Exec(
		`UPDATE match_sessions SET status = $1, completed_at = NOW() WHERE id = $2`,
		string(StatusCancelled), sessionID,
	); err != nil {
		log.Printf("[DB] Failed to mark session %d cancelled: %v", sessionID, err)
	}
}

// recordMove persists one replay move as a match_shots row with the move
// payload as JSONB, so a match can be rebuilt move by move.
func (mm *MatchManager) recordMove(sessionID int, mv replay.Move) {
	if mm == nil || mm.db == nil || sessionID == 0 {
		return
	}

	payload, err := json.Marshal(mv)
	if err != nil {
		log.Printf("[DB] Failed to marshal move %d for session %d: %v", mv.Seq, sessionID, err)
		return
	}

	_, err = mm.db.Exec(
		`INSERT INTO match_shots (session_id, player_id, move_number, move_type, payload, event_digest, created_at) VALUES ($1, $2, $3, $4, $5::jsonb, $6, NOW())`,
		sessionID, mv.Player, mv.Seq, string(mv.Type), string(payload), strconv.FormatUint(mv.EventDigest, 10),
	)
	if err != nil {
		log.Printf("[DB] Failed to record move %d for session %d: %v", mv.Seq, sessionID, err)
	}
}

// saveResult writes the final session row and updates both players'
// aggregate stats. Called once from the session loop when a match ends.
func (mm *MatchManager) saveResult(s *Session) {
	if mm == nil || mm.db == nil || s.SessionID == 0 {
		return
	}

	winner := s.match.Winner()
	reason := s.match.EndReason()
	log.Printf("[DB] Saving result for session=%d winner=%d reason=%s", s.SessionID, winner, reason)

	var winnerParam interface{}
	if winner > 0 {
		winnerParam = winner
	}
	s.mu.RLock()
	var startedParam interface{}
	if s.StartedAt != nil {
		startedParam = *s.StartedAt
	}
	s.mu.RUnlock()

	if _, err := mm.db.Exec(
		`UPDATE match_sessions SET status = $1, winner_id = $2, end_reason = $3, shot_count = $4, started_at = COALESCE(started_at, $5), completed_at = NOW() WHERE id = $6`,
		string(StatusCompleted), winnerParam, reason, s.match.ShotCount(), startedParam, s.SessionID,
	); err != nil {
		log.Printf("[DB] Failed to update match_sessions for session %d: %v", s.SessionID, err)
	}

	snap := s.match.Snapshot()
	for _, seat := range s.Seats() {
		if seat == nil {
			continue
		}
		var st rules.PlayerStats
		for _, ps := range snap.Players {
			if ps.ID == seat.PlayerID {
				st = ps.Stats
			}
		}
		if _, err := mm.db.Exec(
			`UPDATE players SET total_matches_played = total_matches_played + 1, total_balls_pocketed = total_balls_pocketed + $1, last_active = NOW() WHERE id = $2`,
			st.Pocketed+st.OpponentPocketed, seat.PlayerID,
		); err != nil {
			log.Printf("[DB] Failed to update stats for player %d: %v", seat.PlayerID, err)
		}
	}
	if winner > 0 {
		if _, err := mm.db.Exec(`UPDATE players SET total_matches_won = total_matches_won + 1 WHERE id = $1`, winner); err != nil {
			log.Printf("[DB] Failed to update winner stats for session %d: %v", s.SessionID, err)
		}
	}
}

// incrementDisconnect bumps a player's disconnect counter.
func (mm *MatchManager) incrementDisconnect(playerID int) {
	if mm.db == nil {
		return
	}
	if _, err := mm.db.Exec(`UPDATE players SET disconnect_count = disconnect_count + 1 WHERE id = $1`, playerID); err != nil {
		log.Printf("[DB] Failed to increment disconnect count for player %d: %v", playerID, err)
	}
}

// touchPlayer refreshes a player's last_active timestamp.
func (mm *MatchManager) touchPlayer(playerID int) {
	if mm.db == nil {
		return
	}
	if _, err := mm.db.Exec(`UPDATE players SET last_active = NOW() WHERE id = $1`, playerID); err != nil {
		log.Printf("[DB] Failed to touch player %d: %v", playerID, err)
	}
}
