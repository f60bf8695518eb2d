package models

import (
	"database/sql"
	"time"
)

// Player represents a user in the system
type Player struct {
	ID                 int          `db:"id" json:"id"`
	DisplayName        string       `db:"display_name" json:"display_name"`
	IsGuest            bool         `db:"is_guest" json:"is_guest"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	TotalMatchesPlayed int          `db:"total_matches_played" json:"total_matches_played"`
	TotalMatchesWon    int          `db:"total_matches_won" json:"total_matches_won"`
	TotalBallsPocketed int          `db:"total_balls_pocketed" json:"total_balls_pocketed"`
	DisconnectCount    int          `db:"disconnect_count" json:"disconnect_count"`
	LastActive         sql.NullTime `db:"last_active" json:"last_active,omitempty"`
}

// MatchSession represents one eight-ball match between two players
type MatchSession struct {
	ID          int            `db:"id" json:"id"`
	MatchToken  string         `db:"match_token" json:"match_token"`
	Preset      string         `db:"preset" json:"preset"`
	Config      []byte         `db:"config" json:"config,omitempty"`
	Player1ID   int            `db:"player1_id" json:"player1_id"`
	Player2ID   sql.NullInt64  `db:"player2_id" json:"player2_id,omitempty"`
	Status      string         `db:"status" json:"status"`
	WinnerID    sql.NullInt64  `db:"winner_id" json:"winner_id,omitempty"`
	EndReason   sql.NullString `db:"end_reason" json:"end_reason,omitempty"`
	ShotCount   int            `db:"shot_count" json:"shot_count"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	StartedAt   sql.NullTime   `db:"started_at" json:"started_at,omitempty"`
	CompletedAt sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
	ExpiryTime  time.Time      `db:"expiry_time" json:"expiry_time"`
}

// MatchShot represents a single recorded move in a match. Payload holds
// the replay move as JSONB so a match can be rebuilt move by move.
type MatchShot struct {
	ID          int       `db:"id" json:"id"`
	SessionID   int       `db:"session_id" json:"session_id"`
	PlayerID    int       `db:"player_id" json:"player_id"`
	MoveNumber  int       `db:"move_number" json:"move_number"`
	MoveType    string    `db:"move_type" json:"move_type"`
	Payload     []byte    `db:"payload" json:"payload,omitempty"`
	EventDigest string    `db:"event_digest" json:"event_digest,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// PlayerStats is the aggregate view served for a player profile
type PlayerStats struct {
	PlayerID         int     `db:"player_id" json:"player_id"`
	MatchesPlayed    int     `db:"matches_played" json:"matches_played"`
	MatchesWon       int     `db:"matches_won" json:"matches_won"`
	WinRate          float64 `db:"win_rate" json:"win_rate"`
	BallsPocketed    int     `db:"balls_pocketed" json:"balls_pocketed"`
	AvgShotsPerMatch float64 `db:"avg_shots_per_match" json:"avg_shots_per_match"`
}
