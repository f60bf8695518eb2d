package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playcue/backend/internal/physics"
	"github.com/playcue/backend/internal/replay"
)

const (
	turnDeadlineKey    = "turn_deadline"
	matchEventsChannel = "match_events"
)

func stateKey(token string) string { return "match:" + token + ":state" }
func replayKey(token string) string { return "match:" + token + ":replay" }

// seatState is the redis shape of a seat. Join tokens are stored here so
// reconnects keep working after a restart; redis is never client-facing.
type seatState struct {
	PlayerID    int    `json:"player_id"`
	DisplayName string `json:"display_name"`
	JoinToken   string `json:"join_token"`
}

// sessionRedisState is the crash-recovery snapshot for one session. Ball
// state is not duplicated here; the replay key is the source of truth and
// regenerates it deterministically.
type sessionRedisState struct {
	Token       string                  `json:"token"`
	SessionID   int                     `json:"session_id"`
	Preset      string                  `json:"preset"`
	Status      SessionStatus           `json:"status"`
	Config      physics.PhysicsConfig   `json:"config"`
	Rack        []physics.BallPlacement `json:"rack,omitempty"`
	Seats       [2]*seatState           `json:"seats"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	ExpiresAt   time.Time               `json:"expiry_time"`
}

// saveSessionToRedis snapshots session metadata and the replay journal.
func (mm *MatchManager) saveSessionToRedis(s *Session) error {
	if mm.rdb == nil {
		return nil // No Redis client, skip
	}

	s.mu.RLock()
	st := sessionRedisState{
		Token:       s.Token,
		SessionID:   s.SessionID,
		Preset:      s.Preset,
		Config:      s.cfg,
		Rack:        s.rack,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		ExpiresAt:   s.ExpiresAt,
	}
	switch {
	case s.CompletedAt != nil:
		st.Status = StatusCompleted
	case s.started:
		st.Status = StatusInProgress
	default:
		st.Status = StatusWaiting
	}
	for i, seat := range s.seats {
		if seat != nil {
			st.Seats[i] = &seatState{PlayerID: seat.PlayerID, DisplayName: seat.DisplayName, JoinToken: seat.JoinToken}
		}
	}
	journal := s.journal
	s.mu.RUnlock()

	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := mm.rdb.SetEx(ctx, stateKey(s.Token), data, time.Hour).Err(); err != nil {
		return err
	}

	if journal != nil {
		raw, err := journal.Record().Encode()
		if err != nil {
			return err
		}
		return mm.rdb.SetEx(ctx, replayKey(s.Token), raw, time.Hour).Err()
	}
	return nil
}

// loadSessionFromRedis restores a session after a process restart. For a
// started match the replay journal is replayed onto a fresh rule engine,
// which reproduces the exact authoritative state.
func (mm *MatchManager) loadSessionFromRedis(token string) (*Session, error) {
	if mm.rdb == nil {
		return nil, errors.New("no redis client")
	}

	ctx := context.Background()
	raw, err := mm.rdb.Get(ctx, stateKey(token)).Result()
	if err == redis.Nil {
		return nil, errors.New("match not found in redis")
	}
	if err != nil {
		return nil, err
	}

	var st sessionRedisState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, err
	}

	s := &Session{
		Token:        token,
		SessionID:    st.SessionID,
		Preset:       st.Preset,
		CreatedAt:    st.CreatedAt,
		StartedAt:    st.StartedAt,
		CompletedAt:  st.CompletedAt,
		ExpiresAt:    st.ExpiresAt,
		LastActivity: time.Now(),
		cfg:          st.Config,
		rack:         st.Rack,
		digests:      make(map[int]uint64),
		commands:     make(chan command, 16),
		done:         make(chan struct{}),
		mgr:          mm,
	}
	for i, seat := range st.Seats {
		if seat != nil {
			s.seats[i] = &Seat{PlayerID: seat.PlayerID, DisplayName: seat.DisplayName, JoinToken: seat.JoinToken}
		}
	}

	if st.Status == StatusWaiting || s.seats[1] == nil {
		log.Printf("[MATCH] Restored waiting match %s from redis", token)
		return s, nil
	}

	rawRec, err := mm.rdb.Get(ctx, replayKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("replay snapshot missing for %s: %w", token, err)
	}
	rec, err := replay.Decode([]byte(rawRec))
	if err != nil {
		return nil, err
	}
	pb, err := replay.NewPlayback(rec)
	if err != nil {
		return nil, err
	}
	if _, err := pb.RunAll(); err != nil {
		return nil, fmt.Errorf("replaying journal for %s: %w", token, err)
	}

	s.match = pb.Match()
	s.journal = replay.Resume(rec)
	s.started = true
	s.loopRunning = true
	for _, mv := range rec.Moves {
		if mv.Type == replay.MoveShot && mv.Shot != nil {
			s.digests[mv.Shot.Seq] = mv.EventDigest
		}
	}

	// Recovery resets the running turn clock; the awaited player gets a
	// full timeout window again.
	if st.Status == StatusInProgress {
		s.armTurnDeadline()
	}
	go s.run()

	log.Printf("[MATCH] Restored match %s from redis (%d moves, status=%s)", token, len(rec.Moves), st.Status)
	return s, nil
}

// publishEvent pushes a payload onto the shared match event channel.
func (mm *MatchManager) publishEvent(payload map[string]interface{}) {
	if mm.rdb == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[MATCH] Failed to marshal event: %v", err)
		return
	}
	if n, err := mm.rdb.Publish(context.Background(), matchEventsChannel, b).Result(); err != nil {
		log.Printf("[MATCH] publish event failed: %v", err)
	} else {
		log.Printf("[MATCH] published %v event: subscribers=%d", payload["type"], n)
	}
}
