package match

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/playcue/backend/internal/config"
	"github.com/playcue/backend/internal/physics"
	"github.com/playcue/backend/internal/presets"
	"github.com/playcue/backend/internal/replay"
	"github.com/playcue/backend/internal/rules"
)

// Broadcaster delivers session messages to connected players. The ws hub
// implements it; tests plug in a recorder.
type Broadcaster interface {
	SendToPlayer(playerID int, message interface{})
	BroadcastToMatch(token string, message interface{})
}

// MatchManager tracks every live session and owns their persistence.
type MatchManager struct {
	sessions      map[string]*Session // keyed by match token
	playerToMatch map[int]string      // player id -> match token
	db            *sqlx.DB
	rdb           *redis.Client
	config        *config.Config
	presets       *presets.Store
	broadcaster   Broadcaster
	mu            sync.RWMutex
}

// Manager is the global match manager instance
var Manager *MatchManager

// InitializeManager initializes the global match manager and starts its
// background sweeper.
func InitializeManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config, store *presets.Store) {
	Manager = NewMatchManager(db, rdb, cfg, store)
	go Manager.StartExpirySweeper()
}

// NewMatchManager creates a match manager.
func NewMatchManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config, store *presets.Store) *MatchManager {
	return &MatchManager{
		sessions:      make(map[string]*Session),
		playerToMatch: make(map[int]string),
		db:            db,
		rdb:           rdb,
		config:        cfg,
		presets:       store,
	}
}

// SetBroadcaster wires the transport used for session messages.
func (mm *MatchManager) SetBroadcaster(b Broadcaster) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.broadcaster = b
}

// GetConfig returns the application config.
func (mm *MatchManager) GetConfig() *config.Config { return mm.config }

// generateToken generates a secure random token
func generateToken(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// resolveConfig picks the physics configuration a new match runs under:
// an explicit custom config wins, otherwise the named preset, otherwise
// the default preset.
func (mm *MatchManager) resolveConfig(presetName string, custom *physics.PhysicsConfig) (physics.PhysicsConfig, string, error) {
	if custom != nil {
		cfg := *custom
		if err := cfg.Validate(); err != nil {
			return physics.PhysicsConfig{}, "", err
		}
		return cfg, "custom", nil
	}

	if presetName == "" {
		presetName = presets.DefaultName
		if mm.config != nil && mm.config.DefaultPreset != "" {
			presetName = mm.config.DefaultPreset
		}
	}
	if mm.presets == nil {
		return physics.DefaultConfig(), presetName, nil
	}
	cfg, err := mm.presets.Get(presetName)
	if err != nil {
		return physics.PhysicsConfig{}, "", err
	}
	return cfg, presetName, nil
}

// CreateMatch opens a new session with the creator in seat one. The match
// stays waiting until an opponent joins and both players connect. A nil
// rack means the standard triangle; an explicit one (edited-table practice)
// is validated against the resolved config before the match exists.
func (mm *MatchManager) CreateMatch(playerID int, displayName, presetName string, custom *physics.PhysicsConfig, rack []physics.BallPlacement) (*Session, error) {
	cfg, preset, err := mm.resolveConfig(presetName, custom)
	if err != nil {
		return nil, err
	}
	if rack != nil {
		if _, err := physics.NewWorld(cfg, rack); err != nil {
			return nil, err
		}
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	if _, exists := mm.playerToMatch[playerID]; exists {
		return nil, ErrAlreadyInMatch
	}

	token := uuid.NewString()
	now := time.Now()
	expiry := now.Add(time.Duration(mm.expiryMinutes()) * time.Minute)

	s := &Session{
		Token:        token,
		Preset:       preset,
		CreatedAt:    now,
		ExpiresAt:    expiry,
		LastActivity: now,
		cfg:          cfg,
		rack:         rack,
		digests:      make(map[int]uint64),
		commands:     make(chan command, 16),
		done:         make(chan struct{}),
		mgr:          mm,
	}
	s.seats[0] = &Seat{PlayerID: playerID, DisplayName: displayName, JoinToken: generateToken(16)}

	s.SessionID = mm.insertSessionRow(s, playerID)

	mm.sessions[token] = s
	mm.playerToMatch[playerID] = token
	mm.saveSessionToRedis(s)

	log.Printf("[MATCH] Match created: %s (preset=%s, creator=%d)", token, preset, playerID)
	return s, nil
}

// JoinMatch seats the second player and brings the match machinery up:
// rule engine, replay journal and the session loop. The creator breaks.
func (mm *MatchManager) JoinMatch(token string, playerID int, displayName string) (*Session, error) {
	s, err := mm.GetSession(token)
	if err != nil {
		return nil, err
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	if existing, ok := mm.playerToMatch[playerID]; ok && existing != token {
		return nil, ErrAlreadyInMatch
	}

	s.mu.Lock()
	if s.seats[0] != nil && s.seats[0].PlayerID == playerID {
		s.mu.Unlock()
		return nil, ErrAlreadyInMatch
	}
	if s.seats[1] != nil {
		s.mu.Unlock()
		return nil, ErrMatchFull
	}

	breaker := s.seats[0].PlayerID
	var m *rules.Match
	if s.rack != nil {
		m, err = rules.NewMatchWithRack(s.cfg, s.rack, breaker, playerID)
	} else {
		m, err = rules.NewMatch(s.cfg, breaker, playerID)
	}
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.seats[1] = &Seat{PlayerID: playerID, DisplayName: displayName, JoinToken: generateToken(16)}
	s.match = m
	s.journal = replay.NewLog(token, s.cfg, m.InitialRack(), breaker, playerID)
	s.loopRunning = true
	s.LastActivity = time.Now()
	s.mu.Unlock()

	mm.playerToMatch[playerID] = token
	mm.setSessionPlayer2(s.SessionID, playerID)
	go s.run()
	mm.saveSessionToRedis(s)

	log.Printf("[MATCH] Player %d joined match %s", playerID, token)
	return s, nil
}

// GetSession retrieves a session by its match token, falling back to the
// redis snapshot so a match survives a process restart.
func (mm *MatchManager) GetSession(token string) (*Session, error) {
	mm.mu.RLock()
	s, exists := mm.sessions[token]
	mm.mu.RUnlock()
	if exists {
		return s, nil
	}

	log.Printf("[DEBUG] Match %s not found in memory, checking Redis", token)
	s, err := mm.loadSessionFromRedis(token)
	if err != nil {
		return nil, ErrMatchNotFound
	}

	mm.mu.Lock()
	if cur, exists := mm.sessions[token]; exists {
		mm.mu.Unlock()
		s.Stop()
		return cur, nil
	}
	mm.sessions[token] = s
	for _, seat := range s.seats {
		if seat != nil {
			mm.playerToMatch[seat.PlayerID] = token
		}
	}
	mm.mu.Unlock()

	return s, nil
}

// GetSessionForPlayer retrieves the active session for a player.
func (mm *MatchManager) GetSessionForPlayer(playerID int) (*Session, error) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	token, exists := mm.playerToMatch[playerID]
	if !exists {
		return nil, ErrMatchNotFound
	}
	s, exists := mm.sessions[token]
	if !exists {
		return nil, ErrMatchNotFound
	}
	return s, nil
}

// RemoveSession drops a session from the manager and stops its loop.
func (mm *MatchManager) RemoveSession(token string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.removeSessionLocked(token)
}

func (mm *MatchManager) removeSessionLocked(token string) {
	s, exists := mm.sessions[token]
	if !exists {
		return
	}
	for _, seat := range s.seats {
		if seat != nil {
			delete(mm.playerToMatch, seat.PlayerID)
		}
	}
	delete(mm.sessions, token)
	s.Stop()
}

// ActiveSessionCount returns the number of sessions in memory.
func (mm *MatchManager) ActiveSessionCount() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.sessions)
}

// HandleTurnTimeout applies a turn timeout swept from the deadline set.
// Returns the outcome when the foul was actually charged; a deadline that
// fired after the player acted is rejected by the rule engine.
func (mm *MatchManager) HandleTurnTimeout(token string, playerID int) (*rules.ShotOutcome, error) {
	s, err := mm.GetSession(token)
	if err != nil {
		return nil, err
	}
	return s.HandleTimeout(playerID)
}

// NoteDisconnect records a dropped socket. The match itself keeps running;
// only the player's stats and seat flag change.
func (mm *MatchManager) NoteDisconnect(token string, playerID int) {
	s, err := mm.GetSession(token)
	if err != nil {
		return
	}
	s.SetConnected(playerID, false)
	mm.incrementDisconnect(playerID)
}

// StartExpirySweeper runs a background job that cancels matches nobody
// joined and removes finished sessions once their grace period passes.
func (mm *MatchManager) StartExpirySweeper() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		mm.sweepExpired()
	}
}

func (mm *MatchManager) sweepExpired() {
	now := time.Now()
	grace := time.Duration(mm.expiryMinutes()) * time.Minute

	mm.mu.RLock()
	var cancel, remove []*Session
	for _, s := range mm.sessions {
		switch s.Status() {
		case StatusWaiting:
			if now.After(s.ExpiresAt) {
				cancel = append(cancel, s)
			}
		case StatusCompleted:
			s.mu.RLock()
			done := s.CompletedAt
			s.mu.RUnlock()
			if done != nil && now.Sub(*done) > grace {
				remove = append(remove, s)
			}
		}
	}
	mm.mu.RUnlock()

	for _, s := range cancel {
		log.Printf("[MATCH] Cancelling expired match %s (created %s)", s.Token, s.CreatedAt.Format(time.RFC3339))
		mm.markSessionCancelled(s.SessionID)
		mm.broadcastToMatch(s.Token, map[string]interface{}{
			"type":    "match_cancelled",
			"message": "Match expired before an opponent joined",
		})
		mm.publishEvent(map[string]interface{}{
			"type":        "match_cancelled",
			"match_token": s.Token,
		})
		mm.RemoveSession(s.Token)
	}
	for _, s := range remove {
		log.Printf("[MATCH] Removing finished match %s", s.Token)
		mm.RemoveSession(s.Token)
	}
}

func (mm *MatchManager) expiryMinutes() int {
	if mm.config != nil && mm.config.MatchExpiryMinutes > 0 {
		return mm.config.MatchExpiryMinutes
	}
	return 30
}

func (mm *MatchManager) timeoutSeconds() int {
	if mm.config != nil && mm.config.TurnTimeoutSeconds > 0 {
		return mm.config.TurnTimeoutSeconds
	}
	return 60
}

// broadcastToMatch fans a message out to every socket in the match room.
func (mm *MatchManager) broadcastToMatch(token string, message interface{}) {
	mm.mu.RLock()
	b := mm.broadcaster
	mm.mu.RUnlock()
	if b != nil {
		b.BroadcastToMatch(token, message)
	}
}

// sendToPlayer delivers a message to one player's socket.
func (mm *MatchManager) sendToPlayer(playerID int, message interface{}) {
	mm.mu.RLock()
	b := mm.broadcaster
	mm.mu.RUnlock()
	if b != nil {
		b.SendToPlayer(playerID, message)
	}
}
