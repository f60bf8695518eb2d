package match

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/playcue/backend/internal/physics"
	"github.com/playcue/backend/internal/replay"
	"github.com/playcue/backend/internal/rules"
)

// SessionStatus represents the lifecycle state of a match session
type SessionStatus string

const (
	StatusWaiting    SessionStatus = "waiting"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusCancelled  SessionStatus = "cancelled"
)

// moveStart labels the one broadcast that has no journal entry behind it:
// the moment both players connect and the break clock starts.
const moveStart replay.MoveType = "start"

var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrMatchFull       = errors.New("match already has two players")
	ErrAlreadyInMatch  = errors.New("player already in a match")
	ErrMatchNotStarted = errors.New("match has not started")
	ErrBadJoinToken    = errors.New("invalid join token")
	ErrSessionClosed   = errors.New("session is closed")
)

// Seat holds one player's identity and join credentials for a session.
type Seat struct {
	PlayerID       int        `json:"player_id"`
	DisplayName    string     `json:"display_name"`
	JoinToken      string     `json:"-"`
	Connected      bool       `json:"connected"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

// Session owns one live match: the rule engine, its physics world and the
// replay journal. All mutations flow through a single goroutine so the
// simulation stays strictly ordered; public methods enqueue commands and
// wait for the reply.
type Session struct {
	Token     string
	SessionID int
	Preset    string

	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ExpiresAt    time.Time
	LastActivity time.Time

	cfg     physics.PhysicsConfig
	rack    []physics.BallPlacement // nil means the standard triangle
	match   *rules.Match
	journal *replay.Log

	mu          sync.RWMutex // guards seats, lifecycle fields and flags
	seats       [2]*Seat
	started     bool
	loopRunning bool

	ackMu   sync.Mutex
	digests map[int]uint64 // shot seq -> event digest, for state_ack checks

	commands chan command
	done     chan struct{}
	stopOnce sync.Once

	mgr *MatchManager
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdShot
	cmdPlace
	cmdPass
	cmdChoice
	cmdConcede
	cmdTimeout
	cmdState
)

type command struct {
	kind   cmdKind
	player int
	shot   physics.ShotCommand
	point  physics.Vec2
	rerack bool
	reply  chan cmdResult
}

type cmdResult struct {
	outcome  *rules.ShotOutcome
	snapshot rules.MatchSnapshot
	err      error
}

// Status derives the session lifecycle state.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.CompletedAt != nil {
		return StatusCompleted
	}
	if s.started {
		return StatusInProgress
	}
	return StatusWaiting
}

// Seats returns a copy of both seats; the second is nil until someone joins.
func (s *Session) Seats() [2]*Seat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out [2]*Seat
	for i, seat := range s.seats {
		if seat != nil {
			c := *seat
			out[i] = &c
		}
	}
	return out
}

// SeatOf returns the seat index for a player, or -1.
func (s *Session) SeatOf(playerID int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, seat := range s.seats {
		if seat != nil && seat.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Authorize resolves a per-seat join token to the player occupying it.
func (s *Session) Authorize(joinToken string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, seat := range s.seats {
		if seat != nil && seat.JoinToken == joinToken {
			return seat.PlayerID, nil
		}
	}
	return 0, ErrBadJoinToken
}

// OpponentOf returns the other player's id, or 0 if the seat is empty.
func (s *Session) OpponentOf(playerID int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, seat := range s.seats {
		if seat != nil && seat.PlayerID == playerID {
			if other := s.seats[1-i]; other != nil {
				return other.PlayerID
			}
			return 0
		}
	}
	return 0
}

// SetConnected flips a player's connection flag. Disconnects never pause
// the match; the turn clock keeps running.
func (s *Session) SetConnected(playerID int, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seat := range s.seats {
		if seat != nil && seat.PlayerID == playerID {
			seat.Connected = connected
			if connected {
				seat.DisconnectedAt = nil
			} else {
				now := time.Now()
				seat.DisconnectedAt = &now
			}
		}
	}
	s.LastActivity = time.Now()
}

// BothConnected reports whether both seats have a live socket.
func (s *Session) BothConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seats[0] != nil && s.seats[0].Connected && s.seats[1] != nil && s.seats[1].Connected
}

// HasStarted reports whether the break clock is running.
func (s *Session) HasStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Config returns the physics configuration the match runs under.
func (s *Session) Config() physics.PhysicsConfig { return s.cfg }

// do enqueues a command for the session loop and waits for its reply.
func (s *Session) do(c command) cmdResult {
	s.mu.RLock()
	running := s.loopRunning
	s.mu.RUnlock()
	if !running {
		return cmdResult{err: ErrMatchNotStarted}
	}

	c.reply = make(chan cmdResult, 1)
	select {
	case s.commands <- c:
	case <-s.done:
		return cmdResult{err: ErrSessionClosed}
	}
	select {
	case r := <-c.reply:
		return r
	case <-s.done:
		return cmdResult{err: ErrSessionClosed}
	}
}

// Start arms the match once both players have connected. Idempotent.
func (s *Session) Start() error {
	return s.do(command{kind: cmdStart}).err
}

// SubmitShot plays a shot for the player named in the command. The caller
// must have authenticated the player; the command's Player field is
// trusted here and nowhere earlier.
func (s *Session) SubmitShot(cmd physics.ShotCommand) (*rules.ShotOutcome, error) {
	r := s.do(command{kind: cmdShot, player: cmd.Player, shot: cmd})
	return r.outcome, r.err
}

// PlaceCueBall places the cue ball for a player holding ball-in-hand.
func (s *Session) PlaceCueBall(player int, pos physics.Vec2) error {
	return s.do(command{kind: cmdPlace, player: player, point: pos}).err
}

// PassTurn passes after a ball-in-hand placement.
func (s *Session) PassTurn(player int) error {
	return s.do(command{kind: cmdPass, player: player}).err
}

// ResolveBreakChoice answers a pending keep-or-rerack decision.
func (s *Session) ResolveBreakChoice(player int, rerack bool) error {
	return s.do(command{kind: cmdChoice, player: player, rerack: rerack}).err
}

// Concede forfeits the match for the conceding player.
func (s *Session) Concede(player int) error {
	return s.do(command{kind: cmdConcede, player: player}).err
}

// HandleTimeout charges a turn timeout to the awaited player. Called by
// the deadline worker; a stale deadline is rejected by the rule engine.
func (s *Session) HandleTimeout(player int) (*rules.ShotOutcome, error) {
	r := s.do(command{kind: cmdTimeout, player: player})
	return r.outcome, r.err
}

// State returns the authoritative snapshot of the match.
func (s *Session) State() (rules.MatchSnapshot, error) {
	r := s.do(command{kind: cmdState})
	return r.snapshot, r.err
}

// ReplayRecord returns a copy of the journal so far.
func (s *Session) ReplayRecord() (replay.Record, bool) {
	s.mu.RLock()
	journal := s.journal
	s.mu.RUnlock()
	if journal == nil {
		return replay.Record{}, false
	}
	return journal.Record(), true
}

// VerifyAck compares a client-reported event digest against the server's
// for the given shot. A mismatch means the client simulation diverged and
// it must resync from the authoritative state.
func (s *Session) VerifyAck(seq int, digest uint64) bool {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()

	want, ok := s.digests[seq]
	if !ok {
		return false
	}
	return want == digest
}

// Stop shuts the session loop down. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// run is the session loop. It is the only goroutine that touches the rule
// engine and its world.
func (s *Session) run() {
	log.Printf("[MATCH] Session loop started for %s", s.Token)
	for {
		select {
		case c := <-s.commands:
			s.handle(c)
		case <-s.done:
			log.Printf("[MATCH] Session loop stopped for %s", s.Token)
			return
		}
	}
}

func (s *Session) handle(c command) {
	switch c.kind {
	case cmdStart:
		c.reply <- cmdResult{err: s.handleStart()}

	case cmdState:
		if !s.HasStarted() {
			c.reply <- cmdResult{err: ErrMatchNotStarted}
			return
		}
		c.reply <- cmdResult{snapshot: s.match.Snapshot()}

	case cmdShot:
		out, err := s.handleShot(c.shot)
		c.reply <- cmdResult{outcome: out, err: err}

	case cmdPlace:
		c.reply <- cmdResult{err: s.handlePlace(c.player, c.point)}

	case cmdPass:
		c.reply <- cmdResult{err: s.handlePass(c.player)}

	case cmdChoice:
		c.reply <- cmdResult{err: s.handleChoice(c.player, c.rerack)}

	case cmdConcede:
		c.reply <- cmdResult{err: s.handleConcede(c.player)}

	case cmdTimeout:
		out, err := s.handleTimeout(c.player)
		c.reply <- cmdResult{outcome: out, err: err}
	}
}

func (s *Session) handleStart() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if s.seats[1] == nil {
		s.mu.Unlock()
		return ErrMatchNotStarted
	}
	now := time.Now()
	s.started = true
	s.StartedAt = &now
	s.LastActivity = now
	s.mu.Unlock()

	log.Printf("[MATCH] Match %s started (players %d vs %d)", s.Token, s.match.Players()[0], s.match.Players()[1])
	s.mgr.markSessionStarted(s.SessionID, now)
	s.afterAction(moveStart, nil)
	return nil
}

func (s *Session) requireStarted() error {
	if !s.HasStarted() {
		return ErrMatchNotStarted
	}
	return nil
}

func (s *Session) handleShot(cmd physics.ShotCommand) (*rules.ShotOutcome, error) {
	if err := s.requireStarted(); err != nil {
		return nil, err
	}

	out, err := s.match.ApplyShot(cmd)
	if err != nil {
		return nil, err
	}

	s.ackMu.Lock()
	s.digests[out.Shot.Seq] = out.Digest
	s.ackMu.Unlock()

	s.journal.RecordShot(out.Shot, out.Digest)
	s.afterAction(replay.MoveShot, out)
	return out, nil
}

func (s *Session) handlePlace(player int, pos physics.Vec2) error {
	if err := s.requireStarted(); err != nil {
		return err
	}
	if err := s.match.PlaceCueBall(player, pos); err != nil {
		return err
	}
	s.journal.RecordPlacement(player, pos)
	s.afterAction(replay.MovePlaceBall, nil)
	return nil
}

func (s *Session) handlePass(player int) error {
	if err := s.requireStarted(); err != nil {
		return err
	}
	if err := s.match.PassTurn(player); err != nil {
		return err
	}
	s.journal.RecordPass(player)
	s.afterAction(replay.MovePass, nil)
	return nil
}

func (s *Session) handleChoice(player int, rerack bool) error {
	if err := s.requireStarted(); err != nil {
		return err
	}
	if err := s.match.ResolveBreakChoice(player, rerack); err != nil {
		return err
	}
	s.journal.RecordBreakChoice(player, rerack)
	mt := replay.MoveKeepTable
	if rerack {
		mt = replay.MoveRerack
	}
	s.afterAction(mt, nil)
	return nil
}

func (s *Session) handleConcede(player int) error {
	if err := s.requireStarted(); err != nil {
		return err
	}
	if err := s.match.Concede(player); err != nil {
		return err
	}
	s.journal.RecordConcede(player)
	s.afterAction(replay.MoveConcede, nil)
	return nil
}

func (s *Session) handleTimeout(player int) (*rules.ShotOutcome, error) {
	if err := s.requireStarted(); err != nil {
		return nil, err
	}
	out, err := s.match.ApplyTimeout(player)
	if err != nil {
		return nil, err
	}
	s.journal.RecordTimeout(player)
	s.afterAction(replay.MoveTimeout, out)
	return out, nil
}

// afterAction runs the bookkeeping every successful mutation shares:
// journal persistence, redis snapshot, deadline re-arm and broadcast.
func (s *Session) afterAction(moveType replay.MoveType, out *rules.ShotOutcome) {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()

	if mv, ok := s.journal.Last(); ok && moveType != moveStart {
		s.mgr.recordMove(s.SessionID, mv)
	}

	s.mgr.saveSessionToRedis(s)
	s.armTurnDeadline()
	s.broadcastState(moveType, out)

	if s.match.Phase() == rules.PhaseEnded {
		s.finish()
	}
}

// broadcastState pushes the authoritative state to both players. The
// journaled move rides along so a mirroring client can advance its local
// simulation without guessing what happened.
func (s *Session) broadcastState(moveType replay.MoveType, out *rules.ShotOutcome) {
	snap := s.match.Snapshot()
	msg := map[string]interface{}{
		"type":        "state_update",
		"move":        string(moveType),
		"seq":         s.journal.MoveCount() - 1,
		"match_state": snap,
	}
	if mv, ok := s.journal.Last(); ok && moveType != moveStart {
		msg["record"] = mv
	}
	if out != nil {
		msg["outcome"] = out
	}
	s.mgr.broadcastToMatch(s.Token, msg)
}

// finish persists the result once and notifies both players. The loop
// keeps serving state reads until the expiry sweeper removes the session.
func (s *Session) finish() {
	s.mu.Lock()
	if s.CompletedAt != nil {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	s.CompletedAt = &now
	s.mu.Unlock()

	winner := s.match.Winner()
	reason := s.match.EndReason()
	log.Printf("[MATCH] Match %s ended: winner=%d reason=%s shots=%d", s.Token, winner, reason, s.match.ShotCount())

	s.mgr.saveResult(s)
	s.saveReplayFile()
	s.mgr.saveSessionToRedis(s)
	s.clearTurnDeadline()

	s.mgr.broadcastToMatch(s.Token, map[string]interface{}{
		"type":   "match_ended",
		"winner": winner,
		"reason": reason,
	})
	s.mgr.publishEvent(map[string]interface{}{
		"type":        "match_ended",
		"match_token": s.Token,
		"winner":      winner,
		"reason":      reason,
	})
}

// saveReplayFile writes the finished journal next to the other replays.
func (s *Session) saveReplayFile() {
	if s.mgr == nil || s.mgr.config == nil || s.mgr.config.ReplaysDir == "" {
		return
	}
	rec := s.journal.Record()
	path := replay.FilePath(s.mgr.config.ReplaysDir, s.Token)
	if err := rec.Save(path); err != nil {
		log.Printf("[REPLAY] Failed to save replay for %s: %v", s.Token, err)
		return
	}
	log.Printf("[REPLAY] Saved replay for %s (%d moves)", s.Token, len(rec.Moves))
}
