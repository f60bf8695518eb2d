package rules

import (
	"fmt"
	"log"

	"github.com/playcue/backend/internal/physics"
)

// Match is the authoritative rule state for one eight-ball game. It owns
// the physics world outright; everything that touches the table goes
// through the match so rule bookkeeping can never drift from the balls.
// Not safe for concurrent use; the session loop that owns it serializes
// access.
type Match struct {
	world       *physics.World
	cfg         physics.PhysicsConfig
	initialRack []physics.BallPlacement

	players  [2]int
	groups   [2]Group
	timeouts [2]int
	stats    [2]PlayerStats

	phase         Phase
	current       int
	ballInHand    int
	pendingChoice int
	winner        int
	endReason     string
	shotCount     int
}

// NewMatch racks a fresh table with the first player breaking. Player ids
// just need to be distinct and nonzero; the transport layer picks them.
func NewMatch(cfg physics.PhysicsConfig, breaker, opponent int) (*Match, error) {
	return NewMatchWithRack(cfg, physics.StandardRack(cfg), breaker, opponent)
}

// NewMatchWithRack starts from an explicit layout, which replays and
// edited tables use. Re-racks during the match restore this layout.
func NewMatchWithRack(cfg physics.PhysicsConfig, rack []physics.BallPlacement, breaker, opponent int) (*Match, error) {
	if breaker == 0 || opponent == 0 || breaker == opponent {
		return nil, fmt.Errorf("players must be distinct and nonzero, got %d and %d", breaker, opponent)
	}
	world, err := physics.NewWorld(cfg, rack)
	if err != nil {
		return nil, err
	}
	initial := make([]physics.BallPlacement, len(rack))
	copy(initial, rack)
	return &Match{
		world:       world,
		cfg:         cfg,
		initialRack: initial,
		players:     [2]int{breaker, opponent},
		phase:       PhaseBreak,
		current:     breaker,
	}, nil
}

func (m *Match) World() *physics.World { return m.world }
func (m *Match) Config() physics.PhysicsConfig { return m.cfg }
func (m *Match) InitialRack() []physics.BallPlacement { return m.initialRack }
func (m *Match) Players() [2]int { return m.players }
func (m *Match) CurrentPlayer() int { return m.current }
func (m *Match) Winner() int { return m.winner }
func (m *Match) EndReason() string { return m.endReason }
func (m *Match) BallInHand() int { return m.ballInHand }
func (m *Match) PendingChoice() int { return m.pendingChoice }
func (m *Match) ShotCount() int { return m.shotCount }

// Phase reports eight_ball once the current shooter has cleared their
// group, since that is the state their next shot is judged under.
func (m *Match) Phase() Phase {
	if m.phase == PhaseAssigned && m.onEight(m.idx(m.current)) {
		return PhaseEightBall
	}
	return m.phase
}

func (m *Match) GroupOf(player int) Group {
	i := m.idx(player)
	if i < 0 {
		return GroupNone
	}
	return m.groups[i]
}

func (m *Match) idx(player int) int {
	for i, p := range m.players {
		if p == player {
			return i
		}
	}
	return -1
}

func (m *Match) opponent(player int) int {
	if m.players[0] == player {
		return m.players[1]
	}
	return m.players[0]
}

// remaining counts a group's balls still on the table.
func (m *Match) remaining(g Group) int {
	n := 0
	for _, b := range m.world.Balls() {
		if b.InPlay && groupOf(b.ID) == g {
			n++
		}
	}
	return n
}

// onEight reports whether a player's target is now the eight ball.
func (m *Match) onEight(i int) bool {
	return i >= 0 && m.groups[i] != GroupNone && m.remaining(m.groups[i]) == 0
}

// checkTurn runs the gate every player action shares.
func (m *Match) checkTurn(player int) error {
	if m.phase == PhaseEnded {
		return ErrMatchEnded
	}
	if m.idx(player) < 0 {
		return ErrUnknownPlayer
	}
	if m.pendingChoice != 0 {
		return ErrChoicePending
	}
	if player != m.current {
		return ErrNotYourTurn
	}
	return nil
}

// PlaceCueBall moves the cue ball for a player holding ball-in-hand. The
// placement must land on open cloth; holding the ball survives until the
// player shoots or passes, so they may reposition repeatedly.
func (m *Match) PlaceCueBall(player int, pos physics.Vec2) error {
	if err := m.checkTurn(player); err != nil {
		return err
	}
	if m.ballInHand != player {
		return ErrNoBallInHand
	}
	if err := m.world.PlaceBall(physics.CueBallID, pos); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlacement, err)
	}
	m.timeouts[m.idx(player)] = 0
	return nil
}

// PassTurn lets a ball-in-hand holder decline the shot and hand the table
// over as it lies. Only that holder may pass.
func (m *Match) PassTurn(player int) error {
	if err := m.checkTurn(player); err != nil {
		return err
	}
	if m.ballInHand != player {
		return ErrNoBallInHand
	}
	if !m.world.CueBall().InPlay {
		return fmt.Errorf("%w: cue ball must be placed first", ErrInvalidPlacement)
	}
	m.ballInHand = 0
	m.timeouts[m.idx(player)] = 0
	m.current = m.opponent(player)
	return nil
}

// ResolveBreakChoice settles the option an insufficient break hands the
// non-breaking player: accept the table with ball-in-hand, or demand a
// re-rack and break themselves.
func (m *Match) ResolveBreakChoice(player int, rerack bool) error {
	if m.phase == PhaseEnded {
		return ErrMatchEnded
	}
	if m.idx(player) < 0 {
		return ErrUnknownPlayer
	}
	if m.pendingChoice != player {
		return ErrNoPendingChoice
	}
	m.pendingChoice = 0
	m.timeouts[m.idx(player)] = 0
	m.current = player

	if rerack {
		if err := m.rerack(); err != nil {
			return err
		}
		m.phase = PhaseBreak
		m.ballInHand = 0
		log.Printf("[RULES] player %d chose a re-rack and breaks", player)
		return nil
	}
	m.phase = PhaseOpen
	m.ballInHand = player
	if !m.world.CueBall().InPlay {
		log.Printf("[RULES] player %d keeps the table, cue ball in hand off the table", player)
	}
	return nil
}

// AwaitedPlayer is whoever the match is blocked on: the chooser while a
// break choice is pending, otherwise the shooter. Turn deadlines track
// this player.
func (m *Match) AwaitedPlayer() int {
	if m.pendingChoice != 0 {
		return m.pendingChoice
	}
	return m.current
}

// ApplyTimeout charges the awaited player with an expired turn: a foul
// that hands the opponent ball-in-hand, and the third in a row forfeits.
func (m *Match) ApplyTimeout(player int) (*ShotOutcome, error) {
	if m.phase == PhaseEnded {
		return nil, ErrMatchEnded
	}
	i := m.idx(player)
	if i < 0 {
		return nil, ErrUnknownPlayer
	}
	if player != m.AwaitedPlayer() {
		return nil, ErrNotYourTurn
	}

	m.timeouts[i]++
	m.stats[i].Fouls++
	out := &ShotOutcome{
		Foul:       true,
		FoulReason: FoulTimeout,
		TurnPasses: true,
	}
	if m.timeouts[i] >= MaxConsecutiveTimeouts {
		m.endMatch(m.opponent(player), EndTimeoutForfeit)
		out.Winner = m.winner
		out.EndReason = m.endReason
		return out, nil
	}

	// An expired break choice falls back to keeping the table.
	if m.pendingChoice == player {
		m.pendingChoice = 0
		m.phase = PhaseOpen
	}
	m.current = m.opponent(player)
	m.ballInHand = m.current
	out.BallInHand = m.current
	log.Printf("[RULES] player %d timed out (%d in a row), ball in hand to %d", player, m.timeouts[i], m.current)
	return out, nil
}

// Concede ends the match in the opponent's favour.
func (m *Match) Concede(player int) error {
	if m.phase == PhaseEnded {
		return ErrMatchEnded
	}
	if m.idx(player) < 0 {
		return ErrUnknownPlayer
	}
	m.endMatch(m.opponent(player), EndConcede)
	return nil
}

func (m *Match) endMatch(winner int, reason string) {
	m.phase = PhaseEnded
	m.winner = winner
	m.endReason = reason
	m.ballInHand = 0
	m.pendingChoice = 0
	log.Printf("[RULES] match ended: player %d wins (%s)", winner, reason)
}

// rerack rebuilds the table from the match's initial layout, so a
// practice rack survives its own re-rack.
func (m *Match) rerack() error {
	world, err := physics.NewWorld(m.cfg, m.initialRack)
	if err != nil {
		return err
	}
	m.world = world
	return nil
}

// PlayerStats is the running tally a match keeps per player, persisted
// when the match ends.
type PlayerStats struct {
	ShotsTaken       int `json:"shots_taken"`
	Pocketed         int `json:"pocketed"`
	OpponentPocketed int `json:"opponent_pocketed"`
	Fouls            int `json:"fouls"`
}

// PlayerState is one player's slice of a snapshot.
type PlayerState struct {
	ID       int         `json:"id"`
	Group    Group       `json:"group"`
	OnEight  bool        `json:"on_eight"`
	Timeouts int         `json:"timeouts"`
	Stats    PlayerStats `json:"stats"`
}

// MatchSnapshot is the serializable view the sync layer broadcasts after
// every action.
type MatchSnapshot struct {
	Phase         Phase          `json:"phase"`
	Balls         []physics.Ball `json:"balls"`
	Players       [2]PlayerState `json:"players"`
	Current       int            `json:"current"`
	BallInHand    int            `json:"ball_in_hand"`
	PendingChoice int            `json:"pending_choice"`
	Winner        int            `json:"winner"`
	EndReason     string         `json:"end_reason"`
	ShotCount     int            `json:"shot_count"`
}

func (m *Match) Snapshot() MatchSnapshot {
	snap := MatchSnapshot{
		Phase:         m.Phase(),
		Balls:         m.world.Balls(),
		Current:       m.current,
		BallInHand:    m.ballInHand,
		PendingChoice: m.pendingChoice,
		Winner:        m.winner,
		EndReason:     m.endReason,
		ShotCount:     m.shotCount,
	}
	for i, p := range m.players {
		snap.Players[i] = PlayerState{
			ID:       p,
			Group:    m.groups[i],
			OnEight:  m.onEight(i),
			Timeouts: m.timeouts[i],
			Stats:    m.stats[i],
		}
	}
	return snap
}
