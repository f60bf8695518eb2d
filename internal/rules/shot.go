package rules

import (
	"log"

	"github.com/playcue/backend/internal/physics"
)

// ShotOutcome reports everything one resolved action changed, for the
// sync layer to broadcast and the replay log to digest.
type ShotOutcome struct {
	Shot     physics.ShotCommand       `json:"shot"`
	Events   []physics.SimulationEvent `json:"events"`
	Pocketed []int                     `json:"pocketed"`

	FirstContact int `json:"first_contact"`
	RailBalls    int `json:"rail_balls"`

	Foul       bool   `json:"foul"`
	FoulReason string `json:"foul_reason,omitempty"`
	TurnPasses bool   `json:"turn_passes"`
	BallInHand int    `json:"ball_in_hand"`

	AssignedGroups bool `json:"assigned_groups"`
	Reracked       bool `json:"reracked"`
	PendingChoice  int  `json:"pending_choice"`

	Winner    int    `json:"winner"`
	EndReason string `json:"end_reason,omitempty"`

	Digest uint64 `json:"digest,string"`
}

// ApplyShot validates the command against the current turn, strikes the
// cue ball, runs the table to settlement and applies eight-ball rules to
// what happened.
func (m *Match) ApplyShot(cmd physics.ShotCommand) (*ShotOutcome, error) {
	if err := m.checkTurn(cmd.Player); err != nil {
		return nil, err
	}

	shooter := m.idx(cmd.Player)
	onEightBefore := m.onEight(shooter)
	phaseBefore := m.phase

	cmd.CuePosition = m.world.CueBall().Position
	cmd.Seq = m.shotCount
	if err := m.world.ApplyShot(cmd); err != nil {
		return nil, err
	}

	// Shooting waives any remaining ball-in-hand.
	m.ballInHand = 0
	m.timeouts[shooter] = 0
	m.shotCount++

	events := m.world.Simulate()
	out := m.resolveShot(cmd, events, phaseBefore, onEightBefore)
	return out, nil
}

// resolveShot turns a settled event stream into rule consequences. The
// world has already been mutated by the simulation; this only reads it.
func (m *Match) resolveShot(cmd physics.ShotCommand, events []physics.SimulationEvent, phase Phase, onEightBefore bool) *ShotOutcome {
	out := &ShotOutcome{
		Shot:         cmd,
		Events:       events,
		FirstContact: -1,
		Digest:       physics.DigestEvents(events),
	}

	railBalls := make(map[int]bool)
	for _, e := range events {
		switch e.Type {
		case physics.EventPocketed:
			out.Pocketed = append(out.Pocketed, e.Ball)
		case physics.EventBallCollision:
			if e.Ball == physics.CueBallID && out.FirstContact < 0 {
				out.FirstContact = e.Other
			}
		case physics.EventCushionCollision:
			if e.Ball != physics.CueBallID {
				railBalls[e.Ball] = true
			}
		}
	}
	out.RailBalls = len(railBalls)

	scratch := contains(out.Pocketed, physics.CueBallID)
	eightDown := contains(out.Pocketed, physics.EightBallID)

	switch phase {
	case PhaseBreak:
		m.resolveBreak(out, scratch, eightDown)
	default:
		m.resolvePlay(out, scratch, eightDown, onEightBefore)
	}
	m.tally(m.idx(cmd.Player), out)
	return out
}

// tally updates the shooter's running stats from a resolved shot. Groups
// are read after resolution so an assigning shot credits the new group.
func (m *Match) tally(shooterIdx int, out *ShotOutcome) {
	st := &m.stats[shooterIdx]
	st.ShotsTaken++
	if out.Foul {
		st.Fouls++
	}
	if out.Reracked {
		return
	}
	own := m.groups[shooterIdx]
	for _, id := range out.Pocketed {
		if id == physics.CueBallID {
			continue
		}
		g := groupOf(id)
		if g != GroupNone && own != GroupNone && g != own {
			st.OpponentPocketed++
		} else {
			st.Pocketed++
		}
	}
}

// resolveBreak judges the opening shot. An eight ball falling on the break
// re-racks for the same breaker; a break that neither pockets a ball nor
// drives four object balls to rails hands the opponent the keep-or-rerack
// option; a scratch is an ordinary foul and the table is open.
func (m *Match) resolveBreak(out *ShotOutcome, scratch, eightDown bool) {
	shooter := m.current
	opponent := m.opponent(shooter)

	if eightDown {
		if err := m.rerack(); err != nil {
			log.Printf("[RULES] re-rack after eight on the break failed: %v", err)
		}
		m.phase = PhaseBreak
		m.ballInHand = 0
		out.Reracked = true
		log.Printf("[RULES] eight ball on the break, re-racking for player %d", shooter)
		return
	}

	objectDown := false
	for _, id := range out.Pocketed {
		if id != physics.CueBallID {
			objectDown = true
		}
	}
	if !objectDown && out.RailBalls < 4 {
		out.Foul = true
		out.FoulReason = FoulInsufficientBreak
		out.PendingChoice = opponent
		m.pendingChoice = opponent
		log.Printf("[RULES] insufficient break by player %d, player %d chooses", shooter, opponent)
		return
	}

	m.phase = PhaseOpen
	if scratch {
		out.Foul = true
		out.FoulReason = FoulScratch
		out.TurnPasses = true
		out.BallInHand = opponent
		m.ballInHand = opponent
		m.current = opponent
		return
	}
	if !objectDown {
		out.TurnPasses = true
		m.current = opponent
	}
	// Pocketing on the break keeps the breaker at the table with the
	// table still open.
}

// resolvePlay judges every shot after the break.
func (m *Match) resolvePlay(out *ShotOutcome, scratch, eightDown, onEightBefore bool) {
	shooter := m.current
	shooterIdx := m.idx(shooter)
	opponent := m.opponent(shooter)

	foulReason := ""
	switch {
	case scratch:
		foulReason = FoulScratch
	case out.FirstContact < 0:
		foulReason = FoulNoContact
	default:
		foulReason = m.firstContactFoul(out.FirstContact, shooterIdx, onEightBefore)
	}
	if foulReason == "" && !driveToRail(out.Events) {
		foulReason = FoulNoRail
	}

	if eightDown {
		if !onEightBefore {
			// The eight fell while the shooter still had group balls up
			// (or an open table): loss of game.
			m.endMatch(opponent, EndEarlyEight)
		} else if foulReason != "" {
			m.endMatch(opponent, EndFoulOnEight)
			out.Foul = true
			out.FoulReason = foulReason
		} else {
			m.endMatch(shooter, EndEightBallPocketed)
		}
		out.Winner = m.winner
		out.EndReason = m.endReason
		return
	}

	if foulReason != "" {
		out.Foul = true
		out.FoulReason = foulReason
		out.TurnPasses = true
		out.BallInHand = opponent
		m.ballInHand = opponent
		m.current = opponent
		return
	}

	if m.phase == PhaseOpen && len(out.Pocketed) > 0 {
		first := groupOf(out.Pocketed[0])
		if first != GroupNone {
			m.groups[shooterIdx] = first
			m.groups[1-shooterIdx] = otherGroup(first)
			m.phase = PhaseAssigned
			out.AssignedGroups = true
			log.Printf("[RULES] player %d takes %s", shooter, first)
		}
	}

	if m.continues(shooterIdx, out.Pocketed) {
		return
	}
	out.TurnPasses = true
	m.current = opponent
}

// firstContactFoul checks contact legality for the shooter's situation.
func (m *Match) firstContactFoul(first, shooterIdx int, onEightBefore bool) string {
	if m.phase == PhaseOpen {
		if first == physics.EightBallID {
			return FoulEightBallFirst
		}
		return ""
	}
	if onEightBefore {
		if first != physics.EightBallID {
			return FoulWrongFirstContact
		}
		return ""
	}
	switch groupOf(first) {
	case m.groups[shooterIdx]:
		return ""
	case GroupNone:
		return FoulEightBallFirst
	default:
		return FoulWrongFirstContact
	}
}

// continues reports whether a legal shot kept the shooter at the table:
// any pocketed ball from their own group does, and on an open table any
// object ball does.
func (m *Match) continues(shooterIdx int, pocketed []int) bool {
	if len(pocketed) == 0 {
		return false
	}
	own := m.groups[shooterIdx]
	for _, id := range pocketed {
		g := groupOf(id)
		if g == GroupNone {
			continue
		}
		if own == GroupNone || g == own {
			return true
		}
	}
	return false
}

// driveToRail reports whether any ball reached a cushion after the first
// contact, or dropped. A legal shot that pockets nothing must still drive
// some ball to a rail; cushion hits before the cue reaches its object ball
// do not count.
func driveToRail(events []physics.SimulationEvent) bool {
	contacted := false
	for _, e := range events {
		switch e.Type {
		case physics.EventBallCollision:
			contacted = true
		case physics.EventCushionCollision:
			if contacted {
				return true
			}
		case physics.EventPocketed:
			return true
		}
	}
	return false
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
