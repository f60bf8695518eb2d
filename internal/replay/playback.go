package replay

import (
	"log"

	"github.com/playcue/backend/internal/rules"
)

// Playback re-runs a validated record through a fresh rule engine. Because
// the simulation is deterministic, every shot must reproduce the digest
// captured at record time; any mismatch stops playback as corruption.
type Playback struct {
	rec   Record
	match *rules.Match
	next  int
}

// StepResult is what one replayed move produced.
type StepResult struct {
	Move     Move
	Outcome  *rules.ShotOutcome
	Snapshot rules.MatchSnapshot
}

// NewPlayback validates the record and racks the recorded layout.
func NewPlayback(rec Record) (*Playback, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	m, err := rules.NewMatchWithRack(rec.Config, rec.Rack, rec.Players[0], rec.Players[1])
	if err != nil {
		return nil, corrupt(-1, "cannot rack recorded layout: %v", err)
	}
	return &Playback{rec: rec, match: m}, nil
}

func (p *Playback) Done() bool { return p.next >= len(p.rec.Moves) }
func (p *Playback) Match() *rules.Match { return p.match }

// Next applies the next recorded move and verifies it against the record.
func (p *Playback) Next() (*StepResult, error) {
	if p.Done() {
		return nil, corrupt(p.next, "no moves left")
	}
	mv := p.rec.Moves[p.next]
	p.next++

	res := &StepResult{Move: mv}
	var err error
	switch mv.Type {
	case MoveShot:
		res.Outcome, err = p.applyShot(mv)
	case MovePlaceBall:
		err = p.match.PlaceCueBall(mv.Player, *mv.Position)
	case MovePass:
		err = p.match.PassTurn(mv.Player)
	case MoveKeepTable:
		err = p.match.ResolveBreakChoice(mv.Player, false)
	case MoveRerack:
		err = p.match.ResolveBreakChoice(mv.Player, true)
	case MoveTimeout:
		res.Outcome, err = p.match.ApplyTimeout(mv.Player)
	case MoveConcede:
		err = p.match.Concede(mv.Player)
	}
	if err != nil {
		return nil, corrupt(mv.Seq, "move rejected: %v", err)
	}
	res.Snapshot = p.match.Snapshot()
	return res, nil
}

func (p *Playback) applyShot(mv Move) (*rules.ShotOutcome, error) {
	// The recorded cue position is where the authoritative world had the
	// ball; a fresh run must agree before the strike.
	cue := p.match.World().CueBall()
	if !cue.Position.IsEqualTo(mv.Shot.CuePosition) {
		return nil, corrupt(mv.Seq, "cue ball at (%g, %g), record says (%g, %g)",
			cue.Position.X, cue.Position.Y, mv.Shot.CuePosition.X, mv.Shot.CuePosition.Y)
	}
	outcome, err := p.match.ApplyShot(*mv.Shot)
	if err != nil {
		return nil, err
	}
	if outcome.Digest != mv.EventDigest {
		return nil, corrupt(mv.Seq, "event digest %d does not match recorded %d", outcome.Digest, mv.EventDigest)
	}
	return outcome, nil
}

// RunAll plays the record to the end and returns the final state.
func (p *Playback) RunAll() (rules.MatchSnapshot, error) {
	for !p.Done() {
		if _, err := p.Next(); err != nil {
			return rules.MatchSnapshot{}, err
		}
	}
	log.Printf("[REPLAY] match %s verified: %d moves", p.rec.MatchID, len(p.rec.Moves))
	return p.match.Snapshot(), nil
}
