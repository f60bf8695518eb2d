package replay

import (
	"sync"
	"time"

	"github.com/playcue/backend/internal/physics"
)

// Log accumulates a match's moves as they resolve. The session loop is
// the only writer; reads hand out copies so a download mid-match never
// observes a half-appended move.
type Log struct {
	mu  sync.Mutex
	rec Record
}

// NewLog opens a record for a match about to start.
func NewLog(matchID string, cfg physics.PhysicsConfig, rack []physics.BallPlacement, breaker, opponent int) *Log {
	stored := make([]physics.BallPlacement, len(rack))
	copy(stored, rack)
	return &Log{rec: Record{
		Version:   FormatVersion,
		MatchID:   matchID,
		CreatedAt: time.Now().UTC(),
		Config:    cfg,
		Rack:      stored,
		Players:   [2]int{breaker, opponent},
	}}
}

// Resume continues logging onto a record loaded from cache, for matches
// that outlive a server process.
func Resume(rec Record) *Log {
	return &Log{rec: rec}
}

func (l *Log) append(mv Move) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mv.Seq = len(l.rec.Moves)
	mv.At = time.Now().UTC()
	l.rec.Moves = append(l.rec.Moves, mv)
}

func (l *Log) RecordShot(cmd physics.ShotCommand, digest uint64) {
	shot := cmd
	l.append(Move{Type: MoveShot, Player: cmd.Player, Shot: &shot, EventDigest: digest})
}

func (l *Log) RecordPlacement(player int, pos physics.Vec2) {
	p := pos
	l.append(Move{Type: MovePlaceBall, Player: player, Position: &p})
}

func (l *Log) RecordPass(player int) {
	l.append(Move{Type: MovePass, Player: player})
}

func (l *Log) RecordBreakChoice(player int, rerack bool) {
	t := MoveKeepTable
	if rerack {
		t = MoveRerack
	}
	l.append(Move{Type: t, Player: player})
}

func (l *Log) RecordTimeout(player int) {
	l.append(Move{Type: MoveTimeout, Player: player})
}

func (l *Log) RecordConcede(player int) {
	l.append(Move{Type: MoveConcede, Player: player})
}

// Record returns a deep copy safe to hand out while logging continues.
func (l *Log) Record() Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.rec
	out.Rack = make([]physics.BallPlacement, len(l.rec.Rack))
	copy(out.Rack, l.rec.Rack)
	out.Moves = make([]Move, len(l.rec.Moves))
	for i, mv := range l.rec.Moves {
		if mv.Shot != nil {
			shot := *mv.Shot
			mv.Shot = &shot
		}
		if mv.Position != nil {
			pos := *mv.Position
			mv.Position = &pos
		}
		out.Moves[i] = mv
	}
	return out
}

func (l *Log) MoveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rec.Moves)
}

// Last returns a copy of the most recent move, if any.
func (l *Log) Last() (Move, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.rec.Moves) == 0 {
		return Move{}, false
	}
	mv := l.rec.Moves[len(l.rec.Moves)-1]
	if mv.Shot != nil {
		shot := *mv.Shot
		mv.Shot = &shot
	}
	if mv.Position != nil {
		pos := *mv.Position
		mv.Position = &pos
	}
	return mv, true
}
