package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/playcue/backend/internal/physics"
)

// FormatVersion is bumped whenever the on-disk shape changes.
const FormatVersion = 1

// ErrCorrupt is the base error for anything wrong with a replay: a
// malformed file, an impossible move, or a simulation that no longer
// reproduces the recorded digests.
var ErrCorrupt = errors.New("replay corrupt")

// CorruptError pins the failure to a move in the record. Seq is -1 when
// the record itself is malformed.
type CorruptError struct {
	Seq    int
	Reason string
}

func (e *CorruptError) Error() string {
	if e.Seq < 0 {
		return fmt.Sprintf("replay corrupt: %s", e.Reason)
	}
	return fmt.Sprintf("replay corrupt at move %d: %s", e.Seq, e.Reason)
}

func (e *CorruptError) Unwrap() error { return ErrCorrupt }

func corrupt(seq int, format string, args ...any) error {
	return &CorruptError{Seq: seq, Reason: fmt.Sprintf(format, args...)}
}

// MoveType tags the player actions a replay preserves. Everything that can
// change match state has a move type, so a record plus the config is the
// whole match.
type MoveType string

const (
	MoveShot      MoveType = "shot"
	MovePlaceBall MoveType = "place_ball"
	MovePass      MoveType = "pass_turn"
	MoveKeepTable MoveType = "keep_table"
	MoveRerack    MoveType = "rerack"
	MoveTimeout   MoveType = "timeout"
	MoveConcede   MoveType = "concede"
)

// Move is one recorded action. EventDigest is only set for shots; playback
// recomputes the simulation and must land on the same digest.
type Move struct {
	Seq         int                  `json:"seq"`
	Type        MoveType             `json:"type"`
	Player      int                  `json:"player"`
	Shot        *physics.ShotCommand `json:"shot,omitempty"`
	Position    *physics.Vec2        `json:"position,omitempty"`
	EventDigest uint64               `json:"event_digest,string"`
	At          time.Time            `json:"at"`
}

// Record is the complete replay: the physics config, the starting layout,
// who broke, and every move in order. Ball trajectories are not stored;
// determinism regenerates them.
type Record struct {
	Version   int                     `json:"version"`
	MatchID   string                  `json:"match_id"`
	CreatedAt time.Time               `json:"created_at"`
	Config    physics.PhysicsConfig   `json:"config"`
	Rack      []physics.BallPlacement `json:"rack"`
	Players   [2]int                  `json:"players"`
	Moves     []Move                  `json:"moves"`
}

// Validate checks structural integrity before any playback starts.
func (r Record) Validate() error {
	if r.Version != FormatVersion {
		return corrupt(-1, "unsupported version %d", r.Version)
	}
	if r.MatchID == "" {
		return corrupt(-1, "missing match id")
	}
	if err := r.Config.Validate(); err != nil {
		return corrupt(-1, "bad config: %v", err)
	}
	if len(r.Rack) != physics.NumBalls {
		return corrupt(-1, "rack places %d balls, want %d", len(r.Rack), physics.NumBalls)
	}
	if r.Players[0] == 0 || r.Players[1] == 0 || r.Players[0] == r.Players[1] {
		return corrupt(-1, "players must be distinct and nonzero")
	}
	for i, mv := range r.Moves {
		if mv.Seq != i {
			return corrupt(i, "sequence gap: move %d carries seq %d", i, mv.Seq)
		}
		if mv.Player != r.Players[0] && mv.Player != r.Players[1] {
			return corrupt(i, "unknown player %d", mv.Player)
		}
		switch mv.Type {
		case MoveShot:
			if mv.Shot == nil {
				return corrupt(i, "shot move without a shot command")
			}
		case MovePlaceBall:
			if mv.Position == nil {
				return corrupt(i, "placement move without a position")
			}
		case MovePass, MoveKeepTable, MoveRerack, MoveTimeout, MoveConcede:
		default:
			return corrupt(i, "unknown move type %q", mv.Type)
		}
	}
	return nil
}

// FilePath is where a match's replay lives under a replays directory.
func FilePath(dir, matchID string) string {
	return filepath.Join(dir, matchID+".replay.json")
}

// Save writes the record as indented JSON, readable enough to diff.
func (r Record) Save(path string) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode replay: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write replay: %w", err)
	}
	return nil
}

// Load reads and validates a replay file.
func Load(path string) (Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read replay: %w", err)
	}
	return Decode(raw)
}

// Decode parses a record from raw JSON, for replays stored off-disk.
func Decode(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, corrupt(-1, "not a replay file: %v", err)
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Encode renders the record compactly for cache storage.
func (r Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}
