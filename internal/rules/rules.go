package rules

import "errors"

// Phase is the lifecycle stage of an eight-ball match. The table is open
// after the break until someone pockets a ball on a legal shot; a player
// whose group is cleared is shooting at the eight.
type Phase string

const (
	PhaseBreak     Phase = "break"
	PhaseOpen      Phase = "open"
	PhaseAssigned  Phase = "groups_assigned"
	PhaseEightBall Phase = "eight_ball"
	PhaseEnded     Phase = "ended"
)

// Group is a player's assigned ball group.
type Group string

const (
	GroupNone    Group = ""
	GroupSolids  Group = "solids"
	GroupStripes Group = "stripes"
)

// MaxConsecutiveTimeouts is how many turns in a row a player may let
// expire before forfeiting the match.
const MaxConsecutiveTimeouts = 3

const (
	FoulScratch           = "scratch"
	FoulNoContact         = "no_contact"
	FoulWrongFirstContact = "wrong_first_contact"
	FoulEightBallFirst    = "eight_ball_first"
	FoulNoRail            = "no_rail_after_contact"
	FoulInsufficientBreak = "insufficient_break"
	FoulTimeout           = "timeout"
)

const (
	EndEightBallPocketed = "eight_ball_pocketed"
	EndFoulOnEight       = "foul_on_eight"
	EndEarlyEight        = "eight_ball_early"
	EndTimeoutForfeit    = "timeout_forfeit"
	EndConcede           = "concede"
)

var (
	ErrMatchEnded       = errors.New("match already ended")
	ErrNotYourTurn      = errors.New("not this player's turn")
	ErrUnknownPlayer    = errors.New("player is not in this match")
	ErrNoBallInHand     = errors.New("player does not have ball in hand")
	ErrInvalidPlacement = errors.New("invalid cue ball placement")
	ErrChoicePending    = errors.New("break choice must be resolved first")
	ErrNoPendingChoice  = errors.New("no break choice to resolve")
)

// groupOf maps a ball id to its group; the cue and the eight belong to
// neither.
func groupOf(ballID int) Group {
	switch {
	case ballID >= 1 && ballID <= 7:
		return GroupSolids
	case ballID >= 9 && ballID <= 15:
		return GroupStripes
	default:
		return GroupNone
	}
}

func otherGroup(g Group) Group {
	switch g {
	case GroupSolids:
		return GroupStripes
	case GroupStripes:
		return GroupSolids
	default:
		return GroupNone
	}
}
