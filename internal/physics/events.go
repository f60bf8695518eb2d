package physics

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// EventType discriminates the simulation event variants.
type EventType string

const (
	EventBallCollision    EventType = "ball_collision"
	EventCushionCollision EventType = "cushion_collision"
	EventPocketed         EventType = "pocketed"
	EventSettled          EventType = "settled"
)

// SimulationEvent is one tagged record in the ordered stream a step emits.
// Fields that do not apply to a variant hold -1 (ids) or empty (edge) so
// the serialized form is stable for digesting.
type SimulationEvent struct {
	Type   EventType   `json:"type"`
	Ball   int         `json:"ball"`
	Other  int         `json:"other"`
	Edge   CushionEdge `json:"edge,omitempty"`
	Pocket int         `json:"pocket"`
	Speed  float64     `json:"speed"`
	Step   uint64      `json:"step"`
}

func newBallCollision(step uint64, a, b int, speed float64) SimulationEvent {
	return SimulationEvent{Type: EventBallCollision, Ball: a, Other: b, Pocket: -1, Speed: fix(speed), Step: step}
}

func newCushionCollision(step uint64, ball int, edge CushionEdge, speed float64) SimulationEvent {
	return SimulationEvent{Type: EventCushionCollision, Ball: ball, Other: -1, Edge: edge, Pocket: -1, Speed: fix(speed), Step: step}
}

func newPocketed(step uint64, ball, pocket int, speed float64) SimulationEvent {
	return SimulationEvent{Type: EventPocketed, Ball: ball, Other: -1, Pocket: pocket, Speed: fix(speed), Step: step}
}

func newSettled(step uint64) SimulationEvent {
	return SimulationEvent{Type: EventSettled, Ball: -1, Other: -1, Pocket: -1, Step: step}
}

// DigestEvents hashes an event stream into a single comparable value.
// Matching digests on both ends of a connection (or between a replay and a
// fresh run) mean the simulations agreed step for step.
func DigestEvents(events []SimulationEvent) uint64 {
	if len(events) == 0 {
		return xxhash.Sum64([]byte("empty"))
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(raw)
}
