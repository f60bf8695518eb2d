package physics

import (
	"errors"
	"fmt"
	"log"
)

// ErrBadRack rejects a starting layout that cannot be played: wrong ball
// count, ids out of range, balls off the table or overlapping.
var ErrBadRack = errors.New("invalid rack")

// World owns the mutable state of one table: ball positions, velocities and
// spin, advanced in fixed steps. It is not safe for concurrent use; the
// match loop that owns it is the only writer.
type World struct {
	cfg         PhysicsConfig
	table       Table
	balls       [NumBalls]*Ball
	dragPerMass float64
	step        uint64
	acc         float64
	moving      bool
	separations int
}

// NewWorld validates the config and the starting layout and builds a world
// with every ball at rest.
func NewWorld(cfg PhysicsConfig, rack []BallPlacement) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(rack) != NumBalls {
		return nil, fmt.Errorf("%w: must place all %d balls, got %d", ErrBadRack, NumBalls, len(rack))
	}
	w := &World{
		cfg:         cfg,
		table:       NewTable(cfg),
		dragPerMass: cfg.dragPerMass(),
	}
	for _, p := range rack {
		if p.ID < 0 || p.ID >= NumBalls {
			return nil, fmt.Errorf("%w: ball id %d out of range", ErrBadRack, p.ID)
		}
		if w.balls[p.ID] != nil {
			return nil, fmt.Errorf("%w: duplicate ball id %d", ErrBadRack, p.ID)
		}
		if !w.table.Contains(p.Position) {
			return nil, fmt.Errorf("%w: ball %d at (%g, %g) is off the table", ErrBadRack, p.ID, p.Position.X, p.Position.Y)
		}
		w.balls[p.ID] = &Ball{ID: p.ID, Position: p.Position, InPlay: true}
	}
	for i := 0; i < NumBalls; i++ {
		for j := i + 1; j < NumBalls; j++ {
			if w.balls[i].Position.DistanceTo(w.balls[j].Position) < 2*cfg.BallRadius {
				return nil, fmt.Errorf("%w: balls %d and %d overlap", ErrBadRack, i, j)
			}
		}
	}
	return w, nil
}

func (w *World) Config() PhysicsConfig { return w.cfg }
func (w *World) Table() Table { return w.table }
func (w *World) StepCount() uint64 { return w.step }

// Separations counts forced positional separations, which only happen when
// the collision iteration cap is exhausted. Nonzero values mean the config
// is pushing the solver outside its comfort zone.
func (w *World) Separations() int { return w.separations }

func (w *World) BallByID(id int) (*Ball, error) {
	if id < 0 || id >= NumBalls {
		return nil, fmt.Errorf("ball id %d out of range", id)
	}
	return w.balls[id], nil
}

func (w *World) CueBall() *Ball {
	return w.balls[CueBallID]
}

// Balls returns a value copy of every ball in id order.
func (w *World) Balls() []Ball {
	out := make([]Ball, NumBalls)
	for i, b := range w.balls {
		out[i] = *b
	}
	return out
}

// IsSettled reports whether every ball still in play is at rest.
func (w *World) IsSettled() bool {
	for _, b := range w.balls {
		if b.InPlay && b.IsMoving() {
			return false
		}
	}
	return true
}

// ApplyImpulse adds a velocity and surface-spin change to one ball. The
// cue strike goes through here; tests also use it to build contrived table
// states.
func (w *World) ApplyImpulse(ballID int, dv, spin Vec2) error {
	b, err := w.BallByID(ballID)
	if err != nil {
		return err
	}
	if !b.InPlay {
		return fmt.Errorf("ball %d is not in play", ballID)
	}
	b.Velocity = b.Velocity.Plus(dv)
	b.Spin = b.Spin.Plus(spin)
	if b.IsMoving() {
		w.moving = true
	}
	return nil
}

// PlaceBall puts a ball at a position directly, validating bounds and
// overlap with everything in play. Ball-in-hand and re-spots go through
// here; it also returns a pocketed ball to play.
func (w *World) PlaceBall(ballID int, pos Vec2) error {
	b, err := w.BallByID(ballID)
	if err != nil {
		return err
	}
	if !w.table.Contains(pos) {
		return fmt.Errorf("position (%g, %g) is off the table", pos.X, pos.Y)
	}
	for _, other := range w.balls {
		if other.ID == ballID || !other.InPlay {
			continue
		}
		if other.Position.DistanceTo(pos) < 2*w.table.BallRadius {
			return fmt.Errorf("position (%g, %g) overlaps ball %d", pos.X, pos.Y, other.ID)
		}
	}
	b.Position = pos
	b.InPlay = true
	b.Stop()
	return nil
}

// Step advances the world by one fixed interval and returns the events it
// produced. Integration, pocket capture and contact resolution each walk
// the balls in ascending id order so two runs from the same state emit
// identical streams.
func (w *World) Step() []SimulationEvent {
	w.step++

	var events []SimulationEvent
	var moved [NumBalls]bool
	for id := 0; id < NumBalls; id++ {
		b := w.balls[id]
		if !b.InPlay || !b.IsMoving() {
			continue
		}
		w.integrate(b)
		moved[id] = true
	}

	events = w.capturePockets(moved, events)
	events = w.resolveContacts(events)

	if w.moving && w.IsSettled() {
		w.moving = false
		events = append(events, newSettled(w.step))
	} else if !w.IsSettled() {
		w.moving = true
	}
	return events
}

// Advance consumes wall-clock time, running however many fixed steps fit
// and carrying the remainder into the next call. Rendering layers use
// this; the server's shot resolution uses Simulate.
func (w *World) Advance(elapsed float64) []SimulationEvent {
	var events []SimulationEvent
	w.acc += elapsed
	for w.acc >= StepSeconds {
		w.acc -= StepSeconds
		events = append(events, w.Step()...)
	}
	return events
}

// Simulate steps until the table settles and returns the whole stream. The
// step cap guards against configs that never damp out; hitting it stops
// every ball where it stands.
func (w *World) Simulate() []SimulationEvent {
	events := make([]SimulationEvent, 0, 64)
	for i := 0; i < MaxSimulationSteps; i++ {
		if w.IsSettled() {
			break
		}
		events = append(events, w.Step()...)
	}
	if !w.IsSettled() {
		log.Printf("[PHYSICS] simulation cap (%d steps) hit, force-stopping the table", MaxSimulationSteps)
		for _, b := range w.balls {
			if b.InPlay {
				b.Stop()
			}
		}
		w.moving = false
		w.step++
		events = append(events, newSettled(w.step))
	}
	return events
}

// integrate applies cloth friction, air drag and the limiting velocity,
// then moves the ball. Velocity updates before position.
func (w *World) integrate(b *Ball) {
	v := b.Velocity
	slip := v.Minus(b.Spin)

	var friction Vec2
	if slip.Magnitude() > SlipThreshold {
		// Sliding: kinetic friction acts against the slip direction and
		// pulls the surface speed toward the rolling state.
		dir := slip.Normalize()
		friction = dir.Times(-w.cfg.StaticFriction * w.cfg.Gravity)
		b.Spin = b.Spin.Plus(dir.Times(SpinConvergence * w.cfg.StaticFriction * w.cfg.Gravity * StepSeconds))
		if v.Minus(b.Spin).Dot(slip) < 0 {
			b.Spin = v
		}
	} else {
		// Rolling without slipping: spin stays pinned to velocity.
		b.Spin = v
		if !v.IsZero() {
			friction = v.Normalize().Times(-w.cfg.RollingFriction * w.cfg.Gravity)
		}
	}

	drag := v.Times(-w.dragPerMass * v.Magnitude())
	next := v.Plus(friction.Plus(drag).Times(StepSeconds))

	// Friction and drag slow a ball; within one step they never reverse it.
	if next.Dot(v) < 0 {
		next = Vec2{}
	}
	if next.X < LimitingVelocity && next.X > -LimitingVelocity {
		next.X = 0
	}
	if next.Y < LimitingVelocity && next.Y > -LimitingVelocity {
		next.Y = 0
	}
	b.Velocity = next
	b.Position = b.Position.Plus(next.Times(StepSeconds))
}

// capturePockets drops balls whose centres entered a pocket zone this step.
// Only balls that actually moved are candidates, so a ball parked on a
// pocket lip stays up until something disturbs it.
func (w *World) capturePockets(moved [NumBalls]bool, events []SimulationEvent) []SimulationEvent {
	for id := 0; id < NumBalls; id++ {
		if !moved[id] {
			continue
		}
		b := w.balls[id]
		if !b.InPlay {
			continue
		}
		for _, p := range w.table.Pockets {
			d := b.Position.DistanceTo(p.Position)
			if d >= p.CaptureRadius {
				continue
			}
			speed := b.Speed()
			if d < p.CertainRadius || speed < PocketCaptureSpeed {
				events = append(events, newPocketed(w.step, id, p.ID, speed))
				b.InPlay = false
				b.Stop()
				b.Position = p.Position
				break
			}
		}
	}
	return events
}

// resolveContacts clears every cushion crossing and ball overlap,
// re-scanning until the table is clean or the iteration cap runs out.
func (w *World) resolveContacts(events []SimulationEvent) []SimulationEvent {
	for iter := 0; iter < MaxCollisionIterations; iter++ {
		dirty := false
		for id := 0; id < NumBalls; id++ {
			b := w.balls[id]
			if !b.InPlay {
				continue
			}
			if w.resolveCushion(b, &events) {
				dirty = true
			}
		}
		for i := 0; i < NumBalls; i++ {
			a := w.balls[i]
			if !a.InPlay {
				continue
			}
			for j := i + 1; j < NumBalls; j++ {
				c := w.balls[j]
				if !c.InPlay {
					continue
				}
				if w.resolvePair(a, c, &events) {
					dirty = true
				}
			}
		}
		if !dirty {
			return events
		}
	}

	// The cap ran out, which a tightly packed cluster can do on a hard
	// break. Separate whatever still overlaps without exchanging any more
	// momentum so the step ends with a clean table.
	w.separations++
	log.Printf("[PHYSICS] collision iteration cap (%d) hit at step %d, forcing separation", MaxCollisionIterations, w.step)
	diameter := 2 * w.table.BallRadius
	for pass := 0; pass < MaxCollisionIterations; pass++ {
		clean := true
		for i := 0; i < NumBalls; i++ {
			a := w.balls[i]
			if !a.InPlay {
				continue
			}
			for j := i + 1; j < NumBalls; j++ {
				c := w.balls[j]
				if !c.InPlay {
					continue
				}
				dist := a.Position.DistanceTo(c.Position)
				if dist >= diameter {
					continue
				}
				w.pushApart(a, c, dist)
				clean = false
			}
		}
		if clean {
			break
		}
	}
	return events
}

// resolveCushion clamps a ball back onto the cloth and reflects its
// velocity off whichever rail it crossed. Crossings inside a pocket mouth
// are left to capture instead of bouncing. Returns true when anything
// changed.
func (w *World) resolveCushion(b *Ball, events *[]SimulationEvent) bool {
	if w.inPocketMouth(b.Position) {
		return false
	}
	r := w.table.BallRadius
	e := w.cfg.TableRestitution
	changed := false

	if b.Position.X < r {
		b.Position.X = r
		changed = true
		if b.Velocity.X < 0 {
			speed := -b.Velocity.X
			b.Velocity.X = fix(-b.Velocity.X * e)
			*events = append(*events, newCushionCollision(w.step, b.ID, EdgeLeft, speed))
		}
	} else if b.Position.X > w.table.Length-r {
		b.Position.X = w.table.Length - r
		changed = true
		if b.Velocity.X > 0 {
			speed := b.Velocity.X
			b.Velocity.X = fix(-b.Velocity.X * e)
			*events = append(*events, newCushionCollision(w.step, b.ID, EdgeRight, speed))
		}
	}
	if b.Position.Y < r {
		b.Position.Y = r
		changed = true
		if b.Velocity.Y < 0 {
			speed := -b.Velocity.Y
			b.Velocity.Y = fix(-b.Velocity.Y * e)
			*events = append(*events, newCushionCollision(w.step, b.ID, EdgeBottom, speed))
		}
	} else if b.Position.Y > w.table.Width-r {
		b.Position.Y = w.table.Width - r
		changed = true
		if b.Velocity.Y > 0 {
			speed := b.Velocity.Y
			b.Velocity.Y = fix(-b.Velocity.Y * e)
			*events = append(*events, newCushionCollision(w.step, b.ID, EdgeTop, speed))
		}
	}
	return changed
}

// inPocketMouth reports whether a position sits inside any pocket's capture
// zone, where the rails give way to the drop.
func (w *World) inPocketMouth(pos Vec2) bool {
	for _, p := range w.table.Pockets {
		if pos.DistanceTo(p.Position) < p.CaptureRadius {
			return true
		}
	}
	return false
}

// resolvePair separates one overlapping pair and, if the balls are still
// approaching, exchanges momentum along the contact normal with
// restitution. Equal masses keep the exchange symmetric. Returns true when
// anything changed.
func (w *World) resolvePair(a, b *Ball, events *[]SimulationEvent) bool {
	diameter := 2 * w.table.BallRadius
	dist := a.Position.DistanceTo(b.Position)
	if dist >= diameter {
		return false
	}

	normal := b.Position.Minus(a.Position).Normalize()
	if normal.IsZero() {
		normal = Vec2{X: 1}
	}
	w.pushApart(a, b, dist)

	approach := a.Velocity.Minus(b.Velocity).Dot(normal)
	if approach <= 0 {
		// Already separating; the position fix was enough.
		return true
	}

	e := w.cfg.BallRestitution
	v1n := a.Velocity.Dot(normal)
	v2n := b.Velocity.Dot(normal)
	aPerp := a.Velocity.Minus(normal.Times(v1n))
	bPerp := b.Velocity.Minus(normal.Times(v2n))
	n1 := 0.5 * ((1-e)*v1n + (1+e)*v2n)
	n2 := v1n + v2n - n1
	a.Velocity = normal.Times(fix(n1)).Plus(aPerp)
	b.Velocity = normal.Times(fix(n2)).Plus(bPerp)
	w.moving = true

	*events = append(*events, newBallCollision(w.step, a.ID, b.ID, approach))
	return true
}

// pushApart moves two overlapping balls to exact contact distance along
// their centre line, half the correction each.
func (w *World) pushApart(a, b *Ball, dist float64) {
	diameter := 2 * w.table.BallRadius
	normal := b.Position.Minus(a.Position).Normalize()
	if normal.IsZero() {
		normal = Vec2{X: 1}
	}
	shift := normal.Times((diameter-dist)/2 + SeparationEpsilon)
	a.Position = a.Position.Minus(shift)
	b.Position = b.Position.Plus(shift)
}

// WorldSnapshot is a copyable capture of the dynamic state. Restoring one
// rewinds the world exactly, which is how a predicting client reconciles
// against the server.
type WorldSnapshot struct {
	Balls  [NumBalls]Ball `json:"balls"`
	Step   uint64         `json:"step"`
	Moving bool           `json:"moving"`
}

func (w *World) Snapshot() WorldSnapshot {
	s := WorldSnapshot{Step: w.step, Moving: w.moving}
	for i, b := range w.balls {
		s.Balls[i] = *b
	}
	return s
}

func (w *World) Restore(s WorldSnapshot) {
	for i := range s.Balls {
		ball := s.Balls[i]
		w.balls[i] = &ball
	}
	w.step = s.Step
	w.moving = s.Moving
	w.acc = 0
}
