package physics

import (
	"errors"
	"reflect"
	"testing"
)

func defaultWorld(t *testing.T) *World {
	t.Helper()
	cfg := DefaultConfig()
	w, err := NewWorld(cfg, StandardRack(cfg))
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	return w
}

func mustPlace(t *testing.T, w *World, id int, pos Vec2) {
	t.Helper()
	if err := w.PlaceBall(id, pos); err != nil {
		t.Fatalf("PlaceBall(%d, %v): %v", id, pos, err)
	}
}

func mustImpulse(t *testing.T, w *World, id int, dv, spin Vec2) {
	t.Helper()
	if err := w.ApplyImpulse(id, dv, spin); err != nil {
		t.Fatalf("ApplyImpulse(%d): %v", id, err)
	}
}

func hasEventType(events []SimulationEvent, typ EventType) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func hasBallCollision(events []SimulationEvent, a, b int) bool {
	for _, e := range events {
		if e.Type == EventBallCollision && e.Ball == a && e.Other == b {
			return true
		}
	}
	return false
}

// totalEnergy sums translational plus rotational kinetic energy, treating
// spin as equivalent-roll surface speed of a solid sphere.
func totalEnergy(w *World) float64 {
	m := w.Config().BallMass
	e := 0.0
	for _, b := range w.Balls() {
		if !b.InPlay {
			continue
		}
		e += 0.5*m*b.Velocity.MagnitudeSquared() + 0.2*m*b.Spin.MagnitudeSquared()
	}
	return e
}

func TestStandardRackLayout(t *testing.T) {
	cfg := DefaultConfig()
	rack := StandardRack(cfg)
	if len(rack) != NumBalls {
		t.Fatalf("rack has %d balls, want %d", len(rack), NumBalls)
	}

	table := NewTable(cfg)
	seen := make(map[int]bool)
	for _, p := range rack {
		if seen[p.ID] {
			t.Errorf("ball %d placed twice", p.ID)
		}
		seen[p.ID] = true
		if !table.Contains(p.Position) {
			t.Errorf("ball %d at %v is off the table", p.ID, p.Position)
		}
	}
	for i := 0; i < len(rack); i++ {
		for j := i + 1; j < len(rack); j++ {
			d := rack[i].Position.DistanceTo(rack[j].Position)
			if d < 2*cfg.BallRadius {
				t.Errorf("balls %d and %d overlap in the rack (dist %g)", rack[i].ID, rack[j].ID, d)
			}
		}
	}

	if got, want := rack[0].Position, NewVec2(cfg.TableLength/3, cfg.TableWidth/2); !got.IsEqualTo(want) {
		t.Errorf("cue ball spot = %v, want %v", got, want)
	}
	for _, p := range rack {
		if p.ID == EightBallID {
			want := NewVec2(cfg.TableLength*3/4+4*cfg.BallRadius, cfg.TableWidth/2)
			if !p.Position.IsEqualTo(want) {
				t.Errorf("eight ball at %v, want centre of the third row %v", p.Position, want)
			}
		}
	}
}

func TestWorldRejectsBadRacks(t *testing.T) {
	cfg := DefaultConfig()

	short := StandardRack(cfg)[:10]
	if _, err := NewWorld(cfg, short); !errors.Is(err, ErrBadRack) {
		t.Errorf("short rack: got %v, want ErrBadRack", err)
	}

	dup := StandardRack(cfg)
	dup[3].ID = dup[2].ID
	if _, err := NewWorld(cfg, dup); !errors.Is(err, ErrBadRack) {
		t.Errorf("duplicate ball ids: got %v, want ErrBadRack", err)
	}

	off := StandardRack(cfg)
	off[5].Position = NewVec2(-1, 0.5)
	if _, err := NewWorld(cfg, off); !errors.Is(err, ErrBadRack) {
		t.Errorf("off-table ball: got %v, want ErrBadRack", err)
	}

	overlap := StandardRack(cfg)
	overlap[4].Position = overlap[3].Position.Plus(NewVec2(cfg.BallRadius/2, 0))
	if _, err := NewWorld(cfg, overlap); !errors.Is(err, ErrBadRack) {
		t.Errorf("overlapping balls: got %v, want ErrBadRack", err)
	}
}

func TestStraightShotSettles(t *testing.T) {
	w := defaultWorld(t)
	mustPlace(t, w, CueBallID, NewVec2(0.5, 0.3))
	mustImpulse(t, w, CueBallID, NewVec2(1.0, 0), Vec2{})

	events := w.Simulate()
	if !w.IsSettled() {
		t.Fatal("world did not settle")
	}
	if !hasEventType(events, EventSettled) {
		t.Error("event stream has no settled event")
	}
	cue := w.CueBall()
	if cue.Position.X <= 0.5 {
		t.Errorf("cue ball did not move forward: x = %g", cue.Position.X)
	}
	if !cue.Velocity.IsZero() || !cue.Spin.IsZero() {
		t.Errorf("cue ball still moving after settle: v=%v spin=%v", cue.Velocity, cue.Spin)
	}
}

func TestSimulationIsDeterministic(t *testing.T) {
	shot := ShotCommand{Player: 1, Angle: 0.01, Power: 1.0, Spin: NewVec2(0.3, -0.5), Seq: 1}

	run := func() ([]SimulationEvent, WorldSnapshot) {
		w := defaultWorld(t)
		if err := w.ApplyShot(shot); err != nil {
			t.Fatalf("ApplyShot: %v", err)
		}
		return w.Simulate(), w.Snapshot()
	}

	events1, snap1 := run()
	events2, snap2 := run()

	if DigestEvents(events1) != DigestEvents(events2) {
		t.Error("event streams differ between identical runs")
	}
	if !reflect.DeepEqual(snap1, snap2) {
		t.Error("final states differ between identical runs")
	}
	if len(events1) == 0 {
		t.Error("break produced no events")
	}
}

func TestBallCollisionTransfersMomentum(t *testing.T) {
	w := defaultWorld(t)
	mustPlace(t, w, CueBallID, NewVec2(0.8, 0.3))
	mustPlace(t, w, 1, NewVec2(0.9, 0.3))
	mustImpulse(t, w, CueBallID, NewVec2(2.0, 0), Vec2{})

	events := w.Simulate()
	if !hasBallCollision(events, CueBallID, 1) {
		t.Fatal("no collision event between cue and ball 1")
	}
	cue := w.CueBall()
	object, _ := w.BallByID(1)
	if object.Position.X < 1.2 {
		t.Errorf("object ball barely moved: x = %g", object.Position.X)
	}
	if cue.Position.X > 1.1 {
		t.Errorf("cue ball ran through the object ball: x = %g", cue.Position.X)
	}
	if cue.Position.X >= object.Position.X {
		t.Errorf("cue (%g) ended ahead of object (%g)", cue.Position.X, object.Position.X)
	}
}

func TestDrawShotPullsCueBack(t *testing.T) {
	w := defaultWorld(t)
	mustPlace(t, w, CueBallID, NewVec2(0.6, 0.4))
	mustPlace(t, w, 1, NewVec2(0.9, 0.4))

	cmd := ShotCommand{Player: 1, Angle: 0, Power: 0.35, Spin: NewVec2(0, -1)}
	if err := w.ApplyShot(cmd); err != nil {
		t.Fatalf("ApplyShot: %v", err)
	}
	events := w.Simulate()

	if !hasBallCollision(events, CueBallID, 1) {
		t.Fatal("cue never reached the object ball")
	}
	cue := w.CueBall()
	if cue.Position.X > 0.8 {
		t.Errorf("draw did not pull the cue back: x = %g", cue.Position.X)
	}
	if cue.Position.X < 0.15 {
		t.Errorf("cue ball ran away backwards: x = %g", cue.Position.X)
	}
	object, _ := w.BallByID(1)
	if object.Position.X < 1.2 {
		t.Errorf("object ball barely moved: x = %g", object.Position.X)
	}
}

func TestFollowShotKeepsCueRolling(t *testing.T) {
	w := defaultWorld(t)
	mustPlace(t, w, CueBallID, NewVec2(0.6, 0.4))
	mustPlace(t, w, 1, NewVec2(0.9, 0.4))

	cmd := ShotCommand{Player: 1, Angle: 0, Power: 0.25, Spin: NewVec2(0, 1)}
	if err := w.ApplyShot(cmd); err != nil {
		t.Fatalf("ApplyShot: %v", err)
	}
	events := w.Simulate()

	if !hasBallCollision(events, CueBallID, 1) {
		t.Fatal("cue never reached the object ball")
	}
	cue := w.CueBall()
	if cue.Position.X < 0.95 {
		t.Errorf("follow did not carry the cue through: x = %g", cue.Position.X)
	}
	object, _ := w.BallByID(1)
	if object.Position.X < 1.4 {
		t.Errorf("object ball barely moved: x = %g", object.Position.X)
	}
}

func TestSideSpinCurvesCueBall(t *testing.T) {
	w := defaultWorld(t)
	mustPlace(t, w, CueBallID, NewVec2(0.5, 0.655))

	cmd := ShotCommand{Player: 1, Angle: 0, Power: 0.3, Spin: NewVec2(1, 0)}
	if err := w.ApplyShot(cmd); err != nil {
		t.Fatalf("ApplyShot: %v", err)
	}
	w.Simulate()

	// Either it settles low on the cloth or it curled into a bottom
	// pocket; both mean the english bent the path.
	cue := w.CueBall()
	if cue.Position.Y > 0.61 {
		t.Errorf("right english did not curve the cue down-table: y = %g", cue.Position.Y)
	}
}

func TestCushionBounceReflects(t *testing.T) {
	w := defaultWorld(t)
	mustPlace(t, w, CueBallID, NewVec2(0.5, 0.655))
	mustImpulse(t, w, CueBallID, NewVec2(-2.0, 0), Vec2{})

	events := w.Simulate()
	found := false
	for _, e := range events {
		if e.Type == EventCushionCollision && e.Edge == EdgeLeft && e.Ball == CueBallID {
			found = true
			if e.Speed <= 0 {
				t.Errorf("cushion event speed = %g, want positive", e.Speed)
			}
		}
	}
	if !found {
		t.Fatal("no left-cushion event")
	}
	cue := w.CueBall()
	if cue.Position.X < 0.1 {
		t.Errorf("cue ball stayed glued to the rail: x = %g", cue.Position.X)
	}
}

func TestSlowBallDropsIntoPocket(t *testing.T) {
	w := defaultWorld(t)
	cfg := w.Config()
	mustPlace(t, w, CueBallID, NewVec2(cfg.TableLength/2-0.2, cfg.BallRadius))
	mustImpulse(t, w, CueBallID, NewVec2(1.0, 0), Vec2{})

	events := w.Simulate()
	cue := w.CueBall()
	if cue.InPlay {
		t.Fatalf("cue ball still up at %v, expected a drop into the side pocket", cue.Position)
	}
	dropped := false
	for _, e := range events {
		if e.Type == EventPocketed && e.Ball == CueBallID {
			dropped = true
			if e.Pocket != 1 {
				t.Errorf("dropped into pocket %d, want side pocket 1", e.Pocket)
			}
			if e.Speed >= PocketCaptureSpeed {
				t.Errorf("capture speed %g at or above the gate %g", e.Speed, PocketCaptureSpeed)
			}
		}
	}
	if !dropped {
		t.Fatal("no pocketed event")
	}
}

func TestFastBallPassesPocketMouth(t *testing.T) {
	w := defaultWorld(t)
	cfg := w.Config()
	mustPlace(t, w, CueBallID, NewVec2(cfg.TableLength/2-0.3, cfg.BallRadius))
	mustImpulse(t, w, CueBallID, NewVec2(5.0, 0), Vec2{})

	cue := w.CueBall()
	past := cfg.TableLength/2 + cfg.PocketRadius
	for i := 0; i < 2000 && cue.Position.X < past; i++ {
		w.Step()
		if !cue.InPlay {
			t.Fatalf("fast ball captured at %v despite speed %g", cue.Position, cue.Speed())
		}
	}
	if cue.Position.X < past {
		t.Fatalf("ball never crossed the pocket mouth: x = %g", cue.Position.X)
	}
}

func TestEnergyNeverIncreases(t *testing.T) {
	w := defaultWorld(t)
	shot := ShotCommand{Player: 1, Angle: 0.02, Power: 1.0, Spin: NewVec2(0.4, -0.6)}
	if err := w.ApplyShot(shot); err != nil {
		t.Fatalf("ApplyShot: %v", err)
	}

	prev := totalEnergy(w)
	for i := 0; i < MaxSimulationSteps && !w.IsSettled(); i++ {
		w.Step()
		cur := totalEnergy(w)
		if cur > prev+1e-6 {
			t.Fatalf("energy rose from %g to %g at step %d", prev, cur, w.StepCount())
		}
		prev = cur
	}
	if !w.IsSettled() {
		t.Fatal("break never settled")
	}
}

func TestNoRestingOverlapAfterBreak(t *testing.T) {
	w := defaultWorld(t)
	shot := ShotCommand{Player: 1, Angle: 0, Power: 1.0}
	if err := w.ApplyShot(shot); err != nil {
		t.Fatalf("ApplyShot: %v", err)
	}

	cfg := w.Config()
	minDist := 2*cfg.BallRadius - 1e-6
	for i := 0; i < MaxSimulationSteps && !w.IsSettled(); i++ {
		w.Step()
		balls := w.Balls()
		for a := 0; a < len(balls); a++ {
			if !balls[a].InPlay {
				continue
			}
			for b := a + 1; b < len(balls); b++ {
				if !balls[b].InPlay {
					continue
				}
				if d := balls[a].Position.DistanceTo(balls[b].Position); d < minDist {
					t.Fatalf("balls %d and %d overlap after step %d: dist %g", a, b, w.StepCount(), d)
				}
			}
		}
	}
	if !w.IsSettled() {
		t.Fatal("break never settled")
	}
}

func TestBreakSettlesWithinStepCap(t *testing.T) {
	w := defaultWorld(t)
	shot := ShotCommand{Player: 1, Angle: 0, Power: 1.0}
	if err := w.ApplyShot(shot); err != nil {
		t.Fatalf("ApplyShot: %v", err)
	}

	events := w.Simulate()
	if !w.IsSettled() {
		t.Fatal("world not settled after Simulate")
	}
	if w.StepCount() >= MaxSimulationSteps {
		t.Errorf("break consumed the whole step cap (%d steps)", w.StepCount())
	}
	if len(events) == 0 || events[len(events)-1].Type != EventSettled {
		t.Error("event stream does not end with a settled event")
	}
}

func TestSnapshotRestoreRewindsExactly(t *testing.T) {
	w := defaultWorld(t)
	shot := ShotCommand{Player: 1, Angle: 0.015, Power: 0.9, Spin: NewVec2(-0.2, 0.4)}
	if err := w.ApplyShot(shot); err != nil {
		t.Fatalf("ApplyShot: %v", err)
	}
	for i := 0; i < 100; i++ {
		w.Step()
	}

	snap := w.Snapshot()
	var first []SimulationEvent
	for i := 0; i < 200; i++ {
		first = append(first, w.Step()...)
	}
	after := w.Snapshot()

	w.Restore(snap)
	var second []SimulationEvent
	for i := 0; i < 200; i++ {
		second = append(second, w.Step()...)
	}

	if DigestEvents(first) != DigestEvents(second) {
		t.Error("replayed steps produced a different event stream")
	}
	if !reflect.DeepEqual(after, w.Snapshot()) {
		t.Error("replayed steps produced a different state")
	}
}

func TestAdvanceCarriesRemainder(t *testing.T) {
	w := defaultWorld(t)
	w.Advance(StepSeconds * 1.5)
	if w.StepCount() != 1 {
		t.Fatalf("after 1.5 steps of time, ran %d steps, want 1", w.StepCount())
	}
	w.Advance(StepSeconds * 0.6)
	if w.StepCount() != 2 {
		t.Fatalf("remainder not carried: ran %d steps, want 2", w.StepCount())
	}
}

func TestApplyImpulseValidation(t *testing.T) {
	w := defaultWorld(t)
	if err := w.ApplyImpulse(-1, NewVec2(1, 0), Vec2{}); err == nil {
		t.Error("expected error for a negative ball id")
	}
	if err := w.ApplyImpulse(NumBalls, NewVec2(1, 0), Vec2{}); err == nil {
		t.Error("expected error for an out-of-range ball id")
	}
	ball, _ := w.BallByID(5)
	ball.InPlay = false
	if err := w.ApplyImpulse(5, NewVec2(1, 0), Vec2{}); err == nil {
		t.Error("expected error for a pocketed ball")
	}
}

func TestPlaceBallValidation(t *testing.T) {
	w := defaultWorld(t)
	cfg := w.Config()

	if err := w.PlaceBall(CueBallID, NewVec2(-0.5, 0.5)); err == nil {
		t.Error("expected error for an off-table placement")
	}
	apex, _ := w.BallByID(1)
	if err := w.PlaceBall(CueBallID, apex.Position.Plus(NewVec2(cfg.BallRadius, 0))); err == nil {
		t.Error("expected error for a placement overlapping another ball")
	}

	cue := w.CueBall()
	cue.InPlay = false
	if err := w.PlaceBall(CueBallID, NewVec2(0.4, 0.4)); err != nil {
		t.Fatalf("PlaceBall: %v", err)
	}
	if !cue.InPlay || !cue.Position.IsEqualTo(NewVec2(0.4, 0.4)) {
		t.Errorf("cue ball not returned to play at the placement: %+v", cue)
	}
}
