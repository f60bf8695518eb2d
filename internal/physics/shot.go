package physics

import (
	"errors"
	"math"
)

// ShotCommand is one player's cue strike, expressed in table-independent
// terms so the same command replays identically under the same config.
// Spin.X is side english (positive curls right of the aim line), Spin.Y is
// follow/draw (positive rolls forward, negative pulls back). CuePosition
// records where the cue ball stood when the shot resolved.
type ShotCommand struct {
	Player      int     `json:"player"`
	Angle       float64 `json:"angle"`
	Power       float64 `json:"power"`
	Spin        Vec2    `json:"spin"`
	CuePosition Vec2    `json:"cue_position"`
	Seq         int     `json:"seq"`
}

var (
	ErrCueBallPocketed = errors.New("cue ball is off the table")
	ErrPowerOutOfRange = errors.New("shot power must be in (0, 1]")
	ErrSpinOutOfRange  = errors.New("spin components must be within [-1, 1]")
	ErrInvalidAim      = errors.New("aim angle must be finite")
	ErrShotTooSoft     = errors.New("cue force below the static friction threshold")
)

// IsInvalidShot reports whether an error is one of the shot validation
// rejections, as opposed to an internal failure.
func IsInvalidShot(err error) bool {
	return errors.Is(err, ErrCueBallPocketed) ||
		errors.Is(err, ErrPowerOutOfRange) ||
		errors.Is(err, ErrSpinOutOfRange) ||
		errors.Is(err, ErrInvalidAim) ||
		errors.Is(err, ErrShotTooSoft)
}

// SideSpinRatio scales how much of the stroke speed a full side english
// puts into perpendicular surface spin. Side contact transfers less than
// follow or draw does.
const SideSpinRatio = 0.5

// ComputeShot converts a validated command into the cue ball's initial
// velocity and surface spin under a given config.
//
// Power buys a fixed impulse budget: J = Power * MaxCueForce over the
// reference contact window. A softer tip (longer CueImpactTime) spreads
// that impulse thinner, so its peak force can fall under the static
// friction threshold and the cue ball never breaks loose; the contact also
// lasts long enough for rolling friction to shave off some exit speed.
func ComputeShot(cmd ShotCommand, cfg PhysicsConfig) (velocity, spin Vec2, err error) {
	if !(cmd.Power > 0) || cmd.Power > 1 {
		return Vec2{}, Vec2{}, ErrPowerOutOfRange
	}
	if math.Abs(cmd.Spin.X) > 1 || math.Abs(cmd.Spin.Y) > 1 {
		return Vec2{}, Vec2{}, ErrSpinOutOfRange
	}
	if math.IsNaN(cmd.Angle) || math.IsInf(cmd.Angle, 0) {
		return Vec2{}, Vec2{}, ErrInvalidAim
	}

	impulse := cmd.Power * MaxCueForce * ReferenceImpactTime
	peakForce := impulse / cfg.CueImpactTime
	if peakForce <= cfg.StaticFriction*cfg.BallMass*cfg.Gravity {
		return Vec2{}, Vec2{}, ErrShotTooSoft
	}

	speed := fix(impulse/cfg.BallMass - cfg.RollingFriction*cfg.Gravity*cfg.CueImpactTime)
	if speed <= 0 {
		return Vec2{}, Vec2{}, ErrShotTooSoft
	}

	dir := UnitFromAngle(cmd.Angle)
	velocity = dir.Times(speed)
	spin = dir.Times(cmd.Spin.Y * speed).
		Plus(dir.LeftNormal().Invert().Times(cmd.Spin.X * speed * SideSpinRatio))
	return velocity, spin, nil
}

// ApplyShot validates the cue ball is up, computes the strike and applies
// it. The caller then runs Simulate to resolve the table.
func (w *World) ApplyShot(cmd ShotCommand) error {
	if !w.CueBall().InPlay {
		return ErrCueBallPocketed
	}
	velocity, spin, err := ComputeShot(cmd, w.cfg)
	if err != nil {
		return err
	}
	return w.ApplyImpulse(CueBallID, velocity, spin)
}
