package physics

import (
	"errors"
	"math"
	"testing"
)

func TestComputeShotRejectsBadCommands(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		name string
		cmd  ShotCommand
		want error
	}{
		{"zero power", ShotCommand{Angle: 0, Power: 0}, ErrPowerOutOfRange},
		{"negative power", ShotCommand{Angle: 0, Power: -0.5}, ErrPowerOutOfRange},
		{"over power", ShotCommand{Angle: 0, Power: 1.01}, ErrPowerOutOfRange},
		{"side spin out of range", ShotCommand{Angle: 0, Power: 0.5, Spin: NewVec2(1.5, 0)}, ErrSpinOutOfRange},
		{"vertical spin out of range", ShotCommand{Angle: 0, Power: 0.5, Spin: NewVec2(0, -1.5)}, ErrSpinOutOfRange},
		{"nan angle", ShotCommand{Angle: math.NaN(), Power: 0.5}, ErrInvalidAim},
		{"infinite angle", ShotCommand{Angle: math.Inf(1), Power: 0.5}, ErrInvalidAim},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ComputeShot(tc.cmd, cfg)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
			if !IsInvalidShot(err) {
				t.Errorf("%v not classified as an invalid shot", err)
			}
		})
	}
}

func TestComputeShotSpeedAndDirection(t *testing.T) {
	cfg := DefaultConfig()
	cmd := ShotCommand{Angle: math.Pi / 2, Power: 1.0}

	velocity, spin, err := ComputeShot(cmd, cfg)
	if err != nil {
		t.Fatalf("ComputeShot: %v", err)
	}
	speed := velocity.Magnitude()
	if speed < 7.0 || speed > 7.1 {
		t.Errorf("full-power speed = %g, want about 7.06", speed)
	}
	if math.Abs(velocity.X) > 1e-6 {
		t.Errorf("aim at pi/2 should move along y only, got %v", velocity)
	}
	if velocity.Y <= 0 {
		t.Errorf("aim at pi/2 should move up-table, got %v", velocity)
	}
	if !spin.IsZero() {
		t.Errorf("centre-ball strike produced spin %v", spin)
	}
}

func TestComputeShotSpinComponents(t *testing.T) {
	cfg := DefaultConfig()

	velocity, spin, err := ComputeShot(ShotCommand{Angle: 0, Power: 0.5, Spin: NewVec2(0, -1)}, cfg)
	if err != nil {
		t.Fatalf("ComputeShot: %v", err)
	}
	if spin.X >= 0 {
		t.Errorf("full draw along +x should spin backwards, got %v", spin)
	}
	if math.Abs(spin.X+velocity.X) > 0.01 {
		t.Errorf("full draw magnitude %g should mirror stroke speed %g", spin.X, velocity.X)
	}

	_, side, err := ComputeShot(ShotCommand{Angle: 0, Power: 0.5, Spin: NewVec2(1, 0)}, cfg)
	if err != nil {
		t.Fatalf("ComputeShot: %v", err)
	}
	if side.Y >= 0 {
		t.Errorf("right english along +x should spin toward -y, got %v", side)
	}
	if side.X != 0 {
		t.Errorf("pure side english leaked into the aim line: %v", side)
	}
}

func TestSoftTipSwallowsWeakShots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CueImpactTime = 1.0

	_, _, err := ComputeShot(ShotCommand{Angle: 0, Power: 0.5}, cfg)
	if !errors.Is(err, ErrShotTooSoft) {
		t.Fatalf("got %v, want %v", err, ErrShotTooSoft)
	}

	// Enough power still breaks through the friction threshold.
	if _, _, err := ComputeShot(ShotCommand{Angle: 0, Power: 1.0}, cfg); err != nil {
		t.Fatalf("full power through a soft tip should fire, got %v", err)
	}
}

func TestLongerImpactTimeShavesExitSpeed(t *testing.T) {
	crisp := DefaultConfig()
	soft := DefaultConfig()
	soft.CueImpactTime = 0.1

	cmd := ShotCommand{Angle: 0, Power: 1.0}
	vCrisp, _, err := ComputeShot(cmd, crisp)
	if err != nil {
		t.Fatalf("ComputeShot crisp: %v", err)
	}
	vSoft, _, err := ComputeShot(cmd, soft)
	if err != nil {
		t.Fatalf("ComputeShot soft: %v", err)
	}
	if vSoft.Magnitude() >= vCrisp.Magnitude() {
		t.Errorf("soft tip speed %g not below crisp tip speed %g", vSoft.Magnitude(), vCrisp.Magnitude())
	}
}

func TestApplyShotNeedsCueBallUp(t *testing.T) {
	w := defaultWorld(t)
	w.CueBall().InPlay = false

	err := w.ApplyShot(ShotCommand{Angle: 0, Power: 0.5})
	if !errors.Is(err, ErrCueBallPocketed) {
		t.Fatalf("got %v, want %v", err, ErrCueBallPocketed)
	}
	if !IsInvalidShot(err) {
		t.Error("pocketed-cue rejection not classified as an invalid shot")
	}
}
