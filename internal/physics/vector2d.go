package physics

import "math"

// Vec2 is a 2D vector with fixed-precision arithmetic so that simulation
// results are reproducible across runs and hosts.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// fix rounds to 9 decimal places (nanometre scale for table coordinates).
func fix(n float64) float64 {
	if math.IsNaN(n) {
		return 0
	}
	return math.Round(n*1e9) / 1e9
}

func NewVec2(x, y float64) Vec2 {
	return Vec2{X: fix(x), Y: fix(y)}
}

func (v Vec2) Plus(o Vec2) Vec2 {
	return Vec2{X: fix(v.X + o.X), Y: fix(v.Y + o.Y)}
}

func (v Vec2) Minus(o Vec2) Vec2 {
	return Vec2{X: fix(v.X - o.X), Y: fix(v.Y - o.Y)}
}

func (v Vec2) Times(s float64) Vec2 {
	return Vec2{X: fix(v.X * s), Y: fix(v.Y * s)}
}

func (v Vec2) Dot(o Vec2) float64 {
	return fix(v.X*o.X + v.Y*o.Y)
}

func (v Vec2) Magnitude() float64 {
	return fix(math.Sqrt(v.X*v.X + v.Y*v.Y))
}

func (v Vec2) MagnitudeSquared() float64 {
	return fix(v.X*v.X + v.Y*v.Y)
}

func (v Vec2) Normalize() Vec2 {
	m := v.Magnitude()
	if m == 0 {
		return Vec2{}
	}
	return v.Times(1.0 / m)
}

// LeftNormal returns the vector rotated 90 degrees counter-clockwise.
func (v Vec2) LeftNormal() Vec2 {
	return Vec2{X: -v.Y, Y: v.X}
}

func (v Vec2) Invert() Vec2 {
	return Vec2{X: -v.X, Y: -v.Y}
}

func (v Vec2) DistanceTo(o Vec2) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	return fix(math.Sqrt(dx*dx + dy*dy))
}

func (v Vec2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

func (v Vec2) IsEqualTo(o Vec2) bool {
	return v.X == o.X && v.Y == o.Y
}

// UnitFromAngle builds the unit vector pointing along an angle in radians.
func UnitFromAngle(angle float64) Vec2 {
	return Vec2{X: fix(math.Cos(angle)), Y: fix(math.Sin(angle))}
}
