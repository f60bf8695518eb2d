package physics

// Ball is the full dynamic state of one ball. Spin is stored as the
// equivalent-roll surface velocity: a ball rolls without slipping exactly
// when Spin equals Velocity, and the gap between the two is the slip that
// sliding friction works against. Follow, draw and curve all fall out of
// that one rule.
type Ball struct {
	ID       int  `json:"id"`
	Position Vec2 `json:"position"`
	Velocity Vec2 `json:"velocity"`
	Spin     Vec2 `json:"spin"`
	InPlay   bool `json:"in_play"`
}

func (b *Ball) Speed() float64 {
	return b.Velocity.Magnitude()
}

func (b *Ball) IsMoving() bool {
	return !b.Velocity.IsZero() || !b.Spin.IsZero()
}

func (b *Ball) Stop() {
	b.Velocity = Vec2{}
	b.Spin = Vec2{}
}

func (b *Ball) IsCue() bool {
	return b.ID == CueBallID
}

// IsSolid reports group membership for balls 1-7.
func (b *Ball) IsSolid() bool {
	return b.ID >= 1 && b.ID <= 7
}

// IsStripe reports group membership for balls 9-15.
func (b *Ball) IsStripe() bool {
	return b.ID >= 9 && b.ID <= 15
}
