package physics

// CushionEdge names one of the four rails.
type CushionEdge string

const (
	EdgeLeft   CushionEdge = "left"
	EdgeRight  CushionEdge = "right"
	EdgeBottom CushionEdge = "bottom"
	EdgeTop    CushionEdge = "top"
)

// Pocket is a capture zone at a rail corner or side midpoint. A ball drops
// when its centre enters CertainRadius at any speed, or CaptureRadius while
// slower than PocketCaptureSpeed.
type Pocket struct {
	ID            int     `json:"id"`
	Position      Vec2    `json:"position"`
	CaptureRadius float64 `json:"capture_radius"`
	CertainRadius float64 `json:"certain_radius"`
}

// Table is the play field geometry derived from a PhysicsConfig. The origin
// is the bottom-left corner, x runs along the long rail.
type Table struct {
	Length     float64   `json:"length"`
	Width      float64   `json:"width"`
	BallRadius float64   `json:"ball_radius"`
	Pockets    [6]Pocket `json:"pockets"`
}

// NewTable lays out the four corner pockets and two side pockets.
func NewTable(cfg PhysicsConfig) Table {
	t := Table{
		Length:     cfg.TableLength,
		Width:      cfg.TableWidth,
		BallRadius: cfg.BallRadius,
	}
	centres := [6]Vec2{
		NewVec2(0, 0),
		NewVec2(cfg.TableLength/2, 0),
		NewVec2(cfg.TableLength, 0),
		NewVec2(0, cfg.TableWidth),
		NewVec2(cfg.TableLength/2, cfg.TableWidth),
		NewVec2(cfg.TableLength, cfg.TableWidth),
	}
	for i, c := range centres {
		t.Pockets[i] = Pocket{
			ID:            i,
			Position:      c,
			CaptureRadius: cfg.PocketRadius,
			CertainRadius: fix(cfg.PocketRadius - cfg.BallRadius),
		}
	}
	return t
}

// Contains reports whether a ball centred at pos fits on the cloth.
func (t Table) Contains(pos Vec2) bool {
	return pos.X >= t.BallRadius && pos.X <= t.Length-t.BallRadius &&
		pos.Y >= t.BallRadius && pos.Y <= t.Width-t.BallRadius
}

// BallPlacement positions one ball of an initial layout.
type BallPlacement struct {
	ID       int  `json:"id"`
	Position Vec2 `json:"position"`
}

// rackRows lists ball ids per triangle row, apex first. The 8 sits in the
// middle of the third row; solids and stripes alternate through the rest.
var rackRows = [5][]int{
	{1},
	{2, 9},
	{3, 8, 10},
	{4, 11, 5, 12},
	{13, 6, 14, 7, 15},
}

// StandardRack produces the break layout: cue ball on the head spot at a
// third of the table, triangle apex on the foot spot at three quarters.
func StandardRack(cfg PhysicsConfig) []BallPlacement {
	r := cfg.BallRadius
	apexX := cfg.TableLength * 3 / 4
	midY := cfg.TableWidth / 2

	placements := make([]BallPlacement, 0, NumBalls)
	placements = append(placements, BallPlacement{
		ID:       CueBallID,
		Position: NewVec2(cfg.TableLength/3, midY),
	})
	for row, ids := range rackRows {
		x := apexX + float64(row)*2*r
		top := midY + float64(row)*1.1*r
		for i, id := range ids {
			placements = append(placements, BallPlacement{
				ID:       id,
				Position: NewVec2(x, top-float64(i)*2.2*r),
			})
		}
	}
	return placements
}
