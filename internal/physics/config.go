package physics

import (
	"fmt"
	"math"
)

// PhysicsConfig holds every tunable of the table simulation in SI units.
// A config is loaded once per match, validated, and then never mutated:
// both players and the replay verifier must run identical numbers.
type PhysicsConfig struct {
	Gravity          float64 `json:"gravity" mapstructure:"gravity"`
	TableLength      float64 `json:"table_length" mapstructure:"table_length"`
	TableWidth       float64 `json:"table_width" mapstructure:"table_width"`
	BallRadius       float64 `json:"ball_radius" mapstructure:"ball_radius"`
	BallMass         float64 `json:"ball_mass" mapstructure:"ball_mass"`
	PocketRadius     float64 `json:"pocket_radius" mapstructure:"pocket_radius"`
	TableRestitution float64 `json:"table_restitution" mapstructure:"table_restitution"`
	BallRestitution  float64 `json:"ball_restitution" mapstructure:"ball_restitution"`
	StaticFriction   float64 `json:"static_friction" mapstructure:"static_friction"`
	RollingFriction  float64 `json:"rolling_friction" mapstructure:"rolling_friction"`
	DragCoefficient  float64 `json:"drag_coefficient" mapstructure:"drag_coefficient"`
	AirDensity       float64 `json:"air_density" mapstructure:"air_density"`
	CueImpactTime    float64 `json:"cue_impact_time" mapstructure:"cue_impact_time"`
}

// DefaultConfig is a nine-foot table with standard balls.
func DefaultConfig() PhysicsConfig {
	return PhysicsConfig{
		Gravity:          9.80665,
		TableLength:      2.61,
		TableWidth:       1.31,
		BallRadius:       0.0286,
		BallMass:         0.17,
		PocketRadius:     0.054912,
		TableRestitution: 0.6,
		BallRestitution:  0.96,
		StaticFriction:   0.4,
		RollingFriction:  0.04,
		DragCoefficient:  0.45,
		AirDensity:       1.225,
		CueImpactTime:    0.001,
	}
}

// ConfigError reports the first parameter that fails validation.
type ConfigError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("physics config: %s = %g %s", e.Field, e.Value, e.Reason)
}

// Validate checks ranges and cross-parameter constraints. It returns a
// *ConfigError naming the offending field, or nil.
func (c PhysicsConfig) Validate() error {
	positive := []struct {
		field string
		value float64
	}{
		{"gravity", c.Gravity},
		{"table_length", c.TableLength},
		{"table_width", c.TableWidth},
		{"ball_radius", c.BallRadius},
		{"ball_mass", c.BallMass},
		{"pocket_radius", c.PocketRadius},
		{"table_restitution", c.TableRestitution},
		{"ball_restitution", c.BallRestitution},
		{"static_friction", c.StaticFriction},
		{"rolling_friction", c.RollingFriction},
		{"drag_coefficient", c.DragCoefficient},
		{"air_density", c.AirDensity},
		{"cue_impact_time", c.CueImpactTime},
	}
	for _, p := range positive {
		if !(p.value > 0) {
			return &ConfigError{Field: p.field, Value: p.value, Reason: "must be positive"}
		}
	}
	if c.TableRestitution > 1 {
		return &ConfigError{Field: "table_restitution", Value: c.TableRestitution, Reason: "must not exceed 1"}
	}
	if c.BallRestitution > 1 {
		return &ConfigError{Field: "ball_restitution", Value: c.BallRestitution, Reason: "must not exceed 1"}
	}
	if c.PocketRadius <= c.BallRadius {
		return &ConfigError{Field: "pocket_radius", Value: c.PocketRadius, Reason: "must exceed ball_radius"}
	}
	if c.TableLength < 36*c.BallRadius {
		return &ConfigError{Field: "table_length", Value: c.TableLength, Reason: "too short to hold a rack"}
	}
	if c.TableWidth < 12*c.BallRadius {
		return &ConfigError{Field: "table_width", Value: c.TableWidth, Reason: "too narrow to hold a rack"}
	}
	if c.StaticFriction < c.RollingFriction {
		return &ConfigError{Field: "static_friction", Value: c.StaticFriction, Reason: "must not be below rolling_friction"}
	}
	return nil
}

// dragPerMass folds the drag equation constants into a single multiplier:
// a = dragPerMass * |v| * v, with cross-section 2*pi*r^2 for a rolling ball.
func (c PhysicsConfig) dragPerMass() float64 {
	area := 2 * math.Pi * c.BallRadius * c.BallRadius
	return c.AirDensity * c.DragCoefficient * area / (2 * c.BallMass)
}
