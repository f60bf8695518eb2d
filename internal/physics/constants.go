package physics

// Simulation constants independent of the tunable table setup. Everything
// speed-like is metres per second, everything time-like is seconds.
const (
	// StepsPerSecond fixes the integration rate. Both sides of a match run
	// the same step size, which is what makes replays bit-exact.
	StepsPerSecond = 240
	StepSeconds    = 1.0 / float64(StepsPerSecond)

	// MaxCueForce is the peak force of a full-power cue strike in newtons.
	// Shot power scales the impulse delivered over ReferenceImpactTime.
	MaxCueForce         = 1200.0
	ReferenceImpactTime = 0.001

	// LimitingVelocity is the per-axis speed below which a component is
	// snapped to zero so balls come to a dead stop instead of crawling.
	LimitingVelocity = 0.005

	// SlipThreshold is the relative surface speed below which a ball is
	// treated as rolling without slipping.
	SlipThreshold = 0.02

	// SpinConvergence scales how fast sliding spin converges toward the
	// rolling state (5/2 for a uniform solid sphere).
	SpinConvergence = 2.5

	// PocketCaptureSpeed is the fastest a ball may pass over the outer
	// pocket zone and still drop. Inside the certain zone speed is ignored.
	PocketCaptureSpeed = 2.5

	// MaxCollisionIterations caps overlap resolution within a single step.
	// Leftover overlap after the cap is separated positionally and logged.
	MaxCollisionIterations = 20

	// MaxSimulationSteps bounds a single shot resolution (~7 minutes of
	// simulated time). Hitting it force-stops the table.
	MaxSimulationSteps = 100000

	// SeparationEpsilon pads positional correction so a resolved pair does
	// not re-register as overlapping after rounding.
	SeparationEpsilon = 1e-6

	NumBalls    = 16
	CueBallID   = 0
	EightBallID = 8
)
