package steering

import (
	"math"
)

// Geometry describes the steering stepper drive train.
type Geometry struct {
	StepsPerRev   int
	Microstepping int
	// GearRatio is motor revolutions per steering-column revolution. 0 means 1:1.
	GearRatio float64
	// Gain scales heading correction degrees into steering-column degrees.
	// 0 means 1.
	Gain float64
}

// Encoder converts a continuous heading correction into signed stepper steps.
// Positive steps steer toward increasing heading.
//
// Encoder is stateless; the zero value encodes everything to 0.
type Encoder struct {
	StepsPerDegree float64
	MaxSteps       int // 0 = no limit
}

// NewEncoder derives the steps-per-degree scale from the drive geometry.
func NewEncoder(g Geometry, maxSteps int) Encoder {
	gear := g.GearRatio
	if gear <= 0 {
		gear = 1
	}
	gain := g.Gain
	if gain <= 0 {
		gain = 1
	}
	microstepsPerRev := float64(g.StepsPerRev * g.Microstepping)
	return Encoder{
		StepsPerDegree: microstepsPerRev / 360.0 * gear * gain,
		MaxSteps:       maxSteps,
	}
}

// Encode maps a PID output (degrees of heading correction) to a step count.
// Any non-zero output yields at least one step in its direction, so the sign
// of the result always follows the sign of the input.
func (e Encoder) Encode(pidOutput float64) int {
	if pidOutput == 0 || math.IsNaN(pidOutput) || e.StepsPerDegree <= 0 {
		return 0
	}

	mag := math.Ceil(math.Abs(pidOutput) * e.StepsPerDegree)
	if e.MaxSteps > 0 && mag > float64(e.MaxSteps) {
		mag = float64(e.MaxSteps)
	}
	if mag > math.MaxInt32 {
		mag = math.MaxInt32
	}

	steps := int(mag)
	if pidOutput < 0 {
		return -steps
	}
	return steps
}

// Direction names the turn direction of a step count.
func Direction(steps int) string {
	switch {
	case steps > 0:
		return "right"
	case steps < 0:
		return "left"
	default:
		return "straight"
	}
}
