// Package heading handles vehicle orientation as a circular quantity.
//
// Orientations are in degrees and conventionally live in [-180, 180).
// +180 and -180 are the same physical heading, so the shortest rotation
// between two headings may cross that discontinuity.
package heading

import (
	"fmt"
	"math"
)

// Orientation is a heading angle in degrees.
type Orientation float64

// Normalize maps any finite angle into [-180, 180).
func Normalize(deg float64) Orientation {
	d := math.Mod(deg+180, 360)
	if d < 0 {
		d += 360
	}
	return Orientation(d - 180)
}

// Degrees returns the orientation as a plain float.
func (o Orientation) Degrees() float64 {
	return float64(o)
}

// WrapFlag tells whether the shortest path to a setpoint crosses ±180°.
type WrapFlag int

const (
	NoWrap       WrapFlag = iota
	WrapPositive          // crosses upward through +180 and continues from -180
	WrapNegative          // crosses downward through -180 and continues from +180
)

func (w WrapFlag) String() string {
	switch w {
	case NoWrap:
		return "none"
	case WrapPositive:
		return "positive"
	case WrapNegative:
		return "negative"
	default:
		return fmt.Sprintf("WrapFlag(%d)", int(w))
	}
}

// DetectWrap reports whether the shortest rotation from current to desired
// crosses the ±180° boundary, and in which direction.
//
// A direct path of exactly 180° is preferred over the wrapped one.
func DetectWrap(current, desired Orientation) WrapFlag {
	diff := float64(desired - current)
	switch {
	case diff < -180:
		return WrapPositive
	case diff > 180:
		return WrapNegative
	default:
		return NoWrap
	}
}

// AdjustDesired re-expresses desired on the same side of the discontinuity as
// current, so that desired - current is the short-path error.
//
// The flag comes from the start of the episode and is not re-detected here.
func AdjustDesired(flag WrapFlag, current, desired Orientation) float64 {
	switch flag {
	case WrapPositive:
		if current >= 0 {
			return float64(desired) + 360
		}
	case WrapNegative:
		if current < 0 {
			return float64(desired) - 360
		}
	}
	return float64(desired)
}

// ShortestDelta returns the signed rotation in (-180, 180] that takes from to to.
func ShortestDelta(from, to Orientation) float64 {
	d := float64(Normalize(float64(to - from)))
	if d == -180 {
		return 180
	}
	return d
}
