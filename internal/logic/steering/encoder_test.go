package steering

import (
	"math"
	"testing"
)

func TestNewEncoder_StepsPerDegree(t *testing.T) {
	cases := []struct {
		name string
		g    Geometry
		want float64
	}{
		{"full_step", Geometry{StepsPerRev: 200, Microstepping: 1}, 200.0 / 360.0},
		{"microstepping", Geometry{StepsPerRev: 200, Microstepping: 16}, 3200.0 / 360.0},
		{"geared", Geometry{StepsPerRev: 200, Microstepping: 1, GearRatio: 3}, 600.0 / 360.0},
		{"gain", Geometry{StepsPerRev: 360, Microstepping: 1, Gain: 0.5}, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEncoder(tc.g, 0)
			if math.Abs(e.StepsPerDegree-tc.want) > 1e-9 {
				t.Errorf("StepsPerDegree = %v, want %v", e.StepsPerDegree, tc.want)
			}
		})
	}
}

func TestEncode_ZeroIsZero(t *testing.T) {
	e := Encoder{StepsPerDegree: 2}
	for i := 0; i < 3; i++ {
		e.Encode(float64(i*10 - 10))
		if got := e.Encode(0); got != 0 {
			t.Fatalf("Encode(0) = %d, want 0", got)
		}
	}
}

func TestEncode_SignFollowsInput(t *testing.T) {
	e := Encoder{StepsPerDegree: 1}
	cases := []struct {
		in   float64
		want int
	}{
		{0.01, 1},
		{-0.01, -1},
		{2.5, 3},
		{-2.5, -3},
		{10, 10},
	}
	for _, tc := range cases {
		if got := e.Encode(tc.in); got != tc.want {
			t.Errorf("Encode(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestEncode_Monotonic(t *testing.T) {
	e := Encoder{StepsPerDegree: 3200.0 / 360.0, MaxSteps: 400}
	prev := e.Encode(-200)
	for x := -200.0; x <= 200; x += 0.37 {
		got := e.Encode(x)
		if got < prev {
			t.Fatalf("Encode(%v) = %d < previous %d", x, got, prev)
		}
		prev = got
	}
}

func TestEncode_Clamped(t *testing.T) {
	e := Encoder{StepsPerDegree: 10, MaxSteps: 50}
	if got := e.Encode(100); got != 50 {
		t.Errorf("Encode(100) = %d, want 50", got)
	}
	if got := e.Encode(-100); got != -50 {
		t.Errorf("Encode(-100) = %d, want -50", got)
	}
}

func TestEncode_Degenerate(t *testing.T) {
	if got := (Encoder{}).Encode(45); got != 0 {
		t.Errorf("zero encoder Encode(45) = %d, want 0", got)
	}
	if got := (Encoder{StepsPerDegree: 1}).Encode(math.NaN()); got != 0 {
		t.Errorf("Encode(NaN) = %d, want 0", got)
	}
	if got := (Encoder{StepsPerDegree: 1}).Encode(math.Inf(1)); got != math.MaxInt32 {
		t.Errorf("Encode(+Inf) = %d, want MaxInt32", got)
	}
}

func TestDirection(t *testing.T) {
	if Direction(3) != "right" || Direction(-3) != "left" || Direction(0) != "straight" {
		t.Error("unexpected direction names")
	}
}
