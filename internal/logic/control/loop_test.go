package control

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Taha-404/Autonomous-Car/internal/logic/heading"
	"github.com/Taha-404/Autonomous-Car/internal/logic/pid"
	"github.com/Taha-404/Autonomous-Car/internal/logic/steering"
	"github.com/Taha-404/Autonomous-Car/internal/task"
)

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// recorder collects samples delivered to observers.
type recorder struct {
	mu      sync.Mutex
	samples []Sample
}

func (r *recorder) observe(s Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func (r *recorder) last(t *testing.T) Sample {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		t.Fatal("no samples recorded")
	}
	return r.samples[len(r.samples)-1]
}

func newTestLoop(t *testing.T, gains pid.Gains) (*Loop, Channels, *recorder) {
	t.Helper()
	ch := NewChannels()
	rec := &recorder{}
	l, err := New(Config{
		Gains:       gains,
		ErrorFactor: 2,
		Encoder:     steering.Encoder{StepsPerDegree: 1},
	}, ch, WithSleep(noSleep), WithObserver(rec.observe))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, ch, rec
}

func accept(t *testing.T, l *Loop, ch Channels, current, delta float64) {
	t.Helper()
	ch.DesiredDelta.Overwrite(delta)
	ch.Current.Overwrite(current)
	if err := l.acceptSetpoint(context.Background()); err != nil {
		t.Fatalf("acceptSetpoint: %v", err)
	}
	if l.State() != Tracking {
		t.Fatalf("state = %v, want tracking", l.State())
	}
}

func iterate(t *testing.T, l *Loop, ch Channels, current float64) {
	t.Helper()
	ch.Current.Overwrite(current)
	if err := l.iterate(context.Background()); err != nil {
		t.Fatalf("iterate: %v", err)
	}
}

func TestNew_RequiresChannels(t *testing.T) {
	if _, err := New(Config{}, Channels{}); err == nil {
		t.Error("expected error for missing channels")
	}
}

func TestNew_Defaults(t *testing.T) {
	l, err := New(Config{}, NewChannels())
	if err != nil {
		t.Fatal(err)
	}
	if l.cfg.Period != DefaultPeriod {
		t.Errorf("Period = %v, want %v", l.cfg.Period, DefaultPeriod)
	}
	if l.cfg.ErrorFactor != DefaultErrorFactor {
		t.Errorf("ErrorFactor = %v, want %v", l.cfg.ErrorFactor, DefaultErrorFactor)
	}
	if l.State() != AwaitingSetpoint {
		t.Errorf("initial state = %v, want awaiting-setpoint", l.State())
	}
}

func TestAcceptSetpoint_ComputesDesiredAndWrap(t *testing.T) {
	cases := []struct {
		name           string
		current, delta float64
		wantDesired    heading.Orientation
		wantWrap       heading.WrapFlag
	}{
		{"no_wrap", 0, 10, 10, heading.NoWrap},
		{"positive_wrap", 170, 20, -170, heading.WrapPositive},
		{"negative_wrap", -170, -20, 170, heading.WrapNegative},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, ch, _ := newTestLoop(t, pid.DefaultGains)
			accept(t, l, ch, tc.current, tc.delta)
			if math.Abs(float64(l.desired-tc.wantDesired)) > 1e-9 {
				t.Errorf("desired = %v, want %v", l.desired, tc.wantDesired)
			}
			if l.wrap != tc.wantWrap {
				t.Errorf("wrap = %v, want %v", l.wrap, tc.wantWrap)
			}
		})
	}
}

// Crossing 180 must steer toward increasing heading, not back through 0.
func TestIterate_WrapTakesShortPath(t *testing.T) {
	l, ch, rec := newTestLoop(t, pid.DefaultGains)
	accept(t, l, ch, 170, 20)

	iterate(t, l, ch, 170)
	s := rec.last(t)
	if s.Target != 190 {
		t.Errorf("target = %v, want 190", s.Target)
	}
	if s.Output <= 0 || s.Steps <= 0 {
		t.Errorf("expected positive correction, got out=%v steps=%d", s.Output, s.Steps)
	}
	if got := ch.Steering.Receive(); got != s.Steps {
		t.Errorf("published steps = %d, want %d", got, s.Steps)
	}

	// After crossing the boundary the correction keeps the same sign.
	iterate(t, l, ch, -175)
	s = rec.last(t)
	if math.Abs(s.Target-(-170)) > 1e-9 {
		t.Errorf("target after crossing = %v, want -170", s.Target)
	}
	if s.Output <= 0 {
		t.Errorf("expected positive correction after crossing, got %v", s.Output)
	}
}

// A simple plant: heading moves by the PID output each sample.
func TestIterate_ConvergesWithoutWrap(t *testing.T) {
	l, ch, rec := newTestLoop(t, pid.DefaultGains)
	accept(t, l, ch, 0, 10)

	current := 0.0
	prevErr := math.Inf(1)
	for i := 0; i < 20; i++ {
		iterate(t, l, ch, current)
		s := rec.last(t)
		e := math.Abs(s.Target - current)
		if e >= prevErr {
			t.Fatalf("iteration %d: |error| %v did not decrease from %v", i, e, prevErr)
		}
		prevErr = e
		current += s.Output
	}
	if math.Abs(current-10) > 0.01 {
		t.Errorf("current = %v, want ~10", current)
	}
}

func TestIterate_NewSetpointResetsIntegrator(t *testing.T) {
	l, ch, _ := newTestLoop(t, pid.Gains{Kp: 0.8, Ki: 0.1, Kd: 0.2})
	accept(t, l, ch, 0, 30)

	for i := 0; i < 5; i++ {
		iterate(t, l, ch, float64(i))
	}
	if l.pid.AccumulatedError() == 0 {
		t.Fatal("expected accumulated error before the setpoint change")
	}

	ch.DesiredDelta.Overwrite(-45)
	if err := l.iterate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.State() != AwaitingSetpoint {
		t.Fatalf("state = %v, want awaiting-setpoint", l.State())
	}
	if l.pid.AccumulatedError() != 0 || l.pid.LastError() != 0 {
		t.Fatalf("PID not reset: last=%v accumulated=%v", l.pid.LastError(), l.pid.AccumulatedError())
	}

	// The new delta is consumed by the next acceptance.
	ch.Current.Overwrite(4)
	if err := l.acceptSetpoint(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.delta != -45 {
		t.Errorf("tracked delta = %v, want -45", l.delta)
	}
	if _, ok := ch.DesiredDelta.Peek(); ok {
		t.Error("delta mailbox should be empty after acceptance")
	}

	// First step of the new episode starts from a clean history:
	// error=-45, accumulated=-45, derivative=-45.
	ch.Current.Overwrite(4)
	if err := l.iterate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.pid.AccumulatedError() != -45 {
		t.Errorf("accumulated after first step = %v, want -45", l.pid.AccumulatedError())
	}
}

func TestIterate_JitterIsIgnored(t *testing.T) {
	l, ch, _ := newTestLoop(t, pid.Gains{Kp: 0.8, Ki: 0.1})
	accept(t, l, ch, 0, 30)
	iterate(t, l, ch, 1)
	accumulated := l.pid.AccumulatedError()

	ch.DesiredDelta.Overwrite(31.5)
	iterate(t, l, ch, 2)

	if l.State() != Tracking {
		t.Fatalf("state = %v, want tracking", l.State())
	}
	if l.delta != 30 {
		t.Errorf("tracked delta = %v, want 30", l.delta)
	}
	if got := l.pid.AccumulatedError(); got <= accumulated {
		t.Errorf("accumulated error = %v, expected growth past %v", got, accumulated)
	}
	if v, ok := ch.DesiredDelta.Peek(); !ok || v != 31.5 {
		t.Errorf("jitter delta should stay unconsumed, Peek = (%v, %v)", v, ok)
	}
}

func TestIterate_ExactlyErrorFactorIsJitter(t *testing.T) {
	l, ch, _ := newTestLoop(t, pid.DefaultGains)
	accept(t, l, ch, 0, 10)
	ch.DesiredDelta.Overwrite(12)
	iterate(t, l, ch, 0)
	if l.State() != Tracking {
		t.Errorf("a change equal to the error factor must not end the episode")
	}
}

func TestIterate_OverwritesSteering(t *testing.T) {
	l, ch, _ := newTestLoop(t, pid.DefaultGains)
	accept(t, l, ch, 0, 10)

	iterate(t, l, ch, 0)  // out=8 -> 8 steps
	iterate(t, l, ch, 15) // out=-4 -> -4 steps

	if got := ch.Steering.Receive(); got != -4 {
		t.Errorf("steering = %d, want -4", got)
	}
	if _, ok := ch.Steering.Peek(); ok {
		t.Error("older command should have been overwritten")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ch := NewChannels()
	rec := &recorder{}
	l, err := New(Config{Gains: pid.DefaultGains, Encoder: steering.Encoder{StepsPerDegree: 1}}, ch,
		WithObserver(rec.observe), WithSleep(func(ctx context.Context, d time.Duration) error {
			if d != DefaultPeriod {
				t.Errorf("sleep duration = %v, want %v", d, DefaultPeriod)
			}
			return ctx.Err()
		}))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := task.NewGroup(ctx)
	l.Register(g)

	ch.DesiredDelta.Overwrite(10)
	go func() {
		// heading sensor stub: constant 0°
		tick := time.NewTicker(time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				ch.Current.Overwrite(0)
			}
		}
	}()

	if steps := waitSteering(t, ch); steps != 8 {
		t.Errorf("steps = %d, want 8", steps)
	}

	cancel()
	if err := g.Wait(); err != nil {
		t.Errorf("Wait() = %v", err)
	}
}

func TestRun_BlocksWithoutInput(t *testing.T) {
	l, _, rec := newTestLoop(t, pid.DefaultGains)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := l.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v, want deadline exceeded", err)
	}
	if len(rec.samples) != 0 {
		t.Errorf("expected no iterations without input, got %d", len(rec.samples))
	}
	if l.State() != AwaitingSetpoint {
		t.Errorf("state = %v, want awaiting-setpoint", l.State())
	}
}

func waitSteering(t *testing.T, ch Channels) int {
	t.Helper()
	v, ok := ch.Steering.ReceiveTimeout(time.Second)
	if !ok {
		t.Fatal("timeout waiting for steering command")
	}
	return v
}

func TestState_String(t *testing.T) {
	if AwaitingSetpoint.String() != "awaiting-setpoint" || Tracking.String() != "tracking" {
		t.Error("unexpected state names")
	}
}
