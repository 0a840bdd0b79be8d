package pid

// Gains are the proportional, integral and derivative coefficients.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

// DefaultGains is the proportional-only tuning the steering loop ships with.
var DefaultGains = Gains{Kp: 0.8}

// Controller is a discrete-time PID whose sampling interval is the caller's
// loop period. Error terms are per-sample, not scaled by time.
//
// The accumulated error is never clamped; callers bound it by calling Reset
// whenever the setpoint changes.
//
// Not safe for concurrent use.
type Controller struct {
	gains Gains

	lastError        float64
	accumulatedError float64
}

func NewController(g Gains) *Controller {
	return &Controller{gains: g}
}

// Gains returns the configured coefficients.
func (c *Controller) Gains() Gains {
	return c.gains
}

// Step computes one control output for the given measurement and target.
func (c *Controller) Step(current, desired float64) float64 {
	err := desired - current
	c.accumulatedError += err

	p := c.gains.Kp * err
	i := c.gains.Ki * c.accumulatedError
	d := c.gains.Kd * (err - c.lastError)
	c.lastError = err

	return p + i + d
}

// Reset clears the error history.
func (c *Controller) Reset() {
	c.lastError = 0
	c.accumulatedError = 0
}

// LastError is the error seen by the previous Step.
func (c *Controller) LastError() float64 {
	return c.lastError
}

// AccumulatedError is the running sum of errors since the last Reset.
func (c *Controller) AccumulatedError() float64 {
	return c.accumulatedError
}
