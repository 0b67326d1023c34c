package driver

import "math"

// CruiseConfig holds PID gains for the speed-holding driver.
type CruiseConfig struct {
	TargetKph     float64 `json:"target_kph"`
	Kp            float64 `json:"kp"`
	Ki            float64 `json:"ki"`
	Kd            float64 `json:"kd"`
	IntegralLimit float64 `json:"integral_limit"`
}

// Cruise is a discrete PID controller that tracks a target speed by
// pressing the throttle for positive output and the brake for negative.
type Cruise struct {
	cfg CruiseConfig

	// State
	integral    float64
	prevError   float64
	initialized bool
	output      float64
}

func NewCruise(cfg CruiseConfig) *Cruise {
	if cfg.IntegralLimit == 0 {
		cfg.IntegralLimit = 100
	}
	return &Cruise{cfg: cfg}
}

// Reset clears the PID state
func (c *Cruise) Reset() {
	c.integral = 0
	c.prevError = 0
	c.initialized = false
	c.output = 0
}

// Update computes a new output in percent, positive for throttle.
func (c *Cruise) Update(speedKph, dt float64) float64 {
	err := c.cfg.TargetKph - speedKph
	if !c.initialized {
		c.prevError = err
		c.initialized = true
	}

	p := c.cfg.Kp * err

	// Integral term with anti-windup
	c.integral += err * dt
	c.integral = math.Max(-c.cfg.IntegralLimit, math.Min(c.cfg.IntegralLimit, c.integral))
	i := c.cfg.Ki * c.integral

	var d float64
	if dt > 0 {
		d = c.cfg.Kd * (err - c.prevError) / dt
	}

	out := p + i + d
	if out > 100 || out < -100 {
		out = math.Max(-100, math.Min(100, out))
		// Back-calculate the integral so it does not keep winding.
		if c.cfg.Ki != 0 {
			c.integral = (out - p - d) / c.cfg.Ki
		}
	}

	c.prevError = err
	c.output = out
	return out
}

// Pedals maps the last output onto the pedals.
func (c *Cruise) Pedals() Pedals {
	if c.output >= 0 {
		return Pedals{Throttle: c.output}
	}
	return Pedals{Brake: -c.output}
}

// Read and Observe let a Cruise drive the engine on its own.
func (c *Cruise) Read() (Pedals, error) { return c.Pedals(), nil }

func (c *Cruise) Observe(speedKph, dt float64) { c.Update(speedKph, dt) }
