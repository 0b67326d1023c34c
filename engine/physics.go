// Package engine simulates the engine control unit: longitudinal vehicle
// physics, a four-mode RPM state machine and the periodic EngineData
// broadcast.
package engine

import (
	"math"

	"canlab/config"
	"canlab/driver"
)

// Mode is the RPM regime selected each tick.
type Mode int

const (
	ModeIdleRegion Mode = iota
	ModeDriving
	ModeEngineBraking
	ModeLowSpeedBraking
)

func (m Mode) String() string {
	switch m {
	case ModeIdleRegion:
		return "IDLE_REGION"
	case ModeDriving:
		return "DRIVING"
	case ModeEngineBraking:
		return "ENGINE_BRAKING"
	case ModeLowSpeedBraking:
		return "LOW_SPEED_BRAKING"
	default:
		return "UNKNOWN"
	}
}

// Mode thresholds.
const (
	drivingSpeedKph   = 10.0
	lowSpeedKph       = 3.0
	liftThrottlePct   = 2.0
	creepThrottleFrac = 0.10
	creepSlipRPM      = 200.0
)

type Params struct {
	IdleRPM            float64
	MinRPM             float64
	RedlineRPM         float64
	MaxSlipRPM         float64
	AMax               float64 // m/s^2 at full throttle
	BMax               float64 // m/s^2 at full brake
	Drag               float64 // 1/s, proportional to speed
	GearRatios         []float64
	FinalDrive         float64
	TireCircumferenceM float64
	Alpha              float64 // rpm smoothing factor
	CoolantMinC        float64
	CoolantMaxC        float64
	CoolantLoadDelta   float64
	CoolantCruiseDelta float64
	CoolantCoolDelta   float64
}

func ParamsFromConfig(c config.EngineConfig) Params {
	return Params{
		IdleRPM:            c.IdleRPM,
		MinRPM:             c.MinRPM,
		RedlineRPM:         c.RedlineRPM,
		MaxSlipRPM:         c.MaxSlipRPM,
		AMax:               c.AMax,
		BMax:               c.BMax,
		Drag:               c.Drag,
		GearRatios:         append([]float64(nil), c.GearRatios...),
		FinalDrive:         c.FinalDrive,
		TireCircumferenceM: c.TireCircumferenceM,
		Alpha:              c.Alpha,
		CoolantMinC:        c.CoolantMinC,
		CoolantMaxC:        c.CoolantMaxC,
		CoolantLoadDelta:   c.CoolantLoadDelta,
		CoolantCruiseDelta: c.CoolantCruiseDelta,
		CoolantCoolDelta:   c.CoolantCoolDelta,
	}
}

// DefaultParams mirrors config.Default().
func DefaultParams() Params {
	return ParamsFromConfig(config.Default().Engine)
}

// State is owned by the ECU and only leaves it encoded in a frame.
type State struct {
	RPM      float64
	SpeedKph float64
	CoolantC float64
	Gear     int
}

// Step describes how the last tick arrived at its RPM.
type Step struct {
	Mode         Mode
	Accel        float64
	RPMFromSpeed float64
	TargetRPM    float64
}

// GearRatio returns the ratio for gear g; unknown gears count as 1:1.
func (p Params) GearRatio(g int) float64 {
	if g < 1 || g > len(p.GearRatios) {
		return 1.0
	}
	return p.GearRatios[g-1]
}

// Slip is the torque-converter slip added to wheel-derived RPM: 0 at no
// throttle, ramping to 200 rpm at 10% and to MaxSlipRPM at 100%.
func (p Params) Slip(throttle float64) float64 {
	t := throttle / 100.0
	if t <= 0 {
		return 0
	}
	if t < creepThrottleFrac {
		return t / creepThrottleFrac * creepSlipRPM
	}
	return creepSlipRPM + (t-creepThrottleFrac)*(p.MaxSlipRPM-creepSlipRPM)/(1-creepThrottleFrac)
}

// Advance runs one physics step of length dt seconds.
func (p Params) Advance(s State, in driver.Pedals, dt float64) (State, Step) {
	in = in.Clamped()
	throttle, brake := in.Throttle, in.Brake

	speedMS := s.SpeedKph / 3.6
	accel := (throttle/100.0)*p.AMax - (brake/100.0)*p.BMax - p.Drag*speedMS
	speedMS = math.Max(0, speedMS+accel*dt)
	s.SpeedKph = speedMS * 3.6

	rpmFromSpeed := speedMS / p.TireCircumferenceM * 60.0 * p.GearRatio(s.Gear) * p.FinalDrive

	step := Step{Accel: accel, RPMFromSpeed: rpmFromSpeed}
	lifted := throttle <= liftThrottlePct
	switch {
	case s.SpeedKph > drivingSpeedKph && lifted:
		step.Mode = ModeEngineBraking
		step.TargetRPM = rpmFromSpeed
	case s.SpeedKph > lowSpeedKph && lifted:
		step.Mode = ModeLowSpeedBraking
		blend := clamp((s.SpeedKph-lowSpeedKph)/(drivingSpeedKph-lowSpeedKph), 0, 1)
		step.TargetRPM = p.IdleRPM + (rpmFromSpeed-p.IdleRPM)*blend
	case s.SpeedKph > lowSpeedKph:
		step.Mode = ModeDriving
		step.TargetRPM = math.Max(rpmFromSpeed+p.Slip(throttle), p.IdleRPM)
	default:
		step.Mode = ModeIdleRegion
		step.TargetRPM = p.IdleRPM + throttle*10.0
	}

	s.RPM += p.Alpha * (step.TargetRPM - s.RPM)
	s.RPM = clamp(s.RPM, p.MinRPM, p.RedlineRPM)

	switch {
	case throttle > 10:
		s.CoolantC += p.CoolantLoadDelta
	case s.SpeedKph > drivingSpeedKph:
		s.CoolantC += p.CoolantCruiseDelta
	default:
		s.CoolantC -= p.CoolantCoolDelta
	}
	s.CoolantC = clamp(s.CoolantC, p.CoolantMinC, p.CoolantMaxC)

	return s, step
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
