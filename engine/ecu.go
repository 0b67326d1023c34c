package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.einride.tech/can"

	"canlab/config"
	"canlab/driver"
	"canlab/telemetry"
	"canlab/utils"
)

const component = "engine"

type ECUConfig struct {
	Params       Params
	Dt           time.Duration
	InitialRPM   float64
	InitialCoolC float64
}

func ConfigFrom(c config.EngineConfig) ECUConfig {
	return ECUConfig{
		Params:       ParamsFromConfig(c),
		Dt:           c.Dt,
		InitialRPM:   c.InitialRPM,
		InitialCoolC: c.CoolantStartC,
	}
}

// ECU owns the engine State and broadcasts it as EngineData every tick.
type ECU struct {
	cfg     ECUConfig
	log     *utils.Logger
	cmap    *utils.CANMap
	bus     utils.CANBus
	input   driver.Input
	pause   utils.PauseFlag
	metrics *telemetry.Metrics

	state State
	last  Step
	sent  uint64
}

type Option func(*ECU)

func WithPause(p utils.PauseFlag) Option { return func(e *ECU) { e.pause = p } }

func WithMetrics(m *telemetry.Metrics) Option { return func(e *ECU) { e.metrics = m } }

func NewECU(cfg ECUConfig, cmap *utils.CANMap, bus utils.CANBus, input driver.Input, log *utils.Logger, opts ...Option) (*ECU, error) {
	if cfg.Dt <= 0 {
		return nil, fmt.Errorf("engine: invalid tick period %v", cfg.Dt)
	}
	if !cmap.Has(utils.EngineDataID) {
		return nil, fmt.Errorf("engine: signal database has no EngineData (0x%03X)", utils.EngineDataID)
	}
	e := &ECU{
		cfg:   cfg,
		log:   log.With(component),
		cmap:  cmap,
		bus:   bus,
		input: input,
		pause: utils.NeverPaused,
		state: State{RPM: cfg.InitialRPM, CoolantC: cfg.InitialCoolC, Gear: 1},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// State returns a copy of the current engine state.
func (e *ECU) State() State { return e.state }

// LastStep returns the mode and targets of the most recent tick.
func (e *ECU) LastStep() Step { return e.last }

func (e *ECU) Run(ctx context.Context) error {
	e.log.Info("Starting engine ECU: bus=%s dt=%v idle=%.0f redline=%.0f",
		e.bus.Name(), e.cfg.Dt, e.cfg.Params.IdleRPM, e.cfg.Params.RedlineRPM)

	ticker := time.NewTicker(e.cfg.Dt)
	defer ticker.Stop()

	paused := false
	for {
		select {
		case <-ctx.Done():
			e.log.Info("Engine ECU stopped. frames_sent=%d", e.sent)
			return ctx.Err()
		case <-ticker.C:
			if p := e.pause.Paused(); p != paused {
				paused = p
				e.metrics.SetPaused(component, p)
				e.log.Info("paused=%v", p)
			}
			if paused {
				continue
			}
			if err := e.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.log.Error("tick: %v", err)
			}
		}
	}
}

// Tick refreshes the gear, advances physics by one period and transmits
// EngineData. A failed send is returned but the state has still advanced.
func (e *ECU) Tick(ctx context.Context) error {
	if err := utils.Drain(ctx, e.bus, e.observe); err != nil && !errors.Is(err, utils.ErrClosed) {
		return fmt.Errorf("drain: %w", err)
	}

	pedals, err := e.input.Read()
	if err != nil {
		e.log.Trace("driver input unavailable: %v", err)
		pedals = driver.Pedals{}
	}

	dt := e.cfg.Dt.Seconds()
	e.state, e.last = e.cfg.Params.Advance(e.state, pedals, dt)
	if fb, ok := e.input.(driver.Feedback); ok {
		fb.Observe(e.state.SpeedKph, dt)
	}

	frame, err := e.cmap.Encode(utils.EngineData{
		RPM:      e.state.RPM,
		SpeedKph: e.state.SpeedKph,
		CoolantC: e.state.CoolantC,
	})
	if err != nil {
		e.log.Warn("encode failed, skipping tick: %v", err)
		return nil
	}

	if err := e.bus.WriteFrame(ctx, frame); err != nil {
		e.metrics.SendError(component)
		return fmt.Errorf("transmit: %w", err)
	}
	e.sent++
	e.metrics.FrameSent(component)

	e.log.Debug("G=%d mode=%-17s thr=%3.0f%% brk=%3.0f%% speed=%6.2f rpm_from_speed=%7.1f target=%7.1f rpm=%7.1f",
		e.state.Gear, e.last.Mode, pedals.Throttle, pedals.Brake, e.state.SpeedKph,
		e.last.RPMFromSpeed, e.last.TargetRPM, e.state.RPM)
	return nil
}

// observe picks up gear changes; everything else on the bus is ignored.
func (e *ECU) observe(f can.Frame) {
	if f.ID != utils.GearboxDataID {
		return
	}
	gb, err := e.cmap.DecodeGearboxData(f)
	if err != nil {
		e.metrics.DecodeError(component)
		e.log.Trace("ignoring gearbox frame: %v", err)
		return
	}
	if gb.Gear > 0 {
		e.state.Gear = gb.Gear
	}
}
