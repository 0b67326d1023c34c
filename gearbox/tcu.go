package gearbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.einride.tech/can"

	"canlab/telemetry"
	"canlab/utils"
)

const component = "gearbox"

type Config struct {
	Mode       string
	Dt         time.Duration
	IdleRPM    float64
	RedlineRPM float64
	OilStartC  float64
}

// State is what the TCU last published.
type State struct {
	Gear       int
	TargetGear int
	Shifting   bool
	Clutch1Tq  float64
	Clutch2Tq  float64
	OilTempC   float64
}

// TCU is the transmission ECU. It follows EngineData and publishes
// GearboxData every tick. A gear change takes two ticks: the first announces
// the target with ShiftInProgress set, the second engages it.
type TCU struct {
	cfg     Config
	shifts  ShiftMap
	cmap    *utils.CANMap
	bus     utils.CANBus
	log     *utils.Logger
	pause   utils.PauseFlag
	metrics *telemetry.Metrics

	engine utils.EngineData
	seen   bool
	state  State
}

type Option func(*TCU)

func WithPause(p utils.PauseFlag) Option { return func(t *TCU) { t.pause = p } }

func WithMetrics(m *telemetry.Metrics) Option { return func(t *TCU) { t.metrics = m } }

func NewTCU(cfg Config, cmap *utils.CANMap, bus utils.CANBus, log *utils.Logger, opts ...Option) (*TCU, error) {
	if cfg.Dt <= 0 {
		return nil, fmt.Errorf("gearbox: invalid tick period %v", cfg.Dt)
	}
	if cfg.RedlineRPM <= cfg.IdleRPM {
		return nil, fmt.Errorf("gearbox: redline %.0f must exceed idle %.0f", cfg.RedlineRPM, cfg.IdleRPM)
	}
	shifts, err := ShiftMapFor(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("gearbox: %w", err)
	}
	if !cmap.Has(utils.GearboxDataID) {
		return nil, fmt.Errorf("gearbox: signal database has no GearboxData (0x%03X)", utils.GearboxDataID)
	}
	t := &TCU{
		cfg:    cfg,
		shifts: shifts,
		cmap:   cmap,
		bus:    bus,
		log:    log.With(component),
		pause:  utils.NeverPaused,
		state:  State{Gear: MinGear, TargetGear: MinGear, OilTempC: cfg.OilStartC},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

func (t *TCU) State() State { return t.state }

func (t *TCU) Run(ctx context.Context) error {
	t.log.Info("Starting TCU: bus=%s mode=%s dt=%v", t.bus.Name(), t.cfg.Mode, t.cfg.Dt)
	ticker := time.NewTicker(t.cfg.Dt)
	defer ticker.Stop()

	paused := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p := t.pause.Paused(); p != paused {
				paused = p
				t.metrics.SetPaused(component, p)
				t.log.Info("paused=%v", p)
			}
			if paused {
				continue
			}
			if err := t.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				t.log.Error("tick: %v", err)
			}
		}
	}
}

// Tick folds in the latest EngineData, updates the gear and publishes.
func (t *TCU) Tick(ctx context.Context) error {
	if err := utils.Drain(ctx, t.bus, t.observe); err != nil && !errors.Is(err, utils.ErrClosed) {
		return fmt.Errorf("drain: %w", err)
	}
	t.step()

	frame, err := t.cmap.Encode(utils.GearboxData{
		Gear:            t.state.Gear,
		TargetGear:      t.state.TargetGear,
		Clutch1Tq:       t.state.Clutch1Tq,
		Clutch2Tq:       t.state.Clutch2Tq,
		OilTempC:        t.state.OilTempC,
		ShiftInProgress: t.state.Shifting,
	})
	if err != nil {
		t.log.Warn("encode failed, skipping tick: %v", err)
		return nil
	}
	if err := t.bus.WriteFrame(ctx, frame); err != nil {
		t.metrics.SendError(component)
		return fmt.Errorf("transmit: %w", err)
	}
	t.metrics.FrameSent(component)
	return nil
}

func (t *TCU) step() {
	s := &t.state
	if s.Shifting {
		s.Gear = s.TargetGear
		s.Shifting = false
	} else if t.seen {
		if next := t.shifts.Select(s.Gear, t.engine.SpeedKph); next != s.Gear {
			s.TargetGear = next
			s.Shifting = true
			t.log.Debug("shift %d -> %d at %.1f km/h", s.Gear, next, t.engine.SpeedKph)
		}
	}

	load := 0.0
	if t.seen {
		load = utils.Clamp((t.engine.RPM-t.cfg.IdleRPM)/(t.cfg.RedlineRPM-t.cfg.IdleRPM)*100, 0, 100)
		s.OilTempC += (t.engine.CoolantC - s.OilTempC) * oilFollowRate
	}
	s.Clutch1Tq, s.Clutch2Tq = 0, 0
	if s.Shifting {
		// both clutches share torque during the handover
		s.Clutch1Tq, s.Clutch2Tq = load/2, load/2
	} else if clutchFor(s.Gear) == 1 {
		s.Clutch1Tq = load
	} else {
		s.Clutch2Tq = load
	}
}

func (t *TCU) observe(f can.Frame) {
	if f.ID != utils.EngineDataID {
		return
	}
	ed, err := t.cmap.DecodeEngineData(f)
	if err != nil {
		t.metrics.DecodeError(component)
		t.log.Trace("ignoring engine frame: %v", err)
		return
	}
	t.engine = ed
	t.seen = true
}
