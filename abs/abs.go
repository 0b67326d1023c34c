// Package abs emulates the wheel-speed sensor ECU. It reacts to every
// EngineData broadcast with one WheelSpeeds frame.
package abs

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.einride.tech/can"

	"canlab/telemetry"
	"canlab/utils"
)

const (
	component = "abs"

	frontNoiseKph = 1.0
	rearNoiseKph  = 1.5
	maxWheelKph   = 250
)

// Noise returns a uniform sample in [-1, 1).
type Noise func() float64

// RandNoise draws from a seeded source.
func RandNoise(seed int64) Noise {
	r := rand.New(rand.NewSource(seed))
	return func() float64 { return r.Float64()*2 - 1 }
}

// Wheels spreads the vehicle speed over four wheels.
func Wheels(speedKph float64, noise Noise) utils.WheelSpeeds {
	w := func(spread float64) float64 {
		return utils.Clamp(speedKph+noise()*spread, 0, maxWheelKph)
	}
	return utils.WheelSpeeds{
		FL: w(frontNoiseKph),
		FR: w(frontNoiseKph),
		RL: w(rearNoiseKph),
		RR: w(rearNoiseKph),
	}
}

type ECU struct {
	cmap    *utils.CANMap
	bus     utils.CANBus
	noise   Noise
	timeout time.Duration
	log     *utils.Logger
	pause   utils.PauseFlag
	metrics *telemetry.Metrics

	sent uint64
}

type Option func(*ECU)

func WithPause(p utils.PauseFlag) Option { return func(e *ECU) { e.pause = p } }

func WithMetrics(m *telemetry.Metrics) Option { return func(e *ECU) { e.metrics = m } }

func WithNoise(n Noise) Option { return func(e *ECU) { e.noise = n } }

func NewECU(cmap *utils.CANMap, bus utils.CANBus, recvTimeout time.Duration, log *utils.Logger, opts ...Option) (*ECU, error) {
	if recvTimeout <= 0 {
		return nil, fmt.Errorf("abs: invalid receive timeout %v", recvTimeout)
	}
	if !cmap.Has(utils.WheelSpeedsID) {
		return nil, fmt.Errorf("abs: signal database has no WheelSpeeds (0x%03X)", utils.WheelSpeedsID)
	}
	e := &ECU{
		cmap:    cmap,
		bus:     bus,
		noise:   RandNoise(time.Now().UnixNano()),
		timeout: recvTimeout,
		log:     log.With(component),
		pause:   utils.NeverPaused,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *ECU) Run(ctx context.Context) error {
	e.log.Info("ABS ECU on %s, one WheelSpeeds frame per EngineData", e.bus.Name())
	paused := false
	for {
		if err := ctx.Err(); err != nil {
			e.log.Info("ABS ECU stopped. frames_sent=%d", e.sent)
			return err
		}
		if p := e.pause.Paused(); p != paused {
			paused = p
			e.metrics.SetPaused(component, p)
			e.log.Info("paused=%v", p)
		}

		f, err := utils.RecvTimeout(ctx, e.bus, e.timeout)
		switch {
		case errors.Is(err, utils.ErrTimeout):
			continue
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("abs: receive: %w", err)
		}
		if paused {
			continue
		}
		if err := e.Handle(ctx, f); err != nil {
			e.log.Error("%v", err)
		}
	}
}

// Handle answers an EngineData frame; other frames are ignored.
func (e *ECU) Handle(ctx context.Context, f can.Frame) error {
	if f.ID != utils.EngineDataID {
		return nil
	}
	ed, err := e.cmap.DecodeEngineData(f)
	if err != nil {
		e.metrics.DecodeError(component)
		e.log.Trace("ignoring engine frame: %v", err)
		return nil
	}

	ws := Wheels(ed.SpeedKph, e.noise)
	out, err := e.cmap.Encode(ws)
	if err != nil {
		e.log.Warn("encode failed: %v", err)
		return nil
	}
	if err := e.bus.WriteFrame(ctx, out); err != nil {
		e.metrics.SendError(component)
		return fmt.Errorf("transmit: %w", err)
	}
	e.sent++
	e.metrics.FrameSent(component)
	e.log.Trace("speed=%.0f FL=%.1f FR=%.1f RL=%.1f RR=%.1f", ed.SpeedKph, ws.FL, ws.FR, ws.RL, ws.RR)
	return nil
}
