package obd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.einride.tech/can"

	"canlab/telemetry"
	"canlab/utils"
)

const component = "obd"

type ResponderConfig struct {
	RequestID    uint32
	ResponseID   uint32
	RecvTimeout  time.Duration
	InjectFaults bool
}

func DefaultResponderConfig() ResponderConfig {
	return ResponderConfig{
		RequestID:   utils.OBDRequestID,
		ResponseID:  utils.OBDResponseID,
		RecvTimeout: 100 * time.Millisecond,
	}
}

// Responder is the diagnostic ECU. It answers requests on one bus segment and
// tracks live values from the EngineData broadcast on that same segment.
type Responder struct {
	cfg     ResponderConfig
	session *Session
	cmap    *utils.CANMap
	bus     utils.CANBus
	log     *utils.Logger
	pause   utils.PauseFlag
	metrics *telemetry.Metrics

	answered uint64
}

type Option func(*Responder)

func WithPause(p utils.PauseFlag) Option { return func(r *Responder) { r.pause = p } }

func WithMetrics(m *telemetry.Metrics) Option { return func(r *Responder) { r.metrics = m } }

func NewResponder(cfg ResponderConfig, s *Session, cmap *utils.CANMap, bus utils.CANBus, log *utils.Logger, opts ...Option) (*Responder, error) {
	if cfg.RequestID > utils.MaxStandardID || cfg.ResponseID > utils.MaxStandardID {
		return nil, fmt.Errorf("obd: identifiers must be 11-bit: req=0x%X resp=0x%X", cfg.RequestID, cfg.ResponseID)
	}
	if cfg.RecvTimeout <= 0 {
		return nil, fmt.Errorf("obd: invalid receive timeout %v", cfg.RecvTimeout)
	}
	r := &Responder{
		cfg:     cfg,
		session: s,
		cmap:    cmap,
		bus:     bus,
		log:     log.With(component),
		pause:   utils.NeverPaused,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func (r *Responder) Session() *Session { return r.session }

func (r *Responder) Run(ctx context.Context) error {
	r.log.Info("OBD responder on %s: req=0x%03X resp=0x%03X dtcs=%v",
		r.bus.Name(), r.cfg.RequestID, r.cfg.ResponseID, r.session.Codes())

	paused := false
	for {
		if err := ctx.Err(); err != nil {
			r.log.Info("OBD responder stopped. responses=%d", r.answered)
			return err
		}
		if p := r.pause.Paused(); p != paused {
			paused = p
			r.metrics.SetPaused(component, p)
			r.log.Info("paused=%v", p)
		}

		frame, err := utils.RecvTimeout(ctx, r.bus, r.cfg.RecvTimeout)
		switch {
		case errors.Is(err, utils.ErrTimeout):
			continue
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("obd: receive: %w", err)
		}
		if paused {
			continue
		}
		if err := r.Process(ctx, frame); err != nil {
			r.log.Error("%v", err)
		}
	}
}

// Process applies one received frame. Only transport failures are returned;
// unusable requests are dropped.
func (r *Responder) Process(ctx context.Context, f can.Frame) error {
	switch f.ID {
	case utils.EngineDataID:
		r.observeEngine(f)
		return nil
	case r.cfg.RequestID:
	default:
		return nil
	}

	req := utils.Payload(f)
	mode := byte(0)
	if len(req) > 1 {
		mode = req[1]
	}
	resp, err := Handle(r.session, req)
	if err != nil {
		r.metrics.OBDRequest(mode, outcome(err))
		r.log.Trace("dropping request % X: %v", req, err)
		return nil
	}

	out, err := utils.NewFrame(r.cfg.ResponseID, resp)
	if err != nil {
		return fmt.Errorf("build response: %w", err)
	}
	if err := r.bus.WriteFrame(ctx, out); err != nil {
		r.metrics.SendError(component)
		return fmt.Errorf("send response: %w", err)
	}
	r.answered++
	r.metrics.OBDRequest(mode, "ok")
	r.metrics.FrameSent(component)
	r.log.Debug("mode 0x%02X -> % X", mode, resp)
	return nil
}

func (r *Responder) observeEngine(f can.Frame) {
	ed, err := r.cmap.DecodeEngineData(f)
	if err != nil {
		r.metrics.DecodeError(component)
		r.log.Trace("ignoring engine frame: %v", err)
		return
	}
	r.session.SetLive(Live{RPM: ed.RPM, SpeedKph: ed.SpeedKph, CoolantC: ed.CoolantC})
	if !r.cfg.InjectFaults {
		return
	}
	for _, code := range InjectFaults(r.session) {
		r.log.Warn("stored %s (rpm=%.0f speed=%.0f coolant=%.0f)", code, ed.RPM, ed.SpeedKph, ed.CoolantC)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedPID):
		return "unsupported_pid"
	case errors.Is(err, ErrUnknownMode):
		return "unknown_mode"
	default:
		return "malformed"
	}
}
