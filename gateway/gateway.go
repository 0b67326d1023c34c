package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.einride.tech/can"

	"canlab/telemetry"
	"canlab/utils"
)

const component = "gateway"

// Segment names one side of the gateway.
type Segment struct {
	Name string
	Bus  utils.CANBus
}

// Gateway relays allow-listed frames between two segments unmodified. A
// single loop relays everything already queued on both segments, and blocks
// on one segment at a time only when both are idle.
type Gateway struct {
	segs    [2]Segment
	rules   *Rules
	poll    time.Duration
	log     *utils.Logger
	pause   utils.PauseFlag
	metrics *telemetry.Metrics

	forwarded uint64
	failed    uint64
}

type Option func(*Gateway)

func WithPause(p utils.PauseFlag) Option { return func(g *Gateway) { g.pause = p } }

func WithMetrics(m *telemetry.Metrics) Option { return func(g *Gateway) { g.metrics = m } }

// New wires a gateway between a and b. poll bounds the idle wait, which is
// also the worst-case delay for a frame arriving on the other segment.
func New(a, b Segment, rules *Rules, poll time.Duration, log *utils.Logger, opts ...Option) (*Gateway, error) {
	if a.Name == b.Name {
		return nil, fmt.Errorf("gateway: both segments are named %q", a.Name)
	}
	if poll <= 0 {
		return nil, fmt.Errorf("gateway: invalid poll interval %v", poll)
	}
	g := &Gateway{
		segs:  [2]Segment{a, b},
		rules: rules,
		poll:  poll,
		log:   log.With(component),
		pause: utils.NeverPaused,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Stats returns the number of frames forwarded and the number of sends the
// destination rejected.
func (g *Gateway) Stats() (forwarded, failed uint64) { return g.forwarded, g.failed }

func (g *Gateway) Run(ctx context.Context) error {
	g.log.Info("Gateway %s <-> %s, rules: %s", g.segs[0].Name, g.segs[1].Name, g.rules)

	paused := false
	turn := 0
	for {
		if err := ctx.Err(); err != nil {
			g.log.Info("Gateway stopped. forwarded=%d failed=%d", g.forwarded, g.failed)
			return err
		}
		if p := g.pause.Paused(); p != paused {
			paused = p
			g.metrics.SetPaused(component, p)
			g.log.Info("paused=%v", p)
		}

		moved, err := g.drain(ctx, paused)
		if err != nil {
			return err
		}
		if moved > 0 {
			continue
		}
		if err := g.pollOnce(ctx, turn, paused); err != nil {
			return err
		}
		turn = 1 - turn
	}
}

// drain relays every frame already queued on either segment and returns how
// many frames it read.
func (g *Gateway) drain(ctx context.Context, paused bool) (int, error) {
	n := 0
	for _, src := range g.segs {
		err := utils.Drain(ctx, src.Bus, func(f can.Frame) {
			n++
			if !paused {
				g.Forward(ctx, src.Name, f)
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return n, nil
			}
			return n, fmt.Errorf("gateway: receive on %s: %w", src.Name, err)
		}
	}
	return n, nil
}

// pollOnce waits up to the poll interval for a frame on segment i and relays
// it to the other side when a rule allows it.
func (g *Gateway) pollOnce(ctx context.Context, i int, paused bool) error {
	src := g.segs[i]
	f, err := utils.RecvTimeout(ctx, src.Bus, g.poll)
	switch {
	case errors.Is(err, utils.ErrTimeout):
		return nil
	case err != nil:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("gateway: receive on %s: %w", src.Name, err)
	}
	if paused {
		return nil
	}
	g.Forward(ctx, src.Name, f)
	return nil
}

// Forward relays f, seen on segment from, if the rules allow it. Send
// failures are logged and counted; it reports whether the frame went out.
func (g *Gateway) Forward(ctx context.Context, from string, f can.Frame) bool {
	to, ok := g.rules.Route(from, f.ID)
	if !ok {
		return false
	}
	dst := g.segment(to)
	if dst == nil {
		return false
	}
	direction := from + "->" + to
	if err := dst.Bus.WriteFrame(ctx, f); err != nil {
		g.failed++
		g.metrics.ForwardError(direction)
		g.log.Warn("%s: failed to send 0x%03X: %v", direction, f.ID, err)
		return false
	}
	g.forwarded++
	g.metrics.Forwarded(direction)
	g.log.Debug("%s: ID=0x%03X data=% X", direction, f.ID, utils.Payload(f))
	return true
}

func (g *Gateway) segment(name string) *Segment {
	for i := range g.segs {
		if g.segs[i].Name == name {
			return &g.segs[i]
		}
	}
	return nil
}
