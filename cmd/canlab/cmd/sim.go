package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.einride.tech/can"
	"golang.org/x/sync/errgroup"

	"canlab/driver"
	"canlab/journal"
	"canlab/telemetry"
	"canlab/utils"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run every ECU and the gateway in one process on in-memory buses",
	Long: `sim wires the engine, gearbox, ABS and OBD ECUs to an in-memory powertrain
bus and bridges it to an in-memory diagnostic bus through the gateway. A
periodic OBD tester on the diagnostic side prints live values.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		throttle, _ := flags.GetFloat64("throttle")
		brake, _ := flags.GetFloat64("brake")
		duration, _ := flags.GetDuration("duration")
		testerEvery, _ := flags.GetDuration("tester")
		record, _ := flags.GetString("record")
		publish, _ := flags.GetBool("publish")

		ctx := cmd.Context()
		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}
		err := runSim(ctx, simOptions{
			throttle: throttle, brake: brake,
			testerEvery: testerEvery, record: record, publish: publish,
		})
		if errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	},
}

func init() {
	f := simCmd.Flags()
	f.Float64("throttle", 0, "fixed throttle % when no driver file or scenario is configured")
	f.Float64("brake", 0, "fixed brake % when no driver file or scenario is configured")
	f.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	f.Duration("tester", 2*time.Second, "OBD tester poll period on the diagnostic bus (0 disables)")
	f.String("record", "", "journal both buses to this bbolt file")
	f.Bool("publish", false, "publish diagnostic-bus state over MQTT")
	rootCmd.AddCommand(simCmd)
}

type simOptions struct {
	throttle, brake float64
	testerEvery     time.Duration
	record          string
	publish         bool
}

func runSim(ctx context.Context, opts simOptions) error {
	s, err := newSimulation(opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Run(ctx)
}

// simulation owns the in-memory buses and every resource the sim goroutines
// share. Anything that can fail to open is opened before Run starts them.
type simulation struct {
	opts      simOptions
	cmap      *utils.CANMap
	in        driver.Input
	pt, diag  *utils.MemoryBus
	journal   *journal.Journal
	pub       *telemetry.MQTTPublisher
	endpoints []utils.CANBus
}

func newSimulation(opts simOptions) (*simulation, error) {
	cmap, err := signalDatabase()
	if err != nil {
		return nil, err
	}
	in, err := driverInput(opts.throttle, opts.brake)
	if err != nil {
		return nil, err
	}
	s := &simulation{
		opts: opts,
		cmap: cmap,
		in:   in,
		pt:   utils.NewMemoryBus(cfg.Buses.Powertrain),
		diag: utils.NewMemoryBus(cfg.Buses.Diagnostic),
	}
	if opts.record != "" {
		if s.journal, err = journal.Open(opts.record); err != nil {
			return nil, err
		}
	}
	if opts.publish {
		if s.pub, err = dialMQTT(); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *simulation) open(b *utils.MemoryBus) utils.CANBus {
	ep := b.Open()
	s.endpoints = append(s.endpoints, ep)
	return ep
}

// Close releases the endpoints, the journal and the MQTT session. Run must
// have returned.
func (s *simulation) Close() {
	for _, ep := range s.endpoints {
		ep.Close()
	}
	s.endpoints = nil
	if s.journal != nil {
		s.journal.Close()
		s.journal = nil
	}
	if s.pub != nil {
		s.pub.Close()
		s.pub = nil
	}
}

func (s *simulation) Run(ctx context.Context) error {
	m := startMetrics(ctx)
	pt, diag := s.pt, s.diag
	for _, b := range []*utils.MemoryBus{pt, diag} {
		b.OnDrop(func(bus string, _ can.Frame) { m.FrameDropped(bus) })
	}

	logger.Info("sim: %s <-> %s in memory", pt.Name(), diag.Name())
	engineBus, gearboxBus, absBus, obdBus := s.open(pt), s.open(pt), s.open(pt), s.open(pt)
	gwPT, gwDiag := s.open(pt), s.open(diag)
	var testerBus, recPT, recDiag, pubBus utils.CANBus
	if s.opts.testerEvery > 0 {
		testerBus = s.open(diag)
	}
	if s.journal != nil {
		recPT, recDiag = s.open(pt), s.open(diag)
	}
	if s.pub != nil {
		pubBus = s.open(diag)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runEngine(ctx, s.cmap, engineBus, s.in, m) })
	g.Go(func() error { return runGearbox(ctx, s.cmap, gearboxBus, m) })
	g.Go(func() error { return runABS(ctx, s.cmap, absBus, m) })
	g.Go(func() error { return runOBD(ctx, s.cmap, obdBus, m) })
	g.Go(func() error { return runGateway(ctx, gwPT, gwDiag, m) })
	if testerBus != nil {
		g.Go(func() error { return pollTester(ctx, testerBus, s.opts.testerEvery) })
	}
	if s.journal != nil {
		g.Go(func() error { return s.journal.Record(ctx, recPT, logger) })
		g.Go(func() error { return s.journal.Record(ctx, recDiag, logger) })
	}
	if pubBus != nil {
		g.Go(func() error { return runFeed(ctx, s.cmap, pubBus, s.pub, m) })
	}

	err := g.Wait()
	logger.Info("sim stopped: dropped %s=%d %s=%d", pt.Name(), pt.Dropped(), diag.Name(), diag.Dropped())
	return err
}

func dialMQTT() (*telemetry.MQTTPublisher, error) {
	return telemetry.DialMQTT(telemetry.MQTTConfig{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Topic:    cfg.MQTT.Topic,
		Interval: cfg.MQTT.Interval,
	}, logger)
}

func runPublish(ctx context.Context, cmap *utils.CANMap, bus utils.CANBus, m *telemetry.Metrics) error {
	pub, err := dialMQTT()
	if err != nil {
		return err
	}
	defer pub.Close()
	return runFeed(ctx, cmap, bus, pub, m)
}

func runFeed(ctx context.Context, cmap *utils.CANMap, bus utils.CANBus, pub telemetry.Publisher, m *telemetry.Metrics) error {
	feed, err := telemetry.NewFeed(telemetry.NewSnapshot(cmap), bus, pub, cfg.MQTT.Topic, cfg.MQTT.Interval, logger, m)
	if err != nil {
		return err
	}
	return feed.Run(ctx)
}

// describeSegment is used by commands that print which interface they use.
func describeSegment(segment string) string {
	return fmt.Sprintf("%s (%s)", segment, cfg.BusName(segment))
}
