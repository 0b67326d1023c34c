package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"canlab/abs"
	"canlab/config"
	"canlab/driver"
	"canlab/engine"
	"canlab/gateway"
	"canlab/gearbox"
	"canlab/obd"
	"canlab/telemetry"
	"canlab/utils"
)

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Run the engine ECU on the powertrain bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		throttle, _ := cmd.Flags().GetFloat64("throttle")
		brake, _ := cmd.Flags().GetFloat64("brake")

		cmap, err := signalDatabase()
		if err != nil {
			return err
		}
		bus, err := openBus(ctx, config.BusPowertrain)
		if err != nil {
			return err
		}
		defer bus.Close()
		in, err := driverInput(throttle, brake)
		if err != nil {
			return err
		}
		return runEngine(ctx, cmap, bus, in, startMetrics(ctx))
	},
}

var gearboxCmd = &cobra.Command{
	Use:   "gearbox",
	Short: "Run the transmission ECU on the powertrain bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cmap, err := signalDatabase()
		if err != nil {
			return err
		}
		bus, err := openBus(ctx, config.BusPowertrain)
		if err != nil {
			return err
		}
		defer bus.Close()
		return runGearbox(ctx, cmap, bus, startMetrics(ctx))
	},
}

var absCmd = &cobra.Command{
	Use:   "abs",
	Short: "Run the wheel-speed ECU on the powertrain bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cmap, err := signalDatabase()
		if err != nil {
			return err
		}
		bus, err := openBus(ctx, config.BusPowertrain)
		if err != nil {
			return err
		}
		defer bus.Close()
		return runABS(ctx, cmap, bus, startMetrics(ctx))
	},
}

var obdCmd = &cobra.Command{
	Use:   "obd",
	Short: "Run the OBD responder on the powertrain bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if v, _ := cmd.Flags().GetBool("inject-faults"); v {
			cfg.OBD.InjectFaults = true
		}
		cmap, err := signalDatabase()
		if err != nil {
			return err
		}
		bus, err := openBus(ctx, config.BusPowertrain)
		if err != nil {
			return err
		}
		defer bus.Close()
		return runOBD(ctx, cmap, bus, startMetrics(ctx))
	},
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Relay allow-listed frames between the powertrain and diagnostic buses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pt, err := openBus(ctx, config.BusPowertrain)
		if err != nil {
			return err
		}
		defer pt.Close()
		diag, err := openBus(ctx, config.BusDiagnostic)
		if err != nil {
			return err
		}
		defer diag.Close()
		return runGateway(ctx, pt, diag, startMetrics(ctx))
	},
}

func init() {
	engineCmd.Flags().Float64("throttle", 0, "fixed throttle % when no driver file or scenario is configured")
	engineCmd.Flags().Float64("brake", 0, "fixed brake % when no driver file or scenario is configured")
	obdCmd.Flags().Bool("inject-faults", false, "store DTCs implied by live engine values")

	rootCmd.AddCommand(engineCmd, gearboxCmd, absCmd, obdCmd, gatewayCmd)
}

func runEngine(ctx context.Context, cmap *utils.CANMap, bus utils.CANBus, in driver.Input, m *telemetry.Metrics) error {
	ecu, err := engine.NewECU(engine.ConfigFrom(cfg.Engine), cmap, bus, in, logger,
		engine.WithPause(pauseFlag()), engine.WithMetrics(m))
	if err != nil {
		return err
	}
	return ecu.Run(ctx)
}

func runGearbox(ctx context.Context, cmap *utils.CANMap, bus utils.CANBus, m *telemetry.Metrics) error {
	tcu, err := gearbox.NewTCU(gearbox.Config{
		Mode:       cfg.Gearbox.Mode,
		Dt:         cfg.Gearbox.Dt,
		IdleRPM:    cfg.Engine.IdleRPM,
		RedlineRPM: cfg.Engine.RedlineRPM,
		OilStartC:  cfg.Engine.CoolantStartC,
	}, cmap, bus, logger, gearbox.WithPause(pauseFlag()), gearbox.WithMetrics(m))
	if err != nil {
		return err
	}
	return tcu.Run(ctx)
}

func runABS(ctx context.Context, cmap *utils.CANMap, bus utils.CANBus, m *telemetry.Metrics) error {
	ecu, err := abs.NewECU(cmap, bus, cfg.Buses.RecvTimeout, logger, abs.WithPause(pauseFlag()), abs.WithMetrics(m))
	if err != nil {
		return err
	}
	return ecu.Run(ctx)
}

func runOBD(ctx context.Context, cmap *utils.CANMap, bus utils.CANBus, m *telemetry.Metrics) error {
	session, err := obd.NewSession(cfg.OBD.InitialDTCs...)
	if err != nil {
		return err
	}
	r, err := obd.NewResponder(obd.ResponderConfig{
		RequestID:    cfg.OBD.RequestID,
		ResponseID:   cfg.OBD.ResponseID,
		RecvTimeout:  cfg.Buses.RecvTimeout,
		InjectFaults: cfg.OBD.InjectFaults,
	}, session, cmap, bus, logger, obd.WithPause(pauseFlag()), obd.WithMetrics(m))
	if err != nil {
		return err
	}
	return r.Run(ctx)
}

// gatewayIdleWait caps how long the gateway blocks on one idle segment.
const gatewayIdleWait = 10 * time.Millisecond

func runGateway(ctx context.Context, pt, diag utils.CANBus, m *telemetry.Metrics) error {
	rules, err := gateway.NewRules(cfg.Gateway.Rules)
	if err != nil {
		return err
	}
	poll := cfg.Buses.RecvTimeout
	if poll > gatewayIdleWait {
		poll = gatewayIdleWait
	}
	gw, err := gateway.New(
		gateway.Segment{Name: config.BusPowertrain, Bus: pt},
		gateway.Segment{Name: config.BusDiagnostic, Bus: diag},
		rules, poll, logger,
		gateway.WithPause(pauseFlag()), gateway.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	return gw.Run(ctx)
}
