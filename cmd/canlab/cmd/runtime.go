package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"canlab/config"
	"canlab/driver"
	"canlab/telemetry"
	"canlab/utils"
)

// signalDatabase returns the configured signal table or the built-in one.
func signalDatabase() (*utils.CANMap, error) {
	switch {
	case cfg.Signals.CSV != "":
		return utils.LoadCANMap(cfg.Signals.CSV)
	case cfg.Signals.DBC != "":
		return utils.LoadDBC(cfg.Signals.DBC)
	default:
		return utils.VehicleMap(), nil
	}
}

// openBus connects to a segment. The memory transport only exists inside a
// single process, so standalone components need SocketCAN.
func openBus(ctx context.Context, segment string) (utils.CANBus, error) {
	if cfg.Buses.Transport == config.TransportMemory {
		return nil, fmt.Errorf("transport %q is only available to the sim command", config.TransportMemory)
	}
	return utils.NewSocketCANBus(ctx, cfg.BusName(segment), logger)
}

func pauseFlag() utils.PauseFlag {
	if cfg.State.PauseFile == "" {
		return utils.NeverPaused
	}
	return utils.FilePause{Path: cfg.State.PauseFile}
}

// driverInput picks the pedal source: scenario, then driver file, then the
// fixed pedals given on the command line.
func driverInput(throttle, brake float64) (driver.Input, error) {
	switch {
	case cfg.State.Scenario != "":
		scen, err := driver.LoadScenario(cfg.State.Scenario)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", cfg.State.Scenario, err)
		}
		logger.Info("driver: scenario %q (%.0fs)", scen.Meta.Name, scen.Duration)
		return driver.NewScenarioInput(scen), nil
	case cfg.State.DriverFile != "":
		logger.Info("driver: file %s", cfg.State.DriverFile)
		return driver.FileInput{Path: cfg.State.DriverFile}, nil
	default:
		logger.Info("driver: fixed throttle=%.0f%% brake=%.0f%%", throttle, brake)
		return driver.NewStatic(throttle, brake), nil
	}
}

// startMetrics builds the process metrics and serves them when an address
// is configured.
func startMetrics(ctx context.Context) *telemetry.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := telemetry.NewMetrics(reg)
	if cfg.Metrics.Addr == "" {
		return m
	}
	go func() {
		logger.Info("metrics on http://%s/metrics", cfg.Metrics.Addr)
		if err := telemetry.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
			logger.Error("metrics server: %v", err)
		}
	}()
	return m
}
