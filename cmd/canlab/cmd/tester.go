package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"canlab/config"
	"canlab/obd"
	"canlab/utils"
)

var testerCmd = &cobra.Command{
	Use:   "tester",
	Short: "Poll RPM, speed and coolant over OBD from the diagnostic bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		every, _ := cmd.Flags().GetDuration("interval")
		bus, err := openBus(ctx, config.BusDiagnostic)
		if err != nil {
			return err
		}
		defer bus.Close()
		logger.Info("OBD tester on %s", describeSegment(config.BusDiagnostic))
		return pollTester(ctx, bus, every)
	},
}

var clearDTCCmd = &cobra.Command{
	Use:   "clear-dtc",
	Short: "Send a mode 04 request and wait for the confirmation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bus, err := openBus(ctx, config.BusDiagnostic)
		if err != nil {
			return err
		}
		defer bus.Close()
		c := obd.NewClient(bus, cfg.OBD.RequestID, cfg.OBD.ResponseID, time.Second)
		if err := c.ClearDTCs(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("ECU confirmed: DTCs cleared"))
		return nil
	},
}

func init() {
	testerCmd.Flags().Duration("interval", time.Second, "poll period")
	rootCmd.AddCommand(testerCmd, clearDTCCmd)
}

// pollTester queries the live PIDs every period and the stored DTCs every
// fifth cycle.
func pollTester(ctx context.Context, bus utils.CANBus, every time.Duration) error {
	c := obd.NewClient(bus, cfg.OBD.RequestID, cfg.OBD.ResponseID, 500*time.Millisecond)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for cycle := 1; ; cycle++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		rpm := queryString(ctx, c, obd.PIDRPM, "%.0f rpm")
		speed := queryString(ctx, c, obd.PIDSpeed, "%.0f km/h")
		coolant := queryString(ctx, c, obd.PIDCoolant, "%.0f degC")
		logger.Info("RPM: %10s | Speed: %10s | Coolant: %9s", rpm, speed, coolant)

		if cycle%5 != 0 {
			continue
		}
		codes, err := c.ReadDTCs(ctx)
		switch {
		case err != nil:
			logger.Warn("DTCs: %v", err)
		case len(codes) == 0:
			logger.Info("  DTCs: none")
		default:
			logger.Info("  DTCs: %s", strings.Join(codes, ", "))
		}
	}
}

func queryString(ctx context.Context, c *obd.Client, pid byte, format string) string {
	v, err := c.QueryPID(ctx, pid)
	if err != nil {
		return "No resp"
	}
	return fmt.Sprintf(format, v)
}
