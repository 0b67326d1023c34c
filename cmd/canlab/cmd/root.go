package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"canlab/config"
	"canlab/utils"
)

var rootCmd = &cobra.Command{
	Use:           "canlab",
	Short:         "Virtual vehicle CAN lab",
	Long:          `Engine, gearbox, ABS and OBD ECUs plus a gateway, talking over SocketCAN or an in-process bus.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

// Execute runs the command line. It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

const (
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagTransport = "transport"
	flagPT        = "pt"
	flagDiag      = "diag"
)

var (
	cfg    *config.Config
	logger *utils.Logger
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP(flagConfig, "c", "", "YAML config file (defaults when empty)")
	pf.StringP(flagLogLevel, "l", "", "log level: trace, debug, info, warn, error")
	pf.String(flagTransport, "", "bus transport: socketcan or memory")
	pf.String(flagPT, "", "powertrain interface (default vcan0)")
	pf.String(flagDiag, "", "diagnostic interface (default vcan1)")
}

func setup(cmd *cobra.Command) error {
	pf := cmd.Flags()
	path, _ := pf.GetString(flagConfig)
	c, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if v, _ := pf.GetString(flagLogLevel); v != "" {
		c.Log.Level = v
	}
	if v, _ := pf.GetString(flagTransport); v != "" {
		c.Buses.Transport = v
	}
	if v, _ := pf.GetString(flagPT); v != "" {
		c.Buses.Powertrain = v
	}
	if v, _ := pf.GetString(flagDiag); v != "" {
		c.Buses.Diagnostic = v
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg = c

	level := utils.ParseLevel(c.Log.Level)
	if c.Log.File != "" {
		logger, err = utils.NewFileLogger(c.Log.File, level, true)
		if err != nil {
			return err
		}
	} else {
		logger = utils.NewStdoutLogger(level)
	}
	return nil
}
