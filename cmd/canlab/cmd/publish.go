package cmd

import (
	"github.com/spf13/cobra"

	"canlab/config"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish decoded diagnostic-bus state to MQTT",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cmap, err := signalDatabase()
		if err != nil {
			return err
		}
		bus, err := openBus(ctx, config.BusDiagnostic)
		if err != nil {
			return err
		}
		defer bus.Close()
		return runPublish(ctx, cmap, bus, startMetrics(ctx))
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
