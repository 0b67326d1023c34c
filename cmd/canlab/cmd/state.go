package cmd

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"canlab/driver"
	"canlab/utils"
)

var stateCmd = &cobra.Command{
	Use:   "state [pause|run]",
	Short: "Pause or resume every component through the shared pause file",
	Long: `state writes the pause file named by state.pause_file. Without an argument
it asks interactively.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{utils.StatePause, utils.StateRun},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.State.PauseFile == "" {
			return errors.New("state.pause_file is not configured")
		}
		choice := ""
		if len(args) == 1 {
			choice = args[0]
		} else {
			prompt := promptui.Select{
				Label:    "Simulation state",
				HideHelp: true,
				Items:    []string{utils.StateRun, utils.StatePause},
			}
			var err error
			if _, choice, err = prompt.Run(); err != nil {
				return fmt.Errorf("prompt: %w", err)
			}
		}
		switch choice {
		case utils.StatePause, utils.StateRun:
		default:
			return fmt.Errorf("state must be %q or %q", utils.StatePause, utils.StateRun)
		}
		if err := utils.WritePauseState(cfg.State.PauseFile, choice == utils.StatePause); err != nil {
			return err
		}
		logger.Info("%s -> %s", cfg.State.PauseFile, choice)
		return nil
	},
}

var pedalsCmd = &cobra.Command{
	Use:   "pedals",
	Short: "Write throttle and brake to the driver file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.State.DriverFile == "" {
			return errors.New("state.driver_file is not configured")
		}
		throttle, _ := cmd.Flags().GetFloat64("throttle")
		brake, _ := cmd.Flags().GetFloat64("brake")
		p := driver.Pedals{Throttle: throttle, Brake: brake}.Clamped()
		if err := driver.WriteFile(cfg.State.DriverFile, p); err != nil {
			return err
		}
		logger.Info("%s -> throttle=%.0f%% brake=%.0f%%", cfg.State.DriverFile, p.Throttle, p.Brake)
		return nil
	},
}

func init() {
	pedalsCmd.Flags().Float64("throttle", 0, "throttle %")
	pedalsCmd.Flags().Float64("brake", 0, "brake %")
	stateCmd.AddCommand(pedalsCmd)
	rootCmd.AddCommand(stateCmd)
}
