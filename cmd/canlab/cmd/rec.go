package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"canlab/config"
	"canlab/journal"
)

var recCmd = &cobra.Command{
	Use:   "rec <file>",
	Short: "Journal every frame on the powertrain and diagnostic buses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		j, err := journal.Open(args[0])
		if err != nil {
			return err
		}
		defer j.Close()

		segments, _ := cmd.Flags().GetStringSlice("bus")
		done := make(chan error, len(segments))
		for _, seg := range segments {
			if seg != config.BusPowertrain && seg != config.BusDiagnostic {
				return fmt.Errorf("unknown segment %q", seg)
			}
			bus, err := openBus(ctx, seg)
			if err != nil {
				return err
			}
			defer bus.Close()
			go func() { done <- j.Record(ctx, bus, logger) }()
		}
		var first error
		for range segments {
			if err := <-done; err != nil && first == nil && ctx.Err() == nil {
				first = err
			}
		}
		return first
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <file> [bus]",
	Short: "Print frames stored by rec",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := journal.Open(args[0])
		if err != nil {
			return err
		}
		defer j.Close()

		buses := args[1:]
		if len(buses) == 0 {
			if buses, err = j.Buses(); err != nil {
				return err
			}
		}
		cmap, err := signalDatabase()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, b := range buses {
			n, _ := j.Count(b)
			fmt.Fprintf(out, "== %s (%d frames)\n", b, n)
			err := j.Each(b, func(r journal.Record) error {
				fmt.Fprintf(out, "%6d %s ", r.Seq, r.Time.Format(time.StampMicro))
				printFrame(out, cmap, r.Frame, false)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	recCmd.Flags().StringSlice("bus", []string{config.BusPowertrain, config.BusDiagnostic}, "segments to record")
	recCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(recCmd)
}
