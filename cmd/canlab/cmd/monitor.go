package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.einride.tech/can"

	"canlab/config"
	"canlab/utils"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [powertrain|diagnostic]",
	Short: "Print frames on a bus, decoded with the signal database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		segment := config.BusPowertrain
		if len(args) == 1 {
			segment = args[0]
		}
		if segment != config.BusPowertrain && segment != config.BusDiagnostic {
			return fmt.Errorf("unknown segment %q", segment)
		}
		raw, _ := cmd.Flags().GetBool("raw")

		cmap, err := signalDatabase()
		if err != nil {
			return err
		}
		bus, err := openBus(ctx, segment)
		if err != nil {
			return err
		}
		defer bus.Close()

		logger.Info("monitoring %s", describeSegment(segment))
		out := cmd.OutOrStdout()
		for {
			f, err := bus.ReadFrame(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			printFrame(out, cmap, f, raw)
		}
	},
}

func init() {
	monitorCmd.Flags().Bool("raw", false, "hex only, skip signal decoding")
	rootCmd.AddCommand(monitorCmd)
}

var (
	idColor   = color.New(color.FgGreen).SprintfFunc()
	nameColor = color.New(color.FgHiBlue).SprintfFunc()
	errColor  = color.New(color.FgRed).SprintfFunc()
)

func printFrame(w io.Writer, cmap *utils.CANMap, f can.Frame, raw bool) {
	data := utils.Payload(f)
	var hexView strings.Builder
	for i, b := range data {
		if i > 0 {
			hexView.WriteByte(' ')
		}
		fmt.Fprintf(&hexView, "%02X", b)
	}

	line := fmt.Sprintf("%s %s || %d || %-23s",
		time.Now().Format("15:04:05.000"), idColor("0x%03X", f.ID), len(data), hexView.String())
	if raw || !cmap.Has(f.ID) {
		fmt.Fprintln(w, line)
		return
	}

	fd, _ := cmap.FrameByID(f.ID)
	values, err := cmap.DecodeEinrideFrame(f)
	if err != nil {
		fmt.Fprintf(w, "%s || %s\n", line, errColor("%v", err))
		return
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%g", name, values[name]))
	}
	fmt.Fprintf(w, "%s || %s %s\n", line, nameColor("%s", fd.Name), strings.Join(parts, " "))
}
