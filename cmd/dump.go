// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/trackside/pkg/record"
	"github.com/Thermoquad/trackside/pkg/servicemode"
)

const (
	defaultDumpBudget   = 10 * time.Minute
	defaultDumpMinKnown = 1
)

var (
	dumpSave     bool
	dumpDir      string
	dumpBudget   time.Duration
	dumpMinKnown int
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Read the CV list matching the decoder on the programming track",
	Long: `Identify the decoder and read a curated CV list selected by its class:
loco decoders on the factory address get a short list, other loco decoders
the full motor and speed table list, accessory decoders their output and
servo timing CVs.

CVs that cannot be confirmed are shown as unknown. The dump fails when the
time budget runs out or fewer than --min-known CVs were read.

With --save the result is written as a YAML record that restore can write
back later.`,
	Args: cobra.NoArgs,
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().BoolVar(&dumpSave, "save", false, "Save the dump as a record")
	dumpCmd.Flags().StringVar(&dumpDir, "dir", "", "Records directory (default from config: records)")
	dumpCmd.Flags().DurationVar(&dumpBudget, "budget", defaultDumpBudget, "Time allowed for the whole dump (0 = no limit)")
	dumpCmd.Flags().IntVar(&dumpMinKnown, "min-known", defaultDumpMinKnown, "Minimum number of CVs that must be read")
}

func runDump(cmd *cobra.Command, args []string) error {
	dir := settings.RecordsDir
	if cmd.Flags().Changed("dir") {
		dir = dumpDir
	}

	return withSession(false, func(ctx context.Context, s *servicemode.Session) error {
		id, err := s.Identify(ctx)
		if err != nil {
			return err
		}
		printIdentity(id)

		list := servicemode.SelectCVList(id)
		spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Reading %d CVs...", len(list)))
		result, err := s.Dump(ctx, id, servicemode.DumpOptions{
			Budget:   dumpBudget,
			MinKnown: dumpMinKnown,
		})
		if err != nil {
			spinner.Fail("Dump incomplete")
			if result != nil && len(result.Readings) > 0 {
				printDump(result)
			}
			return err
		}
		spinner.Success(fmt.Sprintf("%d CVs, %v, %v/CV",
			len(result.Readings),
			result.Elapsed.Round(time.Millisecond),
			result.AveragePerCV.Round(time.Millisecond)))
		printDump(result)

		if !dumpSave {
			return nil
		}
		rec := record.New(id, s.ID, result, time.Now())
		path, err := rec.Save(dir)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Saved %s (%d of %d CVs known)", path, rec.Known(), len(rec.CVs))
		return nil
	})
}

// printDump renders the readings in list order
func printDump(result *servicemode.DumpResult) {
	pterm.DefaultSection.Println("CVs")

	data := pterm.TableData{{"CV", "Value", "Hex", "Binary"}}
	for _, r := range result.Readings {
		if !r.Value.Known {
			data = append(data, []string{fmt.Sprintf("%d", r.CV), "?", "", ""})
			continue
		}
		b := r.Value.Byte
		data = append(data, []string{
			fmt.Sprintf("%d", r.CV),
			fmt.Sprintf("%d", b),
			fmt.Sprintf("0x%02X", b),
			fmt.Sprintf("%08b", b),
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	if result.Timing != nil {
		pterm.Info.Println(result.Timing.String())
	}
	if unknown := len(result.Readings) - result.Known; unknown > 0 {
		pterm.Warning.Printfln("%d CV(s) could not be read", unknown)
	}
}
