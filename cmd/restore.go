// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/trackside/pkg/record"
	"github.com/Thermoquad/trackside/pkg/servicemode"
)

var restoreForce bool

var restoreCmd = &cobra.Command{
	Use:   "restore <record.yaml>",
	Short: "Write a saved dump back to the decoder on the programming track",
	Long: `Load a record written by dump --save and write every known value back.
CV7 and CV8 are never written. The decoder class must match the record; an
address mismatch needs --force.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().BoolVar(&restoreForce, "force", false, "Restore even if the decoder address differs from the record")
}

func runRestore(cmd *cobra.Command, args []string) error {
	rec, err := record.Load(args[0])
	if err != nil {
		return err
	}
	entries := rec.Writable()
	pterm.Info.Printfln("Record: %s #%d (%s), %d CVs to write", rec.Class, rec.Address, rec.Manufacturer, len(entries))
	if len(entries) == 0 {
		return fmt.Errorf("record %s holds no writable values", args[0])
	}

	return withSession(false, func(ctx context.Context, s *servicemode.Session) error {
		id, err := s.Identify(ctx)
		if err != nil {
			return err
		}

		class := record.ClassLoco
		if id.Accessory() {
			class = record.ClassAccessory
		}
		if class != rec.Class {
			return fmt.Errorf("record is for a %s decoder, track has a %s decoder", rec.Class, class)
		}
		if (!id.AddressKnown || id.Address != rec.Address) && !restoreForce {
			return fmt.Errorf("decoder address %s does not match record address %d (use --force)", addressText(id), rec.Address)
		}

		bar, _ := pterm.DefaultProgressbar.WithTotal(len(entries)).WithTitle("Restoring").Start()
		var failed []int
		for _, e := range entries {
			err := s.Write(ctx, e.CV, uint8(*e.Value))
			bar.Increment()
			if err == nil {
				continue
			}
			if servicemode.IsFatal(err) {
				bar.Stop()
				return err
			}
			logger.Warn().Err(err).Int("cv", e.CV).Msg("restore write failed")
			failed = append(failed, e.CV)
		}
		bar.Stop()

		if len(failed) > 0 {
			pterm.Warning.Printfln("%d CV(s) not confirmed: %v", len(failed), failed)
			return nil
		}
		pterm.Success.Printfln("Restored %d CVs", len(entries))
		return nil
	})
}

func addressText(id servicemode.Identity) string {
	if !id.AddressKnown {
		return "unknown"
	}
	return fmt.Sprintf("%d", id.Address)
}
