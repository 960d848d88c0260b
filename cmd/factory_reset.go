// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/trackside/pkg/servicemode"
)

var factoryResetYes bool

var factoryResetCmd = &cobra.Command{
	Use:   "factory-reset",
	Short: "Restore the factory defaults of the decoder on the programming track",
	Long: `Write the reset sequence 0, 8, 33 to CV8 and power cycle the programming
track so the decoder reloads its defaults. CV8 writes are not verified.`,
	Args: cobra.NoArgs,
	RunE: runFactoryReset,
}

func init() {
	rootCmd.AddCommand(factoryResetCmd)
	factoryResetCmd.Flags().BoolVarP(&factoryResetYes, "yes", "y", false, "Do not ask for confirmation")
}

func runFactoryReset(cmd *cobra.Command, args []string) error {
	if !factoryResetYes {
		ok, _ := pterm.DefaultInteractiveConfirm.Show("Reset the decoder to factory settings?")
		if !ok {
			pterm.Info.Println("Cancelled")
			return nil
		}
	}

	return withSession(true, func(ctx context.Context, s *servicemode.Session) error {
		spinner, _ := pterm.DefaultSpinner.Start("Resetting to factory settings...")
		if err := s.FactoryReset(ctx); err != nil {
			spinner.Fail("Factory reset failed")
			return err
		}
		spinner.Success("Factory reset done")
		return nil
	})
}
