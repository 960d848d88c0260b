// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/trackside/pkg/servicemode"
)

var setAddressCmd = &cobra.Command{
	Use:   "set-address <address>",
	Short: "Program a new address into the decoder on the programming track",
	Long: `Identify the decoder, then write the new address in the representation of
its class. Loco addresses above 127 switch the decoder to long addressing,
addresses up to 127 switch it back to short addressing. Accessory decoders
take addresses 1 to 2044.

Nothing is written when the decoder already answers on the address.`,
	Args: cobra.ExactArgs(1),
	RunE: runSetAddress,
}

func init() {
	rootCmd.AddCommand(setAddressCmd)
}

func runSetAddress(cmd *cobra.Command, args []string) error {
	addr, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid address %q", args[0])
	}

	return withSession(false, func(ctx context.Context, s *servicemode.Session) error {
		id, err := s.Identify(ctx)
		if err != nil {
			return err
		}
		printIdentity(id)

		if err := s.SetAddress(ctx, id, addr); err != nil {
			return err
		}

		check, err := s.Identify(ctx)
		if err != nil {
			return err
		}
		if !check.AddressKnown || check.Address != addr {
			pterm.Warning.Printfln("Decoder reports address %d after programming %d", check.Address, addr)
			return nil
		}
		pterm.Success.Printfln("%s decoder now on address %d", check.Features.Class, addr)
		return nil
	})
}
