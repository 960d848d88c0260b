// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/trackside/pkg/servicemode"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Read class, address and manufacturer of the decoder on the programming track",
	Long: `Wait for a decoder on the programming track, probe direct mode support and
read CV29, the address CVs it selects and the manufacturer ID in CV8.

Accessory decoders whose CV29 is not in the canonical output configuration
have CV29 rewritten before their address is read.`,
	Args: cobra.NoArgs,
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	return withSession(false, func(ctx context.Context, s *servicemode.Session) error {
		id, err := s.Identify(ctx)
		if err != nil {
			return err
		}
		printIdentity(id)
		return nil
	})
}
