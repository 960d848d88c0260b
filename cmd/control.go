// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for driving locos on the main track",
	Long: `Drive the layout via an interactive terminal UI.

Features:
  - Loco list with speed, direction and functions of the active loco
  - Accessory states
  - Track current and link statistics
  - Command line accepting every console command
  - Event logging

Keys (loco list focused):
  Enter      select loco         Space   halt
  + / -      faster / slower     < / >   reverse / forward
  0-9        toggle F0-F9        e       emergency stop on/off
  x          reset layout        Tab     command line
  q          quit

Supports serial, WebSocket and simulated connections.`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

func runControl(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	client, connInfo, err := openLink()
	if err != nil {
		return err
	}
	defer client.Close()

	output := &bytes.Buffer{}
	ctrl := newController(client, output)
	if err := ctrl.Start(); err != nil {
		return err
	}

	m := initialControlModel(ctx, ctrl, client, connInfo, output)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	// Report a dead link to the UI instead of letting every command time out
	go func() {
		select {
		case <-client.Done():
			p.Send(linkLostMsg{err: client.Err()})
		case <-ctx.Done():
		}
	}()

	final, runErr := p.Run()
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		ctrl.Shutdown()
		return fmt.Errorf("TUI error: %w", runErr)
	}

	// The idle timeout has already switched the track off
	if fm, ok := final.(*controlModel); ok && fm.idle {
		fmt.Println("No input for a while, main track switched off")
		return nil
	}
	return ctrl.Shutdown()
}
