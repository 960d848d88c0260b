// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/trackside/pkg/operations"
	"github.com/Thermoquad/trackside/pkg/servicemode"
	"github.com/Thermoquad/trackside/pkg/tracklink"
)

// consoleTickInterval paces the main loop between input lines
const consoleTickInterval = 50 * time.Millisecond

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Text console for driving locos and accessories on the main track",
	Long: `Run the layout from a command line. Several commands can be chained on
one line with '#', for example "l3#v40#f0".

Ctrl+C toggles the emergency stop, Ctrl+D or q quits. The main track is
switched off after the configured idle time (auto_sleep, 0 disables).

Enter ? for the command reference.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// newController builds an operations controller on the link's main track.
// Loco scans borrow the programming track of the same link.
func newController(client *tracklink.Client, out io.Writer) *operations.Controller {
	opts := operations.DefaultOptions()
	opts.MaxSpeed = settings.MaxSpeed
	opts.AutoSleep = settings.AutoSleep
	opts.Scanner = locoScanner(client)
	opts.Out = out
	opts.Logger = &logger
	return operations.New(client.Main(), opts)
}

// locoScanner reads address and speed steps of the loco on the
// programming track in a session of its own
func locoScanner(client *tracklink.Client) operations.Scanner {
	return func(ctx context.Context) (servicemode.LocoProfile, error) {
		var profile servicemode.LocoProfile
		err := servicemode.Run(ctx, client.Programming(), sessionOptions(false), func(s *servicemode.Session) error {
			var err error
			profile, err = s.ScanLoco(ctx)
			return err
		})
		return profile, err
	}
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	client, connInfo, err := openLink()
	if err != nil {
		return err
	}
	defer client.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "q",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	out := rl.Stdout()

	ctrl := newController(client, out)
	if err := ctrl.Start(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Trackside - Operations Console\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Enter ? for help, Ctrl+C toggles emergency stop\n\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				ctrl.Post(operations.EventEmergencyButton)
				continue
			}
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(consoleTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctrl.Shutdown()

		case <-client.Done():
			return fmt.Errorf("link lost: %w", client.Err())

		case line, ok := <-lines:
			if !ok {
				return ctrl.Shutdown()
			}
			quit, err := ctrl.Execute(ctx, line)
			if err != nil && !operations.Recoverable(err) {
				if errors.Is(err, tracklink.ErrClosed) {
					return err
				}
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			if quit {
				return ctrl.Shutdown()
			}

		case <-ticker.C:
			err := ctrl.Tick(ctx)
			switch {
			case err == nil:
			case errors.Is(err, operations.ErrIdle):
				fmt.Fprintln(out, "No input for a while, main track switched off")
				return nil
			case errors.Is(err, tracklink.ErrClosed):
				return err
			default:
				logger.Warn().Err(err).Msg("tick")
			}
		}
	}
}
