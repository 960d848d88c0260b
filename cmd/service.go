// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/Thermoquad/trackside/pkg/dcc"
	"github.com/Thermoquad/trackside/pkg/servicemode"
)

// signalContext is cancelled on Ctrl+C so an interrupted session still
// powers the programming track off
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// sessionOptions maps the settings onto programming session options
func sessionOptions(writeOnly bool) servicemode.Options {
	opts := servicemode.DefaultOptions()
	opts.Repetitions = settings.Repetitions
	opts.PresenceThreshold = settings.PresenceThreshold
	opts.PresenceTimeout = settings.PresenceTimeout
	opts.SettleLoops = settings.SettleLoops
	opts.WriteOnly = writeOnly
	opts.Logger = &logger
	return opts
}

// withSession opens the link, waits for a decoder on the programming track
// and runs fn inside the session. The session is torn down on every path.
func withSession(writeOnly bool, fn func(ctx context.Context, s *servicemode.Session) error) error {
	ctx, stop := signalContext()
	defer stop()

	client, connInfo, err := openLink()
	if err != nil {
		return err
	}
	defer client.Close()

	pterm.Info.Printfln("Connection: %s", connInfo)

	spinner, _ := pterm.DefaultSpinner.Start("Waiting for a decoder on the programming track...")
	opts := sessionOptions(writeOnly)
	opts.OnWaiting = func(milliamps int) {
		spinner.UpdateText(fmt.Sprintf("Waiting for a decoder on the programming track (%d mA)...", milliamps))
	}

	s, err := servicemode.Open(ctx, client.Programming(), opts)
	if err != nil {
		spinner.Fail("No session")
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			pterm.Warning.Printfln("Teardown: %v", err)
		}
	}()

	mode := "CV mode"
	if s.DirectMode() {
		mode = "Direct mode"
	}
	spinner.Success(fmt.Sprintf("Decoder detected (%s)", mode))
	logger.Debug().Str("session", s.ID.String()).Msg("session open")

	return fn(ctx, s)
}

// printIdentity renders what the address-read protocol learned
func printIdentity(id servicemode.Identity) {
	pterm.DefaultSection.Println("Decoder")

	address := "unknown"
	if id.AddressKnown {
		address = fmt.Sprintf("%d", id.Address)
	}
	manufacturer := "unknown"
	if id.CV8.Known {
		manufacturer = fmt.Sprintf("%s (CV8 = %d)", id.Manufacturer, id.CV8.Byte)
	}

	data := pterm.TableData{
		{"Class", id.Features.Class.String()},
		{"Address", address},
		{"Manufacturer", manufacturer},
	}
	pterm.DefaultTable.WithData(data).Render()

	pterm.Println()
	pterm.Println(id.Features.Report())

	if id.ShortDefault() {
		pterm.Warning.Printfln("Decoder is still on the factory address %d", dcc.DefaultAddress)
	}
}

// reportRecoverable prints a recoverable engine error and swallows it.
// Fatal errors are handed back.
func reportRecoverable(err error) error {
	if err == nil || servicemode.IsFatal(err) {
		return err
	}
	pterm.Warning.Println(err.Error())
	return nil
}
