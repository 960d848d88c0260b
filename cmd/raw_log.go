// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/trackside/pkg/tracklink"
)

var (
	rawErrorsOnly    bool
	rawStatsInterval int
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display link packets in human-readable format",
	Long: `Continuously decode and display link packets as they arrive, with
timestamp, message type and decoded payload fields.

Every packet is validated: out-of-range CVs, values, addresses and speeds are
flagged, as are CRC and framing errors. With --errors-only only problems are
shown. Statistics are printed every --stats-interval seconds (0 disables) and
on exit.

Supports serial, WebSocket and simulated connections.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawErrorsOnly, "errors-only", false, "Only show decode and validation errors")
	rawLogCmd.Flags().IntVar(&rawStatsInterval, "stats-interval", 0, "Statistics interval in seconds (0 disables)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Trackside - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := tracklink.NewStatistics()
	defer func() { fmt.Print("\n" + stats.String()) }()

	// Closing the connection unblocks the pending read
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if rawStatsInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(rawStatsInterval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					fmt.Print(stats.String())
				}
			}
		}()
	}

	decoder := tracklink.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil || closedRead(err) {
				return nil
			}
			logger.Warn().Err(err).Msg("read error")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		for i := 0; i < n; i++ {
			packet, err := decoder.DecodeByte(buf[i])
			if err != nil {
				stats.Update(nil, err, nil)
				fmt.Printf("[%s] DECODE ERROR: %v\n", time.Now().Format("15:04:05.000"), err)
				continue
			}
			if packet == nil {
				continue
			}

			problems := tracklink.ValidatePacket(packet)
			stats.Update(packet, nil, problems)
			if len(problems) > 0 {
				fmt.Print(tracklink.FormatPacket(packet))
				for i, p := range problems {
					fmt.Printf("  Issue %d: %s\n", i+1, p.Message)
				}
				fmt.Printf("  >>> PACKET REJECTED <<<\n")
				continue
			}
			if !rawErrorsOnly {
				fmt.Print(tracklink.FormatPacket(packet))
			}
		}
	}
}

// closedRead reports whether a read failed because the connection is gone
// for good
func closedRead(err error) bool {
	return errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
