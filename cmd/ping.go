// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by sending PING_REQUEST to the board",
	Long: `Send PING_REQUEST packets to the booster board and wait for PING_RESPONSE.

The board answers with its uptime. This is useful for verifying:
  - The serial port or WebSocket bridge is open
  - HTTP Basic authentication works
  - The board is decoding frames
  - Bidirectional packet flow works

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	settings.RequestTimeout = time.Duration(pingTimeout) * time.Second

	client, connInfo, err := openLink()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	fmt.Printf("Trackside - Link Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0
	var totalRTT time.Duration

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		rtt, uptime, err := client.Ping()
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			fmt.Printf("PONG from board, uptime=%s, rtt=%v\n", formatUptime(uint64(uptime.Milliseconds())), rtt.Round(time.Microsecond))
			totalRTT += rtt
			successCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)
	if successCount > 0 {
		fmt.Printf("average rtt=%v\n", (totalRTT / time.Duration(successCount)).Round(time.Microsecond))
	}

	if failCount > 0 {
		client.Close()
		os.Exit(1)
	}
	return nil
}

// formatUptime renders milliseconds as the two largest units
func formatUptime(ms uint64) string {
	if ms < 1000 {
		return fmt.Sprintf("%d ms", ms)
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	switch {
	case days > 0:
		return plural(days, "day") + " " + plural(hours%24, "hour")
	case hours > 0:
		return plural(hours, "hour") + " " + plural(minutes%60, "minute")
	case minutes > 0:
		return plural(minutes, "minute") + " " + plural(seconds%60, "second")
	default:
		return plural(seconds, "second")
	}
}
