// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Simulated board, no hardware required
	simMode bool

	configPath string
	logLevel   string

	// settings is the merged view of defaults, config file and flags
	settings = defaultConfig()
	logger   = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "trackside",
	Short: "DCC decoder programmer and layout console",
	Long: `Trackside - A CLI tool for programming DCC decoders and running a layout
through a booster board.

Service mode commands (identify, dump, cv, set-address, factory-reset,
restore) put one decoder on the isolated programming track. Operations
commands (console, control) drive locos and accessories on the main track.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  Simulated: --sim

For WebSocket authentication, the password is read from the TRACKSIDE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Settings may also be given in a TOML file (--config); flags take precedence.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", defaultBaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().BoolVar(&simMode, "sim", false, "Use a simulated board with one loco decoder")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file (default: user config dir)/trackside/config.toml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Diagnostic log level (debug, info, warn, error)")
}

// setup merges the config file with the flags and builds the logger
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Username = wsUsername
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	cfg.NoSSLVerify = wsNoSSLVerify
	cfg.Sim = simMode

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	settings = cfg
	logger = log
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
