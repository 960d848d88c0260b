// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Thermoquad/trackside/pkg/operations"
	"github.com/Thermoquad/trackside/pkg/servicemode"
	"github.com/Thermoquad/trackside/pkg/tracklink"
)

const (
	defaultBaudRate   = 115200
	defaultRecordsDir = "records"
	defaultLogLevel   = "warn"
)

// config holds every setting a command may need
type config struct {
	Port        string
	Baud        int
	URL         string
	Username    string
	NoSSLVerify bool
	Sim         bool

	Repetitions       int
	PresenceThreshold int // mA
	PresenceTimeout   time.Duration
	SettleLoops       int

	RecordsDir     string
	MaxSpeed       int
	AutoSleep      time.Duration
	LogLevel       string
	RequestTimeout time.Duration
}

type fileConfig struct {
	Port              string `toml:"port"`
	Baud              int    `toml:"baud"`
	URL               string `toml:"url"`
	Username          string `toml:"username"`
	Repetitions       int    `toml:"repetitions"`
	PresenceThreshold int    `toml:"presence_threshold_ma"`
	PresenceTimeout   string `toml:"presence_timeout"`
	SettleLoops       int    `toml:"settle_loops"`
	RecordsDir        string `toml:"records_dir"`
	MaxSpeed          int    `toml:"max_speed"`
	AutoSleep         string `toml:"auto_sleep"`
	LogLevel          string `toml:"log_level"`
	RequestTimeout    string `toml:"request_timeout"`
}

func defaultConfig() config {
	return config{
		Baud:              defaultBaudRate,
		Repetitions:       servicemode.DefaultRepetitions,
		PresenceThreshold: servicemode.DefaultPresenceThreshold,
		PresenceTimeout:   servicemode.DefaultPresenceTimeout,
		SettleLoops:       servicemode.DefaultSettleLoops,
		RecordsDir:        defaultRecordsDir,
		MaxSpeed:          operations.DefaultMaxSpeed,
		AutoSleep:         operations.DefaultAutoSleep,
		LogLevel:          defaultLogLevel,
		RequestTimeout:    tracklink.DefaultTimeout,
	}
}

// defaultConfigPath returns the per-user config file, or "" if it does not
// exist
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "trackside", "config.toml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// loadConfig overlays the keys defined in the TOML file onto the defaults.
// An empty path falls back to the per-user config file, if any.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return cfg, nil
		}
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("username") {
		cfg.Username = strings.TrimSpace(raw.Username)
	}

	if meta.IsDefined("repetitions") {
		cfg.Repetitions = raw.Repetitions
	}
	if meta.IsDefined("presence_threshold_ma") {
		cfg.PresenceThreshold = raw.PresenceThreshold
	}
	if meta.IsDefined("presence_timeout") {
		d, err := parseDuration("presence_timeout", raw.PresenceTimeout)
		if err != nil {
			return config{}, err
		}
		cfg.PresenceTimeout = d
	}
	if meta.IsDefined("settle_loops") {
		cfg.SettleLoops = raw.SettleLoops
	}

	if meta.IsDefined("records_dir") {
		cfg.RecordsDir = strings.TrimSpace(raw.RecordsDir)
	}
	if meta.IsDefined("max_speed") {
		cfg.MaxSpeed = raw.MaxSpeed
	}
	if meta.IsDefined("auto_sleep") {
		d, err := parseDuration("auto_sleep", raw.AutoSleep)
		if err != nil {
			return config{}, err
		}
		cfg.AutoSleep = d
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("request_timeout") {
		d, err := parseDuration("request_timeout", raw.RequestTimeout)
		if err != nil {
			return config{}, err
		}
		cfg.RequestTimeout = d
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %v", key, d)
	}
	return d, nil
}
