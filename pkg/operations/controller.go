// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package operations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/trackside/pkg/dcc"
)

// Controller defaults
const (
	DefaultMaxSpeed        = 126
	DefaultAutoSleep       = 15 * time.Minute
	DefaultSpeedSteps      = 28
	DefaultDirectionSettle = 500 * time.Millisecond
	eventQueueSize         = 16
)

// ErrScanFailed wraps the service mode error of a failed loco scan
var ErrScanFailed = errors.New("loco scan failed")

// Options configures a Controller
type Options struct {
	// MaxSpeed caps every speed command
	MaxSpeed int
	// AutoSleep shuts the layout down after this long without input;
	// zero disables it
	AutoSleep time.Duration
	// DirectionSettle is the pause between halting and reversing a loco
	DirectionSettle time.Duration
	// Scanner backs the loco scan verb; nil disables it
	Scanner Scanner
	// Out receives operator-facing output
	Out io.Writer

	Logger *zerolog.Logger
	Now    func() time.Time
	Sleep  func(time.Duration)
}

// DefaultOptions returns the options used by the console
func DefaultOptions() Options {
	return Options{
		MaxSpeed:        DefaultMaxSpeed,
		AutoSleep:       DefaultAutoSleep,
		DirectionSettle: DefaultDirectionSettle,
	}
}

// Controller owns the operations mode state. All methods except Post must
// be called from one goroutine.
type Controller struct {
	station Station
	opts    Options
	log     zerolog.Logger
	out     io.Writer

	locos       []*Loco
	active      *Loco
	accessories []*Accessory

	emergency bool
	sleepAt   time.Time
	events    chan Event
}

// New creates a controller driving station
func New(station Station, opts Options) *Controller {
	if opts.MaxSpeed <= 0 {
		opts.MaxSpeed = DefaultMaxSpeed
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Controller{
		station: station,
		opts:    opts,
		log:     log.With().Str("component", "operations").Logger(),
		out:     opts.Out,
		events:  make(chan Event, eventQueueSize),
	}
}

// Start takes and powers the main track
func (c *Controller) Start() error {
	if err := c.station.Begin(); err != nil {
		return fmt.Errorf("begin main track: %w", err)
	}
	if err := c.station.PowerOn(); err != nil {
		return fmt.Errorf("power on main track: %w", err)
	}
	c.touch()
	c.log.Info().Msg("main track on")
	return nil
}

// Shutdown stops every loco and releases the main track
func (c *Controller) Shutdown() error {
	err := errors.Join(
		c.station.EmergencyStop(),
		c.station.PowerOff(),
		c.station.End(),
	)
	c.haltAll()
	c.log.Info().Err(err).Msg("main track off")
	return err
}

// touch restarts the auto-sleep timer
func (c *Controller) touch() {
	if c.opts.AutoSleep > 0 {
		c.sleepAt = c.opts.Now().Add(c.opts.AutoSleep)
	}
}

// Execute runs every #-separated command of line in order. Rejected
// commands are reported and skipped; a station failure stops the line.
// quit is true when a quit command was reached.
func (c *Controller) Execute(ctx context.Context, line string) (quit bool, err error) {
	c.touch()

	var rejected []error
	for _, token := range dcc.SplitCommands(line) {
		q, err := c.dispatch(ctx, strings.TrimSpace(token))
		if err != nil {
			if !Recoverable(err) {
				c.log.Error().Err(err).Str("command", token).Msg("command failed")
				return false, err
			}
			fmt.Fprintf(c.out, "%v\n", err)
			c.log.Warn().Err(err).Str("command", token).Msg("command rejected")
			rejected = append(rejected, err)
			continue
		}
		if q {
			return true, errors.Join(rejected...)
		}
	}
	return false, errors.Join(rejected...)
}

func reject(token, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrParseReject, token, reason)
}

// Emergency reports whether the layout is emergency stopped
func (c *Controller) Emergency() bool {
	return c.emergency
}

// Active returns the loco under control, or nil
func (c *Controller) Active() *Loco {
	return c.active
}

// Locos returns the registered locos in registration order
func (c *Controller) Locos() []*Loco {
	return c.locos
}

// Accessories returns the commanded accessories in first-use order
func (c *Controller) Accessories() []*Accessory {
	return c.accessories
}

// SleepAt returns the auto-sleep deadline
func (c *Controller) SleepAt() time.Time {
	return c.sleepAt
}

// Current reads the main track current
func (c *Controller) Current() (int, error) {
	return c.station.Current()
}

// Loco returns the registered loco with addr
func (c *Controller) Loco(addr int) *Loco {
	for _, l := range c.locos {
		if l.Address == addr {
			return l
		}
	}
	return nil
}

// Accessory returns the registered accessory with addr
func (c *Controller) Accessory(addr int) *Accessory {
	for _, a := range c.accessories {
		if a.Address == addr {
			return a
		}
	}
	return nil
}

// LocoData summarizes a registered loco
func (c *Controller) LocoData(addr int) (LocoData, bool) {
	l := c.Loco(addr)
	if l == nil {
		return LocoData{}, false
	}
	return LocoData{
		Address:    l.Address,
		Forward:    l.Forward,
		Speed:      l.Speed,
		SpeedSteps: l.SpeedSteps,
		Functions:  l.FunctionMask(),
		Name:       l.Name,
	}, true
}

func (c *Controller) haltAll() {
	for _, l := range c.locos {
		l.Speed = 0
	}
}
