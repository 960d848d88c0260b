// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package operations

import (
	"context"
	"fmt"
	"time"
)

// Event is raised outside the command path, by buttons or timers
type Event int

const (
	// EventEmergencyButton toggles between emergency stop and running
	EventEmergencyButton Event = iota
	// EventResetButton puts the layout back into its initial state
	EventResetButton
	// EventIdleTimeout shuts the layout down
	EventIdleTimeout
)

func (e Event) String() string {
	switch e {
	case EventEmergencyButton:
		return "emergency button"
	case EventResetButton:
		return "reset button"
	case EventIdleTimeout:
		return "idle timeout"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Post queues an event without blocking. It is safe to call from any
// goroutine. An event is dropped when the queue is full.
func (c *Controller) Post(e Event) bool {
	select {
	case c.events <- e:
		return true
	default:
		c.log.Warn().Stringer("event", e).Msg("event queue full, dropped")
		return false
	}
}

// DrainEvents handles every queued event. It returns ErrIdle once the
// layout was shut down by an idle timeout.
func (c *Controller) DrainEvents(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case e := <-c.events:
			if err := c.handle(e); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *Controller) handle(e Event) error {
	c.log.Debug().Stringer("event", e).Msg("event")
	switch e {
	case EventEmergencyButton:
		if c.emergency {
			return c.Resume()
		}
		return c.EmergencyStop()
	case EventResetButton:
		return c.ResetLayout()
	case EventIdleTimeout:
		fmt.Fprintln(c.out, "No input, shutting down")
		if err := c.Shutdown(); err != nil {
			return err
		}
		return ErrIdle
	}
	return nil
}

// Tick runs one iteration of the main loop: it raises the idle timeout,
// handles queued events and refreshes the track unless stopped.
func (c *Controller) Tick(ctx context.Context) error {
	if !c.sleepAt.IsZero() && !c.opts.Now().Before(c.sleepAt) {
		c.sleepAt = time.Time{}
		c.Post(EventIdleTimeout)
	}
	if err := c.DrainEvents(ctx); err != nil {
		return err
	}
	if c.emergency {
		return nil
	}
	return c.station.Loop()
}
