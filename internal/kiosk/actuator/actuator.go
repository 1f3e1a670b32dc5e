// Package actuator drives the physical sorting flap.
//
// The flap is a four-state machine: centre is both the initial and
// terminal position, and a sort command swings it left or right, holds
// it there for the settle time, then returns it to centre. Rejected and
// error verdicts never move the flap.
//
// The controller deliberately rejects rather than queues overlapping
// commands: double-actuation while the flap is mid-swing is physically
// unsafe, and the upstream detection loop is sequential anyway.
package actuator

import (
	"errors"
	"fmt"
	"time"
)

// ErrBusy is returned when a sort command arrives before the flap has
// returned to centre from a prior command. The command is dropped, not
// queued.
var ErrBusy = errors.New("actuator: movement in progress")

// Position is a physical flap position.
type Position int

// Flap positions.
const (
	PositionCenter Position = iota
	PositionLeft
	PositionRight
)

// String returns a readable position name.
func (p Position) String() string {
	switch p {
	case PositionCenter:
		return "CENTER"
	case PositionLeft:
		return "LEFT"
	case PositionRight:
		return "RIGHT"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

// SortCommand tells the controller where an item goes.
type SortCommand int

// Sort commands. SortRejected and SortError both resolve to no
// movement; they exist separately so callers and logs can tell a
// declined item from a failed cycle.
const (
	SortRejected SortCommand = iota
	SortError
	SortPlastic
	SortCan
)

// String returns a readable command name.
func (c SortCommand) String() string {
	switch c {
	case SortPlastic:
		return "PLASTIC"
	case SortCan:
		return "CAN"
	case SortRejected:
		return "REJECTED"
	case SortError:
		return "ERROR"
	default:
		return fmt.Sprintf("SortCommand(%d)", int(c))
	}
}

// position returns the flap position the command drives to, and whether
// it moves the flap at all.
func (c SortCommand) position() (Position, bool) {
	switch c {
	case SortPlastic:
		return PositionLeft, true
	case SortCan:
		return PositionRight, true
	default:
		return PositionCenter, false
	}
}

// Driver moves the physical flap. Implementations talk to the servo or
// motor hardware and block until the move completes.
type Driver interface {
	Move(p Position) error
}

// Logger defines the logging interface for the actuator.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Controller executes sort commands one at a time.
//
// Sort is synchronous: it returns once the flap is back at centre. The
// busy flag exists so misrouted concurrent callers fail fast instead of
// stacking physical movements.
type Controller struct {
	driver Driver
	hold   time.Duration
	logger Logger
	busy   chan struct{} // holds one slot; empty while a sort runs

	sleep func(time.Duration) // stubbed in tests
}

// NewController creates a controller. The hold duration is how long a
// non-centre position is kept before returning to centre; it models
// physical settle time and is never skipped.
func NewController(driver Driver, hold time.Duration, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Controller{
		driver: driver,
		hold:   hold,
		logger: logger,
		busy:   make(chan struct{}, 1),
		sleep:  time.Sleep,
	}
	c.busy <- struct{}{}
	return c
}

// Sort executes one command: swing to the command's position, hold,
// return to centre. Rejected and error commands complete immediately
// without movement.
//
// Returns ErrBusy without side effects when a prior command has not yet
// returned the flap to centre.
func (c *Controller) Sort(cmd SortCommand) error {
	target, moves := cmd.position()
	if !moves {
		c.logger.Info("no actuation for verdict", "command", cmd.String())
		return nil
	}

	select {
	case <-c.busy:
	default:
		c.logger.Warn("sort command dropped, movement in progress", "command", cmd.String())
		return ErrBusy
	}
	defer func() { c.busy <- struct{}{} }()

	c.logger.Info("sorting item", "command", cmd.String(), "position", target.String())

	if err := c.driver.Move(target); err != nil {
		// Best effort recentre: never leave the flap deflected.
		if rerr := c.driver.Move(PositionCenter); rerr != nil {
			c.logger.Error("recentre after failed move also failed", "error", rerr)
		}
		return fmt.Errorf("moving to %s: %w", target, err)
	}

	c.sleep(c.hold)

	if err := c.driver.Move(PositionCenter); err != nil {
		return fmt.Errorf("returning to centre: %w", err)
	}

	return nil
}
