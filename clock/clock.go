// Package clock implements the time bases of the engine: a Clock ticks at a
// fixed period on the sample time axis, and the Dividers attached to its
// DividerGroups fire every N ticks.
package clock

import (
	"errors"

	"github.com/vsariola/blipkit"
)

// Clock is a time base with a fixed period. NextTime is the time of the next
// tick boundary; the owner calls Tick when the current time reaches it.
type Clock struct {
	period blipkit.Time
	next   blipkit.Time
	ticks  int64
	groups []*DividerGroup
}

var errPeriod = errors.New("clock period must be positive")

// New returns a clock with the given period whose first tick is due at time
// zero.
func New(period blipkit.Time) (*Clock, error) {
	if period.Cmp(blipkit.Time{}) <= 0 {
		return nil, errPeriod
	}
	return &Clock{period: period}, nil
}

func (c *Clock) Period() blipkit.Time   { return c.period }
func (c *Clock) NextTime() blipkit.Time { return c.next }

// Ticks returns the number of ticks since the last reset.
func (c *Clock) Ticks() int64 { return c.ticks }

// SetPeriod changes the period. The boundary already scheduled is kept; the
// new period applies from the next tick on.
func (c *Clock) SetPeriod(period blipkit.Time) error {
	if period.Cmp(blipkit.Time{}) <= 0 {
		return errPeriod
	}
	c.period = period
	return nil
}

// AddGroup attaches a divider group; groups are ticked in the order they were
// added.
func (c *Clock) AddGroup(g *DividerGroup) {
	c.groups = append(c.groups, g)
}

// Groups returns the divider groups of the clock.
func (c *Clock) Groups() []*DividerGroup {
	return c.groups
}

// Tick advances the next boundary by one period and ticks all groups. Errors
// of the divider callbacks are joined; every group is ticked regardless.
func (c *Clock) Tick() error {
	c.next = c.next.Add(c.period)
	c.ticks++
	var errs []error
	for _, g := range c.groups {
		if err := g.Tick(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shift moves the next boundary back by delta. The owner calls it when it
// rebases its time axis after a frame has been consumed.
func (c *Clock) Shift(delta blipkit.Time) {
	c.next = c.next.Sub(delta)
}

// Restart schedules the next boundary one period after at, without firing.
func (c *Clock) Restart(at blipkit.Time) {
	c.next = at.Add(c.period)
}

// Reset rewinds the clock to time zero and resets all its dividers.
func (c *Clock) Reset() {
	c.next = blipkit.Time{}
	c.ticks = 0
	for _, g := range c.groups {
		g.Reset()
	}
}
