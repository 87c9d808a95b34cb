package clock

import (
	"errors"

	"github.com/vsariola/blipkit/arena"
)

type (
	// Func is the callback of a divider. A positive return value becomes the
	// new divisor; zero or negative keeps the current one.
	Func func() (divisor int, err error)

	// Divider fires its callback every Divisor ticks of the group it is
	// attached to. It fires on the first tick after being attached or reset.
	Divider struct {
		divisor int
		counter int
		fn      Func
		group   *DividerGroup
		handle  arena.Handle
	}

	// DividerGroup is an ordered set of dividers sharing a clock.
	DividerGroup struct {
		dividers arena.List[*Divider]
		scratch  []*Divider
	}
)

// NewDivider returns a divider that calls fn every divisor ticks. Divisors
// below 1 are clamped to 1.
func NewDivider(divisor int, fn Func) *Divider {
	return &Divider{divisor: max(divisor, 1), fn: fn}
}

func (d *Divider) Divisor() int { return d.divisor }

// SetDivisor changes the divisor. The ticks already counted down are kept, so
// a pending firing is not moved.
func (d *Divider) SetDivisor(divisor int) {
	d.divisor = max(divisor, 1)
}

// Reset makes the divider fire on its next tick.
func (d *Divider) Reset() {
	d.counter = 0
}

// Counter returns the number of ticks until the divider fires next.
func (d *Divider) Counter() int { return d.counter }

// Group returns the group the divider is attached to, or nil.
func (d *Divider) Group() *DividerGroup { return d.group }

// Detach removes the divider from its group, if any.
func (d *Divider) Detach() bool {
	if d.group == nil {
		return false
	}
	return d.group.Detach(d.handle)
}

func (d *Divider) tick() error {
	var err error
	if d.counter == 0 {
		d.counter = d.divisor
		if d.fn != nil {
			var next int
			next, err = d.fn()
			if next > 0 {
				d.divisor = next
				d.counter = next
			}
		}
	}
	d.counter--
	return err
}

// Attach appends the divider to the group. A divider attached to another
// group is moved.
func (g *DividerGroup) Attach(d *Divider) arena.Handle {
	if d.group != nil {
		d.group.Detach(d.handle)
	}
	d.group = g
	d.handle = g.dividers.Attach(d)
	return d.handle
}

// Detach removes a divider from the group. It returns false for a stale
// handle.
func (g *DividerGroup) Detach(h arena.Handle) bool {
	d, ok := g.dividers.Get(h)
	if !ok {
		return false
	}
	g.dividers.Detach(h)
	d.group = nil
	d.handle = arena.Handle{}
	return true
}

// Len returns the number of attached dividers.
func (g *DividerGroup) Len() int { return g.dividers.Len() }

// Tick counts down every divider of the group, firing those that are due, in
// attachment order. The set of dividers visited is fixed when the pass starts:
// dividers attached by a callback take part from the next pass on, and
// dividers detached by a callback are still visited in this pass.
func (g *DividerGroup) Tick() error {
	g.scratch = g.dividers.Snapshot(g.scratch[:0])
	pass := g.scratch
	var errs []error
	for i, d := range pass {
		pass[i] = nil
		if err := d.tick(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset makes every divider of the group fire on the next tick.
func (g *DividerGroup) Reset() {
	for _, d := range g.dividers.All() {
		d.Reset()
	}
}

// Clear detaches every divider.
func (g *DividerGroup) Clear() {
	for _, d := range g.dividers.All() {
		d.group = nil
		d.handle = arena.Handle{}
	}
	g.dividers.Clear()
}
