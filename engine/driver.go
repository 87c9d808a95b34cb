package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vsariola/blipkit"
	"github.com/vsariola/blipkit/arena"
	"github.com/vsariola/blipkit/clock"
	"github.com/vsariola/blipkit/vm"
)

// Driver steps an interpreter from a divider: each time the divider fires, the
// interpreter applies its next step to the sink and the ticks it returns
// become the divider's next divisor.
//
// A fault halts the driver and nothing else; the context keeps running. When
// the interpreter is done, the driver detaches its divider.
type Driver struct {
	name    string
	interp  *vm.Interpreter
	sink    vm.Sink
	divider *clock.Divider

	ctx       *Context
	clockType blipkit.ClockType
	handle    arena.Handle

	err     error
	ended   bool
	endedAt blipkit.Time
}

// NewDriver returns a driver applying the steps of interp to sink. name is
// used in log messages.
func NewDriver(name string, interp *vm.Interpreter, sink vm.Sink) *Driver {
	d := &Driver{name: name, interp: interp, sink: sink}
	d.divider = clock.NewDivider(1, d.step)
	return d
}

func (d *Driver) Name() string                 { return d.name }
func (d *Driver) Interpreter() *vm.Interpreter { return d.interp }
func (d *Driver) Sink() vm.Sink                { return d.sink }
func (d *Driver) Divider() *clock.Divider      { return d.divider }

// Err returns the fault that halted the driver, if any.
func (d *Driver) Err() error { return d.err }

// Done reports whether the interpreter has finished, by ending or by a fault.
func (d *Driver) Done() bool { return d.ended }

// EndedAt returns the absolute context time at which the driver finished.
func (d *Driver) EndedAt() blipkit.Time { return d.endedAt }

func (d *Driver) step() (int, error) {
	ticks, err := d.interp.ApplyNextStep(d.sink)
	if err != nil {
		d.err = err
		attrs := []any{"track", d.name, "err", err}
		var fault *blipkit.FaultError
		if errors.As(err, &fault) {
			attrs = append(attrs, "pc", fault.PC, "kind", fault.Kind.String())
		}
		d.logger().Warn("track program halted", attrs...)
		d.finish()
		return 0, nil
	}
	if ticks == 0 {
		d.finish()
	}
	return ticks, nil
}

func (d *Driver) logger() *slog.Logger {
	if d.ctx != nil {
		return d.ctx.logger
	}
	return slog.Default()
}

func (d *Driver) finish() {
	d.ended = true
	if d.ctx != nil {
		d.endedAt = d.ctx.Time()
	}
	d.divider.Detach()
}

// Reset rewinds the interpreter. The divider is attached again at the end of
// its group, also when the driver had finished, so that drivers reset in
// order keep their relative firing order.
func (d *Driver) Reset() {
	d.interp.Reset()
	d.err = nil
	d.ended = false
	d.endedAt = blipkit.Time{}
	d.divider.Detach()
	d.divider.SetDivisor(1)
	d.divider.Reset()
	if d.ctx != nil {
		d.ctx.AttachDivider(d.divider, d.clockType)
	}
}

func (d *Driver) detach() {
	d.divider.Detach()
	d.ctx = nil
	d.handle = arena.Handle{}
}

// AttachDriver attaches a driver to the context, stepping it from the effect
// or the beat group of the master clock. The interpreter takes the context's
// arpeggio divider as its default arpeggio speed.
func (c *Context) AttachDriver(d *Driver, t blipkit.ClockType) error {
	if c.disposed {
		return blipkit.ErrDisposed
	}
	if d.ctx != nil {
		return fmt.Errorf("driver %q already attached: %w", d.name, blipkit.ErrInvalidValue)
	}
	if err := c.AttachDivider(d.divider, t); err != nil {
		return err
	}
	d.ctx = c
	d.clockType = t
	d.handle = c.drivers.Attach(d)
	d.interp.SetArpeggioSpeed(c.dividerValues[0])
	return nil
}

// DetachDriver detaches a driver from the context; the driver can be attached
// again later.
func (c *Context) DetachDriver(d *Driver) bool {
	if d.ctx != c {
		return false
	}
	c.drivers.Detach(d.handle)
	d.detach()
	return true
}

// Drivers returns the attached drivers in attachment order.
func (c *Context) Drivers() []*Driver {
	return c.drivers.Snapshot(nil)
}

// DriversDone reports whether every attached driver has finished.
func (c *Context) DriversDone() bool {
	for _, d := range c.drivers.All() {
		if !d.ended {
			return false
		}
	}
	return true
}
