package engine

import (
	"errors"
	"fmt"

	"github.com/vsariola/blipkit"
)

// Attr returns an integer attribute of the context.
func (c *Context) Attr(attr blipkit.Attr) (int, error) {
	switch {
	case attr == blipkit.AttrSampleRate:
		return c.sampleRate, nil
	case attr == blipkit.AttrNumChannels:
		return c.numChannels, nil
	case attr.IsDivider():
		return c.dividerValues[attr-blipkit.AttrArpeggioDivider], nil
	}
	return 0, fmt.Errorf("%v: %w", attr, blipkit.ErrInvalidAttribute)
}

// SetAttr sets an integer attribute. The divider attributes are passed on to
// every attached unit that accepts attributes and, for the arpeggio divider,
// to every attached driver.
func (c *Context) SetAttr(attr blipkit.Attr, value int) error {
	if c.disposed {
		return blipkit.ErrDisposed
	}
	if !attr.IsDivider() {
		return fmt.Errorf("%v: %w", attr, blipkit.ErrInvalidAttribute)
	}
	if value < 1 {
		return fmt.Errorf("%v = %v: %w", attr, value, blipkit.ErrInvalidValue)
	}
	c.dividerValues[attr-blipkit.AttrArpeggioDivider] = value
	var errs []error
	for _, u := range c.units.All() {
		if s, ok := u.(blipkit.AttrSetter); ok {
			if err := s.SetAttr(attr, value); err != nil && !errors.Is(err, blipkit.ErrInvalidAttribute) {
				errs = append(errs, err)
			}
		}
	}
	if attr == blipkit.AttrArpeggioDivider {
		for _, d := range c.drivers.All() {
			d.interp.SetArpeggioSpeed(value)
		}
	}
	return errors.Join(errs...)
}

// TimeAttr returns a time valued attribute: AttrClockPeriod or AttrTime.
func (c *Context) TimeAttr(attr blipkit.Attr) (blipkit.Time, error) {
	switch attr {
	case blipkit.AttrClockPeriod:
		return c.master.Period(), nil
	case blipkit.AttrTime:
		return c.Time(), nil
	}
	return blipkit.Time{}, fmt.Errorf("%v: %w", attr, blipkit.ErrInvalidAttribute)
}

// SetTimeAttr sets a time valued attribute; only AttrClockPeriod can be set.
// The master clock restarts with the new period at the next Run, without
// firing on the restart boundary.
func (c *Context) SetTimeAttr(attr blipkit.Attr, value blipkit.Time) error {
	if c.disposed {
		return blipkit.ErrDisposed
	}
	if attr != blipkit.AttrClockPeriod {
		return fmt.Errorf("%v: %w", attr, blipkit.ErrInvalidAttribute)
	}
	if err := c.master.SetPeriod(value); err != nil {
		return fmt.Errorf("%v = %v: %w", attr, value, blipkit.ErrInvalidValue)
	}
	c.clockReset = true
	return nil
}
