// Package engine implements the Context: the owner of the master clock, the
// divider groups, the sound units and the channel buffers, driving them all in
// lockstep with audio generation.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vsariola/blipkit"
	"github.com/vsariola/blipkit/arena"
	"github.com/vsariola/blipkit/buffer"
	"github.com/vsariola/blipkit/clock"
)

type (
	// Unit is a sound generating unit attached to a context. Render adds the
	// unit's signal in [from, to) to the channel buffers; times are relative
	// to the start of the current frame. EndFrame tells the unit that the
	// time axis moves back by length. Reset returns the unit to its initial
	// state.
	Unit interface {
		Render(channels []*buffer.Buffer, from, to blipkit.Time) error
		EndFrame(length blipkit.Time)
		Reset()
	}

	// Context renders audio: it advances time from event to event, firing the
	// dividers of its clocks and asking its units to render the time between.
	//
	// A Context is not safe for concurrent use.
	Context struct {
		numChannels int
		sampleRate  int
		bufferSize  int
		logger      *slog.Logger

		channels   []*buffer.Buffer
		current    blipkit.Time // relative to the start of the frame
		frameStart int64        // absolute sample index of the frame start

		master  *clock.Clock
		effect  clock.DividerGroup
		beat    clock.DividerGroup
		clocks  arena.List[*clock.Clock]
		units   arena.List[Unit]
		drivers arena.List[*Driver]

		dividerValues [3]int // arpeggio, effect, instrument

		clockReset bool
		disposed   bool

		clockScratch []*clock.Clock
		unitScratch  []Unit
		frames       []int16
	}

	// Option configures a Context in New.
	Option func(*Context) error
)

// DefaultBufferDuration is the default capacity of the channel buffers in
// seconds, i.e. the longest frame a context can render at once.
const DefaultBufferDuration = 0.1

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) error {
		if logger == nil {
			return fmt.Errorf("nil logger: %w", blipkit.ErrInvalidValue)
		}
		c.logger = logger
		return nil
	}
}

// WithClockPeriod sets the period of the master clock.
func WithClockPeriod(period blipkit.Time) Option {
	return func(c *Context) error {
		if err := c.master.SetPeriod(period); err != nil {
			return fmt.Errorf("clock period %v: %w", period, blipkit.ErrInvalidValue)
		}
		return nil
	}
}

// WithBufferDuration sets the capacity of the channel buffers in seconds.
func WithBufferDuration(seconds float64) Option {
	return func(c *Context) error {
		size := int(seconds * float64(c.sampleRate))
		if size < 1 {
			return fmt.Errorf("buffer duration %v s: %w", seconds, blipkit.ErrInvalidValue)
		}
		c.bufferSize = size
		return nil
	}
}

// New returns a context generating numChannels interleaved channels at
// sampleRate. Both are fixed for the lifetime of the context.
func New(numChannels, sampleRate int, opts ...Option) (*Context, error) {
	if numChannels < 1 || numChannels > blipkit.MaxChannels {
		return nil, fmt.Errorf("number of channels %v not in 1 .. %v: %w", numChannels, blipkit.MaxChannels, blipkit.ErrInvalidValue)
	}
	if sampleRate < blipkit.MinSampleRate || sampleRate > blipkit.MaxSampleRate {
		return nil, fmt.Errorf("sample rate %v not in %v .. %v: %w", sampleRate, blipkit.MinSampleRate, blipkit.MaxSampleRate, blipkit.ErrInvalidValue)
	}
	master, err := clock.New(blipkit.TimeFromSeconds(sampleRate, 1.0/blipkit.DefaultClockRate))
	if err != nil {
		return nil, err
	}
	c := &Context{
		numChannels:   numChannels,
		sampleRate:    sampleRate,
		bufferSize:    int(DefaultBufferDuration * float64(sampleRate)),
		logger:        slog.Default(),
		master:        master,
		dividerValues: [3]int{blipkit.DefaultArpeggioDivider, blipkit.DefaultEffectDivider, blipkit.DefaultInstrumentDivider},
	}
	master.AddGroup(&c.effect)
	master.AddGroup(&c.beat)
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.channels = make([]*buffer.Buffer, numChannels)
	for i := range c.channels {
		if c.channels[i], err = buffer.New(sampleRate, c.bufferSize); err != nil {
			return nil, fmt.Errorf("channel %v: %w", i, err)
		}
	}
	c.logger.Debug("context created", "channels", numChannels, "samplerate", sampleRate, "buffer", c.bufferSize)
	return c, nil
}

func (c *Context) NumChannels() int { return c.numChannels }
func (c *Context) SampleRate() int  { return c.sampleRate }

// Logger returns the logger of the context.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Channel returns the buffer of channel i.
func (c *Context) Channel(i int) *buffer.Buffer { return c.channels[i] }

// Time returns the absolute time: the time since the last reset.
func (c *Context) Time() blipkit.Time {
	return blipkit.TimeFromSamples(c.frameStart).Add(c.current)
}

// TimeFromSeconds converts seconds into a Time at the context's sample rate.
func (c *Context) TimeFromSeconds(seconds float64) blipkit.Time {
	return blipkit.TimeFromSeconds(c.sampleRate, seconds)
}

// Group returns the divider group ticked by the master clock for the given
// clock type.
func (c *Context) Group(t blipkit.ClockType) (*clock.DividerGroup, error) {
	switch t {
	case blipkit.ClockEffect:
		return &c.effect, nil
	case blipkit.ClockBeat:
		return &c.beat, nil
	}
	return nil, fmt.Errorf("clock type %v: %w", t, blipkit.ErrInvalidValue)
}

// AttachDivider attaches a divider to one of the master clock's groups.
func (c *Context) AttachDivider(d *clock.Divider, t blipkit.ClockType) error {
	if c.disposed {
		return blipkit.ErrDisposed
	}
	g, err := c.Group(t)
	if err != nil {
		return err
	}
	g.Attach(d)
	return nil
}

// DetachDivider detaches a divider from the group it is attached to.
func (c *Context) DetachDivider(d *clock.Divider) bool {
	return d.Detach()
}

// AttachClock attaches an auxiliary clock. Auxiliary clocks tick after the
// master clock when they fall due at the same time, in attachment order. The
// clock's first tick is due at the current time.
func (c *Context) AttachClock(clk *clock.Clock) (arena.Handle, error) {
	if c.disposed {
		return arena.Handle{}, blipkit.ErrDisposed
	}
	clk.Restart(c.current.Sub(clk.Period()))
	return c.clocks.Attach(clk), nil
}

func (c *Context) DetachClock(h arena.Handle) bool {
	return c.clocks.Detach(h)
}

// AttachUnit attaches a unit; it renders from the current time on. The unit
// receives the context's current divider attributes if it accepts them.
func (c *Context) AttachUnit(u Unit) (arena.Handle, error) {
	if c.disposed {
		return arena.Handle{}, blipkit.ErrDisposed
	}
	if s, ok := u.(blipkit.AttrSetter); ok {
		for _, a := range []blipkit.Attr{blipkit.AttrEffectDivider, blipkit.AttrInstrumentDivider} {
			if err := s.SetAttr(a, c.dividerValues[a-blipkit.AttrArpeggioDivider]); err != nil && !errors.Is(err, blipkit.ErrInvalidAttribute) {
				return arena.Handle{}, err
			}
		}
	}
	return c.units.Attach(u), nil
}

// DetachUnit detaches a unit. The unit itself is left intact.
func (c *Context) DetachUnit(h arena.Handle) bool {
	return c.units.Detach(h)
}

// NumUnits returns the number of attached units.
func (c *Context) NumUnits() int { return c.units.Len() }

// Run advances the context to end, relative to the start of the current
// frame. Time advances from event to event: the units render up to the next
// clock boundary, then the clocks due at that time tick, master first.
//
// end may not lie beyond the frame limit of the channel buffers, see
// buffer.Buffer.FrameLimit.
//
// Errors returned by units and dividers are collected; rendering continues
// to end regardless.
func (c *Context) Run(end blipkit.Time) error {
	if c.disposed {
		return blipkit.ErrDisposed
	}
	if limit := blipkit.TimeFromSamples(int64(c.channels[0].FrameLimit())); end.After(limit) {
		return fmt.Errorf("run to %v beyond frame limit %v: %w", end, limit, blipkit.ErrInvalidValue)
	}
	var errs []error
	for c.current.Before(end) {
		if c.clockReset {
			c.master.Restart(c.current)
			c.clockReset = false
		}
		c.clockScratch = c.clocks.Snapshot(c.clockScratch[:0])
		next := c.master.NextTime()
		for _, clk := range c.clockScratch {
			next = blipkit.MinTime(next, clk.NextTime())
		}
		next = blipkit.MinTime(next, end)
		if next.After(c.current) {
			c.unitScratch = c.units.Snapshot(c.unitScratch[:0])
			for _, u := range c.unitScratch {
				if err := u.Render(c.channels, c.current, next); err != nil {
					errs = append(errs, err)
				}
			}
			c.current = next
		}
		if !c.master.NextTime().After(c.current) {
			if err := c.master.Tick(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, clk := range c.clockScratch {
			if !clk.NextTime().After(c.current) {
				if err := clk.Tick(); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// End runs the context to end and ends the frame at the last whole sample
// before end. The samples of the frame become readable and the time axis of
// the context, the clocks and the units moves back by the frame length.
func (c *Context) End(end blipkit.Time) error {
	err := c.Run(end)
	if errors.Is(err, blipkit.ErrDisposed) {
		return err
	}
	samples := end.Floor()
	if samples <= 0 {
		return err
	}
	length := blipkit.TimeFromSamples(samples)
	for _, u := range c.units.All() {
		u.EndFrame(length)
	}
	for _, ch := range c.channels {
		ch.EndFrame(int(samples))
	}
	c.master.Shift(length)
	for _, clk := range c.clocks.All() {
		clk.Shift(length)
	}
	c.current = c.current.Sub(length)
	c.frameStart += samples
	return err
}

// Size returns the number of frames that can be read.
func (c *Context) Size() int {
	return c.channels[0].Avail()
}

// Read moves up to len(out)/NumChannels frames into out, interleaved, and
// returns the number of frames read.
func (c *Context) Read(out []int16) int {
	frames := min(len(out)/c.numChannels, c.Size())
	for i, ch := range c.channels {
		ch.Read(out[i:], frames, c.numChannels)
	}
	return frames
}

// Generate fills out with interleaved frames and returns the number of frames
// written. The result does not depend on how the output is split into calls.
func (c *Context) Generate(out []int16) (int, error) {
	if c.disposed {
		return 0, blipkit.ErrDisposed
	}
	frames := len(out) / c.numChannels
	var errs []error
	written := 0
	for written < frames {
		if c.Size() == 0 {
			n := min(frames-written, c.channels[0].FrameLimit())
			if err := c.End(blipkit.TimeFromSamples(int64(n))); err != nil {
				if errors.Is(err, blipkit.ErrDisposed) {
					return written, err
				}
				errs = append(errs, err)
			}
		}
		written += c.Read(out[written*c.numChannels:])
	}
	return written, errors.Join(errs...)
}

// GenerateToTime generates frames up to the absolute time end, handing them
// to write chunk by chunk. If write fails, generation stops and the error is
// returned wrapped in ErrInvalidReturnValue.
func (c *Context) GenerateToTime(end blipkit.Time, write func(frames []int16) error) error {
	if c.disposed {
		return blipkit.ErrDisposed
	}
	var errs []error
	for {
		target := end.Sub(blipkit.TimeFromSamples(c.frameStart)).Ceil()
		if c.Size() == 0 {
			if target <= 0 {
				break
			}
			n := min(target, int64(c.channels[0].FrameLimit()))
			if err := c.End(blipkit.TimeFromSamples(n)); err != nil {
				if errors.Is(err, blipkit.ErrDisposed) {
					return err
				}
				errs = append(errs, err)
			}
		}
		size := c.Size() * c.numChannels
		if cap(c.frames) < size {
			c.frames = make([]int16, size)
		}
		frames := c.frames[:size]
		n := c.Read(frames)
		if err := write(frames[:n*c.numChannels]); err != nil {
			return fmt.Errorf("%w: %w", blipkit.ErrInvalidReturnValue, err)
		}
	}
	return errors.Join(errs...)
}

// Reset zeroes the time, clears the buffers and resets every clock, unit and
// driver. Nothing is detached, except that finished drivers are attached
// again.
func (c *Context) Reset() {
	if c.disposed {
		return
	}
	for _, ch := range c.channels {
		ch.Clear()
	}
	c.current = blipkit.Time{}
	c.frameStart = 0
	c.clockReset = false
	c.master.Reset()
	for _, clk := range c.clocks.All() {
		clk.Reset()
	}
	for _, u := range c.units.All() {
		u.Reset()
	}
	for _, d := range c.drivers.All() {
		d.Reset()
	}
	c.logger.Debug("context reset")
}

// Dispose detaches all drivers, units and clocks. Every later call fails with
// ErrDisposed.
func (c *Context) Dispose() {
	if c.disposed {
		return
	}
	for _, d := range c.drivers.All() {
		d.detach()
	}
	c.drivers.Clear()
	c.units.Clear()
	c.clocks.Clear()
	c.effect.Clear()
	c.beat.Clear()
	c.disposed = true
	c.logger.Debug("context disposed")
}

// Disposed reports whether Dispose has been called.
func (c *Context) Disposed() bool { return c.disposed }

// ReadAudio implements blipkit.AudioSource: it generates len(frames) /
// NumChannels frames and returns the number of values written. A context never
// runs out of audio.
func (c *Context) ReadAudio(frames []int16) (int, error) {
	n, err := c.Generate(frames)
	return n * c.numChannels, err
}

var _ blipkit.AudioSource = (*Context)(nil)
