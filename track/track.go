// Package track implements Track, the sound generating unit driven by a track
// program: an oscillator with a gate, instrument envelopes and effects, which
// renders band-limited steps into the channel buffers of a context.
package track

import (
	"fmt"

	"github.com/vsariola/blipkit"
	"github.com/vsariola/blipkit/arena"
	"github.com/vsariola/blipkit/buffer"
	"github.com/vsariola/blipkit/clock"
	"github.com/vsariola/blipkit/engine"
	"github.com/vsariola/blipkit/vm"
)

// DefaultMasterVolume leaves headroom for four tracks at full volume.
const DefaultMasterVolume = blipkit.MaxVolume / 4

// minPeriod bounds the phase duration so that extreme notes cannot stall
// rendering.
var minPeriod = blipkit.TimeFromRaw(blipkit.FracUnit / 64)

type (
	// Track is a voice: it implements engine.Unit to render itself and vm.Sink
	// to be played by a track program.
	//
	// Parameter changes take effect at the start of the next render, which is
	// always at a clock boundary, so the output does not depend on how the
	// context splits its frames.
	Track struct {
		sampleRate int

		waveform     blipkit.Waveform
		custom       *blipkit.WaveformData
		volume       ramp
		panning      ramp
		note         ramp
		masterVolume int
		pitch        int
		duty         int
		phaseWrap    int
		tremolo      lfo
		vibrato      lfo

		instrument *blipkit.Instrument
		seqIndex   [4]int // volume, panning, pitch, duty cycle

		gate        bool
		released    bool
		sampleEnded bool

		phase      int
		phaseCount int
		lfsr       uint16
		running    bool
		next       blipkit.Time
		period     blipkit.Time
		out        []int32
		dirty      bool

		effectDivider     *clock.Divider
		instrumentDivider *clock.Divider
		ctx               *engine.Context
		handle            arena.Handle
	}
)

var (
	_ engine.Unit        = (*Track)(nil)
	_ vm.Sink            = (*Track)(nil)
	_ blipkit.AttrSetter = (*Track)(nil)
)

// New returns a silent square wave track at the given sample rate.
func New(sampleRate int) *Track {
	t := &Track{sampleRate: sampleRate}
	t.effectDivider = clock.NewDivider(blipkit.DefaultEffectDivider, t.stepEffects)
	t.instrumentDivider = clock.NewDivider(blipkit.DefaultInstrumentDivider, t.stepInstrument)
	t.Reset()
	return t
}

// Attach attaches the track to a context: the track as a unit and its effect
// and instrument dividers to the effect group.
func (t *Track) Attach(ctx *engine.Context) error {
	if t.ctx != nil {
		return fmt.Errorf("track already attached: %w", blipkit.ErrInvalidValue)
	}
	if ctx.SampleRate() != t.sampleRate {
		return fmt.Errorf("track at %v Hz, context at %v Hz: %w", t.sampleRate, ctx.SampleRate(), blipkit.ErrInvalidValue)
	}
	h, err := ctx.AttachUnit(t)
	if err != nil {
		return err
	}
	if err := ctx.AttachDivider(t.effectDivider, blipkit.ClockEffect); err != nil {
		ctx.DetachUnit(h)
		return err
	}
	ctx.AttachDivider(t.instrumentDivider, blipkit.ClockEffect)
	t.ctx, t.handle = ctx, h
	return nil
}

// Detach removes the track and its dividers from its context.
func (t *Track) Detach() {
	if t.ctx == nil {
		return
	}
	t.ctx.DetachUnit(t.handle)
	t.effectDivider.Detach()
	t.instrumentDivider.Detach()
	t.ctx, t.handle = nil, arena.Handle{}
}

// Reset returns the track to its initial state; it keeps its context.
func (t *Track) Reset() {
	t.waveform = blipkit.Square
	t.custom = nil
	t.volume = ramp{value: blipkit.MaxVolume, target: blipkit.MaxVolume}
	t.panning = ramp{}
	t.note = ramp{}
	t.masterVolume = DefaultMasterVolume
	t.pitch = 0
	t.duty = DefaultDutyCycle
	t.phaseWrap = 0
	t.tremolo = lfo{}
	t.vibrato = lfo{}
	t.instrument = nil
	t.seqIndex = [4]int{}
	t.gate, t.released, t.sampleEnded = false, false, false
	t.phase, t.phaseCount = 0, 0
	t.lfsr = noiseSeed
	t.running = false
	t.next, t.period = blipkit.Time{}, blipkit.Time{}
	clear(t.out)
	t.dirty = false
	t.effectDivider.Reset()
	t.instrumentDivider.Reset()
}

// SetAttr accepts AttrEffectDivider and AttrInstrumentDivider.
func (t *Track) SetAttr(attr blipkit.Attr, value int) error {
	if value < 1 {
		return fmt.Errorf("%v = %v: %w", attr, value, blipkit.ErrInvalidValue)
	}
	switch attr {
	case blipkit.AttrEffectDivider:
		t.effectDivider.SetDivisor(value)
	case blipkit.AttrInstrumentDivider:
		t.instrumentDivider.SetDivisor(value)
	default:
		return fmt.Errorf("%v: %w", attr, blipkit.ErrInvalidAttribute)
	}
	return nil
}

// Attr returns AttrEffectDivider or AttrInstrumentDivider.
func (t *Track) Attr(attr blipkit.Attr) (int, error) {
	switch attr {
	case blipkit.AttrEffectDivider:
		return t.effectDivider.Divisor(), nil
	case blipkit.AttrInstrumentDivider:
		return t.instrumentDivider.Divisor(), nil
	}
	return 0, fmt.Errorf("%v: %w", attr, blipkit.ErrInvalidAttribute)
}

// Gate reports whether a note is sounding: attacked, and neither muted nor
// released without an instrument.
func (t *Track) Gate() bool { return t.gate }

// Note returns the current note in cents, without pitch and modulation.
func (t *Track) Note() int { return t.note.value }

func (t *Track) Volume() int { return t.volume.value }

func (t *Track) Waveform() blipkit.Waveform { return t.waveform }

func (t *Track) Attack(note int) {
	t.note.set(clamp(note, blipkit.MinNote, blipkit.MaxNote))
	if !t.gate {
		t.note.jump(t.note.target)
	}
	t.gate = true
	t.released = false
	t.sampleEnded = false
	t.seqIndex = [4]int{}
	t.phase, t.phaseCount = 0, 0
	t.lfsr = noiseSeed
	t.running = false
	t.instrumentDivider.Reset()
	t.dirty = true
}

// Release lets the instrument leave its sustain loop; without an instrument
// volume sequence the note stops.
func (t *Track) Release() {
	if t.instrument != nil && t.instrument.Volume.Len() > 0 {
		t.released = true
	} else {
		t.gate = false
	}
	t.dirty = true
}

func (t *Track) Mute() {
	t.gate = false
	t.released = false
	t.dirty = true
}

func (t *Track) SetNote(note int) {
	t.note.set(clamp(note, blipkit.MinNote, blipkit.MaxNote))
	t.dirty = true
}

func (t *Track) SetVolume(volume int) {
	t.volume.set(clamp(volume, 0, blipkit.MaxVolume))
	t.dirty = true
}

func (t *Track) SetMasterVolume(volume int) {
	t.masterVolume = clamp(volume, 0, blipkit.MaxVolume)
	t.dirty = true
}

func (t *Track) SetPanning(panning int) {
	t.panning.set(clamp(panning, -blipkit.MaxVolume, blipkit.MaxVolume))
	t.dirty = true
}

func (t *Track) SetPitch(cents int) {
	t.pitch = cents
	t.dirty = true
}

func (t *Track) SetDutyCycle(dutyCycle int) {
	t.duty = clamp(dutyCycle, 1, squarePhases-1)
	t.dirty = true
}

func (t *Track) SetPhaseWrap(phaseWrap int) {
	t.phaseWrap = max(phaseWrap, 0)
	t.phaseCount = 0
	t.dirty = true
}

func (t *Track) SetInstrument(instr *blipkit.Instrument) {
	t.instrument = instr
	t.seqIndex = [4]int{}
	t.dirty = true
}

// SetWaveform selects a built-in waveform; Custom and Sample need table data
// and are set with SetCustomWaveform.
func (t *Track) SetWaveform(waveform blipkit.Waveform) {
	if waveform < blipkit.Square || waveform >= blipkit.Custom {
		return
	}
	t.setWaveform(waveform, nil)
}

// SetCustomWaveform selects a waveform table entry: custom levels or a
// sample. A nil or empty entry selects the square wave.
func (t *Track) SetCustomWaveform(data *blipkit.WaveformData) {
	switch {
	case data != nil && data.IsSample() && len(data.Frames) > 0 && data.SampleRate > 0:
		t.setWaveform(blipkit.Sample, data)
		t.sampleEnded = false
	case data != nil && !data.IsSample() && len(data.Levels) >= 2:
		t.setWaveform(blipkit.Custom, data)
	default:
		t.setWaveform(blipkit.Square, nil)
	}
}

func (t *Track) setWaveform(waveform blipkit.Waveform, data *blipkit.WaveformData) {
	t.waveform, t.custom = waveform, data
	if t.phase >= t.numPhases() {
		t.phase = 0
	}
	t.dirty = true
}

func (t *Track) dutyCycle() int {
	if t.instrument != nil && t.instrument.DutyCycle.Len() > 0 {
		return clamp(t.instrument.DutyCycle.Get(t.seqIndex[3]), 1, squarePhases-1)
	}
	return t.duty
}

// stepInstrument is called on every instrument divider tick.
func (t *Track) stepInstrument() (int, error) {
	if t.instrument == nil || !t.gate {
		return 0, nil
	}
	sustained := !t.released
	seqs := [4]blipkit.Sequence{t.instrument.Volume, t.instrument.Panning, t.instrument.Pitch, t.instrument.DutyCycle}
	for i, s := range seqs {
		if s.Len() > 0 {
			t.seqIndex[i] = s.Next(t.seqIndex[i], sustained)
		}
	}
	if t.released && t.instrument.Volume.Ended(t.seqIndex[0]) && t.instrument.Volume.Get(t.seqIndex[0]) == 0 {
		t.gate = false
	}
	t.dirty = true
	return 0, nil
}

// effectiveVolume combines volume, instrument envelope, tremolo and master
// volume.
func (t *Track) effectiveVolume() int64 {
	v := int64(t.volume.value)
	if t.instrument != nil && t.instrument.Volume.Len() > 0 {
		v = v * int64(clamp(t.instrument.Volume.Get(t.seqIndex[0]), 0, blipkit.MaxVolume)) / blipkit.MaxVolume
	}
	if t.tremolo.active() {
		mod := (t.tremolo.value() + t.tremolo.depth) / 2 // 0 .. depth
		v = v * int64(blipkit.MaxVolume-mod) / blipkit.MaxVolume
	}
	return v * int64(t.masterVolume) / blipkit.MaxVolume
}

func (t *Track) effectivePanning() int {
	p := t.panning.value
	if t.instrument != nil && t.instrument.Panning.Len() > 0 {
		p += t.instrument.Panning.Get(t.seqIndex[1])
	}
	return clamp(p, -blipkit.MaxVolume, blipkit.MaxVolume)
}

func (t *Track) effectiveNote() int {
	n := t.note.value + t.pitch + t.vibrato.value()
	if t.instrument != nil && t.instrument.Pitch.Len() > 0 {
		n += t.instrument.Pitch.Get(t.seqIndex[2])
	}
	return n
}

func (t *Track) audible() bool {
	return t.gate && !t.sampleEnded && t.numPhases() > 0 && t.effectiveVolume() > 0
}

// amplitude returns the output level of channel ch out of n.
func (t *Track) amplitude(ch, n int) int32 {
	if !t.running {
		return 0
	}
	a := int64(t.level()) * t.effectiveVolume() / blipkit.MaxVolume
	if n > 1 {
		pan := t.effectivePanning()
		gain := blipkit.MaxVolume - max(pan, 0) // left
		if ch%2 == 1 {
			gain = blipkit.MaxVolume + min(pan, 0) // right
		}
		a = a * int64(gain) / blipkit.MaxVolume
	}
	return int32(a)
}

// emit moves every channel to its current amplitude at time at.
func (t *Track) emit(channels []*buffer.Buffer, at blipkit.Time) {
	if len(t.out) != len(channels) {
		t.out = make([]int32, len(channels))
	}
	for i, ch := range channels {
		a := t.amplitude(i, len(channels))
		ch.AddDelta(at, a-t.out[i])
		t.out[i] = a
	}
}

// update applies the parameter changes at time from.
func (t *Track) update(channels []*buffer.Buffer, from blipkit.Time) {
	t.dirty = false
	if !t.audible() {
		t.running = false
		t.emit(channels, from)
		return
	}
	rate := t.phaseRate(t.effectiveNote())
	period := blipkit.TimeFromSeconds(t.sampleRate, 1/rate)
	if period.Before(minPeriod) {
		period = minPeriod
	}
	t.period = period
	if !t.running {
		t.running = true
		t.next = from.Add(period)
	}
	t.emit(channels, from)
}

// Render renders the track in [from, to).
func (t *Track) Render(channels []*buffer.Buffer, from, to blipkit.Time) error {
	if t.dirty {
		t.update(channels, from)
	}
	for t.running && t.next.Before(to) {
		t.advancePhase()
		if t.sampleEnded {
			t.running = false
		}
		t.emit(channels, t.next)
		t.next = t.next.Add(t.period)
	}
	return nil
}

// EndFrame moves the pending phase boundary with the time axis.
func (t *Track) EndFrame(length blipkit.Time) {
	if t.running {
		t.next = t.next.Sub(length)
	}
}
