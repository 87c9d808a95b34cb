// Package blipkit contains the data types shared by the blipkit packages:
// fixed point sample time, attributes, errors, and the instrument, waveform and
// song descriptions that track programs refer to.
//
// The engine itself lives in package engine, the track program interpreter in
// package vm and the sound generating track unit in package track.
package blipkit

import "fmt"

const (
	MaxChannels   = 8
	MinSampleRate = 16000
	MaxSampleRate = 96000

	// DefaultClockRate is the master clock rate in ticks per second.
	DefaultClockRate = 240

	// MaxVolume is full scale for volumes and panning.
	MaxVolume = 0x7FFF

	// NoteUnit is the resolution of notes and pitch: cents per semitone.
	NoteUnit = 100
	MinNote  = 0
	MaxNote  = 127 * NoteUnit

	// MaxArpeggio is the maximum number of offsets in an arpeggio.
	MaxArpeggio = 8

	// StackSize is the depth of the interpreter call stack.
	StackSize = 64

	// CustomWaveformFlag marks a waveform operand as an index into the
	// waveform table instead of a built-in waveform.
	CustomWaveformFlag = 1 << 24

	DefaultArpeggioDivider   = 4
	DefaultEffectDivider     = 1
	DefaultInstrumentDivider = 4
)

type (
	// Waveform is a built-in waveform of a track.
	Waveform int

	// Effect is a parameter ramp or modulation of a track.
	Effect int

	// ClockType selects one of the context's built-in divider groups.
	ClockType int
)

const (
	Square Waveform = iota
	Triangle
	Noise
	Sawtooth
	Sine
	Custom
	Sample
)

const (
	EffectVolumeSlide Effect = iota
	EffectPanningSlide
	EffectPortamento
	EffectTremolo
	EffectVibrato
)

const (
	ClockEffect ClockType = iota
	ClockBeat
)

var waveformNames = [...]string{"square", "triangle", "noise", "sawtooth", "sine", "custom", "sample"}

var effectNames = [...]string{"volumeslide", "panningslide", "portamento", "tremolo", "vibrato"}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return fmt.Sprintf("waveform(%d)", int(w))
	}
	return waveformNames[w]
}

// ParseWaveform returns the built-in waveform with the given name.
func ParseWaveform(name string) (Waveform, error) {
	for i, n := range waveformNames {
		if n == name {
			return Waveform(i), nil
		}
	}
	return 0, fmt.Errorf("unknown waveform %q: %w", name, ErrInvalidValue)
}

func (e Effect) String() string {
	if e < 0 || int(e) >= len(effectNames) {
		return fmt.Sprintf("effect(%d)", int(e))
	}
	return effectNames[e]
}

// ParseEffect returns the effect with the given name.
func ParseEffect(name string) (Effect, error) {
	for i, n := range effectNames {
		if n == name {
			return Effect(i), nil
		}
	}
	return 0, fmt.Errorf("unknown effect %q: %w", name, ErrInvalidValue)
}

func (c ClockType) String() string {
	switch c {
	case ClockEffect:
		return "effect"
	case ClockBeat:
		return "beat"
	}
	return fmt.Sprintf("clock(%d)", int(c))
}

// ParseClockType parses "effect" or "beat"; the empty string means beat.
func ParseClockType(name string) (ClockType, error) {
	switch name {
	case "", "beat":
		return ClockBeat, nil
	case "effect":
		return ClockEffect, nil
	}
	return 0, fmt.Errorf("unknown clock %q: %w", name, ErrInvalidValue)
}
