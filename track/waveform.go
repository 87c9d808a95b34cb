package track

import (
	"math"

	"github.com/vsariola/blipkit"
)

const (
	squarePhases   = 16
	trianglePhases = 32
	noisePhases    = 16
	sawtoothPhases = 7
	sinePhases     = 32

	// DefaultDutyCycle is the duty cycle of square waves in 1/16ths.
	DefaultDutyCycle = 8

	noiseSeed = 0x7FFF
)

var (
	triangleTable [trianglePhases]int32
	sawtoothTable [sawtoothPhases]int32
	sineTable     [sinePhases]int32
)

func init() {
	for i := range triangleTable {
		// rises over the first half, falls over the second
		v := i * 4 * blipkit.MaxVolume / trianglePhases
		if i >= trianglePhases/2 {
			v = 4*blipkit.MaxVolume - v
		}
		triangleTable[i] = int32(v - blipkit.MaxVolume)
	}
	for i := range sawtoothTable {
		sawtoothTable[i] = int32(-blipkit.MaxVolume + i*2*blipkit.MaxVolume/(sawtoothPhases-1))
	}
	for i := range sineTable {
		sineTable[i] = int32(math.Round(math.Sin(2*math.Pi*float64(i)/sinePhases) * blipkit.MaxVolume))
	}
}

// numPhases returns the number of phases per period of the current waveform.
func (t *Track) numPhases() int {
	switch t.waveform {
	case blipkit.Triangle:
		return trianglePhases
	case blipkit.Noise:
		return noisePhases
	case blipkit.Sawtooth:
		return sawtoothPhases
	case blipkit.Sine:
		return sinePhases
	case blipkit.Custom:
		return len(t.custom.Levels)
	case blipkit.Sample:
		return len(t.custom.Frames)
	}
	return squarePhases
}

// level returns the waveform level of the current phase, -MaxVolume ..
// MaxVolume.
func (t *Track) level() int32 {
	switch t.waveform {
	case blipkit.Triangle:
		return triangleTable[t.phase]
	case blipkit.Noise:
		if t.lfsr&1 != 0 {
			return blipkit.MaxVolume
		}
		return -blipkit.MaxVolume
	case blipkit.Sawtooth:
		return sawtoothTable[t.phase]
	case blipkit.Sine:
		return sineTable[t.phase]
	case blipkit.Custom:
		return int32(clamp(t.custom.Levels[t.phase], -blipkit.MaxVolume, blipkit.MaxVolume))
	case blipkit.Sample:
		if t.sampleEnded {
			return 0
		}
		return int32(math.Round(float64(t.custom.Frames[t.phase]) * blipkit.MaxVolume))
	}
	if t.phase < t.dutyCycle() {
		return blipkit.MaxVolume
	}
	return -blipkit.MaxVolume
}

// advancePhase moves to the next phase of the waveform.
func (t *Track) advancePhase() {
	t.phase++
	t.phaseCount++
	if t.waveform == blipkit.Noise {
		bit := (t.lfsr ^ t.lfsr>>1) & 1
		t.lfsr = t.lfsr>>1 | bit<<14
	}
	if t.phase >= t.numPhases() {
		if t.waveform == blipkit.Sample && !t.custom.Repeat {
			t.phase = t.numPhases() - 1
			t.sampleEnded = true
		} else {
			t.phase = 0
		}
	}
	if t.phaseWrap > 0 && t.phaseCount >= t.phaseWrap {
		t.phase = 0
		t.phaseCount = 0
		t.lfsr = noiseSeed
	}
}

// phaseRate returns the number of phases per second.
func (t *Track) phaseRate(note int) float64 {
	if t.waveform == blipkit.Sample {
		return float64(t.custom.SampleRate) * math.Exp2(float64(note-t.custom.BaseNote)/1200)
	}
	return Frequency(note) * float64(t.numPhases())
}

// Frequency returns the frequency in Hz of a note in cents, a4 (6900) being
// 440 Hz.
func Frequency(note int) float64 {
	return 440 * math.Exp2(float64(note-6900)/1200)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
