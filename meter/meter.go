// Package meter measures rendered audio: peak and RMS levels per channel and
// the dominant frequency of a signal.
package meter

import (
	"math"
	"math/cmplx"

	"github.com/maddyblue/go-dsp/fft"
	"github.com/viterin/vek/vek32"
)

type (
	// Decibel is a level relative to full scale.
	Decibel float32

	// Level is the peak and RMS level of one channel, in linear units where
	// 1 is full scale.
	Level struct {
		Peak float32
		RMS  float32
	}
)

// Float32 converts 16-bit frames to floats in -1 .. 1.
func Float32(frames []int16) []float32 {
	ret := make([]float32, len(frames))
	for i, v := range frames {
		ret[i] = float32(v) / 32768
	}
	return ret
}

// Peak returns the largest absolute value of samples, 0 for no samples.
func Peak(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	return vek32.Max(vek32.Abs(samples))
}

// RMS returns the root mean square of samples, 0 for no samples.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	return float32(math.Sqrt(float64(vek32.Dot(samples, samples)) / float64(len(samples))))
}

// Levels measures every channel of interleaved frames.
func Levels(frames []int16, channels int) []Level {
	if channels < 1 {
		return nil
	}
	ret := make([]Level, channels)
	n := len(frames) / channels
	tmp := make([]float32, n)
	for ch := range ret {
		// deinterleave the channel
		for i := range tmp {
			tmp[i] = float32(frames[i*channels+ch]) / 32768
		}
		ret[ch] = Level{Peak: Peak(tmp), RMS: RMS(tmp)}
	}
	return ret
}

// PeakDB returns the peak level in decibels; silence is -Inf.
func (l Level) PeakDB() Decibel { return toDecibel(l.Peak) }

// RMSDB returns the RMS level in decibels; silence is -Inf.
func (l Level) RMSDB() Decibel { return toDecibel(l.RMS) }

func toDecibel(v float32) Decibel {
	return Decibel(20 * math.Log10(float64(v)))
}

// DominantFrequency returns the frequency in Hz of the strongest component of
// samples, ignoring DC, with a resolution of sampleRate / len(samples). It
// returns 0 for fewer than two samples.
func DominantFrequency(samples []float32, sampleRate int) float64 {
	if len(samples) < 2 {
		return 0
	}
	data := make([]float64, len(samples))
	for i, v := range samples {
		data[i] = float64(v)
	}
	spectrum := fft.FFTReal(data)
	best, bestMag := 0, 0.0
	for k := 1; k <= len(spectrum)/2; k++ {
		if m := cmplx.Abs(spectrum[k]); m > bestMag {
			best, bestMag = k, m
		}
	}
	return float64(best) * float64(sampleRate) / float64(len(samples))
}
