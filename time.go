package blipkit

import (
	"fmt"
	"math"
)

const (
	// FracBits is the number of fractional bits in a Time. It equals the
	// maximum clock ratio of the channel buffers, so a Time converts into
	// buffer clocks without loss.
	FracBits = 20
	// FracUnit is one sample expressed in fractional units.
	FracUnit = 1 << FracBits
	fracMask = FracUnit - 1
)

// Time is a point or a duration on the sample time axis: a whole number of
// samples plus a 20-bit sub-sample fraction. The zero value is time zero.
//
// Every Time produced by this package is normalized, i.e. 0 <= Frac <
// FracUnit, also for negative times: -0.25 samples is {Samples: -1, Frac:
// 0.75 * FracUnit}.
type Time struct {
	Samples int64
	Frac    uint32
}

// TimeFromSamples returns a Time of n whole samples.
func TimeFromSamples(n int64) Time {
	return Time{Samples: n}
}

// TimeFromRaw converts a raw fixed point value (samples << FracBits | frac)
// into a Time.
func TimeFromRaw(raw int64) Time {
	return Time{Samples: raw >> FracBits, Frac: uint32(raw & fracMask)}
}

// TimeFromSeconds converts seconds into a Time at the given sample rate,
// rounding to the nearest fractional unit.
func TimeFromSeconds(sampleRate int, seconds float64) Time {
	return TimeFromRaw(int64(math.Round(float64(sampleRate) * seconds * FracUnit)))
}

// Raw returns the time as a single fixed point value (samples << FracBits |
// frac).
func (t Time) Raw() int64 {
	return t.Samples<<FracBits | int64(t.Frac)
}

func (t Time) normalize() Time {
	if t.Frac >= FracUnit {
		t.Samples += int64(t.Frac >> FracBits)
		t.Frac &= fracMask
	}
	return t
}

// Add returns t + u.
func (t Time) Add(u Time) Time {
	return Time{Samples: t.Samples + u.Samples, Frac: t.Frac + u.Frac}.normalize()
}

// Sub returns t - u.
func (t Time) Sub(u Time) Time {
	s := t.Samples - u.Samples
	if t.Frac < u.Frac {
		return Time{Samples: s - 1, Frac: t.Frac + FracUnit - u.Frac}
	}
	return Time{Samples: s, Frac: t.Frac - u.Frac}
}

// Mul returns t * n. The fraction is carried exactly, so adding t to itself n
// times yields the same value.
func (t Time) Mul(n int64) Time {
	frac := uint64(t.Frac) * uint64(absInt64(n))
	r := Time{Samples: t.Samples * absInt64(n), Frac: uint32(frac & fracMask)}
	r.Samples += int64(frac >> FracBits)
	if n < 0 {
		return Time{}.Sub(r)
	}
	return r
}

// Cmp returns -1, 0 or +1 depending on whether t is before, equal to or after
// u.
func (t Time) Cmp(u Time) int {
	switch {
	case t.Samples < u.Samples:
		return -1
	case t.Samples > u.Samples:
		return 1
	case t.Frac < u.Frac:
		return -1
	case t.Frac > u.Frac:
		return 1
	}
	return 0
}

func (t Time) Before(u Time) bool { return t.Cmp(u) < 0 }
func (t Time) After(u Time) bool  { return t.Cmp(u) > 0 }
func (t Time) IsZero() bool       { return t.Samples == 0 && t.Frac == 0 }

// Floor returns the number of whole samples, rounded towards negative
// infinity.
func (t Time) Floor() int64 {
	return t.Samples
}

// Ceil returns the number of whole samples, rounded towards positive infinity.
func (t Time) Ceil() int64 {
	if t.Frac > 0 {
		return t.Samples + 1
	}
	return t.Samples
}

// Seconds converts the time into seconds at the given sample rate.
func (t Time) Seconds(sampleRate int) float64 {
	return (float64(t.Samples) + float64(t.Frac)/FracUnit) / float64(sampleRate)
}

// MinTime returns the earliest of the given times.
func MinTime(t Time, others ...Time) Time {
	for _, o := range others {
		if o.Before(t) {
			t = o
		}
	}
	return t
}

func (t Time) String() string {
	return fmt.Sprintf("%d+%d/%d", t.Samples, t.Frac, FracUnit)
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
