// Package buffer implements the channel buffers of a context: band-limited
// step synthesis on top of github.com/arl/blip. Units add amplitude deltas at
// sub-sample times; ending a frame makes the samples before its end readable.
package buffer

import (
	"fmt"

	"github.com/arl/blip"
	"github.com/vsariola/blipkit"
)

// MaxFrame is the longest frame, in samples, that can be ended at once. At
// 2^20 clocks per sample, blip's fixed-point time overflows past 4096 samples
// of a frame.
const MaxFrame = 4000

// Buffer accumulates the deltas of one output channel.
//
// Times are relative to the start of the current frame. The buffer runs at the
// maximum clock ratio of blip, 2^20 clocks per sample, which is also the
// resolution of blipkit.Time.
type Buffer struct {
	blip       *blip.Buffer
	sampleRate int
	size       int
	avail      int
	scratch    []int16
}

// New returns a buffer holding up to size samples.
func New(sampleRate, size int) (*Buffer, error) {
	if size < 1 || sampleRate < 1 {
		return nil, fmt.Errorf("buffer of %v samples at %v Hz: %w", size, sampleRate, blipkit.ErrInvalidValue)
	}
	b := &Buffer{sampleRate: sampleRate, size: size}
	b.blip = b.newBlip()
	if b.blip == nil {
		return nil, fmt.Errorf("buffer of %v samples: %w", size, blipkit.ErrAllocation)
	}
	return b, nil
}

func (b *Buffer) newBlip() *blip.Buffer {
	bl := blip.NewBuffer(b.size)
	if bl != nil {
		bl.SetRates(float64(b.sampleRate)*float64(blip.MaxRatio), float64(b.sampleRate))
	}
	return bl
}

// Size returns the capacity in samples.
func (b *Buffer) Size() int { return b.size }

// Avail returns the number of samples that can be read.
func (b *Buffer) Avail() int { return b.avail }

// Free returns the number of samples that can still be ended before the
// buffer is full.
func (b *Buffer) Free() int { return b.size - b.avail }

// FrameLimit returns the longest frame that can be ended now: the free
// space, but no more than MaxFrame.
func (b *Buffer) FrameLimit() int { return min(b.Free(), MaxFrame) }

func clocks(t blipkit.Time) uint64 {
	if t.Samples < 0 {
		return 0
	}
	return uint64(t.Raw()) * uint64(blip.MaxRatio) >> blipkit.FracBits
}

// AddDelta adds an amplitude change at time t of the current frame.
func (b *Buffer) AddDelta(t blipkit.Time, delta int32) {
	if delta == 0 {
		return
	}
	b.blip.AddDelta(clocks(t), delta)
}

// EndFrame ends the current frame after length whole samples; the next frame
// starts at that point. samples must not exceed FrameLimit.
func (b *Buffer) EndFrame(samples int) {
	b.blip.EndFrame(int(clocks(blipkit.TimeFromSamples(int64(samples)))))
	b.avail += samples
}

// Read removes up to count samples and writes them into out at indices 0,
// stride, 2*stride, and so on. It returns the number of samples read.
func (b *Buffer) Read(out []int16, count, stride int) int {
	count = min(count, b.avail)
	if stride < 1 || count <= 0 {
		return 0
	}
	count = min(count, (len(out)+stride-1)/stride)
	if cap(b.scratch) < 2*count {
		b.scratch = make([]int16, 2*count)
	}
	scratch := b.scratch[:2*count]
	b.blip.ReadSamples(scratch, count, blip.Stereo)
	for i := 0; i < count; i++ {
		out[i*stride] = scratch[2*i]
	}
	b.avail -= count
	return count
}

// Clear drops all samples and pending deltas.
func (b *Buffer) Clear() {
	b.blip = b.newBlip()
	b.avail = 0
}
