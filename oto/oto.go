// Package oto plays audio sources on the default output device through
// github.com/ebitengine/oto/v3.
package oto

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/vsariola/blipkit"
)

type (
	// OtoContext is an audio output device. Only one can exist per process.
	OtoContext struct {
		context  *oto.Context
		channels int
	}

	// OtoOutput is a source being played.
	OtoOutput struct {
		player *oto.Player
		reader *sourceReader
	}

	sourceReader struct {
		source blipkit.AudioSource
		frames []int16
		mu     sync.Mutex
		closed bool
	}
)

const otoBufferDuration = 50 * time.Millisecond

var _ blipkit.AudioContext = (*OtoContext)(nil)

// NewContext opens the output device for 16-bit audio.
func NewContext(sampleRate, channels int) (*OtoContext, error) {
	context, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   otoBufferDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &OtoContext{context: context, channels: channels}, nil
}

// Play starts playing the source. The source must produce frames with the
// channel count of the context.
func (c *OtoContext) Play(source blipkit.AudioSource) blipkit.CloserWaiter {
	r := &sourceReader{source: source}
	p := c.context.NewPlayer(r)
	p.Play()
	return &OtoOutput{player: p, reader: r}
}

// Close suspends the output device.
func (c *OtoContext) Close() error {
	if err := c.context.Suspend(); err != nil {
		return fmt.Errorf("cannot close oto context: %w", err)
	}
	return nil
}

func (r *sourceReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}
	if cap(r.frames) < len(p)/2 {
		r.frames = make([]int16, len(p)/2)
	}
	frames := r.frames[:len(p)/2]
	n, err := r.source.ReadAudio(frames)
	Int16ToLE(frames[:n], p[:0])
	if errors.Is(err, io.EOF) {
		r.closed = true
	}
	return 2 * n, err
}

func (r *sourceReader) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Wait blocks until the source has ended and the buffered audio has been
// played.
func (o *OtoOutput) Wait() {
	for o.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
}

// Close stops playing.
func (o *OtoOutput) Close() error {
	o.reader.close()
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
