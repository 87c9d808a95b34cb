package blipkit

import "io"

type (
	// AudioSource produces interleaved 16-bit frames on demand. ReadAudio fills
	// as much of frames as it can and returns the number of values written; it
	// returns io.EOF once the source is exhausted.
	AudioSource interface {
		ReadAudio(frames []int16) (n int, err error)
	}

	// AudioContext plays audio sources on an output device.
	AudioContext interface {
		Play(source AudioSource) CloserWaiter
		Close() error
	}

	// CloserWaiter is a handle to something being played: Wait blocks until it
	// has finished, Close stops it early.
	CloserWaiter interface {
		Close() error
		Wait()
	}
)

// FrameSource plays back frames rendered earlier.
type FrameSource struct {
	frames []int16
	pos    int
}

// NewFrameSource returns a source reading the interleaved frames once.
func NewFrameSource(frames []int16) *FrameSource {
	return &FrameSource{frames: frames}
}

func (s *FrameSource) ReadAudio(frames []int16) (int, error) {
	if s.pos >= len(s.frames) {
		return 0, io.EOF
	}
	n := copy(frames, s.frames[s.pos:])
	s.pos += n
	return n, nil
}
