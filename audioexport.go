package blipkit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// Streamer adapts an AudioSource of interleaved frames to a beep.Streamer. A
// mono source is duplicated on both sides; of sources with more than two
// channels only the first two are streamed. The stream is drained when the
// source returns io.EOF.
type Streamer struct {
	source   AudioSource
	channels int
	frames   []int16
	err      error
	drained  bool
}

var _ beep.Streamer = (*Streamer)(nil)

// NewStreamer returns a streamer reading frames of the given number of
// channels from source.
func NewStreamer(source AudioSource, channels int) *Streamer {
	return &Streamer{source: source, channels: max(channels, 1)}
}

func (s *Streamer) Stream(samples [][2]float64) (n int, ok bool) {
	nc := s.channels
	if need := len(samples) * nc; cap(s.frames) < need {
		s.frames = make([]int16, need)
	}
	for n < len(samples) && !s.drained {
		m, err := s.source.ReadAudio(s.frames[n*nc : len(samples)*nc])
		for i := n; i < n+m/nc; i++ {
			l := s.frames[i*nc]
			r := l
			if nc > 1 {
				r = s.frames[i*nc+1]
			}
			samples[i] = [2]float64{float64(l) / 32768, float64(r) / 32768}
		}
		n += m / nc
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			s.drained = true
		} else if m == 0 {
			break
		}
	}
	return n, n > 0
}

func (s *Streamer) Err() error {
	return s.err
}

// Wav encodes frames taken from the streamer as a 16-bit stereo .wav file.
// When frames is positive, at most that many frames are encoded; otherwise
// the streamer is drained.
func Wav(w io.WriteSeeker, streamer beep.Streamer, sampleRate int, frames int) error {
	if frames > 0 {
		streamer = beep.Take(frames, streamer)
	}
	format := beep.Format{SampleRate: beep.SampleRate(sampleRate), NumChannels: 2, Precision: 2}
	if err := wav.Encode(w, streamer, format); err != nil {
		return fmt.Errorf("Wav failed: %w", err)
	}
	if err := streamer.Err(); err != nil {
		return fmt.Errorf("Wav failed: %w", err)
	}
	return nil
}

// Raw returns the interleaved frames as little-endian bytes, either as 16-bit
// integers (pcm16) or as 32-bit floats.
func Raw(frames []int16, pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	var err error
	if pcm16 {
		err = binary.Write(buf, binary.LittleEndian, frames)
	} else {
		floats := make([]float32, len(frames))
		for i, v := range frames {
			floats[i] = float32(v) / 32768
		}
		err = binary.Write(buf, binary.LittleEndian, floats)
	}
	if err != nil {
		return nil, fmt.Errorf("Raw failed: %w", err)
	}
	return buf.Bytes(), nil
}
