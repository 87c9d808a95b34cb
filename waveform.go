package blipkit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// WaveformData is an entry of the waveform table: either a custom waveform
// given as a list of levels, or a sample loaded from a file.
type WaveformData struct {
	Name string `yaml:",omitempty"`

	// Levels of a custom waveform, -MaxVolume .. MaxVolume, one per phase.
	Levels []int `yaml:",flow,omitempty"`

	// Sample is the path of a .wav or .mp3 file, relative to the song file.
	Sample   string `yaml:",omitempty"`
	BaseNote int    `yaml:",omitempty"` // note (in cents) at which the sample plays at its own rate
	Repeat   bool   `yaml:",omitempty"`

	// Frames holds mono sample data in -1 .. 1, filled by Load.
	Frames     []float32 `yaml:"-" json:"-"`
	SampleRate int       `yaml:"-" json:"-"`
}

// IsSample reports whether the entry is a sample rather than a custom
// waveform.
func (w *WaveformData) IsSample() bool {
	return w.Sample != "" || len(w.Frames) > 0
}

// Load reads the sample file of the entry, if any. Relative paths are resolved
// against dir.
func (w *WaveformData) Load(dir string) error {
	if w.Sample == "" || len(w.Frames) > 0 {
		return nil
	}
	path := w.Sample
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	frames, rate, err := LoadSample(path)
	if err != nil {
		return fmt.Errorf("waveform %q: %w", w.Name, err)
	}
	w.Frames, w.SampleRate = frames, rate
	if w.BaseNote == 0 {
		w.BaseNote = 60 * NoteUnit
	}
	return nil
}

// LoadSample decodes a .wav or .mp3 file into mono frames. Multichannel files
// are reduced to their first channel.
func LoadSample(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("could not open sample: %w", err)
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWav(f)
	case ".mp3":
		return decodeMp3(f)
	}
	return nil, 0, fmt.Errorf("unsupported sample format %q: %w", filepath.Ext(path), ErrInvalidValue)
}

func decodeWav(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if dec == nil || !dec.IsValidFile() {
		return nil, 0, errors.New("wav: not a valid wav file")
	}
	if dec.BitDepth == 0 {
		return nil, 0, errors.New("wav: unknown bit depth")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wav: %w", err)
	}
	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	// FullPCMBuffer keeps integer scale; normalize by bit depth
	scale := float32(int64(1) << (dec.BitDepth - 1))
	frames := firstChannel(buf.AsFloat32Buffer(), channels, scale)
	return frames, int(dec.SampleRate), nil
}

func firstChannel(buf *audio.Float32Buffer, channels int, scale float32) []float32 {
	frames := make([]float32, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		frames = append(frames, buf.Data[i]/scale)
	}
	return frames
}

func decodeMp3(r io.Reader) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3: %w", err)
	}
	// go-mp3 always decodes to 16-bit little endian stereo
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3: %w", err)
	}
	frames := make([]float32, 0, len(raw)/4)
	for i := 0; i+3 < len(raw); i += 4 {
		v := int16(uint16(raw[i]) | uint16(raw[i+1])<<8)
		frames = append(frames, float32(v)/32768)
	}
	return frames, dec.SampleRate(), nil
}
