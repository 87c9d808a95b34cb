package blipkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type (
	// Song is the description of a piece of music: the output format, the
	// master clock rate, the shared instrument and waveform tables and the
	// tracks. Each track has its own program, but all tracks resolve their
	// instrument and waveform operands against the same tables.
	Song struct {
		SampleRate  int            `yaml:",omitempty"`
		Channels    int            `yaml:",omitempty"`
		TickRate    float64        `yaml:",omitempty"` // master clock ticks per second
		Instruments []Instrument   `yaml:",omitempty"`
		Waveforms   []WaveformData `yaml:",omitempty"`
		Tracks      []Track
	}

	// Track is one voice of the song: the program source driving it and its
	// initial settings.
	Track struct {
		Name string `yaml:",omitempty"`

		// Waveform is the initial built-in waveform, "square" by default.
		Waveform string `yaml:",omitempty"`

		// Clock selects the divider group stepping the program: "beat"
		// (default) or "effect".
		Clock string `yaml:",omitempty"`

		// Program is the assembly source of the track program; see
		// vm.Assemble for the syntax.
		Program string
	}
)

// LoadSong reads a song from a .yml or .json file and loads the samples it
// refers to. Defaults are filled in for missing settings.
func LoadSong(path string) (*Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read song %v: %w", path, err)
	}
	song, err := ParseSong(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse song %v: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range song.Waveforms {
		if err := song.Waveforms[i].Load(dir); err != nil {
			return nil, err
		}
	}
	return song, nil
}

// ParseSong unmarshals a song from JSON or YAML and fills in defaults. Samples
// are not loaded.
func ParseSong(data []byte) (*Song, error) {
	var song Song
	if errJSON := json.Unmarshal(data, &song); errJSON != nil {
		song = Song{}
		if errYaml := yaml.Unmarshal(data, &song); errYaml != nil {
			return nil, fmt.Errorf("the song could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	song.FillDefaults()
	if err := song.Validate(); err != nil {
		return nil, err
	}
	return &song, nil
}

// FillDefaults sets zero valued settings to their defaults.
func (s *Song) FillDefaults() {
	if s.SampleRate == 0 {
		s.SampleRate = 44100
	}
	if s.Channels == 0 {
		s.Channels = 2
	}
	if s.TickRate == 0 {
		s.TickRate = DefaultClockRate
	}
}

// Validate checks that the song can be played: supported output format, a
// positive tick rate and at least one track.
func (s *Song) Validate() error {
	if s.SampleRate < MinSampleRate || s.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample rate %v not in %v .. %v: %w", s.SampleRate, MinSampleRate, MaxSampleRate, ErrInvalidValue)
	}
	if s.Channels < 1 || s.Channels > MaxChannels {
		return fmt.Errorf("channel count %v not in 1 .. %v: %w", s.Channels, MaxChannels, ErrInvalidValue)
	}
	if s.TickRate <= 0 {
		return fmt.Errorf("tick rate should be > 0: %w", ErrInvalidValue)
	}
	if len(s.Tracks) == 0 {
		return errors.New("song contains no tracks")
	}
	return nil
}

// ClockPeriod returns the master clock period of the song.
func (s *Song) ClockPeriod() Time {
	return TimeFromSeconds(s.SampleRate, 1/s.TickRate)
}

// InstrumentTable returns pointers to the song's instruments, the form in
// which interpreters reference them.
func (s *Song) InstrumentTable() []*Instrument {
	ret := make([]*Instrument, len(s.Instruments))
	for i := range s.Instruments {
		ret[i] = &s.Instruments[i]
	}
	return ret
}

// WaveformTable returns pointers to the song's waveform entries.
func (s *Song) WaveformTable() []*WaveformData {
	ret := make([]*WaveformData, len(s.Waveforms))
	for i := range s.Waveforms {
		ret[i] = &s.Waveforms[i]
	}
	return ret
}

// Copy makes a deep copy of a Song.
func (s *Song) Copy() Song {
	instruments := make([]Instrument, len(s.Instruments))
	for i := range s.Instruments {
		instruments[i] = s.Instruments[i].Copy()
	}
	waveforms := make([]WaveformData, len(s.Waveforms))
	for i, w := range s.Waveforms {
		w.Levels = append([]int(nil), w.Levels...)
		w.Frames = append([]float32(nil), w.Frames...)
		waveforms[i] = w
	}
	tracks := make([]Track, len(s.Tracks))
	copy(tracks, s.Tracks)
	return Song{
		SampleRate:  s.SampleRate,
		Channels:    s.Channels,
		TickRate:    s.TickRate,
		Instruments: instruments,
		Waveforms:   waveforms,
		Tracks:      tracks,
	}
}
