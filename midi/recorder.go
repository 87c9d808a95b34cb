// Package midi records the gate events of track programs and writes them as a
// Standard MIDI File.
package midi

import (
	"fmt"
	"io"
	"os"

	"github.com/vsariola/blipkit"
	"github.com/vsariola/blipkit/vm"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	// Resolution is the number of MIDI ticks per quarter note.
	Resolution = 960
	// Tempo is the tempo written to the file, in beats per minute. Event
	// times are converted from seconds, so the tempo only affects how a
	// sequencer displays them.
	Tempo = 120.0

	ticksPerSecond = Resolution * Tempo / 60
)

type (
	// Recorder collects note events from any number of sinks. The time of
	// each event is read from the clock given to NewRecorder, typically
	// engine.Context.Time.
	Recorder struct {
		sampleRate int
		now        func() blipkit.Time
		sinks      []*Sink
	}

	// Sink forwards every call to the wrapped sink and records the note
	// events.
	Sink struct {
		vm.Sink
		rec      *Recorder
		name     string
		channel  uint8
		volume   int
		key      uint8
		sounding bool
		events   []event
	}

	event struct {
		at  blipkit.Time
		msg midi.Message
	}
)

// NewRecorder returns a recorder reading event times from now.
func NewRecorder(sampleRate int, now func() blipkit.Time) *Recorder {
	return &Recorder{sampleRate: sampleRate, now: now}
}

// Wrap returns a sink recording the note events sent to s. Each wrapped sink
// becomes one track of the file, on MIDI channel index modulo 16.
func (r *Recorder) Wrap(name string, s vm.Sink) *Sink {
	ret := &Sink{Sink: s, rec: r, name: name, channel: uint8(len(r.sinks) % 16), volume: blipkit.MaxVolume}
	r.sinks = append(r.sinks, ret)
	return ret
}

// Sinks returns the recording sinks in the order they were created.
func (r *Recorder) Sinks() []*Sink { return r.sinks }

func (s *Sink) Attack(note int) {
	s.Sink.Attack(note)
	s.noteOff()
	s.noteOn(note)
}

func (s *Sink) Release() {
	s.Sink.Release()
	s.noteOff()
}

func (s *Sink) Mute() {
	s.Sink.Mute()
	s.noteOff()
}

// SetNote retriggers a sounding note when the key changes, e.g. on every
// arpeggio step.
func (s *Sink) SetNote(note int) {
	s.Sink.SetNote(note)
	if s.sounding && Key(note) != s.key {
		s.noteOff()
		s.noteOn(note)
	}
}

func (s *Sink) SetVolume(volume int) {
	s.Sink.SetVolume(volume)
	s.volume = volume
}

// Name returns the track name given to Wrap.
func (s *Sink) Name() string { return s.name }

// NumEvents returns the number of recorded MIDI messages.
func (s *Sink) NumEvents() int { return len(s.events) }

func (s *Sink) noteOn(note int) {
	s.key = Key(note)
	s.sounding = true
	s.add(midi.NoteOn(s.channel, s.key, Velocity(s.volume)))
}

func (s *Sink) noteOff() {
	if !s.sounding {
		return
	}
	s.sounding = false
	s.add(midi.NoteOff(s.channel, s.key))
}

func (s *Sink) add(msg midi.Message) {
	s.events = append(s.events, event{at: s.rec.now(), msg: msg})
}

// Key converts a note in cents to the nearest MIDI key.
func Key(note int) uint8 {
	k := (note + blipkit.NoteUnit/2) / blipkit.NoteUnit
	return uint8(max(0, min(k, 127)))
}

// Velocity converts a track volume to a MIDI velocity; audible volumes map to
// at least 1, since velocity 0 means note off.
func Velocity(volume int) uint8 {
	if volume <= 0 {
		return 0
	}
	return uint8(max(1, min(volume*127/blipkit.MaxVolume, 127)))
}

// SMF builds the file: a tempo track followed by one track per sink. Notes
// still sounding are ended at end, the absolute time at which recording
// stopped.
func (r *Recorder) SMF(end blipkit.Time) (*smf.SMF, error) {
	file := smf.NewSMF1()
	file.TimeFormat = smf.MetricTicks(Resolution)
	var tempo smf.Track
	tempo.Add(0, smf.MetaTempo(Tempo))
	tempo.Close(0)
	if err := file.Add(tempo); err != nil {
		return nil, fmt.Errorf("could not add tempo track: %w", err)
	}
	for _, s := range r.sinks {
		var tr smf.Track
		tr.Add(0, smf.MetaTrackSequenceName(s.name))
		var last uint32
		events := s.events
		if s.sounding {
			events = append(events[:len(events):len(events)], event{at: end, msg: midi.NoteOff(s.channel, s.key)})
		}
		for _, e := range events {
			t := r.ticks(e.at)
			tr.Add(t-min(t, last), e.msg)
			last = max(t, last)
		}
		tr.Close(0)
		if err := file.Add(tr); err != nil {
			return nil, fmt.Errorf("could not add track %q: %w", s.name, err)
		}
	}
	return file, nil
}

func (r *Recorder) ticks(t blipkit.Time) uint32 {
	if t.Samples < 0 {
		return 0
	}
	return uint32(t.Seconds(r.sampleRate)*ticksPerSecond + 0.5)
}

// WriteTo writes the file, ending sounding notes at the current time.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	file, err := r.SMF(r.now())
	if err != nil {
		return 0, err
	}
	n, err := file.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("could not write MIDI file: %w", err)
	}
	return n, nil
}

// WriteFile writes the file to path.
func (r *Recorder) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create MIDI file: %w", err)
	}
	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
