// Package player turns a blipkit.Song into a running engine: one track unit
// and one driver per song track, all attached to a single context.
package player

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vsariola/blipkit"
	"github.com/vsariola/blipkit/engine"
	"github.com/vsariola/blipkit/midi"
	"github.com/vsariola/blipkit/track"
	"github.com/vsariola/blipkit/vm"
)

// DefaultTail is how long, in seconds, the player keeps rendering after every
// track program has ended.
const DefaultTail = 0.1

type (
	// Player renders a song. It implements blipkit.AudioSource, returning
	// io.EOF once all programs have ended and the tail has been rendered.
	Player struct {
		song     *blipkit.Song
		ctx      *engine.Context
		tracks   []*track.Track
		drivers  []*engine.Driver
		recorder *midi.Recorder
		logger   *slog.Logger
		tail     int
		tailLeft int
	}

	// Option configures a Player in New.
	Option func(*config)

	config struct {
		logger *slog.Logger
		record bool
		tail   float64
	}
)

// WithLogger sets the logger of the player and its context.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMIDI records the note events of every track; see Player.Recorder.
func WithMIDI() Option {
	return func(c *config) { c.record = true }
}

// WithTail sets the time rendered after the programs have ended.
func WithTail(seconds float64) Option {
	return func(c *config) { c.tail = max(seconds, 0) }
}

// New assembles the programs of the song and attaches them to a new context.
// The song's tables are shared with the interpreters, not copied.
func New(song *blipkit.Song, opts ...Option) (*Player, error) {
	cfg := config{logger: slog.Default(), tail: DefaultTail}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := song.Validate(); err != nil {
		return nil, err
	}
	ctx, err := engine.New(song.Channels, song.SampleRate,
		engine.WithLogger(cfg.logger),
		engine.WithClockPeriod(song.ClockPeriod()))
	if err != nil {
		return nil, fmt.Errorf("could not create context: %w", err)
	}
	p := &Player{song: song, ctx: ctx, logger: cfg.logger}
	p.tail = int(cfg.tail * float64(song.SampleRate))
	p.tailLeft = p.tail
	if cfg.record {
		p.recorder = midi.NewRecorder(song.SampleRate, ctx.Time)
	}
	symbols := vm.SongSymbols(song)
	instruments, waveforms := song.InstrumentTable(), song.WaveformTable()
	for i, st := range song.Tracks {
		name := st.Name
		if name == "" {
			name = fmt.Sprintf("track%d", i)
		}
		program, err := vm.AssembleWithSymbols(st.Program, symbols)
		if err != nil {
			return nil, fmt.Errorf("track %q: %w", name, err)
		}
		clockType, err := blipkit.ParseClockType(st.Clock)
		if err != nil {
			return nil, fmt.Errorf("track %q: %w", name, err)
		}
		tr := track.New(song.SampleRate)
		if err := setWaveform(tr, st.Waveform, song); err != nil {
			return nil, fmt.Errorf("track %q: %w", name, err)
		}
		if err := tr.Attach(ctx); err != nil {
			return nil, fmt.Errorf("track %q: %w", name, err)
		}
		var sink vm.Sink = tr
		if p.recorder != nil {
			sink = p.recorder.Wrap(name, tr)
		}
		d := engine.NewDriver(name, vm.NewInterpreter(program, instruments, waveforms), sink)
		if err := ctx.AttachDriver(d, clockType); err != nil {
			return nil, fmt.Errorf("track %q: %w", name, err)
		}
		p.tracks = append(p.tracks, tr)
		p.drivers = append(p.drivers, d)
		p.logger.Debug("track loaded", "track", name, "words", len(program.Code), "clock", clockType.String())
	}
	return p, nil
}

func setWaveform(tr *track.Track, name string, song *blipkit.Song) error {
	if name == "" {
		return nil
	}
	if w, err := blipkit.ParseWaveform(name); err == nil && w < blipkit.Custom {
		tr.SetWaveform(w)
		return nil
	}
	for i := range song.Waveforms {
		if song.Waveforms[i].Name == name {
			tr.SetCustomWaveform(&song.Waveforms[i])
			return nil
		}
	}
	return fmt.Errorf("unknown waveform %q: %w", name, blipkit.ErrInvalidValue)
}

func (p *Player) Context() *engine.Context  { return p.ctx }
func (p *Player) Song() *blipkit.Song       { return p.song }
func (p *Player) Tracks() []*track.Track    { return p.tracks }
func (p *Player) Drivers() []*engine.Driver { return p.drivers }
func (p *Player) NumChannels() int          { return p.ctx.NumChannels() }
func (p *Player) SampleRate() int           { return p.ctx.SampleRate() }

// Recorder returns the MIDI recorder, or nil if the player was created
// without WithMIDI.
func (p *Player) Recorder() *midi.Recorder { return p.recorder }

// Done reports whether all programs have ended and the tail has been
// rendered.
func (p *Player) Done() bool {
	return p.ctx.DriversDone() && p.tailLeft <= 0
}

// Err returns the faults of the programs that were halted, joined.
func (p *Player) Err() error {
	var errs []error
	for _, d := range p.drivers {
		if err := d.Err(); err != nil {
			errs = append(errs, fmt.Errorf("track %q: %w", d.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ReadAudio renders up to len(frames) / NumChannels frames and returns the
// number of values written.
func (p *Player) ReadAudio(frames []int16) (int, error) {
	nc := p.ctx.NumChannels()
	want := len(frames) / nc
	ended := p.ctx.DriversDone()
	if ended {
		if p.tailLeft <= 0 {
			return 0, io.EOF
		}
		want = min(want, p.tailLeft)
	}
	n, err := p.ctx.Generate(frames[:want*nc])
	if ended {
		p.tailLeft -= n
	}
	return n * nc, err
}

// Render renders the song until it is done, or until maxFrames frames if
// maxFrames is positive. A song whose programs loop forever needs the limit.
func (p *Player) Render(maxFrames int) ([]int16, error) {
	nc := p.ctx.NumChannels()
	chunk := make([]int16, p.ctx.Channel(0).Size()*nc)
	var out []int16
	for maxFrames <= 0 || len(out) < maxFrames*nc {
		buf := chunk
		if maxFrames > 0 {
			buf = buf[:min(len(buf), maxFrames*nc-len(out))]
		}
		n, err := p.ReadAudio(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("render failed: %w", err)
		}
	}
	p.logger.Debug("song rendered", "frames", len(out)/nc, "done", p.Done())
	return out, nil
}

// Reset rewinds the song to the beginning.
func (p *Player) Reset() {
	p.ctx.Reset()
	p.tailLeft = p.tail
}
