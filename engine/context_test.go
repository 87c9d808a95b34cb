package engine_test

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/vsariola/blipkit"
	"github.com/vsariola/blipkit/buffer"
	"github.com/vsariola/blipkit/clock"
	"github.com/vsariola/blipkit/engine"
	"github.com/vsariola/blipkit/track"
	"github.com/vsariola/blipkit/vm"
)

const sampleRate = 44100

type span struct{ from, to int64 }

// recorder is a unit that logs the spans it is asked to render.
type recorder struct {
	spans  []span
	ended  []int64
	resets int
	err    error
}

func (r *recorder) Render(channels []*buffer.Buffer, from, to blipkit.Time) error {
	r.spans = append(r.spans, span{from.Samples, to.Samples})
	return r.err
}

func (r *recorder) EndFrame(length blipkit.Time) { r.ended = append(r.ended, length.Samples) }
func (r *recorder) Reset()                       { r.resets++ }

func newContext(t *testing.T, channels int, period int64) *engine.Context {
	t.Helper()
	ctx, err := engine.New(channels, sampleRate, engine.WithClockPeriod(blipkit.TimeFromSamples(period)))
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return ctx
}

func TestNewValidates(t *testing.T) {
	for _, c := range []struct {
		channels, rate int
	}{{0, 44100}, {blipkit.MaxChannels + 1, 44100}, {2, 8000}, {2, 200000}} {
		if _, err := engine.New(c.channels, c.rate); !errors.Is(err, blipkit.ErrInvalidValue) {
			t.Errorf("New(%v, %v): got %v, want ErrInvalidValue", c.channels, c.rate, err)
		}
	}
	if _, err := engine.New(2, 44100, engine.WithBufferDuration(0)); !errors.Is(err, blipkit.ErrInvalidValue) {
		t.Errorf("zero buffer duration: got %v", err)
	}
	if _, err := engine.New(2, 44100, engine.WithClockPeriod(blipkit.Time{})); !errors.Is(err, blipkit.ErrInvalidValue) {
		t.Errorf("zero clock period: got %v", err)
	}
}

func TestRunRendersBetweenTicks(t *testing.T) {
	ctx := newContext(t, 1, 10)
	var u recorder
	if _, err := ctx.AttachUnit(&u); err != nil {
		t.Fatal(err)
	}
	var beats []int64
	ctx.AttachDivider(clock.NewDivider(1, func() (int, error) {
		beats = append(beats, ctx.Time().Samples)
		return 0, nil
	}), blipkit.ClockBeat)
	if err := ctx.Run(blipkit.TimeFromSamples(25)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if want := []span{{0, 10}, {10, 20}, {20, 25}}; !slices.Equal(u.spans, want) {
		t.Errorf("spans = %v, want %v", u.spans, want)
	}
	if want := []int64{0, 10, 20}; !slices.Equal(beats, want) {
		t.Errorf("beats at %v, want %v", beats, want)
	}
}

func TestEffectGroupTicksBeforeBeatGroup(t *testing.T) {
	ctx := newContext(t, 1, 10)
	var order []string
	ctx.AttachDivider(clock.NewDivider(1, func() (int, error) {
		order = append(order, "beat")
		return 0, nil
	}), blipkit.ClockBeat)
	ctx.AttachDivider(clock.NewDivider(1, func() (int, error) {
		order = append(order, "effect")
		return 0, nil
	}), blipkit.ClockEffect)
	if err := ctx.Run(blipkit.TimeFromSamples(1)); err != nil {
		t.Fatal(err)
	}
	if want := []string{"effect", "beat"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestAuxiliaryClock(t *testing.T) {
	ctx := newContext(t, 1, 10)
	if err := ctx.Run(blipkit.TimeFromSamples(3)); err != nil {
		t.Fatal(err)
	}
	aux, err := clock.New(blipkit.TimeFromSamples(4))
	if err != nil {
		t.Fatal(err)
	}
	var g clock.DividerGroup
	var ticks []int64
	g.Attach(clock.NewDivider(1, func() (int, error) {
		ticks = append(ticks, ctx.Time().Samples)
		return 0, nil
	}))
	aux.AddGroup(&g)
	h, err := ctx.AttachClock(aux)
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.Run(blipkit.TimeFromSamples(16)); err != nil {
		t.Fatal(err)
	}
	if want := []int64{3, 7, 11, 15}; !slices.Equal(ticks, want) {
		t.Errorf("aux ticks at %v, want %v", ticks, want)
	}
	if !ctx.DetachClock(h) || ctx.DetachClock(h) {
		t.Error("DetachClock should succeed exactly once")
	}
}

func TestEndShiftsTime(t *testing.T) {
	ctx := newContext(t, 2, 10)
	var u recorder
	ctx.AttachUnit(&u)
	if err := ctx.End(blipkit.TimeFromRaw(100*blipkit.FracUnit + blipkit.FracUnit/2)); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if ctx.Size() != 100 {
		t.Errorf("Size() = %v, want 100", ctx.Size())
	}
	if got, want := ctx.Time(), blipkit.TimeFromRaw(100*blipkit.FracUnit+blipkit.FracUnit/2); got != want {
		t.Errorf("Time() = %v, want %v", got, want)
	}
	if !slices.Equal(u.ended, []int64{100}) {
		t.Errorf("EndFrame lengths %v, want [100]", u.ended)
	}
	out := make([]int16, 2*100)
	if n := ctx.Read(out); n != 100 || ctx.Size() != 0 {
		t.Errorf("Read = %v, Size() = %v", n, ctx.Size())
	}
}

func TestRunBeyondCapacity(t *testing.T) {
	ctx, err := engine.New(1, sampleRate, engine.WithBufferDuration(0.01))
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.Run(blipkit.TimeFromSamples(1000)); !errors.Is(err, blipkit.ErrInvalidValue) {
		t.Fatalf("Run past capacity: got %v, want ErrInvalidValue", err)
	}
	out := make([]int16, 5000)
	if n, err := ctx.Generate(out); err != nil || n != 5000 {
		t.Fatalf("Generate = %v, %v; larger requests should be split", n, err)
	}
}

func TestFramesWithinBlipLimit(t *testing.T) {
	ctx, err := engine.New(2, blipkit.MaxSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	if size := ctx.Channel(0).Size(); size <= buffer.MaxFrame {
		t.Fatalf("buffer of %v samples does not exceed the frame limit", size)
	}
	if err := ctx.Run(blipkit.TimeFromSamples(buffer.MaxFrame + 1)); !errors.Is(err, blipkit.ErrInvalidValue) {
		t.Fatalf("Run past the frame limit: got %v, want ErrInvalidValue", err)
	}
	var u recorder
	ctx.AttachUnit(&u)
	out := make([]int16, 2*ctx.Channel(0).Size())
	if n, err := ctx.Generate(out); err != nil || n != len(out)/2 {
		t.Fatalf("Generate = %v, %v", n, err)
	}
	total := int64(0)
	for _, l := range u.ended {
		if l > buffer.MaxFrame {
			t.Errorf("ended a frame of %v samples", l)
		}
		total += l
	}
	if total != int64(len(out)/2) {
		t.Errorf("frames add up to %v samples, want %v", total, len(out)/2)
	}
}

func TestRenderErrorsAreCollected(t *testing.T) {
	ctx := newContext(t, 1, 10)
	bad := &recorder{err: errors.New("broken unit")}
	var good recorder
	ctx.AttachUnit(bad)
	ctx.AttachUnit(&good)
	err := ctx.Run(blipkit.TimeFromSamples(30))
	if err == nil || err.Error() == "" {
		t.Fatal("Run should report the unit errors")
	}
	if len(good.spans) != 3 || ctx.Time().Samples != 30 {
		t.Errorf("rendering should continue past errors: spans %v, time %v", good.spans, ctx.Time())
	}
}

const fade = `
	volume 32767
	attack 6000
	step 4410
	volume 0
	step 4410
	end
`

func playFade(t *testing.T) ([]int16, *engine.Driver) {
	t.Helper()
	ctx := newContext(t, 2, 1)
	tr := track.New(sampleRate)
	if err := tr.Attach(ctx); err != nil {
		t.Fatal(err)
	}
	p, err := vm.Assemble(fade)
	if err != nil {
		t.Fatal(err)
	}
	d := engine.NewDriver("fade", vm.NewInterpreter(p, nil, nil), tr)
	if err := ctx.AttachDriver(d, blipkit.ClockBeat); err != nil {
		t.Fatal(err)
	}
	var out []int16
	err = ctx.GenerateToTime(blipkit.TimeFromSamples(10000), func(frames []int16) error {
		out = append(out, frames...)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateToTime failed: %v", err)
	}
	return out, d
}

func TestDriverPlaysProgram(t *testing.T) {
	out, d := playFade(t)
	if len(out) != 2*10000 {
		t.Fatalf("generated %v frames, want 10000", len(out)/2)
	}
	if !d.Done() || d.Err() != nil {
		t.Fatalf("driver done %v err %v", d.Done(), d.Err())
	}
	if got := d.EndedAt(); got != blipkit.TimeFromSamples(8820) {
		t.Errorf("driver ended at %v, want 8820 samples", got)
	}
	var loud, quiet int
	for i, v := range out {
		a := max(int(v), -int(v))
		switch frame := i / 2; {
		case frame < 4410:
			loud = max(loud, a)
		case frame > 4410+3000:
			quiet = max(quiet, a)
		}
	}
	if loud < 1000 || quiet > loud/32 {
		t.Errorf("peaks: %v while playing, %v after volume 0", loud, quiet)
	}
}

func TestGenerateChunking(t *testing.T) {
	for _, rate := range []int{sampleRate, blipkit.MaxSampleRate} {
		want := generateIn(t, rate, 10000)
		for _, chunk := range []int{1, 256, 4410, 9600} {
			if got := generateIn(t, rate, chunk); !slices.Equal(got, want) {
				t.Errorf("%v Hz, chunk %v: output differs", rate, chunk)
			}
		}
	}
}

func generateIn(t *testing.T, rate, chunk int) []int16 {
	t.Helper()
	ctx, err := engine.New(2, rate, engine.WithClockPeriod(blipkit.TimeFromSamples(1)))
	if err != nil {
		t.Fatal(err)
	}
	tr := track.New(rate)
	tr.Attach(ctx)
	p, err := vm.Assemble(fade)
	if err != nil {
		t.Fatal(err)
	}
	ctx.AttachDriver(engine.NewDriver("fade", vm.NewInterpreter(p, nil, nil), tr), blipkit.ClockBeat)
	out := make([]int16, 2*10000)
	for i := 0; i < len(out); i += 2 * chunk {
		if _, err := ctx.Generate(out[i:min(i+2*chunk, len(out))]); err != nil {
			t.Fatal(err)
		}
	}
	return out
}

func TestGenerateToTimeWriteFailure(t *testing.T) {
	ctx := newContext(t, 1, 10)
	cause := errors.New("disk full")
	calls := 0
	err := ctx.GenerateToTime(blipkit.TimeFromSamples(sampleRate), func(frames []int16) error {
		calls++
		return cause
	})
	if !errors.Is(err, blipkit.ErrInvalidReturnValue) || !errors.Is(err, cause) {
		t.Fatalf("got %v, want ErrInvalidReturnValue wrapping the write error", err)
	}
	if calls != 1 {
		t.Errorf("write called %v times after failing", calls)
	}
}

func TestFaultIsolation(t *testing.T) {
	ctx := newContext(t, 1, 10)
	bad := engine.NewDriver("bad", vm.NewInterpreter(&vm.Program{Code: []int32{999}}, nil, nil), track.New(sampleRate))
	p, err := vm.Assemble("attack c4; step 3; end")
	if err != nil {
		t.Fatal(err)
	}
	good := engine.NewDriver("good", vm.NewInterpreter(p, nil, nil), track.New(sampleRate))
	for _, d := range []*engine.Driver{bad, good} {
		if err := ctx.AttachDriver(d, blipkit.ClockBeat); err != nil {
			t.Fatal(err)
		}
	}
	if err := ctx.Run(blipkit.TimeFromSamples(100)); err != nil {
		t.Fatalf("a fault should not fail the context: %v", err)
	}
	var fault *blipkit.FaultError
	if !errors.As(bad.Err(), &fault) || fault.Kind != blipkit.FaultUnknownOpcode {
		t.Errorf("bad driver error %v, want an unknown opcode fault", bad.Err())
	}
	if good.Err() != nil || !good.Done() || good.EndedAt() != blipkit.TimeFromSamples(30) {
		t.Errorf("good driver: err %v done %v ended at %v", good.Err(), good.Done(), good.EndedAt())
	}
	if !ctx.DriversDone() {
		t.Error("DriversDone() = false")
	}
}

func TestAttrs(t *testing.T) {
	ctx := newContext(t, 2, 10)
	if v, err := ctx.Attr(blipkit.AttrNumChannels); err != nil || v != 2 {
		t.Errorf("channels = %v, %v", v, err)
	}
	if err := ctx.SetAttr(blipkit.AttrSampleRate, 22050); !errors.Is(err, blipkit.ErrInvalidAttribute) {
		t.Errorf("setting the sample rate: got %v", err)
	}
	if err := ctx.SetAttr(blipkit.AttrArpeggioDivider, 0); !errors.Is(err, blipkit.ErrInvalidValue) {
		t.Errorf("arpeggio divider 0: got %v", err)
	}
	if err := ctx.SetAttr(blipkit.AttrArpeggioDivider, 6); err != nil {
		t.Fatal(err)
	}
	if v, _ := ctx.Attr(blipkit.AttrArpeggioDivider); v != 6 {
		t.Errorf("arpeggio divider = %v, want 6", v)
	}
	if err := ctx.SetTimeAttr(blipkit.AttrTime, blipkit.Time{}); !errors.Is(err, blipkit.ErrInvalidAttribute) {
		t.Errorf("setting the time: got %v", err)
	}
	if err := ctx.SetTimeAttr(blipkit.AttrClockPeriod, blipkit.Time{}); !errors.Is(err, blipkit.ErrInvalidValue) {
		t.Errorf("zero clock period: got %v", err)
	}
}

func TestClockPeriodChange(t *testing.T) {
	ctx := newContext(t, 1, 10)
	var beats []int64
	ctx.AttachDivider(clock.NewDivider(1, func() (int, error) {
		beats = append(beats, ctx.Time().Samples)
		return 0, nil
	}), blipkit.ClockBeat)
	if err := ctx.Run(blipkit.TimeFromSamples(15)); err != nil {
		t.Fatal(err)
	}
	if err := ctx.SetTimeAttr(blipkit.AttrClockPeriod, blipkit.TimeFromSamples(3)); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Run(blipkit.TimeFromSamples(22)); err != nil {
		t.Fatal(err)
	}
	if want := []int64{0, 10, 18, 21}; !slices.Equal(beats, want) {
		t.Errorf("beats at %v, want %v", beats, want)
	}
}

func TestResetAndDispose(t *testing.T) {
	ctx := newContext(t, 1, 10)
	var u recorder
	ctx.AttachUnit(&u)
	p, err := vm.Assemble("step 2; end")
	if err != nil {
		t.Fatal(err)
	}
	d := engine.NewDriver("short", vm.NewInterpreter(p, nil, nil), track.New(sampleRate))
	ctx.AttachDriver(d, blipkit.ClockBeat)
	if err := ctx.End(blipkit.TimeFromSamples(50)); err != nil {
		t.Fatal(err)
	}
	if !d.Done() {
		t.Fatal("driver should be done")
	}
	ctx.Reset()
	if !ctx.Time().IsZero() || ctx.Size() != 0 || u.resets != 1 || d.Done() {
		t.Fatalf("after Reset: time %v size %v resets %v done %v", ctx.Time(), ctx.Size(), u.resets, d.Done())
	}
	if err := ctx.Run(blipkit.TimeFromSamples(50)); err != nil || !d.Done() {
		t.Fatalf("driver should run again after Reset: %v, done %v", err, d.Done())
	}
	ctx.Dispose()
	if !ctx.Disposed() {
		t.Fatal("Disposed() = false")
	}
	if err := ctx.Run(blipkit.TimeFromSamples(60)); !errors.Is(err, blipkit.ErrDisposed) {
		t.Errorf("Run after Dispose: %v", err)
	}
	if _, err := ctx.Generate(make([]int16, 10)); !errors.Is(err, blipkit.ErrDisposed) {
		t.Errorf("Generate after Dispose: %v", err)
	}
	if _, err := ctx.AttachUnit(&u); !errors.Is(err, blipkit.ErrDisposed) {
		t.Errorf("AttachUnit after Dispose: %v", err)
	}
}

func ExampleContext() {
	ctx, _ := engine.New(2, 44100)
	tr := track.New(44100)
	tr.Attach(ctx)
	p, _ := vm.Assemble("volume 1.0; attack a4; step 24; release; end")
	ctx.AttachDriver(engine.NewDriver("lead", vm.NewInterpreter(p, nil, nil), tr), blipkit.ClockBeat)
	out := make([]int16, 2*4410)
	n, err := ctx.Generate(out)
	fmt.Println(n, err)
	// Output: 4410 <nil>
}
